package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-reactive/internal/hydrate"
	"github.com/goliatone/go-reactive/layering"
	"github.com/goliatone/go-reactive/pkg/activity"
	"github.com/goliatone/go-reactive/pkg/storage"
)

// ErrNoAdapter is returned by explicit operations when persistence is
// disabled or no adapter is set.
var ErrNoAdapter = errors.New("persist: persistence disabled or adapter not configured")

// BatchState is the lifecycle position of the pending batch.
type BatchState int

const (
	StateIdle BatchState = iota
	StateAccumulating
	StateFlushing
)

func (s BatchState) String() string {
	switch s {
	case StateAccumulating:
		return "accumulating"
	case StateFlushing:
		return "flushing"
	default:
		return "idle"
	}
}

// Source exposes plain, detached copies of store data.
type Source interface {
	// Snapshot returns a deep copy of the value at path.
	Snapshot(path []string) (any, bool)
	// Document returns a deep copy of the whole store root.
	Document() map[string]any
}

// Writer applies hydrated values through the live store so subscribers see
// them.
type Writer interface {
	Write(path []string, value any)
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(path []string, value any)

// Write implements Writer.
func (fn WriterFunc) Write(path []string, value any) {
	if fn != nil {
		fn(path, value)
	}
}

// MigrateFunc rewrites a decoded slice before it is applied. Returning nil
// keeps the payload as modified in place.
type MigrateFunc func(root string, payload map[string]any) (map[string]any, error)

// Option configures a Persister.
type Option func(*Persister)

// WithLogger sets the logger; nil keeps the discard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Persister) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithCodec sets the codec used for every key; nil keeps JSON.
func WithCodec(codec Codec) Option {
	return func(p *Persister) {
		if codec != nil {
			p.codec = codec
		}
	}
}

// WithEmitter publishes lifecycle events through emitter.
func WithEmitter(emitter *activity.Emitter) Option {
	return func(p *Persister) {
		p.emitter = emitter
	}
}

// WithStoreID tags emitted events with the owning store.
func WithStoreID(id string) Option {
	return func(p *Persister) {
		p.storeID = id
	}
}

// WithMigration registers a hook applied to every decoded map slice during
// hydration.
func WithMigration(fn MigrateFunc) Option {
	return func(p *Persister) {
		if fn != nil {
			p.migrations = append(p.migrations, fn)
		}
	}
}

// Persister owns the pending batch and talks to the storage adapter.
type Persister struct {
	cfg        Config
	policy     Policy
	adapter    storage.Adapter
	codec      Codec
	source     Source
	logger     *slog.Logger
	emitter    *activity.Emitter
	storeID    string
	migrations []MigrateFunc
	decoder    *hydrate.Decoder[map[string]any]

	mu      sync.Mutex
	state   BatchState
	pending []string
	queued  map[string]struct{}
	timer   *time.Timer
	gen     uint64
	done    chan struct{}
	closed  bool

	hydrating    atomic.Bool
	hydrated     atomic.Bool
	hydratedCh   chan struct{}
	hydratedOnce sync.Once
}

// New constructs a Persister. A nil adapter or a disabled config yields a
// Persister whose Enqueue is a no-op.
func New(cfg Config, adapter storage.Adapter, source Source, opts ...Option) *Persister {
	cfg = cfg.Normalize()
	p := &Persister{
		cfg:        cfg,
		policy:     NewPolicy(cfg),
		adapter:    adapter,
		codec:      JSONCodec{},
		source:     source,
		logger:     slog.New(slog.DiscardHandler),
		queued:     make(map[string]struct{}),
		hydratedCh: make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.decoder = hydrate.NewDecoder[map[string]any](
		hydrate.WithPreHook[map[string]any](p.migrate),
	)
	return p
}

// Enabled reports whether writes can reach storage.
func (p *Persister) Enabled() bool {
	return p != nil && p.cfg.Enabled && p.adapter != nil
}

// Config returns the normalized configuration.
func (p *Persister) Config() Config { return p.cfg }

// Policy returns the compiled allow/blacklist policy.
func (p *Persister) Policy() Policy { return p.policy }

// CanHydrateSync reports whether the adapter supports the pre-wrap merge.
func (p *Persister) CanHydrateSync() bool {
	return p.Enabled() && storage.IsSync(p.adapter)
}

// Enqueue records a write to path. It is ignored while hydrating and until
// the first hydration completes, so defaults never overwrite stored values.
func (p *Persister) Enqueue(path []string) {
	if !p.Enabled() || p.hydrating.Load() || !p.hydrated.Load() {
		return
	}
	if !p.policy.ShouldPersist(path) {
		return
	}
	roots := p.policy.Roots(path)
	if len(roots) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for _, root := range roots {
		if _, ok := p.queued[root]; ok {
			continue
		}
		p.queued[root] = struct{}{}
		p.pending = append(p.pending, root)
	}
	if p.state == StateFlushing {
		return
	}
	p.state = StateAccumulating
	p.armLocked()
}

func (p *Persister) armLocked() {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.gen++
	gen := p.gen
	p.timer = time.AfterFunc(p.cfg.Debounce, func() { p.fire(gen) })
}

func (p *Persister) fire(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || p.state != StateAccumulating {
		p.mu.Unlock()
		return
	}
	roots := p.beginLocked()
	p.mu.Unlock()

	p.persistRoots(context.Background(), roots)
	p.finish()
}

// beginLocked snapshots and clears the pending roots and moves to Flushing.
func (p *Persister) beginLocked() []string {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.gen++
	roots := p.pending
	p.pending = nil
	p.queued = make(map[string]struct{})
	p.state = StateFlushing
	p.done = make(chan struct{})
	return roots
}

func (p *Persister) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	close(p.done)
	p.done = nil
	if len(p.pending) > 0 && !p.closed {
		p.state = StateAccumulating
		p.armLocked()
		return
	}
	p.state = StateIdle
}

// State returns the current batch state.
func (p *Persister) State() BatchState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Pending returns the roots waiting for the next flush.
func (p *Persister) Pending() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.pending...)
}

// Flush waits for an in-flight flush, then writes every pending root now.
func (p *Persister) Flush(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		p.mu.Lock()
		if p.state != StateFlushing {
			break
		}
		done := p.done
		p.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return nil
	}
	roots := p.beginLocked()
	p.mu.Unlock()

	p.persistRoots(ctx, roots)
	p.finish()
	return nil
}

// Discard drops pending roots without writing them.
func (p *Persister) Discard() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
	p.queued = make(map[string]struct{})
	if p.state == StateAccumulating {
		if p.timer != nil {
			p.timer.Stop()
			p.timer = nil
		}
		p.gen++
		p.state = StateIdle
	}
}

// Close flushes pending roots and stops accepting new ones.
func (p *Persister) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	err := p.Flush(ctx)
	p.mu.Lock()
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()
	return err
}

func (p *Persister) persistRoots(ctx context.Context, roots []string) {
	for _, root := range roots {
		p.persistRoot(ctx, root)
	}
}

func (p *Persister) persistRoot(ctx context.Context, root string) {
	key := Key(p.cfg.KeyPrefix, root)
	input := activity.SliceEventInput{
		StoreID: p.storeID,
		Root:    root,
		Key:     key,
		Codec:   p.codec.Name(),
	}
	path := split(root)

	value, ok := p.source.Snapshot(path)
	if !ok {
		if err := p.adapter.Remove(ctx, key); err != nil {
			p.logger.Warn("persist: remove slice failed", "root", root, "key", key, "error", err)
			input.Err = err
			p.emit(ctx, activity.BuildSliceFailedEvent(input))
			return
		}
		p.emit(ctx, activity.BuildSliceRemovedEvent(input))
		return
	}
	if blocked := p.policy.blockedUnder(path); len(blocked) > 0 {
		value = layering.Without(value, blocked)
	}

	data, err := p.codec.Marshal(value)
	if err != nil {
		p.logger.Warn("persist: slice not serializable", "root", root, "error", err)
		input.Err = err
		p.emit(ctx, activity.BuildSliceFailedEvent(input))
		return
	}
	if err := p.adapter.Set(ctx, key, data); err != nil {
		p.logger.Warn("persist: write slice failed", "root", root, "key", key, "error", err)
		input.Err = err
		p.emit(ctx, activity.BuildSliceFailedEvent(input))
		return
	}
	input.Bytes = len(data)
	p.logger.Debug("persist: slice written", "root", root, "key", key, "bytes", len(data))
	p.emit(ctx, activity.BuildSlicePersistedEvent(input))
}

// SaveAll writes the whole store, minus blacklisted paths, as the full-state
// blob.
func (p *Persister) SaveAll(ctx context.Context) error {
	if !p.Enabled() {
		return ErrNoAdapter
	}
	document := p.source.Document()
	var value any = document
	if len(p.policy.blacklist) > 0 {
		value = layering.Without(document, p.policy.blacklist)
	}
	data, err := p.codec.Marshal(value)
	if err != nil {
		return err
	}
	if err := p.adapter.Set(ctx, p.cfg.KeyPrefix, data); err != nil {
		return fmt.Errorf("persist: save full state: %w", err)
	}
	return nil
}

// Clear drops pending roots and removes every key under the prefix.
func (p *Persister) Clear(ctx context.Context) error {
	if p.adapter == nil {
		return ErrNoAdapter
	}
	p.Discard()
	if err := storage.ClearPrefix(ctx, p.adapter, p.cfg.KeyPrefix); err != nil {
		return fmt.Errorf("persist: clear %q: %w", p.cfg.KeyPrefix, err)
	}
	p.emit(ctx, activity.BuildClearedEvent(p.storeID, p.cfg.KeyPrefix))
	return nil
}

func (p *Persister) emit(ctx context.Context, event activity.Event) {
	if !p.emitter.Enabled() {
		return
	}
	if err := p.emitter.Emit(ctx, event); err != nil {
		p.logger.Warn("persist: activity hook failed", "verb", event.Verb, "error", err)
	}
}
