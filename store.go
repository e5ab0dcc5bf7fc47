package reactive

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/goliatone/go-reactive/layering"
	"github.com/goliatone/go-reactive/pkg/activity"
	"github.com/goliatone/go-reactive/pkg/persist"
)

// Store owns one live root and the machinery around it: the registry, the
// tracker and the persister. Reset swaps the root and its wrapper cache for
// fresh ones built from the configured initial state; subscriptions survive.
type Store struct {
	id        string
	cfg       Config
	logger    *slog.Logger
	registry  *Registry
	tracker   *Tracker
	persister *persist.Persister
	initial   map[string]any
	current   atomic.Pointer[core]
	closed    atomic.Bool

	functions      *FunctionRegistry
	programCache   ProgramCache
	selectorLogger SelectorLogger
	enginesMu      sync.Mutex
	engines        map[string]Engine
	jsOptions      []JSOption
}

// core is everything Reset replaces.
type core struct {
	store    *Store
	mu       sync.RWMutex
	root     map[string]any
	initial  map[string]any
	cache    *wrapperCache
	usage    *usageStats
	pressure *pressureMonitor
	// rootWrapper is always present, even with wrapping disabled.
	rootWrapper   *Object
	detached      atomic.Bool
	priority      []Path
	preRegistered []Path
}

// New builds a store around a deep copy of initial. With persistence enabled
// and auto hydration on, synchronous adapters are merged into the root before
// it is wrapped; other adapters hydrate in the background and Hydrated
// reports when they are done.
func New(ctx context.Context, initial map[string]any, opts ...Option) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	o := applyOptions(opts)
	if o.cfg.Persist.Enabled && o.adapter == nil {
		return nil, ErrNoStorage
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.selectorLogger == nil {
		o.selectorLogger = noopSelectorLogger{}
	}
	if o.programCache == nil {
		o.programCache = NewProgramCache()
	}

	s := &Store{
		id:             o.id,
		cfg:            o.cfg,
		logger:         o.logger.With("store", o.id),
		tracker:        NewTracker(o.cfg.Tracking.MaxPathLength),
		initial:        layering.CloneMap(initial),
		functions:      o.functions,
		programCache:   o.programCache,
		selectorLogger: o.selectorLogger,
		engines:        make(map[string]Engine),
		jsOptions:      o.jsOptions,
	}
	for _, err := range o.optionErrs {
		s.logger.Warn("reactive: option ignored", "error", err)
	}
	s.registry = NewRegistry(s.logger)
	s.tracker.setOnRecord(func(path Path) {
		if c := s.current.Load(); c != nil {
			c.usage.markTracked(path)
		}
	})
	for _, engine := range o.engines {
		s.engines[engine.Name()] = engine
	}

	popts := []persist.Option{
		persist.WithLogger(s.logger),
		persist.WithCodec(o.codec),
		persist.WithStoreID(s.id),
		persist.WithEmitter(activity.NewEmitter(o.hooks, o.activity)),
	}
	for _, fn := range o.migrations {
		popts = append(popts, persist.WithMigration(fn))
	}
	s.persister = persist.New(o.cfg.Persist, o.adapter, s, popts...)

	switch {
	case !s.persister.Enabled():
		s.current.Store(newCore(s, layering.CloneMap(s.initial)))
		s.persister.MarkHydrated()
	case !o.cfg.Persist.AutoHydrate:
		s.current.Store(newCore(s, layering.CloneMap(s.initial)))
	case s.persister.CanHydrateSync():
		root, report := s.persister.PlanSync(ctx, s.initial)
		s.current.Store(newCore(s, root))
		s.persister.MarkHydrated()
		s.logger.Debug("reactive: hydrated", "strategy", report.Strategy,
			"blob", report.Blob, "applied", report.Applied, "skipped", report.Skipped)
	default:
		s.current.Store(newCore(s, layering.CloneMap(s.initial)))
		go func() {
			if _, err := s.Hydrate(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("reactive: background hydration failed", "error", err)
			}
		}()
	}
	return s, nil
}

func newCore(s *Store, root map[string]any) *core {
	c := &core{
		store:         s,
		root:          root,
		initial:       s.initial,
		cache:         newWrapperCache(s.cfg.Cache.MaxSize),
		usage:         newUsageStats(defaultUsageLimit),
		pressure:      newPressureMonitor(s.cfg.Memory),
		priority:      parsePaths(s.cfg.Wrapping.PriorityPaths),
		preRegistered: parsePaths(s.cfg.Wrapping.PreRegisteredPaths),
	}
	c.rootWrapper = &Object{core: c, path: Path{}, data: root}
	if s.cfg.Wrapping.Enabled {
		if id, ok := identityOf(root); ok {
			c.cache.insert(id, c.rootWrapper)
		}
	}
	return c
}

func (s *Store) core() *core { return s.current.Load() }

// ID identifies the store in logs and activity events.
func (s *Store) ID() string { return s.id }

// Config returns the validated configuration.
func (s *Store) Config() Config { return s.cfg }

// Registry exposes the path registry.
func (s *Store) Registry() *Registry { return s.registry }

// Tracker exposes the dependency tracker.
func (s *Store) Tracker() *Tracker { return s.tracker }

// Root returns the wrapper for the live root.
func (s *Store) Root() *Object { return s.core().rootWrapper }

// Get reads a dot path. Missing paths read as nil.
func (s *Store) Get(path string) any {
	value, _ := s.Lookup(path)
	return value
}

// Lookup reads a dot path and reports whether it exists. Every step is
// recorded with the tracker, including steps through containers the wrapping
// policy left plain.
func (s *Store) Lookup(path string) (any, bool) {
	return s.core().resolve(ParsePath(path))
}

func (c *core) resolve(path Path) (any, bool) {
	var current any = c.rootWrapper
	for i, segment := range path {
		switch node := current.(type) {
		case *Object:
			value, ok := node.Lookup(segment)
			if !ok {
				return nil, false
			}
			current = value
		case *Array:
			if !node.Has(segment) {
				return nil, false
			}
			current = node.Get(segment)
		default:
			c.recordRead(path[:i+1])
			c.mu.RLock()
			next, ok := layering.Lookup(node, []string{segment})
			c.mu.RUnlock()
			if !ok {
				return nil, false
			}
			current = next
		}
	}
	return current, true
}

// Has reports whether path exists.
func (s *Store) Has(path string) bool {
	_, ok := s.Lookup(path)
	return ok
}

// Set writes value at a dot path, creating missing maps along the way.
func (s *Store) Set(path string, value any) error {
	return s.SetPath(ParsePath(path), value)
}

// SetPath is Set for a pre-split path, so segments may contain dots.
func (s *Store) SetPath(path Path, value any) error {
	if len(path) == 0 {
		return ErrEmptyPath
	}
	parent, err := s.core().ensure(path.Parent())
	if err != nil {
		return err
	}
	parent.Set(path.Last(), value)
	return nil
}

// Delete removes the value at path, reporting whether it existed.
func (s *Store) Delete(path string) (bool, error) {
	p := ParsePath(path)
	if len(p) == 0 {
		return false, ErrEmptyPath
	}
	c := s.core()
	var parent any
	s.tracker.Silence(func() {
		parent, _ = c.resolve(p.Parent())
	})
	switch v := parent.(type) {
	case Wrapper:
		return v.Delete(p.Last()), nil
	case map[string]any, []any:
		return c.transient(v, p.Parent(), len(p)-1).Delete(p.Last()), nil
	}
	return false, nil
}

// ensure returns a wrapper for the container at path, replacing missing or
// scalar intermediates with empty maps. Containers the wrapping policy keeps
// plain get an uncached wrapper.
func (c *core) ensure(path Path) (Wrapper, error) {
	var current Wrapper = c.rootWrapper
	var err error
	c.store.tracker.Silence(func() {
		for i, segment := range path {
			if _, seq := current.(*Array); seq && !isIndex(segment) {
				err = ErrNotContainer
				return
			}
			next := current.Get(segment)
			if w, ok := next.(Wrapper); ok {
				current = w
				continue
			}
			switch {
			case !isContainer(next):
				next = map[string]any{}
				current.Set(segment, next)
			default:
				plain := layering.Normalize(next)
				switch next.(type) {
				case map[string]any, []any:
				default:
					current.Set(segment, plain)
				}
				next = plain
			}
			if w, ok := current.Get(segment).(Wrapper); ok {
				current = w
				continue
			}
			current = c.transient(next, path[:i+1], i+1)
		}
	})
	if err != nil {
		return nil, err
	}
	return current, nil
}

// transient wraps a plain container without registering it in the cache.
func (c *core) transient(value any, path Path, depth int) Wrapper {
	path = append(Path(nil), path...)
	if items, ok := value.([]any); ok {
		return &Array{core: c, path: path, depth: depth, items: items}
	}
	data, _ := value.(map[string]any)
	return &Object{core: c, path: path, depth: depth, data: data}
}

// Subscribe registers fn for path. See Registry.Notify for which writes wake
// it.
func (s *Store) Subscribe(path string, fn func()) func() {
	return s.registry.Subscribe(path, fn)
}

// Select runs fn against the root with tracking enabled and returns its
// result together with the cumulative subscription paths it read.
func (s *Store) Select(fn func(root *Object) any) (any, []string) {
	if fn == nil {
		return nil, nil
	}
	result, capture := s.tracker.Track(func() any {
		return fn(s.Root())
	})
	return result, capture.SubscriptionPaths()
}

// Wrap returns the wrapper for value as if it lived at path. A container
// stored at path gets its cached wrapper; any other container gets a fresh
// wrapper that writes to value itself while still notifying path. Scalars
// come back unchanged.
func (s *Store) Wrap(value any, path string) any {
	p := ParsePath(path)
	c := s.core()
	plain := layering.Normalize(value)
	if c.storedAt(p, plain) {
		return c.wrap(plain, p, len(p))
	}
	if !s.cfg.Wrapping.Enabled {
		return plain
	}
	switch v := plain.(type) {
	case map[string]any:
		if v != nil {
			return &Object{core: c, path: p, depth: len(p), data: v}
		}
	case []any:
		return &Array{core: c, path: p, depth: len(p), items: v, free: true}
	}
	return plain
}

// storedAt reports whether the live tree holds exactly value at path.
func (c *core) storedAt(path Path, value any) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	current, ok := c.lookupLocked(path)
	if !ok {
		return false
	}
	switch v := value.(type) {
	case map[string]any:
		m, ok := current.(map[string]any)
		if !ok || v == nil || m == nil {
			return false
		}
		a, _ := identityOf(m)
		b, _ := identityOf(v)
		return a == b
	case []any:
		items, ok := current.([]any)
		return ok && cap(v) > 0 && sameSlice(items, v)
	}
	return false
}

// Optimize evicts the oldest 40% of cached wrappers, or 80% when aggressive,
// and returns how many were evicted.
func (s *Store) Optimize(aggressive bool) int {
	fraction := 0.4
	if aggressive {
		fraction = 0.8
	}
	removed := s.core().cache.evictFraction(fraction)
	s.logger.Debug("reactive: cache optimized", "aggressive", aggressive, "evicted", removed)
	return removed
}

// Stats is a point-in-time view of the store's bookkeeping.
type Stats struct {
	ID              string
	CacheEntries    int
	RecencyEntries  int
	TrackedPaths    int
	Subscriptions   int
	PressureHigh    bool
	EstimatedBytes  int64
	BatchState      persist.BatchState
	PendingRoots    []string
	Hydrated        bool
	PersistEnabled  bool
	WrappingEnabled bool
}

// Stats reports cache, tracking and persistence counters.
func (s *Store) Stats() Stats {
	c := s.core()
	high, _ := c.pressure.state()
	entries := c.cache.size()
	tracked := c.usage.trackedCount()
	return Stats{
		ID:              s.id,
		CacheEntries:    entries,
		RecencyEntries:  c.cache.recencyLen(),
		TrackedPaths:    tracked,
		Subscriptions:   s.registry.Count(),
		PressureHigh:    high,
		EstimatedBytes:  c.pressure.estimate(entries, tracked),
		BatchState:      s.persister.State(),
		PendingRoots:    s.persister.Pending(),
		Hydrated:        s.persister.IsHydrated(),
		PersistEnabled:  s.persister.Enabled(),
		WrappingEnabled: s.cfg.Wrapping.Enabled,
	}
}

// ReadCount returns how often path was read since the last Reset.
func (s *Store) ReadCount(path string) int {
	return s.core().usage.readCount(path)
}

// Hydrate loads stored slices through the live wrappers, so subscribers see
// every applied value. Enqueues are suppressed while it runs and enabled once
// it returns.
func (s *Store) Hydrate(ctx context.Context) (persist.Report, error) {
	if s.closed.Load() {
		return persist.Report{}, ErrClosed
	}
	if !s.persister.Enabled() {
		return persist.Report{}, ErrNoStorage
	}
	report, err := s.persister.HydrateAsync(ctx, persist.WriterFunc(func(path []string, value any) {
		if len(path) == 0 {
			if values, ok := value.(map[string]any); ok {
				s.Root().Merge(values)
			}
			return
		}
		if err := s.SetPath(Path(path), value); err != nil {
			s.logger.Warn("reactive: hydrated value not applied", "path", Path(path).String(), "error", err)
		}
	}))
	s.logger.Debug("reactive: hydrated", "strategy", report.Strategy,
		"blob", report.Blob, "applied", report.Applied, "skipped", report.Skipped)
	return report, err
}

// Hydrated is closed once the first hydration finished. Stores without
// persistence are hydrated from the start.
func (s *Store) Hydrated() <-chan struct{} { return s.persister.Hydrated() }

// Flush writes pending persistence roots now.
func (s *Store) Flush(ctx context.Context) error {
	return s.persister.Flush(ctx)
}

// SaveAll writes the whole root as the full-state blob.
func (s *Store) SaveAll(ctx context.Context) error {
	if !s.persister.Enabled() {
		return ErrNoStorage
	}
	return s.persister.SaveAll(ctx)
}

// ClearPersisted removes every stored key for this store and drops pending
// roots. The live root is left alone.
func (s *Store) ClearPersisted(ctx context.Context) error {
	if !s.persister.Enabled() {
		return ErrNoStorage
	}
	return s.persister.Clear(ctx)
}

// Reset rebuilds the root from the configured initial state with an empty
// wrapper cache and notifies the root path. Wrappers obtained before Reset
// keep working on the discarded root but no longer notify or persist.
// Pending persistence roots are dropped; stored data is untouched.
func (s *Store) Reset() {
	next := newCore(s, layering.CloneMap(s.initial))
	old := s.current.Swap(next)
	if old != nil {
		old.detached.Store(true)
		old.cache.clear()
	}
	s.persister.Discard()
	s.registry.Notify("")
}

// Close flushes pending roots and stops persistence. The store stays
// readable and writable in memory.
func (s *Store) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.persister.Close(ctx)
}

// Snapshot implements persist.Source.
func (s *Store) Snapshot(path []string) (any, bool) {
	c := s.core()
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := layering.Lookup(c.root, path)
	if !ok {
		return nil, false
	}
	return layering.Clone(value), true
}

// Document implements persist.Source.
func (s *Store) Document() map[string]any {
	c := s.core()
	c.mu.RLock()
	defer c.mu.RUnlock()
	return layering.CloneMap(c.root)
}

var defaultStore atomic.Pointer[Store]

// SetDefault makes s the process-wide store returned by Default.
func SetDefault(s *Store) { defaultStore.Store(s) }

// Default returns the store registered with SetDefault, or nil.
func Default() *Store { return defaultStore.Load() }
