package persist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-reactive/layering"
	"github.com/goliatone/go-reactive/pkg/activity"
	"github.com/goliatone/go-reactive/pkg/storage"
	"github.com/google/go-cmp/cmp"
)

type mapSource struct {
	mu   sync.Mutex
	root map[string]any
}

func (s *mapSource) Snapshot(path []string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := layering.Lookup(s.root, path)
	if !ok {
		return nil, false
	}
	return layering.Clone(value), true
}

func (s *mapSource) Document() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return layering.CloneMap(s.root)
}

func (s *mapSource) set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root[key] = value
}

type failingAdapter struct {
	*storage.MemoryAdapter
	failKey string
}

func (a failingAdapter) Set(ctx context.Context, key string, value []byte) error {
	if key == a.failKey {
		return errors.New("disk full")
	}
	return a.MemoryAdapter.Set(ctx, key, value)
}

// gatedAdapter blocks every Set until release is closed.
type gatedAdapter struct {
	*storage.MemoryAdapter
	entered chan string
	release chan struct{}
}

func (a gatedAdapter) Set(ctx context.Context, key string, value []byte) error {
	a.entered <- key
	<-a.release
	return a.MemoryAdapter.Set(ctx, key, value)
}

func readJSON(t *testing.T, adapter storage.Adapter, key string) any {
	t.Helper()
	data, ok, err := adapter.Get(context.Background(), key)
	if err != nil || !ok {
		t.Fatalf("expected key %q to be stored (ok=%v err=%v)", key, ok, err)
	}
	var out any
	if err := (JSONCodec{}).Unmarshal(data, &out); err != nil {
		t.Fatalf("decode %q: %v", key, err)
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func newTestPersister(cfg Config, adapter storage.Adapter, source Source, opts ...Option) *Persister {
	cfg.Enabled = true
	if cfg.Debounce == 0 {
		cfg.Debounce = time.Hour
	}
	p := New(cfg, adapter, source, opts...)
	p.MarkHydrated()
	return p
}

func TestEnqueueIgnoredBeforeHydration(t *testing.T) {
	source := &mapSource{root: map[string]any{"user": map[string]any{"name": "A"}}}
	p := New(Config{Enabled: true, Debounce: time.Hour}, storage.NewMemoryAdapter(), source)

	p.Enqueue([]string{"user", "name"})
	if pending := p.Pending(); len(pending) != 0 {
		t.Fatalf("expected nothing pending before hydration, got %v", pending)
	}

	p.MarkHydrated()
	p.Enqueue([]string{"user", "name"})
	if diff := cmp.Diff([]string{"user"}, p.Pending()); diff != "" {
		t.Fatalf("pending mismatch (-want +got):\n%s", diff)
	}
	if p.State() != StateAccumulating {
		t.Fatalf("expected accumulating, got %s", p.State())
	}
}

func TestEnqueueRespectsAllowAndBlacklist(t *testing.T) {
	source := &mapSource{root: map[string]any{}}
	p := newTestPersister(Config{
		Paths:     []string{"user"},
		Blacklist: []string{"user.secret"},
	}, storage.NewMemoryAdapter(), source)

	p.Enqueue([]string{"user", "secret"})
	p.Enqueue([]string{"cart", "items"})
	if pending := p.Pending(); len(pending) != 0 {
		t.Fatalf("expected no pending roots, got %v", pending)
	}

	p.Enqueue([]string{"user", "name"})
	p.Enqueue([]string{"user", "age"})
	if diff := cmp.Diff([]string{"user"}, p.Pending()); diff != "" {
		t.Fatalf("pending mismatch (-want +got):\n%s", diff)
	}
}

func TestFlushWritesSlicesWithoutBlacklistedData(t *testing.T) {
	adapter := storage.NewMemoryAdapter()
	source := &mapSource{root: map[string]any{
		"user": map[string]any{"name": "A", "secret": "s3cr3t"},
	}}
	p := newTestPersister(Config{Blacklist: []string{"user.secret"}}, adapter, source)

	p.Enqueue([]string{"user", "name"})
	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	got := readJSON(t, adapter, "persisted_state_user")
	if diff := cmp.Diff(map[string]any{"name": "A"}, got); diff != "" {
		t.Fatalf("slice mismatch (-want +got):\n%s", diff)
	}
	if p.State() != StateIdle {
		t.Fatalf("expected idle after flush, got %s", p.State())
	}
}

func TestFlushIsolatesFailuresPerRoot(t *testing.T) {
	adapter := failingAdapter{MemoryAdapter: storage.NewMemoryAdapter(), failKey: "persisted_state_b"}
	source := &mapSource{root: map[string]any{
		"a": map[string]any{"ok": true},
		"b": map[string]any{"ok": true},
		"c": map[string]any{"fn": make(chan int)},
		"d": map[string]any{"ok": true},
	}}
	capture := &activity.CaptureHook{}
	emitter := activity.NewEmitter(activity.Hooks{capture}, activity.Config{Enabled: true})
	p := newTestPersister(Config{}, adapter, source, WithEmitter(emitter), WithStoreID("s1"))

	for _, root := range []string{"a", "b", "c", "d"} {
		p.Enqueue([]string{root, "ok"})
	}
	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("flush must not surface slice failures: %v", err)
	}

	keys, _ := adapter.Keys(context.Background())
	if diff := cmp.Diff([]string{"persisted_state_a", "persisted_state_d"}, keys); diff != "" {
		t.Fatalf("stored keys mismatch (-want +got):\n%s", diff)
	}
	want := []string{
		activity.VerbSlicePersisted,
		activity.VerbSliceFailed,
		activity.VerbSliceFailed,
		activity.VerbSlicePersisted,
	}
	if diff := cmp.Diff(want, capture.Verbs()); diff != "" {
		t.Fatalf("event verbs mismatch (-want +got):\n%s", diff)
	}
}

func TestFlushRemovesMissingRoot(t *testing.T) {
	adapter := storage.NewMemoryAdapter()
	_ = adapter.Set(context.Background(), "persisted_state_gone", []byte(`{"x":1}`))
	p := newTestPersister(Config{}, adapter, &mapSource{root: map[string]any{}})

	p.Enqueue([]string{"gone"})
	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if _, ok, _ := adapter.Get(context.Background(), "persisted_state_gone"); ok {
		t.Fatalf("expected stale slice removed")
	}
}

func TestDebounceCoalescesWrites(t *testing.T) {
	adapter := storage.NewMemoryAdapter()
	source := &mapSource{root: map[string]any{"counter": 0}}
	p := newTestPersister(Config{Debounce: 20 * time.Millisecond}, adapter, source)

	for i := 1; i <= 5; i++ {
		source.set("counter", i)
		p.Enqueue([]string{"counter"})
	}

	waitFor(t, func() bool {
		_, ok, _ := adapter.Get(context.Background(), "persisted_state_counter")
		return ok && p.State() == StateIdle
	})
	if got := readJSON(t, adapter, "persisted_state_counter"); got != float64(5) {
		t.Fatalf("expected final value 5, got %v", got)
	}
}

func TestRootsAddedDuringFlushStartNewCycle(t *testing.T) {
	adapter := gatedAdapter{
		MemoryAdapter: storage.NewMemoryAdapter(),
		entered:       make(chan string, 4),
		release:       make(chan struct{}),
	}
	source := &mapSource{root: map[string]any{"a": 1, "b": 2}}
	p := newTestPersister(Config{Debounce: 5 * time.Millisecond}, adapter, source)

	p.Enqueue([]string{"a"})
	if key := <-adapter.entered; key != "persisted_state_a" {
		t.Fatalf("unexpected first key %q", key)
	}
	if p.State() != StateFlushing {
		t.Fatalf("expected flushing, got %s", p.State())
	}

	p.Enqueue([]string{"b"})
	if diff := cmp.Diff([]string{"b"}, p.Pending()); diff != "" {
		t.Fatalf("pending mismatch (-want +got):\n%s", diff)
	}
	if p.State() != StateFlushing {
		t.Fatalf("enqueue during flush must not leave flushing, got %s", p.State())
	}

	close(adapter.release)
	if key := <-adapter.entered; key != "persisted_state_b" {
		t.Fatalf("unexpected second key %q", key)
	}
	waitFor(t, func() bool { return p.State() == StateIdle })
	if got := readJSON(t, adapter, "persisted_state_b"); got != float64(2) {
		t.Fatalf("expected b persisted, got %v", got)
	}
}

func TestFlushWaitsForInFlightFlush(t *testing.T) {
	adapter := gatedAdapter{
		MemoryAdapter: storage.NewMemoryAdapter(),
		entered:       make(chan string, 4),
		release:       make(chan struct{}),
	}
	p := newTestPersister(Config{Debounce: time.Millisecond}, adapter, &mapSource{root: map[string]any{"a": 1}})

	p.Enqueue([]string{"a"})
	<-adapter.entered

	flushed := make(chan error, 1)
	go func() { flushed <- p.Flush(context.Background()) }()

	select {
	case <-flushed:
		t.Fatalf("flush returned while another flush was running")
	case <-time.After(20 * time.Millisecond):
	}
	close(adapter.release)
	if err := <-flushed; err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestFlushHonoursContextWhileWaiting(t *testing.T) {
	adapter := gatedAdapter{
		MemoryAdapter: storage.NewMemoryAdapter(),
		entered:       make(chan string, 4),
		release:       make(chan struct{}),
	}
	p := newTestPersister(Config{Debounce: time.Millisecond}, adapter, &mapSource{root: map[string]any{"a": 1}})
	p.Enqueue([]string{"a"})
	<-adapter.entered
	defer close(adapter.release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Flush(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDiscardDropsPending(t *testing.T) {
	p := newTestPersister(Config{}, storage.NewMemoryAdapter(), &mapSource{root: map[string]any{}})
	p.Enqueue([]string{"a"})
	p.Discard()
	if len(p.Pending()) != 0 || p.State() != StateIdle {
		t.Fatalf("expected empty idle batch, got %v %s", p.Pending(), p.State())
	}
}

func TestCloseFlushesAndStopsAccepting(t *testing.T) {
	adapter := storage.NewMemoryAdapter()
	p := newTestPersister(Config{}, adapter, &mapSource{root: map[string]any{"a": 1, "b": 2}})
	p.Enqueue([]string{"a"})

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok, _ := adapter.Get(context.Background(), "persisted_state_a"); !ok {
		t.Fatalf("expected pending root flushed on close")
	}
	p.Enqueue([]string{"b"})
	if len(p.Pending()) != 0 {
		t.Fatalf("closed persister accepted a root")
	}
}

func TestSaveAllAndClear(t *testing.T) {
	adapter := storage.NewMemoryAdapter()
	_ = adapter.Set(context.Background(), "unrelated", []byte("1"))
	source := &mapSource{root: map[string]any{
		"user":    map[string]any{"name": "A", "secret": "x"},
		"session": "token",
	}}
	p := newTestPersister(Config{Blacklist: []string{"user.secret", "session"}}, adapter, source)

	if err := p.SaveAll(context.Background()); err != nil {
		t.Fatalf("save all: %v", err)
	}
	want := map[string]any{"user": map[string]any{"name": "A"}}
	if diff := cmp.Diff(want, readJSON(t, adapter, "persisted_state")); diff != "" {
		t.Fatalf("blob mismatch (-want +got):\n%s", diff)
	}

	p.Enqueue([]string{"user"})
	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := p.Clear(context.Background()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	keys, _ := adapter.Keys(context.Background())
	if diff := cmp.Diff([]string{"unrelated"}, keys); diff != "" {
		t.Fatalf("keys after clear mismatch (-want +got):\n%s", diff)
	}
}

func TestDisabledPersisterIsInert(t *testing.T) {
	p := New(Config{}, storage.NewMemoryAdapter(), &mapSource{root: map[string]any{}})
	p.MarkHydrated()
	p.Enqueue([]string{"a"})
	if len(p.Pending()) != 0 {
		t.Fatalf("disabled persister queued a root")
	}
	if err := p.SaveAll(context.Background()); !errors.Is(err, ErrNoAdapter) {
		t.Fatalf("expected ErrNoAdapter, got %v", err)
	}
}
