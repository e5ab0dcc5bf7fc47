package persist

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-reactive/layering"
	"github.com/goliatone/go-reactive/pkg/storage"
	"github.com/google/go-cmp/cmp"
)

func seed(t *testing.T, adapter storage.Adapter, entries map[string]string) {
	t.Helper()
	for key, value := range entries {
		if err := adapter.Set(context.Background(), key, []byte(value)); err != nil {
			t.Fatalf("seed %q: %v", key, err)
		}
	}
}

func TestPlanSyncSlicesOverrideBlob(t *testing.T) {
	adapter := storage.NewMemoryAdapter()
	seed(t, adapter, map[string]string{
		"persisted_state":      `{"user":{"name":"X","age":3}}`,
		"persisted_state_user": `{"name":"Y"}`,
	})
	initial := map[string]any{
		"user":  map[string]any{"name": "default"},
		"theme": "light",
	}
	p := New(Config{Enabled: true}, adapter, &mapSource{})

	merged, report := p.PlanSync(context.Background(), initial)

	want := map[string]any{
		"user":  map[string]any{"name": "Y"},
		"theme": "light",
	}
	if diff := cmp.Diff(want, merged); diff != "" {
		t.Fatalf("merged mismatch (-want +got):\n%s", diff)
	}
	if !report.Blob || report.Strategy != StrategySync {
		t.Fatalf("unexpected report: %+v", report)
	}
	if initial["user"].(map[string]any)["name"] != "default" {
		t.Fatalf("initial state mutated: %v", initial)
	}
}

func TestPlanSyncParentFirstAndCoveredSlicesSkipped(t *testing.T) {
	adapter := storage.NewMemoryAdapter()
	seed(t, adapter, map[string]string{
		"persisted_state_user.prefs": `{"color":"stale"}`,
		"persisted_state_user":       `{"prefs":{"color":"blue"}}`,
		"persisted_state_settings.a": `{"v":1}`,
		"persisted_state_broken":     `{not json`,
	})
	initial := map[string]any{"settings": map[string]any{"b": 2}}
	p := New(Config{Enabled: true}, adapter, &mapSource{})

	merged, report := p.PlanSync(context.Background(), initial)

	want := map[string]any{
		"user":     map[string]any{"prefs": map[string]any{"color": "blue"}},
		"settings": map[string]any{"a": map[string]any{"v": float64(1)}, "b": 2},
	}
	if diff := cmp.Diff(want, merged); diff != "" {
		t.Fatalf("merged mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"user", "settings.a"}, report.Applied); diff != "" {
		t.Fatalf("applied mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"broken", "user.prefs"}, report.Skipped); diff != "" {
		t.Fatalf("skipped mismatch (-want +got):\n%s", diff)
	}
	if _, ok := initial["settings"].(map[string]any)["a"]; ok {
		t.Fatalf("initial state mutated: %v", initial)
	}
}

func TestPlanSyncSkipsSlicesOutsidePolicy(t *testing.T) {
	adapter := storage.NewMemoryAdapter()
	seed(t, adapter, map[string]string{
		"persisted_state_user": `{"name":"Y"}`,
		"persisted_state_cart": `{"items":[1]}`,
	})
	p := New(Config{Enabled: true, Paths: []string{"user"}}, adapter, &mapSource{})

	merged, _ := p.PlanSync(context.Background(), map[string]any{})
	if _, ok := merged["cart"]; ok {
		t.Fatalf("expected cart slice ignored, got %v", merged)
	}
	if merged["user"] == nil {
		t.Fatalf("expected user slice applied")
	}
}

func TestPlanSyncDisabledReturnsCopy(t *testing.T) {
	initial := map[string]any{"a": map[string]any{"b": 1}}
	p := New(Config{}, storage.NewMemoryAdapter(), &mapSource{})

	merged, report := p.PlanSync(context.Background(), initial)
	merged["a"].(map[string]any)["b"] = 2
	if initial["a"].(map[string]any)["b"] != 1 || len(report.Applied) != 0 {
		t.Fatalf("expected detached copy and empty report")
	}
}

type prewarmAdapter struct {
	*storage.MemoryAdapter
	warmed bool
}

func (a *prewarmAdapter) Prewarm(context.Context) error {
	a.warmed = true
	return nil
}

func TestHydrateAsyncWritesThroughWriterAndSuppressesEnqueue(t *testing.T) {
	adapter := &prewarmAdapter{MemoryAdapter: storage.NewMemoryAdapter()}
	seed(t, adapter, map[string]string{
		"persisted_state":      `{"theme":"dark","user":{"name":"X"}}`,
		"persisted_state_user": `{"name":"Y"}`,
	})
	p := New(Config{Enabled: true}, adapter, &mapSource{root: map[string]any{}})

	type write struct {
		Path  string
		Value any
	}
	var writes []write
	var pendingDuring []string
	writer := WriterFunc(func(path []string, value any) {
		if !p.Hydrating() {
			t.Errorf("write outside hydration")
		}
		writes = append(writes, write{Path: strings.Join(path, "."), Value: value})
		p.Enqueue(path)
		pendingDuring = append(pendingDuring, p.Pending()...)
	})

	report, err := p.HydrateAsync(context.Background(), writer)
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if !adapter.warmed {
		t.Fatalf("expected prewarm before reads")
	}

	want := []write{
		{"theme", "dark"},
		{"user", map[string]any{"name": "X"}},
		{"user", map[string]any{"name": "Y"}},
	}
	if diff := cmp.Diff(want, writes); diff != "" {
		t.Fatalf("writes mismatch (-want +got):\n%s", diff)
	}
	if len(pendingDuring) != 0 {
		t.Fatalf("hydration writes were enqueued: %v", pendingDuring)
	}
	if !p.IsHydrated() || p.Hydrating() {
		t.Fatalf("expected hydrated and not hydrating")
	}
	select {
	case <-p.Hydrated():
	default:
		t.Fatalf("expected hydrated channel closed")
	}
	if diff := cmp.Diff([]string{"user"}, report.Applied); diff != "" {
		t.Fatalf("applied mismatch (-want +got):\n%s", diff)
	}
}

func TestHydrateAsyncMergesBlobLikePlanSync(t *testing.T) {
	stored := map[string]string{
		"persisted_state": `{"user":{"name":"X"},"theme":"dark"}`,
	}
	initial := map[string]any{
		"user":  map[string]any{"name": "A", "age": float64(1)},
		"count": float64(2),
	}

	syncAdapter := storage.NewMemoryAdapter()
	seed(t, syncAdapter, stored)
	planned, _ := New(Config{Enabled: true}, syncAdapter, &mapSource{}).PlanSync(context.Background(), initial)

	asyncAdapter := storage.NewMemoryAdapter()
	seed(t, asyncAdapter, stored)
	source := &mapSource{root: layering.CloneMap(initial)}
	p := New(Config{Enabled: true}, asyncAdapter, source)
	writer := WriterFunc(func(path []string, value any) {
		source.set(strings.Join(path, "."), value)
	})
	if _, err := p.HydrateAsync(context.Background(), writer); err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	want := map[string]any{
		"user":  map[string]any{"name": "X", "age": float64(1)},
		"theme": "dark",
		"count": float64(2),
	}
	if diff := cmp.Diff(want, planned); diff != "" {
		t.Fatalf("sync root mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, source.Document()); diff != "" {
		t.Fatalf("async root mismatch (-want +got):\n%s", diff)
	}
}

func TestHydrateAsyncStopsOnCancelledContext(t *testing.T) {
	adapter := storage.NewMemoryAdapter()
	seed(t, adapter, map[string]string{"persisted_state_user": `{"name":"Y"}`})
	p := New(Config{Enabled: true}, adapter, &mapSource{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.HydrateAsync(ctx, WriterFunc(func([]string, any) {
		t.Errorf("unexpected write after cancellation")
	}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !p.IsHydrated() {
		t.Fatalf("expected gate opened even after cancellation")
	}
}

func TestMigrationRewritesSlices(t *testing.T) {
	adapter := storage.NewMemoryAdapter()
	seed(t, adapter, map[string]string{"persisted_state_user": `{"fullname":"Ada"}`})
	migrate := func(root string, payload map[string]any) (map[string]any, error) {
		if root != "user" {
			return nil, nil
		}
		if name, ok := payload["fullname"]; ok {
			payload["name"] = name
			delete(payload, "fullname")
		}
		return payload, nil
	}
	p := New(Config{Enabled: true}, adapter, &mapSource{}, WithMigration(migrate))

	merged, _ := p.PlanSync(context.Background(), nil)
	if diff := cmp.Diff(map[string]any{"user": map[string]any{"name": "Ada"}}, merged); diff != "" {
		t.Fatalf("merged mismatch (-want +got):\n%s", diff)
	}
}

func TestFailingMigrationSkipsSlice(t *testing.T) {
	adapter := storage.NewMemoryAdapter()
	seed(t, adapter, map[string]string{"persisted_state_user": `{"v":1}`})
	p := New(Config{Enabled: true}, adapter, &mapSource{}, WithMigration(func(string, map[string]any) (map[string]any, error) {
		return nil, errors.New("unsupported version")
	}))

	merged, report := p.PlanSync(context.Background(), map[string]any{})
	if len(merged) != 0 || len(report.Applied) != 0 {
		t.Fatalf("expected slice skipped, got %v %+v", merged, report)
	}
}

func TestYAMLCodecRoundTrip(t *testing.T) {
	adapter := storage.NewMemoryAdapter()
	source := &mapSource{root: map[string]any{"user": map[string]any{"name": "A", "tags": []any{"x"}}}}
	p := New(Config{Enabled: true}, adapter, source, WithCodec(YAMLCodec{}))
	p.MarkHydrated()

	p.Enqueue([]string{"user"})
	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	data, _, _ := adapter.Get(context.Background(), "persisted_state_user")
	if !strings.Contains(string(data), "name: A") {
		t.Fatalf("expected yaml document, got %q", data)
	}

	merged, _ := New(Config{Enabled: true}, adapter, source, WithCodec(YAMLCodec{})).PlanSync(context.Background(), nil)
	if diff := cmp.Diff(source.root, merged); diff != "" {
		t.Fatalf("yaml round trip mismatch (-want +got):\n%s", diff)
	}
}
