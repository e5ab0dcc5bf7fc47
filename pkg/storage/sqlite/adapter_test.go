package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-reactive/pkg/storage"
)

func openMemory(t *testing.T, opts ...Option) *Adapter {
	t.Helper()
	adapter, err := Open(context.Background(), ":memory:", opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if err := adapter.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	})
	return adapter
}

func TestAdapterRoundTrip(t *testing.T) {
	ctx := context.Background()
	adapter := openMemory(t)

	if _, ok, err := adapter.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := adapter.Set(ctx, "a", []byte(`{"x":1}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := adapter.Set(ctx, "a", []byte(`{"x":2}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := adapter.Set(ctx, "b", []byte("[]")); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := adapter.Get(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(got) != `{"x":2}` {
		t.Fatalf("unexpected value %s", got)
	}

	keys, err := adapter.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, keys); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}

	if err := adapter.Remove(ctx, "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := adapter.Remove(ctx, "a"); err != nil {
		t.Fatalf("removing a missing key is not an error: %v", err)
	}
	if err := adapter.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	keys, _ = adapter.Keys(ctx)
	if len(keys) != 0 {
		t.Fatalf("expected empty table, got %v", keys)
	}
}

func TestAdapterIsSync(t *testing.T) {
	if !storage.IsSync(openMemory(t)) {
		t.Fatalf("sqlite adapter reads are synchronous")
	}
}

func TestAdapterPersistsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	first, err := Open(ctx, path, WithTable("custom_state"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.Set(ctx, "persisted_state_user", []byte(`{"name":"ada"}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := Open(ctx, path, WithTable("custom_state"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	got, ok, err := second.Get(ctx, "persisted_state_user")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(got) != `{"name":"ada"}` {
		t.Fatalf("unexpected value %s", got)
	}
}

func TestClearPrefixUsesKeys(t *testing.T) {
	ctx := context.Background()
	adapter := openMemory(t)
	for _, key := range []string{"app", "app_user", "other"} {
		if err := adapter.Set(ctx, key, []byte("1")); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	if err := storage.ClearPrefix(ctx, adapter, "app"); err != nil {
		t.Fatalf("clear prefix: %v", err)
	}
	keys, _ := adapter.Keys(ctx)
	if diff := cmp.Diff([]string{"other"}, keys); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRequiresDB(t *testing.T) {
	if _, err := New(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil db")
	}
	if _, err := Open(context.Background(), " "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
