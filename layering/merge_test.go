package layering

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMergeLayers(t *testing.T) {
	cases := []struct {
		name   string
		layers []any
		expect any
	}{
		{
			name:   "empty input",
			layers: nil,
			expect: nil,
		},
		{
			name: "stronger scalar wins",
			layers: []any{
				map[string]any{"theme": "dark"},
				map[string]any{"theme": "light", "lang": "en"},
			},
			expect: map[string]any{"theme": "dark", "lang": "en"},
		},
		{
			name: "nested maps merge recursively",
			layers: []any{
				map[string]any{"user": map[string]any{"name": "X"}},
				map[string]any{"user": map[string]any{"name": "default", "age": float64(1)}},
			},
			expect: map[string]any{"user": map[string]any{"name": "X", "age": float64(1)}},
		},
		{
			name: "sequences are replaced whole",
			layers: []any{
				map[string]any{"tags": []any{"a"}},
				map[string]any{"tags": []any{"b", "c"}},
			},
			expect: map[string]any{"tags": []any{"a"}},
		},
		{
			name: "typed maps are normalised",
			layers: []any{
				map[string]any{"limits": map[string]int{"max": 3}},
				map[string]any{"limits": map[string]any{"min": 1}},
			},
			expect: map[string]any{"limits": map[string]any{"max": 3, "min": 1}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := MergeLayers(tc.layers...)
			if diff := cmp.Diff(tc.expect, got); diff != "" {
				t.Fatalf("merged snapshot mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMergeLayersDoesNotMutateInputs(t *testing.T) {
	weak := map[string]any{"user": map[string]any{"name": "default"}}
	strong := map[string]any{"user": map[string]any{"name": "X"}}

	merged := MergeMaps(strong, weak)
	merged["user"].(map[string]any)["name"] = "changed"

	if weak["user"].(map[string]any)["name"] != "default" {
		t.Fatalf("weak layer mutated: %#v", weak)
	}
	if strong["user"].(map[string]any)["name"] != "X" {
		t.Fatalf("strong layer mutated: %#v", strong)
	}
}

func TestCloneDetachesNestedContainers(t *testing.T) {
	original := map[string]any{
		"items": []any{map[string]any{"id": 1}},
		"tags":  []string{"a", "b"},
	}
	clone := Clone(original).(map[string]any)
	clone["items"].([]any)[0].(map[string]any)["id"] = 2

	if original["items"].([]any)[0].(map[string]any)["id"] != 1 {
		t.Fatalf("clone shares nested map with original")
	}
	if _, ok := clone["tags"].([]any); !ok {
		t.Fatalf("expected typed slice to normalise into []any, got %T", clone["tags"])
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("plain"); got != "plain" {
		t.Fatalf("scalars must pass through, got %#v", got)
	}
	if got := Normalize([]byte("raw")); string(got.([]byte)) != "raw" {
		t.Fatalf("byte slices must pass through, got %#v", got)
	}
	got := Normalize([2]int{1, 2})
	if diff := cmp.Diff([]any{1, 2}, got); diff != "" {
		t.Fatalf("array normalisation mismatch (-want +got):\n%s", diff)
	}
	if IsContainer(42) || !IsContainer(map[string]bool{}) {
		t.Fatalf("IsContainer misclassified values")
	}
}
