package hydrate

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

type profile struct {
	Name  string   `json:"name"`
	Age   int      `json:"age"`
	Tags  []string `json:"tags,omitempty"`
	Theme string   `json:"theme,omitempty"`
}

func TestDecoderCases(t *testing.T) {
	cases := []struct {
		name      string
		options   []DecoderOption[profile]
		input     any
		expect    profile
		expectErr string
	}{
		{
			name:   "plain map",
			input:  map[string]any{"name": "A", "age": float64(3)},
			expect: profile{Name: "A", Age: 3},
		},
		{
			name: "pre-hook migrates legacy field",
			options: []DecoderOption[profile]{
				WithPreHook[profile](func(_ Context, payload map[string]any) (map[string]any, error) {
					if legacy, ok := payload["full_name"]; ok {
						payload["name"] = legacy
						delete(payload, "full_name")
					}
					return payload, nil
				}),
			},
			input:  map[string]any{"full_name": "Legacy"},
			expect: profile{Name: "Legacy"},
		},
		{
			name: "post-hook fills defaults",
			options: []DecoderOption[profile]{
				WithPostHook[profile](func(_ Context, p *profile) error {
					if p.Theme == "" {
						p.Theme = "light"
					}
					return nil
				}),
			},
			input:  map[string]any{"name": "B"},
			expect: profile{Name: "B", Theme: "light"},
		},
		{
			name:      "unknown fields rejected",
			options:   []DecoderOption[profile]{WithDisallowUnknownFields[profile]()},
			input:     map[string]any{"name": "C", "extra": true},
			expectErr: "unknown field",
		},
		{
			name: "pre-hook failure",
			options: []DecoderOption[profile]{
				WithPreHook[profile](func(Context, map[string]any) (map[string]any, error) {
					return nil, errors.New("bad payload")
				}),
			},
			input:     map[string]any{},
			expectErr: "bad payload",
		},
		{
			name: "custom decoder",
			options: []DecoderOption[profile]{
				WithCustomDecoder[profile](func(_ Context, payload any) (profile, error) {
					return profile{Name: payload.(string)}, nil
				}),
			},
			input:  "Z",
			expect: profile{Name: "Z"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decoder := NewDecoder(tc.options...)
			result, err := decoder.Decode(Context{Path: "user"}, tc.input)

			if tc.expectErr != "" {
				if err == nil {
					t.Fatalf("expected error %q, got nil", tc.expectErr)
				}
				if !strings.Contains(err.Error(), tc.expectErr) {
					t.Fatalf("expected error containing %q, got %v", tc.expectErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected decode error: %v", err)
			}
			if !reflect.DeepEqual(tc.expect, result) {
				t.Fatalf("decoded value mismatch:\nwant: %#v\n got: %#v", tc.expect, result)
			}
		})
	}
}

func TestDecoderPreHookDoesNotMutateInput(t *testing.T) {
	input := map[string]any{"name": "A"}
	decoder := NewDecoder(WithPreHook[profile](func(_ Context, payload map[string]any) (map[string]any, error) {
		payload["name"] = "changed"
		return payload, nil
	}))

	if _, err := decoder.Decode(Context{Path: "user"}, input); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if input["name"] != "A" {
		t.Fatalf("pre-hook mutated caller payload: %#v", input)
	}
}

func TestDecoderUseNumber(t *testing.T) {
	decoder := NewDecoder(WithUseNumber[map[string]any]())
	result, err := decoder.Decode(Context{Path: "stats"}, map[string]any{"count": 12})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := result["count"].(interface{ Int64() (int64, error) }); !ok {
		t.Fatalf("expected json.Number, got %T", result["count"])
	}
}
