// Package hydrate turns plain stored payloads into typed values, with hooks
// for migrating the payload before decoding and adjusting the result after.
package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/goliatone/go-reactive/layering"
)

// Context identifies the payload being decoded.
type Context struct {
	Path string
	Key  string
}

// PreHook rewrites a map payload before decoding. Returning nil keeps the
// payload it was given.
type PreHook func(Context, map[string]any) (map[string]any, error)

// PostHook adjusts or validates the decoded value.
type PostHook[T any] func(Context, *T) error

// CustomDecoder replaces the JSON round trip.
type CustomDecoder[T any] func(Context, any) (T, error)

// DecoderOption configures a Decoder.
type DecoderOption[T any] func(*Decoder[T])

// Decoder converts maps, sequences and scalars into T. Payloads that already
// have type T skip the JSON round trip unless a JSON option is set.
type Decoder[T any] struct {
	pre       []PreHook
	post      []PostHook[T]
	custom    CustomDecoder[T]
	useNumber bool
	strict    bool
}

func WithPreHook[T any](hook PreHook) DecoderOption[T] {
	return func(d *Decoder[T]) {
		if hook != nil {
			d.pre = append(d.pre, hook)
		}
	}
}

func WithPostHook[T any](hook PostHook[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		if hook != nil {
			d.post = append(d.post, hook)
		}
	}
}

// WithUseNumber decodes numbers into json.Number.
func WithUseNumber[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) { d.useNumber = true }
}

// WithDisallowUnknownFields rejects object keys T has no field for.
func WithDisallowUnknownFields[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) { d.strict = true }
}

func WithCustomDecoder[T any](decoder CustomDecoder[T]) DecoderOption[T] {
	return func(d *Decoder[T]) { d.custom = decoder }
}

func NewDecoder[T any](opts ...DecoderOption[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode runs the pre-hooks on a copy of map payloads, decodes, then runs the
// post-hooks. payload is never mutated.
func (d *Decoder[T]) Decode(ctx Context, payload any) (T, error) {
	var zero T

	payload, err := d.migrate(ctx, payload)
	if err != nil {
		return zero, err
	}
	result, err := d.decode(ctx, payload)
	if err != nil {
		return zero, err
	}
	for _, hook := range d.post {
		if err := hook(ctx, &result); err != nil {
			return zero, fmt.Errorf("hydrate: post-hook for %q failed: %w", ctx.Path, err)
		}
	}
	return result, nil
}

func (d *Decoder[T]) migrate(ctx Context, payload any) (any, error) {
	m, ok := payload.(map[string]any)
	if !ok || len(d.pre) == 0 {
		return payload, nil
	}
	current := layering.CloneMap(m)
	for _, hook := range d.pre {
		next, err := hook(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("hydrate: pre-hook for %q failed: %w", ctx.Path, err)
		}
		if next != nil {
			current = next
		}
	}
	return current, nil
}

func (d *Decoder[T]) decode(ctx Context, payload any) (T, error) {
	if d.custom != nil {
		out, err := d.custom(ctx, payload)
		if err != nil {
			return out, fmt.Errorf("hydrate: custom decoder for %q failed: %w", ctx.Path, err)
		}
		return out, nil
	}
	if typed, ok := payload.(T); ok && !d.useNumber && !d.strict {
		return typed, nil
	}

	var out T
	data, err := json.Marshal(payload)
	if err != nil {
		return out, fmt.Errorf("hydrate: marshal payload for %q: %w", ctx.Path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if d.useNumber {
		dec.UseNumber()
	}
	if d.strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("hydrate: decode %q: %w", ctx.Path, err)
	}
	return out, nil
}
