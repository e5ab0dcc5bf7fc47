// Package activity fans out lifecycle events emitted by the persistence layer
// (slices persisted or failed, hydration, clears) to pluggable hooks.
package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event is one persistence occurrence. IDs are strings so call sites do not
// depend on a UUID type.
type Event struct {
	Verb       string
	ActorID    string
	TenantID   string
	ObjectType string
	ObjectID   string
	Channel    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// routable reports whether the event names a verb and an object.
func (e Event) routable() bool {
	return e.Verb != "" && e.ObjectType != "" && e.ObjectID != ""
}

// ActivityHook receives normalized events.
type ActivityHook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc adapts a function to ActivityHook.
type HookFunc func(ctx context.Context, event Event) error

func (fn HookFunc) Notify(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Hooks is an ordered set of hooks notified together.
type Hooks []ActivityHook

// Enabled reports whether any hook is registered.
func (h Hooks) Enabled() bool {
	return len(h) > 0
}

// Notify normalizes event and hands it to every hook in order. Events without
// a verb or object are dropped. A failing or panicking hook does not stop the
// others; their errors are joined.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	if len(h) == 0 {
		return nil
	}
	event = NormalizeEvent(event)
	if !event.routable() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for i, hook := range h {
		if hook == nil {
			continue
		}
		if err := notifyOne(ctx, hook, event); err != nil {
			errs = append(errs, fmt.Errorf("activity: hook %d (%s): %w", i, event.Verb, err))
		}
	}
	return errors.Join(errs...)
}

func notifyOne(ctx context.Context, hook ActivityHook, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return hook.Notify(ctx, event)
}

// Clone returns the non-nil hooks, or nil when there are none.
func (h Hooks) Clone() Hooks {
	var out Hooks
	for _, hook := range h {
		if hook != nil {
			out = append(out, hook)
		}
	}
	return out
}

// NormalizeEvent trims every identifier, copies metadata and stamps a
// missing OccurredAt with the current time.
func NormalizeEvent(event Event) Event {
	for _, field := range []*string{
		&event.Verb, &event.ActorID, &event.TenantID,
		&event.ObjectType, &event.ObjectID, &event.Channel,
	} {
		*field = strings.TrimSpace(*field)
	}
	event.Metadata = cloneMetadata(event.Metadata)
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	return event
}

func cloneMetadata(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		if list, ok := value.([]string); ok {
			value = append([]string(nil), list...)
		}
		dst[key] = value
	}
	return dst
}
