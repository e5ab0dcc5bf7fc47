package activity

import (
	"context"
	"strings"
	"time"
)

// DefaultChannel is stamped on events that carry no channel.
const DefaultChannel = "state"

// Config controls activity emission.
type Config struct {
	Enabled bool
	Channel string
}

// Emitter stamps defaults onto events and forwards them to hooks. A nil
// Emitter emits nothing.
type Emitter struct {
	hooks   Hooks
	channel string
	now     func() time.Time
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithClock replaces time.Now for OccurredAt stamps.
func WithClock(now func() time.Time) EmitterOption {
	return func(e *Emitter) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEmitter returns an emitter over hooks. It stays disabled unless
// cfg.Enabled is set and at least one hook is non-nil.
func NewEmitter(hooks Hooks, cfg Config, opts ...EmitterOption) *Emitter {
	e := &Emitter{channel: strings.TrimSpace(cfg.Channel), now: time.Now}
	if e.channel == "" {
		e.channel = DefaultChannel
	}
	if cfg.Enabled {
		e.hooks = hooks.Clone()
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Enabled reports whether Emit reaches any hook.
func (e *Emitter) Enabled() bool {
	return e != nil && e.hooks.Enabled()
}

// Emit fills the channel and timestamp when missing and notifies the hooks.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	if strings.TrimSpace(event.Channel) == "" {
		event.Channel = e.channel
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = e.now()
	}
	return e.hooks.Notify(ctx, event)
}
