package reactive

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

type subscriber struct {
	id      uint64
	fn      func()
	removed atomic.Bool
}

// Registry maps dot paths to subscribers and fans out change notifications.
type Registry struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string][]*subscriber
	logger *slog.Logger
}

// NewRegistry constructs an empty registry. A nil logger discards panics
// reports.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		subs:   make(map[string][]*subscriber),
		logger: logger,
	}
}

// Subscribe registers fn for path and returns an idempotent unsubscribe.
func (r *Registry) Subscribe(path string, fn func()) func() {
	if fn == nil {
		return func() {}
	}
	r.mu.Lock()
	r.nextID++
	sub := &subscriber{id: r.nextID, fn: fn}
	r.subs[path] = append(r.subs[path], sub)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(path, sub.id) })
	}
}

func (r *Registry) remove(path string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.subs[path]
	for i, sub := range list {
		if sub.id != id {
			continue
		}
		sub.removed.Store(true)
		list = append(list[:i:i], list[i+1:]...)
		break
	}
	if len(list) == 0 {
		delete(r.subs, path)
		return
	}
	r.subs[path] = list
}

// Notify wakes subscribers affected by a write to path: the path itself, the
// parent sequence when the last segment is an index, every ancestor nearest
// first, then every descendant in lexical order. Each path fires at most once.
func (r *Registry) Notify(path string) {
	r.NotifyAll(path)
}

// NotifyAll fans out several paths in order while firing each subscribed path
// at most once across the whole call. A subscriber removed by an earlier
// callback of the same call is skipped.
func (r *Registry) NotifyAll(paths ...string) {
	if len(paths) == 0 {
		return
	}
	seen := make(map[string]struct{})
	var targets []*subscriber
	var targetPaths []string

	r.mu.Lock()
	for _, path := range paths {
		for _, match := range r.matchesLocked(path) {
			if _, ok := seen[match]; ok {
				continue
			}
			seen[match] = struct{}{}
			for _, sub := range r.subs[match] {
				targets = append(targets, sub)
				targetPaths = append(targetPaths, match)
			}
		}
	}
	r.mu.Unlock()

	for i, sub := range targets {
		r.invoke(targetPaths[i], sub)
	}
}

// matchesLocked lists subscribed paths affected by a write to path in
// notification order.
func (r *Registry) matchesLocked(path string) []string {
	var out []string
	if _, ok := r.subs[path]; ok {
		out = append(out, path)
	}
	if parent, ok := parentPath(path); ok && isIndex(lastSegment(path)) {
		if _, subscribed := r.subs[parent]; subscribed {
			out = append(out, parent)
		}
	}
	for current, ok := parentPath(path); ok; current, ok = parentPath(current) {
		if _, subscribed := r.subs[current]; subscribed {
			out = append(out, current)
		}
	}
	var descendants []string
	for candidate := range r.subs {
		if isDescendant(candidate, path) {
			descendants = append(descendants, candidate)
		}
	}
	sort.Strings(descendants)
	return append(out, descendants...)
}

func (r *Registry) invoke(path string, sub *subscriber) {
	if sub.removed.Load() {
		return
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("reactive: subscriber panicked",
				"path", path,
				"subscriber", sub.id,
				"error", fmt.Sprint(recovered),
			)
		}
	}()
	sub.fn()
}

// Count returns the total number of subscribers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, list := range r.subs {
		total += len(list)
	}
	return total
}

// Paths returns the subscribed paths in lexical order.
func (r *Registry) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.subs))
	for path := range r.subs {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}
