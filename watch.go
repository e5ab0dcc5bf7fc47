package reactive

import (
	"reflect"
	"slices"
	"sync"
)

// Watch runs selector with tracking and subscribes to every path it read.
// After any write to one of those paths the selector runs again; callback is
// invoked when the materialized result differs from the previous one. The
// subscription set follows the paths each run reads. Watch returns the first
// result and a cancel function.
func (s *Store) Watch(selector func(root *Object) any, callback func(value any)) (any, func()) {
	if selector == nil {
		return nil, func() {}
	}
	w := &watcher{store: s, selector: selector, callback: callback}
	value, paths := s.Select(selector)
	w.mu.Lock()
	w.last = materialize(value)
	w.resubscribeLocked(paths)
	w.mu.Unlock()
	return value, w.cancel
}

// WatchExpr is Watch for a selector expression. Evaluation errors after the
// first run are logged and read as nil.
func (s *Store) WatchExpr(engine, expression string, callback func(value any)) (any, func(), error) {
	program, err := s.Compile(engine, expression)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.Run(engine, program); err != nil {
		return nil, nil, err
	}
	value, cancel := s.Watch(func(root *Object) any {
		out, err := program.Run(root)
		if err != nil {
			s.logger.Warn("reactive: watched selector failed", "expr", expression, "error", err)
			return nil
		}
		return out
	}, callback)
	return value, cancel, nil
}

type watcher struct {
	store    *Store
	selector func(root *Object) any
	callback func(value any)

	mu        sync.Mutex
	paths     []string
	unsubs    []func()
	last      any
	running   bool
	dirty     bool
	cancelled bool
}

// onChange re-runs the selector. A change arriving while it runs, including
// one made by the callback, schedules one more pass instead of recursing.
func (w *watcher) onChange() {
	w.mu.Lock()
	if w.cancelled {
		w.mu.Unlock()
		return
	}
	if w.running {
		w.dirty = true
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	for {
		value, paths := w.store.Select(w.selector)
		snapshot := materialize(value)

		w.mu.Lock()
		if w.cancelled {
			w.running = false
			w.mu.Unlock()
			return
		}
		w.resubscribeLocked(paths)
		changed := !reflect.DeepEqual(snapshot, w.last)
		if changed {
			w.last = snapshot
		}
		w.mu.Unlock()

		if changed && w.callback != nil {
			w.callback(value)
		}

		w.mu.Lock()
		if !w.dirty || w.cancelled {
			w.running = false
			w.mu.Unlock()
			return
		}
		w.dirty = false
		w.mu.Unlock()
	}
}

func (w *watcher) resubscribeLocked(paths []string) {
	if slices.Equal(paths, w.paths) && w.unsubs != nil {
		return
	}
	for _, unsub := range w.unsubs {
		unsub()
	}
	w.unsubs = make([]func(), 0, len(paths))
	for _, path := range paths {
		w.unsubs = append(w.unsubs, w.store.registry.Subscribe(path, w.onChange))
	}
	w.paths = paths
}

func (w *watcher) cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancelled {
		return
	}
	w.cancelled = true
	for _, unsub := range w.unsubs {
		unsub()
	}
	w.unsubs = nil
}
