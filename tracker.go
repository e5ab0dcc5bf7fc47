package reactive

import "sync"

// DefaultMaxPathLength caps the segment count of tracked reads.
const DefaultMaxPathLength = 20

// Capture lists the paths read during one tracked evaluation, in first-read
// order without duplicates.
type Capture struct {
	Paths []Path
}

// SubscriptionPaths expands every captured path into its cumulative prefixes
// ("a", "a.b", "a.b.c"), deduplicated in first-seen order.
func (c Capture) SubscriptionPaths() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, path := range c.Paths {
		for _, prefix := range path.Cumulative() {
			if _, ok := seen[prefix]; ok {
				continue
			}
			seen[prefix] = struct{}{}
			out = append(out, prefix)
		}
	}
	return out
}

type frame struct {
	paths []Path
	seen  map[string]struct{}
}

func (f *frame) add(path Path) bool {
	key := path.String()
	if _, ok := f.seen[key]; ok {
		return false
	}
	f.seen[key] = struct{}{}
	f.paths = append(f.paths, path)
	return true
}

// Tracker captures the paths read while a selector runs. Tracking is scoped
// to one synchronous call; nested Track calls push a frame and their paths
// also count towards the enclosing capture.
type Tracker struct {
	mu            sync.Mutex
	frames        []*frame
	skip          int
	maxPathLength int
	onRecord      func(Path)
}

// NewTracker constructs a tracker ignoring reads deeper than maxPathLength
// segments.
func NewTracker(maxPathLength int) *Tracker {
	if maxPathLength <= 0 {
		maxPathLength = DefaultMaxPathLength
	}
	return &Tracker{maxPathLength: maxPathLength}
}

// Track runs fn once with tracking enabled and returns its result together
// with the captured paths.
func (t *Tracker) Track(fn func() any) (result any, capture Capture) {
	current := &frame{seen: make(map[string]struct{})}
	t.mu.Lock()
	t.frames = append(t.frames, current)
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.frames = t.frames[:len(t.frames)-1]
		if n := len(t.frames); n > 0 {
			outer := t.frames[n-1]
			for _, path := range current.paths {
				outer.add(path)
			}
		}
		t.mu.Unlock()
		capture = Capture{Paths: current.paths}
	}()

	if fn != nil {
		result = fn()
	}
	return result, capture
}

// RecordRead adds path to the innermost capture. It is a no-op outside Track,
// inside Silence, and for paths longer than the configured maximum.
func (t *Tracker) RecordRead(path Path) {
	t.mu.Lock()
	if len(t.frames) == 0 || t.skip > 0 || len(path) > t.maxPathLength {
		t.mu.Unlock()
		return
	}
	added := t.frames[len(t.frames)-1].add(append(Path(nil), path...))
	hook := t.onRecord
	t.mu.Unlock()

	if added && hook != nil {
		hook(path)
	}
}

// Silence runs fn with read recording suspended.
func (t *Tracker) Silence(fn func()) {
	t.mu.Lock()
	t.skip++
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.skip--
		t.mu.Unlock()
	}()
	fn()
}

// Active reports whether a tracked evaluation is running.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.frames) > 0 && t.skip == 0
}

func (t *Tracker) setOnRecord(fn func(Path)) {
	t.mu.Lock()
	t.onRecord = fn
	t.mu.Unlock()
}
