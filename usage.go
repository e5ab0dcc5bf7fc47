package reactive

import "sync"

const defaultUsageLimit = 10000

// usageStats counts reads per path and remembers which paths were read by a
// tracked evaluation. Both maps stop growing at limit distinct paths.
type usageStats struct {
	mu      sync.Mutex
	reads   map[string]int
	tracked map[string]struct{}
	limit   int
}

func newUsageStats(limit int) *usageStats {
	if limit <= 0 {
		limit = defaultUsageLimit
	}
	return &usageStats{
		reads:   make(map[string]int),
		tracked: make(map[string]struct{}),
		limit:   limit,
	}
}

func (u *usageStats) recordRead(path Path) {
	key := path.String()
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.reads[key]; ok || len(u.reads) < u.limit {
		u.reads[key]++
	}
}

func (u *usageStats) markTracked(path Path) {
	key := path.String()
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.tracked) < u.limit {
		u.tracked[key] = struct{}{}
	}
}

func (u *usageStats) wasTracked(path Path) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.tracked[path.String()]
	return ok
}

func (u *usageStats) readCount(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.reads[path]
}

func (u *usageStats) trackedCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.tracked)
}
