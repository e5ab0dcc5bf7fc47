package reactive

import "sync"

// pressureMonitor estimates memory held by wrappers and tracked paths and
// flips to high pressure once the estimate stays above the threshold for the
// configured number of consecutive readings. Recovery is smoothed the same
// way.
type pressureMonitor struct {
	mu     sync.Mutex
	cfg    MemoryConfig
	high   bool
	streak int
	last   int64
}

func newPressureMonitor(cfg MemoryConfig) *pressureMonitor {
	return &pressureMonitor{cfg: cfg}
}

func (m *pressureMonitor) estimate(entries, trackedPaths int) int64 {
	return m.cfg.BaselineBytes +
		int64(entries)*m.cfg.EntryBytes +
		int64(trackedPaths)*m.cfg.PathBytes
}

// check records one reading and reports whether pressure is high.
func (m *pressureMonitor) check(entries, trackedPaths int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg.ThresholdBytes <= 0 {
		return false
	}
	m.last = m.estimate(entries, trackedPaths)
	above := m.last > m.cfg.ThresholdBytes
	if above == m.high {
		m.streak = 0
		return m.high
	}
	m.streak++
	if m.streak >= max(m.cfg.ConsecutiveReadings, 1) {
		m.high = above
		m.streak = 0
	}
	return m.high
}

func (m *pressureMonitor) state() (high bool, estimate int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.high, m.last
}
