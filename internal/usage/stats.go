package usage

import "sync"

// StatsConfig holds the aggregate capacity policy
type StatsConfig struct {
	// MaxApps caps the number of distinct keys; zero means unlimited.
	MaxApps int
	// OverflowLabel names the bucket that receives the time of apps seen
	// after the cap is reached. The bucket key is OverflowKey(OverflowLabel).
	OverflowLabel AppID
}

// Stats accumulates per-app focused seconds for the process lifetime
type Stats struct {
	mu       sync.RWMutex
	totals   map[AppID]uint64
	maxApps  int
	overflow AppID
}

// NewStats creates an empty aggregate
func NewStats(config StatsConfig) *Stats {
	return &Stats{
		totals:   make(map[AppID]uint64),
		maxApps:  config.MaxApps,
		overflow: OverflowKey(config.OverflowLabel),
	}
}

// Apply folds one emitted interval into the aggregate and returns the key
// that was credited. Each interval must be applied exactly once.
func (s *Stats) Apply(interval UsageInterval) AppID {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := interval.App
	if _, ok := s.totals[key]; !ok && s.full() {
		key = s.overflow
	}
	s.totals[key] += interval.DurationSeconds
	return key
}

// full reports whether a new key would exceed the cap (must be called with lock held).
// The overflow bucket itself is excluded from the count.
func (s *Stats) full() bool {
	if s.maxApps <= 0 {
		return false
	}
	n := len(s.totals)
	if _, ok := s.totals[s.overflow]; ok {
		n--
	}
	return n >= s.maxApps
}

// Get returns the cumulative seconds for app
func (s *Stats) Get(app AppID) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totals[app]
}

// Len returns the number of distinct keys
func (s *Stats) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.totals)
}

// Snapshot returns an independent copy of the aggregate
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(Snapshot, len(s.totals))
	for app, secs := range s.totals {
		snap[app] = secs
	}
	return snap
}
