package usage

import (
	"time"
)

// AppID identifies an application by its human-readable name.
// Comparison is exact and case-sensitive.
type AppID string

const (
	// NoApp is the state before any sample has been observed. Samplers never
	// produce it, so it cannot collide with a real application.
	NoApp AppID = ""

	// SystemIdle is reported whenever the focused window cannot be queried.
	SystemIdle AppID = "System/Idle"

	// OverflowMarker prefixes the overflow bucket key. Samplers strip it from
	// app names, so the bucket never merges with a real application.
	OverflowMarker = "…"
)

// OverflowKey returns the aggregate key for apps seen after the cap is reached.
func OverflowKey(label AppID) AppID {
	return OverflowMarker + label
}

// Sample is a single observation of the foreground application
type Sample struct {
	App        AppID
	ObservedAt time.Time
}

// UsageInterval is a completed span during which one app held focus
type UsageInterval struct {
	App             AppID
	StartedAt       time.Time
	EndedAt         time.Time
	DurationSeconds uint64
}

// State is the tracker's view of the app currently holding focus
type State struct {
	Current   AppID
	StartedAt time.Time
}

// NewState returns the initial state for a tracker started at start.
func NewState(start time.Time) State {
	return State{Current: NoApp, StartedAt: start}
}

// Snapshot maps each app to its cumulative focused seconds
type Snapshot map[AppID]uint64

// Total returns the sum of all app totals.
func (s Snapshot) Total() uint64 {
	var total uint64
	for _, secs := range s {
		total += secs
	}
	return total
}
