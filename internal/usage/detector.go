package usage

import "time"

// DefaultMinDurationSeconds is the flicker threshold: intervals must last
// strictly longer than this to be emitted.
const DefaultMinDurationSeconds = 1

// Detector turns successive samples into completed usage intervals
type Detector struct {
	MinDurationSeconds uint64
}

// OnSample applies the default detector to a single sample.
func OnSample(state State, sample Sample, now time.Time) (State, *UsageInterval) {
	return Detector{MinDurationSeconds: DefaultMinDurationSeconds}.OnSample(state, sample, now)
}

// OnSample advances state by one sample. A focus change always restarts the
// interval at now; the interval being closed is returned only when it belongs
// to a real app and lasted longer than MinDurationSeconds.
func (d Detector) OnSample(state State, sample Sample, now time.Time) (State, *UsageInterval) {
	if sample.App == state.Current {
		return state, nil
	}

	next := State{Current: sample.App, StartedAt: now}

	if state.Current == NoApp {
		return next, nil
	}

	secs := wholeSeconds(now.Sub(state.StartedAt))
	if secs <= d.MinDurationSeconds {
		return next, nil
	}

	return next, &UsageInterval{
		App:             state.Current,
		StartedAt:       state.StartedAt,
		EndedAt:         now,
		DurationSeconds: secs,
	}
}

func wholeSeconds(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d / time.Second)
}
