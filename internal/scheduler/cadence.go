package scheduler

import "time"

// PollInterval is the WAITING cadence: tighter as the round end approaches,
// slower after repeated RPC failures.
func PollInterval(slotsRemaining uint64, consecutiveFailures int) time.Duration {
	var d time.Duration
	switch {
	case slotsRemaining > 120:
		d = 250 * time.Millisecond
	case slotsRemaining > 60:
		d = 120 * time.Millisecond
	case slotsRemaining > 25:
		d = 60 * time.Millisecond
	default:
		d = 30 * time.Millisecond
	}
	switch {
	case consecutiveFailures > 6:
		d += 150 * time.Millisecond
	case consecutiveFailures >= 3:
		d += 50 * time.Millisecond
	}
	return d
}
