// Package round reads the live ORE round into time-stamped snapshots.
package round

import (
	"errors"
	"fmt"
	"time"

	"ore-autominer/internal/ev"
)

var ErrStaleSnapshot = errors.New("stale snapshot")

// Snapshot is the round as observed at FetchedAt. Deadline is the wall-clock
// estimate of the round's end slot.
type Snapshot struct {
	RoundID     uint64
	StartSlot   uint64
	EndSlot     uint64
	CurrentSlot uint64
	Started     bool
	Deadline    time.Time
	Totals      [ev.NumSlots]uint64
	FetchedAt   time.Time
	Stale       bool
	Age         time.Duration
}

// Usable fails when the snapshot is older than threshold at now, or was
// served from cache after a failed fetch.
func (s Snapshot) Usable(threshold time.Duration, now time.Time) error {
	if s.FetchedAt.IsZero() {
		return fmt.Errorf("%w: never fetched", ErrStaleSnapshot)
	}
	age := now.Sub(s.FetchedAt)
	if s.Stale || age > threshold {
		return fmt.Errorf("%w: age %s", ErrStaleSnapshot, age)
	}
	return nil
}

func (s Snapshot) TimeLeft(now time.Time) time.Duration {
	if !s.Started {
		return 0
	}
	if d := s.Deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}

func (s Snapshot) SlotsRemaining() uint64 {
	if !s.Started || s.CurrentSlot >= s.EndSlot {
		return 0
	}
	return s.EndSlot - s.CurrentSlot
}

func (s Snapshot) TotalDeployed() uint64 {
	var sum uint64
	for _, v := range s.Totals {
		sum += v
	}
	return sum
}

// Score runs the EV engine over the snapshot's totals.
func (s Snapshot) Score(deploy, tip uint64) ev.Result {
	return ev.Compute(s.Totals, deploy, tip)
}
