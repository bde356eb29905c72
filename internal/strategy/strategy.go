// Package strategy turns scored squares into a deploy-or-skip decision.
package strategy

import (
	"errors"
	"fmt"
	"sort"

	"ore-autominer/internal/ev"
)

type Name string

const (
	BestEV       Name = "best_ev"
	Conservative Name = "conservative"
	Aggressive   Name = "aggressive"
)

const (
	ActionDeploy = "deploy"
	ActionSkip   = "skip"
)

const (
	ReasonNegativeEV       = "negative_ev"
	ReasonStaleSnapshot    = "stale_snapshot"
	ReasonBudgetExceeded   = "budget_exceeded"
	ReasonSessionStopped   = "session_stopped"
	ReasonSubmissionFailed = "submission_failed"
	ReasonDeadlineMissed   = "deadline_missed"
)

var ErrUnknownStrategy = errors.New("unknown strategy")

func Parse(s string) (Name, error) {
	switch Name(s) {
	case BestEV, Conservative, Aggressive:
		return Name(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Decision is the outcome of one round. Skips always carry a reason; EV is the
// sum over the chosen blocks.
type Decision struct {
	Action string  `json:"action"`
	Blocks []int   `json:"blocks,omitempty"`
	EV     float64 `json:"ev"`
	Reason string  `json:"reason,omitempty"`
}

func Skip(reason string) Decision {
	return Decision{Action: ActionSkip, Reason: reason}
}

func (d Decision) Deploys() bool {
	return d.Action == ActionDeploy && len(d.Blocks) > 0
}

// ClampBlocks bounds a requested block count to 1..25.
func ClampBlocks(n int) int {
	if n < 1 {
		return 1
	}
	if n > ev.NumSlots {
		return ev.NumSlots
	}
	return n
}

// Select applies the named policy. It does not look at any state beyond the
// scored round.
func Select(name Name, res ev.Result, numBlocks int) Decision {
	n := ClampBlocks(numBlocks)
	var picked []int
	switch name {
	case BestEV:
		if res.BestEV < 0 {
			return Skip(ReasonNegativeEV)
		}
		picked = res.Ranked()[:n]
	case Conservative:
		picked = byStake(res, n, true)
	case Aggressive:
		picked = byStake(res, n, false)
	default:
		return Skip(ReasonNegativeEV)
	}
	if len(picked) == 0 {
		return Skip(ReasonNegativeEV)
	}
	d := Decision{Action: ActionDeploy, Blocks: picked}
	for _, i := range picked {
		d.EV += res.Slots[i].EV
	}
	return d
}

func byStake(res ev.Result, n int, ascending bool) []int {
	var candidates []int
	for _, s := range res.Slots {
		if s.EV >= 0 {
			candidates = append(candidates, s.Index)
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		sa, sb := res.Slots[candidates[a]].TotalStaked, res.Slots[candidates[b]].TotalStaked
		if ascending {
			return sa < sb
		}
		return sa > sb
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}
