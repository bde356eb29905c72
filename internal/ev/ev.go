// Package ev scores the 25 squares of a round by expected value. All amounts
// are lamports.
package ev

import "sort"

const NumSlots = 25

type SlotEV struct {
	Index           int     `json:"index"`
	TotalStaked     uint64  `json:"total_staked"`
	PotentialReward float64 `json:"potential_reward"`
	EV              float64 `json:"ev"`
}

type Result struct {
	BestIndex int              `json:"best_index"`
	BestEV    float64          `json:"best_ev"`
	Slots     [NumSlots]SlotEV `json:"slots"`
}

// SlotValue is the reward share a deposit of deploy would earn from pot if the
// slot wins, and that share averaged over the 25 outcomes minus the tip.
func SlotValue(pot, slotTotal, deploy, tip float64) (potential, ev float64) {
	denom := slotTotal + deploy
	if denom > 0 {
		potential = pot * deploy / denom
	}
	return potential, potential/NumSlots - tip
}

// Compute evaluates every slot. The pot for a slot is everything staked on
// the other 24.
func Compute(totals [NumSlots]uint64, deploy, tip uint64) Result {
	var sum float64
	for _, t := range totals {
		sum += float64(t)
	}
	var res Result
	for i, t := range totals {
		slot := float64(t)
		potential, value := SlotValue(sum-slot, slot, float64(deploy), float64(tip))
		res.Slots[i] = SlotEV{Index: i, TotalStaked: t, PotentialReward: potential, EV: value}
		if i == 0 || value > res.BestEV {
			res.BestIndex = i
			res.BestEV = value
		}
	}
	return res
}

// Ranked lists slot indices by EV descending, lower index first on ties.
func (r Result) Ranked() []int {
	idx := make([]int, NumSlots)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return r.Slots[idx[a]].EV > r.Slots[idx[b]].EV
	})
	return idx
}
