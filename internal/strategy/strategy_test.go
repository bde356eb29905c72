package strategy

import (
	"errors"
	"reflect"
	"testing"

	"ore-autominer/internal/ev"
)

func scored(totals map[int]uint64, deploy, tip uint64) ev.Result {
	var arr [ev.NumSlots]uint64
	for i, v := range totals {
		arr[i] = v
	}
	return ev.Compute(arr, deploy, tip)
}

func TestBestEVPicksEmptySlot(t *testing.T) {
	totals := map[int]uint64{}
	for i := 0; i < ev.NumSlots; i++ {
		if i != 3 {
			totals[i] = 5_000_000_000 / 24
		}
	}
	d := Select(BestEV, scored(totals, 100_000_000, 1_000_000), 1)
	if d.Action != ActionDeploy || !reflect.DeepEqual(d.Blocks, []int{3}) {
		t.Fatalf("decision = %+v, want deploy [3]", d)
	}
	if d.EV <= 0 {
		t.Fatalf("EV = %v, want positive", d.EV)
	}
}

func TestBestEVSkipsWhenAllNegative(t *testing.T) {
	d := Select(BestEV, scored(map[int]uint64{0: 1000}, 100_000_000, 10_000_000), 3)
	if d.Action != ActionSkip || d.Reason != ReasonNegativeEV {
		t.Fatalf("decision = %+v, want skip negative_ev", d)
	}
	if len(d.Blocks) != 0 {
		t.Fatalf("skip must carry no blocks, got %v", d.Blocks)
	}
}

func TestBestEVRanksAndBreaksTiesByIndex(t *testing.T) {
	totals := map[int]uint64{}
	for i := 0; i < ev.NumSlots; i++ {
		totals[i] = 10_000_000_000
	}
	totals[5] = 0
	d := Select(BestEV, scored(totals, 100_000_000, 1_000_000), 3)
	if !reflect.DeepEqual(d.Blocks, []int{5, 0, 1}) {
		t.Fatalf("blocks = %v, want [5 0 1]", d.Blocks)
	}
}

func TestConservativeAndAggressiveOrderByStake(t *testing.T) {
	totals := map[int]uint64{}
	for i := 0; i < ev.NumSlots; i++ {
		totals[i] = uint64(i+1) * 100_000_000
	}
	res := scored(totals, 100_000_000, 0)

	cons := Select(Conservative, res, 2)
	if !reflect.DeepEqual(cons.Blocks, []int{0, 1}) {
		t.Fatalf("conservative = %v, want [0 1]", cons.Blocks)
	}
	aggr := Select(Aggressive, res, 2)
	if !reflect.DeepEqual(aggr.Blocks, []int{24, 23}) {
		t.Fatalf("aggressive = %v, want [24 23]", aggr.Blocks)
	}
}

func TestStakeStrategiesExcludeNegativeEV(t *testing.T) {
	res := scored(map[int]uint64{0: 1}, 100_000_000, 50_000_000)
	for _, name := range []Name{Conservative, Aggressive} {
		d := Select(name, res, 5)
		if d.Action != ActionSkip || d.Reason != ReasonNegativeEV {
			t.Fatalf("%s decision = %+v, want skip", name, d)
		}
	}
}

func TestSelectNeverExceedsNumBlocks(t *testing.T) {
	res := scored(map[int]uint64{0: 9_000_000_000}, 1, 0)
	for _, name := range []Name{BestEV, Conservative, Aggressive} {
		d := Select(name, res, 40)
		if len(d.Blocks) > ev.NumSlots {
			t.Fatalf("%s picked %d blocks", name, len(d.Blocks))
		}
		d = Select(name, res, 0)
		if len(d.Blocks) > 1 {
			t.Fatalf("%s with num_blocks=0 picked %d blocks", name, len(d.Blocks))
		}
	}
}

func TestParse(t *testing.T) {
	if n, err := Parse("aggressive"); err != nil || n != Aggressive {
		t.Fatalf("Parse(aggressive) = %q, %v", n, err)
	}
	if _, err := Parse("yolo"); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("Parse(yolo) err = %v", err)
	}
}
