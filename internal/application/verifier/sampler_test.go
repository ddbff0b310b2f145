package verifier

import (
	"testing"

	"github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/proofstore"
)

func sampleIntervals(n, perEpoch int) []proofstore.Interval {
	out := make([]proofstore.Interval, n)
	for i := range out {
		out[i] = proofstore.Interval{Index: i, Epoch: i / perEpoch}
	}
	return out
}

func asSet(indices []int) map[int]bool {
	s := make(map[int]bool, len(indices))
	for _, i := range indices {
		s[i] = true
	}
	return s
}

func TestSelectFullWhenBudgetNonPositive(t *testing.T) {
	intervals := sampleIntervals(10, 5)
	for _, budget := range []int{0, -1} {
		got := Sampler{Budget: budget, Seed: 1}.Select(intervals)
		if len(got) != 10 {
			t.Fatalf("budget %d selected %d intervals, expected all 10", budget, len(got))
		}
	}
}

func TestSelectRespectsBudgetPerEpoch(t *testing.T) {
	intervals := sampleIntervals(12, 4) // 3 epochs of 4
	got := Sampler{Budget: 2, Seed: 7}.Select(intervals)
	if len(got) != 6 {
		t.Fatalf("selected %d intervals, expected 6", len(got))
	}

	perEpoch := map[int]int{}
	for _, idx := range got {
		perEpoch[idx/4]++
	}
	for epoch, count := range perEpoch {
		if count != 2 {
			t.Errorf("epoch %d got %d selections, expected 2", epoch, count)
		}
	}
}

func TestSelectIsDeterministic(t *testing.T) {
	intervals := sampleIntervals(20, 10)
	a := Sampler{Budget: 3, Seed: 11}.Select(intervals)
	b := Sampler{Budget: 3, Seed: 11}.Select(intervals)

	if len(a) != len(b) {
		t.Fatalf("selection sizes differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("selection differs at %d: %d vs %d", i, a[i], b[i])
		}
	}
}

func TestSelectMonotonicRefinement(t *testing.T) {
	intervals := sampleIntervals(30, 10)

	prev := map[int]bool{}
	for q := 1; q <= 10; q++ {
		selected := Sampler{Budget: q, Seed: 5}.Select(intervals)
		cur := asSet(selected)
		for idx := range prev {
			if !cur[idx] {
				t.Fatalf("interval %d selected at budget %d but not at %d", idx, q-1, q)
			}
		}
		prev = cur
	}

	full := asSet(Sampler{Budget: 0, Seed: 5}.Select(intervals))
	for idx := range prev {
		if !full[idx] {
			t.Fatalf("budgeted selection contains %d, absent from full selection", idx)
		}
	}
}

func TestSelectBudgetLargerThanEpoch(t *testing.T) {
	intervals := sampleIntervals(6, 3)
	got := Sampler{Budget: 99, Seed: 2}.Select(intervals)
	if len(got) != 6 {
		t.Fatalf("selected %d intervals, expected all 6", len(got))
	}
}
