package rotation

import (
	"slices"
	"testing"
)

const (
	a int64 = 1
	b int64 = 2
	c int64 = 3
)

func TestNextBasicOrder(t *testing.T) {
	order := []int64{a, b, c}
	cases := []struct {
		name string
		last int64
		want int64
	}{
		{"no last", 0, a},
		{"after b", b, c},
		{"wraps after c", c, a},
		{"unknown last", 42, a},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sel := Next(Input{Order: order, Last: tc.last}, false)
			if !sel.OK || sel.UserID != tc.want {
				t.Fatalf("expected %d, got %+v", tc.want, sel)
			}
		})
	}
}

func TestNextEmptyOrder(t *testing.T) {
	if sel := Next(Input{}, true); sel.OK {
		t.Fatalf("expected no selection, got %+v", sel)
	}
}

func TestNextConsumesSkipToken(t *testing.T) {
	skips := map[int64]int{b: 1}
	sel := Next(Input{Order: []int64{a, b, c}, Last: a, Skips: skips}, true)
	if sel.UserID != c {
		t.Fatalf("expected c, got %d", sel.UserID)
	}
	if !slices.Equal(sel.Consumed, []int64{b}) {
		t.Fatalf("expected b consumed, got %v", sel.Consumed)
	}
	// caller applies the consumption
	for _, id := range sel.Consumed {
		skips[id]--
	}
	if skips[b] != 0 {
		t.Fatalf("expected b token spent, got %d", skips[b])
	}
	sel = Next(Input{Order: []int64{a, b, c}, Last: a, Skips: skips}, true)
	if sel.UserID != b || len(sel.Consumed) != 0 {
		t.Fatalf("expected b with nothing consumed, got %+v", sel)
	}
}

func TestNextPreviewDoesNotConsume(t *testing.T) {
	skips := map[int64]int{b: 1}
	first := Next(Input{Order: []int64{a, b, c}, Last: a, Skips: skips}, false)
	second := Next(Input{Order: []int64{a, b, c}, Last: a, Skips: skips}, false)
	if first.UserID != c || second.UserID != c {
		t.Fatalf("preview should be stable, got %d then %d", first.UserID, second.UserID)
	}
	if len(first.Consumed) != 0 || skips[b] != 1 {
		t.Fatalf("preview consumed tokens: %v %v", first.Consumed, skips)
	}
}

func TestNextFallbackWhenEveryoneHoldsTokens(t *testing.T) {
	skips := map[int64]int{a: 1, b: 2, c: 1}
	sel := Next(Input{Order: []int64{a, b, c}, Last: a, Skips: skips}, true)
	if !sel.OK || sel.UserID != b || !sel.Fallback {
		t.Fatalf("expected fallback to b, got %+v", sel)
	}
	if len(sel.Consumed) != 0 {
		t.Fatalf("fallback must not consume, got %v", sel.Consumed)
	}
}

func TestNextSkipsExcluded(t *testing.T) {
	excluded := map[int64]bool{b: true}
	sel := Next(Input{Order: []int64{a, b, c}, Last: a, Excluded: excluded}, true)
	if sel.UserID != c || len(sel.Consumed) != 0 {
		t.Fatalf("expected c without consumption, got %+v", sel)
	}
	// excluded last still continues after its stored position
	sel = Next(Input{Order: []int64{a, b, c}, Last: b, Excluded: excluded}, false)
	if sel.UserID != c {
		t.Fatalf("expected c after excluded b, got %d", sel.UserID)
	}
}

func TestNextAllExcluded(t *testing.T) {
	excluded := map[int64]bool{a: true, b: true}
	if sel := Next(Input{Order: []int64{a, b}, Excluded: excluded}, false); sel.OK {
		t.Fatalf("expected no selection, got %+v", sel)
	}
}

func TestFirst(t *testing.T) {
	id, ok := First([]int64{a, b, c}, map[int64]bool{a: true})
	if !ok || id != b {
		t.Fatalf("expected b, got %d %v", id, ok)
	}
}

func TestSwap(t *testing.T) {
	order := []int64{a, b, c}
	got, err := Swap(order, a, c)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []int64{c, b, a}) {
		t.Fatalf("unexpected order %v", got)
	}
	if !slices.Equal(order, []int64{a, b, c}) {
		t.Fatalf("input mutated: %v", order)
	}
	if _, err := Swap(order, a, a); err == nil {
		t.Fatalf("expected self swap error")
	}
	if _, err := Swap(order, a, 9); err == nil {
		t.Fatalf("expected missing member error")
	}
}

func TestCountdownRevertsAfterFullCycle(t *testing.T) {
	cd := NewCountdown([]int64{a, b, c})
	if cd.Remaining != 3 {
		t.Fatalf("expected 3 turns, got %d", cd.Remaining)
	}
	var revert bool
	for i := 0; i < 2; i++ {
		cd, revert = cd.Tick()
		if revert {
			t.Fatalf("reverted early at tick %d", i+1)
		}
	}
	cd, revert = cd.Tick()
	if !revert || cd.Remaining != 0 {
		t.Fatalf("expected revert on third tick, got %+v %v", cd, revert)
	}
	if !slices.Equal(cd.Original, []int64{a, b, c}) {
		t.Fatalf("original order lost: %v", cd.Original)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate([]int64{a, b}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Validate([]int64{a, a}); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if err := Validate([]int64{0}); err == nil {
		t.Fatalf("expected invalid id error")
	}
}
