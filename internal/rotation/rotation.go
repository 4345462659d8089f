// Package rotation decides whose turn a rotating task is. Everything here is a
// pure function of the stored member order, the last completed turn and the
// per-user skip counters; callers persist the results.
package rotation

import (
	"fmt"
	"slices"
)

// Input is the state needed to pick the next member.
type Input struct {
	Order []int64
	// Last is the member whose turn was completed most recently. Zero means none.
	Last     int64
	Skips    map[int64]int
	Excluded map[int64]bool
}

// Selection is the outcome of Next.
type Selection struct {
	UserID int64
	OK     bool
	// Consumed lists members passed over because they held a skip token.
	// Each entry stands for one token. Always empty when previewing.
	Consumed []int64
	Fallback bool
}

// StartIndex is the position the walk begins at: the first member when last
// is unknown, otherwise the position after last, wrapping around.
func StartIndex(order []int64, last int64) int {
	if len(order) == 0 || last == 0 {
		return 0
	}
	idx := slices.Index(order, last)
	if idx < 0 {
		return 0
	}
	return (idx + 1) % len(order)
}

// Next picks the member after in.Last. Excluded members are treated as absent.
// Members holding skip tokens are passed over; with consume set they are
// reported in Consumed so the caller can decrement their counters. If every
// selectable member holds a token the first selectable member from the start
// index is chosen and nothing is consumed.
func Next(in Input, consume bool) Selection {
	n := len(in.Order)
	if n == 0 {
		return Selection{}
	}
	start := StartIndex(in.Order, in.Last)
	var (
		skipped  []int64
		fallback int64
		found    bool
	)
	for i := 0; i < n; i++ {
		id := in.Order[(start+i)%n]
		if in.Excluded[id] {
			continue
		}
		if !found {
			fallback = id
			found = true
		}
		if in.Skips[id] > 0 {
			skipped = append(skipped, id)
			continue
		}
		sel := Selection{UserID: id, OK: true}
		if consume {
			sel.Consumed = skipped
		}
		return sel
	}
	if !found {
		return Selection{}
	}
	return Selection{UserID: fallback, OK: true, Fallback: true}
}

// First is the member a fresh rotation starts with.
func First(order []int64, excluded map[int64]bool) (int64, bool) {
	sel := Next(Input{Order: order, Excluded: excluded}, false)
	return sel.UserID, sel.OK
}

// Swap returns a copy of order with the positions of a and b exchanged.
func Swap(order []int64, a, b int64) ([]int64, error) {
	if a == b {
		return nil, fmt.Errorf("cannot swap user %d with itself", a)
	}
	ia := slices.Index(order, a)
	ib := slices.Index(order, b)
	if ia < 0 {
		return nil, fmt.Errorf("user %d is not in the rotation", a)
	}
	if ib < 0 {
		return nil, fmt.Errorf("user %d is not in the rotation", b)
	}
	out := slices.Clone(order)
	out[ia], out[ib] = out[ib], out[ia]
	return out, nil
}

// Countdown tracks a one-cycle swap.
type Countdown struct {
	Original  []int64
	Remaining int
}

// NewCountdown starts a one-cycle swap over order: it spans one full
// traversal, one decrement per completion.
func NewCountdown(order []int64) Countdown {
	return Countdown{Original: slices.Clone(order), Remaining: len(order)}
}

// Tick records one completion. It returns the updated countdown and whether
// the original order must be restored now.
func (c Countdown) Tick() (Countdown, bool) {
	c.Remaining--
	if c.Remaining <= 0 {
		c.Remaining = 0
		return c, true
	}
	return c, false
}

// Validate checks a member list for duplicates and zero ids.
func Validate(order []int64) error {
	seen := make(map[int64]bool, len(order))
	for _, id := range order {
		if id <= 0 {
			return fmt.Errorf("invalid user id %d in rotation", id)
		}
		if seen[id] {
			return fmt.Errorf("user %d appears twice in rotation", id)
		}
		seen[id] = true
	}
	return nil
}
