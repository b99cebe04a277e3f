// Package faw implements the four-activation-window tracker: a
// compact sliding record of recent activation cycles per (channel,
// rank), grounded on record_activate/is_T_FAW_met/flush_activate_record
// in original_source/src/memory_controller.c. The source keys a
// 1,000,000-entry global array by cycle%BIG_ACTIVATION_WINDOW; per the
// spec's design-note guidance this is re-architected as an owned,
// tFAW-bounded ring instead of a fixed oversized array.
package faw

import "fmt"

// MaxActivationsPerWindow is the JEDEC four-activation-window limit:
// at most 4 ACTs may be outstanding within any rolling tFAW window.
const MaxActivationsPerWindow = 4

// DuplicateActivation is returned by Record if two activations land on
// the same cycle for the same tracker - the spec calls this a
// programming error, not a recoverable condition.
type DuplicateActivation struct {
	Cycle int64
}

// Error implements the error interface.
func (e DuplicateActivation) Error() string {
	return fmt.Sprintf("faw: duplicate activation recorded at cycle %d", e.Cycle)
}

// Tracker is a per-(channel,rank) sliding window of activation
// timestamps bounded by tFAW.
type Tracker struct {
	tFAW int64
	hist []int64 // ascending activation cycles, oldest first
}

// New returns a Tracker for the given tFAW (in processor-cycle units).
func New(tFAW int64) *Tracker {
	return &Tracker{tFAW: tFAW, hist: make([]int64, 0, MaxActivationsPerWindow+1)}
}

// prune drops activation timestamps older than (now - tFAW], lazily,
// the way the source flushes stale entries on each DRAM tick rather
// than eagerly on every lookup.
func (t *Tracker) prune(now int64) {
	i := 0
	for i < len(t.hist) && t.hist[i] <= now-t.tFAW {
		i++
	}
	if i > 0 {
		t.hist = append(t.hist[:0], t.hist[i:]...)
	}
}

// CanActivate reports whether a new ACT at cycle now would keep the
// count of activations within (now-tFAW, now] at or below
// MaxActivationsPerWindow - 1 (i.e. there is room for one more).
func (t *Tracker) CanActivate(now int64) bool {
	t.prune(now)
	return len(t.hist) < MaxActivationsPerWindow
}

// Record appends an activation at cycle now. The caller must have
// already confirmed CanActivate(now); Record itself only guards
// against the same cycle being recorded twice, which the spec calls
// out explicitly as a programming error rather than a legal event.
func (t *Tracker) Record(now int64) error {
	t.prune(now)
	if len(t.hist) > 0 && t.hist[len(t.hist)-1] == now {
		return DuplicateActivation{Cycle: now}
	}
	t.hist = append(t.hist, now)
	return nil
}

// Len reports how many activations are currently recorded within the
// window (after lazily pruning as of now). Exposed for tests and
// Debug dumps, not needed by the core scheduling path.
func (t *Tracker) Len(now int64) int {
	t.prune(now)
	return len(t.hist)
}
