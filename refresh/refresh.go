// Package refresh implements the per-rank refresh governor: an
// eight-refresh budget maintained over a sliding 8*tREFI window, with
// a forced-refresh escape hatch when the budget cannot otherwise be
// drained in time. Grounded on the CYCLE_VAL==next_refresh_completion_deadline
// / CYCLE_VAL==refresh_issue_deadline branch in
// original_source/src/memory_controller.c's update_memory.
package refresh

// Budget is the number of refreshes a rank must complete every
// 8*tREFI window.
const Budget = 8

// Governor tracks one rank's refresh deadlines and forced-refresh
// state. It holds no reference to banks; Controller/Channel are
// responsible for driving bank.Refresh on every bank when Tick
// reports Forced.
type Governor struct {
	tREFI int64
	tRP   int64
	tRFC  int64

	completionDeadline int64 // D
	issueDeadline      int64 // d
	numIssued          int
	forced             bool
}

// New creates a Governor whose first completion deadline is at
// 8*tREFI, matching init_memory_controller_vars.
func New(tREFI, tRP, tRFC int64) *Governor {
	g := &Governor{tREFI: tREFI, tRP: tRP, tRFC: tRFC}
	g.completionDeadline = Budget * tREFI
	g.recomputeIssueDeadline()
	return g
}

func (g *Governor) recomputeIssueDeadline() {
	g.issueDeadline = g.completionDeadline - g.tRP - int64(Budget-g.numIssued)*g.tRFC
}

// CompletionDeadline returns D, the cycle by which all eight refreshes
// for the current window must have completed.
func (g *Governor) CompletionDeadline() int64 { return g.completionDeadline }

// IssueDeadline returns d, the last cycle by which a normal (scheduler
// selected) refresh can still be issued before a forced refresh must
// fire to meet the budget. Command-issuer eligibility checks (spec
// 4.4) compare a candidate command's worst-case completion time
// against this deadline.
func (g *Governor) IssueDeadline() int64 { return g.issueDeadline }

// NumIssued returns how many of the Budget refreshes have completed
// in the current window.
func (g *Governor) NumIssued() int { return g.numIssued }

// Forced reports whether the rank is currently in forced-refresh mode
// (set by Tick, cleared at the next completion deadline).
func (g *Governor) Forced() bool { return g.forced }

// Result reports what Tick decided for this cycle.
type Result struct {
	// ForceRefreshNow is true exactly on the cycle the governor must
	// force-issue all outstanding refreshes; the caller must refresh
	// every bank on this rank and call MarkForceRefreshIssued.
	ForceRefreshNow bool
}

// Tick implements spec 4.5's three-way branch, to be called once per
// DRAM tick per rank, before queue-command updates.
func (g *Governor) Tick(now int64) Result {
	switch {
	case now == g.completionDeadline:
		g.numIssued = 0
		g.completionDeadline += Budget * g.tREFI
		g.forced = false
		g.recomputeIssueDeadline()
	case now == g.issueDeadline && g.numIssued < Budget:
		g.forced = true
		return Result{ForceRefreshNow: true}
	case now < g.issueDeadline:
		g.recomputeIssueDeadline()
	}
	return Result{}
}

// MarkForceRefreshIssued records that a forced refresh drained the
// remaining budget. The reference simulator's issue_forced_refresh_commands
// moves every bank to REFRESHING but never updates num_issued_refreshes,
// which would leave invariant 4 (num_issued_refreshes==8 at the
// completion deadline) unsatisfiable; this diverges from the source on
// that one point, as the spec's testable properties take precedence
// over an apparent omission in the reference implementation (see
// DESIGN.md).
func (g *Governor) MarkForceRefreshIssued() {
	g.numIssued = Budget
}

// RecordIssuedRefresh records one normal (non-forced) REF command
// issued by the scheduler against this rank, matching
// issue_refresh_command's num_issued_refreshes++.
func (g *Governor) RecordIssuedRefresh() {
	if g.numIssued < Budget {
		g.numIssued++
	}
}
