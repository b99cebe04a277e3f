// Package scheduler selects which of a channel's issuable commands to
// actually issue on a given DRAM tick. It is grounded on the eight
// interchangeable scheduler_policy.c files in
// original_source/src/scheduler-*.c (FCFS, Close-page, FR-FCFS, Perf,
// Power-down, Stride, Fair, Service-quality), each compiled as a
// distinct translation unit in the source and selected at build time;
// here they are distinct types behind one small interface, selected
// at startup by name, in the style of the teacher's irq.Sender
// (several concrete senders behind one tiny interface the receiving
// chip depends on).
package scheduler

import (
	"fmt"

	"github.com/pranith/usimm/channel"
	"github.com/pranith/usimm/issuer"
	"github.com/pranith/usimm/request"
)

// Policy picks at most one command to issue on a channel this DRAM
// tick. Implementations must themselves call the matching
// Is<Cmd>Allowed check on channel before returning a Command - Tick
// does not re-validate, mirroring how the source's schedule() gates
// on is_*_allowed inline rather than through a second pass.
type Policy interface {
	// Name identifies the policy, matching the SCHEDULER_POLICY config
	// token that selects it.
	Name() string
	// Tick considers channel's current queue/bank state at cycle now
	// and issues at most one command via channel's Issue* methods,
	// returning the command issued and true, or an unspecified zero
	// Command and false if nothing was issuable.
	Tick(c *channel.Channel, now int64) (issuer.Command, bool)
}

// Observer is implemented by policies that need visibility into each
// read's (PC, address) pair as it is dispatched, not just the
// channel's current queue/bank state - currently only Stride, whose
// stride table has to be fed on dispatch rather than inferred from
// Tick's queue scan. The controller type-asserts a Policy to this
// rather than widening Policy itself, since no other policy needs it.
type Observer interface {
	Observe(pc, addr uint64)
}

// High/LowWatermark bound the write-drain hysteresis every policy
// shares, per spec 4.7: a channel enters write-drain mode once the
// write queue's occupancy exceeds HighWatermark (or the read queue
// goes empty), and leaves it only once occupancy falls back to
// LowWatermark or below - this asymmetry is deliberate so a channel
// does not flap between read- and write-priority every cycle the
// write queue occupancy briefly dips.
const (
	HighWatermark = 0.8
	LowWatermark  = 0.2
)

// writeDrain tracks one channel's current read/write priority mode
// under the shared hysteresis every scheduler policy applies before
// choosing which queue to scan first.
type writeDrain struct {
	draining bool
}

// update recomputes draining from the channel's current write-queue
// occupancy and whether the read queue is empty, per spec 4.7's
// "entering drain when WQ > HI_WM or RQ is empty, leaving drain when
// WQ ≤ LO_WM" rule.
func (w *writeDrain) update(c *channel.Channel) {
	occ := c.WriteQ.Occupancy()
	switch {
	case occ > HighWatermark || c.ReadQ.Len() == 0:
		w.draining = true
	case occ <= LowWatermark:
		w.draining = false
	}
}

// UnknownPolicy is returned by New when name does not match any of
// the eight known scheduler policy tokens.
type UnknownPolicy struct {
	Name string
}

// Error implements the error interface.
func (e UnknownPolicy) Error() string {
	return fmt.Sprintf("scheduler: unknown policy %q", e.Name)
}

// New constructs the named policy; name is a SCHEDULER_POLICY token
// value, matched case-sensitively against the names in the switch
// below.
func New(name string, numRanks, numBanks, numThreads int) (Policy, error) {
	switch name {
	case "fcfs":
		return NewFCFS(), nil
	case "close-page":
		return NewClosePage(), nil
	case "frfcfs":
		return NewFRFCFS(numRanks, numBanks), nil
	case "perf":
		return NewPerf(numThreads), nil
	case "pwrdn":
		return NewPowerDown(numRanks), nil
	case "stride":
		return NewStride(numThreads), nil
	case "fair":
		return NewFair(numThreads), nil
	case "service":
		return NewServiceQuality(numRanks, numThreads), nil
	default:
		return nil, UnknownPolicy{Name: name}
	}
}

// issueFirstIssuable walks q in arrival order and issues whatever
// command (ACT/PRE/COL_*) the first still-issuable request names,
// matching the plain FCFS policy's single scan.
func issueFirstIssuable(c *channel.Channel, q *request.Queue, now int64) (issuer.Command, bool) {
	for i := 0; i < q.Len(); i++ {
		req := q.At(i)
		if req.Served || !req.CommandIssuable {
			continue
		}
		rk, bk := int(req.Addr.Rank), int(req.Addr.Bank)
		switch req.NextCommand {
		case request.CommandActivate:
			if err := c.IssueActivate(now, rk, bk, int64(req.Addr.Row)); err == nil {
				return issuer.Command{Kind: issuer.KindActivate, Rank: rk, Bank: bk, Row: int64(req.Addr.Row)}, true
			}
		case request.CommandPrecharge:
			if err := c.IssuePrecharge(now, rk, bk); err == nil {
				return issuer.Command{Kind: issuer.KindPrecharge, Rank: rk, Bank: bk}, true
			}
		case request.CommandColRead:
			if err := c.IssueColRead(now, i); err == nil {
				return issuer.Command{Kind: issuer.KindColRead, Rank: rk, Bank: bk, ReqIdx: i}, true
			}
		case request.CommandColWrite:
			if err := c.IssueColWrite(now, i); err == nil {
				return issuer.Command{Kind: issuer.KindColWrite, Rank: rk, Bank: bk, ReqIdx: i}, true
			}
		case request.CommandPowerUp:
			if err := c.IssuePowerUp(now, rk); err == nil {
				return issuer.Command{Kind: issuer.KindPowerUp, Rank: rk}, true
			}
		}
	}
	return issuer.Command{}, false
}
