package scheduler

import (
	"github.com/pranith/usimm/channel"
	"github.com/pranith/usimm/issuer"
	"github.com/pranith/usimm/request"
)

// MaxCredits is the saturating ceiling a thread's fairness credit
// balance grows back to, matching MAX_CREDITS in
// original_source/src/schedulerfair.c.
const MaxCredits = 100

// RowHitCreditWeight is the ranking multiplier applied to a
// currently-row-hit read's effective credit, so a thread with fewer
// raw credits can still win the slot if its request is already open,
// matching the 1.5x row-hit weighting that file's credit comparison
// applies.
const RowHitCreditWeight = 1.5

// Fair gives every thread a saturating per-cycle credit balance and,
// among the currently issuable reads, picks the one belonging to the
// thread with the highest effective (row-hit-weighted) credit,
// halving that thread's balance once its read issues. Writes go
// through plain FCFS: ahead of reads in write-drain mode, and
// otherwise whenever no read is issuable.
type Fair struct {
	credits []float64
	drain   writeDrain
}

// NewFair returns the credit-based fairness policy for numThreads
// threads, each starting at MaxCredits.
func NewFair(numThreads int) *Fair {
	f := &Fair{credits: make([]float64, numThreads)}
	for i := range f.credits {
		f.credits[i] = MaxCredits
	}
	return f
}

// Name implements Policy.
func (*Fair) Name() string { return "fair" }

// Tick implements Policy.
func (f *Fair) Tick(c *channel.Channel, now int64) (issuer.Command, bool) {
	for i := range f.credits {
		if f.credits[i] < MaxCredits {
			f.credits[i]++
		}
	}
	f.drain.update(c)
	if f.drain.draining {
		if cmd, ok := issueFirstIssuable(c, c.WriteQ, now); ok {
			return cmd, true
		}
		return f.issueBestRead(c, now)
	}
	if cmd, ok := f.issueBestRead(c, now); ok {
		return cmd, true
	}
	return issueFirstIssuable(c, c.WriteQ, now)
}

func (f *Fair) issueBestRead(c *channel.Channel, now int64) (issuer.Command, bool) {
	best := -1
	bestScore := -1.0
	for i := 0; i < c.ReadQ.Len(); i++ {
		req := c.ReadQ.At(i)
		if req.Served || !req.CommandIssuable {
			continue
		}
		tid := req.ThreadID
		if tid < 0 || tid >= len(f.credits) {
			continue
		}
		score := f.credits[tid]
		if req.NextCommand == request.CommandColRead {
			score *= RowHitCreditWeight
		}
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	if best < 0 {
		return issuer.Command{}, false
	}
	req := c.ReadQ.At(best)
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
		if err := c.IssueColRead(now, best); err == nil {
			f.credits[req.ThreadID] /= 2
			return issuer.Command{Kind: issuer.KindColRead, Rank: rk, Bank: bk, ReqIdx: best}, true
		}
	case request.CommandPowerUp:
		if err := c.IssuePowerUp(now, rk); err == nil {
			return issuer.Command{Kind: issuer.KindPowerUp, Rank: rk}, true
		}
	}
	return issuer.Command{}, false
}
