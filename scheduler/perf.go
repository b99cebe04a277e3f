package scheduler

import (
	"github.com/pranith/usimm/channel"
	"github.com/pranith/usimm/issuer"
	"github.com/pranith/usimm/request"
)

// Perf is FR-FCFS-like row-hit-first dispatch, but the auto-precharge
// decision is driven by a per-thread open/close threshold instead of
// a fixed hit cap: a bank is closed once the issuing thread's
// observed hit/access ratio drops to or below tRP/(tRP+tRCD), the
// point at which (per original_source/src/scheduler-perf.c) leaving a
// row open no longer pays for itself on average.
type Perf struct {
	hits     []int64
	accesses []int64
	drain    writeDrain
}

// NewPerf returns the threshold-auto-precharge policy for numThreads
// threads.
func NewPerf(numThreads int) *Perf {
	return &Perf{hits: make([]int64, numThreads), accesses: make([]int64, numThreads)}
}

// Name implements Policy.
func (*Perf) Name() string { return "perf" }

func (p *Perf) threshold(c *channel.Channel) float64 {
	rp := float64(c.Timing.TRP)
	rcd := float64(c.Timing.TRCD)
	return rp / (rp + rcd)
}

// Tick implements Policy.
func (p *Perf) Tick(c *channel.Channel, now int64) (issuer.Command, bool) {
	p.drain.update(c)
	first, second := c.ReadQ, c.WriteQ
	if p.drain.draining {
		first, second = c.WriteQ, c.ReadQ
	}
	if cmd, ok := p.issueRowHit(c, first, now); ok {
		return cmd, true
	}
	if cmd, ok := p.issueRowHit(c, second, now); ok {
		return cmd, true
	}
	if cmd, ok := issueFirstIssuable(c, first, now); ok {
		return cmd, true
	}
	return issueFirstIssuable(c, second, now)
}

func (p *Perf) issueRowHit(c *channel.Channel, q *request.Queue, now int64) (issuer.Command, bool) {
	thresh := p.threshold(c)
	for i := 0; i < q.Len(); i++ {
		req := q.At(i)
		if req.Served || !req.CommandIssuable {
			continue
		}
		rk, bk := int(req.Addr.Rank), int(req.Addr.Bank)
		tid := req.ThreadID
		switch req.NextCommand {
		case request.CommandColRead:
			if err := c.IssueColRead(now, i); err == nil {
				p.recordAccess(tid, true)
				p.maybeClose(c, now, rk, bk, tid, thresh)
				return issuer.Command{Kind: issuer.KindColRead, Rank: rk, Bank: bk, ReqIdx: i}, true
			}
		case request.CommandColWrite:
			if err := c.IssueColWrite(now, i); err == nil {
				p.recordAccess(tid, true)
				p.maybeClose(c, now, rk, bk, tid, thresh)
				return issuer.Command{Kind: issuer.KindColWrite, Rank: rk, Bank: bk, ReqIdx: i}, true
			}
		case request.CommandActivate:
			p.recordAccess(tid, false)
		}
	}
	return issuer.Command{}, false
}

func (p *Perf) recordAccess(threadID int, hit bool) {
	if threadID < 0 || threadID >= len(p.accesses) {
		return
	}
	p.accesses[threadID]++
	if hit {
		p.hits[threadID]++
	}
}

// maybeClose auto-precharges (rank,bank) in the same cycle as the COL
// command that just issued against it, once the issuing thread's
// observed hit ratio has dropped to or below thresh. Uses
// IsAutoPrechargeAllowed/IssueAutoPrecharge rather than
// IsPrechargeAllowed/IssuePrecharge: gateCommon's commandIssuedThisCycle
// check would otherwise always be true here, since IssueColRead/
// IssueColWrite has already set it this cycle - matching
// scheduler-perf.c's identical same-cycle issue_autoprecharge call.
func (p *Perf) maybeClose(c *channel.Channel, now int64, rank, bank, threadID int, thresh float64) {
	if threadID < 0 || threadID >= len(p.accesses) || p.accesses[threadID] == 0 {
		return
	}
	ratio := float64(p.hits[threadID]) / float64(p.accesses[threadID])
	if ratio <= thresh && c.IsAutoPrechargeAllowed(now, rank, bank) {
		c.IssueAutoPrecharge(now, rank, bank)
	}
}
