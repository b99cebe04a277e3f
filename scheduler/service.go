package scheduler

import (
	"github.com/pranith/usimm/channel"
	"github.com/pranith/usimm/issuer"
	"github.com/pranith/usimm/request"
)

// ServiceQuality approximates the source's TAGE-based service-quality
// scheduler without reproducing its tagged geometric-history value
// predictor (that predictor's internals were not available to ground
// this port against in full - see DESIGN.md). In its place, each
// time the read queue is scanned a thread accrues one priority ticket
// per unserved read it has queued (an aging scheme standing in for
// the predictor's confidence-weighted priority), and the
// highest-ticket issuable read wins, with its thread's tickets reset
// when its COL_READ issues. No per-bank request counts are kept and
// no speculative ACT is ever issued.
type ServiceQuality struct {
	tickets []int64
	drain   writeDrain
}

// NewServiceQuality returns the service-quality-approximating policy
// for a channel with numRanks ranks and numThreads threads. numRanks
// is accepted to keep New's call shape uniform across policies and is
// not used.
func NewServiceQuality(numRanks, numThreads int) *ServiceQuality {
	_ = numRanks
	return &ServiceQuality{tickets: make([]int64, numThreads)}
}

// Name implements Policy.
func (*ServiceQuality) Name() string { return "service" }

// Tick implements Policy.
func (s *ServiceQuality) Tick(c *channel.Channel, now int64) (issuer.Command, bool) {
	s.drain.update(c)
	if s.drain.draining {
		if cmd, ok := issueFirstIssuable(c, c.WriteQ, now); ok {
			return cmd, true
		}
	}
	if cmd, ok := s.issueHighestPriorityRead(c, now); ok {
		return cmd, true
	}
	return issueFirstIssuable(c, c.WriteQ, now)
}

func (s *ServiceQuality) issueHighestPriorityRead(c *channel.Channel, now int64) (issuer.Command, bool) {
	for i := 0; i < c.ReadQ.Len(); i++ {
		req := c.ReadQ.At(i)
		if req.Served {
			continue
		}
		if req.ThreadID >= 0 && req.ThreadID < len(s.tickets) {
			s.tickets[req.ThreadID]++
		}
	}

	best := -1
	bestTicket := int64(-1)
	for i := 0; i < c.ReadQ.Len(); i++ {
		req := c.ReadQ.At(i)
		if req.Served || !req.CommandIssuable {
			continue
		}
		tid := req.ThreadID
		if tid < 0 || tid >= len(s.tickets) {
			continue
		}
		if s.tickets[tid] > bestTicket {
			bestTicket = s.tickets[tid]
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
			s.tickets[req.ThreadID] = 0
			return issuer.Command{Kind: issuer.KindColRead, Rank: rk, Bank: bk, ReqIdx: best}, true
		}
	case request.CommandPowerUp:
		if err := c.IssuePowerUp(now, rk); err == nil {
			return issuer.Command{Kind: issuer.KindPowerUp, Rank: rk}, true
		}
	}
	return issuer.Command{}, false
}
