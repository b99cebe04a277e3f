package scheduler

import (
	"github.com/pranith/usimm/channel"
	"github.com/pranith/usimm/issuer"
)

// strideEntry is one PC's stride-prediction state.
type strideEntry struct {
	lastAddr    uint64
	lastDelta   int64
	confirmed   bool
	predictAddr uint64
	havePredict bool
}

// Stride is FCFS augmented with per-PC stride prediction: when the
// same instruction PC has produced two consecutive equal address
// deltas, the stride is "confirmed" and the predicted next address is
// speculatively activated on a cycle where nothing else was
// issuable - grounded on the per-PC stride table and history buffer
// described in original_source/src/scheduler-stride.c's prefetch
// logic (the buffer indexed by thread_id XOR instruction_pc XOR
// address in the source becomes a plain Go map keyed by PC here,
// since Stride tracks state per originating instruction, not per raw
// index slot).
type Stride struct {
	byPC  map[uint64]*strideEntry
	order []uint64 // PCs in first-Observe order, so speculate scans deterministically
	drain writeDrain
}

// NewStride returns the stride-prefetching policy.
func NewStride(numThreads int) *Stride {
	return &Stride{byPC: make(map[uint64]*strideEntry)}
}

// Name implements Policy.
func (*Stride) Name() string { return "stride" }

// Observe feeds a dispatched read's (PC, address) pair into the
// stride table, updating the prediction for pc. controller.fetchMemOp
// calls this for every read record as it is dispatched into a
// channel's read queue, satisfying scheduler.Observer - Tick itself
// only sees already-enqueued requests and has no hook for "a new
// request just arrived with this PC".
func (s *Stride) Observe(pc uint64, addr uint64) {
	e, ok := s.byPC[pc]
	if !ok {
		s.byPC[pc] = &strideEntry{lastAddr: addr}
		s.order = append(s.order, pc)
		return
	}
	delta := int64(addr) - int64(e.lastAddr)
	if e.lastDelta != 0 && delta == e.lastDelta {
		e.confirmed = true
		e.predictAddr = addr + uint64(delta)
		e.havePredict = true
	} else {
		e.confirmed = false
		e.havePredict = false
	}
	e.lastDelta = delta
	e.lastAddr = addr
}

// Tick implements Policy.
func (s *Stride) Tick(c *channel.Channel, now int64) (issuer.Command, bool) {
	s.drain.update(c)
	first, second := c.ReadQ, c.WriteQ
	if s.drain.draining {
		first, second = c.WriteQ, c.ReadQ
	}
	if cmd, ok := issueFirstIssuable(c, first, now); ok {
		return cmd, true
	}
	if cmd, ok := issueFirstIssuable(c, second, now); ok {
		return cmd, true
	}
	return s.speculate(c, now)
}

func (s *Stride) speculate(c *channel.Channel, now int64) (issuer.Command, bool) {
	if c.Decoder == nil {
		return issuer.Command{}, false
	}
	for _, pc := range s.order {
		e := s.byPC[pc]
		if !e.confirmed || !e.havePredict {
			continue
		}
		a := c.Decoder.Decode(e.predictAddr)
		rk, bk := int(a.Rank), int(a.Bank)
		if c.IsActivateAllowed(now, rk, bk) {
			if err := c.IssueActivate(now, rk, bk, int64(a.Row)); err == nil {
				return issuer.Command{Kind: issuer.KindActivate, Rank: rk, Bank: bk, Row: int64(a.Row)}, true
			}
		}
	}
	return issuer.Command{}, false
}
