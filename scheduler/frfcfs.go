package scheduler

import (
	"github.com/pranith/usimm/channel"
	"github.com/pranith/usimm/issuer"
	"github.com/pranith/usimm/request"
)

// ColumnHitCap is the configured number of consecutive column
// accesses a bank may service before FR-FCFS forces an auto-precharge,
// matching CAPN in original_source/src/scheduler-frfcfs.c.
const ColumnHitCap = 4

// FRFCFS (first-ready, first-come-first-served) first scans both
// queues for any request whose NextCommand is already COL_READ or
// COL_WRITE (a "row hit"), in arrival order, and only falls back to
// plain FCFS once no row hit is issuable. It tracks per-bank
// consecutive column-hit counts and, once a bank's counter reaches
// ColumnHitCap, auto-precharges the bank in the same cycle as the COL
// command that just issued against it, matching count_col_hits / the
// CAPN-triggered issue_autoprecharge call inside scheduler-frfcfs.c's
// schedule().
type FRFCFS struct {
	hits  [][]int // hits[rank][bank]
	drain writeDrain
}

// NewFRFCFS returns the first-ready-FCFS policy for a channel with
// numRanks ranks of numBanks banks each.
func NewFRFCFS(numRanks, numBanks int) *FRFCFS {
	hits := make([][]int, numRanks)
	for r := range hits {
		hits[r] = make([]int, numBanks)
	}
	return &FRFCFS{hits: hits}
}

// Name implements Policy.
func (*FRFCFS) Name() string { return "frfcfs" }

// Tick implements Policy.
func (p *FRFCFS) Tick(c *channel.Channel, now int64) (issuer.Command, bool) {
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
	if cmd, ok := issueFirstIssuable(c, second, now); ok {
		return cmd, true
	}
	return issuer.Command{}, false
}

func (p *FRFCFS) issueRowHit(c *channel.Channel, q *request.Queue, now int64) (issuer.Command, bool) {
	for i := 0; i < q.Len(); i++ {
		req := q.At(i)
		if req.Served || !req.CommandIssuable {
			continue
		}
		rk, bk := int(req.Addr.Rank), int(req.Addr.Bank)
		switch req.NextCommand {
		case request.CommandColRead:
			if err := c.IssueColRead(now, i); err == nil {
				p.recordHit(c, rk, bk, now)
				return issuer.Command{Kind: issuer.KindColRead, Rank: rk, Bank: bk, ReqIdx: i}, true
			}
		case request.CommandColWrite:
			if err := c.IssueColWrite(now, i); err == nil {
				p.recordHit(c, rk, bk, now)
				return issuer.Command{Kind: issuer.KindColWrite, Rank: rk, Bank: bk, ReqIdx: i}, true
			}
		}
	}
	return issuer.Command{}, false
}

func (p *FRFCFS) recordHit(c *channel.Channel, rank, bank int, now int64) {
	p.hits[rank][bank]++
	if p.hits[rank][bank] >= ColumnHitCap {
		if c.IsAutoPrechargeAllowed(now, rank, bank) {
			if err := c.IssueAutoPrecharge(now, rank, bank); err == nil {
				p.hits[rank][bank] = 0
			}
		}
	}
}
