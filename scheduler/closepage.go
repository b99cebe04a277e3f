package scheduler

import (
	"github.com/pranith/usimm/channel"
	"github.com/pranith/usimm/issuer"
)

// rankBank names one (rank,bank) pair.
type rankBank struct{ rank, bank int }

// ClosePage is FCFS augmented with a preemptive precharge of any bank
// that serviced a COL_READ/COL_WRITE on a prior tick, issued only when
// FCFS itself found nothing to do this cycle - grounded on
// original_source/src/scheduler-close.c's "if no other command could
// be issued, precharge a recently-accessed bank" fallback.
type ClosePage struct {
	recentlyServiced []rankBank
	drain            writeDrain
}

// NewClosePage returns the close-page policy.
func NewClosePage() *ClosePage { return &ClosePage{} }

// Name implements Policy.
func (*ClosePage) Name() string { return "close-page" }

// Tick implements Policy.
func (p *ClosePage) Tick(c *channel.Channel, now int64) (issuer.Command, bool) {
	p.drain.update(c)
	first, second := c.ReadQ, c.WriteQ
	if p.drain.draining {
		first, second = c.WriteQ, c.ReadQ
	}
	if cmd, ok := issueFirstIssuable(c, first, now); ok {
		p.noteIfColumn(cmd)
		return cmd, true
	}
	if cmd, ok := issueFirstIssuable(c, second, now); ok {
		p.noteIfColumn(cmd)
		return cmd, true
	}
	for i, rb := range p.recentlyServiced {
		if c.IsPrechargeAllowed(now, rb.rank, rb.bank) {
			if err := c.IssuePrecharge(now, rb.rank, rb.bank); err == nil {
				p.recentlyServiced = append(p.recentlyServiced[:i], p.recentlyServiced[i+1:]...)
				return issuer.Command{Kind: issuer.KindPrecharge, Rank: rb.rank, Bank: rb.bank}, true
			}
		}
	}
	return issuer.Command{}, false
}

func (p *ClosePage) noteIfColumn(cmd issuer.Command) {
	if cmd.Kind != issuer.KindColRead && cmd.Kind != issuer.KindColWrite {
		return
	}
	rb := rankBank{cmd.Rank, cmd.Bank}
	for _, existing := range p.recentlyServiced {
		if existing == rb {
			return
		}
	}
	p.recentlyServiced = append(p.recentlyServiced, rb)
}
