package scheduler

import (
	"github.com/pranith/usimm/channel"
	"github.com/pranith/usimm/issuer"
)

// FCFS issues the first request, in arrival order, whose NextCommand
// is currently issuable - grounded on schedule() in
// original_source/src/scheduler-fcfs.c. Outside write-drain mode it
// scans the read queue head-to-tail and only considers the write queue
// once no read in the channel can make progress this cycle; in
// write-drain mode the write queue is scanned first and the read queue
// second.
type FCFS struct {
	drain writeDrain
}

// NewFCFS returns the first-come-first-served policy.
func NewFCFS() *FCFS { return &FCFS{} }

// Name implements Policy.
func (*FCFS) Name() string { return "fcfs" }

// Tick implements Policy.
func (p *FCFS) Tick(c *channel.Channel, now int64) (issuer.Command, bool) {
	p.drain.update(c)
	if p.drain.draining {
		if cmd, ok := issueFirstIssuable(c, c.WriteQ, now); ok {
			return cmd, true
		}
		return issueFirstIssuable(c, c.ReadQ, now)
	}
	if cmd, ok := issueFirstIssuable(c, c.ReadQ, now); ok {
		return cmd, true
	}
	return issueFirstIssuable(c, c.WriteQ, now)
}
