package scheduler

import (
	"github.com/pranith/usimm/channel"
	"github.com/pranith/usimm/issuer"
)

// IdleCyclesBeforePowerDown is the number of consecutive cycles a rank
// must see no issued command before Power-down fires PWR_DN_FAST,
// matching PWR_N in original_source/src/scheduler-pwrdn.c.
const IdleCyclesBeforePowerDown = 50

// PowerDown is FCFS augmented with a per-rank idle-cycle counter: once
// a rank has gone IdleCyclesBeforePowerDown cycles with nothing
// issued against it and fast powerdown is legal, it issues
// PWR_DN_FAST. A rank wakes implicitly the next time FCFS needs to
// issue against it (IssuePowerUp runs ahead of the FCFS scan via
// issueFirstIssuable's CommandPowerUp case); a forced refresh wakes
// every rank unconditionally via channel.TickRefresh.
type PowerDown struct {
	idleFor []int64
	drain   writeDrain
}

// NewPowerDown returns the power-down-aware FCFS policy for a channel
// with numRanks ranks.
func NewPowerDown(numRanks int) *PowerDown {
	return &PowerDown{idleFor: make([]int64, numRanks)}
}

// Name implements Policy.
func (*PowerDown) Name() string { return "pwrdn" }

// Tick implements Policy.
func (p *PowerDown) Tick(c *channel.Channel, now int64) (issuer.Command, bool) {
	p.drain.update(c)
	first, second := c.ReadQ, c.WriteQ
	if p.drain.draining {
		first, second = c.WriteQ, c.ReadQ
	}
	if cmd, ok := issueFirstIssuable(c, first, now); ok {
		p.resetIdle(cmd.Rank)
		return cmd, true
	}
	if cmd, ok := issueFirstIssuable(c, second, now); ok {
		p.resetIdle(cmd.Rank)
		return cmd, true
	}
	for r := range p.idleFor {
		p.idleFor[r]++
		if p.idleFor[r] >= IdleCyclesBeforePowerDown && c.IsPowerDownAllowed(now, r, true) {
			if err := c.IssuePowerDown(now, r, true); err == nil {
				p.idleFor[r] = 0
				return issuer.Command{Kind: issuer.KindPowerDownFast, Rank: r}, true
			}
		}
	}
	return issuer.Command{}, false
}

func (p *PowerDown) resetIdle(rank int) {
	if rank >= 0 && rank < len(p.idleFor) {
		p.idleFor[rank] = 0
	}
}
