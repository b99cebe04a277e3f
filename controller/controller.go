// Package controller is the top-level simulator: it owns every
// channel and every core's reorder buffer and drives the dual-rate
// tick loop that ties them together, playing the role
// atari2600.VCS plays for the teacher's chip set (a controller-of-
// units composing smaller components and driving their per-cycle
// phases in a fixed order).
package controller

import (
	"errors"
	"fmt"

	"github.com/pranith/usimm/channel"
	"github.com/pranith/usimm/dramaddr"
	"github.com/pranith/usimm/issuer"
	"github.com/pranith/usimm/rob"
	"github.com/pranith/usimm/scheduler"
)

// Record is one fetchable unit from a core's instruction trace: some
// number of non-memory instructions to retire first, then (for memory
// ops) an address and, for reads, the originating PC. Addr is assumed
// already prefixed into its trace's distinct row window - that
// transform belongs to whatever produces Records, kept as an external
// collaborator per the trace-file-parser non-goal.
type Record struct {
	NonMemOps int
	Op        byte // 'R' or 'W'
	Addr      uint64
	PC        uint64
}

// Fetcher supplies one core's trace records in arrival order. Next
// returns ok=false once the trace is exhausted.
type Fetcher interface {
	Next() (Record, bool)
}

// core holds one processor core's fetch/retire state.
type core struct {
	fetcher Fetcher
	rob     *rob.ROB

	pending *Record // record currently being drained of its non-mem-ops
	done    bool

	committed int64
	fetched   int64
	doneAt    int64
}

// channelRuntime pairs one channel with the scheduler policy that
// drives it.
type channelRuntime struct {
	ch     *channel.Channel
	policy scheduler.Policy
}

// InvariantViolation is returned by Tick when a rank's refresh budget
// is caught outside [0,8] at runtime; that refresh-budget check is the
// only runtime invariant check in this package, and no other invariant
// (spec 8) produces this error here. It carries enough location detail
// (spec 7) to diagnose without re-running: the offending cycle,
// channel and rank.
type InvariantViolation struct {
	Cycle   int64
	Channel int
	Rank    int
	Detail  string
}

// Error implements the error interface.
func (e InvariantViolation) Error() string {
	return fmt.Sprintf("controller: invariant violated at cycle %d, channel %d, rank %d: %s",
		e.Cycle, e.Channel, e.Rank, e.Detail)
}

// Controller owns every channel and every core, and advances both the
// processor and DRAM clocks per spec 4.9. A Controller is the single
// owner of all mutable simulation state and is not safe for concurrent
// use - exactly one goroutine may call Tick/Run, matching the
// teacher's plain (non-thread-safe) Chip-driven-by-one-caller
// convention.
type Controller struct {
	decoder *dramaddr.Decoder
	chans   []*channelRuntime
	cores   []*core

	processorClkMultiplier int64
	maxRetire              int
	maxFetch               int
	pipelineDepth          int64

	cycle int64

	debug bool
}

// ChannelDef configures one channel's topology, timing and scheduler
// policy.
type ChannelDef struct {
	NumRanks        int
	NumBanks        int
	Timing          channel.Timing
	WQCapacity      int
	WQLookupLatency int64
	Policy          string
	NumThreads      int
}

// Def configures a Controller. ROBSize applies uniformly to every
// core, matching the reference simulator's single ROBSIZE config
// token.
type Def struct {
	Decoder                *dramaddr.Decoder
	Channels               []ChannelDef
	Fetchers               []Fetcher
	ROBSize                int
	ProcessorClkMultiplier int64
	MaxRetire              int
	MaxFetch               int
	PipelineDepth          int64
	Debug                  bool
}

// Init validates def and returns a ready-to-run Controller.
func Init(def *Def) (*Controller, error) {
	if def.Decoder == nil {
		return nil, errors.New("controller: Decoder must be non-nil")
	}
	if len(def.Channels) == 0 {
		return nil, errors.New("controller: at least one ChannelDef is required")
	}
	if len(def.Fetchers) == 0 {
		return nil, errors.New("controller: at least one Fetcher (core) is required")
	}
	if def.ROBSize <= 0 {
		return nil, errors.New("controller: ROBSize must be positive")
	}
	if def.ProcessorClkMultiplier <= 0 {
		return nil, errors.New("controller: ProcessorClkMultiplier must be positive")
	}

	ctl := &Controller{
		decoder:                def.Decoder,
		processorClkMultiplier: def.ProcessorClkMultiplier,
		maxRetire:              def.MaxRetire,
		maxFetch:               def.MaxFetch,
		pipelineDepth:          def.PipelineDepth,
		debug:                  def.Debug,
	}

	for i, cd := range def.Channels {
		p, err := scheduler.New(cd.Policy, cd.NumRanks, cd.NumBanks, cd.NumThreads)
		if err != nil {
			return nil, fmt.Errorf("controller: channel %d: %w", i, err)
		}
		ch := channel.New(i, cd.NumRanks, cd.NumBanks, def.Decoder, cd.Timing, cd.WQCapacity, cd.WQLookupLatency, def.Debug)
		ctl.chans = append(ctl.chans, &channelRuntime{ch: ch, policy: p})
	}

	for _, f := range def.Fetchers {
		ctl.cores = append(ctl.cores, &core{fetcher: f, rob: rob.New(def.ROBSize)})
	}

	return ctl, nil
}

// Done reports whether every core's trace is exhausted and every
// core's ROB and every channel's write queue is empty, per spec 4.9's
// termination condition.
func (ctl *Controller) Done() bool {
	for _, c := range ctl.cores {
		if !c.done || !c.rob.Empty() {
			return false
		}
	}
	for _, cr := range ctl.chans {
		if cr.ch.WriteQ.Len() != 0 {
			return false
		}
	}
	return true
}

// Cycle returns the current processor-tick count.
func (ctl *Controller) Cycle() int64 { return ctl.cycle }

// Run ticks the Controller until Done or an invariant violation is
// caught, returning the number of processor ticks executed.
func (ctl *Controller) Run() (int64, error) {
	for !ctl.Done() {
		if err := ctl.Tick(); err != nil {
			return ctl.cycle, err
		}
	}
	return ctl.cycle, nil
}

// Tick advances the simulator by one processor tick: retire, then (at
// the DRAM-tick boundary) the DRAM phase, then fetch - matching spec
// 4.9's pseudocode order. It returns an InvariantViolation if the DRAM
// phase caught one of spec 8's invariants broken.
func (ctl *Controller) Tick() error {
	now := ctl.cycle

	for _, c := range ctl.cores {
		committed := c.rob.Retire(now, ctl.maxRetire)
		c.committed += int64(committed)
	}

	if now%ctl.processorClkMultiplier == 0 {
		if err := ctl.tickDRAM(now); err != nil {
			return err
		}
	}

	anyWQFull := false
	for _, cr := range ctl.chans {
		if cr.ch.WriteQueueFull() {
			anyWQFull = true
			break
		}
	}
	if !anyWQFull {
		for i, c := range ctl.cores {
			ctl.fetchCore(i, c, now)
		}
	}

	ctl.cycle++
	return nil
}

// tickDRAM runs one DRAM-rate update across every channel: refresh,
// queue-command recompute, cleanup of last tick's served requests,
// one scheduler decision, then stats gathering - the order spec 2's
// data-flow paragraph names.
func (ctl *Controller) tickDRAM(now int64) error {
	for chIdx, cr := range ctl.chans {
		ch := cr.ch

		preTickDeadline := make([]int64, ch.NumRanks())
		preTickIssued := make([]int, ch.NumRanks())
		for rankIdx := range preTickDeadline {
			preTickDeadline[rankIdx] = ch.RefreshCompletionDeadline(rankIdx)
			preTickIssued[rankIdx] = ch.RefreshNumIssued(rankIdx)
		}

		ch.ResetCycle()
		ch.TickRefresh(now)
		ch.UpdateQueueCommands(now)
		ch.CleanQueues()

		cmd, ok := cr.policy.Tick(ch, now)
		if ok && cmd.Kind == issuer.KindColRead {
			ctl.completeRead(ch, cmd)
		}
		ch.GatherStats(ctl.processorClkMultiplier)

		if err := ctl.checkRefreshBudget(now, chIdx, ch, preTickDeadline, preTickIssued); err != nil {
			return err
		}
	}
	return nil
}

// checkRefreshBudget enforces spec invariant 4: num_issued_refreshes
// stays within [0,8], and equals exactly 8 at the moment the
// completion deadline arrives. preTickDeadline/preTickIssued are each
// rank's deadline and issued count as observed before this tick's
// TickRefresh call, since TickRefresh itself resets numIssued to 0 and
// advances the deadline the instant now reaches it - checking the
// post-tick values against each other would always pass vacuously.
func (ctl *Controller) checkRefreshBudget(now int64, chIdx int, ch *channel.Channel, preTickDeadline []int64, preTickIssued []int) error {
	for rankIdx := 0; rankIdx < ch.NumRanks(); rankIdx++ {
		issued := ch.RefreshNumIssued(rankIdx)
		if issued < 0 || issued > 8 {
			return InvariantViolation{Cycle: now, Channel: chIdx, Rank: rankIdx,
				Detail: fmt.Sprintf("num_issued_refreshes=%d out of [0,8]", issued)}
		}
		if now == preTickDeadline[rankIdx] && preTickIssued[rankIdx] != 8 {
			return InvariantViolation{Cycle: now, Channel: chIdx, Rank: rankIdx,
				Detail: fmt.Sprintf("num_issued_refreshes=%d at completion deadline, want 8", preTickIssued[rankIdx])}
		}
	}
	return nil
}

// completeRead propagates a just-issued COL_READ's completion time
// into the owning core's ROB, implementing "completion of a read
// unstalls the corresponding ROB entry" (spec 1).
func (ctl *Controller) completeRead(ch *channel.Channel, cmd issuer.Command) {
	req := ch.ReadQ.At(cmd.ReqIdx)
	if req.ThreadID < 0 || req.ThreadID >= len(ctl.cores) {
		return
	}
	ctl.cores[req.ThreadID].rob.SetCompletion(req.ROBSlot, req.Completion)
}

// fetchCore fetches up to MaxFetch records into core i's ROB, halting
// early if the ROB fills, per spec 4.9.
func (ctl *Controller) fetchCore(coreIdx int, c *core, now int64) {
	if c.done {
		return
	}
	fetched := 0
	for fetched < ctl.maxFetch && !c.rob.Full() {
		if c.pending == nil {
			rec, ok := c.fetcher.Next()
			if !ok {
				c.done = true
				c.doneAt = now
				return
			}
			c.pending = &rec
		}

		if c.pending.NonMemOps > 0 {
			c.rob.Fetch(now + ctl.pipelineDepth)
			c.pending.NonMemOps--
			c.fetched++
			fetched++
			continue
		}

		ctl.fetchMemOp(coreIdx, c, now, *c.pending)
		c.pending = nil
		c.fetched++
		fetched++
	}
}

// fetchMemOp decodes and enqueues one memory record, installing the
// ROB completion spec 4.9 names for each case: BIG (unreachable) for
// a read until the issuer sets it, now+PipelineDepth immediately for
// a posted write.
func (ctl *Controller) fetchMemOp(coreIdx int, c *core, now int64, rec Record) {
	addr := ctl.decoder.Decode(rec.Addr)
	chIdx := int(addr.Channel)
	if chIdx < 0 || chIdx >= len(ctl.chans) {
		return
	}
	ch := ctl.chans[chIdx].ch

	switch rec.Op {
	case 'R':
		if obs, ok := ctl.chans[chIdx].policy.(scheduler.Observer); ok {
			obs.Observe(rec.PC, rec.Addr)
		}
		slot := c.rob.Fetch(rob.Big)
		matchLatency, enqueued := ch.EnqueueRead(addr, now, coreIdx, slot, rec.PC)
		if !enqueued {
			c.rob.SetCompletion(slot, now+matchLatency+ctl.pipelineDepth)
		}
	case 'W':
		slot := c.rob.Fetch(now + ctl.pipelineDepth)
		ch.EnqueueWrite(addr, now, coreIdx, slot)
	}
}

// Channel returns the idx'th channel, for tests and reporting.
func (ctl *Controller) Channel(idx int) *channel.Channel { return ctl.chans[idx].ch }

// NumChannels returns the number of configured channels.
func (ctl *Controller) NumChannels() int { return len(ctl.chans) }

// CoreStats reports one core's fetch/commit counters and the cycle its
// trace finished fetching (0 if still running).
type CoreStats struct {
	Fetched   int64
	Committed int64
	DoneAt    int64
}

// Stats returns core idx's counters.
func (ctl *Controller) Stats(idx int) CoreStats {
	c := ctl.cores[idx]
	return CoreStats{Fetched: c.fetched, Committed: c.committed, DoneAt: c.doneAt}
}

// NumCores returns the number of configured cores.
func (ctl *Controller) NumCores() int { return len(ctl.cores) }
