package channel

import (
	"fmt"

	"github.com/pranith/usimm/bank"
	"github.com/pranith/usimm/issuer"
	"github.com/pranith/usimm/request"
)

// NotIssuable is returned by an Issue* method when its matching
// Is*Allowed predicate was not checked first, or returned false. The
// scheduler package is expected to have already filtered candidates
// through the Is*Allowed set, so seeing this error anywhere indicates
// a scheduler bug, not a normal runtime condition.
type NotIssuable struct {
	Kind issuer.Kind
	Rank int
	Bank int
}

// Error implements the error interface.
func (e NotIssuable) Error() string {
	return fmt.Sprintf("channel: %s not issuable against rank %d bank %d", e.Kind, e.Rank, e.Bank)
}

// gateCommon applies the three gates spec 4.4 attaches to every
// command kind: at most one command per channel per cycle, never
// while the rank is mid forced-refresh, and never if issuing would
// blow the rank's refresh_issue_deadline.
func (c *Channel) gateCommon(rk *Rank, now, worstCaseDelay int64) bool {
	if c.commandIssuedThisCycle {
		return false
	}
	if rk.Refresh.Forced() {
		return false
	}
	return deadlineOK(rk, now, worstCaseDelay)
}

// IsActivateAllowed reports whether ACT may be issued against
// (rankIdx,bankIdx) this cycle.
func (c *Channel) IsActivateAllowed(now int64, rankIdx, bankIdx int) bool {
	rk := c.Ranks[rankIdx]
	bk := rk.Banks[bankIdx]
	switch bk.State() {
	case bank.StateIdle, bank.StatePrecharging, bank.StateRefreshing:
	default:
		return false
	}
	if !rk.FAW.CanActivate(now) {
		return false
	}
	return now >= bk.NextAct() && c.gateCommon(rk, now, c.Timing.TRAS)
}

// IssueActivate opens row on (rankIdx,bankIdx), applying the tRRD
// same-rank neighbour-bank delay and recording the activation with the
// rank's FAW tracker, per spec 4.3.
func (c *Channel) IssueActivate(now int64, rankIdx, bankIdx int, row int64) error {
	if !c.IsActivateAllowed(now, rankIdx, bankIdx) {
		return NotIssuable{Kind: issuer.KindActivate, Rank: rankIdx, Bank: bankIdx}
	}
	rk := c.Ranks[rankIdx]
	bk := rk.Banks[bankIdx]
	if err := bk.Activate(row, bank.ActivateTiming{Now: now, TRAS: c.Timing.TRAS, TRCD: c.Timing.TRCD, TRC: c.Timing.TRC}); err != nil {
		return err
	}
	for i, sib := range rk.Banks {
		if i == bankIdx {
			continue
		}
		sib.BumpNextAct(now + c.Timing.TRRD)
	}
	if err := rk.FAW.Record(now); err != nil {
		return err
	}
	rk.recordActivateGap(now, rk.lastActivate)
	rk.lastActivate = now
	c.commandIssuedThisCycle = true
	return nil
}

// IsPrechargeAllowed reports whether PRE may be issued against
// (rankIdx,bankIdx) this cycle.
func (c *Channel) IsPrechargeAllowed(now int64, rankIdx, bankIdx int) bool {
	rk := c.Ranks[rankIdx]
	bk := rk.Banks[bankIdx]
	if bk.State() != bank.StateRowActive {
		return false
	}
	return now >= bk.NextPre() && c.gateCommon(rk, now, c.Timing.TRP)
}

// IssuePrecharge closes the open row on (rankIdx,bankIdx).
func (c *Channel) IssuePrecharge(now int64, rankIdx, bankIdx int) error {
	if !c.IsPrechargeAllowed(now, rankIdx, bankIdx) {
		return NotIssuable{Kind: issuer.KindPrecharge, Rank: rankIdx, Bank: bankIdx}
	}
	bk := c.Ranks[rankIdx].Banks[bankIdx]
	if err := bk.Precharge(now, c.Timing.TRP); err != nil {
		return err
	}
	c.commandIssuedThisCycle = true
	return nil
}

// autoPrechargeDelay returns the start_precharge offset from now for a
// bank whose CAS marker cas identifies the column command that just
// issued against it this cycle: tRTP for a read and
// tCWD+tDataTrans+tWR for a write. Callers take start_precharge as the
// later of now plus this offset and the bank's NextPre, matching
// is_autoprecharge_allowed.
func (c *Channel) autoPrechargeDelay(cas bank.CAS) int64 {
	if cas == bank.CASWrite {
		return c.Timing.TCWD + c.Timing.TDataTrans + c.Timing.TWR
	}
	return c.Timing.TRTP
}

// IsAutoPrechargeAllowed reports whether (rankIdx,bankIdx) may be
// auto-precharged this cycle as a side effect of the COL_READ/COL_WRITE
// that just issued against it. Unlike every other Is*Allowed predicate,
// this deliberately bypasses gateCommon: the reference simulator gates
// auto-precharge on cas_issued_current_cycle, a per-bank marker, not
// command_issued_current_cycle, the channel's one-command-per-cycle
// flag - issuing an auto-precharge in the same cycle as the COL command
// that triggered it is exactly the point (issue_autoprecharge is called
// from inside issue_read_command/issue_write_command in the source).
func (c *Channel) IsAutoPrechargeAllowed(now int64, rankIdx, bankIdx int) bool {
	rk := c.Ranks[rankIdx]
	bk := rk.Banks[bankIdx]
	cas := bk.CASIssued()
	if cas == bank.CASNone {
		return false
	}
	if bk.State() != bank.StateRowActive {
		return false
	}
	startPrecharge := now + c.autoPrechargeDelay(cas)
	if bk.NextPre() > startPrecharge {
		startPrecharge = bk.NextPre()
	}
	return startPrecharge+c.Timing.TRP <= rk.Refresh.IssueDeadline()
}

// IssueAutoPrecharge closes (rankIdx,bankIdx), folding the precharge
// into the CAS command's own cycle budget. It does not set
// commandIssuedThisCycle: the source treats auto-precharge as part of
// the COL command that triggered it, not a second command occupying
// the channel's single-command-per-cycle slot.
func (c *Channel) IssueAutoPrecharge(now int64, rankIdx, bankIdx int) error {
	if !c.IsAutoPrechargeAllowed(now, rankIdx, bankIdx) {
		return NotIssuable{Kind: issuer.KindPrecharge, Rank: rankIdx, Bank: bankIdx}
	}
	rk := c.Ranks[rankIdx]
	bk := rk.Banks[bankIdx]
	startPrecharge := now + c.autoPrechargeDelay(bk.CASIssued())
	if bk.NextPre() > startPrecharge {
		startPrecharge = bk.NextPre()
	}
	return bk.AutoPrecharge(startPrecharge + c.Timing.TRP)
}

// IsAllBankPrechargeAllowed reports whether every bank on rankIdx is
// either ROW_ACTIVE-and-eligible or already closed, i.e. PRE_ALL would
// be a legal single command this cycle (used by the refresh path,
// which must close every bank before issuing REF).
func (c *Channel) IsAllBankPrechargeAllowed(now int64, rankIdx int) bool {
	rk := c.Ranks[rankIdx]
	if c.commandIssuedThisCycle || rk.Refresh.Forced() {
		return false
	}
	for _, bk := range rk.Banks {
		if bk.State() == bank.StateRowActive && now < bk.NextPre() {
			return false
		}
		if bk.IsPoweredDown() {
			return false
		}
	}
	return deadlineOK(rk, now, c.Timing.TRP)
}

// IssueAllBankPrecharge closes every open row on rankIdx in one
// command, matching issue_all_bank_precharge_command.
func (c *Channel) IssueAllBankPrecharge(now int64, rankIdx int) error {
	if !c.IsAllBankPrechargeAllowed(now, rankIdx) {
		return NotIssuable{Kind: issuer.KindAllBankPrecharge, Rank: rankIdx}
	}
	rk := c.Ranks[rankIdx]
	for _, bk := range rk.Banks {
		if bk.State() == bank.StateRowActive {
			if err := bk.Precharge(now, c.Timing.TRP); err != nil {
				return err
			}
		}
	}
	c.commandIssuedThisCycle = true
	return nil
}

// IsColReadAllowed reports whether COL_READ for the queued request at
// reqIdx in the read queue may be issued this cycle.
func (c *Channel) IsColReadAllowed(now int64, reqIdx int) bool {
	req := c.ReadQ.At(reqIdx)
	if req.Served || req.NextCommand != request.CommandColRead {
		return false
	}
	rk := c.Ranks[int(req.Addr.Rank)]
	bk := rk.Banks[int(req.Addr.Bank)]
	return now >= bk.NextRead() && c.gateCommon(rk, now, c.Timing.TRTP)
}

// IssueColRead issues COL_READ for the read queue entry at reqIdx,
// marking it served and setting its Completion cycle (spec invariant
// 5), and applies the read's cross-bank/cross-rank turnaround effects
// per spec 4.3's command-effects table:
//   - every bank on this rank, including the issuing bank itself:
//     next_read bumped by max(tCCD, tDataTrans)
//   - other ranks on this channel: next_read bumped by tDataTrans+tRTRS
//   - every bank on every rank: next_write bumped by
//     tCAS+tDataTrans+tRTRS-tCWD (clamped to zero on underflow)
func (c *Channel) IssueColRead(now int64, reqIdx int) error {
	if !c.IsColReadAllowed(now, reqIdx) {
		return NotIssuable{Kind: issuer.KindColRead}
	}
	req := c.ReadQ.At(reqIdx)
	rkIdx, bkIdx := int(req.Addr.Rank), int(req.Addr.Bank)
	rk := c.Ranks[rkIdx]
	bk := rk.Banks[bkIdx]

	completion, err := bk.ColRead(bank.ColReadTiming{Now: now, TRTP: c.Timing.TRTP, TCAS: c.Timing.TCAS, TDataTrans: c.Timing.TDataTrans})
	if err != nil {
		return err
	}
	req.Completion = completion
	req.Served = true
	rk.occ.Reads++
	bk.MarkCASRead()

	sameRankTurnaround := c.Timing.TCCD
	if c.Timing.TDataTrans > sameRankTurnaround {
		sameRankTurnaround = c.Timing.TDataTrans
	}
	crossRankTurnaround := c.Timing.TDataTrans + c.Timing.TRTRS
	writeTurnaround := clampSub(c.Timing.TCAS+c.Timing.TDataTrans+c.Timing.TRTRS, c.Timing.TCWD)

	for ri, other := range c.Ranks {
		for _, sib := range other.Banks {
			sib.BumpNextWrite(now + writeTurnaround)
		}
		if ri == rkIdx {
			for _, sib := range other.Banks {
				sib.BumpNextRead(now + sameRankTurnaround)
			}
		} else {
			for _, sib := range other.Banks {
				sib.BumpNextRead(now + crossRankTurnaround)
			}
			other.occ.TimeTerminatingReadsOther += c.Timing.TDataTrans
		}
	}
	c.commandIssuedThisCycle = true
	return nil
}

// IsColWriteAllowed reports whether COL_WRITE for the queued request at
// reqIdx in the write queue may be issued this cycle.
func (c *Channel) IsColWriteAllowed(now int64, reqIdx int) bool {
	req := c.WriteQ.At(reqIdx)
	if req.Served || req.NextCommand != request.CommandColWrite {
		return false
	}
	rk := c.Ranks[int(req.Addr.Rank)]
	bk := rk.Banks[int(req.Addr.Bank)]
	worst := clampSub(c.Timing.TCWD+c.Timing.TDataTrans+c.Timing.TWR, 0)
	return now >= bk.NextWrite() && c.gateCommon(rk, now, worst)
}

// IssueColWrite issues COL_WRITE for the write queue entry at reqIdx,
// marking it served, setting Completion (spec invariant 6), and
// applying the write's turnaround effects: same-rank siblings' and
// every other rank's next_write bumped by max(tCCD,tDataTrans) /
// tDataTrans+tRTRS respectively, and next_read bumped by
// tCWD+tDataTrans+tWTR on this rank and by tCWD+tDataTrans+tRTRS-tCAS
// (clamped to zero on underflow) on every other rank.
func (c *Channel) IssueColWrite(now int64, reqIdx int) error {
	if !c.IsColWriteAllowed(now, reqIdx) {
		return NotIssuable{Kind: issuer.KindColWrite}
	}
	req := c.WriteQ.At(reqIdx)
	rkIdx, bkIdx := int(req.Addr.Rank), int(req.Addr.Bank)
	rk := c.Ranks[rkIdx]
	bk := rk.Banks[bkIdx]

	completion, err := bk.ColWrite(bank.ColWriteTiming{Now: now, TCWD: c.Timing.TCWD, TDataTrans: c.Timing.TDataTrans, TWR: c.Timing.TWR})
	if err != nil {
		return err
	}
	req.Completion = completion
	req.Served = true
	rk.occ.Writes++
	bk.MarkCASWrite()

	sameRankWriteTurnaround := c.Timing.TCCD
	if c.Timing.TDataTrans > sameRankWriteTurnaround {
		sameRankWriteTurnaround = c.Timing.TDataTrans
	}
	crossRankWriteTurnaround := c.Timing.TDataTrans + c.Timing.TRTRS
	sameRankReadTurnaround := c.Timing.TCWD + c.Timing.TDataTrans + c.Timing.TWTR
	crossRankReadTurnaround := clampSub(c.Timing.TCWD+c.Timing.TDataTrans+c.Timing.TRTRS, c.Timing.TCAS)

	for ri, other := range c.Ranks {
		if ri == rkIdx {
			for _, sib := range other.Banks {
				sib.BumpNextRead(now + sameRankReadTurnaround)
				sib.BumpNextWrite(now + sameRankWriteTurnaround)
			}
		} else {
			for _, sib := range other.Banks {
				sib.BumpNextRead(now + crossRankReadTurnaround)
				sib.BumpNextWrite(now + crossRankWriteTurnaround)
			}
			other.occ.TimeTerminatingWritesOther += c.Timing.TDataTrans
		}
	}
	c.commandIssuedThisCycle = true
	return nil
}

// IsPowerDownAllowed reports whether rankIdx may enter a powerdown
// state this cycle: every bank on the rank must already be IDLE or
// PRECHARGING (slow exit), or IDLE/PRECHARGING/ROW_ACTIVE (fast exit),
// and none mid refresh.
func (c *Channel) IsPowerDownAllowed(now int64, rankIdx int, fast bool) bool {
	rk := c.Ranks[rankIdx]
	if c.commandIssuedThisCycle || rk.Refresh.Forced() {
		return false
	}
	for _, bk := range rk.Banks {
		switch bk.State() {
		case bank.StateIdle, bank.StatePrecharging:
		case bank.StateRowActive:
			if !fast {
				return false
			}
		default:
			return false
		}
		if now < bk.NextPowerDown() {
			return false
		}
	}
	return true
}

// IssuePowerDown moves every bank on rankIdx into its powerdown state.
func (c *Channel) IssuePowerDown(now int64, rankIdx int, fast bool) error {
	if !c.IsPowerDownAllowed(now, rankIdx, fast) {
		kind := issuer.KindPowerDownSlow
		if fast {
			kind = issuer.KindPowerDownFast
		}
		return NotIssuable{Kind: kind, Rank: rankIdx}
	}
	rk := c.Ranks[rankIdx]
	for _, bk := range rk.Banks {
		if err := bk.PowerDown(now, c.Timing.TPDMin, fast); err != nil {
			return err
		}
	}
	c.commandIssuedThisCycle = true
	return nil
}

// IsPowerUpAllowed reports whether rankIdx may exit powerdown this
// cycle.
func (c *Channel) IsPowerUpAllowed(now int64, rankIdx int) bool {
	rk := c.Ranks[rankIdx]
	if c.commandIssuedThisCycle {
		return false
	}
	if !rk.IsPoweredDown() {
		return false
	}
	for _, bk := range rk.Banks {
		if now < bk.NextPowerUp() {
			return false
		}
	}
	return true
}

// IssuePowerUp exits powerdown on every bank of rankIdx.
func (c *Channel) IssuePowerUp(now int64, rankIdx int) error {
	if !c.IsPowerUpAllowed(now, rankIdx) {
		return NotIssuable{Kind: issuer.KindPowerUp, Rank: rankIdx}
	}
	rk := c.Ranks[rankIdx]
	for _, bk := range rk.Banks {
		if err := bk.PowerUp(now, c.Timing.TXP, c.Timing.TXPDLL); err != nil {
			return err
		}
	}
	c.commandIssuedThisCycle = true
	return nil
}

// IsRefreshAllowed reports whether REF may be issued against rankIdx:
// every bank must already be precharged (PRE_ALL must have preceded
// it, as in issue_refresh_command).
func (c *Channel) IsRefreshAllowed(now int64, rankIdx int) bool {
	rk := c.Ranks[rankIdx]
	if c.commandIssuedThisCycle {
		return false
	}
	for _, bk := range rk.Banks {
		switch bk.State() {
		case bank.StateIdle, bank.StatePrecharging, bank.StateRefreshing:
		default:
			return false
		}
		if now < bk.NextRefresh() {
			return false
		}
	}
	return true
}

// IssueRefresh refreshes every bank on rankIdx and records the issued
// refresh against the rank's budget (spec invariant 4).
func (c *Channel) IssueRefresh(now int64, rankIdx int) error {
	if !c.IsRefreshAllowed(now, rankIdx) {
		return NotIssuable{Kind: issuer.KindRefresh, Rank: rankIdx}
	}
	rk := c.Ranks[rankIdx]
	for _, bk := range rk.Banks {
		bk.Refresh(now, c.Timing.TRFC)
	}
	rk.Refresh.RecordIssuedRefresh()
	c.commandIssuedThisCycle = true
	return nil
}
