// Package bank implements the per-bank DRAM state machine: the bank's
// current state plus its seven earliest-legal-cycle fields. It mirrors
// the teacher's per-chip state struct (cpu.Chip, pia6532.Chip) but,
// because command issue here is atomic rather than clock-latched, a
// Bank mutates immediately on each Activate/ColRead/... call instead
// of using the teacher's Tick/TickDone shadow-register pattern - there
// is no shadow state to commit because nothing here straddles a clock
// edge the way CPU register writes do.
package bank

import "fmt"

// State is one of the seven DRAM bank states named in the spec.
type State int

const (
	// StateUnimplemented is the zero value and never valid on a live Bank.
	StateUnimplemented State = iota
	StateIdle
	StatePrecharging
	StateRefreshing
	StateRowActive
	StatePrechargePowerDownSlow
	StatePrechargePowerDownFast
	StateActivePowerDown
	stateMax
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StatePrecharging:
		return "PRECHARGING"
	case StateRefreshing:
		return "REFRESHING"
	case StateRowActive:
		return "ROW_ACTIVE"
	case StatePrechargePowerDownSlow:
		return "PRE_PDN_SLOW"
	case StatePrechargePowerDownFast:
		return "PRE_PDN_FAST"
	case StateActivePowerDown:
		return "ACTIVE_PDN"
	default:
		return "UNIMPLEMENTED"
	}
}

// NoRow is the sentinel active-row value meaning no row is open.
const NoRow = int64(-1)

// InvalidTransition is returned when a command is issued against a bank
// in a state that does not permit it. The spec treats this as an
// invariant violation, not a normal error path - callers are expected
// to have already checked an is_<cmd>_allowed predicate.
type InvalidTransition struct {
	From    State
	Command string
}

// Error implements the error interface.
func (e InvalidTransition) Error() string {
	return fmt.Sprintf("bank: cannot issue %s from state %s", e.Command, e.From)
}

// CAS identifies which column command, if any, this bank had issued
// against it during the current DRAM cycle - the gate an
// auto-precharge rides on instead of the channel's one-command-per-
// cycle flag, matching cas_issued_current_cycle.
type CAS int

const (
	CASNone CAS = iota
	CASRead
	CASWrite
)

// Bank holds one DRAM bank's state machine.
type Bank struct {
	state     State
	activeRow int64

	nextPre       int64
	nextAct       int64
	nextRead      int64
	nextWrite     int64
	nextPowerDown int64
	nextPowerUp   int64
	nextRefresh   int64

	casIssued CAS

	debug bool
}

// New returns a Bank powered on in IDLE with no open row. Per the
// design note resolving the source's quadruple next_pre assignment
// typo, every next_* field is initialized exactly once, here to 0 (a
// bank is assumed immediately eligible for any command at cycle 0;
// -1 would also satisfy the spec's "pick one and document" latitude,
// but 0 avoids a spurious negative in the very first cycle's
// comparisons).
func New(debug bool) *Bank {
	return &Bank{
		state:     StateIdle,
		activeRow: NoRow,
		debug:     debug,
	}
}

// State returns the bank's current state.
func (b *Bank) State() State { return b.state }

// ActiveRow returns the currently open row, or NoRow if none is open.
func (b *Bank) ActiveRow() int64 { return b.activeRow }

// NextPre, NextAct, NextRead, NextWrite, NextPowerDown, NextPowerUp and
// NextRefresh report the earliest cycle at which the named command may
// next be issued against this bank, ignoring FAW/refresh-deadline
// constraints tracked elsewhere.
func (b *Bank) NextPre() int64       { return b.nextPre }
func (b *Bank) NextAct() int64       { return b.nextAct }
func (b *Bank) NextRead() int64      { return b.nextRead }
func (b *Bank) NextWrite() int64     { return b.nextWrite }
func (b *Bank) NextPowerDown() int64 { return b.nextPowerDown }
func (b *Bank) NextPowerUp() int64   { return b.nextPowerUp }
func (b *Bank) NextRefresh() int64   { return b.nextRefresh }

// bump advances *field to at least v - every next_* field is monotonic
// non-decreasing under issue (spec invariant 2), so this is the only
// way any of them is ever written.
func bump(field *int64, v int64) {
	if v > *field {
		*field = v
	}
}

// BumpNextAct, BumpNextRead and BumpNextWrite apply a cross-bank or
// cross-rank side effect (e.g. tRRD neighbour-bank delay, other-rank
// read/write turnaround) computed by the issuer, which alone has
// visibility into bank topology. Bank itself never reaches into
// siblings.
func (b *Bank) BumpNextAct(v int64)   { bump(&b.nextAct, v) }
func (b *Bank) BumpNextRead(v int64)  { bump(&b.nextRead, v) }
func (b *Bank) BumpNextWrite(v int64) { bump(&b.nextWrite, v) }

// ActivateTiming bundles the timing parameters Activate needs.
type ActivateTiming struct {
	Now  int64
	TRAS int64
	TRCD int64
	TRC  int64
}

// Activate moves the bank to ROW_ACTIVE, opening row. The caller is
// responsible for checking is_activate_allowed and for applying the
// tRRD bump to sibling banks and recording the activation with the FAW
// tracker; Activate itself only updates this bank's own fields, per
// spec 4.3's transition table.
func (b *Bank) Activate(row int64, t ActivateTiming) error {
	switch b.state {
	case StateIdle, StatePrecharging, StateRefreshing:
	default:
		return InvalidTransition{From: b.state, Command: "ACT"}
	}
	b.state = StateRowActive
	b.activeRow = row
	bump(&b.nextPre, t.Now+t.TRAS)
	bump(&b.nextRead, t.Now+t.TRCD)
	bump(&b.nextWrite, t.Now+t.TRCD)
	bump(&b.nextAct, t.Now+t.TRC)
	return nil
}

// ColReadTiming bundles the timing parameters ColRead needs for this
// bank's own fields; cross-bank/cross-rank effects are applied by the
// caller via BumpNextRead/BumpNextWrite on siblings.
type ColReadTiming struct {
	Now        int64
	TRTP       int64
	TCAS       int64
	TDataTrans int64
}

// ColRead keeps the bank ROW_ACTIVE and returns the completion cycle
// for the issuing request (now+tCAS+tDataTrans per spec invariant 5).
func (b *Bank) ColRead(t ColReadTiming) (completion int64, err error) {
	if b.state != StateRowActive {
		return 0, InvalidTransition{From: b.state, Command: "COL_READ"}
	}
	bump(&b.nextPre, t.Now+t.TRTP)
	return t.Now + t.TCAS + t.TDataTrans, nil
}

// ColWriteTiming bundles the timing parameters ColWrite needs for this
// bank's own fields.
type ColWriteTiming struct {
	Now        int64
	TCWD       int64
	TDataTrans int64
	TWR        int64
}

// ColWrite keeps the bank ROW_ACTIVE and returns the completion cycle
// for the issuing request (now+tDataTrans+tWR per spec invariant 6).
func (b *Bank) ColWrite(t ColWriteTiming) (completion int64, err error) {
	if b.state != StateRowActive {
		return 0, InvalidTransition{From: b.state, Command: "COL_WRITE"}
	}
	bump(&b.nextPre, t.Now+t.TCWD+t.TDataTrans+t.TWR)
	return t.Now + t.TDataTrans + t.TWR, nil
}

// close moves the bank to PRECHARGING, available again at availableAt
// (now+tRP for a normal PRE, start_precharge+tRP for an auto-precharge
// folded into a COL command's own cycle budget - see AutoPrecharge).
// Bank records the *intent* immediately: state is set now, matching the
// source's behavior of mutating bank_state to PRECHARGING in
// issue_precharge_command/issue_autoprecharge and relying on next_*
// fields (not a separate timer) to gate subsequent commands.
func (b *Bank) close(availableAt int64) {
	b.state = StatePrecharging
	b.activeRow = NoRow
	bump(&b.nextAct, availableAt)
	bump(&b.nextPre, availableAt)
	bump(&b.nextRefresh, availableAt)
	bump(&b.nextPowerDown, availableAt)
}

// Precharge moves the bank to PRECHARGING, closing any open row.
func (b *Bank) Precharge(now, tRP int64) error {
	switch b.state {
	case StatePrechargePowerDownSlow, StatePrechargePowerDownFast, StateActivePowerDown:
		return InvalidTransition{From: b.state, Command: "PRE"}
	}
	b.close(now + tRP)
	return nil
}

// AutoPrecharge closes the bank as a side effect of the COL command
// that just issued against it, at availableAt (the caller computes
// start_precharge from the COL command's own completion timing, per
// is_autoprecharge_allowed/issue_autoprecharge). Unlike Precharge, this
// requires the bank to still be ROW_ACTIVE - an auto-precharge only
// ever follows the COL_READ/COL_WRITE that set casIssued this cycle.
func (b *Bank) AutoPrecharge(availableAt int64) error {
	if b.state != StateRowActive {
		return InvalidTransition{From: b.state, Command: "AUTO_PRE"}
	}
	b.close(availableAt)
	return nil
}

// MarkCASRead and MarkCASWrite record that a COL_READ/COL_WRITE issued
// against this bank this DRAM cycle, matching cas_issued_current_cycle
// being set to 1/2 at the tail of issue_read_command/issue_write_command.
func (b *Bank) MarkCASRead()  { b.casIssued = CASRead }
func (b *Bank) MarkCASWrite() { b.casIssued = CASWrite }

// CASIssued reports which column command, if any, issued against this
// bank this DRAM cycle.
func (b *Bank) CASIssued() CAS { return b.casIssued }

// ResetCycle clears the per-cycle CAS marker, matching update_memory's
// per-bank cas_issued_current_cycle reset at the top of every DRAM tick,
// before any command issue logic for that cycle runs.
func (b *Bank) ResetCycle() { b.casIssued = CASNone }

// Refresh moves the bank to REFRESHING with every next_* field
// advanced to now+tRFC (a forced refresh, per spec 4.5, does this for
// every bank on the rank regardless of individual bank state).
func (b *Bank) Refresh(now, tRFC int64) {
	b.state = StateRefreshing
	b.activeRow = NoRow
	deadline := now + tRFC
	bump(&b.nextAct, deadline)
	bump(&b.nextPre, deadline)
	bump(&b.nextRead, deadline)
	bump(&b.nextWrite, deadline)
	bump(&b.nextPowerDown, deadline)
	bump(&b.nextPowerUp, deadline)
	bump(&b.nextRefresh, deadline)
}

// PowerDown transitions an IDLE/PRECHARGING/REFRESHING bank to
// PRECHARGE_POWER_DOWN_{SLOW,FAST} or a ROW_ACTIVE bank to
// ACTIVE_POWER_DOWN (fast only). fast selects PRE_PDN_FAST over
// PRE_PDN_SLOW when the bank has no open row.
func (b *Bank) PowerDown(now, tPDMin int64, fast bool) error {
	switch b.state {
	case StateIdle, StatePrecharging, StateRefreshing:
		if fast {
			b.state = StatePrechargePowerDownFast
		} else {
			b.state = StatePrechargePowerDownSlow
		}
	case StateRowActive:
		if !fast {
			return InvalidTransition{From: b.state, Command: "PWR_DN_SLOW"}
		}
		b.state = StateActivePowerDown
	default:
		return InvalidTransition{From: b.state, Command: "PWR_DN"}
	}
	bump(&b.nextPowerUp, now+tPDMin)
	return nil
}

// PowerUp exits any power-down state. Slow-exit (PRE_PDN_SLOW) lands
// in IDLE after tXPDLL; fast-exit (PRE_PDN_FAST, ACTIVE_PDN) lands back
// in IDLE or ROW_ACTIVE (whichever power-down preserved) after tXP.
func (b *Bank) PowerUp(now, tXP, tXPDLL int64) error {
	var delay int64
	switch b.state {
	case StatePrechargePowerDownSlow:
		delay = tXPDLL
		b.state = StateIdle
	case StatePrechargePowerDownFast:
		delay = tXP
		b.state = StateIdle
	case StateActivePowerDown:
		delay = tXP
		b.state = StateRowActive
	default:
		return InvalidTransition{From: b.state, Command: "PWR_UP"}
	}
	deadline := now + delay
	bump(&b.nextAct, deadline)
	bump(&b.nextPre, deadline)
	bump(&b.nextRead, deadline)
	bump(&b.nextWrite, deadline)
	bump(&b.nextPowerDown, deadline)
	bump(&b.nextRefresh, deadline)
	return nil
}

// IsPoweredDown reports whether the bank is in any of the three
// powerdown states.
func (b *Bank) IsPoweredDown() bool {
	switch b.state {
	case StatePrechargePowerDownSlow, StatePrechargePowerDownFast, StateActivePowerDown:
		return true
	}
	return false
}

// Debug returns a one-line dump of the bank's state, in the style of
// pia6532.Chip.Debug.
func (b *Bank) Debug() string {
	return fmt.Sprintf("state: %s row: %d nextAct: %d nextPre: %d nextRead: %d nextWrite: %d nextPowerDown: %d nextPowerUp: %d nextRefresh: %d",
		b.state, b.activeRow, b.nextAct, b.nextPre, b.nextRead, b.nextWrite, b.nextPowerDown, b.nextPowerUp, b.nextRefresh)
}
