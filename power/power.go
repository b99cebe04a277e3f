// Package power derates IDD-table worst-case chip currents by
// observed per-rank occupancy and activity, grounded on
// calculate_power in original_source/src/memory_controller.c (itself
// implementing Micron's "TN-41-01: Calculating Memory System Power
// for DDR"). Occupancy counters are supplied by the caller (Channel);
// this package is a pure function of those counters plus the
// electrical Params.
package power

import "fmt"

// ODT (on-die termination) constants from the Micron tech note the
// source hardcodes; the simulated configuration uses the same
// termination scheme as the note, so these are not derived from any
// config token.
const (
	oDTDQmA      = 3.2 * 10
	oDTTermWmA   = 0
	oDTTermRothmA = 24.9 * 10
	oDTTermWothmA = 20.8 * 11
)

// Electrical holds the IDD-table currents and voltage a rank's power
// is derated from. IDD1 is carried (per SPEC_FULL.md's electrical
// token expansion) even though the reference formula does not use it.
type Electrical struct {
	VDD    float64
	IDD0   float64
	IDD1   float64
	IDD2P0 float64
	IDD2P1 float64
	IDD2N  float64
	IDD3P  float64
	IDD3N  float64
	IDD4R  float64
	IDD4W  float64
	IDD5   float64
}

// Timing holds the subset of DDR timing parameters the power formula
// needs.
type Timing struct {
	TRAS       int64
	TRC        int64
	TRFC       int64
	TREFI      int64
	TDataTrans int64
}

// Occupancy holds the cycle-granularity counters Channel accumulates
// per rank over the simulation.
type Occupancy struct {
	Cycles int64

	TimeActiveStandby          int64
	TimeActivePowerDown        int64
	TimePrechargePowerDownSlow int64
	TimePrechargePowerDownFast int64
	TimeTerminatingReadsOther  int64
	TimeTerminatingWritesOther int64

	AverageGapBetweenActivates int64 // 0 means no ACTs observed yet
	Reads                      int64
	Writes                     int64
}

// Components is the breakdown of a single rank's derated power, in
// milliwatts, mirroring the thirteen psch_* terms in calculate_power.
type Components struct {
	Activate               float64
	ActivePowerDown        float64
	ActiveStandby          float64
	PrechargePowerDownSlow float64
	PrechargePowerDownFast float64
	PrechargeStandby       float64
	Read                   float64
	Write                  float64
	ReadTerminate          float64
	WriteTerminate         float64
	TerminateReadsOther    float64
	TerminateWritesOther   float64
	Refresh                float64
}

// TotalChipPower sums all thirteen components, matching
// total_chip_power in calculate_power.
func (c Components) TotalChipPower() float64 {
	return c.Activate + c.TerminateWritesOther + c.TerminateReadsOther + c.WriteTerminate +
		c.ReadTerminate + c.Refresh + c.Read + c.Write + c.PrechargeStandby + c.ActiveStandby +
		c.PrechargePowerDownFast + c.PrechargePowerDownSlow + c.ActivePowerDown
}

// Calculate derates e's worst-case currents by occ and returns the
// per-chip power breakdown for one rank. chipsPerRank scales
// TotalChipPower() up to the rank's total power; callers needing rank
// power compute c.TotalChipPower() * chipsPerRank themselves (mirroring
// calculate_power's separate total_rank_power local).
func Calculate(e Electrical, t Timing, occ Occupancy) (Components, error) {
	if occ.Cycles <= 0 {
		return Components{}, fmt.Errorf("power: Calculate requires Occupancy.Cycles > 0, got %d", occ.Cycles)
	}
	cyc := float64(occ.Cycles)

	pdsAct := (e.IDD0 - (e.IDD3N*float64(t.TRAS)+e.IDD2N*float64(t.TRC-t.TRAS))/float64(t.TRC)) * e.VDD
	pdsPrePdnSlow := e.IDD2P0 * e.VDD
	pdsPrePdnFast := e.IDD2P1 * e.VDD
	pdsActPdn := e.IDD3P * e.VDD
	pdsPreStby := e.IDD2N * e.VDD
	pdsActStby := e.IDD3N * e.VDD
	pdsWr := (e.IDD4W - e.IDD3N) * e.VDD
	pdsRd := (e.IDD4R - e.IDD3N) * e.VDD
	pdsRef := (e.IDD5 - e.IDD3N) * e.VDD

	var c Components

	if occ.AverageGapBetweenActivates == 0 {
		c.Activate = 0
	} else {
		c.Activate = pdsAct * float64(t.TRC) / float64(occ.AverageGapBetweenActivates)
	}

	c.ActivePowerDown = pdsActPdn * (float64(occ.TimeActivePowerDown) / cyc)
	c.PrechargePowerDownSlow = pdsPrePdnSlow * (float64(occ.TimePrechargePowerDownSlow) / cyc)
	c.PrechargePowerDownFast = pdsPrePdnFast * (float64(occ.TimePrechargePowerDownFast) / cyc)
	c.ActiveStandby = pdsActStby * (float64(occ.TimeActiveStandby) / cyc)

	busyPdn := occ.TimeActiveStandby + occ.TimePrechargePowerDownSlow + occ.TimePrechargePowerDownFast + occ.TimeActivePowerDown
	c.PrechargeStandby = pdsPreStby * float64(occ.Cycles-busyPdn) / cyc

	c.Write = pdsWr * float64(occ.Writes*t.TDataTrans) / cyc
	c.Read = pdsRd * float64(occ.Reads*t.TDataTrans) / cyc
	c.Refresh = pdsRef * float64(t.TRFC) / float64(t.TREFI)

	c.ReadTerminate = oDTDQmA * float64(occ.Reads*t.TDataTrans) / cyc
	c.WriteTerminate = oDTTermWmA * float64(occ.Writes*t.TDataTrans) / cyc
	c.TerminateReadsOther = oDTTermRothmA * (float64(occ.TimeTerminatingReadsOther) / cyc)
	c.TerminateWritesOther = oDTTermWothmA * (float64(occ.TimeTerminatingWritesOther) / cyc)

	return c, nil
}

// chipsPerRankTable reproduces main.c's lookup keyed by
// (NUM_CHANNELS, NUMCORES), each entry naming a specific nominal chip
// density. The PANIC branch in the source becomes an error here.
var chipsPerRankTable = map[[2]int]struct {
	Chips  int
	VIFile string
}{
	{1, 1}: {8, "1Gb_x8.vi"},
	{1, 2}: {8, "2Gb_x8.vi"},
	{1, 4}: {8, "4Gb_x8.vi"},
	{1, 8}: {4, "1Gb_x16.vi"},
	{4, 1}: {4, "1Gb_x4.vi"},
	{4, 2}: {4, "2Gb_x4.vi"},
	{4, 4}: {4, "4Gb_x4.vi"},
}

// UnsupportedTopology is returned by ChipsPerRank when the
// (numChannels, numCores) pair has no entry in the reference table.
type UnsupportedTopology struct {
	NumChannels int
	NumCores    int
}

// Error implements the error interface.
func (e UnsupportedTopology) Error() string {
	return fmt.Sprintf("power: no chips-per-rank entry for %d channel(s) / %d core(s)", e.NumChannels, e.NumCores)
}

// ChipsPerRank returns the reference chips-per-rank multiplier and the
// nominal .vi electrical file it implies for a given channel/core
// topology (spec SPEC_FULL.md 4.10), or an error for unsupported
// combinations (the original PANICs and aborts).
func ChipsPerRank(numChannels, numCores int) (chips int, viFile string, err error) {
	e, ok := chipsPerRankTable[[2]int{numChannels, numCores}]
	if !ok {
		return 0, "", UnsupportedTopology{NumChannels: numChannels, NumCores: numCores}
	}
	return e.Chips, e.VIFile, nil
}

// SystemPower bundles end-of-run totals mirroring the
// Total/Miscellaneous/Core/EDP lines main.c prints after the loop.
type SystemPower struct {
	TotalMemoryPowerW float64
	MiscellaneousW    float64
	CorePowerW        float64
	TotalSystemPowerW float64
	EDPJouleSeconds   float64
}

// System computes the end-of-run system power summary. totalRankPowerMW
// is the sum, across every (channel,rank), of Components.TotalChipPower()*chipsPerRank;
// corePowerW follows main.c's "10W peak per core while running,
// perfectly gated otherwise" model, halved for a single-channel system;
// cycles and freqHz give the EDP term (P * (cycles/freq)^2).
func System(totalRankPowerMW float64, corePowerW float64, numChannels int, cycles int64, freqHz float64) SystemPower {
	var misc float64
	if numChannels == 4 {
		misc = 40
	} else {
		misc = 10
	}
	total := misc + corePowerW + totalRankPowerMW/1000
	seconds := float64(cycles) / freqHz
	return SystemPower{
		TotalMemoryPowerW: totalRankPowerMW / 1000,
		MiscellaneousW:    misc,
		CorePowerW:        corePowerW,
		TotalSystemPowerW: total,
		EDPJouleSeconds:   total * seconds * seconds,
	}
}

// CorePower sums, over every core, 10W while the core's thread was
// still running (time_done[core]/CYCLE_VAL fraction of the run),
// halved on a single-channel system per main.c's "more
// energy-efficient" comment.
func CorePower(timeDone []int64, totalCycles int64, numChannels int) float64 {
	var p float64
	for _, td := range timeDone {
		p += 10 * (float64(td) / float64(totalCycles))
	}
	if numChannels == 1 {
		p /= 2.0
	}
	return p
}
