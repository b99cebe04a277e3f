package power

import "testing"

func baseElectrical() Electrical {
	return Electrical{
		VDD: 1.5, IDD0: 0.095, IDD1: 0.1, IDD2P0: 0.012, IDD2P1: 0.012, IDD2N: 0.05,
		IDD3P: 0.038, IDD3N: 0.052, IDD4R: 0.154, IDD4W: 0.154, IDD5: 0.22,
	}
}

func baseTiming() Timing {
	return Timing{TRAS: 30, TRC: 40, TRFC: 88, TREFI: 6240, TDataTrans: 4}
}

func TestCalculateRejectsZeroCycles(t *testing.T) {
	if _, err := Calculate(baseElectrical(), baseTiming(), Occupancy{}); err == nil {
		t.Error("Calculate with Cycles=0 succeeded, want error")
	}
}

func TestCalculateNoActivityYieldsZeroActivatePower(t *testing.T) {
	c, err := Calculate(baseElectrical(), baseTiming(), Occupancy{Cycles: 1000})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if c.Activate != 0 {
		t.Errorf("Activate = %v, want 0 when AverageGapBetweenActivates is 0", c.Activate)
	}
}

func TestCalculateTotalChipPowerIsSumOfComponents(t *testing.T) {
	occ := Occupancy{
		Cycles:                     100000,
		TimeActiveStandby:          20000,
		TimeActivePowerDown:        5000,
		TimePrechargePowerDownSlow: 1000,
		TimePrechargePowerDownFast: 2000,
		AverageGapBetweenActivates: 50,
		Reads:                      1000,
		Writes:                     500,
	}
	c, err := Calculate(baseElectrical(), baseTiming(), occ)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	want := c.Activate + c.TerminateWritesOther + c.TerminateReadsOther + c.WriteTerminate +
		c.ReadTerminate + c.Refresh + c.Read + c.Write + c.PrechargeStandby + c.ActiveStandby +
		c.PrechargePowerDownFast + c.PrechargePowerDownSlow + c.ActivePowerDown
	if got := c.TotalChipPower(); got != want {
		t.Errorf("TotalChipPower() = %v, want %v", got, want)
	}
}

func TestChipsPerRankKnownAndUnknown(t *testing.T) {
	chips, vi, err := ChipsPerRank(4, 4)
	if err != nil {
		t.Fatalf("ChipsPerRank(4,4): %v", err)
	}
	if chips != 4 || vi != "4Gb_x4.vi" {
		t.Errorf("ChipsPerRank(4,4) = (%d,%q), want (4, \"4Gb_x4.vi\")", chips, vi)
	}
	if _, _, err := ChipsPerRank(3, 17); err == nil {
		t.Error("ChipsPerRank(3,17) succeeded, want UnsupportedTopology error")
	}
}

func TestCorePowerHalvesForSingleChannel(t *testing.T) {
	timeDone := []int64{1000, 1000}
	multi := CorePower(timeDone, 1000, 4)
	single := CorePower(timeDone, 1000, 1)
	if single != multi/2 {
		t.Errorf("CorePower single-channel = %v, want half of multi-channel %v", single, multi)
	}
}
