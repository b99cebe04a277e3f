package bank

import "testing"

func TestActivateThenColRead(t *testing.T) {
	b := New(false)
	if err := b.Activate(5, ActivateTiming{Now: 0, TRAS: 30, TRCD: 10, TRC: 40}); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if got, want := b.State(), StateRowActive; got != want {
		t.Errorf("State() = %s, want %s", got, want)
	}
	if got, want := b.ActiveRow(), int64(5); got != want {
		t.Errorf("ActiveRow() = %d, want %d", got, want)
	}
	completion, err := b.ColRead(ColReadTiming{Now: 10, TRTP: 24, TCAS: 10, TDataTrans: 4})
	if err != nil {
		t.Fatalf("ColRead: %v", err)
	}
	if want := int64(24); completion != want {
		t.Errorf("ColRead completion = %d, want %d", completion, want)
	}
	if want := int64(34); b.NextPre() != want {
		t.Errorf("NextPre() after ColRead = %d, want %d", b.NextPre(), want)
	}
}

func TestColReadRequiresRowActive(t *testing.T) {
	b := New(false)
	if _, err := b.ColRead(ColReadTiming{}); err == nil {
		t.Error("ColRead on IDLE bank succeeded, want error")
	}
}

func TestNextFieldsMonotonic(t *testing.T) {
	b := New(false)
	_ = b.Activate(0, ActivateTiming{Now: 100, TRAS: 30, TRCD: 10, TRC: 40})
	// A second, earlier bump must not move NextAct backwards from
	// Now+TRC = 140 (invariant 2).
	b.BumpNextAct(50)
	if b.NextAct() != 140 {
		t.Fatalf("unexpected NextAct: %d", b.NextAct())
	}
	before := b.NextPre()
	bump(&b.nextPre, 10) // smaller than current value
	if b.NextPre() != before {
		t.Errorf("NextPre decreased: before %d after %d", before, b.NextPre())
	}
}

func TestPowerDownAndUpRoundTrip(t *testing.T) {
	b := New(false)
	if err := b.PowerDown(0, 16, true); err != nil {
		t.Fatalf("PowerDown: %v", err)
	}
	if got, want := b.State(), StatePrechargePowerDownFast; got != want {
		t.Fatalf("State() = %s, want %s", got, want)
	}
	if err := b.PowerUp(16, 20, 40); err != nil {
		t.Fatalf("PowerUp: %v", err)
	}
	if got, want := b.State(), StateIdle; got != want {
		t.Errorf("State() after PowerUp = %s, want %s", got, want)
	}
	if want := int64(36); b.NextAct() != want {
		t.Errorf("NextAct() after PowerUp = %d, want %d", b.NextAct(), want)
	}
}

func TestRefreshAdvancesAllFields(t *testing.T) {
	b := New(false)
	_ = b.Activate(1, ActivateTiming{Now: 0, TRAS: 10, TRCD: 5, TRC: 20})
	b.Refresh(20, 88)
	if got, want := b.State(), StateRefreshing; got != want {
		t.Errorf("State() = %s, want %s", got, want)
	}
	if got, want := b.ActiveRow(), NoRow; got != want {
		t.Errorf("ActiveRow() = %d, want %d", got, want)
	}
	if want := int64(108); b.NextAct() != want {
		t.Errorf("NextAct() = %d, want %d", b.NextAct(), want)
	}
}
