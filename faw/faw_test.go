package faw

import "testing"

// TestFAWSaturation mirrors scenario S5: five ACTs to distinct banks
// on one rank within tFAW; the fifth must be delayed so at most four
// land in any rolling tFAW window.
func TestFAWSaturation(t *testing.T) {
	tr := New(128)
	cycles := []int64{0, 10, 20, 30}
	for _, c := range cycles {
		if !tr.CanActivate(c) {
			t.Fatalf("CanActivate(%d) = false, want true", c)
		}
		if err := tr.Record(c); err != nil {
			t.Fatalf("Record(%d): %v", c, err)
		}
	}
	if tr.CanActivate(40) {
		t.Error("CanActivate(40) = true after 4 ACTs within tFAW, want false")
	}
	// Once the first activation ages out of the window, a 5th fits.
	if !tr.CanActivate(129) {
		t.Error("CanActivate(129) = false, want true once cycle 0 ages out")
	}
}

func TestDuplicateActivation(t *testing.T) {
	tr := New(128)
	if err := tr.Record(5); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := tr.Record(5); err == nil {
		t.Error("second Record at same cycle succeeded, want DuplicateActivation error")
	}
}

func TestLenPrunes(t *testing.T) {
	tr := New(10)
	_ = tr.Record(0)
	_ = tr.Record(5)
	if got, want := tr.Len(5), 2; got != want {
		t.Fatalf("Len(5) = %d, want %d", got, want)
	}
	if got, want := tr.Len(11), 1; got != want {
		t.Errorf("Len(11) = %d, want %d", got, want)
	}
}
