package rob

import "testing"

func TestFetchFillsSlotsInOrder(t *testing.T) {
	r := New(4)
	s0 := r.Fetch(10)
	s1 := r.Fetch(20)
	if s0 != 0 || s1 != 1 {
		t.Fatalf("slots = %d, %d, want 0, 1", s0, s1)
	}
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
}

func TestFullBlocksFurtherFetch(t *testing.T) {
	r := New(2)
	r.Fetch(1)
	r.Fetch(2)
	if !r.Full() {
		t.Fatal("Full() = false, want true after filling capacity")
	}
}

func TestRetireStopsAtFirstIncompleteHead(t *testing.T) {
	r := New(4)
	r.Fetch(10)
	r.Fetch(Big)
	r.Fetch(30)

	n := r.Retire(100, 4)
	if n != 1 {
		t.Fatalf("Retire = %d, want 1 (second entry still at Big completion)", n)
	}
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
}

func TestRetireHonorsMaxRetire(t *testing.T) {
	r := New(4)
	r.Fetch(1)
	r.Fetch(1)
	r.Fetch(1)

	n := r.Retire(100, 2)
	if n != 2 {
		t.Fatalf("Retire = %d, want 2", n)
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
}

func TestSetCompletionUnblocksRetire(t *testing.T) {
	r := New(4)
	slot := r.Fetch(Big)
	if n := r.Retire(1000, 4); n != 0 {
		t.Fatalf("Retire before SetCompletion = %d, want 0", n)
	}
	r.SetCompletion(slot, 50)
	if n := r.Retire(1000, 4); n != 1 {
		t.Fatalf("Retire after SetCompletion = %d, want 1", n)
	}
}

func TestEmptyAfterAllRetired(t *testing.T) {
	r := New(2)
	r.Fetch(1)
	r.Retire(100, 4)
	if !r.Empty() {
		t.Fatal("Empty() = false, want true")
	}
}
