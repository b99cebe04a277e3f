package request

import (
	"testing"

	"github.com/pranith/usimm/dramaddr"
)

func TestQueueAppendAndFind(t *testing.T) {
	q := NewQueue(0)
	r := NewRequest(dramaddr.Address{Actual: 0x100}, OpRead, 0, 0, 0, 5)
	q.Append(r)
	if got, want := q.Len(), 1; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
	if idx := q.Find(0x100); idx != 0 {
		t.Errorf("Find(0x100) = %d, want 0", idx)
	}
	if idx := q.Find(0x200); idx != -1 {
		t.Errorf("Find(0x200) = %d, want -1", idx)
	}
}

// TestRemoveServedPreservesOrder checks that RemoveServed drops served
// entries without disturbing the arrival order of the survivors.
func TestRemoveServedPreservesOrder(t *testing.T) {
	q := NewQueue(64)
	for i, addr := range []uint64{0x10, 0x20, 0x30} {
		r := NewRequest(dramaddr.Address{Actual: addr}, OpWrite, 0, i, 0, int64(i))
		q.Append(r)
	}
	q.At(1).Served = true
	q.RemoveServed()
	if got, want := q.Len(), 2; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
	if got, want := q.At(0).Addr.Actual, uint64(0x10); got != want {
		t.Errorf("survivor[0] addr = %x, want %x", got, want)
	}
	if got, want := q.At(1).Addr.Actual, uint64(0x30); got != want {
		t.Errorf("survivor[1] addr = %x, want %x", got, want)
	}
}

func TestQueueFull(t *testing.T) {
	q := NewQueue(1)
	if q.Full() {
		t.Fatal("Full() = true on empty bounded queue")
	}
	q.Append(NewRequest(dramaddr.Address{}, OpWrite, 0, 0, 0, 0))
	if !q.Full() {
		t.Error("Full() = false at capacity, want true")
	}
	unbounded := NewQueue(0)
	unbounded.Append(NewRequest(dramaddr.Address{}, OpRead, 0, 0, 0, 0))
	if unbounded.Full() {
		t.Error("unbounded Full() = true, want false")
	}
}
