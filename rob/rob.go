// Package rob implements the thin reorder-buffer contract the memory
// subsystem needs from a processor core: a per-slot completion
// timestamp and nothing else. The spec treats the real ROB (wakeup,
// retirement ordering beyond a simple ring, squash on misprediction)
// as an external collaborator; this package only needs to satisfy the
// "per-core array of completion timestamps indexed by instruction
// slot" contract the controller reads and writes.
package rob

// Big is the unreachable completion sentinel installed for a read's
// ROB slot at fetch time, replaced once the issuer services it.
const Big = int64(1) << 40

// entry is one in-flight instruction's completion time plus whether
// the slot is currently occupied.
type entry struct {
	valid      bool
	completion int64
}

// ROB is a fixed-capacity ring of completion timestamps for one core,
// grounded on the spec's instruction that the ROB's only externally
// visible contract is this array.
type ROB struct {
	entries []entry
	head    int
	tail    int
	count   int
}

// New returns an empty ROB with the given number of slots.
func New(size int) *ROB {
	return &ROB{entries: make([]entry, size)}
}

// Len returns the number of occupied slots.
func (r *ROB) Len() int { return r.count }

// Full reports whether the ROB has no free slot.
func (r *ROB) Full() bool { return r.count == len(r.entries) }

// Empty reports whether the ROB holds no in-flight instructions.
func (r *ROB) Empty() bool { return r.count == 0 }

// Fetch appends a new instruction with the given completion time and
// returns its slot index. Callers must check Full first; Fetch panics
// if the ROB has no free slot, since the tick loop is expected to gate
// fetch on capacity before calling.
func (r *ROB) Fetch(completion int64) int {
	if r.Full() {
		panic("rob: Fetch called on a full ROB")
	}
	slot := r.tail
	r.entries[slot] = entry{valid: true, completion: completion}
	r.tail = (r.tail + 1) % len(r.entries)
	r.count++
	return slot
}

// SetCompletion updates the completion time of an already-fetched
// slot, used by the issuer when a read's COL_READ finally issues.
func (r *ROB) SetCompletion(slot int, completion int64) {
	r.entries[slot].completion = completion
}

// Retire pops up to maxRetire heads whose completion is <= now,
// stopping at the first head not yet complete (ROB retirement is
// strictly in program order). Returns the number actually retired.
func (r *ROB) Retire(now int64, maxRetire int) int {
	retired := 0
	for retired < maxRetire && r.count > 0 {
		head := &r.entries[r.head]
		if !head.valid || head.completion > now {
			break
		}
		head.valid = false
		r.head = (r.head + 1) % len(r.entries)
		r.count--
		retired++
	}
	return retired
}
