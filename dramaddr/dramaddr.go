// Package dramaddr decomposes a physical address into its DRAM
// (channel, rank, bank, row, column) coordinates. It mirrors the
// memory package's role in the teacher codebase: a small, pure,
// dependency-free interface with no side effects and nothing to Tick.
package dramaddr

import "fmt"

// Mapping selects how fields are stripped from a physical address,
// LSB upward, after the byte offset has been removed.
type Mapping int

const (
	// MappingUnimplemented is the zero value and is never valid.
	MappingUnimplemented Mapping = iota
	// MappingRowAdjacent strips column, channel, bank, rank, row - giving
	// cache-line-adjacent lines to the same row.
	MappingRowAdjacent
	// MappingBankStriped strips channel, bank, rank, column, row - striping
	// lines across banks.
	MappingBankStriped
	mappingMax
)

// Widths holds the configured bit width of every address field. The
// fields must sum to Bits.
type Widths struct {
	Channel    int
	Rank       int
	Bank       int
	Row        int
	Column     int
	ByteOffset int
	Bits       int
	Mapping    Mapping
}

// InvalidWidths is returned by New when the configured widths do not
// sum to Bits or an unknown Mapping is requested.
type InvalidWidths struct {
	Widths Widths
	Sum    int
}

// Error implements the error interface.
func (e InvalidWidths) Error() string {
	return fmt.Sprintf("dramaddr: widths sum to %d bits, want %d (%+v)", e.Sum, e.Widths.Bits, e.Widths)
}

// Decoder decodes physical addresses according to a fixed set of widths
// and a mapping policy. It is immutable once built and holds no mutable
// state, so a single Decoder may be shared across channels.
type Decoder struct {
	w Widths
}

// Address is the decomposed form of a physical address.
type Address struct {
	Actual  uint64
	Channel uint64
	Rank    uint64
	Bank    uint64
	Row     uint64
	Column  uint64
}

// New validates the widths and returns a Decoder. Widths.Mapping must be
// MappingRowAdjacent or MappingBankStriped; the five field widths plus
// ByteOffset must sum to exactly Bits.
func New(w Widths) (*Decoder, error) {
	if w.Mapping <= MappingUnimplemented || w.Mapping >= mappingMax {
		return nil, InvalidWidths{Widths: w}
	}
	sum := w.Channel + w.Rank + w.Bank + w.Row + w.Column + w.ByteOffset
	if sum != w.Bits {
		return nil, InvalidWidths{Widths: w, Sum: sum}
	}
	return &Decoder{w: w}, nil
}

// strip peels off n low bits of in, returning the stripped field value
// and the remaining high bits. Grounded on the XOR bit-stripping idiom
// used throughout original_source/src/memory_controller.c's
// calc_dram_addr (temp_b/temp_a/input_a dance), expressed with shifts
// and a mask instead of the double-shift-then-XOR the C source uses.
func strip(in uint64, n int) (field, rest uint64) {
	if n == 0 {
		return 0, in
	}
	mask := uint64(1)<<uint(n) - 1
	return in & mask, in >> uint(n)
}

// Decode splits pa into its DRAM coordinates. Decode is pure, total for
// any uint64 input (fields simply mask to their configured width) and
// deterministic.
func (d *Decoder) Decode(pa uint64) Address {
	a := Address{Actual: pa}
	rest := pa >> uint(d.w.ByteOffset)

	switch d.w.Mapping {
	case MappingRowAdjacent:
		a.Column, rest = strip(rest, d.w.Column)
		a.Channel, rest = strip(rest, d.w.Channel)
		a.Bank, rest = strip(rest, d.w.Bank)
		a.Rank, rest = strip(rest, d.w.Rank)
		a.Row, rest = strip(rest, d.w.Row)
	case MappingBankStriped:
		a.Channel, rest = strip(rest, d.w.Channel)
		a.Bank, rest = strip(rest, d.w.Bank)
		a.Rank, rest = strip(rest, d.w.Rank)
		a.Column, rest = strip(rest, d.w.Column)
		a.Row, rest = strip(rest, d.w.Row)
	}
	_ = rest
	return a
}

// Widths returns the Widths this Decoder was built with.
func (d *Decoder) Widths() Widths {
	return d.w
}
