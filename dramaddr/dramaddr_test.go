package dramaddr

import (
	"testing"

	"github.com/go-test/deep"
)

func widths(m Mapping) Widths {
	return Widths{
		Channel:    1,
		Rank:       1,
		Bank:       3,
		Row:        15,
		Column:     7,
		ByteOffset: 6,
		Bits:       33,
		Mapping:    m,
	}
}

func TestNewInvalid(t *testing.T) {
	tests := []struct {
		name string
		w    Widths
	}{
		{"bad mapping", Widths{Bits: 10, Mapping: mappingMax}},
		{"width mismatch", Widths{Channel: 1, Bits: 10, Mapping: MappingRowAdjacent}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := New(test.w); err == nil {
				t.Errorf("New(%+v) = nil error, want error", test.w)
			}
		})
	}
}

// TestColumnInvariant verifies spec invariant 8: under row-adjacent
// mapping two addresses differing only in the column field decode to
// the same (channel,rank,bank,row).
func TestColumnInvariant(t *testing.T) {
	d, err := New(widths(MappingRowAdjacent))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	base := uint64(0x1_2345_6700)
	a := d.Decode(base)
	for col := uint64(0); col < 1<<7; col++ {
		other := (base &^ (uint64(0x7F) << 6)) | (col << 6)
		b := d.Decode(other)
		want := Address{Actual: other, Channel: a.Channel, Rank: a.Rank, Bank: a.Bank, Row: a.Row, Column: col}
		if diff := deep.Equal(b, want); diff != nil {
			t.Errorf("Decode(%x) diff: %v", other, diff)
		}
	}
}

func TestDecodeFieldsStayWithinWidths(t *testing.T) {
	for _, m := range []Mapping{MappingRowAdjacent, MappingBankStriped} {
		d, err := New(widths(m))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		a := d.Decode(0xFFFF_FFFF_FFFF_FFFF)
		if a.Channel > 1 || a.Rank > 1 || a.Bank > 7 || a.Row > (1<<15)-1 || a.Column > 127 {
			t.Errorf("Decode produced out-of-width field: %+v", a)
		}
	}
}
