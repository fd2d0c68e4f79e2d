package ident

import "fmt"

// Scn is a system change number: a 64-bit monotonic ordering token.
// Grounded on original_source/src/common/types.h (typeScn) and the
// PRINTSCN48/PRINTSCN64/PRINTSCN64D formatting macros there.
type Scn uint64

// String48 formats scn the way PRINTSCN48 does: a 48-bit value split
// into a 16-bit high word and a 32-bit low word, hex with the decimal
// value alongside.
func (scn Scn) String48() string {
	hi := (uint64(scn) >> 32) & 0xFFFF
	lo := uint64(scn) & 0xFFFFFFFF
	return fmt.Sprintf("0x%04x.%08x (%d)", hi, lo, uint64(scn))
}

// String64 formats scn the way PRINTSCN64 does: the full 64-bit value as
// a flat hex number with the decimal value alongside.
func (scn Scn) String64() string {
	return fmt.Sprintf("0x%016x (%d)", uint64(scn), uint64(scn))
}

// String64Split formats scn the way PRINTSCN64D does: a 16/16/32 split
// of the 64-bit value, hex with the decimal value alongside.
func (scn Scn) String64Split() string {
	hi := (uint64(scn) >> 48) & 0xFFFF
	mid := (uint64(scn) >> 32) & 0xFFFF
	lo := uint64(scn) & 0xFFFFFFFF
	return fmt.Sprintf("0x%04x.%04x.%08x (%d)", hi, mid, lo, uint64(scn))
}

// String defaults to the 64-bit flat presentation.
func (scn Scn) String() string {
	return scn.String64()
}

// MakeScn48 builds an Scn from a 32-bit base and 16-bit wrap, matching
// the SCN(scn1, scn2) macro in types.h.
func MakeScn48(wrap uint32, base uint32) Scn {
	return Scn((uint64(wrap) << 32) | uint64(base))
}
