// Package ident implements the value types that identify records and
// transactions in the redo stream: SCN, XID, LOB-ID, and XID-MAP, plus
// the small named integer types original_source/src/common/types.h
// defines for the fields that flow through them.
package ident

// Named integer types mirroring original_source/src/common/types.h, kept
// distinct so call sites read the way the C++ typedefs they come from
// do.
type (
	ConId  int16
	Seq    uint32
	Blk    uint32
	Dba    uint32
	Uba    uint64
	SubScn uint16
)

// UbaBlock extracts the block component of a typeUba, matching the
// BLOCK(uba) macro in types.h.
func UbaBlock(uba Uba) uint32 {
	return uint32(uba & 0xFFFFFFFF)
}

// UbaSequence extracts the sequence component of a typeUba, matching the
// SEQUENCE(uba) macro in types.h.
func UbaSequence(uba Uba) uint16 {
	return uint16((uint64(uba) >> 32) & 0xFFFF)
}

// UbaRecord extracts the record component of a typeUba, matching the
// RECORD(uba) macro in types.h.
func UbaRecord(uba Uba) uint8 {
	return uint8((uint64(uba) >> 48) & 0xFF)
}
