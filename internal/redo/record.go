// Package redo implements RedoLogRecord, the physical redo/undo log
// record value type shared by the transaction buffer and builder, plus
// the byte-exact field-table helpers TransactionBuffer.mergeBlocks needs.
package redo

import (
	"encoding/binary"

	"github.com/ologcdc/corebuf/internal/ident"
)

// HeaderSize is the encoded byte width of a RedoLogRecord header as
// stored inline in a TransactionChunk row or a Lob blob; DataExt is
// appended separately by the caller.
const HeaderSize = 2 + 2 + 2 + 2 + 2 + 2 + 8 + 2 + 4 + 4 + ident.LobIdLength

// EncodeHeader writes r's fixed-width fields into b (which must be at
// least HeaderSize bytes) using order.
func EncodeHeader(order binary.ByteOrder, b []byte, r *RedoLogRecord) {
	order.PutUint16(b[0:2], r.Size)
	order.PutUint16(b[2:4], r.FieldCnt)
	order.PutUint16(b[4:6], r.FieldPos)
	order.PutUint16(b[6:8], r.FieldSizesDelta)
	order.PutUint16(b[8:10], r.Flg)
	order.PutUint16(b[10:12], r.OpCode)
	order.PutUint64(b[12:20], uint64(r.Scn))
	order.PutUint16(b[20:22], uint16(r.SubScn))
	order.PutUint32(b[22:26], uint32(r.Dba))
	order.PutUint32(b[26:30], r.DataOffset)
	copy(b[30:30+ident.LobIdLength], r.LobId[:])
}

// DecodeHeader reads a RedoLogRecord's fixed-width fields out of b
// (which must be at least HeaderSize bytes) using order. DataExt is left
// nil; the caller re-slices it over the payload bytes it owns.
func DecodeHeader(order binary.ByteOrder, b []byte) RedoLogRecord {
	var r RedoLogRecord
	r.Size = order.Uint16(b[0:2])
	r.FieldCnt = order.Uint16(b[2:4])
	r.FieldPos = order.Uint16(b[4:6])
	r.FieldSizesDelta = order.Uint16(b[6:8])
	r.Flg = order.Uint16(b[8:10])
	r.OpCode = order.Uint16(b[10:12])
	r.Scn = ident.Scn(order.Uint64(b[12:20]))
	r.SubScn = ident.SubScn(order.Uint16(b[20:22]))
	r.Dba = ident.Dba(order.Uint32(b[22:26]))
	r.DataOffset = order.Uint32(b[26:30])
	copy(r.LobId[:], b[30:30+ident.LobIdLength])
	return r
}

// Flag bits carried in RedoLogRecord.Flg, matching the FLG_* constants
// referenced by original_source/src/parser/TransactionBuffer.cpp.
const (
	FlgMultiBlockUndoHead uint16 = 1 << 0
	FlgMultiBlockUndoTail uint16 = 1 << 1
	FlgMultiBlockUndoMid  uint16 = 1 << 2
	FlgLastBufferSplit    uint16 = 1 << 3
)

// UndoHeadFlagFieldOffset is the byte offset (relative to the merged
// record's recomputed fieldPos) at which the HEAD record's flg is
// rewritten into the field table after a merge. Carried over literally
// from original_source/src/parser/TransactionBuffer.cpp's
// `ctx->write16(redoLogRecord1->data() + fieldPos + 20, redoLogRecord1->flg)`;
// its opcode-specific meaning (OpCode 0x0501's flag sub-field) is out of
// scope here — see DESIGN.md Open Question decisions.
const UndoHeadFlagFieldOffset = 20

// RedoLogRecord is a fixed-size header plus a payload referenced
// indirectly via DataExt. All field offsets inside the payload are byte
// offsets; field sizes are 16-bit and live in the field-sizes sub-table
// starting at FieldSizesDelta.
//
// DataExt is kept as an explicit slice rather than a raw pointer (see
// spec.md §9 "Pointer-carrying value types"): callers must not retain a
// RedoLogRecord across a point where the backing chunk it points into
// could be reused, the same discipline the original enforces by keeping
// dataExt valid only while the owning TransactionChunk slot is live.
type RedoLogRecord struct {
	Size           uint16
	FieldCnt       uint16
	FieldPos       uint16
	FieldSizesDelta uint16
	Flg            uint16
	OpCode         uint16
	Scn            ident.Scn
	SubScn         ident.SubScn
	Dba            ident.Dba
	DataOffset     uint32
	LobId          ident.LobId

	// DataExt references the payload bytes. It is not copied by value
	// along with the header; every accessor below takes it explicitly
	// or reads it from this field when the record owns a live slice.
	DataExt []byte
}

// Data returns the record's payload slice.
func (r *RedoLogRecord) Data() []byte {
	return r.DataExt
}

// FieldSize reads the 16-bit size of field index i from the field-sizes
// sub-table, using order for the byte layout.
func (r *RedoLogRecord) FieldSize(order ByteOrder, i uint16) uint16 {
	off := int(r.FieldSizesDelta) + int(i)*2
	return order.Uint16(r.DataExt[off : off+2])
}

// SetFieldSize writes the 16-bit size of field index i in the
// field-sizes sub-table.
func (r *RedoLogRecord) SetFieldSize(order ByteOrder, i uint16, value uint16) {
	off := int(r.FieldSizesDelta) + int(i)*2
	order.PutUint16(r.DataExt[off:off+2], value)
}

// ByteOrder is the minimal endianness contract RedoLogRecord's
// field-table helpers need; any binary.ByteOrder (such as ctx.Ctx.Order)
// satisfies it.
type ByteOrder interface {
	Uint16(b []byte) uint16
	PutUint16(b []byte, v uint16)
}

// Align4 rounds size up to the next 4-byte boundary, matching the
// `(x + 3) & ~3` idiom used throughout
// original_source/src/parser/TransactionBuffer.cpp's mergeBlocks.
func Align4(size int) int {
	return (size + 3) &^ 3
}
