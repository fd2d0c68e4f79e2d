// Package txbuffer implements the transaction staging layer: the
// sub-allocated TransactionChunk slab, the Transaction that chains them,
// and the TransactionBuffer that owns sub-allocation, the XID lookup
// map, the orphaned-LOB map, and byte-exact multi-block undo merging.
// Grounded on
// original_source/src/parser/TransactionBuffer.h/.cpp.
package txbuffer

import (
	"encoding/binary"

	"github.com/ologcdc/corebuf/internal/corerr"
	"github.com/ologcdc/corebuf/internal/redo"
)

// Row layout offsets within a TransactionChunk's buffer, matching
// TransactionChunk::ROW_HEADER_* in original_source. A stored record is
// [opCodePair u32][redo1 header][redo2 header][data1][data2][totalSize u64].
const (
	rowHeaderOp    = 0
	rowHeaderRedo1 = 4
	rowHeaderRedo2 = rowHeaderRedo1 + redo.HeaderSize
	rowHeaderData  = rowHeaderRedo2 + redo.HeaderSize
	rowHeaderSize  = rowHeaderData
	rowHeaderTotal = rowHeaderData + 8
)

// fullBufferSize and slotsPerSlab mirror FULL_BUFFER_SIZE and
// BUFFERS_FREE_MASK+1: a pool chunk is logically split into 16 fixed
// 64KiB slots.
const (
	fullBufferSize = 65536
	slotsPerSlab   = 16
	slotsFreeMask  = uint16(0xFFFF)

	// DataBufferSize is the usable body of a TransactionChunk. The
	// original reserves HEADER_BUFFER_SIZE (48 bytes: three uint64 plus
	// three pointers) from FULL_BUFFER_SIZE for the struct header before
	// `buffer` starts; the Go TransactionChunk keeps its header fields
	// out of the byte array entirely, but DataBufferSize is kept at the
	// same value so row layouts and size guards stay byte-for-byte
	// compatible with the original engine's DATA_BUFFER_SIZE.
	DataBufferSize = fullBufferSize - 48
)

// memSlab is one 1MiB pool chunk sub-allocated into slotsPerSlab
// TransactionChunks, matching the pool chunk original_source's
// TransactionChunk instances are placement-new'd into.
type memSlab struct {
	mem []byte
}

// TransactionChunk is a 64KiB slab holding a sequence of variable-length
// transaction records, matching original_source's TransactionChunk.
type TransactionChunk struct {
	Elements uint64
	Size     uint64

	slab *memSlab
	pos  uint64

	Prev, Next *TransactionChunk

	// Buffer is this chunk's slot (one of slotsPerSlab) of slab.mem (see
	// newSlotChunk), not an independent allocation: the original
	// placement-news TransactionChunk at slot*FULL_BUFFER_SIZE inside the
	// pool chunk with buffer following HEADER_BUFFER_SIZE bytes later;
	// Go has no placement-new, so TransactionChunk itself stays an
	// ordinary heap struct, but Buffer must still alias the pool chunk's
	// bytes for sub-allocation to mean anything.
	Buffer []byte
}

// newSlotChunk carves pos's 64KiB slot out of slab.mem, offsetting past
// the original's HEADER_BUFFER_SIZE (fullBufferSize-DataBufferSize)
// reservation the same way TransactionChunk::buffer starts after its own
// struct header within that slot.
func newSlotChunk(slab *memSlab, pos uint64) *TransactionChunk {
	slotStart := pos * fullBufferSize
	dataStart := slotStart + (fullBufferSize - DataBufferSize)
	return &TransactionChunk{
		slab:   slab,
		pos:    pos,
		Buffer: slab.mem[dataStart : dataStart+DataBufferSize],
	}
}

// Record is a handle into one stored row: its owning chunk, the byte
// offset of the row's opCodePair field, and the row's total size
// (header + data + trailer).
type Record struct {
	Tc         *TransactionChunk
	Offset     uint64
	RecordSize uint64
}

// OpCode returns the packed (opCode1<<16 | opCode2) pair for the row.
func (r Record) OpCode(order binary.ByteOrder) uint32 {
	return order.Uint32(r.Tc.Buffer[r.Offset+rowHeaderOp : r.Offset+rowHeaderOp+4])
}

// Redo1 decodes the row's first RedoLogRecord header, with DataExt
// re-sliced over data1.
func (r Record) Redo1(order binary.ByteOrder) redo.RedoLogRecord {
	rec := redo.DecodeHeader(order, r.Tc.Buffer[r.Offset+rowHeaderRedo1:r.Offset+rowHeaderRedo1+redo.HeaderSize])
	rec.DataExt = r.Tc.Buffer[r.Offset+rowHeaderData : r.Offset+rowHeaderData+uint64(rec.Size)]
	return rec
}

// Redo2 decodes the row's second RedoLogRecord header (zeroed for a
// single-record row), with DataExt re-sliced over data2.
func (r Record) Redo2(order binary.ByteOrder) redo.RedoLogRecord {
	rec := redo.DecodeHeader(order, r.Tc.Buffer[r.Offset+rowHeaderRedo2:r.Offset+rowHeaderRedo2+redo.HeaderSize])
	redo1Size := uint64(order.Uint16(r.Tc.Buffer[r.Offset+rowHeaderRedo1 : r.Offset+rowHeaderRedo1+2]))
	start := r.Offset + rowHeaderData + redo1Size
	rec.DataExt = r.Tc.Buffer[start : start+uint64(rec.Size)]
	return rec
}

// Next advances the record handle to the next row in the chunk,
// locating the new row's size field the same way FirstRecord does,
// matching TransactionChunkRecord::next.
func (r Record) Next(order binary.ByteOrder) Record {
	off := r.Offset + r.RecordSize
	size1 := order.Uint16(r.Tc.Buffer[off+rowHeaderRedo1 : off+rowHeaderRedo1+2])
	size2 := order.Uint16(r.Tc.Buffer[off+rowHeaderRedo2 : off+rowHeaderRedo2+2])
	lastSize := order.Uint64(r.Tc.Buffer[off+rowHeaderData+uint64(size1)+uint64(size2) : off+rowHeaderData+uint64(size1)+uint64(size2)+8])
	return Record{Tc: r.Tc, Offset: off, RecordSize: lastSize}
}

// begin returns the chunk's data start.
func (tc *TransactionChunk) begin() []byte { return tc.Buffer[:] }

// end returns the chunk's data end (one past the last used byte).
func (tc *TransactionChunk) end() []byte { return tc.Buffer[:tc.Size] }

// FirstRecord returns a handle to the first row in the chunk, locating
// its size field via redo1.size + redo2.size the way
// TransactionChunk::firstRecord does.
func (tc *TransactionChunk) FirstRecord(order binary.ByteOrder) Record {
	size1 := order.Uint16(tc.Buffer[rowHeaderRedo1 : rowHeaderRedo1+2])
	size2 := order.Uint16(tc.Buffer[rowHeaderRedo2 : rowHeaderRedo2+2])
	lastSize := order.Uint64(tc.Buffer[rowHeaderData+uint64(size1)+uint64(size2) : rowHeaderData+uint64(size1)+uint64(size2)+8])
	return Record{Tc: tc, Offset: 0, RecordSize: lastSize}
}

// LastRecord returns a handle to the last row in the chunk, using the
// tail-stored total size field for O(1) location.
func (tc *TransactionChunk) LastRecord(order binary.ByteOrder) Record {
	end := tc.Size
	lastSize := order.Uint64(tc.Buffer[end-rowHeaderTotal+rowHeaderSize : end-rowHeaderTotal+rowHeaderSize+8])
	return Record{Tc: tc, Offset: end - lastSize, RecordSize: lastSize}
}

// AppendSingle writes r with its second redo slot zeroed, matching
// TransactionChunk::appendTransaction(RedoLogRecord*). The caller must
// already have checked tc.Size+chunkSize fits DataBufferSize.
func (tc *TransactionChunk) AppendSingle(order binary.ByteOrder, r *redo.RedoLogRecord) {
	chunkSize := uint64(r.Size) + rowHeaderTotal
	off := tc.Size

	order.PutUint32(tc.Buffer[off+rowHeaderOp:off+rowHeaderOp+4], uint32(r.OpCode)<<16)
	redo.EncodeHeader(order, tc.Buffer[off+rowHeaderRedo1:off+rowHeaderRedo1+redo.HeaderSize], r)
	clear(tc.Buffer[off+rowHeaderRedo2 : off+rowHeaderRedo2+redo.HeaderSize])
	copy(tc.Buffer[off+rowHeaderData:off+rowHeaderData+uint64(r.Size)], r.Data())
	order.PutUint64(tc.Buffer[off+rowHeaderSize+uint64(r.Size):off+rowHeaderSize+uint64(r.Size)+8], chunkSize)

	tc.Size += chunkSize
	tc.Elements++
}

// AppendPair writes both r1 and r2's headers and data, matching
// TransactionChunk::appendTransaction(RedoLogRecord*, const
// RedoLogRecord*).
func (tc *TransactionChunk) AppendPair(order binary.ByteOrder, r1, r2 *redo.RedoLogRecord) {
	chunkSize := uint64(r1.Size) + uint64(r2.Size) + rowHeaderTotal
	off := tc.Size

	order.PutUint32(tc.Buffer[off+rowHeaderOp:off+rowHeaderOp+4], (uint32(r1.OpCode)<<16)|uint32(r2.OpCode))
	redo.EncodeHeader(order, tc.Buffer[off+rowHeaderRedo1:off+rowHeaderRedo1+redo.HeaderSize], r1)
	redo.EncodeHeader(order, tc.Buffer[off+rowHeaderRedo2:off+rowHeaderRedo2+redo.HeaderSize], r2)
	copy(tc.Buffer[off+rowHeaderData:off+rowHeaderData+uint64(r1.Size)], r1.Data())
	copy(tc.Buffer[off+rowHeaderData+uint64(r1.Size):off+rowHeaderData+uint64(r1.Size)+uint64(r2.Size)], r2.Data())
	order.PutUint64(tc.Buffer[off+rowHeaderSize+uint64(r1.Size)+uint64(r2.Size):off+rowHeaderSize+uint64(r1.Size)+uint64(r2.Size)+8], chunkSize)

	tc.Size += chunkSize
	tc.Elements++
}

// chunkOverflowGuard raises ChunkOverflow when chunkSize would not fit
// in a freshly allocated TransactionChunk at all, matching the size
// guard both addTransactionChunk overloads perform up front.
func chunkOverflowGuard(chunkSize uint64) error {
	if chunkSize > DataBufferSize {
		return corerr.New(corerr.ChunkOverflow,
			"block size (%d) exceeding max block size (%d), try increasing the chunk size", chunkSize, fullBufferSize)
	}
	return nil
}
