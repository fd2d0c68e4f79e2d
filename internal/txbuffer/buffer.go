package txbuffer

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"sync"

	"github.com/ologcdc/corebuf/internal/corerr"
	"github.com/ologcdc/corebuf/internal/ctx"
	"github.com/ologcdc/corebuf/internal/ident"
	"github.com/ologcdc/corebuf/internal/lob"
	"github.com/ologcdc/corebuf/internal/redo"
)

// Process0501 finishes reassembling a merged split-undo HEAD record the
// way OpCode0501::process0501 does downstream of mergeBlocks. Opcode
// semantics are an external collaborator out of this core's scope (see
// spec.md §1 "Deliberately out of scope"); TransactionBuffer only needs
// a hook to call back into it.
type Process0501 func(order binary.ByteOrder, r *redo.RedoLogRecord)

// TransactionBuffer owns chunk sub-allocation, the XID lookup map, the
// orphaned-LOB map, multi-block undo merging, and checkpoint scanning,
// matching original_source's TransactionBuffer.
type TransactionBuffer struct {
	ctx *ctx.Ctx

	slabMu        sync.Mutex
	partiallyFull map[*memSlab]uint16

	// xidTransactionMap resolves the concurrency-model Open Question in
	// favor of a concurrent-safe map: original_source's mtx guards only
	// inserts/erases and leaves findTransaction's lookups unsynchronized
	// under a single-reader assumption. sync.Map keeps that same "insert
	// and erase take a lock, lookups don't" shape (xidMu still
	// serializes Store/Delete, matching the original's critical
	// section) while making concurrent lookups safe regardless of
	// reader count.
	xidMu             sync.Mutex
	xidTransactionMap sync.Map // ident.XidMap -> *Transaction

	lobMu        sync.Mutex
	orphanedLobs map[lob.LobKey]lob.Lob

	SkipXidList      map[ident.Xid]struct{}
	DumpXidList      map[ident.Xid]struct{}
	BrokenXidMapList map[ident.XidMap]struct{}
	DumpPath         string

	Process0501 Process0501
}

// New creates an empty TransactionBuffer bound to c.
func New(c *ctx.Ctx) *TransactionBuffer {
	return &TransactionBuffer{
		ctx:              c,
		partiallyFull:    make(map[*memSlab]uint16),
		orphanedLobs:     make(map[lob.LobKey]lob.Lob),
		SkipXidList:      make(map[ident.Xid]struct{}),
		DumpXidList:      make(map[ident.Xid]struct{}),
		BrokenXidMapList: make(map[ident.XidMap]struct{}),
	}
}

// Close reports a fatal leak if any pool chunks remain sub-allocated,
// matching ~TransactionBuffer's destructor check.
func (b *TransactionBuffer) Close() {
	b.slabMu.Lock()
	n := len(b.partiallyFull)
	b.slabMu.Unlock()
	if n > 0 {
		b.ctx.Error(int(corerr.FatalPoolLeak), fmt.Sprintf("non-free blocks in transaction buffer: %d", n))
	}
}

// Purge releases every live transaction's chunks and empties the map,
// matching TransactionBuffer::purge.
func (b *TransactionBuffer) Purge() {
	b.xidTransactionMap.Range(func(k, v any) bool {
		tx := v.(*Transaction)
		tx.Purge(b)
		b.xidTransactionMap.Delete(k)
		return true
	})
}

// FindTransaction looks up the transaction for (xid, conId), creating
// one when add is true and none exists, matching
// TransactionBuffer::findTransaction.
func (b *TransactionBuffer) FindTransaction(xid ident.Xid, conId ident.ConId, old, add, rollback bool) (*Transaction, error) {
	xidMap := ident.MakeXidMap(xid, conId)

	if v, ok := b.xidTransactionMap.Load(xidMap); ok {
		tx := v.(*Transaction)
		if !rollback && (!old || tx.Xid != xid) {
			return nil, corerr.New(corerr.ConflictingXid, "transaction %s conflicts with %s", xid, tx.Xid)
		}
		return tx, nil
	}

	if !add {
		return nil, nil
	}

	tx := NewTransaction(xid, &b.orphanedLobs)
	b.xidMu.Lock()
	b.xidTransactionMap.Store(xidMap, tx)
	b.xidMu.Unlock()

	if _, dump := b.DumpXidList[xid]; dump {
		tx.Dump = true
	}
	return tx, nil
}

// DropTransaction erases the transaction for (xid, conId) from the map
// without freeing its chunks, matching
// TransactionBuffer::dropTransaction.
func (b *TransactionBuffer) DropTransaction(xid ident.Xid, conId ident.ConId) {
	xidMap := ident.MakeXidMap(xid, conId)
	b.xidMu.Lock()
	b.xidTransactionMap.Delete(xidMap)
	b.xidMu.Unlock()
}

// newTransactionChunk sub-allocates a TransactionChunk from a
// partially-full pool chunk, or acquires a fresh one, matching
// TransactionBuffer::newTransactionChunk.
func (b *TransactionBuffer) newTransactionChunk() (*TransactionChunk, error) {
	b.slabMu.Lock()
	defer b.slabMu.Unlock()

	for slab, freeMap := range b.partiallyFull {
		pos := uint64(bits.TrailingZeros16(freeMap))
		freeMap &^= 1 << pos
		if freeMap == 0 {
			delete(b.partiallyFull, slab)
		} else {
			b.partiallyFull[slab] = freeMap
		}
		return newSlotChunk(slab, pos), nil
	}

	mem, err := b.ctx.GetMemoryChunk(ctx.ModuleTransactions, false)
	if err != nil {
		return nil, err
	}
	slab := &memSlab{mem: mem}
	b.partiallyFull[slab] = slotsFreeMask &^ 1
	return newSlotChunk(slab, 0), nil
}

// deleteTransactionChunk marks tc's slot free, releasing the owning pool
// chunk once every slot in it is free, matching
// TransactionBuffer::deleteTransactionChunk.
func (b *TransactionBuffer) deleteTransactionChunk(tc *TransactionChunk) {
	b.slabMu.Lock()
	defer b.slabMu.Unlock()

	freeMap := b.partiallyFull[tc.slab]
	freeMap |= 1 << tc.pos
	if freeMap == slotsFreeMask {
		b.ctx.FreeMemoryChunk(ctx.ModuleTransactions, tc.slab.mem, false)
		delete(b.partiallyFull, tc.slab)
	} else {
		b.partiallyFull[tc.slab] = freeMap
	}
}

// deleteTransactionChunks walks the chain from tc via Next, deleting
// every chunk, matching TransactionBuffer::deleteTransactionChunks.
func (b *TransactionBuffer) deleteTransactionChunks(tc *TransactionChunk) {
	for tc != nil {
		next := tc.Next
		b.deleteTransactionChunk(tc)
		tc = next
	}
}

// ensureRoom obtains a chunk for tx.LastTc when none exists yet, or when
// the current one has no room for chunkSize more bytes.
func (b *TransactionBuffer) ensureRoom(tx *Transaction, chunkSize uint64) error {
	if tx.LastTc == nil {
		tc, err := b.newTransactionChunk()
		if err != nil {
			return err
		}
		tx.LastTc = tc
		tx.FirstTc = tc
		return nil
	}

	if tx.LastTc.Size+chunkSize > DataBufferSize {
		tc, err := b.newTransactionChunk()
		if err != nil {
			return err
		}
		tc.Prev = tx.LastTc
		tx.LastTc.Next = tc
		tx.LastTc = tc
	}
	return nil
}

// lastHeadRecord decodes the HEAD record most recently appended to
// tx.LastTc, re-slicing its DataExt over the chunk's own backing array
// so mergeBlocks can read/patch it in place, matching the
// `redoLogRecord->dataExt = ... + ROW_HEADER_DATA` idiom both
// addTransactionChunk overloads use before merging.
func lastHeadRecord(order binary.ByteOrder, tc *TransactionChunk) redo.RedoLogRecord {
	lastSize := order.Uint64(tc.Buffer[tc.Size-rowHeaderTotal+rowHeaderSize : tc.Size-rowHeaderTotal+rowHeaderSize+8])
	start := tc.Size - lastSize
	r := redo.DecodeHeader(order, tc.Buffer[start+rowHeaderRedo1:start+rowHeaderRedo1+redo.HeaderSize])
	r.DataExt = tc.Buffer[start+rowHeaderData : start+rowHeaderData+uint64(r.Size)]
	return r
}

// AddTransactionChunk appends r1 (and r2, if non-nil) to tx's chunk
// chain, handling multi-block undo merging the way both
// TransactionBuffer::addTransactionChunk overloads do: r2 == nil
// corresponds to the single-record overload, r2 != nil to the
// HEAD/TAIL-pair overload.
func (b *TransactionBuffer) AddTransactionChunk(tx *Transaction, r1 *redo.RedoLogRecord, r2 *redo.RedoLogRecord) error {
	if r2 == nil {
		return b.addSingle(tx, r1)
	}
	return b.addPair(tx, r1, r2)
}

func (b *TransactionBuffer) addSingle(tx *Transaction, r1 *redo.RedoLogRecord) error {
	order := b.ctx.Order
	chunkSize := uint64(r1.Size) + rowHeaderTotal
	if err := chunkOverflowGuard(chunkSize); err != nil {
		return err
	}

	if tx.LastSplit {
		if r1.Flg&redo.FlgMultiBlockUndoMid == 0 {
			return corerr.New(corerr.BadSplit, "bad split offset: %d xid: %s", r1.DataOffset, tx.Xid)
		}

		last501 := lastHeadRecord(order, tx.LastTc)
		mergeSize := uint64(last501.Size) + uint64(r1.Size)
		tx.MergeBuffer = make([]byte, mergeSize)
		b.mergeBlocks(tx.MergeBuffer, r1, &last501)
		chunkSize = uint64(r1.Size) + rowHeaderTotal

		if err := b.rollback(tx); err != nil {
			return err
		}
	}

	if r1.Flg&(redo.FlgMultiBlockUndoTail|redo.FlgMultiBlockUndoMid) != 0 {
		tx.LastSplit = true
	} else {
		tx.LastSplit = false
	}

	if err := b.ensureRoom(tx, chunkSize); err != nil {
		return err
	}

	tx.LastTc.AppendSingle(order, r1)
	tx.Size += chunkSize
	tx.MergeBuffer = nil
	return nil
}

func (b *TransactionBuffer) addPair(tx *Transaction, r1, r2 *redo.RedoLogRecord) error {
	order := b.ctx.Order
	chunkSize := uint64(r1.Size) + uint64(r2.Size) + rowHeaderTotal
	if err := chunkOverflowGuard(chunkSize); err != nil {
		return err
	}

	if tx.LastSplit {
		if r1.OpCode != 0x0501 {
			return corerr.New(corerr.SplitNot0501, "split undo HEAD no 5.1 offset: %d", r1.DataOffset)
		}
		if r1.Flg&redo.FlgMultiBlockUndoHead == 0 {
			return corerr.New(corerr.BadSplit2, "bad split offset: %d xid: %s second position", r1.DataOffset, tx.Xid)
		}

		last501 := lastHeadRecord(order, tx.LastTc)
		mergeSize := uint64(last501.Size) + uint64(r1.Size)
		tx.MergeBuffer = make([]byte, mergeSize)
		b.mergeBlocks(tx.MergeBuffer, r1, &last501)

		fieldPos := r1.FieldPos + uint16(redo.Align4(int(r1.FieldSize(order, 1))))
		order.PutUint16(r1.Data()[fieldPos+redo.UndoHeadFlagFieldOffset:fieldPos+redo.UndoHeadFlagFieldOffset+2], r1.Flg)
		if b.Process0501 != nil {
			b.Process0501(order, r1)
		}
		chunkSize = uint64(r1.Size) + uint64(r2.Size) + rowHeaderTotal

		if err := b.rollback(tx); err != nil {
			return err
		}
		tx.LastSplit = false
	}

	if err := b.ensureRoom(tx, chunkSize); err != nil {
		return err
	}

	tx.LastTc.AppendPair(order, r1, r2)
	tx.Size += chunkSize
	tx.MergeBuffer = nil
	return nil
}

// mergeBlocks reassembles the head (r1) and its predecessor fragment
// (r2) into mergeBuffer, rewriting r1 in place to describe the merged
// record. Byte-exact translation of
// TransactionBuffer::mergeBlocks — every offset below is taken literally
// from that routine, not derived through RedoLogRecord.FieldSize, since
// the field-sizes sub-table slot a couple of these offsets address
// (redoLogRecord2->fieldSizesDelta + 6) does not line up with that
// helper's own indexing convention.
func (b *TransactionBuffer) mergeBlocks(mergeBuffer []byte, r1, r2 *redo.RedoLogRecord) {
	order := b.ctx.Order
	d1, d2 := r1.Data(), r2.Data()

	copy(mergeBuffer, d1[:r1.FieldSizesDelta])
	pos := r1.FieldSizesDelta

	if r1.Flg&redo.FlgLastBufferSplit != 0 {
		r1.Flg &^= redo.FlgLastBufferSplit
		size1 := order.Uint16(d1[r1.FieldSizesDelta+r1.FieldCnt*2 : r1.FieldSizesDelta+r1.FieldCnt*2+2])
		size2 := order.Uint16(d2[r2.FieldSizesDelta+6 : r2.FieldSizesDelta+8])
		order.PutUint16(d2[r2.FieldSizesDelta+6:r2.FieldSizesDelta+8], size1+size2)
		r1.FieldCnt--
	}

	fieldCnt := r1.FieldCnt + r2.FieldCnt - 2
	order.PutUint16(mergeBuffer[pos:pos+2], fieldCnt)
	copy(mergeBuffer[pos+2:], d1[r1.FieldSizesDelta+2:r1.FieldSizesDelta+2+r1.FieldCnt*2])
	copy(mergeBuffer[pos+2+r1.FieldCnt*2:], d2[r2.FieldSizesDelta+6:r2.FieldSizesDelta+6+r2.FieldCnt*2-4])

	pos += uint16(redo.Align4(int((fieldCnt+1)*2 + 2)))
	fieldPos1 := pos

	copy(mergeBuffer[pos:], d1[r1.FieldPos:r1.Size])
	pos += uint16(redo.Align4(int(r1.Size - r1.FieldPos)))

	fieldPos2 := r2.FieldPos +
		uint16(redo.Align4(int(order.Uint16(d2[r2.FieldSizesDelta+2:r2.FieldSizesDelta+4])))) +
		uint16(redo.Align4(int(order.Uint16(d2[r2.FieldSizesDelta+4:r2.FieldSizesDelta+6]))))

	copy(mergeBuffer[pos:], d2[fieldPos2:r2.Size])
	pos += uint16(redo.Align4(int(r2.Size - fieldPos2)))

	r1.Size = pos
	r1.FieldCnt = fieldCnt
	r1.FieldPos = fieldPos1
	r1.DataExt = mergeBuffer
	r1.Flg |= r2.Flg
	if r1.Flg&redo.FlgMultiBlockUndoTail != 0 {
		r1.Flg &^= redo.FlgMultiBlockUndoHead | redo.FlgMultiBlockUndoMid | redo.FlgMultiBlockUndoTail
	}
}

// rollback undoes the most recently appended record in tx, matching
// TransactionBuffer::rollbackTransactionChunk.
func (b *TransactionBuffer) rollback(tx *Transaction) error {
	if tx.LastTc == nil {
		return corerr.New(corerr.EmptyRollback, "trying to remove from empty buffer size: <null> elements: <null>")
	}
	if tx.LastTc.Size < rowHeaderTotal || tx.LastTc.Elements == 0 {
		return corerr.New(corerr.EmptyRollback, "trying to remove from empty buffer size: %d elements: %d",
			tx.LastTc.Size, tx.LastTc.Elements)
	}

	order := b.ctx.Order
	chunkSize := order.Uint64(tx.LastTc.Buffer[tx.LastTc.Size-rowHeaderTotal+rowHeaderSize : tx.LastTc.Size-rowHeaderTotal+rowHeaderSize+8])
	tx.LastTc.Size -= chunkSize
	tx.LastTc.Elements--
	tx.Size -= chunkSize

	if tx.LastTc.Elements == 0 {
		tc := tx.LastTc
		tx.LastTc = tc.Prev
		if tx.LastTc != nil {
			tx.LastTc.Next = nil
		} else {
			tx.FirstTc = nil
		}
		b.deleteTransactionChunk(tc)
	}
	return nil
}

// RollbackTransactionChunk is the exported entry point for rollback.
func (b *TransactionBuffer) RollbackTransactionChunk(tx *Transaction) error {
	return b.rollback(tx)
}

// Checkpoint scans every live transaction for the smallest
// (firstSequence, firstOffset), matching
// TransactionBuffer::checkpoint.
func (b *TransactionBuffer) Checkpoint(minSequence *ident.Seq, minOffset *uint64, minXid *ident.Xid) {
	b.xidTransactionMap.Range(func(_, v any) bool {
		tx := v.(*Transaction)
		if tx.FirstSequence < *minSequence {
			*minSequence = tx.FirstSequence
			*minOffset = tx.FirstOffset
			*minXid = tx.Xid
		} else if tx.FirstSequence == *minSequence && tx.FirstOffset < *minOffset {
			*minOffset = tx.FirstOffset
			*minXid = tx.Xid
		}
		return true
	})
}

// AddOrphanedLob records r1 as an orphaned LOB fragment keyed by
// (lobId, dba), matching TransactionBuffer::addOrphanedLob.
func (b *TransactionBuffer) AddOrphanedLob(r1 *redo.RedoLogRecord) {
	b.ctx.Trace(ctx.TraceLob, fmt.Sprintf("id: %s page: %d can't match, offset: %d", r1.LobId.Upper(), r1.Dba, r1.DataOffset))

	key := lob.LobKey{LobId: r1.LobId, Dba: r1.Dba}

	b.lobMu.Lock()
	defer b.lobMu.Unlock()

	if _, ok := b.orphanedLobs[key]; ok {
		b.ctx.Warning(int(corerr.DuplicateOrphanLob), fmt.Sprintf("duplicate orphaned lob: %s, page: %d", r1.LobId.Lower(), r1.Dba))
		return
	}

	b.orphanedLobs[key] = b.AllocateLob(r1)
}

// AllocateLob builds the owned Lob buffer for r1, matching
// TransactionBuffer::allocateLob.
func (b *TransactionBuffer) AllocateLob(r1 *redo.RedoLogRecord) lob.Lob {
	return lob.New(b.ctx.Order, r1)
}
