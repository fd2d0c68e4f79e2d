package txbuffer

import (
	"github.com/ologcdc/corebuf/internal/ident"
	"github.com/ologcdc/corebuf/internal/lob"
)

// Transaction owns a doubly-linked list of TransactionChunks and the
// bookkeeping TransactionBuffer needs to locate and merge its records,
// matching the fields original_source's Transaction exposes to
// TransactionBuffer.
type Transaction struct {
	Xid  ident.Xid
	Dump bool

	FirstTc *TransactionChunk
	LastTc  *TransactionChunk

	Size uint64

	FirstSequence ident.Seq
	FirstOffset   uint64

	// LastSplit marks that the previous append was a multi-block undo
	// mid/tail fragment still awaiting its partner for mergeBlocks.
	LastSplit bool

	// MergeBuffer is the ephemeral scratch area allocated by AddTransactionChunk
	// while reassembling a split undo record; nil outside that call.
	MergeBuffer []byte

	orphanedLobs *map[lob.LobKey]lob.Lob
}

// NewTransaction creates a transaction bound to the shared orphaned-LOB
// map, matching `new Transaction(xid, &orphanedLobs, xmlCtx)` in
// findTransaction. The xmlCtx collaborator named in the original is an
// external opcode-processing concern out of scope for this core.
func NewTransaction(xid ident.Xid, orphanedLobs *map[lob.LobKey]lob.Lob) *Transaction {
	return &Transaction{Xid: xid, orphanedLobs: orphanedLobs}
}

// Purge releases every TransactionChunk owned by the transaction back to
// b, matching Transaction::purge.
func (t *Transaction) Purge(b *TransactionBuffer) {
	b.deleteTransactionChunks(t.FirstTc)
	t.FirstTc = nil
	t.LastTc = nil
}
