// Package lob implements Lob (owned reassembly buffer for a large-object
// fragment), LobKey (the orphaned-LOB map key), and the per-LOB page
// index LobData/LobDataElement, grounded on
// original_source/src/common/LobData.h/.cpp.
package lob

import (
	"encoding/binary"

	"github.com/ologcdc/corebuf/internal/ident"
	"github.com/ologcdc/corebuf/internal/redo"
)

// Lob is a move-only owned buffer laid out as
// [totalSize u64][RedoLogRecord header][payload], matching
// original_source's Lob(const RedoLogRecord*) constructor. Go has no
// compile-time move-only enforcement; Moved documents that the buffer
// must not be used again after a transfer (e.g. into a map via Take).
type Lob struct {
	data  []byte
	Moved bool
}

// New builds a Lob owning a copy of r's header and payload, matching
// Lob::Lob(const RedoLogRecord* redoLogRecord1).
func New(order binary.ByteOrder, r *redo.RedoLogRecord) Lob {
	payload := r.Data()
	total := 8 + redo.HeaderSize + len(payload)
	buf := make([]byte, total)

	binary.LittleEndian.PutUint64(buf[0:8], uint64(total))
	redo.EncodeHeader(order, buf[8:8+redo.HeaderSize], r)
	copy(buf[8+redo.HeaderSize:], payload)

	return Lob{data: buf}
}

// Size returns the total encoded byte length of the Lob blob.
func (l Lob) Size() uint64 {
	if len(l.data) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(l.data[0:8])
}

// Header decodes the embedded RedoLogRecord header, re-slicing DataExt
// over the trailing payload bytes owned by this Lob.
func (l Lob) Header(order binary.ByteOrder) redo.RedoLogRecord {
	r := redo.DecodeHeader(order, l.data[8:8+redo.HeaderSize])
	r.DataExt = l.Data()
	return r
}

// Data returns the payload bytes trailing the embedded header.
func (l Lob) Data() []byte {
	return l.data[8+redo.HeaderSize:]
}

// Take marks l as moved and returns its owned buffer, so the caller can
// transfer ownership (e.g. into an orphaned-LOB map) without a copy.
func (l *Lob) Take() []byte {
	l.Moved = true
	d := l.data
	l.data = nil
	return d
}

// LobKey identifies an orphaned LOB fragment by (LobId, Dba), matching
// original_source's LobKey.
type LobKey struct {
	LobId ident.LobId
	Dba   ident.Dba
}

// Less orders keys first by LobId, then by Dba, matching the natural
// std::map<LobKey, Lob> ordering the original relies on.
func (k LobKey) Less(other LobKey) bool {
	if c := k.LobId.Compare(other.LobId); c != 0 {
		return c < 0
	}
	return k.Dba < other.Dba
}

// DataElement indexes one page of a multi-page LOB by (dba, offset),
// matching original_source's LobDataElement.
type DataElement struct {
	Dba    ident.Dba
	Offset uint32
}

// Less matches LobDataElement::operator<: ordered by Dba, then Offset.
func (e DataElement) Less(other DataElement) bool {
	if e.Dba != other.Dba {
		return e.Dba < other.Dba
	}
	return e.Offset < other.Offset
}

// Data is the per-LOB page index original_source keeps alongside the
// reassembly buffer: a page map keyed by DataElement plus an index map
// from logical page number to Dba, matching original_source's LobData.
// Supplemented from original_source/src/common/LobData.h — spec.md's
// distillation keeps only the bare Lob reassembly buffer; a complete
// rendition of multi-page LOB bookkeeping also tracks this index.
type Data struct {
	PageMap  map[DataElement]Lob
	IndexMap map[uint32]ident.Dba

	PageSize uint32
	SizePages uint32
	SizeRest  uint16
}

// NewData constructs an empty Data index.
func NewData() *Data {
	return &Data{
		PageMap:  make(map[DataElement]Lob),
		IndexMap: make(map[uint32]ident.Dba),
	}
}
