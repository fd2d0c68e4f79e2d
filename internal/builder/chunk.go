// Package builder implements the output staging pipeline: a singly
// linked chain of pool chunks (Chunk) written by the builder (producer)
// thread and drained by the writer (consumer) thread under lock-free
// SPSC discipline, plus the in-progress MessageHeader/Message handles
// that track a not-yet-finished serialized message as it crosses chunk
// boundaries. Grounded on
// original_source/src/builder/BuilderBuffer.h/.cpp.
package builder

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ologcdc/corebuf/internal/ident"
)

// BufferStartUndefined marks a chunk whose Start offset is not yet
// meaningful: the chunk carries only the tail of a message that began
// in a previous chunk, matching BUFFER_START_UNDEFINED.
const BufferStartUndefined = ^uint64(0)

// Chunk is one link in the builder's output chain. Unlike
// original_source's BuilderChunkHeader, which is placement-new'd at the
// front of a raw pool chunk with Data immediately following it in the
// same allocation, Chunk keeps its header fields as ordinary Go struct
// fields and Data as the pool chunk's full byte slice — Go has no
// pointer-arithmetic placement-new, so there is nothing to gain by
// reserving header bytes inside Data here.
type Chunk struct {
	ID   uint64
	Size atomic.Uint64

	// Start is the byte offset a reader should begin draining from.
	// BufferStartUndefined means this chunk only continues a message
	// whose Start lives in a prior chunk.
	Start atomic.Uint64

	Data []byte

	// Next publishes the chain link; Store happens under Buffer.mu,
	// Load is lock-free for the consumer.
	Next atomic.Pointer[Chunk]
}

// MessageHeader is the producer-side handle to an in-progress
// serialized message: which Chunk and byte offset currently hold its
// written bytes, how much of it is frozen (Size) versus still being
// written (tracked by the owning Message's Position), and the redo
// coordinates it carries for the consumer, matching
// original_source's BuilderMessageHeader.
type MessageHeader struct {
	ID      uint64
	QueueID uint64
	Size    atomic.Uint64

	Scn    ident.Scn
	LwnScn ident.Scn
	LwnIdx uint32

	Sequence ident.Seq
	Obj      uint32

	Pos   uint16
	Flags uint16

	// TraceID correlates this message's log lines across the parser and
	// writer threads. Supplemented for observability; not part of the
	// wire contract original_source's BuilderMessageHeader describes.
	TraceID uuid.UUID

	// Chunk and Offset locate this header's in-progress payload bytes.
	// Expand's copy path relocates both when an unfinished message is
	// moved whole into a freshly allocated chunk.
	Chunk  *Chunk
	Offset uint64
}

// ToString renders the header the way
// BuilderMessageHeader::ToString does.
func (h *MessageHeader) ToString() string {
	return fmt.Sprintf("id: %d size: %d scn: %s lwnScn: %s lwnIdx: %d sequence: %d obj: %d",
		h.ID, h.Size.Load(), h.Scn, h.LwnScn, h.LwnIdx, h.Sequence, h.Obj)
}

// Message is the producer's cursor into the message it is currently
// writing: Header is nil until the message's header has been emitted;
// Position counts bytes written since the last freeze into a chunk's
// Size; Size accumulates the frozen total, matching
// original_source's BuilderMessage.
type Message struct {
	Header   *MessageHeader
	Size     uint64
	Position uint64
}
