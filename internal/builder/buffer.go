package builder

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ologcdc/corebuf/internal/corerr"
	"github.com/ologcdc/corebuf/internal/ctx"
)

// Buffer is the chain of output chunks shared between the builder
// (producer) and writer (consumer) threads, matching
// original_source's BuilderBuffer.
type Buffer struct {
	cctx *ctx.Ctx

	mu              sync.Mutex
	firstChunk      atomic.Pointer[Chunk]
	lastChunk       *Chunk
	chunksAllocated uint64

	dataSize int
}

// New creates an uninitialized Buffer; call Initialize before use.
func New(c *ctx.Ctx) *Buffer {
	return &Buffer{cctx: c, dataSize: c.MemoryChunkSize}
}

// OutputBufferDataSize is the usable byte width of one chunk, matching
// OUTPUT_BUFFER_DATA_SIZE (here the pool's full chunk size, since Chunk
// reserves no header bytes inside Data — see the Chunk doc comment).
func (b *Buffer) OutputBufferDataSize() uint64 {
	return uint64(b.dataSize)
}

// Initialize acquires the buffer's first chunk, matching
// BuilderBuffer::initialize.
func (b *Buffer) Initialize() error {
	mem, err := b.cctx.GetMemoryChunk(ctx.ModuleBuilder, true)
	if err != nil {
		return err
	}
	c := &Chunk{Data: mem}

	b.mu.Lock()
	b.chunksAllocated = 1
	b.mu.Unlock()

	b.firstChunk.Store(c)
	b.lastChunk = c
	return nil
}

// Expand acquires a new chunk and links it onto the chain, relocating
// an in-progress message into it when copy is true and the message
// would still fit whole in one chunk, otherwise freezing the message's
// position into the current chunk and marking the new one as a pure
// continuation. Matches BuilderBuffer::expand.
func (b *Buffer) Expand(copyMsg bool, msg *Message) error {
	mem, err := b.cctx.GetMemoryChunk(ctx.ModuleBuilder, true)
	if err != nil {
		return err
	}

	next := &Chunk{Data: mem, ID: b.lastChunk.ID + 1}

	if copyMsg && msg.Header != nil && msg.Size+msg.Position < b.OutputBufferDataSize() {
		copy(next.Data[:msg.Position], msg.Header.Chunk.Data[msg.Header.Offset:msg.Header.Offset+msg.Position])
		msg.Header.Chunk = next
		msg.Header.Offset = 0
		next.Start.Store(0)
	} else {
		b.lastChunk.Size.Add(msg.Position)
		msg.Size += msg.Position
		msg.Position = 0
		next.Start.Store(BufferStartUndefined)
	}
	next.Size.Store(0)

	b.mu.Lock()
	b.lastChunk.Next.Store(next)
	b.chunksAllocated++
	b.lastChunk = next
	b.mu.Unlock()

	return nil
}

// ReleaseBuffers advances firstChunk past every chunk with id < maxID,
// then frees the detached prefix outside the lock, matching
// BuilderBuffer::releaseBuffers.
func (b *Buffer) ReleaseBuffers(maxID uint64) {
	b.mu.Lock()
	oldest := b.firstChunk.Load()
	cur := oldest
	for cur != nil && cur.ID < maxID {
		cur = cur.Next.Load()
	}
	b.firstChunk.Store(cur)
	b.mu.Unlock()

	for chunk := oldest; chunk != nil && chunk.ID < maxID; {
		next := chunk.Next.Load()
		b.cctx.FreeMemoryChunk(ctx.ModuleBuilder, chunk.Data, true)
		b.mu.Lock()
		b.chunksAllocated--
		b.mu.Unlock()
		chunk = next
	}
}

// Close releases every remaining chunk, matching ~BuilderBuffer, and
// reports a fatal leak if the chunk count doesn't reach zero.
func (b *Buffer) Close() {
	for chunk := b.firstChunk.Load(); chunk != nil; {
		next := chunk.Next.Load()
		b.cctx.FreeMemoryChunk(ctx.ModuleBuilder, chunk.Data, true)
		b.mu.Lock()
		b.chunksAllocated--
		b.mu.Unlock()
		chunk = next
	}

	b.mu.Lock()
	remaining := b.chunksAllocated
	b.mu.Unlock()
	if remaining != 0 {
		b.cctx.Error(int(corerr.FatalPoolLeak), fmt.Sprintf("builder buffer chunks remaining: %d", remaining))
	}
}

// Begin returns the oldest chunk still in the chain.
func (b *Buffer) Begin() *Chunk { return b.firstChunk.Load() }

// End returns the chunk the producer is currently writing into.
func (b *Buffer) End() *Chunk { return b.lastChunk }
