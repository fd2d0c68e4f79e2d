package builder

import (
	"log/slog"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/ologcdc/corebuf/internal/chunkpool"
	"github.com/ologcdc/corebuf/internal/ctx"
)

func newTestBuffer(t *testing.T, chunkSize int) *Buffer {
	t.Helper()
	pool := chunkpool.New(chunkSize, 0)
	cctx := ctx.New(pool, slog.Default())
	cctx.MemoryChunkSize = chunkSize
	buf := New(cctx)
	if err := buf.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return buf
}

// =============================================================================
// SUITE 1: INITIALIZE AND SINGLE-CHUNK WRITES
// =============================================================================

func TestInitializeAcquiresFirstChunk(t *testing.T) {
	buf := newTestBuffer(t, 256)
	defer buf.Close()

	assert.Assert(t, buf.Begin() != nil)
	assert.Equal(t, buf.Begin(), buf.End())
	assert.Equal(t, uint64(256), buf.OutputBufferDataSize())
}

func TestWriteWithinOneChunkNeedsNoExpand(t *testing.T) {
	buf := newTestBuffer(t, 256)
	defer buf.Close()

	chunk := buf.End()
	payload := []byte("short message")
	copy(chunk.Data[:len(payload)], payload)
	chunk.Size.Add(uint64(len(payload)))

	assert.Equal(t, uint64(len(payload)), chunk.Size.Load())
	assert.Equal(t, buf.Begin(), buf.End())
}

// =============================================================================
// SUITE 2: EXPAND FREEZE VS COPY PATHS
// =============================================================================

func TestExpandFreezePathKeepsHeaderChunk(t *testing.T) {
	buf := newTestBuffer(t, 64)
	defer buf.Close()

	startChunk := buf.End()
	header := &MessageHeader{ID: 1, Chunk: startChunk, Offset: 0}
	msg := &Message{Header: header, Size: 60, Position: 10}

	if err := buf.Expand(true, msg); err != nil {
		t.Fatalf("Expand: %v", err)
	}

	assert.Equal(t, startChunk, header.Chunk)
	assert.Equal(t, uint64(0), header.Offset)
	assert.Equal(t, uint64(10), startChunk.Size.Load())
	assert.Equal(t, uint64(70), msg.Size)
	assert.Equal(t, uint64(0), msg.Position)
	assert.Assert(t, startChunk.Next.Load() != nil)
}

func TestExpandCopyPathRelocatesHeader(t *testing.T) {
	buf := newTestBuffer(t, 64)
	defer buf.Close()

	startChunk := buf.End()
	payload := []byte("partial bytes")
	copy(startChunk.Data[:len(payload)], payload)

	header := &MessageHeader{ID: 1, Chunk: startChunk, Offset: 0}
	msg := &Message{Header: header, Size: 0, Position: uint64(len(payload))}

	if err := buf.Expand(true, msg); err != nil {
		t.Fatalf("Expand: %v", err)
	}

	assert.Assert(t, header.Chunk != startChunk)
	assert.Equal(t, uint64(0), header.Offset)
	assert.DeepEqual(t, payload, header.Chunk.Data[:len(payload)])
}

// =============================================================================
// SUITE 3: RELEASE AND CLOSE
// =============================================================================

func TestReleaseBuffersAdvancesFirstChunk(t *testing.T) {
	buf := newTestBuffer(t, 64)
	defer buf.Close()

	msg := &Message{}
	for i := 0; i < 3; i++ {
		if err := buf.Expand(false, msg); err != nil {
			t.Fatalf("Expand: %v", err)
		}
	}

	lastID := buf.End().ID
	buf.ReleaseBuffers(lastID)

	assert.Equal(t, lastID, buf.Begin().ID)
}

func TestCloseReleasesAllChunks(t *testing.T) {
	buf := newTestBuffer(t, 64)
	msg := &Message{}
	if err := buf.Expand(false, msg); err != nil {
		t.Fatalf("Expand: %v", err)
	}
	buf.Close()
}
