package lwn

import (
	"log/slog"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/ologcdc/corebuf/internal/chunkpool"
	"github.com/ologcdc/corebuf/internal/corerr"
	"github.com/ologcdc/corebuf/internal/ctx"
	"github.com/ologcdc/corebuf/internal/ident"
)

func newTestManager(t *testing.T, chunkSize, maxChunks int) *Manager {
	t.Helper()
	pool := chunkpool.New(chunkSize, maxChunks)
	cctx := ctx.New(pool, slog.Default())
	cctx.MemoryChunkSize = chunkSize

	m, err := New(cctx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

// =============================================================================
// SUITE 1: ALLOCATE AND ADD
// =============================================================================

func TestAllocateCarvesArenaSpan(t *testing.T) {
	m := newTestManager(t, 4096, 0)
	defer m.Close()

	member, err := m.Allocate(32)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	assert.Equal(t, 32, len(member.Data))
}

func TestAllocateGrowsChunkWhenFull(t *testing.T) {
	m := newTestManager(t, 64, 0)
	defer m.Close()

	for i := 0; i < 10; i++ {
		if _, err := m.Allocate(4); err != nil {
			t.Fatalf("Allocate #%d: %v", i, err)
		}
	}
	assert.Assert(t, m.MaxAllocated() > 1)
}

func TestAllocateTooBigRejected(t *testing.T) {
	m := newTestManager(t, 64, 0)
	defer m.Close()

	_, err := m.Allocate(1 << 20)
	if err == nil {
		t.Fatal("expected too-big error")
	}
	kind, ok := corerr.KindOf(err)
	assert.Equal(t, true, ok)
	assert.Equal(t, corerr.LwnRecordTooBig, kind)
}

// =============================================================================
// SUITE 2: MIN-HEAP ORDERING
// =============================================================================

func TestPopMinReturnsAscendingOrder(t *testing.T) {
	m := newTestManager(t, 4096, 0)
	defer m.Close()

	entries := []struct {
		scn    ident.Scn
		subScn ident.SubScn
		block  ident.Blk
		offset uint64
	}{
		{scn: 10, subScn: 1, block: 1, offset: 0},
		{scn: 5, subScn: 3, block: 1, offset: 0},
		{scn: 5, subScn: 1, block: 9, offset: 0},
		{scn: 5, subScn: 1, block: 1, offset: 7},
		{scn: 5, subScn: 1, block: 1, offset: 2},
	}

	for _, e := range entries {
		member, err := m.Allocate(4)
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		member.Scn, member.SubScn, member.Block, member.Offset = e.scn, e.subScn, e.block, e.offset
		if err := m.Add(member); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	assert.Equal(t, 5, m.Records())

	want := []uint64{2, 7, 0, 0, 0}
	for i, w := range want {
		min := m.PopMin()
		if min == nil {
			t.Fatalf("PopMin #%d: got nil", i)
		}
		assert.Equal(t, w, min.Offset)
	}
	assert.Equal(t, 0, m.Records())
	assert.Assert(t, m.PopMin() == nil)
}

func TestPeekMinDoesNotRemove(t *testing.T) {
	m := newTestManager(t, 4096, 0)
	defer m.Close()

	member, err := m.Allocate(4)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	member.Scn = 1
	if err := m.Add(member); err != nil {
		t.Fatalf("Add: %v", err)
	}

	peeked := m.PeekMin()
	assert.Equal(t, member, peeked)
	assert.Equal(t, 1, m.Records())
}

// =============================================================================
// SUITE 3: RESET AND FREELWNMEMBERS
// =============================================================================

func TestResetClearsMembersNotChunks(t *testing.T) {
	m := newTestManager(t, 64, 0)
	defer m.Close()

	for i := 0; i < 5; i++ {
		member, err := m.Allocate(4)
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if err := m.Add(member); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	chunksBefore := len(m.chunks)

	m.Reset()
	assert.Equal(t, 0, m.Records())
	assert.Equal(t, chunksBefore, len(m.chunks))
}

func TestFreeLwnMembersRewindsToOneChunk(t *testing.T) {
	m := newTestManager(t, 64, 0)
	defer m.Close()

	for i := 0; i < 10; i++ {
		member, err := m.Allocate(4)
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if err := m.Add(member); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	assert.Assert(t, len(m.chunks) > 1)

	m.FreeLwnMembers()
	assert.Equal(t, 1, len(m.chunks))
	assert.Equal(t, uint64(0), m.chunks[0].used)
	assert.Equal(t, 0, m.Records())
}

// =============================================================================
// SUITE 4: ARENA AND HEAP EXHAUSTION BOUNDARIES
// =============================================================================

// TestAllocateChunksExhausted drives chunk growth with a chunk size that
// holds exactly one member, so every Allocate past the first grows the
// arena by one chunk. The MaxLwnChunks-th chunk is the last one Allocate
// may acquire; the call that would need a (MaxLwnChunks+1)-th fails with
// LwnChunksExhausted, matching allocateLwnMember's MAX_LWN_CHUNKS guard.
func TestAllocateChunksExhausted(t *testing.T) {
	m := newTestManager(t, 32, 0)
	defer m.Close()

	for i := 0; i < MaxLwnChunks; i++ {
		if _, err := m.Allocate(4); err != nil {
			t.Fatalf("Allocate #%d: %v", i, err)
		}
	}

	_, err := m.Allocate(4)
	if err == nil {
		t.Fatal("expected lwn chunks exhausted error")
	}
	kind, ok := corerr.KindOf(err)
	assert.Equal(t, true, ok)
	assert.Equal(t, corerr.LwnChunksExhausted, kind)
}

// TestAddOverflowAtMaxRecords matches addLwnMember's `lwnPos = ++lwnRecords;
// if (lwnPos >= MAX_RECORDS_IN_LWN) throw`: the call that would bring the
// live queued count to MaxRecordsInLwn fails, not the one after it.
func TestAddOverflowAtMaxRecords(t *testing.T) {
	m := newTestManager(t, 1<<20, 0)
	defer m.Close()

	for i := 0; i < MaxRecordsInLwn-1; i++ {
		member, err := m.Allocate(4)
		if err != nil {
			t.Fatalf("Allocate #%d: %v", i, err)
		}
		if err := m.Add(member); err != nil {
			t.Fatalf("Add #%d: %v", i, err)
		}
	}
	assert.Equal(t, MaxRecordsInLwn-1, m.Records())

	member, err := m.Allocate(4)
	if err != nil {
		t.Fatalf("Allocate final: %v", err)
	}
	err = m.Add(member)
	if err == nil {
		t.Fatal("expected lwn overflow error")
	}
	kind, ok := corerr.KindOf(err)
	assert.Equal(t, true, ok)
	assert.Equal(t, corerr.LwnOverflow, kind)
}
