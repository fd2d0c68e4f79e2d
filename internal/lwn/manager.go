package lwn

import (
	"container/heap"

	"github.com/ologcdc/corebuf/internal/corerr"
	"github.com/ologcdc/corebuf/internal/ctx"
)

// MaxLwnChunks and MaxRecordsInLwn bound the arena and the heap,
// matching LwnMembersManager::MAX_LWN_CHUNKS/MAX_RECORDS_IN_LWN (the
// original sizes MAX_LWN_CHUNKS off a fixed 512MB*2 budget divided by
// the configured chunk size).
const (
	MaxLwnChunks    = 512 * 2 / ctx.MemoryChunkSizeMB
	MaxRecordsInLwn = 1048576

	align8 = ^uint64(7)
)

// memberHeaderSize reserves room for the fixed-width fields the
// original's inline LwnMember struct occupies ahead of its trailing
// record bytes. The Go Member struct itself is an ordinary heap
// allocation, not placed in the arena (Go has no placement-new — see
// the builder package's Chunk doc comment for the same deviation); only
// Data, the bulk payload the arena exists to avoid copying, is carved
// out of arena bytes here.
const memberHeaderSize = 8 + 4 + 8 + 2 + 4

// arenaChunk is one bump-allocated pool chunk backing Member.Data
// spans. The original inlines its cursor as the chunk's first 8 raw
// bytes; here it is an ordinary struct field.
type arenaChunk struct {
	mem  []byte
	used uint64
}

// indexHeap is the container/heap min-heap ordering indices into
// Manager.members by Member.Less: the heap stores small integer
// handles into the arena's member registry rather than raw pointers,
// matching the Design Note's "heap of indices into the LWN arena"
// over the original's sift-up/sift-down on LwnMember pointers.
type indexHeap struct {
	idx     []int
	members *[]*Member
}

func (h *indexHeap) Len() int { return len(h.idx) }
func (h *indexHeap) Less(i, j int) bool {
	return (*h.members)[h.idx[i]].Less((*h.members)[h.idx[j]])
}
func (h *indexHeap) Swap(i, j int) { h.idx[i], h.idx[j] = h.idx[j], h.idx[i] }

func (h *indexHeap) Push(x any) {
	h.idx = append(h.idx, x.(int))
}

func (h *indexHeap) Pop() any {
	old := h.idx
	n := len(old)
	x := old[n-1]
	h.idx = old[:n-1]
	return x
}

// Manager owns the LWN arena and the min-heap ordering its members,
// matching LwnMembersManager.
type Manager struct {
	cctx *ctx.Ctx

	chunks       []*arenaChunk
	allocatedMax int

	// members is the append-only registry heap indices point into; like
	// the original arena, a popped member's slot is never reused until
	// FreeLwnMembers/Reset.
	members []*Member
	heap    indexHeap
}

// New acquires the manager's first arena chunk, matching
// LwnMembersManager's constructor.
func New(c *ctx.Ctx) (*Manager, error) {
	mem, err := c.GetMemoryChunk(ctx.ModuleParser, false)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		cctx:         c,
		chunks:       []*arenaChunk{{mem: mem}},
		allocatedMax: 1,
	}
	m.heap = indexHeap{members: &m.members}
	return m, nil
}

// Allocate carves a Data span of recordSize4 bytes (rounded up to an
// 8-byte boundary) out of the current arena chunk, acquiring a new
// chunk when it doesn't fit, matching allocateLwnMember.
func (m *Manager) Allocate(recordSize4 uint64) (*Member, error) {
	cur := m.chunks[len(m.chunks)-1]
	need := (memberHeaderSize + recordSize4 + 7) & align8

	if cur.used+need > uint64(m.cctx.MemoryChunkSize) {
		if len(m.chunks) == MaxLwnChunks {
			return nil, corerr.New(corerr.LwnChunksExhausted,
				"all %d lwn buffers allocated", MaxLwnChunks)
		}

		mem, err := m.cctx.GetMemoryChunk(ctx.ModuleParser, false)
		if err != nil {
			return nil, err
		}
		cur = &arenaChunk{mem: mem}
		m.chunks = append(m.chunks, cur)
		if len(m.chunks) > m.allocatedMax {
			m.allocatedMax = len(m.chunks)
		}
	}

	if cur.used+need > uint64(m.cctx.MemoryChunkSize) {
		return nil, corerr.New(corerr.LwnRecordTooBig,
			"too big redo log record, size: %d", recordSize4)
	}

	start := cur.used
	cur.used += need
	data := cur.mem[start+memberHeaderSize : start+memberHeaderSize+recordSize4]

	return &Member{Data: data}, nil
}

// Add registers member in the arena's member list and pushes its index
// onto the heap, matching addLwnMember: addLwnMember increments
// lwnRecords first and fails the call that would make it reach
// MAX_RECORDS_IN_LWN, and dropMin decrements that same counter, so the
// guard here is keyed off the live heap size (Records), not the
// cumulative number of members ever appended.
func (m *Manager) Add(member *Member) error {
	if m.heap.Len()+1 >= MaxRecordsInLwn {
		return corerr.New(corerr.LwnOverflow,
			"all %d records in lwn were used", m.heap.Len()+1)
	}
	m.members = append(m.members, member)
	heap.Push(&m.heap, len(m.members)-1)
	return nil
}

// PopMin removes and returns the member with the least (scn, subScn,
// block, offset), matching dropMin paired with getMinLwnMember.
func (m *Manager) PopMin() *Member {
	if m.heap.Len() == 0 {
		return nil
	}
	idx := heap.Pop(&m.heap).(int)
	return m.members[idx]
}

// PeekMin returns the member with the least (scn, subScn, block,
// offset) without removing it, matching getMinLwnMember.
func (m *Manager) PeekMin() *Member {
	if m.heap.Len() == 0 {
		return nil
	}
	return m.members[m.heap.idx[0]]
}

// Records reports how many members are currently queued, matching
// LwnMembersManager::records.
func (m *Manager) Records() int { return m.heap.Len() }

// MaxAllocated reports the high-water mark of arena chunks allocated,
// matching LwnMembersManager::maxAllocated.
func (m *Manager) MaxAllocated() int { return m.allocatedMax }

// Reset drops every queued member without releasing arena chunks,
// matching LwnMembersManager::reset.
func (m *Manager) Reset() {
	m.heap.idx = m.heap.idx[:0]
	m.members = m.members[:0]
}

// FreeLwnMembers releases every chunk past the first and rewinds the
// first chunk's cursor, matching freeLwnMembers.
func (m *Manager) FreeLwnMembers() {
	for len(m.chunks) > 1 {
		last := m.chunks[len(m.chunks)-1]
		m.cctx.FreeMemoryChunk(ctx.ModuleParser, last.mem, false)
		m.chunks = m.chunks[:len(m.chunks)-1]
	}
	m.chunks[0].used = 0
	m.Reset()
}

// Close releases every remaining arena chunk, matching
// ~LwnMembersManager.
func (m *Manager) Close() {
	for len(m.chunks) > 0 {
		last := m.chunks[len(m.chunks)-1]
		m.cctx.FreeMemoryChunk(ctx.ModuleParser, last.mem, false)
		m.chunks = m.chunks[:len(m.chunks)-1]
	}
}
