// Package lwn implements the per-LWN (Log Writer Number) staging area:
// a bump-allocated arena holding each member's raw redo bytes plus a
// binary min-heap ordering members by (scn, subScn, block, offset) so
// the builder can drain them in redo order regardless of the order
// blocks arrived in. Grounded on
// original_source/src/parser/Parser.h (LwnMember, LwnMembersManager).
package lwn

import "github.com/ologcdc/corebuf/internal/ident"

// Member is one LWN member: the redo coordinates original_source's
// LwnMember::operator< sorts by, plus the arena-backed span of raw
// bytes allocateLwnMember carved out for it.
type Member struct {
	Offset uint64
	Size   uint32
	Scn    ident.Scn
	SubScn ident.SubScn
	Block  ident.Blk

	// Data is this member's redo record bytes, sliced from the arena
	// chunk Manager.Allocate carved it out of.
	Data []byte
}

// Less implements LwnMember::operator<: strict lexicographic order on
// (scn, subScn, block, offset).
func (m *Member) Less(other *Member) bool {
	if m.Scn != other.Scn {
		return m.Scn < other.Scn
	}
	if m.SubScn != other.SubScn {
		return m.SubScn < other.SubScn
	}
	if m.Block != other.Block {
		return m.Block < other.Block
	}
	return m.Offset < other.Offset
}
