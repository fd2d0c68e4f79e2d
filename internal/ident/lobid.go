package ident

import "fmt"

// LobIdLength is the fixed byte width of a LobId, matching
// TYPE_LOBID_LENGTH in original_source.
const LobIdLength = 10

// LobId is an opaque 10-byte large-object tag with byte-wise equality,
// ordering, and a hash, matching original_source's typeLobId.
type LobId [LobIdLength]byte

// Set copies newData (which must be at least LobIdLength bytes) into the
// LobId, matching typeLobId::set.
func (l *LobId) Set(newData []byte) {
	copy(l[:], newData[:LobIdLength])
}

// Compare returns -1, 0, or 1 according to byte-wise memcmp order,
// matching typeLobId::operator<.
func (l LobId) Compare(other LobId) int {
	for i := 0; i < LobIdLength; i++ {
		if l[i] < other[i] {
			return -1
		}
		if l[i] > other[i] {
			return 1
		}
	}
	return 0
}

// Less reports whether l sorts before other.
func (l LobId) Less(other LobId) bool { return l.Compare(other) < 0 }

// Equal reports byte-wise equality.
func (l LobId) Equal(other LobId) bool { return l == other }

// Lower renders the id as lowercase hex pairs, matching typeLobId::lower.
func (l LobId) Lower() string {
	return fmt.Sprintf("%02x%02x%02x%02x%02x%02x%02x%02x%02x%02x",
		l[0], l[1], l[2], l[3], l[4], l[5], l[6], l[7], l[8], l[9])
}

// Upper renders the id as uppercase hex pairs, matching typeLobId::upper.
func (l LobId) Upper() string {
	return fmt.Sprintf("%02X%02X%02X%02X%02X%02X%02X%02X%02X%02X",
		l[0], l[1], l[2], l[3], l[4], l[5], l[6], l[7], l[8], l[9])
}

// Narrow renders the id as uppercase hex digits without zero-padding
// individual bytes, matching typeLobId::narrow.
func (l LobId) Narrow() string {
	return fmt.Sprintf("%X%X%X%X%X%X%X%X%X%X",
		l[0], l[1], l[2], l[3], l[4], l[5], l[6], l[7], l[8], l[9])
}

// String defaults to the uppercase presentation used by typeLobId's
// operator<<.
func (l LobId) String() string { return l.Upper() }

// lobIdHashShifts are the per-byte shift amounts used by std::hash
// specialization in original_source/src/common/typeLobId.cpp.
var lobIdHashShifts = [LobIdLength]uint{0, 6, 12, 18, 24, 30, 36, 42, 50, 56}

// Hash XORs each byte shifted by lobIdHashShifts, matching the
// std::hash<typeLobId> specialization byte for byte.
func (l LobId) Hash() uint64 {
	var h uint64
	for i := 0; i < LobIdLength; i++ {
		h ^= uint64(l[i]) << lobIdHashShifts[i]
	}
	return h
}
