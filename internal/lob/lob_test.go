package lob

import (
	"encoding/binary"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/ologcdc/corebuf/internal/ident"
	"github.com/ologcdc/corebuf/internal/redo"
)

// =============================================================================
// SUITE 1: LOB ENCODE/DECODE ROUND TRIP
// =============================================================================

func TestLobRoundTrip(t *testing.T) {
	payload := []byte("some lob fragment bytes")
	r := &redo.RedoLogRecord{
		Size:       uint16(len(payload)),
		FieldCnt:   1,
		OpCode:     0x0501,
		Scn:        ident.Scn(555),
		SubScn:     3,
		Dba:        777,
		DataOffset: 9,
		DataExt:    payload,
	}

	l := New(binary.LittleEndian, r)
	assert.Equal(t, uint64(8+redo.HeaderSize+len(payload)), l.Size())
	assert.DeepEqual(t, payload, l.Data())

	got := l.Header(binary.LittleEndian)
	assert.Equal(t, r.Scn, got.Scn)
	assert.Equal(t, r.SubScn, got.SubScn)
	assert.Equal(t, r.Dba, got.Dba)
	assert.Equal(t, r.DataOffset, got.DataOffset)
	assert.DeepEqual(t, payload, got.Data())
}

func TestLobTakeMarksMoved(t *testing.T) {
	r := &redo.RedoLogRecord{Size: 4, DataExt: []byte("abcd")}
	l := New(binary.LittleEndian, r)

	buf := l.Take()
	assert.Equal(t, true, l.Moved)
	assert.Equal(t, uint64(8+redo.HeaderSize+4), uint64(len(buf)))
}

// =============================================================================
// SUITE 2: LOBKEY AND DATAELEMENT ORDERING
// =============================================================================

func TestLobKeyLess(t *testing.T) {
	var small, big ident.LobId
	small.Set([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	big.Set([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 11})

	a := LobKey{LobId: small, Dba: 100}
	b := LobKey{LobId: small, Dba: 200}
	c := LobKey{LobId: big, Dba: 0}

	assert.Equal(t, true, a.Less(b))
	assert.Equal(t, false, b.Less(a))
	assert.Equal(t, true, b.Less(c))
}

func TestDataElementLess(t *testing.T) {
	a := DataElement{Dba: 1, Offset: 10}
	b := DataElement{Dba: 1, Offset: 20}
	c := DataElement{Dba: 2, Offset: 0}

	assert.Equal(t, true, a.Less(b))
	assert.Equal(t, false, b.Less(a))
	assert.Equal(t, true, b.Less(c))
}

// =============================================================================
// SUITE 3: LOB DATA INDEX
// =============================================================================

func TestNewDataIsEmpty(t *testing.T) {
	d := NewData()
	assert.Equal(t, 0, len(d.PageMap))
	assert.Equal(t, 0, len(d.IndexMap))

	key := DataElement{Dba: 5, Offset: 0}
	d.PageMap[key] = New(binary.LittleEndian, &redo.RedoLogRecord{DataExt: []byte("x")})
	d.IndexMap[0] = 5

	assert.Equal(t, 1, len(d.PageMap))
	assert.Equal(t, ident.Dba(5), d.IndexMap[0])
}
