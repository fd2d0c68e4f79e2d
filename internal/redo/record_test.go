package redo

import (
	"encoding/binary"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/ologcdc/corebuf/internal/ident"
)

// =============================================================================
// SUITE 1: HEADER ENCODE/DECODE ROUND TRIP
// =============================================================================

func TestHeaderRoundTrip(t *testing.T) {
	var lobID ident.LobId
	lobID.Set([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})

	want := RedoLogRecord{
		Size:            128,
		FieldCnt:        4,
		FieldPos:        20,
		FieldSizesDelta: 12,
		Flg:             FlgMultiBlockUndoHead,
		OpCode:          0x0501,
		Scn:             ident.Scn(123456789),
		SubScn:          7,
		Dba:             9001,
		DataOffset:      42,
		LobId:           lobID,
	}

	buf := make([]byte, HeaderSize)
	EncodeHeader(binary.LittleEndian, buf, &want)
	got := DecodeHeader(binary.LittleEndian, buf)
	got.DataExt = nil

	assert.Equal(t, want.Size, got.Size)
	assert.Equal(t, want.FieldCnt, got.FieldCnt)
	assert.Equal(t, want.FieldPos, got.FieldPos)
	assert.Equal(t, want.FieldSizesDelta, got.FieldSizesDelta)
	assert.Equal(t, want.Flg, got.Flg)
	assert.Equal(t, want.OpCode, got.OpCode)
	assert.Equal(t, want.Scn, got.Scn)
	assert.Equal(t, want.SubScn, got.SubScn)
	assert.Equal(t, want.Dba, got.Dba)
	assert.Equal(t, want.DataOffset, got.DataOffset)
	assert.Equal(t, true, want.LobId.Equal(got.LobId))
}

// =============================================================================
// SUITE 2: FIELD-SIZE TABLE ACCESS
// =============================================================================

func TestFieldSizeRoundTrip(t *testing.T) {
	order := binary.LittleEndian
	r := &RedoLogRecord{FieldSizesDelta: 0, DataExt: make([]byte, 16)}

	r.SetFieldSize(order, 0, 10)
	r.SetFieldSize(order, 1, 20)
	r.SetFieldSize(order, 2, 30)

	assert.Equal(t, uint16(10), r.FieldSize(order, 0))
	assert.Equal(t, uint16(20), r.FieldSize(order, 1))
	assert.Equal(t, uint16(30), r.FieldSize(order, 2))
}

// =============================================================================
// SUITE 3: ALIGN4
// =============================================================================

func TestAlign4(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 0}, {1, 4}, {2, 4}, {3, 4}, {4, 4}, {5, 8}, {17, 20},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Align4(c.in))
	}
}
