package ident

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/ologcdc/corebuf/internal/corerr"
)

// =============================================================================
// SUITE 1: XID ROUND-TRIP AND FORMATTING
// =============================================================================

func TestNewXidComponents(t *testing.T) {
	xid := NewXid(0x0012, 0x0034, 0x00560078)
	assert.Equal(t, uint16(0x0012), xid.Usn())
	assert.Equal(t, uint16(0x0034), xid.Slt())
	assert.Equal(t, uint32(0x00560078), xid.Sqn())
	assert.Equal(t, false, xid.IsEmpty())
	assert.Equal(t, true, Xid(0).IsEmpty())
}

func TestParseXidAllForms(t *testing.T) {
	want := NewXid(0x0001, 0x002, 0x00000003)

	forms := []string{
		"00010002" + "00000003",
		"0001.002.00000003",
		"0001.0002.00000003",
		"0x0001.002.00000003",
		"0x0001.0002.00000003",
	}

	for _, s := range forms {
		got, err := ParseXid(s)
		if err != nil {
			t.Fatalf("ParseXid(%q): %v", s, err)
		}
		assert.Equal(t, want, got)
	}
}

func TestParseXidBad(t *testing.T) {
	_, err := ParseXid("not-an-xid")
	if err == nil {
		t.Fatal("expected error for malformed xid")
	}
	kind, ok := corerr.KindOf(err)
	assert.Equal(t, true, ok)
	assert.Equal(t, corerr.BadXid, kind)
}

func TestXidFormatModes(t *testing.T) {
	xid := NewXid(0x0001, 0x0002, 0x00000003)
	assert.Equal(t, "0x0001.002.00000003", xid.Format(FormatTextHex))
	assert.Equal(t, "1.2.3", xid.Format(FormatTextDec))
	assert.Equal(t, xid.String(), xid.Format(FormatTextHex))
}

// =============================================================================
// SUITE 2: XID-MAP
// =============================================================================

func TestMakeXidMapDiscardsSqn(t *testing.T) {
	a := NewXid(1, 2, 100)
	b := NewXid(1, 2, 200)
	assert.Equal(t, MakeXidMap(a, 0), MakeXidMap(b, 0))

	c := NewXid(1, 3, 100)
	assert.Assert(t, MakeXidMap(a, 0) != MakeXidMap(c, 0))

	assert.Assert(t, MakeXidMap(a, 0) != MakeXidMap(a, 1))
}

// =============================================================================
// SUITE 3: LOB-ID ORDERING AND EQUALITY
// =============================================================================

func TestLobIdLessAndEqual(t *testing.T) {
	var a, b LobId
	a.Set([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	b.Set([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 11})

	assert.Equal(t, true, a.Less(b))
	assert.Equal(t, false, b.Less(a))
	assert.Equal(t, true, a.Equal(a))
	assert.Equal(t, false, a.Equal(b))
}

// =============================================================================
// SUITE 4: SCN FORMATTING
// =============================================================================

func TestScnMakeAndFormat(t *testing.T) {
	scn := MakeScn48(0x1, 0x2)
	assert.Equal(t, Scn((uint64(1)<<32)|2), scn)
	assert.Equal(t, scn.String64(), scn.String())
}
