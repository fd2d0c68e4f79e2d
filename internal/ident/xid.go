package ident

import (
	"math/bits"
	"strconv"

	"github.com/ologcdc/corebuf/internal/corerr"
)

// Xid is a transaction identifier: USN (16 bits) : SLT (16 bits) : SQN
// (32 bits) packed into 64 bits, matching original_source's typeXid.
type Xid uint64

// Output format modes for Xid.Format, matching typeXid::XID_FORMAT_*.
const (
	FormatTextHex     = 0
	FormatTextDec     = 1
	FormatNumeric     = 2
	FormatTextOnlyHex = 3
)

// NewXid packs usn/slt/sqn into a single Xid, matching the
// typeXid(usn, slt, sqn) constructor.
func NewXid(usn uint16, slt uint16, sqn uint32) Xid {
	return Xid((uint64(usn) << 48) | (uint64(slt) << 32) | uint64(sqn))
}

// Usn returns the undo-segment-number component.
func (x Xid) Usn() uint16 { return uint16(uint64(x) >> 48) }

// Slt returns the slot-number component.
func (x Xid) Slt() uint16 { return uint16((uint64(x) >> 32) & 0xFFFF) }

// Sqn returns the sequence-number component.
func (x Xid) Sqn() uint32 { return uint32(uint64(x) & 0xFFFFFFFF) }

// IsEmpty reports whether x is the zero value.
func (x Xid) IsEmpty() bool { return x == 0 }

// ToUint returns the raw packed 64-bit value.
func (x Xid) ToUint() uint64 { return uint64(x) }

// isHexDigit matches isxdigit from the C locale used by typeXid.h.
func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func checkHexRun(s string, from, to int, exceptions ...int) bool {
	isException := func(i int) bool {
		for _, e := range exceptions {
			if e == i {
				return true
			}
		}
		return false
	}
	for i := from; i < to; i++ {
		if isException(i) {
			continue
		}
		if !isHexDigit(s[i]) {
			return false
		}
	}
	return true
}

// ParseXid parses one of the five accepted textual forms:
//
//	UUUUSSSSQQQQQQQQ             (16 chars)
//	UUUU.SSS.QQQQQQQQ            (17 chars)
//	UUUU.SSSS.QQQQQQQQ           (18 chars)
//	0xUUUU.SSS.QQQQQQQQ          (19 chars)
//	0xUUUU.SSSS.QQQQQQQQ         (20 chars)
//
// matching original_source/src/common/typeXid.h's explicit
// typeXid(const char*) constructor byte for byte. Malformed input
// produces a *corerr.Error of kind corerr.BadXid.
func ParseXid(s string) (Xid, error) {
	bad := func() (Xid, error) {
		return 0, corerr.New(corerr.BadXid, "bad XID value: %s", s)
	}

	var usnStr, sltStr, sqnStr string

	switch len(s) {
	case 16:
		if !checkHexRun(s, 0, 16) {
			return bad()
		}
		usnStr, sltStr, sqnStr = s[0:4], s[4:8], s[8:16]
	case 17:
		if !checkHexRun(s, 0, 17, 4, 8) {
			return bad()
		}
		if s[4] != '.' || s[8] != '.' {
			return bad()
		}
		usnStr, sltStr, sqnStr = s[0:4], s[5:8], s[9:17]
	case 18:
		if !checkHexRun(s, 0, 18, 4, 9) {
			return bad()
		}
		if s[4] != '.' || s[9] != '.' {
			return bad()
		}
		usnStr, sltStr, sqnStr = s[0:4], s[5:9], s[10:18]
	case 19:
		if !checkHexRun(s, 2, 19, 6, 10) {
			return bad()
		}
		if s[0] != '0' || s[1] != 'x' || s[6] != '.' || s[10] != '.' {
			return bad()
		}
		usnStr, sltStr, sqnStr = s[2:6], s[7:10], s[11:19]
	case 20:
		if !checkHexRun(s, 2, 20, 6, 11) {
			return bad()
		}
		if s[0] != '0' || s[1] != 'x' || s[6] != '.' || s[11] != '.' {
			return bad()
		}
		usnStr, sltStr, sqnStr = s[2:6], s[7:11], s[12:20]
	default:
		return bad()
	}

	usn, err := strconv.ParseUint(usnStr, 16, 16)
	if err != nil {
		return bad()
	}
	slt, err := strconv.ParseUint(sltStr, 16, 16)
	if err != nil {
		return bad()
	}
	sqn, err := strconv.ParseUint(sqnStr, 16, 32)
	if err != nil {
		return bad()
	}

	return NewXid(uint16(usn), uint16(slt), uint32(sqn)), nil
}

// Format renders x in one of the four textual forms typeXid::toString
// supports.
func (x Xid) Format(mode int) string {
	switch mode {
	case FormatTextHex:
		return fmtHex(x)
	case FormatTextDec:
		return fmtDec(x)
	case FormatNumeric:
		return strconv.FormatUint(uint64(x), 10)
	case FormatTextOnlyHex:
		return fmtByteSwappedHex(x)
	default:
		return fmtHex(x)
	}
}

// String defaults to the hex-with-dots presentation.
func (x Xid) String() string {
	return x.Format(FormatTextHex)
}

func fmtHex(x Xid) string {
	return "0x" + pad(strconv.FormatUint(uint64(x.Usn()), 16), 4) +
		"." + pad(strconv.FormatUint(uint64(x.Slt()), 16), 3) +
		"." + pad(strconv.FormatUint(uint64(x.Sqn()), 16), 8)
}

func fmtDec(x Xid) string {
	return strconv.FormatUint(uint64(x.Usn()), 10) + "." +
		strconv.FormatUint(uint64(x.Slt()), 10) + "." +
		strconv.FormatUint(uint64(x.Sqn()), 10)
}

// fmtByteSwappedHex matches XID_FORMAT_TEXT_ONLY_HEX: each field is
// byte-swapped (__builtin_bswap16/32) before being rendered, with no
// separators.
func fmtByteSwappedHex(x Xid) string {
	usn := bits.ReverseBytes16(x.Usn())
	slt := bits.ReverseBytes16(x.Slt())
	sqn := bits.ReverseBytes32(x.Sqn())
	return pad(strconv.FormatUint(uint64(usn), 16), 4) +
		pad(strconv.FormatUint(uint64(slt), 16), 4) +
		pad(strconv.FormatUint(uint64(sqn), 16), 8)
}

func pad(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}

// XidMap is the 64-bit key used to index transactions by container and
// (USN, SLT), discarding SQN: (conId << 32) | (xid >> 32), matching the
// xidMap computation in TransactionBuffer::findTransaction.
type XidMap uint64

// MakeXidMap computes the XidMap for xid within container conId.
func MakeXidMap(xid Xid, conId ConId) XidMap {
	return XidMap((uint64(conId) << 32) | (uint64(xid) >> 32))
}
