// Package bincodec provides the low-level byte primitives shared by the
// StarDict codec: big-endian uint32 packing, NUL-terminated field scanning,
// and the case-folded sort key used to order index and synonym records.
package bincodec

import (
	"bytes"
	"encoding/binary"
)

// U32BE decodes a big-endian uint32 from the first 4 bytes of buf.
// It panics if buf is shorter than 4 bytes; callers are expected to have
// already bounds-checked, as every call site in this codec does.
func U32BE(buf []byte) uint32 {
	return binary.BigEndian.Uint32(buf)
}

// PutU32BE appends the big-endian encoding of v to dst and returns the
// extended slice.
func PutU32BE(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

// ScanNUL returns the index of the first NUL byte in buf at or after start,
// and false if none is found.
func ScanNUL(buf []byte, start int) (int, bool) {
	i := bytes.IndexByte(buf[start:], 0)
	if i < 0 {
		return 0, false
	}
	return start + i, true
}

// SortKey returns the two-part case-folded byte sort key for word: entries
// are ordered first by the ASCII-lowercased form, then by the raw bytes as
// a tiebreak. This matches the historical StarDict collation and is the
// defining correctness criterion for .idx and .syn ordering.
func SortKey(word []byte) (lower, raw []byte) {
	lower = make([]byte, len(word))
	for i, c := range word {
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		lower[i] = c
	}
	return lower, word
}

// CompareWords orders a and b by the case-folded byte sort key.
func CompareWords(a, b []byte) int {
	al, ar := SortKey(a)
	bl, br := SortKey(b)
	if c := bytes.Compare(al, bl); c != 0 {
		return c
	}
	return bytes.Compare(ar, br)
}
