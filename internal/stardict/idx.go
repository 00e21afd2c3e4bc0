package stardict

import (
	"log/slog"

	"github.com/glossforge/glossforge/internal/bincodec"
)

// IdxRecord is one entry of a .idx file: a headword and the (offset,
// length) of its definition block inside the companion .dict file.
type IdxRecord struct {
	Word   string
	Offset uint32
	Length uint32
}

// SynRecord is one entry of a .syn file: an alternate headword pointing
// at the index (0-based, into the .idx record list) of the entry it is a
// synonym for.
type SynRecord struct {
	Word       string
	EntryIndex uint32
}

// ParseIdx decodes a fully-read (and, if applicable, already
// gzip-decompressed) .idx file: word NUL offset(u32be) length(u32be),
// repeated to the end of buf. A malformed tail (a missing NUL, or a short
// offset/length) is logged and parsing stops at that point — the rest of
// the file is still usable.
func ParseIdx(buf []byte) ([]IdxRecord, error) {
	var records []IdxRecord
	pos := 0
	for pos < len(buf) {
		nul, ok := bincodec.ScanNUL(buf, pos)
		if !ok {
			slog.Warn("stardictIdxCorruptTail", "reason", "missing NUL", "byteOffset", pos)
			break
		}
		word := string(buf[pos:nul])
		fieldsStart := nul + 1
		if fieldsStart+8 > len(buf) {
			slog.Warn("stardictIdxCorruptTail", "reason", "truncated record", "word", word)
			break
		}
		offset := bincodec.U32BE(buf[fieldsStart : fieldsStart+4])
		length := bincodec.U32BE(buf[fieldsStart+4 : fieldsStart+8])
		records = append(records, IdxRecord{Word: word, Offset: offset, Length: length})
		pos = fieldsStart + 8
	}
	return records, nil
}

// ParseSyn decodes a fully-read .syn file: word NUL entryIndex(u32be),
// repeated to the end of buf. A malformed tail is logged and parsing stops
// at that point, matching ParseIdx's treatment of a corrupt .idx tail.
func ParseSyn(buf []byte) ([]SynRecord, error) {
	var records []SynRecord
	pos := 0
	for pos < len(buf) {
		nul, ok := bincodec.ScanNUL(buf, pos)
		if !ok {
			slog.Warn("stardictSynCorruptTail", "reason", "missing NUL", "byteOffset", pos)
			break
		}
		word := string(buf[pos:nul])
		fieldsStart := nul + 1
		if fieldsStart+4 > len(buf) {
			slog.Warn("stardictSynCorruptTail", "reason", "truncated record", "word", word)
			break
		}
		idx := bincodec.U32BE(buf[fieldsStart : fieldsStart+4])
		records = append(records, SynRecord{Word: word, EntryIndex: idx})
		pos = fieldsStart + 4
	}
	return records, nil
}

// EncodeIdx serializes records in the order given (callers are expected
// to hand them in already-sorted, case-folded order).
func EncodeIdx(records []IdxRecord) []byte {
	var buf []byte
	for _, r := range records {
		buf = append(buf, r.Word...)
		buf = append(buf, 0)
		buf = bincodec.PutU32BE(buf, r.Offset)
		buf = bincodec.PutU32BE(buf, r.Length)
	}
	return buf
}

// EncodeSyn serializes syn records in the order given.
func EncodeSyn(records []SynRecord) []byte {
	var buf []byte
	for _, r := range records {
		buf = append(buf, r.Word...)
		buf = append(buf, 0)
		buf = bincodec.PutU32BE(buf, r.EntryIndex)
	}
	return buf
}
