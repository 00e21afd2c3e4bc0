// Package zim implements the OpenZIM archive container format: the
// fixed header, mimetype list, URL/title pointer tables, directory
// entries, and compressed clusters of blobs.
//
// No suitable Go ZIM library exists, so this package parses the
// documented binary container directly: a custom binary archive parser
// built on io.ReaderAt and encoding/binary rather than reaching for a
// format-specific third-party dependency that doesn't exist.
package zim

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/DataDog/zstd"
	"github.com/therootcompany/xz"
)

// Errors surfaced while parsing an archive.
var (
	ErrBadMagic                   = errors.New("zim: bad magic number")
	ErrUnsupportedCompression     = errors.New("zim: unsupported cluster compression type")
	ErrExtendedClusterUnsupported = errors.New("zim: 8-byte (extended) cluster blob offsets are not supported")
	ErrTruncated                  = errors.New("zim: truncated record")
)

const magicNumber = 0x044D495A

// Header is the fixed 80-byte ZIM archive header.
type Header struct {
	MajorVersion  uint16
	MinorVersion  uint16
	UUID          [16]byte
	EntryCount    uint32
	ClusterCount  uint32
	URLPtrPos     uint64
	TitlePtrPos   uint64
	ClusterPtrPos uint64
	MimeListPos   uint64
	MainPage      uint32
	LayoutPage    uint32
	ChecksumPos   uint64
}

// ParseHeader reads and validates the 80-byte header from the start of r.
func ParseHeader(r io.ReaderAt) (Header, error) {
	var buf [80]byte
	if _, err := r.ReadAt(buf[:], 0); err != nil {
		return Header{}, fmt.Errorf("zim: read header: %w", err)
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != magicNumber {
		return Header{}, ErrBadMagic
	}
	var h Header
	h.MajorVersion = binary.LittleEndian.Uint16(buf[4:6])
	h.MinorVersion = binary.LittleEndian.Uint16(buf[6:8])
	copy(h.UUID[:], buf[8:24])
	h.EntryCount = binary.LittleEndian.Uint32(buf[24:28])
	h.ClusterCount = binary.LittleEndian.Uint32(buf[28:32])
	h.URLPtrPos = binary.LittleEndian.Uint64(buf[32:40])
	h.TitlePtrPos = binary.LittleEndian.Uint64(buf[40:48])
	h.ClusterPtrPos = binary.LittleEndian.Uint64(buf[48:56])
	h.MimeListPos = binary.LittleEndian.Uint64(buf[56:64])
	h.MainPage = binary.LittleEndian.Uint32(buf[64:68])
	h.LayoutPage = binary.LittleEndian.Uint32(buf[68:72])
	h.ChecksumPos = binary.LittleEndian.Uint64(buf[72:80])
	return h, nil
}

// ParseMimeList reads the NUL-terminated mimetype strings starting at
// off, stopping at the first empty string.
func ParseMimeList(r io.ReaderAt, off uint64) ([]string, error) {
	var mimes []string
	buf := make([]byte, 4096)
	pos := off
	var acc []byte
	for {
		n, err := r.ReadAt(buf, int64(pos))
		if n == 0 && err != nil {
			return nil, fmt.Errorf("zim: read mimetype list: %w", err)
		}
		acc = append(acc, buf[:n]...)
		pos += uint64(n)
		for {
			nul := bytes.IndexByte(acc, 0)
			if nul < 0 {
				break
			}
			s := string(acc[:nul])
			acc = acc[nul+1:]
			if s == "" {
				return mimes, nil
			}
			mimes = append(mimes, s)
		}
		if err == io.EOF && len(acc) == 0 {
			return mimes, nil
		}
	}
}

const (
	mimeRedirect    = 0xffff
	mimeLinkTarget  = 0xfffe
	mimeDeletedEntry = 0xfffd
)

// DirEntry is one decoded directory entry (a content entry or a
// redirect), as addressed by the URL pointer table.
type DirEntry struct {
	MimeIndex     uint16
	IsRedirect    bool
	Namespace     byte
	Revision      uint32
	RedirectIndex uint32 // valid when IsRedirect
	ClusterNumber uint32 // valid when !IsRedirect
	BlobNumber    uint32 // valid when !IsRedirect
	URL           string
	Title         string
}

// ParseDirEntry decodes one directory entry starting at off.
func ParseDirEntry(r io.ReaderAt, off uint64) (DirEntry, error) {
	head := make([]byte, 256)
	n, err := r.ReadAt(head, int64(off))
	if n == 0 && err != nil {
		return DirEntry{}, fmt.Errorf("zim: read dirent: %w", err)
	}
	head = head[:n]
	if len(head) < 8 {
		return DirEntry{}, ErrTruncated
	}

	var e DirEntry
	e.MimeIndex = binary.LittleEndian.Uint16(head[0:2])
	paramLen := int(head[2])
	e.Namespace = head[3]
	e.Revision = binary.LittleEndian.Uint32(head[4:8])

	pos := 8
	if e.MimeIndex == mimeRedirect {
		if pos+4 > len(head) {
			return DirEntry{}, ErrTruncated
		}
		e.IsRedirect = true
		e.RedirectIndex = binary.LittleEndian.Uint32(head[pos : pos+4])
		pos += 4
	} else {
		if pos+8 > len(head) {
			return DirEntry{}, ErrTruncated
		}
		e.ClusterNumber = binary.LittleEndian.Uint32(head[pos : pos+4])
		e.BlobNumber = binary.LittleEndian.Uint32(head[pos+4 : pos+8])
		pos += 8
	}
	pos += paramLen

	urlEnd := bytes.IndexByte(head[pos:], 0)
	if urlEnd < 0 {
		return DirEntry{}, ErrTruncated
	}
	e.URL = string(head[pos : pos+urlEnd])
	pos += urlEnd + 1

	titleEnd := bytes.IndexByte(head[pos:], 0)
	if titleEnd < 0 {
		return DirEntry{}, ErrTruncated
	}
	e.Title = string(head[pos : pos+titleEnd])
	if e.Title == "" {
		e.Title = e.URL
	}
	return e, nil
}

// ReadPointerTable reads n little-endian uint64 absolute offsets
// starting at off — the URL or cluster pointer table.
func ReadPointerTable(r io.ReaderAt, off uint64, n uint32) ([]uint64, error) {
	buf := make([]byte, int(n)*8)
	if _, err := r.ReadAt(buf, int64(off)); err != nil && err != io.EOF {
		return nil, fmt.Errorf("zim: read pointer table: %w", err)
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
	return out, nil
}

// Cluster is a decompressed group of blobs.
type Cluster struct {
	Blobs [][]byte
}

// ParseCluster decompresses and splits a cluster's raw bytes (spanning
// from its own pointer table offset to the next cluster's, or to the
// header's checksum position for the last one).
func ParseCluster(raw []byte) (*Cluster, error) {
	if len(raw) < 1 {
		return nil, ErrTruncated
	}
	info := raw[0]
	if info&0x10 != 0 {
		return nil, ErrExtendedClusterUnsupported
	}
	compression := info & 0x0f
	body := raw[1:]

	switch compression {
	case 0, 1:
		// stored, no compression
	case 4:
		rdr, err := xz.NewReader(bytes.NewReader(body), xz.DefaultDictMax)
		if err != nil {
			return nil, fmt.Errorf("zim: xz cluster: %w", err)
		}
		decoded, err := io.ReadAll(rdr)
		if err != nil {
			return nil, fmt.Errorf("zim: xz cluster: %w", err)
		}
		body = decoded
	case 5:
		decoded, err := zstd.Decompress(nil, body)
		if err != nil {
			return nil, fmt.Errorf("zim: zstd cluster: %w", err)
		}
		body = decoded
	default:
		return nil, ErrUnsupportedCompression
	}

	if len(body) < 4 {
		return nil, ErrTruncated
	}
	first := binary.LittleEndian.Uint32(body[0:4])
	const offsetSize = 4
	numOffsets := int(first) / offsetSize
	if numOffsets < 1 || numOffsets*offsetSize > len(body) {
		return nil, ErrTruncated
	}
	offsets := make([]uint32, numOffsets)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint32(body[i*offsetSize:])
	}
	blobs := make([][]byte, numOffsets-1)
	for i := 0; i < numOffsets-1; i++ {
		start, end := offsets[i], offsets[i+1]
		if end < start || int(end) > len(body) {
			return nil, ErrTruncated
		}
		blobs[i] = body[start:end]
	}
	return &Cluster{Blobs: blobs}, nil
}
