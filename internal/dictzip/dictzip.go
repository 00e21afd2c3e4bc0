// Package dictzip provides random-access reads over a gzip-compressed
// StarDict .dict.dz file. StarDict's own dictzip format adds a random-access
// chunk table to the gzip extra field, but only plain gzip reads are
// required on the reader side, so this package treats .dict.dz as a plain
// gzip stream and builds random access on top of it itself.
//
// Each step reopens the gzip stream from the start and discards up to its
// checkpoint offset before decompressing the next chunk: StarDict index
// order very often disagrees with physical dict offset order (the writer
// emits dict blocks in entry order but the index in sorted-word order), so
// jumps backward are the common case, not the exception, and a
// resumable-in-place decoder would silently return garbage on a cache miss
// instead of failing loudly.
package dictzip

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/allegro/bigcache/v3"
	"github.com/klauspost/compress/gzip"
)

const chunkSize = 64 * 1024

// Opener returns a fresh reader positioned at the start of the compressed
// stream. It is called once per cache-miss step; the returned ReadCloser is
// closed before chunk returns.
type Opener func() (io.ReadCloser, error)

// ReaderAt is a cached, random-access view over a gzip stream produced by
// repeatedly calling an Opener.
type ReaderAt struct {
	open      Opener
	uniq      uint64
	debugName string
}

var monotonic uint64
var cache *bigcache.BigCache

func init() {
	c, err := bigcache.New(context.Background(), bigcache.Config{
		HardMaxCacheSize: 512, // megabytes
		Shards:           1024,
	})
	if err != nil {
		panic(err)
	}
	cache = c
}

// New returns a ReaderAt over the gzip stream produced by open.
func New(open Opener, debugName string) *ReaderAt {
	return &ReaderAt{
		open:      open,
		uniq:      atomic.AddUint64(&monotonic, 1),
		debugName: debugName,
	}
}

// ReadAt implements io.ReaderAt, decompressing (and caching) whatever
// chunks of the underlying gzip stream are needed to satisfy the request.
func (r *ReaderAt) ReadAt(p []byte, off int64) (int, error) {
	chunkIdx := int(off / chunkSize)
	within := int(off % chunkSize)

	total := 0
	for total < len(p) {
		blob, err := r.chunk(chunkIdx)
		if len(blob) <= within {
			if err == nil {
				err = io.EOF
			}
			return total, err
		}
		n := copy(p[total:], blob[within:])
		total += n
		within = 0
		chunkIdx++
		if n < len(blob) {
			// the copy began mid-chunk or p filled up before the chunk's
			// end; the loop condition or the next chunk settles the rest
			continue
		}
		if err != nil {
			// the stream ended with this chunk; p may be exactly full
			if total == len(p) {
				return total, nil
			}
			return total, err
		}
	}
	return total, nil
}

// chunk returns the decompressed bytes of chunk index idx (0-based,
// chunkSize bytes each except possibly the last), using the cache when
// available and otherwise reopening the stream and discarding up to
// idx*chunkSize bytes.
func (r *ReaderAt) chunk(idx int) ([]byte, error) {
	key := fmt.Sprintf("%s_%d_%d", r.debugName, r.uniq, idx)
	if blob, err := cache.Get(key); err == nil {
		return blob, nil
	}

	src, err := r.open()
	if err != nil {
		return nil, fmt.Errorf("dictzip: reopen %s: %w", r.debugName, err)
	}
	defer src.Close()

	gz, err := gzip.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("dictzip: gzip header %s: %w", r.debugName, err)
	}
	defer gz.Close()

	if idx > 0 {
		if _, err := io.CopyN(io.Discard, gz, int64(idx)*chunkSize); err != nil {
			if err == io.EOF {
				cache.Set(key, nil)
				return nil, io.EOF
			}
			return nil, fmt.Errorf("dictzip: discard to chunk %d: %w", idx, err)
		}
	}

	buf := make([]byte, chunkSize)
	n, readErr := io.ReadFull(gz, buf)
	blob := buf[:n]
	cache.Set(key, blob)

	if readErr == io.ErrUnexpectedEOF || readErr == io.EOF {
		return blob, io.EOF
	}
	if readErr != nil {
		return blob, fmt.Errorf("dictzip: read chunk %d: %w", idx, readErr)
	}
	return blob, nil
}

// ReadAll drains the entire stream, for callers (like the StarDict reader
// loading its .idx and .syn files) that don't need random access.
func ReadAll(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	_, err := io.Copy(&buf, r)
	return buf.Bytes(), err
}
