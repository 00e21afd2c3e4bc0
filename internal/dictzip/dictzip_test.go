package dictzip

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func openerFor(compressed []byte) Opener {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(compressed)), nil
	}
}

func TestReadAtSequential(t *testing.T) {
	plain := make([]byte, chunkSize*3+123)
	rand.New(rand.NewSource(1)).Read(plain)
	compressed := gzipBytes(t, plain)

	r := New(openerFor(compressed), t.Name())
	got := make([]byte, len(plain))
	n, err := r.ReadAt(got, 0)
	if err != nil && err != io.EOF {
		t.Fatalf("ReadAt: %v", err)
	}
	if n != len(plain) {
		t.Fatalf("read %d bytes, want %d", n, len(plain))
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("content mismatch")
	}
}

func TestReadAtRandomOffsets(t *testing.T) {
	plain := make([]byte, chunkSize*4+17)
	rand.New(rand.NewSource(2)).Read(plain)
	compressed := gzipBytes(t, plain)

	r := New(openerFor(compressed), t.Name())

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		off := int64(rng.Intn(len(plain) - 10))
		length := 1 + rng.Intn(9)
		got := make([]byte, length)
		n, err := r.ReadAt(got, off)
		if err != nil && err != io.EOF {
			t.Fatalf("ReadAt(off=%d): %v", off, err)
		}
		want := plain[off : off+int64(n)]
		if !bytes.Equal(got[:n], want) {
			t.Fatalf("ReadAt(off=%d, len=%d) = %v, want %v", off, length, got[:n], want)
		}
	}
}

func TestReadAtBackwardSeekAfterForward(t *testing.T) {
	plain := make([]byte, chunkSize*2)
	for i := range plain {
		plain[i] = byte(i)
	}
	compressed := gzipBytes(t, plain)

	r := New(openerFor(compressed), t.Name())

	far := make([]byte, 8)
	if _, err := r.ReadAt(far, chunkSize+10); err != nil && err != io.EOF {
		t.Fatalf("forward read: %v", err)
	}

	near := make([]byte, 8)
	if _, err := r.ReadAt(near, 0); err != nil && err != io.EOF {
		t.Fatalf("backward read: %v", err)
	}
	if !bytes.Equal(near, plain[:8]) {
		t.Fatalf("backward read after forward read = %v, want %v", near, plain[:8])
	}
}

func TestReadAtEOF(t *testing.T) {
	plain := []byte("a tiny dictionary block")
	compressed := gzipBytes(t, plain)

	r := New(openerFor(compressed), t.Name())
	buf := make([]byte, 64)
	n, err := r.ReadAt(buf, 0)
	if err != io.EOF {
		t.Fatalf("expected io.EOF for short read, got %v", err)
	}
	if !bytes.Equal(buf[:n], plain) {
		t.Fatalf("got %q, want %q", buf[:n], plain)
	}
}

func TestReadAllPlain(t *testing.T) {
	data := []byte("uncompressed dict content")
	got, err := ReadAll(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("got %q, want %q", got, data)
	}
}

func TestReadAtDistinctDebugNamesDoNotCollide(t *testing.T) {
	for i := 0; i < 3; i++ {
		plain := []byte(fmt.Sprintf("payload-%d", i))
		compressed := gzipBytes(t, plain)
		r := New(openerFor(compressed), fmt.Sprintf("name-%d", i))
		got := make([]byte, len(plain))
		if _, err := r.ReadAt(got, 0); err != nil && err != io.EOF {
			t.Fatalf("ReadAt: %v", err)
		}
		if !bytes.Equal(got, plain) {
			t.Fatalf("reader %d: got %q, want %q", i, got, plain)
		}
	}
}
