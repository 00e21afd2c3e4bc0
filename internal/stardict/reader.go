package stardict

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	glossforge "github.com/glossforge/glossforge"
	"github.com/glossforge/glossforge/internal/dictzip"
	"github.com/klauspost/compress/gzip"
)

// ErrInvalidSameTypeSequence is returned by Open when the .ifo file's
// sametypesequence value is neither empty nor a single ASCII letter. This
// is fatal at open.
var ErrInvalidSameTypeSequence = errors.New("stardict: invalid sametypesequence")

// validSameTypeSequence reports whether s is a legal sametypesequence
// value: empty, or exactly one ASCII letter.
func validSameTypeSequence(s string) bool {
	if s == "" {
		return true
	}
	if len(s) != 1 {
		return false
	}
	c := s[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// XDXFToHTML converts an XDXF-formatted definition into HTML. It is the
// "opaque function" collaborator glossforge deliberately does not
// implement (the transform is a large, separate concern); callers that
// don't have one may pass nil, in which case XDXF parts pass through
// unconverted.
type XDXFToHTML func(xdxf string) string

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// XDXFToHTML, if set, converts the XDXF parts of a definition block
	// whose parts mix formats and are therefore promoted to DefiHTML. A
	// block whose parts are all XDXF keeps its XDXF text and the DefiXDXF
	// tag; the converter is not applied to it.
	XDXFToHTML XDXFToHTML
}

// Reader implements glossforge.Reader over a StarDict dictionary: a .ifo
// file plus its companion .idx[.gz], optional .syn, .dict[.dz], and
// optional res/ resource directory.
type Reader struct {
	opts ReaderOptions

	info             *Info
	sameTypeSequence string
	idx              []IdxRecord
	syn              map[int][]string // idx position -> extra headwords

	dictAt   io.ReaderAt
	dictFile *os.File // non-nil only when dictAt is backed by a real open file

	resDir string
}

// NewReader returns a Reader configured with opts.
func NewReader(opts ReaderOptions) *Reader {
	return &Reader{opts: opts}
}

// Open loads the dictionary rooted at basePath (without extension): it
// reads basePath+".ifo", then whichever of .idx/.idx.gz, .syn,
// .dict/.dict.dz and res/ exist alongside it.
func (r *Reader) Open(ctx context.Context, basePath string) error {
	ifoFile, err := os.Open(basePath + ".ifo")
	if err != nil {
		return fmt.Errorf("stardict: open ifo: %w", err)
	}
	defer ifoFile.Close()
	info, err := ParseIfo(ifoFile)
	if err != nil {
		return fmt.Errorf("stardict: parse ifo: %w", err)
	}
	r.info = info
	r.sameTypeSequence, _ = info.Get("sametypesequence")
	if !validSameTypeSequence(r.sameTypeSequence) {
		return fmt.Errorf("stardict: %w: %q", ErrInvalidSameTypeSequence, r.sameTypeSequence)
	}

	idxBuf, err := r.readIdxLike(basePath + ".idx")
	if err != nil {
		return err
	}
	r.idx, err = ParseIdx(idxBuf)
	if err != nil {
		return err
	}

	if synBuf, ok, err := r.tryRead(basePath + ".syn"); err != nil {
		return err
	} else if ok {
		records, err := ParseSyn(synBuf)
		if err != nil {
			return err
		}
		r.syn = make(map[int][]string, len(records))
		for _, s := range records {
			if int(s.EntryIndex) >= len(r.idx) {
				slog.Warn("stardictSynEntryIndexOutOfRange", "word", s.Word, "entryIndex", s.EntryIndex, "wordCount", len(r.idx))
				continue
			}
			r.syn[int(s.EntryIndex)] = append(r.syn[int(s.EntryIndex)], s.Word)
		}
	}

	if err := r.openDict(basePath); err != nil {
		return err
	}

	if fi, err := os.Stat(filepath.Join(filepath.Dir(basePath), "res")); err == nil && fi.IsDir() {
		r.resDir = filepath.Join(filepath.Dir(basePath), "res")
	}

	return nil
}

// readIdxLike loads basePath.idx or basePath.idx.gz, whichever exists,
// fully decompressing the latter.
func (r *Reader) readIdxLike(plainPath string) ([]byte, error) {
	if buf, ok, err := r.tryRead(plainPath); err != nil {
		return nil, err
	} else if ok {
		return buf, nil
	}
	gzPath := plainPath + ".gz"
	f, err := os.Open(gzPath)
	if err != nil {
		return nil, fmt.Errorf("stardict: neither %s nor %s found: %w", plainPath, gzPath, err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("stardict: %s: gzip header: %w", gzPath, err)
	}
	defer gz.Close()
	return dictzip.ReadAll(gz)
}

func (r *Reader) tryRead(path string) ([]byte, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("stardict: open %s: %w", path, err)
	}
	defer f.Close()
	buf, err := dictzip.ReadAll(f)
	if err != nil {
		return nil, false, fmt.Errorf("stardict: read %s: %w", path, err)
	}
	return buf, true, nil
}

func (r *Reader) openDict(basePath string) error {
	if f, err := os.Open(basePath + ".dict"); err == nil {
		r.dictFile = f
		r.dictAt = f
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stardict: open %s.dict: %w", basePath, err)
	}

	dzPath := basePath + ".dict.dz"
	if _, err := os.Stat(dzPath); err != nil {
		return fmt.Errorf("stardict: neither %s.dict nor %s found", basePath, dzPath)
	}
	r.dictAt = dictzip.New(func() (io.ReadCloser, error) {
		return os.Open(dzPath)
	}, dzPath)
	return nil
}

// Len returns the number of .idx records plus the number of resource
// files under res/. Iterate yields fewer items when it skips corrupt
// dict blocks.
func (r *Reader) Len() int {
	n := len(r.idx)
	if r.resDir != "" {
		entries, err := os.ReadDir(r.resDir)
		if err == nil {
			for _, ent := range entries {
				if !ent.IsDir() {
					n++
				}
			}
		}
	}
	return n
}

// Iterate yields every headword entry (in .idx order) followed by every
// resource file under res/: definitions first, then resources.
func (r *Reader) Iterate(ctx context.Context, yield func(glossforge.Item) error) error {
	for i, rec := range r.idx {
		if err := ctx.Err(); err != nil {
			return err
		}

		block := make([]byte, rec.Length)
		n, err := r.dictAt.ReadAt(block, int64(rec.Offset))
		if err != nil || n != len(block) {
			// A corrupt dict block is logged and the record is skipped;
			// iteration continues with the next entry.
			slog.Warn("stardictCorruptDictBlock", "word", rec.Word, "offset", rec.Offset, "length", rec.Length, "err", err)
			continue
		}

		defi, err := DecodeDefiBlock(block, r.sameTypeSequence)
		if err != nil {
			slog.Warn("stardictCorruptDictBlock", "word", rec.Word, "index", i, "err", err)
			continue
		}
		text, format := RenderDefi(defi, r.opts.XDXFToHTML)

		words := append([]string{rec.Word}, r.syn[i]...)
		if err := yield(glossforge.NewEntryItem(glossforge.Entry{
			Words:      words,
			Defi:       text,
			DefiFormat: format,
		})); err != nil {
			return err
		}
	}

	if r.resDir != "" {
		entries, err := os.ReadDir(r.resDir)
		if err != nil {
			return fmt.Errorf("stardict: read res dir: %w", err)
		}
		for _, ent := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			if ent.IsDir() {
				continue
			}
			data, err := os.ReadFile(filepath.Join(r.resDir, ent.Name()))
			if err != nil {
				return fmt.Errorf("stardict: read resource %s: %w", ent.Name(), err)
			}
			if err := yield(glossforge.NewDataItem(glossforge.DataEntry{
				Name: ent.Name(),
				Data: data,
			})); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close releases the open dictionary file, if any (dict.dz readers reopen
// the underlying file per access and hold nothing open between calls).
func (r *Reader) Close() error {
	if r.dictFile != nil {
		return r.dictFile.Close()
	}
	return nil
}

// WordCount returns the wordcount field recorded in the .ifo file, used
// by callers that want to cross-check it against len(r.idx) without
// re-deriving it.
func (r *Reader) WordCount() (int64, bool) { return r.info.GetInt("wordcount") }
