package stardict

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	glossforge "github.com/glossforge/glossforge"

	"github.com/glossforge/glossforge/internal/bincodec"
)

// sampleSize is how many entries the writer buffers before committing to
// a sametypesequence (or falling back to the per-block general layout).
const sampleSize = 100

var (
	pPattern    = regexp.MustCompile(`(?s)<p(?: [^<>]*?)?>(.*?)</p>`)
	brPattern   = regexp.MustCompile(`(?i)<br[ /]*>`)
	audioLinkRe = regexp.MustCompile(`<a (?:type="sound" )?(?:[^<>]*? )?href="sound://([^<>"]+)"(?: .*?)?>(.*?)</a>`)
)

// WriterOptions configures a Writer. Zero values are reasonable
// defaults: aliases in a separate .syn file (not merge-syns), a
// sametypesequence auto-selected from the first sampleSize entries, no
// dictzip compression.
type WriterOptions struct {
	BookName    string
	Author      string
	Email       string
	Website     string
	Description string
	Date        string
	Copyright   string
	Publisher   string

	// SourceLangCode and TargetLangCode, when both set, are appended to
	// BookName as "(src-tgt)" unless that substring (compared
	// case-insensitively) is already present.
	SourceLangCode string
	TargetLangCode string

	// SameTypeSequence forces the compact layout with this type letter
	// instead of auto-selecting one from the first sampleSize entries.
	SameTypeSequence string

	// MergeSyns writes every alternate headword as its own .idx record
	// pointing at the shared dict block, instead of a separate .syn file.
	MergeSyns bool

	// Dictzip invokes the external dictzip tool, best-effort, on the
	// written .dict file. When the tool is missing or fails, the plain
	// .dict file is left as it is.
	Dictzip bool

	// StardictClient post-processes HTML definitions for StarDict 3.0's
	// client renderer: <p ...>x</p> becomes x<br>, an orphan </p>
	// becomes <br>, and <br/> variants are normalized to <br>.
	StardictClient bool

	// AudioGoldendict rewrites <a href="sound://X">Y</a> links into
	// <audio src="X">...</audio> elements for GoldenDict's desktop
	// renderer. AudioIcon controls whether the anchor's inner content Y
	// is preserved inside the <audio> element or dropped.
	AudioGoldendict bool
	AudioIcon       bool
}

// Writer implements glossforge.Writer, producing a complete StarDict
// dictionary directory (.ifo, .idx, optional .syn, .dict[.dz],
// optional res/) from a stream of Items.
type Writer struct {
	opts     WriterOptions
	basePath string

	sample       []glossforge.Entry
	decided      bool
	sameTypeSeq  string // "" once decided means general layout
	dictBuf      bytes.Buffer
	idx          []IdxRecord
	syn          []SynRecord
	synWordCount int
	entryCount   int // canonical headwords fed, regardless of MergeSyns
}

// NewWriter returns a Writer configured with opts.
func NewWriter(opts WriterOptions) *Writer {
	return &Writer{opts: opts}
}

// Begin opens basePath (without extension) as the output target.
func (w *Writer) Begin(ctx context.Context, basePath string) error {
	w.basePath = basePath
	if w.opts.SameTypeSequence != "" {
		w.sameTypeSeq = w.opts.SameTypeSequence
		w.decided = true
	}
	return nil
}

// Feed accepts the next Item: an Entry is appended to the dictionary, a
// DataEntry is written verbatim under basePath's sibling res/ directory.
func (w *Writer) Feed(ctx context.Context, item glossforge.Item) error {
	if item.IsData() {
		return w.writeResource(item.Data)
	}
	if w.decided {
		return w.appendEntry(item.Entry)
	}

	w.sample = append(w.sample, item.Entry)
	if len(w.sample) < sampleSize {
		return nil
	}
	w.decide()
	for _, e := range w.sample {
		if err := w.appendEntry(e); err != nil {
			return err
		}
	}
	w.sample = nil
	return nil
}

// decide auto-selects a compact sametypesequence letter by sampling the
// DefiFormat distribution of the first sampleSize entries: "m" if at
// least 97% of sampled entries are plaintext, else "h" if more than half
// are HTML, else fall back to the general per-block layout.
func (w *Writer) decide() {
	w.decided = true
	if len(w.sample) == 0 {
		return
	}
	var countM, countH int
	for _, e := range w.sample {
		switch e.DefiFormat {
		case glossforge.DefiText:
			countM++
		case glossforge.DefiHTML:
			countH++
		}
	}
	n := float64(len(w.sample))
	switch {
	case float64(countM)/n >= 0.97:
		w.sameTypeSeq = "m"
	case float64(countH)/n > 0.5:
		w.sameTypeSeq = "h"
	default:
		w.sameTypeSeq = ""
	}
}

func (w *Writer) appendEntry(e glossforge.Entry) error {
	if len(e.Words) == 0 {
		return fmt.Errorf("stardict: entry with no headwords")
	}
	w.entryCount++

	defi := w.fixDefi(e.Defi, e.DefiFormat)
	part := SplitDefi(defi, e.DefiFormat)
	block := EncodeDefiBlock([]DefiPart{part}, w.sameTypeSeq)

	offset := uint32(w.dictBuf.Len())
	w.dictBuf.Write(block)
	length := uint32(len(block))

	canonical := e.Words[0]
	idxPos := len(w.idx)
	w.idx = append(w.idx, IdxRecord{Word: canonical, Offset: offset, Length: length})

	for _, alt := range e.Words[1:] {
		if w.opts.MergeSyns {
			w.idx = append(w.idx, IdxRecord{Word: alt, Offset: offset, Length: length})
		} else {
			w.syn = append(w.syn, SynRecord{Word: alt, EntryIndex: uint32(idxPos)})
			w.synWordCount++
		}
	}
	return nil
}

// fixDefi applies the writer's configured post-processing transforms to a
// definition before it is encoded: the stardict_client HTML normalization
// and the audio_goldendict sound-link rewrite, each gated by its own
// WriterOption.
func (w *Writer) fixDefi(defi string, format glossforge.DefiFormat) string {
	if w.opts.StardictClient && format == glossforge.DefiHTML {
		defi = pPattern.ReplaceAllString(defi, "$1<br>")
		defi = strings.ReplaceAll(defi, "</p>", "<br>")
		defi = brPattern.ReplaceAllString(defi, "<br>")
	}
	if w.opts.AudioGoldendict {
		if w.opts.AudioIcon {
			defi = audioLinkRe.ReplaceAllString(defi, `<audio src="$1">$2</audio>`)
		} else {
			defi = audioLinkRe.ReplaceAllString(defi, `<audio src="$1"></audio>`)
		}
	}
	return defi
}

func (w *Writer) writeResource(d glossforge.DataEntry) error {
	resDir := filepath.Join(filepath.Dir(w.basePath), "res")
	if err := os.MkdirAll(resDir, 0o755); err != nil {
		return fmt.Errorf("stardict: create res dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(resDir, d.Name), d.Data, 0o644); err != nil {
		return fmt.Errorf("stardict: write resource %s: %w", d.Name, err)
	}
	return nil
}

// Finish flushes any still-buffered sample, then writes the .idx,
// optional .syn, .dict, and .ifo files.
func (w *Writer) Finish(ctx context.Context) error {
	if !w.decided {
		w.decide()
		for _, e := range w.sample {
			if err := w.appendEntry(e); err != nil {
				return err
			}
		}
		w.sample = nil
	}

	w.sortIdxAndSyn()

	idxBytes := EncodeIdx(w.idx)
	if err := os.WriteFile(w.basePath+".idx", idxBytes, 0o644); err != nil {
		return fmt.Errorf("stardict: write idx: %w", err)
	}

	if len(w.syn) > 0 {
		synBytes := EncodeSyn(w.syn)
		if err := os.WriteFile(w.basePath+".syn", synBytes, 0o644); err != nil {
			return fmt.Errorf("stardict: write syn: %w", err)
		}
	}

	dictPath := w.basePath + ".dict"
	if err := os.WriteFile(dictPath, w.dictBuf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("stardict: write dict: %w", err)
	}
	if w.opts.Dictzip {
		runDictzip(dictPath)
	}

	if err := w.writeIfo(len(idxBytes)); err != nil {
		return err
	}
	return nil
}

// sortIdxAndSyn orders .idx and .syn records by the case-folded byte key,
// remapping .syn's EntryIndex references so they still point at the right
// record after .idx moves.
func (w *Writer) sortIdxAndSyn() {
	origOrder := make([]int, len(w.idx))
	for i := range w.idx {
		origOrder[i] = i
	}
	sort.SliceStable(origOrder, func(i, j int) bool {
		return bincodec.CompareWords([]byte(w.idx[origOrder[i]].Word), []byte(w.idx[origOrder[j]].Word)) < 0
	})

	newIndexOf := make([]int, len(w.idx))
	sorted := make([]IdxRecord, len(w.idx))
	for newPos, oldPos := range origOrder {
		sorted[newPos] = w.idx[oldPos]
		newIndexOf[oldPos] = newPos
	}
	w.idx = sorted

	for i := range w.syn {
		w.syn[i].EntryIndex = uint32(newIndexOf[w.syn[i].EntryIndex])
	}
	sort.SliceStable(w.syn, func(i, j int) bool {
		return bincodec.CompareWords([]byte(w.syn[i].Word), []byte(w.syn[j].Word)) < 0
	})
}

// newlinesToSpace collapses any newline sequence to a single space, for
// single-line .ifo values (bookname, author, email, website, date).
func newlinesToSpace(s string) string {
	return newlineRun.ReplaceAllString(s, " ")
}

// newlinesToBr collapses any newline sequence to "<br>", for the
// multi-line description value.
func newlinesToBr(s string) string {
	return newlineRun.ReplaceAllString(s, "<br>")
}

var newlineRun = regexp.MustCompile(`\n\r?|\r\n?`)

func (w *Writer) writeIfo(idxFileSize int) error {
	info := NewInfo()
	info.Set("version", "3.0.0")

	bookname := newlinesToSpace(w.opts.BookName)
	if w.opts.SourceLangCode != "" && w.opts.TargetLangCode != "" {
		langs := fmt.Sprintf("%s-%s", w.opts.SourceLangCode, w.opts.TargetLangCode)
		if !strings.Contains(strings.ToLower(bookname), strings.ToLower(langs)) {
			bookname = fmt.Sprintf("%s (%s)", bookname, langs)
		}
	}
	info.Set("bookname", bookname)

	// wordcount counts the entries (canonical headwords) fed to the
	// writer, not .idx record count: in MergeSyns mode every alias also gets its
	// own .idx record, but wordcount still reflects entries, not raw
	// .idx rows.
	info.Set("wordcount", strconv.Itoa(w.entryCount))
	info.Set("idxfilesize", strconv.Itoa(idxFileSize))
	if w.sameTypeSeq != "" {
		info.Set("sametypesequence", w.sameTypeSeq)
	}
	if w.opts.MergeSyns {
		info.Set("synwordcount", "0")
	} else if w.synWordCount > 0 {
		info.Set("synwordcount", strconv.Itoa(w.synWordCount))
	}

	if w.opts.Author != "" {
		info.Set("author", newlinesToSpace(w.opts.Author))
	}
	if w.opts.Email != "" {
		info.Set("email", newlinesToSpace(w.opts.Email))
	}
	if w.opts.Website != "" {
		info.Set("website", newlinesToSpace(w.opts.Website))
	}
	if w.opts.Date != "" {
		info.Set("date", newlinesToSpace(w.opts.Date))
	}

	desc := w.opts.Description
	if w.opts.Copyright != "" {
		desc = w.opts.Copyright + "\n" + desc
	}
	if w.opts.Publisher != "" {
		desc = "Publisher: " + w.opts.Publisher + "\n" + desc
	}
	info.Set("description", newlinesToBr(desc))

	f, err := os.Create(w.basePath + ".ifo")
	if err != nil {
		return fmt.Errorf("stardict: create ifo: %w", err)
	}
	defer f.Close()
	return WriteIfo(f, info)
}

// runDictzip invokes the external dictzip tool, if present on PATH, on
// path. Failure is advisory only: the plain, uncompressed .dict file is
// still a valid StarDict dictionary.
func runDictzip(path string) {
	bin, err := exec.LookPath("dictzip")
	if err != nil {
		slog.Warn("stardictDictzipUnavailable", "err", err)
		return
	}
	if err := exec.Command(bin, path).Run(); err != nil {
		slog.Warn("stardictDictzipFailed", "path", path, "err", err)
	}
}
