// Package iupac reads the IUPAC Compendium of Chemical Terminology
// ("Goldbook") XML export: a flat list of terminology entries, some of
// which are cross-referenced from others before they are themselves
// declared later in the document.
//
// Reading happens in two streaming passes over the same decompressed
// byte buffer, using the stdlib encoding/xml streaming Decoder with a
// next() helper that skips comments, directives and processing
// instructions (the same "ignore extensibility tokens" discipline RFC
// 4918 XML parsing uses):
// the first pass builds a code -> term cross-reference map, which must
// be complete before the second pass starts, because an entry can
// reference a code declared later in the file; the second pass emits
// glossforge.Entry values, discarding each entry's XML subtree as soon
// as it's rendered so memory stays bounded in the number of entries, not
// the size of the document.
package iupac

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"os"
	"strings"

	glossforge "github.com/glossforge/glossforge"
	"github.com/klauspost/compress/gzip"
	"github.com/therootcompany/xz"
)

// next returns the next token in d's stream, skipping comments,
// directives and processing instructions.
func next(d *xml.Decoder) (xml.Token, error) {
	for {
		t, err := d.Token()
		if err != nil {
			return t, err
		}
		switch t.(type) {
		case xml.Comment, xml.Directive, xml.ProcInst:
			continue
		default:
			return t, nil
		}
	}
}

type xmlTerm struct {
	InnerXML string `xml:",innerxml"`
}

type xmlIdentifiers struct {
	Term    string `xml:"term"`
	Synonym string `xml:"synonym"`
}

type xmlDefinitionEntry struct {
	Text string `xml:",chardata"`
}

type xmlDefinition struct {
	Text    string               `xml:",chardata"`
	Entries []xmlDefinitionEntry `xml:"entry"`
}

type xmlRelatedEntry struct {
	Text string `xml:",chardata"`
}

type xmlRelated struct {
	Entries []xmlRelatedEntry `xml:"entry"`
}

type xmlEntry struct {
	ID          string         `xml:"id,attr"`
	Code        string         `xml:"code"`
	Term        xmlTerm        `xml:"term"`
	Identifiers xmlIdentifiers `xml:"identifiers"`
	Definition  xmlDefinition  `xml:"definition"`
	ReplacedBy  *string        `xml:"replacedby"`
	Related     xmlRelated     `xml:"related"`
	LastUpdated *string        `xml:"lastupdated"`
	URL         *string        `xml:"url"`
}

// xmlHeader is the synthetic document built from the bytes preceding
// <entries>, closed with an artificial </vocabulary> tag: the real file
// is too large to parse as a whole DOM, but its header fields sit in the
// first few hundred bytes.
type xmlHeader struct {
	Title      string `xml:"title"`
	Publisher  string `xml:"publisher"`
	ISBN       string `xml:"isbn"`
	DOI        string `xml:"doi"`
	AccessDate string `xml:"accessdate"`
}

// Reader implements glossforge.Reader over the Goldbook XML export.
type Reader struct {
	buf       []byte
	crossRefs map[string]string // code -> term
	count     int
	info      *glossforge.Metadata
}

// NewReader returns an unopened Reader.
func NewReader() *Reader { return &Reader{} }

// Open reads path fully into memory, transparently decompressing gzip or
// xz input (sniffed by magic bytes), extracts the header metadata, then
// runs the first cross-reference pass.
func (r *Reader) Open(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("iupac: open %s: %w", path, err)
	}
	defer f.Close()

	rdr, err := decompressSniff(f)
	if err != nil {
		return fmt.Errorf("iupac: %s: %w", path, err)
	}
	buf, err := io.ReadAll(rdr)
	if err != nil {
		return fmt.Errorf("iupac: read %s: %w", path, err)
	}
	r.buf = buf

	r.info = glossforge.NewMetadata()
	r.parseHeader(buf)

	crossRefs, count, err := scanCrossRefs(bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("iupac: cross-reference pass: %w", err)
	}
	r.crossRefs = crossRefs
	r.count = count
	return nil
}

// Info returns the bookname/publisher/isbn/doi/date metadata recovered
// from the document header. It is not part of the glossforge.Reader
// contract (which has no Glossary handle to push into); callers that
// want it call this directly after Open, the same way
// stardict.Reader.WordCount is an extra accessor beyond its interface.
func (r *Reader) Info() *glossforge.Metadata { return r.info }

// parseHeader carves the bytes preceding "<entries>" out of buf, closes
// them with a synthetic </vocabulary> tag, and parses the result as its
// own small XML document to recover the title/publisher/isbn/doi/
// accessdate fields.
func (r *Reader) parseHeader(buf []byte) {
	idx := bytes.Index(buf, []byte("<entries>"))
	if idx < 0 {
		return
	}
	header := append(append([]byte{}, buf[:idx]...), []byte("</vocabulary>")...)

	var h xmlHeader
	if err := xml.Unmarshal(header, &h); err != nil {
		return
	}
	setInfo(r.info, "bookname", h.Title)
	setInfo(r.info, "publisher", h.Publisher)
	setInfo(r.info, "isbn", h.ISBN)
	setInfo(r.info, "doi", h.DOI)
	setInfo(r.info, "date", h.AccessDate)
}

func setInfo(m *glossforge.Metadata, key, value string) {
	if value == "" {
		return
	}
	m.Set(key, html.UnescapeString(value))
}

func decompressSniff(f *os.File) (io.Reader, error) {
	magic := make([]byte, 6)
	n, err := f.Read(magic)
	if err != nil && err != io.EOF {
		return nil, err
	}
	magic = magic[:n]
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	switch {
	case len(magic) >= 2 && magic[0] == 0x1f && magic[1] == 0x8b:
		return gzip.NewReader(f)
	case len(magic) >= 6 && bytes.Equal(magic, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}):
		return xz.NewReader(f, xz.DefaultDictMax)
	default:
		return f, nil
	}
}

// scanCrossRefs runs the phase-1 pass: find every <entry><code>/<term>
// pair and record code -> term, so phase 2 can resolve forward
// references. Entries missing either element are skipped, matching
// the original reader's termByCode construction.
func scanCrossRefs(r io.Reader) (map[string]string, int, error) {
	d := xml.NewDecoder(r)
	refs := make(map[string]string)
	count := 0

	for {
		tok, err := next(d)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "entry" {
			continue
		}
		var e xmlEntry
		if err := d.DecodeElement(&e, &start); err != nil {
			return nil, 0, fmt.Errorf("decode entry: %w", err)
		}
		count++
		if e.Code == "" {
			continue
		}
		term := extractTerm(e.Term)
		if term == "" {
			continue
		}
		refs[e.Code] = term
	}
	return refs, count, nil
}

// extractTerm renders a <term> element's inner markup into plain text:
// trimmed, HTML-entity-unescaped, with <i>/</i> emphasis tags stripped.
func extractTerm(t xmlTerm) string {
	s := strings.TrimSpace(t.InnerXML)
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "<i>", "")
	s = strings.ReplaceAll(s, "</i>", "")
	return strings.TrimSpace(s)
}

// lastSegment returns the portion of s after its final occurrence of sep,
// or s unchanged if sep does not occur. Used to turn a dotted replacedby
// code ("x.y.B") or a related-entry URL path ("/terms/B") into the bare
// code that indexes the cross-reference map.
func lastSegment(s, sep string) string {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[i+len(sep):]
	}
	return s
}

// Len returns the number of <entry> elements found during Open's
// cross-reference pass.
func (r *Reader) Len() int { return r.count }

// Iterate runs the phase-2 emission pass, resolving replacedby/related
// cross-references against the map built by Open.
func (r *Reader) Iterate(ctx context.Context, yield func(glossforge.Item) error) error {
	d := xml.NewDecoder(bytes.NewReader(r.buf))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tok, err := next(d)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "entry" {
			continue
		}
		var e xmlEntry
		if err := d.DecodeElement(&e, &start); err != nil {
			return fmt.Errorf("iupac: decode entry: %w", err)
		}
		if e.Code == "" {
			continue
		}
		term := extractTerm(e.Term)
		if term == "" {
			continue
		}

		words := []string{term, e.Code}
		if e.Identifiers.Term != "" {
			words = append(words, e.Identifiers.Term)
		}
		if e.Identifiers.Synonym != "" {
			words = append(words, e.Identifiers.Synonym)
		}

		defi := r.renderEntry(e)
		if err := yield(glossforge.NewEntryItem(glossforge.Entry{
			Words:      words,
			Defi:       defi,
			DefiFormat: glossforge.DefiHTML,
		})); err != nil {
			return err
		}
	}
}

// renderEntry assembles an entry's definition-part list and joins it with
// "<br/>", inserting a blank spacer immediately after the first part when
// more than one part is present.
func (r *Reader) renderEntry(e xmlEntry) string {
	var parts []string

	if text := strings.TrimSpace(e.Definition.Text); text != "" {
		parts = append(parts, text)
	}

	if len(e.Definition.Entries) > 0 {
		var items []string
		for _, item := range e.Definition.Entries {
			text := strings.TrimSpace(item.Text)
			if text == "" {
				continue
			}
			items = append(items, fmt.Sprintf("<li>%s</li>", text))
		}
		if len(items) > 0 {
			parts = append(parts, "<ol>"+strings.Join(items, "")+"</ol>")
		}
	}

	if e.ReplacedBy != nil {
		code := lastSegment(strings.TrimSpace(*e.ReplacedBy), ".")
		target, ok := r.crossRefs[code]
		if !ok {
			target = code
		}
		parts = append(parts, fmt.Sprintf(`Replaced by: <a href="bword://%s">%s</a>`, target, target))
	}

	if len(e.Related.Entries) > 0 {
		var links []string
		for _, rel := range e.Related.Entries {
			code := lastSegment(strings.TrimSpace(rel.Text), "/")
			if code == "" {
				continue
			}
			target, ok := r.crossRefs[code]
			if !ok {
				target = code
			}
			links = append(links, fmt.Sprintf(`<a href="bword://%s">%s</a>`, target, target))
		}
		if len(links) > 0 {
			parts = append(parts, "Related: "+strings.Join(links, ", "))
		}
	}

	if e.LastUpdated != nil && *e.LastUpdated != "" {
		parts = append(parts, fmt.Sprintf("Last updated: %s", *e.LastUpdated))
	}
	if e.URL != nil && *e.URL != "" {
		parts = append(parts, fmt.Sprintf(`<a href="%s">More info.</a>`, *e.URL))
	}

	if len(parts) > 1 {
		parts = append(parts[:1], append([]string{""}, parts[1:]...)...)
	}
	return strings.Join(parts, "<br/>")
}

// Close releases resources. Reader keeps no open file handles between
// Open and Iterate, so Close is a no-op.
func (r *Reader) Close() error { return nil }
