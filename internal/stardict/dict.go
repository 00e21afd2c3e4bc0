package stardict

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/glossforge/glossforge/internal/bincodec"
	glossforge "github.com/glossforge/glossforge"
)

// DefiPart is one piece of a multi-part definition block: a type letter
// (lowercase => NUL-terminated text, uppercase => 4-byte-BE-length-
// prefixed raw bytes) and the raw bytes of that piece.
type DefiPart struct {
	Type byte
	Data []byte
}

// recognized type letters, per the StarDict .dict format.
const (
	typePlainM = 'm' // plain meaning, no markup
	typePlainT = 't' // English phonetic (treated as plain text)
	typePlainY = 'y' // plain meaning, UTF-8
	typeHTMLG  = 'g' // Pango markup (treated as HTML-ish)
	typeHTMLH  = 'h' // HTML
	typeXDXF   = 'x' // XDXF markup
	typeRes    = 'r' // resource file name list, one per line
)

// DecodeDefiBlock splits a single .dict definition block into its parts.
// When sameTypeSequence is non-empty (a "compact" dictionary), the block
// carries no per-part type letters; the sequence names them positionally
// and only the final part's length is implicit (it runs to the end of
// the block). Otherwise (a "general" dictionary) each part is prefixed
// with its own type-letter byte.
func DecodeDefiBlock(block []byte, sameTypeSequence string) (DefiBlock, error) {
	if sameTypeSequence != "" {
		return decodeCompact(block, sameTypeSequence)
	}
	return decodeGeneral(block)
}

// DefiBlock is a decoded multi-part definition.
type DefiBlock struct {
	Parts []DefiPart
}

func decodeCompact(block []byte, seq string) (DefiBlock, error) {
	var out DefiBlock
	pos := 0
	for i := 0; i < len(seq); i++ {
		letter := seq[i]
		last := i == len(seq)-1
		lower := letter >= 'a' && letter <= 'z'

		if last {
			out.Parts = append(out.Parts, DefiPart{Type: letter, Data: block[pos:]})
			pos = len(block)
			break
		}
		if lower {
			nul, ok := bincodec.ScanNUL(block, pos)
			if !ok {
				return DefiBlock{}, fmt.Errorf("stardict: compact defi: unterminated part %q", string(letter))
			}
			out.Parts = append(out.Parts, DefiPart{Type: letter, Data: block[pos:nul]})
			pos = nul + 1
		} else {
			if pos+4 > len(block) {
				return DefiBlock{}, fmt.Errorf("stardict: compact defi: truncated length for part %q", string(letter))
			}
			n := int(bincodec.U32BE(block[pos : pos+4]))
			pos += 4
			if pos+n > len(block) {
				return DefiBlock{}, fmt.Errorf("stardict: compact defi: truncated data for part %q", string(letter))
			}
			out.Parts = append(out.Parts, DefiPart{Type: letter, Data: block[pos : pos+n]})
			pos += n
		}
	}
	return out, nil
}

func decodeGeneral(block []byte) (DefiBlock, error) {
	var out DefiBlock
	pos := 0
	for pos < len(block) {
		letter := block[pos]
		pos++
		lower := letter >= 'a' && letter <= 'z'
		if lower {
			nul, ok := bincodec.ScanNUL(block, pos)
			if !ok {
				return DefiBlock{}, fmt.Errorf("stardict: general defi: unterminated part %q", string(letter))
			}
			out.Parts = append(out.Parts, DefiPart{Type: letter, Data: block[pos:nul]})
			pos = nul + 1
		} else {
			if pos+4 > len(block) {
				return DefiBlock{}, fmt.Errorf("stardict: general defi: truncated length for part %q", string(letter))
			}
			n := int(bincodec.U32BE(block[pos : pos+4]))
			pos += 4
			if pos+n > len(block) {
				return DefiBlock{}, fmt.Errorf("stardict: general defi: truncated data for part %q", string(letter))
			}
			out.Parts = append(out.Parts, DefiPart{Type: letter, Data: block[pos : pos+n]})
			pos += n
		}
	}
	return out, nil
}

// EncodeDefiBlock serializes parts back into a .dict block. If
// sameTypeSequence is non-empty, the per-part type letters are omitted
// (the compact layout) and the final part is written without a
// NUL/length prefix; otherwise every part carries its own type-letter
// prefix (the general layout).
func EncodeDefiBlock(parts []DefiPart, sameTypeSequence string) []byte {
	var buf []byte
	for i, p := range parts {
		lower := p.Type >= 'a' && p.Type <= 'z'
		last := i == len(parts)-1

		if sameTypeSequence == "" {
			buf = append(buf, p.Type)
		}
		if sameTypeSequence != "" && last {
			buf = append(buf, p.Data...)
			continue
		}
		if lower {
			buf = append(buf, p.Data...)
			buf = append(buf, 0)
		} else {
			buf = bincodec.PutU32BE(buf, uint32(len(p.Data)))
			buf = append(buf, p.Data...)
		}
	}
	return buf
}

// defiPartFormat maps a definition part's type letter onto the DefiFormat
// it represents: m,t,y -> plaintext; g,h -> HTML; x -> XDXF. It reports
// ok=false for any other letter, which is preserved but logged; this
// codec treats an unrecognized letter's content as plain text.
func defiPartFormat(t byte) (format glossforge.DefiFormat, ok bool) {
	switch t {
	case typePlainM, typePlainT, typePlainY:
		return glossforge.DefiText, true
	case typeHTMLG, typeHTMLH:
		return glossforge.DefiHTML, true
	case typeXDXF:
		return glossforge.DefiXDXF, true
	default:
		return glossforge.DefiText, false
	}
}

type renderedPart struct {
	text   string
	format glossforge.DefiFormat
}

// RenderDefi combines a decoded DefiBlock's parts into the single
// (text, format) pair glossforge.Entry carries: a single part is decoded
// directly; multiple parts sharing one format are joined (plaintext and
// XDXF by "\n", HTML by "\n<hr>"); multiple parts
// with mixed formats are each promoted to HTML (plaintext wrapped in
// <pre> with "\n" -> "<br/>", XDXF run through xdxfToHTML) and joined by
// "\n<hr>\n", with the final format forced to HTML. A resource-file-list
// part ('r') is not part of this format negotiation: its filenames are
// appended as trailing lines after the rendered body.
func RenderDefi(b DefiBlock, xdxfToHTML func(string) string) (text string, format glossforge.DefiFormat) {
	var resources []string
	var parts []renderedPart

	for _, p := range b.Parts {
		if p.Type == typeRes {
			for _, line := range strings.Split(string(p.Data), "\n") {
				if line != "" {
					resources = append(resources, line)
				}
			}
			continue
		}
		f, ok := defiPartFormat(p.Type)
		if !ok {
			slog.Warn("stardictUnsupportedDefiType", "type", string(p.Type))
		}
		parts = append(parts, renderedPart{text: string(p.Data), format: f})
	}

	text, format = joinParts(parts, xdxfToHTML)
	if len(resources) > 0 {
		if text != "" {
			text += "\n"
		}
		text += strings.Join(resources, "\n")
	}
	return text, format
}

func joinParts(parts []renderedPart, xdxfToHTML func(string) string) (string, glossforge.DefiFormat) {
	if len(parts) == 0 {
		return "", glossforge.DefiText
	}
	if len(parts) == 1 {
		return parts[0].text, parts[0].format
	}

	same := true
	first := parts[0].format
	for _, p := range parts[1:] {
		if p.format != first {
			same = false
			break
		}
	}
	if same {
		texts := make([]string, len(parts))
		for i, p := range parts {
			texts[i] = p.text
		}
		if first == glossforge.DefiHTML {
			return strings.Join(texts, "\n<hr>"), glossforge.DefiHTML
		}
		return strings.Join(texts, "\n"), first
	}

	htmlParts := make([]string, len(parts))
	for i, p := range parts {
		switch p.format {
		case glossforge.DefiText:
			htmlParts[i] = "<pre>" + strings.ReplaceAll(p.text, "\n", "<br/>") + "</pre>"
		case glossforge.DefiXDXF:
			if xdxfToHTML != nil {
				htmlParts[i] = xdxfToHTML(p.text)
			} else {
				htmlParts[i] = p.text
			}
		default:
			htmlParts[i] = p.text
		}
	}
	return strings.Join(htmlParts, "\n<hr>\n"), glossforge.DefiHTML
}

// SplitDefi is RenderDefi's inverse for the writer side: it produces the
// single DefiPart a plain Entry's (Defi, DefiFormat) maps to. Writers
// that need multi-part blocks (e.g. text plus resource list) build
// []DefiPart directly instead of going through this helper.
func SplitDefi(defi string, format glossforge.DefiFormat) DefiPart {
	switch format {
	case glossforge.DefiHTML:
		return DefiPart{Type: typeHTMLH, Data: []byte(defi)}
	case glossforge.DefiXDXF:
		return DefiPart{Type: typeXDXF, Data: []byte(defi)}
	default:
		return DefiPart{Type: typePlainM, Data: []byte(defi)}
	}
}
