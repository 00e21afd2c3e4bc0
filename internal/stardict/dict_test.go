package stardict

import (
	"testing"

	glossforge "github.com/glossforge/glossforge"
)

func TestCompactDefiBlockRoundTrip(t *testing.T) {
	parts := []DefiPart{{Type: 'm', Data: []byte("hello world")}}
	block := EncodeDefiBlock(parts, "m")

	got, err := DecodeDefiBlock(block, "m")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Parts) != 1 || string(got.Parts[0].Data) != "hello world" {
		t.Fatalf("got %+v", got)
	}
}

func TestCompactMultiPartDefiBlockRoundTrip(t *testing.T) {
	parts := []DefiPart{
		{Type: 'h', Data: []byte("<b>bold</b>")},
		{Type: 'r', Data: []byte("img1.png\nimg2.png")},
	}
	block := EncodeDefiBlock(parts, "hr")

	got, err := DecodeDefiBlock(block, "hr")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(got.Parts))
	}
	if string(got.Parts[0].Data) != "<b>bold</b>" {
		t.Errorf("part 0 = %q", got.Parts[0].Data)
	}
	if string(got.Parts[1].Data) != "img1.png\nimg2.png" {
		t.Errorf("part 1 = %q", got.Parts[1].Data)
	}
}

func TestGeneralDefiBlockRoundTrip(t *testing.T) {
	parts := []DefiPart{
		{Type: 'm', Data: []byte("plain text")},
		{Type: 'h', Data: []byte("<i>html</i>")},
	}
	block := EncodeDefiBlock(parts, "")

	got, err := DecodeDefiBlock(block, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(got.Parts))
	}
	if got.Parts[0].Type != 'm' || string(got.Parts[0].Data) != "plain text" {
		t.Errorf("part 0 = %+v", got.Parts[0])
	}
	if got.Parts[1].Type != 'h' || string(got.Parts[1].Data) != "<i>html</i>" {
		t.Errorf("part 1 = %+v", got.Parts[1])
	}
}

func TestRenderDefiSinglePart(t *testing.T) {
	b := DefiBlock{Parts: []DefiPart{{Type: 'm', Data: []byte("plain text")}}}
	text, format := RenderDefi(b, nil)
	if format != glossforge.DefiText || text != "plain text" {
		t.Errorf("got (%q, %v)", text, format)
	}
}

func TestRenderDefiSameFormatHTMLJoinsWithHR(t *testing.T) {
	b := DefiBlock{Parts: []DefiPart{
		{Type: 'h', Data: []byte("<b>one</b>")},
		{Type: 'g', Data: []byte("<i>two</i>")},
	}}
	text, format := RenderDefi(b, nil)
	if format != glossforge.DefiHTML {
		t.Errorf("format = %v, want DefiHTML", format)
	}
	if want := "<b>one</b>\n<hr><i>two</i>"; text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
}

func TestRenderDefiSameFormatPlainJoinsWithNewline(t *testing.T) {
	b := DefiBlock{Parts: []DefiPart{
		{Type: 'm', Data: []byte("one")},
		{Type: 'y', Data: []byte("two")},
	}}
	text, format := RenderDefi(b, nil)
	if format != glossforge.DefiText {
		t.Errorf("format = %v, want DefiText", format)
	}
	if want := "one\ntwo"; text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
}

func TestRenderDefiMixedFormatsPromoteToHTML(t *testing.T) {
	b := DefiBlock{Parts: []DefiPart{
		{Type: 'm', Data: []byte("line1\nline2")},
		{Type: 'h', Data: []byte("<b>bold</b>")},
	}}
	text, format := RenderDefi(b, nil)
	if format != glossforge.DefiHTML {
		t.Errorf("format = %v, want DefiHTML", format)
	}
	want := "<pre>line1<br/>line2</pre>\n<hr>\n<b>bold</b>"
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
}

func TestRenderDefiMixedFormatsConvertsXDXF(t *testing.T) {
	b := DefiBlock{Parts: []DefiPart{
		{Type: 'x', Data: []byte("<gr>xdxf</gr>")},
		{Type: 'm', Data: []byte("plain")},
	}}
	toHTML := func(s string) string { return "<conv>" + s + "</conv>" }
	text, format := RenderDefi(b, toHTML)
	if format != glossforge.DefiHTML {
		t.Errorf("format = %v, want DefiHTML", format)
	}
	want := "<conv><gr>xdxf</gr></conv>\n<hr>\n<pre>plain</pre>"
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
}

func TestRenderDefiResourceList(t *testing.T) {
	b := DefiBlock{Parts: []DefiPart{
		{Type: 'm', Data: []byte("word")},
		{Type: 'r', Data: []byte("a.png\nb.png")},
	}}
	text, format := RenderDefi(b, nil)
	if format != glossforge.DefiText {
		t.Errorf("format = %v, want DefiText", format)
	}
	if text != "word\na.png\nb.png" {
		t.Errorf("text = %q", text)
	}
}
