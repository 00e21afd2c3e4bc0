package iupac

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	glossforge "github.com/glossforge/glossforge"
)

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<vocabulary>
<title>IUPAC Compendium of Chemical Terminology</title>
<publisher>IUPAC</publisher>
<isbn>0-9678550-9-8</isbn>
<doi>10.1351/goldbook</doi>
<accessdate>2024-01-01</accessdate>
<entries>
<entry id="A00001">
<code>A00001</code>
<term>absolute activity</term>
<definition>The activity of a species.<entry>first sense</entry><entry>second sense</entry></definition>
<related><entry>/terms/A00002</entry></related>
<lastupdated>1997-01-01</lastupdated>
<url>https://goldbook.iupac.org/A00001</url>
</entry>
<entry id="A00002">
<code>A00002</code>
<term>activity coefficient</term>
<definition>A factor used in activity calculations.</definition>
<replacedby>x.y.A00003</replacedby>
</entry>
<entry id="A00003">
<code>A00003</code>
<term><i>activity coefficient</i>, revised</term>
<identifiers><term>IUPAC-A00003</term><synonym>gamma</synonym></identifiers>
<definition>The current recommended term.</definition>
</entry>
</entries>
</vocabulary>
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "goldbook.xml")
	if err := os.WriteFile(path, []byte(sampleXML), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIupacHeaderMetadata(t *testing.T) {
	path := writeSample(t)
	r := NewReader()
	if err := r.Open(context.Background(), path); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got, _ := r.Info().Get("bookname"); got != "IUPAC Compendium of Chemical Terminology" {
		t.Errorf("bookname = %q", got)
	}
	if got, _ := r.Info().Get("publisher"); got != "IUPAC" {
		t.Errorf("publisher = %q", got)
	}
	if got, _ := r.Info().Get("doi"); got != "10.1351/goldbook" {
		t.Errorf("doi = %q", got)
	}
}

func TestIupacTwoPhaseForwardReference(t *testing.T) {
	path := writeSample(t)
	r := NewReader()
	if err := r.Open(context.Background(), path); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}

	var items []glossforge.Entry
	err := r.Iterate(context.Background(), func(it glossforge.Item) error {
		items = append(items, it.Entry)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d entries, want 3", len(items))
	}

	first := items[0]
	if first.Words[0] != "absolute activity" || first.Words[1] != "A00001" {
		t.Fatalf("first entry words = %v", first.Words)
	}
	// Forward reference: entry A00001's related link points at A00002,
	// which is declared *after* it in the document. The cross-reference
	// map must already be complete by the time entry 0 is rendered.
	if want := `Related: <a href="bword://activity coefficient">activity coefficient</a>`; !strings.Contains(first.Defi, want) {
		t.Errorf("defi %q does not resolve forward reference to %q", first.Defi, want)
	}
	if !strings.Contains(first.Defi, "<ol><li>first sense</li><li>second sense</li></ol>") {
		t.Errorf("defi %q missing nested definition list", first.Defi)
	}
	if !strings.Contains(first.Defi, `<a href="https://goldbook.iupac.org/A00001">More info.</a>`) {
		t.Errorf("defi %q missing url link", first.Defi)
	}

	second := items[1]
	if want := `Replaced by: <a href="bword://activity coefficient, revised">activity coefficient, revised</a>`; !strings.Contains(second.Defi, want) {
		t.Errorf("defi %q does not resolve replacedby reference to %q", second.Defi, want)
	}

	third := items[2]
	if third.Words[0] != "activity coefficient, revised" {
		t.Fatalf("italics not stripped from term: %q", third.Words[0])
	}
	if len(third.Words) != 4 || third.Words[2] != "IUPAC-A00003" || third.Words[3] != "gamma" {
		t.Fatalf("identifiers not appended to headwords: %v", third.Words)
	}
}

func TestIupacReplacedByFallsBackToCodeWhenTargetMissing(t *testing.T) {
	const xmlDoc = `<?xml version="1.0"?>
<vocabulary>
<title>T</title>
<entries>
<entry id="X1">
<code>X.00001</code>
<term>solo entry</term>
<definition>A term.</definition>
<replacedby>z.nonexistent</replacedby>
</entry>
</entries>
</vocabulary>
`
	dir := t.TempDir()
	path := filepath.Join(dir, "g.xml")
	if err := os.WriteFile(path, []byte(xmlDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewReader()
	if err := r.Open(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	var defi string
	err := r.Iterate(context.Background(), func(it glossforge.Item) error {
		defi = it.Entry.Defi
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := `Replaced by: <a href="bword://nonexistent">nonexistent</a>`; !strings.Contains(defi, want) {
		t.Errorf("defi %q does not fall back to the raw code %q", defi, want)
	}
}
