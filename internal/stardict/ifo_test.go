package stardict

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseIfoRoundTrip(t *testing.T) {
	src := "StarDict's dict ifo file\n" +
		"version=3.0.0\n" +
		"bookname=Test Dictionary\n" +
		"wordcount=42\n" +
		"idxfilesize=123\n" +
		"sametypesequence=m\n"

	info, err := ParseIfo(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := info.Get("bookname"); v != "Test Dictionary" {
		t.Errorf("bookname = %q", v)
	}
	if n, ok := info.GetInt("wordcount"); !ok || n != 42 {
		t.Errorf("wordcount = %d, %v", n, ok)
	}

	var buf bytes.Buffer
	if err := WriteIfo(&buf, info); err != nil {
		t.Fatal(err)
	}
	reparsed, err := ParseIfo(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if v, _ := reparsed.Get("sametypesequence"); v != "m" {
		t.Errorf("sametypesequence after round trip = %q", v)
	}
}

func TestParseIfoRejectsBadHeader(t *testing.T) {
	_, err := ParseIfo(strings.NewReader("not a stardict file\nversion=3.0.0\n"))
	if err == nil {
		t.Fatal("expected an error for a malformed header")
	}
}

func TestParseIfoDefaultsVersion(t *testing.T) {
	src := "StarDict's dict ifo file\nbookname=x\n"
	info, err := ParseIfo(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := info.Get("version"); !ok || v != "3.0.0" {
		t.Errorf("version = %q, %v, want 3.0.0, true", v, ok)
	}
}
