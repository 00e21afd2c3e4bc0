// Copyright (c) The glossforge authors
// Licensed under the MIT license

// Package glossforge defines the narrow Entry/DataEntry contract shared by
// every reader and writer in this module, and the glue that streams one
// into the other.
//
// The full glossary object — its info dictionary, language metadata,
// plugin registry, and format auto-detection — lives outside this module;
// readers and writers consume only the narrow [Glossary] interface below.
package glossforge

import (
	"context"
	"fmt"
)

// DefiFormat tags the markup language an Entry's definition is written in.
type DefiFormat byte

const (
	DefiUnknown DefiFormat = 0
	DefiHTML    DefiFormat = 'h'
	DefiText    DefiFormat = 'm'
	DefiXDXF    DefiFormat = 'x'
)

func (f DefiFormat) String() string {
	if f == DefiUnknown {
		return ""
	}
	return string(rune(f))
}

// ParseDefiFormat converts a single-letter format tag ("h", "m", "x", or
// empty) into a DefiFormat, reporting false for anything else.
func ParseDefiFormat(s string) (DefiFormat, bool) {
	switch s {
	case "":
		return DefiUnknown, true
	case "h":
		return DefiHTML, true
	case "m":
		return DefiText, true
	case "x":
		return DefiXDXF, true
	default:
		return DefiUnknown, false
	}
}

// Entry is an ordered, non-empty list of headwords plus one definition.
// The first headword is canonical; the rest are aliases/synonyms.
type Entry struct {
	Words      []string
	Defi       string
	DefiFormat DefiFormat

	// ByteProgress optionally reports (bytesConsumed, totalBytes) for a
	// producer that can cheaply estimate it, e.g. a streaming XML reader.
	// Zero values mean "unknown"; this module has no progress UI, but
	// keeps the field so producers can still carry the information through.
	ByteProgress [2]int64
}

// IsData reports whether this value represents binary resource data rather
// than a headword/definition pair. Entry is never data; DataEntry always is.
func (Entry) IsData() bool { return false }

// Word returns the canonical (first) headword.
func (e Entry) Word() string {
	if len(e.Words) == 0 {
		return ""
	}
	return e.Words[0]
}

// DataEntry is a named binary resource: an image, an audio clip, a
// stylesheet, or any other file a glossary definition can reference.
type DataEntry struct {
	Name string
	Data []byte
}

// IsData reports whether this value represents binary resource data.
func (DataEntry) IsData() bool { return true }

// Item is the tagged union a Reader yields and a Writer consumes: exactly
// one of Entry or Data is meaningful, discriminated by IsData.
type Item struct {
	Entry Entry
	Data  DataEntry
	data  bool
}

// IsData reports which field of Item is populated.
func (it Item) IsData() bool { return it.data }

// NewEntryItem wraps an Entry as an Item.
func NewEntryItem(e Entry) Item { return Item{Entry: e} }

// NewDataItem wraps a DataEntry as an Item.
func NewDataItem(d DataEntry) Item { return Item{Data: d, data: true} }

// Metadata is the narrow info-dictionary interface the codec consumes from
// the external glossary object: get/set of string-valued keys such as
// bookname, author, description. It deliberately does not model the rest
// of the glossary object (language pair objects, plugin registry,
// auto-detection), which lives outside this module entirely.
type Metadata struct {
	order  []string
	values map[string]string
}

// NewMetadata returns an empty Metadata.
func NewMetadata() *Metadata {
	return &Metadata{values: make(map[string]string)}
}

// Get returns the value for key, and whether it was set.
func (m *Metadata) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Set assigns value to key, preserving first-insertion order for Keys.
func (m *Metadata) Set(key, value string) {
	if _, ok := m.values[key]; !ok {
		m.order = append(m.order, key)
	}
	m.values[key] = value
}

// Keys returns the metadata keys in the order they were first set.
func (m *Metadata) Keys() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// RawItem is the gob-encodable persisted form of an Item, matching a
// get_raw(glos)/from_raw(glos, raw, default_format) contract for pickling
// entries into the sortable store.
type RawItem struct {
	IsData     bool
	Words      []string
	Defi       string
	DefiFormat byte
	DataName   string
	DataBytes  []byte
}

// GetRaw returns the persisted form of it.
func (it Item) GetRaw() RawItem {
	if it.IsData() {
		return RawItem{IsData: true, DataName: it.Data.Name, DataBytes: it.Data.Data}
	}
	return RawItem{
		Words:      it.Entry.Words,
		Defi:       it.Entry.Defi,
		DefiFormat: byte(it.Entry.DefiFormat),
	}
}

// ItemFromRaw reconstructs an Item from its persisted form. defaultFormat
// fills in an unset DefiFormat, matching from_raw's defaultDefiFormat.
func ItemFromRaw(r RawItem, defaultFormat DefiFormat) Item {
	if r.IsData {
		return NewDataItem(DataEntry{Name: r.DataName, Data: r.DataBytes})
	}
	format := DefiFormat(r.DefiFormat)
	if format == DefiUnknown {
		format = defaultFormat
	}
	return NewEntryItem(Entry{Words: r.Words, Defi: r.Defi, DefiFormat: format})
}

// Words returns the headword list used to derive sort keys: an Entry's
// words, or a single-element list of a DataEntry's name.
func (it Item) Words() []string {
	if it.IsData() {
		return []string{it.Data.Name}
	}
	return it.Entry.Words
}

// Glossary is the narrow interface readers and writers are built against:
// new_entry, new_data_entry, set_info, get_info.
type Glossary interface {
	NewEntry(words []string, defi string, format DefiFormat) Entry
	NewDataEntry(name string, data []byte) DataEntry
	SetInfo(key, value string)
	GetInfo(key string) (string, bool)
}

// SimpleGlossary is the default Glossary implementation: a Metadata plus
// trivial Entry/DataEntry constructors. Readers and writers in this module
// accept any Glossary, but tests and simple callers can use this directly.
type SimpleGlossary struct {
	Info *Metadata
}

// NewSimpleGlossary returns a SimpleGlossary with empty metadata.
func NewSimpleGlossary() *SimpleGlossary {
	return &SimpleGlossary{Info: NewMetadata()}
}

func (g *SimpleGlossary) NewEntry(words []string, defi string, format DefiFormat) Entry {
	return Entry{Words: words, Defi: defi, DefiFormat: format}
}

func (g *SimpleGlossary) NewDataEntry(name string, data []byte) DataEntry {
	return DataEntry{Name: name, Data: data}
}

func (g *SimpleGlossary) SetInfo(key, value string) { g.Info.Set(key, value) }

func (g *SimpleGlossary) GetInfo(key string) (string, bool) { return g.Info.Get(key) }

// Reader produces a stream of Items from some on-disk format. Open must be
// called before Iterate; Close releases file handles. Len reports the
// total item count when known ahead of iteration (word count plus
// resource count for StarDict, 0 for formats that can't tell cheaply).
type Reader interface {
	Open(ctx context.Context, path string) error
	Iterate(ctx context.Context, yield func(Item) error) error
	Len() int
	Close() error
}

// Writer is a cooperative-coroutine accepter, realized as an explicit
// Begin/Feed/Finish triple for languages without generator syntax. Finish
// must be called exactly once, even on an error path, to flush and close
// output files.
type Writer interface {
	Begin(ctx context.Context, path string) error
	Feed(ctx context.Context, item Item) error
	Finish(ctx context.Context) error
}

// Convert streams every Item a Reader produces into a Writer, optionally
// routing it through a sorter first. sorter may be nil, in which case items
// are fed to the writer in the reader's native order: Reader -> optional
// SortableStore -> Writer.
func Convert(ctx context.Context, r Reader, sorter Sorter, w Writer, path string) error {
	if err := w.Begin(ctx, path); err != nil {
		return fmt.Errorf("convert: begin writer: %w", err)
	}

	feed := func(it Item) error { return w.Feed(ctx, it) }
	if sorter != nil {
		feed = func(it Item) error { return sorter.Append(it) }
	}

	iterErr := r.Iterate(ctx, feed)

	if sorter != nil && iterErr == nil {
		if iterErr = sorter.Sort(ctx); iterErr == nil {
			iterErr = sorter.Iterate(ctx, func(it Item) error { return w.Feed(ctx, it) })
		}
	}

	finishErr := w.Finish(ctx)
	if iterErr != nil {
		return fmt.Errorf("convert: %w", iterErr)
	}
	if finishErr != nil {
		return fmt.Errorf("convert: finish writer: %w", finishErr)
	}
	return nil
}

// Sorter is the subset of the sortable entry store (internal/sortstore)
// that Convert depends on, kept here as a narrow interface so this package
// never imports the storage backend directly. Sort must be called exactly
// once, after every Append and before Iterate.
type Sorter interface {
	Append(item Item) error
	Sort(ctx context.Context) error
	Iterate(ctx context.Context, yield func(Item) error) error
}
