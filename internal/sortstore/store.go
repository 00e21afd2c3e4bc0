// Package sortstore implements the disk-backed sortable entry store:
// a bounded-memory ordered collection of glossary items that can be
// appended to, given a sort key exactly once, sorted exactly once, and
// then iterated in order exactly once.
//
// It is realized over github.com/cockroachdb/pebble/v2, an embedded
// ordered key-value store. Pebble's natural iteration order over a set of
// keys is already the single-pass sorted scan the contract requires, so
// "sorting" an append-only pebble table is really just switching state:
// the sort key is encoded as a byte-comparable key prefix at append time,
// and Sort only forbids further appends and fixes the iteration direction.
package sortstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/cockroachdb/pebble/v2"

	glossforge "github.com/glossforge/glossforge"
)

// Errors for the store's named failure modes.
var (
	ErrSetSortKeyTwice   = errors.New("sortstore: SetSortKey called twice")
	ErrAppendAfterSort   = errors.New("sortstore: Append called after Sort")
	ErrSortTwice         = errors.New("sortstore: Sort called twice")
	ErrIterateBeforeSort = errors.New("sortstore: Iterate called before Sort")
	ErrNoSortKey         = errors.New("sortstore: Append called before SetSortKey")
)

// Column is one (name, extractor) pair of a named sort key: the extractor
// derives one sortable byte value per column from an item's headword list.
type Column struct {
	Name    string
	Extract func(words []string) []byte
}

type phase int

const (
	phaseBuilding phase = iota
	phaseSorted
	phaseExhausted
)

// Store is a disk-backed ordered multiset of glossforge.Item, keyed by a
// caller-supplied sort key. See the package doc for the backing strategy.
type Store struct {
	dir     string
	db      *pebble.DB
	persist bool

	cols    []Column
	phase   phase
	reverse bool

	batch   *pebble.Batch
	batchN  int
	seq     uint64
	n       int
}

const batchFlushEvery = 1000

// Open creates a new Store backed by a fresh temporary pebble database.
// If persist is false (the default use), Close removes the backing
// directory; if true, the directory is left behind for inspection,
// mirroring SqEntryList's persist flag.
func Open(persist bool) (*Store, error) {
	dir, err := os.MkdirTemp("", "sortstore-*")
	if err != nil {
		return nil, fmt.Errorf("sortstore: create temp dir: %w", err)
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("sortstore: open pebble db at %s: %w", dir, err)
	}
	return &Store{dir: dir, db: db, persist: persist}, nil
}

// SetSortKey installs the named sort key. It must be called exactly once,
// before the first Append.
func (s *Store) SetSortKey(cols []Column) error {
	if s.cols != nil {
		return ErrSetSortKeyTwice
	}
	if len(cols) == 0 {
		return fmt.Errorf("sortstore: SetSortKey: empty sort key")
	}
	s.cols = cols
	return nil
}

// Len returns the number of items appended so far.
func (s *Store) Len() int { return s.n }

// Append adds item to the store. It is O(1) amortized: items are buffered
// into a pebble write batch and flushed every batchFlushEvery appends,
// mirroring SqEntryList's every-1000-rows commit.
func (s *Store) Append(item glossforge.Item) error {
	if s.cols == nil {
		return ErrNoSortKey
	}
	if s.phase != phaseBuilding {
		return ErrAppendAfterSort
	}

	key := s.encodeKey(item)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(item.GetRaw()); err != nil {
		return fmt.Errorf("sortstore: encode item: %w", err)
	}

	if s.batch == nil {
		s.batch = s.db.NewBatch()
	}
	if err := s.batch.Set(key, buf.Bytes(), nil); err != nil {
		return fmt.Errorf("sortstore: batch set: %w", err)
	}
	s.batchN++
	s.n++
	s.seq++

	if s.batchN >= batchFlushEvery {
		if err := s.flushBatch(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) flushBatch() error {
	if s.batch == nil {
		return nil
	}
	err := s.batch.Commit(pebble.NoSync)
	s.batch = nil
	s.batchN = 0
	if err != nil {
		return fmt.Errorf("sortstore: commit batch: %w", err)
	}
	return nil
}

// encodeKey builds sortColumn1 NUL sortColumn2 NUL ... NUL seq(uint64 BE).
// Pebble orders keys by raw byte comparison, so this gives exactly the
// (sort_key, insertion_order) stable total order the contract requires.
func (s *Store) encodeKey(item glossforge.Item) []byte {
	words := item.Words()
	var key []byte
	for _, col := range s.cols {
		key = append(key, col.Extract(words)...)
		key = append(key, 0)
	}
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], s.seq)
	key = append(key, seqBuf[:]...)
	return key
}

// Sort must be called exactly once, after every Append. reverse requests
// descending order.
func (s *Store) Sort(ctx context.Context, reverse bool) error {
	if s.phase != phaseBuilding {
		return ErrSortTwice
	}
	if err := s.flushBatch(); err != nil {
		return err
	}
	s.reverse = reverse
	s.phase = phaseSorted
	return nil
}

// Iterate yields every appended item in key order (ascending, or
// descending if Sort was called with reverse=true), stable with respect to
// insertion order for equal keys. It must be called after Sort, and is
// intended to be called exactly once: the store's natural use is a single
// ordered scan.
func (s *Store) Iterate(ctx context.Context, yield func(glossforge.Item) error) error {
	if s.phase == phaseBuilding {
		return ErrIterateBeforeSort
	}

	iter, err := s.db.NewIter(nil)
	if err != nil {
		return fmt.Errorf("sortstore: new iterator: %w", err)
	}
	defer iter.Close()

	var ok bool
	if s.reverse {
		ok = iter.Last()
	} else {
		ok = iter.First()
	}
	for ok {
		if err := ctx.Err(); err != nil {
			return err
		}

		var raw glossforge.RawItem
		if err := gob.NewDecoder(bytes.NewReader(iter.Value())).Decode(&raw); err != nil {
			slog.Error("sortstoreCorruptValue", "err", err)
			if s.reverse {
				ok = iter.Prev()
			} else {
				ok = iter.Next()
			}
			continue
		}

		item := glossforge.ItemFromRaw(raw, glossforge.DefiUnknown)
		if err := yield(item); err != nil {
			return err
		}

		if s.reverse {
			ok = iter.Prev()
		} else {
			ok = iter.Next()
		}
	}
	s.phase = phaseExhausted
	return nil
}

// AsSorter adapts Store to the glossforge.Sorter interface Convert expects,
// fixing the iteration direction requested by reverse.
func (s *Store) AsSorter(reverse bool) glossforge.Sorter {
	return &sorterAdapter{Store: s, reverse: reverse}
}

type sorterAdapter struct {
	*Store
	reverse bool
}

func (a *sorterAdapter) Append(item glossforge.Item) error { return a.Store.Append(item) }

func (a *sorterAdapter) Sort(ctx context.Context) error { return a.Store.Sort(ctx, a.reverse) }

func (a *sorterAdapter) Iterate(ctx context.Context, yield func(glossforge.Item) error) error {
	return a.Store.Iterate(ctx, yield)
}

// Close releases the backing pebble database and, unless persist was set
// at Open, deletes its directory.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if !s.persist {
		if rmErr := os.RemoveAll(s.dir); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	return err
}
