package sortstore

import (
	"context"
	"testing"

	glossforge "github.com/glossforge/glossforge"
)

func wordColumns() []Column {
	return []Column{
		{Name: "wordlower", Extract: func(words []string) []byte {
			if len(words) == 0 {
				return nil
			}
			return []byte(lower(words[0]))
		}},
		{Name: "word", Extract: func(words []string) []byte {
			if len(words) == 0 {
				return nil
			}
			return []byte(words[0])
		}},
	}
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func TestStoreCaseInsensitiveOrder(t *testing.T) {
	s, err := Open(false)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.SetSortKey(wordColumns()); err != nil {
		t.Fatal(err)
	}

	for _, w := range []string{"Zebra", "apple", "Banana"} {
		it := glossforge.NewEntryItem(glossforge.Entry{Words: []string{w}, Defi: "d", DefiFormat: glossforge.DefiText})
		if err := s.Append(it); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.Sort(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	var got []string
	err = s.Iterate(context.Background(), func(it glossforge.Item) error {
		got = append(got, it.Entry.Words[0])
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"apple", "Banana", "Zebra"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStoreStableForEqualKeys(t *testing.T) {
	s, err := Open(false)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.SetSortKey(wordColumns()); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		it := glossforge.NewEntryItem(glossforge.Entry{Words: []string{"same"}, Defi: string(rune('a' + i)), DefiFormat: glossforge.DefiText})
		if err := s.Append(it); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Sort(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	var got []string
	err = s.Iterate(context.Background(), func(it glossforge.Item) error {
		got = append(got, it.Entry.Defi)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v (insertion order must be preserved for equal keys)", got, want)
		}
	}
}

func TestStoreReverse(t *testing.T) {
	s, err := Open(false)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.SetSortKey(wordColumns()); err != nil {
		t.Fatal(err)
	}
	for _, w := range []string{"a", "b", "c"} {
		if err := s.Append(glossforge.NewEntryItem(glossforge.Entry{Words: []string{w}})); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Sort(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	var got []string
	err = s.Iterate(context.Background(), func(it glossforge.Item) error {
		got = append(got, it.Entry.Words[0])
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"c", "b", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestStoreContractViolations(t *testing.T) {
	s, err := Open(false)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Append(glossforge.NewEntryItem(glossforge.Entry{Words: []string{"x"}})); err != ErrNoSortKey {
		t.Errorf("Append before SetSortKey: got %v, want ErrNoSortKey", err)
	}

	if err := s.SetSortKey(wordColumns()); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSortKey(wordColumns()); err != ErrSetSortKeyTwice {
		t.Errorf("second SetSortKey: got %v, want ErrSetSortKeyTwice", err)
	}

	if err := s.Iterate(context.Background(), func(glossforge.Item) error { return nil }); err != ErrIterateBeforeSort {
		t.Errorf("Iterate before Sort: got %v, want ErrIterateBeforeSort", err)
	}

	if err := s.Sort(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(glossforge.NewEntryItem(glossforge.Entry{Words: []string{"x"}})); err != ErrAppendAfterSort {
		t.Errorf("Append after Sort: got %v, want ErrAppendAfterSort", err)
	}
	if err := s.Sort(context.Background(), false); err != ErrSortTwice {
		t.Errorf("second Sort: got %v, want ErrSortTwice", err)
	}
}

func TestStoreLen(t *testing.T) {
	s, err := Open(false)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.SetSortKey(wordColumns()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := s.Append(glossforge.NewEntryItem(glossforge.Entry{Words: []string{"w"}})); err != nil {
			t.Fatal(err)
		}
	}
	if s.Len() != 5 {
		t.Errorf("Len() = %d, want 5", s.Len())
	}
}

func TestDataEntrySortsByName(t *testing.T) {
	s, err := Open(false)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.SetSortKey(wordColumns()); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(glossforge.NewDataItem(glossforge.DataEntry{Name: "zzz.png", Data: []byte{1}})); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(glossforge.NewEntryItem(glossforge.Entry{Words: []string{"aaa"}})); err != nil {
		t.Fatal(err)
	}
	if err := s.Sort(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	var order []bool
	err = s.Iterate(context.Background(), func(it glossforge.Item) error {
		order = append(order, it.IsData())
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != false || order[1] != true {
		t.Fatalf("expected entry before data entry, got %v", order)
	}
}
