package retrieval

import (
	"testing"

	"github.com/keeperbot/keeper/internal/kb"
)

func TestSelectedStoreRoundTrip(t *testing.T) {
	s := NewSelectedStore()
	all := []kb.Chunk{{ID: "a.md#one"}, {ID: "a.md#two"}, {ID: "b.md#three"}}

	if got := s.FilterNew("sess-1", all); len(got) != 3 {
		t.Fatalf("fresh session filtered chunks: %+v", got)
	}

	s.Add("sess-1", []string{"a.md#one", "b.md#three"})
	got := s.FilterNew("sess-1", all)
	if len(got) != 1 || got[0].ID != "a.md#two" {
		t.Fatalf("remaining = %+v", got)
	}

	// Separate sessions do not share selections.
	if got := s.FilterNew("sess-2", all); len(got) != 3 {
		t.Fatalf("cross-session leak: %+v", got)
	}

	// Adds accumulate.
	s.Add("sess-1", []string{"a.md#two"})
	if got := s.FilterNew("sess-1", all); len(got) != 0 {
		t.Fatalf("remaining after full selection = %+v", got)
	}
}

func TestSelectedStoreMigrateCarriesSetAcrossRotation(t *testing.T) {
	s := NewSelectedStore()
	all := []kb.Chunk{{ID: "a.md#one"}, {ID: "a.md#two"}}

	s.Add("sess-1", []string{"a.md#one"})
	s.Migrate("sess-1", "sess-2")
	s.Add("sess-2", []string{"a.md#two"})

	if got := s.FilterNew("sess-2", all); len(got) != 0 {
		t.Fatalf("migrated set lost selections: %+v", got)
	}
	// The old key is gone, not merely copied.
	if got := s.FilterNew("sess-1", all); len(got) != 2 {
		t.Fatalf("old key still filters: %+v", got)
	}

	// Degenerate migrations are no-ops.
	s.Migrate("", "sess-2")
	s.Migrate("sess-2", "sess-2")
	if got := s.FilterNew("sess-2", all); len(got) != 0 {
		t.Fatalf("no-op migration disturbed the set: %+v", got)
	}
}

func TestSelectedStoreEmptyRefIsNoop(t *testing.T) {
	s := NewSelectedStore()
	s.Add("", []string{"a.md#one"})
	if got := s.FilterNew("", []kb.Chunk{{ID: "a.md#one"}}); len(got) != 1 {
		t.Fatalf("empty ref must filter nothing: %+v", got)
	}
}
