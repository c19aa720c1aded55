package retrieval

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/keeperbot/keeper/internal/kb"
)

// SelectedStore remembers which chunk ids each filter session has already
// been handed, so repeat turns only surface new material. Entries expire with
// their sessions; the cache janitor reclaims idle ones.
type SelectedStore struct {
	c *gocache.Cache
}

// NewSelectedStore creates a store with a 24h TTL per filter session.
func NewSelectedStore() *SelectedStore {
	return &SelectedStore{c: gocache.New(24*time.Hour, time.Hour)}
}

// Add records ids as seen by the given filter session and refreshes its TTL.
func (s *SelectedStore) Add(filterRef string, ids []string) {
	if filterRef == "" || len(ids) == 0 {
		return
	}
	seen := s.get(filterRef)
	if seen == nil {
		seen = make(map[string]struct{}, len(ids))
	}
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	s.c.Set(filterRef, seen, gocache.DefaultExpiration)
}

// Migrate unions the set stored under oldRef into newRef and drops oldRef.
// The agent runtime hands back a fresh session id on every resumed call, so
// without carrying the set across the rotation its memory would span exactly
// one turn.
func (s *SelectedStore) Migrate(oldRef, newRef string) {
	if oldRef == "" || newRef == "" || oldRef == newRef {
		return
	}
	old := s.get(oldRef)
	if len(old) == 0 {
		return
	}
	merged := s.get(newRef)
	if merged == nil {
		merged = make(map[string]struct{}, len(old))
	}
	for id := range old {
		merged[id] = struct{}{}
	}
	s.c.Set(newRef, merged, gocache.DefaultExpiration)
	s.c.Delete(oldRef)
}

// FilterNew returns the candidates the filter session has not seen yet.
func (s *SelectedStore) FilterNew(filterRef string, candidates []kb.Chunk) []kb.Chunk {
	seen := s.get(filterRef)
	if len(seen) == 0 {
		return candidates
	}
	out := candidates[:0:0]
	for _, c := range candidates {
		if _, ok := seen[c.ID]; !ok {
			out = append(out, c)
		}
	}
	return out
}

func (s *SelectedStore) get(filterRef string) map[string]struct{} {
	if filterRef == "" {
		return nil
	}
	if v, ok := s.c.Get(filterRef); ok {
		return v.(map[string]struct{})
	}
	return nil
}
