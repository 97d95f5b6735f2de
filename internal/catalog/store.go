package catalog

import (
	"sync"

	"github.com/njoerd114/bdcollect/internal/model"
)

// Kind names which list a Store mirrors.
type Kind string

const (
	KindCollection Kind = "collection"
	KindWishlist   Kind = "wishlist"
)

// Store is an ordered album sequence and its [Index]. Every mutation updates
// both under one lock, so readers never observe them diverging.
//
// Albums go in and come out as copies; nothing outside the store can alias
// its internal state.
type Store struct {
	kind Kind

	mu    sync.RWMutex
	items []model.Album
	index *Index
}

// NewCollection returns an empty store for owned albums.
func NewCollection() *Store { return newStore(KindCollection) }

// NewWishlist returns an empty store for wanted albums.
func NewWishlist() *Store { return newStore(KindWishlist) }

func newStore(kind Kind) *Store {
	return &Store{kind: kind, index: BuildIndex(nil)}
}

// Kind reports which list s mirrors.
func (s *Store) Kind() Kind { return s.kind }

// ReplaceAll swaps the whole content for items (full refresh) and rebuilds
// the index. Duplicate identities keep their first occurrence.
func (s *Store) ReplaceAll(items []model.Album) {
	seen := make(map[model.Identity]struct{}, len(items))
	next := make([]model.Album, 0, len(items))
	for i := range items {
		if _, dup := seen[items[i].ID]; dup {
			continue
		}
		seen[items[i].ID] = struct{}{}
		next = append(next, items[i].Clone())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = next
	s.index = BuildIndex(next)
}

// Add appends album. It returns false, leaving the store untouched, when the
// identity is already present.
func (s *Store) Add(album model.Album) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index.IndexOf(album.ID); ok {
		return false
	}
	s.items = append(s.items, album.Clone())
	s.index.Insert(album.ID, len(s.items)-1)
	return true
}

// InsertAt puts album at position, shifting later entries right. Positions
// past the end append. Used to restore an entry exactly where it was.
func (s *Store) InsertAt(position int, album model.Album) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index.IndexOf(album.ID); ok {
		return false
	}
	if position < 0 {
		position = 0
	}
	if position >= len(s.items) {
		s.items = append(s.items, album.Clone())
		s.index.Insert(album.ID, len(s.items)-1)
		return true
	}

	s.items = append(s.items, model.Album{})
	copy(s.items[position+1:], s.items[position:])
	s.items[position] = album.Clone()
	s.index.shift(position, 1)
	s.index.Insert(album.ID, position)
	return true
}

// Remove deletes id and returns the removed album and its former position.
// ok is false when id was absent.
func (s *Store) Remove(id model.Identity) (removed model.Album, position int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.index.IndexOf(id)
	if !ok {
		return model.Album{}, -1, false
	}
	removed = s.items[p]
	s.items = append(s.items[:p], s.items[p+1:]...)
	s.index.Remove(id)
	s.index.shift(p+1, -1)
	return removed, p, true
}

// Update replaces the stored album with the same identity in place. It
// returns false when the identity is absent.
func (s *Store) Update(album model.Album) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.index.IndexOf(album.ID)
	if !ok {
		return false
	}
	s.items[p] = album.Clone()
	return true
}

// Get returns a copy of the album for id.
func (s *Store) Get(id model.Identity) (model.Album, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.index.IndexOf(id)
	if !ok {
		return model.Album{}, false
	}
	return s.items[p].Clone(), true
}

// IndexOf returns the position of id.
func (s *Store) IndexOf(id model.Identity) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.IndexOf(id)
}

// Contains reports whether id is present.
func (s *Store) Contains(id model.Identity) bool {
	_, ok := s.IndexOf(id)
	return ok
}

// Items returns a snapshot of the sequence in order.
func (s *Store) Items() []model.Album {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Album, len(s.items))
	for i := range s.items {
		out[i] = s.items[i].Clone()
	}
	return out
}

// Len returns the number of albums.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Clear empties the store (logout, cache invalidation).
func (s *Store) Clear() {
	s.ReplaceAll(nil)
}
