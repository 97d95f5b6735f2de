// Package catalog holds the client-side mirrors of the user's collection and
// wishlist. Each [Store] is an ordered sequence of albums plus an [Index]
// mapping identity to position.
//
// The stores are pure in-memory structures: no I/O, and no operation can
// fail. Only the sync package mutates them.
package catalog

import "github.com/njoerd114/bdcollect/internal/model"

// Index maps an identity to its position in an ordered album sequence. It is
// the single source of truth for "is this item present".
type Index struct {
	pos map[model.Identity]int
}

// BuildIndex indexes items by position. When an identity appears more than
// once the first occurrence wins.
func BuildIndex(items []model.Album) *Index {
	idx := &Index{pos: make(map[model.Identity]int, len(items))}
	for i := range items {
		if _, dup := idx.pos[items[i].ID]; dup {
			continue
		}
		idx.pos[items[i].ID] = i
	}
	return idx
}

// IndexOf returns the position of id, or false when absent.
func (x *Index) IndexOf(id model.Identity) (int, bool) {
	p, ok := x.pos[id]
	return p, ok
}

// Insert records id at position. It does not shift other entries; callers
// inserting into the middle of a sequence must shift the tail first.
func (x *Index) Insert(id model.Identity, position int) {
	x.pos[id] = position
}

// Remove forgets id. Removing an absent identity is a no-op.
func (x *Index) Remove(id model.Identity) {
	delete(x.pos, id)
}

// Len returns the number of indexed identities.
func (x *Index) Len() int {
	return len(x.pos)
}

// shift adds delta to every position >= from.
func (x *Index) shift(from, delta int) {
	for id, p := range x.pos {
		if p >= from {
			x.pos[id] = p + delta
		}
	}
}
