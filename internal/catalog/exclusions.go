package catalog

import (
	"sort"
	"sync"

	"github.com/njoerd114/bdcollect/internal/model"
)

// Exclusions is the side-table of items excluded from tracking. Excluded
// items are never materialised into a Store just to carry the marker.
type Exclusions struct {
	mu  sync.RWMutex
	set map[model.Identity]struct{}
}

// NewExclusions returns an empty side-table.
func NewExclusions() *Exclusions {
	return &Exclusions{set: make(map[model.Identity]struct{})}
}

// Set marks or unmarks id.
func (e *Exclusions) Set(id model.Identity, excluded bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if excluded {
		e.set[id] = struct{}{}
	} else {
		delete(e.set, id)
	}
}

// Contains reports whether id is marked.
func (e *Exclusions) Contains(id model.Identity) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.set[id]
	return ok
}

// ReplaceAll swaps the whole table for ids.
func (e *Exclusions) ReplaceAll(ids []model.Identity) {
	next := make(map[model.Identity]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.set = next
}

// Items returns the marked identities sorted by work then edition.
func (e *Exclusions) Items() []model.Identity {
	e.mu.RLock()
	out := make([]model.Identity, 0, len(e.set))
	for id := range e.set {
		out = append(out, id)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].WorkID != out[j].WorkID {
			return out[i].WorkID < out[j].WorkID
		}
		return out[i].EditionID < out[j].EditionID
	})
	return out
}

// Len returns the number of marked identities.
func (e *Exclusions) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.set)
}
