package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Album is the normalised representation of one edition shared between the
// remote adapter, the catalog stores and the offline cache.
type Album struct {
	// ID is the canonical (work, edition) identity.
	ID Identity

	// Title is the album title as reported by the catalog.
	Title string

	// SeriesID is the parent series.
	SeriesID int64

	// Tome is the number in the series. Nil means not numbered.
	Tome *int

	// Cover is the cover image reference, opaque to the core.
	Cover string

	// Rating is the average community rating. Nil when unrated.
	Rating *float64

	// Flags holds the tri-state value of every per-item flag.
	Flags FlagSet
}

// Clone returns a deep copy of a so callers can never alias store internals.
func (a Album) Clone() Album {
	c := a
	if a.Tome != nil {
		t := *a.Tome
		c.Tome = &t
	}
	if a.Rating != nil {
		r := *a.Rating
		c.Rating = &r
	}
	return c
}

// ContentHash returns a deterministic SHA-256 hex digest of every field the
// UI renders: title, series, tome, cover, rating and flags. It is used to
// count changed entries between two refreshes.
func (a *Album) ContentHash() string {
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%d|%d|%s|%d|", a.ID.WorkID, a.ID.EditionID, a.Title, a.SeriesID)
	if a.Tome != nil {
		_, _ = fmt.Fprintf(h, "%d", *a.Tome)
	}
	h.Write([]byte("|"))
	h.Write([]byte(a.Cover))
	h.Write([]byte("|"))
	if a.Rating != nil {
		_, _ = fmt.Fprintf(h, "%g", *a.Rating)
	}
	h.Write([]byte("|"))
	for _, t := range a.Flags {
		h.Write([]byte{byte('0' + t)})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Membership is the derived classification of an item.
type Membership int

const (
	// Untracked: in neither store and not excluded.
	Untracked Membership = iota
	// Owned: present in the collection.
	Owned
	// Wanted: present in the wishlist and absent from the collection.
	Wanted
	// Excluded: marked excluded from tracking and absent from both stores.
	Excluded
)

// String returns the human-readable label for the membership state.
func (m Membership) String() string {
	switch m {
	case Owned:
		return "Owned"
	case Wanted:
		return "Wanted"
	case Excluded:
		return "Excluded"
	default:
		return "Untracked"
	}
}
