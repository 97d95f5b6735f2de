// Package model defines shared types used across the catalog stores, the sync
// engine and the remote adapter.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Identity names one trackable physical edition of an album. Two editions of
// the same work share WorkID but differ in EditionID and never collide.
//
// Identity is comparable and is used directly as a map key, so both parts must
// already be in canonical form. Build identities from wire values with
// [ParseIdentity] only.
type Identity struct {
	WorkID    int64
	EditionID int64
}

// String returns "work/edition", the form used in logs and CLI output.
func (id Identity) String() string {
	return fmt.Sprintf("%d/%d", id.WorkID, id.EditionID)
}

// IsZero reports whether id is the zero identity.
func (id Identity) IsZero() bool {
	return id.WorkID == 0 && id.EditionID == 0
}

// ParseIdentity normalises the two identity components. The upstream feed
// sends ids as JSON numbers or as strings depending on the endpoint, so both
// are accepted and reduced to int64.
func ParseIdentity(work, edition any) (Identity, error) {
	w, err := ParseID(work)
	if err != nil {
		return Identity{}, fmt.Errorf("work id: %w", err)
	}
	e, err := ParseID(edition)
	if err != nil {
		return Identity{}, fmt.Errorf("edition id: %w", err)
	}
	return Identity{WorkID: w, EditionID: e}, nil
}

// ParseID converts one id component to its canonical int64 form.
func ParseID(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			return 0, fmt.Errorf("non-integral id %v", x)
		}
		return int64(x), nil
	case json.Number:
		return parseIDString(string(x))
	case string:
		return parseIDString(x)
	case nil:
		return 0, fmt.Errorf("missing id")
	default:
		return 0, fmt.Errorf("unsupported id type %T", v)
	}
}

func parseIDString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty id")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return n, nil
}
