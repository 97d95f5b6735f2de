package model

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// ParseIdentity
// ---------------------------------------------------------------------------

func TestParseIdentity_MixedEncodings(t *testing.T) {
	want := Identity{WorkID: 42, EditionID: 7}
	tests := []struct {
		name          string
		work, edition any
	}{
		{"ints", 42, 7},
		{"int64", int64(42), int64(7)},
		{"floats", float64(42), float64(7)},
		{"strings", "42", "7"},
		{"padded strings", " 42 ", "7\n"},
		{"json numbers", json.Number("42"), json.Number("7")},
		{"mixed", "42", float64(7)},
	}
	for _, tt := range tests {
		got, err := ParseIdentity(tt.work, tt.edition)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
			continue
		}
		if got != want {
			t.Errorf("%s: ParseIdentity = %v, want %v", tt.name, got, want)
		}
	}
}

func TestParseIdentity_Rejects(t *testing.T) {
	tests := []struct {
		name          string
		work, edition any
	}{
		{"empty string", "", 1},
		{"not a number", "abc", 1},
		{"fractional", 1.5, 1},
		{"nil edition", 1, nil},
		{"bool", true, 1},
	}
	for _, tt := range tests {
		if _, err := ParseIdentity(tt.work, tt.edition); err == nil {
			t.Errorf("%s: expected error, got nil", tt.name)
		}
	}
}

func TestIdentity_DistinctEditionsDoNotCollide(t *testing.T) {
	a := Identity{WorkID: 10, EditionID: 1}
	b := Identity{WorkID: 10, EditionID: 2}
	m := map[Identity]int{a: 1, b: 2}
	if len(m) != 2 {
		t.Fatalf("map len = %d, want 2", len(m))
	}
	if a.String() != "10/1" {
		t.Errorf("String() = %q, want %q", a.String(), "10/1")
	}
}

// ---------------------------------------------------------------------------
// Flags and TriState
// ---------------------------------------------------------------------------

func TestParseFlag_RoundTripsNames(t *testing.T) {
	for _, f := range AllFlags() {
		got, err := ParseFlag(f.String())
		if err != nil {
			t.Errorf("ParseFlag(%q): %v", f.String(), err)
			continue
		}
		if got != f {
			t.Errorf("ParseFlag(%q) = %v, want %v", f.String(), got, f)
		}
	}
	if len(AllFlags()) != 9 {
		t.Errorf("AllFlags() len = %d, want 9", len(AllFlags()))
	}
	if _, err := ParseFlag("favourite"); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestParseTriState(t *testing.T) {
	tests := []struct {
		in   string
		want TriState
	}{
		{"O", Set},
		{"N", Unset},
		{"", Absent},
		{"o", Absent},
		{"1", Absent},
	}
	for _, tt := range tests {
		if got := ParseTriState(tt.in); got != tt.want {
			t.Errorf("ParseTriState(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if Set.Wire() != "O" || Unset.Wire() != "N" || Absent.Wire() != "" {
		t.Error("Wire() does not invert ParseTriState")
	}
}

func TestFlagSet_WithIsCopy(t *testing.T) {
	var s FlagSet
	s2 := s.With(FlagRead, true)

	if s.Get(FlagRead) {
		t.Error("With mutated the receiver")
	}
	if !s2.Get(FlagRead) {
		t.Error("Get(FlagRead) = false after With(true)")
	}
	s3 := s2.With(FlagRead, false)
	if s3.State(FlagRead) != Unset {
		t.Errorf("State = %v, want Unset", s3.State(FlagRead))
	}
	if s3.Get(Flag(99)) {
		t.Error("Get on invalid flag should be false")
	}
}

// ---------------------------------------------------------------------------
// Album
// ---------------------------------------------------------------------------

func TestAlbum_CloneDoesNotAlias(t *testing.T) {
	tome := 3
	rating := 4.5
	a := Album{ID: Identity{1, 1}, Tome: &tome, Rating: &rating}
	c := a.Clone()
	*c.Tome = 9
	*c.Rating = 1
	if *a.Tome != 3 || *a.Rating != 4.5 {
		t.Errorf("Clone aliases pointer fields: tome=%d rating=%g", *a.Tome, *a.Rating)
	}
}

func TestAlbum_ContentHashTracksFlags(t *testing.T) {
	a := Album{ID: Identity{1, 1}, Title: "Astérix le Gaulois"}
	h1 := a.ContentHash()
	if h1 != a.ContentHash() {
		t.Error("ContentHash not deterministic")
	}
	b := a
	b.Flags = b.Flags.With(FlagRead, true)
	if h1 == b.ContentHash() {
		t.Error("ContentHash did not change when a flag changed")
	}
}

func TestMembership_String(t *testing.T) {
	tests := []struct {
		m    Membership
		want string
	}{
		{Untracked, "Untracked"},
		{Owned, "Owned"},
		{Wanted, "Wanted"},
		{Excluded, "Excluded"},
		{Membership(42), "Untracked"},
	}
	for _, tt := range tests {
		if got := tt.m.String(); got != tt.want {
			t.Errorf("Membership(%d).String() = %q, want %q", tt.m, got, tt.want)
		}
	}
}
