package model

import "fmt"

// Flag is one of the nine per-item boolean attributes.
type Flag int

const (
	FlagOwned Flag = iota
	FlagWanted
	FlagRead
	FlagLoaned
	FlagDigitalEdition
	FlagGift
	FlagDedicated
	FlagFirstPrint
	FlagExcludedFromTracking

	numFlags
)

var flagNames = [numFlags]string{
	FlagOwned:                "owned",
	FlagWanted:               "wanted",
	FlagRead:                 "read",
	FlagLoaned:               "loaned",
	FlagDigitalEdition:       "digital_edition",
	FlagGift:                 "gift",
	FlagDedicated:            "dedicated",
	FlagFirstPrint:           "first_print",
	FlagExcludedFromTracking: "excluded",
}

// AllFlags lists every flag in declaration order.
func AllFlags() []Flag {
	out := make([]Flag, 0, numFlags)
	for f := Flag(0); f < numFlags; f++ {
		out = append(out, f)
	}
	return out
}

// String returns the canonical lowercase name of the flag.
func (f Flag) String() string {
	if !f.Valid() {
		return fmt.Sprintf("Flag(%d)", int(f))
	}
	return flagNames[f]
}

// Valid reports whether f is one of the nine known flags.
func (f Flag) Valid() bool {
	return f >= 0 && f < numFlags
}

// ParseFlag maps a canonical flag name back to its Flag.
func ParseFlag(name string) (Flag, error) {
	for f, n := range flagNames {
		if n == name {
			return Flag(f), nil
		}
	}
	return 0, fmt.Errorf("unknown flag %q", name)
}

// TriState is the wire encoding of a flag: 'O' (set), 'N' (explicitly unset)
// or absent.
type TriState uint8

const (
	Absent TriState = iota
	Set
	Unset
)

// ParseTriState converts the wire string to a TriState. Anything other than
// "O" or "N" is treated as absent.
func ParseTriState(s string) TriState {
	switch s {
	case "O":
		return Set
	case "N":
		return Unset
	default:
		return Absent
	}
}

// Wire returns the wire string for t ("" for Absent).
func (t TriState) Wire() string {
	switch t {
	case Set:
		return "O"
	case Unset:
		return "N"
	default:
		return ""
	}
}

// IsSet reports whether the flag is on. Absent and Unset both read as off.
func (t TriState) IsSet() bool { return t == Set }

// FromBool returns Set or Unset.
func FromBool(b bool) TriState {
	if b {
		return Set
	}
	return Unset
}

// FlagSet holds the tri-state value of every flag. It is a value type so a
// copy is a full snapshot.
type FlagSet [numFlags]TriState

// Get reports whether f is on.
func (s FlagSet) Get(f Flag) bool {
	if !f.Valid() {
		return false
	}
	return s[f].IsSet()
}

// State returns the raw tri-state of f.
func (s FlagSet) State(f Flag) TriState {
	if !f.Valid() {
		return Absent
	}
	return s[f]
}

// With returns a copy of s where f is explicitly set or unset.
func (s FlagSet) With(f Flag, on bool) FlagSet {
	if f.Valid() {
		s[f] = FromBool(on)
	}
	return s
}

// WithState returns a copy of s where f carries the given tri-state.
func (s FlagSet) WithState(f Flag, t TriState) FlagSet {
	if f.Valid() {
		s[f] = t
	}
	return s
}
