package models

import (
	"fmt"
	"sort"
	"strings"
)

// Mechanism is one togglable defense in front of the credential check.
type Mechanism string

const (
	MechanismRateLimiting Mechanism = "rate_limiting"
	MechanismLockout      Mechanism = "lockout"
	MechanismChallenge    Mechanism = "challenge"
	MechanismSecondFactor Mechanism = "second_factor"
)

// ProtectionSet is the currently enabled subset of mechanisms. It is
// process-wide configuration: built once at startup and read (never
// mutated) per attempt.
type ProtectionSet map[Mechanism]bool

// NewProtectionSet builds a set from mechanism names. Unknown names are
// rejected so a typo in config cannot silently disable a defense.
func NewProtectionSet(names []string) (ProtectionSet, error) {
	set := make(ProtectionSet, len(names))
	for _, name := range names {
		m := Mechanism(strings.ToLower(strings.TrimSpace(name)))
		switch m {
		case MechanismRateLimiting, MechanismLockout, MechanismChallenge, MechanismSecondFactor:
			set[m] = true
		case "", "none":
			// "none" is accepted as an explicit empty set
		default:
			return nil, fmt.Errorf("unknown protection mechanism: %q", name)
		}
	}
	return set, nil
}

// Has reports whether the mechanism is active.
func (ps ProtectionSet) Has(m Mechanism) bool {
	return ps[m]
}

// String renders the active mechanisms as a stable comma-joined identifier,
// used as the active-protection-set field of attempt records.
func (ps ProtectionSet) String() string {
	if len(ps) == 0 {
		return "none"
	}
	names := make([]string, 0, len(ps))
	for m, on := range ps {
		if on {
			names = append(names, string(m))
		}
	}
	if len(names) == 0 {
		return "none"
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
