package match

import (
	"fmt"
	"strings"
)

const pairSep = "|"

// PairKey is the unordered identity of two partnered users.
// UserA is always the lexicographically smaller id.
type PairKey struct {
	UserA string
	UserB string
}

// NewPairKey orders the two ids canonically.
func NewPairKey(u1, u2 string) PairKey {
	if u1 > u2 {
		u1, u2 = u2, u1
	}
	return PairKey{UserA: u1, UserB: u2}
}

func (p PairKey) String() string { return p.UserA + pairSep + p.UserB }

// Has reports whether userID is one of the two members.
func (p PairKey) Has(userID string) bool {
	return userID != "" && (p.UserA == userID || p.UserB == userID)
}

// Other returns the member that is not userID.
func (p PairKey) Other(userID string) (string, bool) {
	switch userID {
	case p.UserA:
		return p.UserB, true
	case p.UserB:
		return p.UserA, true
	}
	return "", false
}

// Members returns both user ids in canonical order.
func (p PairKey) Members() []string { return []string{p.UserA, p.UserB} }

// ParsePairKey is the inverse of String.
func ParsePairKey(s string) (PairKey, error) {
	a, b, ok := strings.Cut(s, pairSep)
	if !ok || a == "" || b == "" || a == b {
		return PairKey{}, fmt.Errorf("invalid pair key %q", s)
	}
	return NewPairKey(a, b), nil
}
