// Package match holds the match domain: statuses, the lifecycle state
// machine, pair keys and the derived analytics. It has no storage concerns.
package match

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Status is the lifecycle state of a match.
type Status string

const (
	StatusMatched   Status = "matched"
	StatusScheduled Status = "scheduled"
	StatusCooked    Status = "cooked"
	StatusExpired   Status = "expired"
)

const (
	MinRating = 1
	MaxRating = 5

	// DefaultExpiry is how long a match may sit in matched without activity.
	DefaultExpiry = 30 * 24 * time.Hour

	MaxNoteLength = 1000
)

// ParseStatus validates a client supplied status. Empty input is allowed and
// means "any status".
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case "", StatusMatched, StatusScheduled, StatusCooked, StatusExpired:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// Trigger identifies who asks for a transition. Expiry is reserved for the sweep.
type Trigger int

const (
	TriggerUser Trigger = iota
	TriggerSweep
)

// transitions lists the allowed user-triggered edges.
var transitions = map[Status][]Status{
	StatusMatched:   {StatusScheduled, StatusCooked},
	StatusScheduled: {StatusCooked},
}

// CanTransition reports whether from -> to is allowed for the given trigger.
func CanTransition(from, to Status, by Trigger) bool {
	if to == StatusExpired {
		return by == TriggerSweep && from == StatusMatched
	}
	if by != TriggerUser {
		return false
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Plan is the outcome of validating a transition: the fields the storage
// layer must write atomically.
type Plan struct {
	From     Status
	To       Status
	At       time.Time
	CookDate *time.Time
	// MatchToCook is set only when entering cooked.
	MatchToCook *time.Duration
}

// PlanTransition validates a transition against the current state and
// computes the new cook date. now is the engine clock; requested is the cook
// date supplied by the caller (only meaningful for scheduled).
func PlanTransition(cur State, to Status, by Trigger, requested *time.Time, now time.Time) (Plan, error) {
	if !CanTransition(cur.Status, to, by) {
		return Plan{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, to)
	}

	p := Plan{From: cur.Status, To: to, At: now, CookDate: cur.CookDate}

	switch to {
	case StatusScheduled:
		if requested == nil || !requested.After(now) {
			return Plan{}, ErrInvalidCookDate
		}
		d := requested.UTC()
		p.CookDate = &d
	case StatusCooked:
		// A scheduled date still in the future means they cooked early.
		if p.CookDate == nil || p.CookDate.After(now) {
			d := now
			p.CookDate = &d
		}
		mtc := p.CookDate.Sub(cur.CreatedAt)
		p.MatchToCook = &mtc
	}
	return p, nil
}

// State is the subset of a match the state machine needs.
type State struct {
	Status         Status
	CreatedAt      time.Time
	CookDate       *time.Time
	LastActivityAt time.Time
}

// IsStale reports whether the sweep should expire a match in this state.
func IsStale(s State, now time.Time, expiry time.Duration) bool {
	return s.Status == StatusMatched && now.Sub(s.LastActivityAt) > expiry
}

// ValidateRating checks the 1..5 bound.
func ValidateRating(r int) error {
	if r < MinRating || r > MaxRating {
		return fmt.Errorf("%w: got %d", ErrInvalidRating, r)
	}
	return nil
}

// ValidateNote trims and bounds note text.
func ValidateNote(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyNote
	}
	if utf8.RuneCountInString(text) > MaxNoteLength {
		return "", ErrNoteTooLong
	}
	return text, nil
}

// AverageRating returns the arithmetic mean, ok=false when there are none.
func AverageRating(ratings map[string]int) (avg float64, ok bool) {
	if len(ratings) == 0 {
		return 0, false
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return float64(sum) / float64(len(ratings)), true
}
