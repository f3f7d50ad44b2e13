package match

import "errors"

var (
	// ErrAlreadyDecided is returned when a user decides on an item twice.
	ErrAlreadyDecided = errors.New("item already decided")

	// ErrNotPartnered is returned when a match operation needs a partner and there is none.
	ErrNotPartnered = errors.New("user has no partner")

	// ErrAlreadyPartnered is returned when linking a user who has a different partner.
	ErrAlreadyPartnered = errors.New("user already has a partner")

	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidRating     = errors.New("rating must be an integer between 1 and 5")
	ErrUserNotInMatch    = errors.New("user is not a member of this match")
	ErrMatchNotFound     = errors.New("match not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidCookDate   = errors.New("cook date must be in the future")
	ErrEmptyNote         = errors.New("note text is empty")
	ErrNoteTooLong       = errors.New("note text is too long")
	ErrInvalidInput      = errors.New("invalid input")

	// ErrDuplicateMatchAttempt never leaves the repository layer: a duplicate
	// insert resolves to the existing match.
	ErrDuplicateMatchAttempt = errors.New("match already exists for pair and item")

	// ErrConcurrentUpdate means a compare-and-swap on a match row lost the race.
	ErrConcurrentUpdate = errors.New("match was modified concurrently")
)
