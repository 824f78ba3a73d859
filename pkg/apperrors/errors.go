package apperrors

import "errors"

var (
	// ErrNotFound is the generic repository-level miss, translated by
	// services into the more specific errors below.
	ErrNotFound = errors.New("not found")

	ErrInsufficientWeight       = errors.New("requested weight exceeds available budget")
	ErrAlreadyVoted             = errors.New("vote already targets this candidate")
	ErrNoConflictingVote        = errors.New("no existing vote to switch")
	ErrCandidateNotFound        = errors.New("candidate not found for this field")
	ErrInvalidFieldKey          = errors.New("field key not in catalog")
	ErrInvalidWeight            = errors.New("vote weight must be positive")
	ErrEmptyValue               = errors.New("candidate value is empty")
	ErrConcurrentUpdateConflict = errors.New("concurrent update conflict, retry")
	ErrUnknownFieldKey          = errors.New("field key missing from catalog configuration")
)
