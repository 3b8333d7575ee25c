// internal/bar/errors.go
package bar

import (
	"errors"
	"fmt"
)

// Category classifies why an operation was rejected.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryConflict   Category = "conflict"
	CategoryNotFound   Category = "not_found"
	CategoryOwnership  Category = "ownership"
	CategoryConsumed   Category = "consumed"
)

// Causes. Every failure returned by the aggregate is a *Violation wrapping
// exactly one of these.
var (
	ErrInvalidCode    = errors.New("invalid bar code")
	ErrInvalidBar     = errors.New("invalid bar")
	ErrInvalidMember  = errors.New("invalid member")
	ErrDuplicateName  = errors.New("display name already taken")
	ErrDuplicateID    = errors.New("identifier already in use")
	ErrInvalidQuota   = errors.New("invalid quota")
	ErrUnknownMember  = errors.New("unknown member")
	ErrInvalidVideo   = errors.New("invalid video reference")
	ErrLocked         = errors.New("submissions locked")
	ErrQuotaExceeded  = errors.New("quota exceeded")
	ErrSubmissionGone = errors.New("submission not found")
	ErrNotOwner       = errors.New("not the owner")
	ErrConsumed       = errors.New("ingredient already consumed")

	ErrInvalidSession      = errors.New("invalid session")
	ErrNoIngredients       = errors.New("no ingredients")
	ErrBarClosed           = errors.New("bar closed")
	ErrSessionActive       = errors.New("session already active")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionAlreadyEnded = errors.New("session already ended")
	ErrNoCandidates        = errors.New("no candidates")
	ErrPickerContract      = errors.New("picker contract violation")
	ErrCycleActive         = errors.New("cycle already active")
	ErrCycleNotFound       = errors.New("cycle not found")
	ErrCycleRevealed       = errors.New("cycle already revealed")
	ErrCycleStillActive    = errors.New("cycle still active")
	ErrInvalidVote         = errors.New("invalid vote")
	ErrVoterUnknown        = errors.New("voter unknown")
	ErrTargetUnknown       = errors.New("target unknown")
	ErrSelfVote            = errors.New("self vote")
	ErrDuplicateVote       = errors.New("duplicate vote")
)

var categories = map[error]Category{
	ErrInvalidCode:    CategoryValidation,
	ErrInvalidBar:     CategoryValidation,
	ErrInvalidMember:  CategoryValidation,
	ErrDuplicateName:  CategoryConflict,
	ErrDuplicateID:    CategoryConflict,
	ErrInvalidQuota:   CategoryValidation,
	ErrUnknownMember:  CategoryNotFound,
	ErrInvalidVideo:   CategoryValidation,
	ErrLocked:         CategoryConflict,
	ErrQuotaExceeded:  CategoryConflict,
	ErrSubmissionGone: CategoryNotFound,
	ErrNotOwner:       CategoryOwnership,
	ErrConsumed:       CategoryConsumed,

	ErrInvalidSession:      CategoryValidation,
	ErrNoIngredients:       CategoryConflict,
	ErrBarClosed:           CategoryConflict,
	ErrSessionActive:       CategoryConflict,
	ErrSessionNotFound:     CategoryNotFound,
	ErrSessionAlreadyEnded: CategoryConflict,
	ErrNoCandidates:        CategoryConflict,
	ErrPickerContract:      CategoryConflict,
	ErrCycleActive:         CategoryConflict,
	ErrCycleNotFound:       CategoryNotFound,
	ErrCycleRevealed:       CategoryConflict,
	ErrCycleStillActive:    CategoryConflict,
	ErrInvalidVote:         CategoryValidation,
	ErrVoterUnknown:        CategoryNotFound,
	ErrTargetUnknown:       CategoryNotFound,
	ErrSelfVote:            CategoryValidation,
	ErrDuplicateVote:       CategoryConflict,
}

// Violation is the single error type produced by the aggregate. Its message
// is safe to show to players as-is.
type Violation struct {
	cause   error
	Message string
}

func violation(cause error, format string, args ...any) *Violation {
	return &Violation{cause: cause, Message: fmt.Sprintf(format, args...)}
}

func (v *Violation) Error() string { return v.Message }

func (v *Violation) Unwrap() error { return v.cause }

// Category reports the class of the underlying cause.
func (v *Violation) Category() Category {
	if c, ok := categories[v.cause]; ok {
		return c
	}
	return CategoryValidation
}

// CategoryOf returns the category of err if it is a violation.
func CategoryOf(err error) (Category, bool) {
	var v *Violation
	if !errors.As(err, &v) {
		return "", false
	}
	return v.Category(), true
}
