package domain

import "errors"

var (
	ErrActionNotPermitted  = errors.New("action not permitted")
	ErrNoTransitionDefined = errors.New("no next step configured")
	ErrInvalidActionInput  = errors.New("invalid action input")
	ErrAlreadyTerminal     = errors.New("document is already finished")
	ErrStoreFailure        = errors.New("store failure")

	ErrDocumentNotFound = errors.New("document not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrNotInRevision    = errors.New("document is not awaiting revision")
)

// IsEligibilityError reports whether err means the actor simply cannot act on
// the document right now, as opposed to a failure worth surfacing.
func IsEligibilityError(err error) bool {
	return errors.Is(err, ErrActionNotPermitted) ||
		errors.Is(err, ErrAlreadyTerminal) ||
		errors.Is(err, ErrNoTransitionDefined)
}
