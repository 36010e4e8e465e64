package services

import "errors"

// Error kinds. Every domain error unwraps to exactly one of these so the
// request layer can map it without knowing the specific cause.
var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrBadRequest = errors.New("bad request")
)

type DomainError struct {
	kind error
	msg  string
}

func (e *DomainError) Error() string { return e.msg }
func (e *DomainError) Unwrap() error { return e.kind }

func newError(kind error, msg string) *DomainError {
	return &DomainError{kind: kind, msg: msg}
}

var (
	ErrEventNotFound      = newError(ErrNotFound, "event not found")
	ErrTeamNotFound       = newError(ErrNotFound, "team not found")
	ErrTalkNotFound       = newError(ErrNotFound, "talk not found")
	ErrProposalNotFound   = newError(ErrNotFound, "proposal not found")
	ErrInvitationNotFound = newError(ErrNotFound, "invitation not found")
	ErrEntityNotFound     = newError(ErrNotFound, "entity not found")

	ErrForbiddenOperation = newError(ErrForbidden, "forbidden operation")

	ErrCfpNotOpen            = newError(ErrBadRequest, "call for paper is not open")
	ErrMaxProposalsReached   = newError(ErrBadRequest, "maximum number of proposals reached")
	ErrProposalSubmission    = newError(ErrBadRequest, "proposal cannot be submitted")
	ErrProposalStateConflict = newError(ErrBadRequest, "proposal status does not allow this operation")
	ErrInvalidInput          = newError(ErrBadRequest, "invalid input")
)
