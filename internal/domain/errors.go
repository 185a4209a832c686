package domain

import "github.com/cockroachdb/errors"

// Sentinel errors for the booking core. Call sites wrap these with
// errors.Wrapf so the HTTP layer can classify with errors.Is while the
// logs keep the full context.
var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("seat conflict")
	ErrValidation           = errors.New("invalid input")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrBadRequest           = errors.New("invalid state for operation")
	ErrExternalService      = errors.New("payment gateway failure")
)
