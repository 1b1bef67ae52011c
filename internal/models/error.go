package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Store errors
	ErrStoreUnavailable = errors.New("store unavailable")

	// Policy errors
	ErrUnknownPolicy = errors.New("unknown policy")
	ErrInvalidRule   = errors.New("invalid rule")

	// Second factor errors
	ErrMFAInvalidCode   = errors.New("invalid code")
	ErrMFAInvalidFormat = errors.New("malformed code")
	ErrMFARequired      = errors.New("second factor enrollment required")
	ErrMFANotEnrolled   = errors.New("second factor not enrolled")
	ErrMFAReplay        = errors.New("code already used")
)
