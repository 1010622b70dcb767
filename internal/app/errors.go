package app

import (
	"errors"

	"contractlens/pkg/textrange"
)

// Sentinel errors surfaced by the application layer. The HTTP and WebSocket
// layers map these to status codes and stable error codes.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrForbidden          = errors.New("forbidden")
	ErrEmptyBody          = errors.New("comment body is empty")
	ErrContractNotFound   = errors.New("contract not found")
	ErrContractNotReady   = errors.New("contract text is not ready")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrTimeout            = errors.New("storage timed out")
)

// ErrInvalidRange is the range validation failure from pkg/textrange,
// re-exported so callers can match every comment error in one place.
var ErrInvalidRange = textrange.ErrInvalidRange
