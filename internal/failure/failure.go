// Package failure defines the error taxonomy shared by the caching and
// playback layers.
package failure

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrFetch indicates an asset could not be fetched (network or HTTP status).
	ErrFetch = errors.New("asset fetch failed")

	// ErrDecode indicates a payload could not be decoded as audio.
	ErrDecode = errors.New("audio decode failed")

	// ErrStorageUnavailable indicates there is no usable persistent storage.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrQuotaExceeded indicates a write was rejected because storage is full.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrStorageDegraded is returned by writes once the cache disabled itself.
	ErrStorageDegraded = errors.New("storage degraded to pass-through")

	// ErrPlaybackBlocked indicates the platform refused to start audio
	// without a user gesture.
	ErrPlaybackBlocked = errors.New("playback blocked by platform policy")

	// ErrInvalidIdentifier indicates a malformed note or asset name.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrClosed indicates an operation on a closed device or pool.
	ErrClosed = errors.New("closed")
)

// Code identifies specific error types
type Code string

const (
	CodeFetch              Code = "FETCH_FAILURE"
	CodeDecode             Code = "DECODE_FAILURE"
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
	CodeQuotaExceeded      Code = "STORAGE_QUOTA_EXCEEDED"
	CodeStorageDegraded    Code = "STORAGE_DEGRADED"
	CodePlaybackBlocked    Code = "PLAYBACK_BLOCKED"
	CodeInvalidIdentifier  Code = "INVALID_IDENTIFIER"
	CodeClosed             Code = "CLOSED"
	CodeUnknown            Code = "UNKNOWN"
)

var sentinels = map[Code]error{
	CodeFetch:              ErrFetch,
	CodeDecode:             ErrDecode,
	CodeStorageUnavailable: ErrStorageUnavailable,
	CodeQuotaExceeded:      ErrQuotaExceeded,
	CodeStorageDegraded:    ErrStorageDegraded,
	CodePlaybackBlocked:    ErrPlaybackBlocked,
	CodeInvalidIdentifier:  ErrInvalidIdentifier,
	CodeClosed:             ErrClosed,
}

// Error carries a code, a message and the underlying cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]interface{}
}

// New creates a coded error.
func New(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel belonging to the error's code, so that
// errors.Is(err, ErrFetch) holds for a CodeFetch error whatever its cause.
func (e *Error) Is(target error) bool {
	if s, ok := sentinels[e.Code]; ok {
		return s == target
	}
	return false
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	e.Context[key] = value
	return e
}

// CodeOf classifies any error into the taxonomy.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	for code, s := range sentinels {
		if errors.Is(err, s) {
			return code
		}
	}
	return CodeUnknown
}

// IsSilent reports whether an error is expected during normal operation and
// must not surface to the player.
func IsSilent(err error) bool {
	switch CodeOf(err) {
	case CodeStorageUnavailable, CodeQuotaExceeded, CodeStorageDegraded, CodePlaybackBlocked:
		return true
	default:
		return false
	}
}
