// Package apperr defines the error taxonomy shared by the directory services,
// the inventory ledger and the booking engine.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure. The zero value is Internal.
type Kind uint8

const (
	Internal Kind = iota
	NotFound
	Forbidden
	Unauthorized
	Invalid
	Conflict
	RateLimited
	PropertyUnavailable
	InvalidTransition
	InvalidState
	InsufficientInventory
	CapacityExceeded
	BeforeAvailability
	MissingDocument
	NoOp
)

var kindNames = map[Kind]string{
	Internal:              "internal",
	NotFound:              "not_found",
	Forbidden:             "forbidden",
	Unauthorized:          "unauthorized",
	Invalid:               "invalid",
	Conflict:              "conflict",
	RateLimited:           "rate_limited",
	PropertyUnavailable:   "property_unavailable",
	InvalidTransition:     "invalid_transition",
	InvalidState:          "invalid_state",
	InsufficientInventory: "insufficient_inventory",
	CapacityExceeded:      "capacity_exceeded",
	BeforeAvailability:    "before_availability",
	MissingDocument:       "missing_document",
	NoOp:                  "no_op",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// HTTPStatus maps a kind onto the status code the API answers with.
func (k Kind) HTTPStatus() int {
	switch k {
	case NotFound:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	case Unauthorized:
		return http.StatusUnauthorized
	case Conflict:
		return http.StatusConflict
	case RateLimited:
		return http.StatusTooManyRequests
	case Internal:
		return http.StatusInternalServerError
	default:
		// Every business-rule violation is a client error.
		return http.StatusBadRequest
	}
}

// Error is a classified failure with a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind. It lets callers
// write errors.Is(err, apperr.ErrNotFound) regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Sentinels for errors.Is comparisons.
var (
	ErrInternal              = &Error{Kind: Internal}
	ErrNotFound              = &Error{Kind: NotFound}
	ErrForbidden             = &Error{Kind: Forbidden}
	ErrUnauthorized          = &Error{Kind: Unauthorized}
	ErrInvalid               = &Error{Kind: Invalid}
	ErrConflict              = &Error{Kind: Conflict}
	ErrRateLimited           = &Error{Kind: RateLimited}
	ErrPropertyUnavailable   = &Error{Kind: PropertyUnavailable}
	ErrInvalidTransition     = &Error{Kind: InvalidTransition}
	ErrInvalidState          = &Error{Kind: InvalidState}
	ErrInsufficientInventory = &Error{Kind: InsufficientInventory}
	ErrCapacityExceeded      = &Error{Kind: CapacityExceeded}
	ErrBeforeAvailability    = &Error{Kind: BeforeAvailability}
	ErrMissingDocument       = &Error{Kind: MissingDocument}
	ErrNoOp                  = &Error{Kind: NoOp}
)

// New builds an *Error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// MessageOf returns the message safe to show to a client. Internal failures
// never leak their cause.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Message
	}
	return "Internal server error"
}
