// Package failure classifies the errors produced while searching, fetching
// and persisting photos so that callers can decide whether to retry and
// what to tell the user.
//
// Components return *Error values (or wrap them); callers test them with
// errors.Is against the sentinels of this package or inspect KindOf:
//
//	if failure.Retryable(err) {
//	    // try again later
//	}
//	if errors.Is(err, failure.ErrNotFound) {
//	    ...
//	}
package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind is the classification of an error
type Kind uint8

const (
	Unknown = Kind(iota)
	// TransientNetwork covers timeouts, connection resets, 5xx and throttling
	TransientNetwork
	// PermanentRequest covers 4xx answers and remote rejections of the query
	PermanentRequest
	// Parse covers unexpected response shapes
	Parse
	// Store covers failures of the persistence engine
	Store
	// Cancelled is reported when the caller gave up on the operation
	Cancelled
	NotFound
	Invalid
)

var kindNames = map[Kind]string{
	Unknown:          "unknown",
	TransientNetwork: "transient",
	PermanentRequest: "permanent",
	Parse:            "parse",
	Store:            "store",
	Cancelled:        "cancelled",
	NotFound:         "notfound",
	Invalid:          "invalid",
}

var descriptions = map[Kind]string{
	Unknown:          "Something went wrong.",
	TransientNetwork: "The photo service could not be reached, please try again.",
	PermanentRequest: "The photo service rejected the request.",
	Parse:            "The photo service sent an unexpected answer.",
	Store:            "Photos could not be saved on this device.",
	Cancelled:        "The operation was cancelled.",
	NotFound:         "The requested item does not exist.",
	Invalid:          "The request is not valid.",
}

func (k Kind) String() string {
	if name, found := kindNames[k]; found {
		return name
	}
	return kindNames[Unknown]
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Error is a classified error
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Status  int
	cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error of the same kind, which makes the sentinels
// below usable with errors.Is
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Op == "" && t.Message == "" && e.Kind == t.Kind
	}
	return false
}

var (
	ErrTransient = &Error{Kind: TransientNetwork}
	ErrPermanent = &Error{Kind: PermanentRequest}
	ErrParse     = &Error{Kind: Parse}
	ErrStore     = &Error{Kind: Store}
	ErrCancelled = &Error{Kind: Cancelled}
	ErrNotFound  = &Error{Kind: NotFound}
	ErrInvalid   = &Error{Kind: Invalid}
)

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under the given kind. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, cause: err}
}

// WithStatus builds an error for an unsuccessful HTTP status code
func WithStatus(op string, status int) *Error {
	kind := PermanentRequest
	if status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		kind = TransientNetwork
	}
	return &Error{Kind: kind, Op: op, Status: status, Message: fmt.Sprintf("unexpected HTTP status %d", status)}
}

// Transport classifies an error returned by an http.Client or a rate
// limiter. Context cancellation wins over everything else.
func Transport(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() == context.Canceled || errors.Is(err, context.Canceled) {
		return &Error{Kind: Cancelled, Op: op, cause: err}
	}
	return &Error{Kind: TransientNetwork, Op: op, cause: err}
}

// FromContext returns a Cancelled error if ctx is done, nil otherwise
func FromContext(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		if err == context.DeadlineExceeded {
			return &Error{Kind: TransientNetwork, Op: op, cause: err}
		}
		return &Error{Kind: Cancelled, Op: op, cause: err}
	}
	return nil
}

// KindOf returns the classification of err; unclassified errors
// originating from a context or the network are classified on the fly
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return Cancelled
	case errors.Is(err, context.DeadlineExceeded):
		return TransientNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return TransientNetwork
	}
	return Unknown
}

// Retryable tells whether the same request may succeed later
func Retryable(err error) bool {
	return KindOf(err) == TransientNetwork
}

// Describe returns a one-line, human readable description of err
// suitable for an alert
func Describe(err error) string {
	if err == nil {
		return ""
	}
	return descriptions[KindOf(err)]
}

// HTTPStatus maps err to the status code the REST layer answers with
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case NotFound:
		return http.StatusNotFound
	case Invalid:
		return http.StatusBadRequest
	case TransientNetwork:
		return http.StatusServiceUnavailable
	case PermanentRequest, Parse:
		return http.StatusBadGateway
	case Cancelled:
		// nginx' "client closed request"
		return 499
	default:
		return http.StatusInternalServerError
	}
}
