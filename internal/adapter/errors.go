package adapter

import (
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"github.com/yanun0323/errors"

	"tradecore/pkg/exception"
)

// Class decides how an adapter reacts to an error.
type Class uint8

const (
	ClassRetryable Class = iota + 1
	ClassNonRetryable
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassNonRetryable:
		return "non_retryable"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

func (c Class) sentinel() error {
	switch c {
	case ClassRetryable:
		return exception.ErrRetryable
	case ClassNonRetryable:
		return exception.ErrNonRetryable
	case ClassFatal:
		return exception.ErrFatal
	default:
		return nil
	}
}

// Kind is the specific failure inside a class.
type Kind uint8

const (
	_kind_beg Kind = iota
	KindRateLimit
	KindServerError
	KindTimeout
	KindConnectionLost
	KindResync

	KindBadRequest
	KindNotFound
	KindInsufficientBalance
	KindInvalidSymbol
	KindInvalidOrder
	KindValidation

	KindAuthenticationFailed
	KindForbidden
	KindAccountSuspended
	KindInvariantViolation
	_kind_end
)

func (k Kind) IsAvailable() bool {
	return k > _kind_beg && k < _kind_end
}

// Class returns the class a kind belongs to.
func (k Kind) Class() Class {
	switch {
	case k >= KindRateLimit && k <= KindResync:
		return ClassRetryable
	case k >= KindBadRequest && k <= KindValidation:
		return ClassNonRetryable
	case k >= KindAuthenticationFailed && k <= KindInvariantViolation:
		return ClassFatal
	default:
		return 0
	}
}

var kindNames = [...]string{
	KindRateLimit:            "rate_limit",
	KindServerError:          "server_error",
	KindTimeout:              "timeout",
	KindConnectionLost:       "connection_lost",
	KindResync:               "resync",
	KindBadRequest:           "bad_request",
	KindNotFound:             "not_found",
	KindInsufficientBalance:  "insufficient_balance",
	KindInvalidSymbol:        "invalid_symbol",
	KindInvalidOrder:         "invalid_order",
	KindValidation:           "validation",
	KindAuthenticationFailed: "authentication_failed",
	KindForbidden:            "forbidden",
	KindAccountSuspended:     "account_suspended",
	KindInvariantViolation:   "invariant_violation",
}

func (k Kind) String() string {
	if !k.IsAvailable() {
		return "unknown"
	}
	return kindNames[k]
}

// Error is a classified adapter failure. It matches its class sentinel
// (exception.ErrRetryable, ErrNonRetryable, ErrFatal) with errors.Is.
type Error struct {
	Kind Kind
	// ResetAfter is set for rate limits when the venue reports it.
	ResetAfter time.Duration
	// Status is the HTTP status of a server error.
	Status int
	// Timeout is the elapsed wait of a timeout.
	Timeout time.Duration
	// Symbol is the book that needs a resync, or the rejected symbol.
	Symbol string
	// Field is the rejected field of a validation error.
	Field   string
	Message string
	Err     error
}

func (e *Error) Class() Class { return e.Kind.Class() }

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("adapter ")
	sb.WriteString(e.Class().String())
	sb.WriteString(": ")
	sb.WriteString(e.Kind.String())
	switch {
	case e.Kind == KindRateLimit && e.ResetAfter > 0:
		sb.WriteString(" reset_after=" + e.ResetAfter.String())
	case e.Kind == KindServerError:
		sb.WriteString(" status=" + strconv.Itoa(e.Status))
	case e.Kind == KindTimeout:
		sb.WriteString(" after=" + e.Timeout.String())
	case e.Symbol != "":
		sb.WriteString(" symbol=" + e.Symbol)
	}
	if e.Field != "" {
		sb.WriteString(" field=" + e.Field)
	}
	if e.Message != "" {
		sb.WriteString(" " + e.Message)
	}
	if e.Err != nil {
		sb.WriteString(": " + e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return t.Kind == e.Kind
	}
	s := e.Class().sentinel()
	return s != nil && target == s
}

// AsError extracts the adapter error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Retryable reports whether err is worth retrying.
func Retryable(err error) bool { return errors.Is(err, exception.ErrRetryable) }

// Fatal reports whether err must stop the adapter.
func Fatal(err error) bool { return errors.Is(err, exception.ErrFatal) }

func RateLimit(resetAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimit, ResetAfter: resetAfter}
}

func ServerError(status int) *Error {
	return &Error{Kind: KindServerError, Status: status}
}

func Timeout(d time.Duration) *Error {
	return &Error{Kind: KindTimeout, Timeout: d}
}

func ConnectionLost(err error) *Error {
	return &Error{Kind: KindConnectionLost, Err: err}
}

func Resync(symbol string) *Error {
	return &Error{Kind: KindResync, Symbol: symbol}
}

func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: msg}
}

// NewError builds an error of any kind.
func NewError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// FromHTTPStatus classifies a venue HTTP status code.
func FromHTTPStatus(status int, msg string) *Error {
	switch {
	case status == 429:
		return &Error{Kind: KindRateLimit, Message: msg}
	case status == 401:
		return NewError(KindAuthenticationFailed, msg, nil)
	case status == 403:
		return NewError(KindForbidden, msg, nil)
	case status == 404:
		return NewError(KindNotFound, msg, nil)
	case status == 408 || status == 504:
		return &Error{Kind: KindTimeout, Message: msg}
	case status >= 500:
		return &Error{Kind: KindServerError, Status: status, Message: msg}
	default:
		return NewError(KindBadRequest, msg, nil)
	}
}
