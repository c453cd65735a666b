// Package apperror defines the error kinds surfaced by the library service
// and how they map onto HTTP responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers that must react to it.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindPolicyViolation
	KindValidation
	KindConflict
	KindUnauthorized
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPolicyViolation:
		return "policy_violation"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// HTTPStatus returns the response status used for errors of this kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindPolicyViolation, KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Machine-readable codes returned alongside the human message.
const (
	CodeInternal           = "INTERNAL"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeRateLimited        = "RATE_LIMITED"
	CodeBookNotFound       = "BOOK_NOT_FOUND"
	CodeBookNotAvailable   = "BOOK_NOT_AVAILABLE"
	CodeBookAvailable      = "BOOK_AVAILABLE"
	CodeBookInUse          = "BOOK_IN_USE"
	CodeDuplicateISBN      = "DUPLICATE_ISBN"
	CodeReaderNotFound     = "READER_NOT_FOUND"
	CodeReaderNotActive    = "READER_NOT_ACTIVE"
	CodeReaderHasOverdue   = "READER_HAS_OVERDUE"
	CodeReaderHasLoans     = "READER_HAS_ACTIVE_LOANS"
	CodeDuplicateCardID    = "DUPLICATE_CARD_ID"
	CodeLoanNotFound       = "LOAN_NOT_FOUND"
	CodeLoanLimitReached   = "LOAN_LIMIT_REACHED"
	CodeLoanReturned       = "LOAN_ALREADY_RETURNED"
	CodeLoanNotExtendable  = "LOAN_NOT_EXTENDABLE"
	CodeLoanOverdue        = "LOAN_OVERDUE"
	CodeExtensionLimit     = "EXTENSION_LIMIT_REACHED"
	CodeReservationMissing = "RESERVATION_NOT_FOUND"
	CodeAlreadyReserved    = "ALREADY_RESERVED"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeReservationExpired = "RESERVATION_EXPIRED"
	CodeFineNotFound       = "FINE_NOT_FOUND"
	CodeNotificationAbsent = "NOTIFICATION_NOT_FOUND"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeDuplicateUsername  = "DUPLICATE_USERNAME"
	CodeLastAdmin          = "LAST_ADMIN"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeConcurrentUpdate   = "CONCURRENT_UPDATE"
)

// Error is the error type returned by the service layer.
type Error struct {
	Kind    Kind
	Code    string
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

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func NotFound(code, msg string) *Error     { return newError(KindNotFound, code, msg) }
func Policy(code, msg string) *Error       { return newError(KindPolicyViolation, code, msg) }
func Validation(msg string) *Error         { return newError(KindValidation, CodeInvalidInput, msg) }
func Conflict(code, msg string) *Error     { return newError(KindConflict, code, msg) }
func Unauthorized(code, msg string) *Error { return newError(KindUnauthorized, code, msg) }
func Forbidden(msg string) *Error          { return newError(KindForbidden, CodeForbidden, msg) }

// Internal wraps an unexpected failure. The cause is kept for logging only.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal error", Err: err}
}

// Validationf is Validation with formatting.
func Validationf(format string, args ...any) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

// As returns the *Error in err's chain, wrapping anything else as Internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// KindOf reports the kind of err; unknown errors are internal.
func KindOf(err error) Kind {
	return As(err).Kind
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
