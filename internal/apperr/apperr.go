// Package apperr carries the error taxonomy of the rental core. Callers branch
// on Kind and Code rather than on message text.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindAuthorization
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindAuthorization:
		return "authorization"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Codes that drive distinct recovery paths.
const (
	CodeInventoryConflict         = "INVENTORY_CONFLICT"
	CodeIllegalTransition         = "ILLEGAL_TRANSITION"
	CodeStatusChanged             = "STATUS_CHANGED"
	CodePaymentVerificationFailed = "PAYMENT_VERIFICATION_FAILED"
	CodePaymentGateway            = "PAYMENT_GATEWAY"
	CodeNoPricing                 = "NO_PRICING"
	CodeInvalidInput              = "INVALID_INPUT"
	CodeNotOwner                  = "NOT_OWNER"
	CodeEmptyCart                 = "EMPTY_CART"
	CodeOrderNotActive            = "ORDER_NOT_ACTIVE"
	CodeCartChanged               = "CART_CHANGED"
	CodePaymentRefunded           = "PAYMENT_REFUNDED"
	CodeRefundNotSettled          = "REFUND_NOT_SETTLED"
)

type Error struct {
	Kind    Kind
	Code    string
	Op      string
	Message string
	Err     error
	// Details carries per-item problems, e.g. every cart line that failed
	// checkout validation.
	Details []string
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Code != "" {
		msg = fmt.Sprintf("[%s] %s", e.Code, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, code, op, message string) *Error {
	return &Error{Kind: kind, Code: code, Op: op, Message: message}
}

func Wrap(kind Kind, code, op, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Op: op, Message: message, Err: err}
}

func Validation(op, message string) *Error {
	return New(KindValidation, CodeInvalidInput, op, message)
}

func NotFound(op, message string, err error) *Error {
	return Wrap(KindNotFound, "", op, message, err)
}

func Conflict(code, op, message string) *Error {
	return New(KindConflict, code, op, message)
}

func Authorization(op, message string) *Error {
	return New(KindAuthorization, CodeNotOwner, op, message)
}

func Upstream(code, op, message string, err error) *Error {
	return Wrap(KindUpstream, code, op, message, err)
}

func Internal(op, message string, err error) *Error {
	return Wrap(KindInternal, "", op, message, err)
}

// WithDetails attaches item level messages and returns the same error.
func (e *Error) WithDetails(details ...string) *Error {
	e.Details = append(e.Details, details...)
	return e
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
