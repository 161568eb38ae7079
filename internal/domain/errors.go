package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the route layer can pick a status code
// without inspecting error strings.
type Kind string

const (
	KindValidation       Kind = "VALIDATION_ERROR"
	KindIssuanceFailed   Kind = "ISSUANCE_FAILED"
	KindFetchFailed      Kind = "FETCH_FAILED"
	KindDeliveryFailed   Kind = "DELIVERY_FAILED"
	KindNotAuthenticated Kind = "NOT_AUTHENTICATED"
	KindNotAuthorized    Kind = "NOT_AUTHORIZED"
	KindNotFound         Kind = "NOT_FOUND"
	KindConflict         Kind = "CONFLICT"
	KindPaymentFailed    Kind = "PAYMENT_FAILED"
	KindInternal         Kind = "INTERNAL_ERROR"
)

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

// E builds a classified error. err may be nil.
func E(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error {
	return E(KindValidation, message, nil)
}

func NotFound(message string) *Error {
	return E(KindNotFound, message, nil)
}

// KindOf returns the kind of the first classified error in err's chain,
// or KindInternal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of a classified error.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
