// Package apperror defines the error kinds surfaced by the credit and purchase
// engine.
//
// Every error the service layer returns to a caller is either an *AppError
// wrapping one of the sentinels below, or an unexpected infrastructure error.
// Callers branch on kind with errors.Is; the HTTP layer maps kinds to status
// codes in handler/response.go.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// Ledger errors.
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrUserRequired       = errors.New("user required")

	// Catalog and purchase errors.
	ErrDuplicateName           = errors.New("duplicate name")
	ErrDuplicateConsumableKind = errors.New("duplicate consumable kind")
	ErrUnsupportedVariant      = errors.New("unsupported variant")
	ErrInvalidPurchaseVariant  = errors.New("invalid purchase variant")
	ErrDisabled                = errors.New("disabled")

	// ErrConcurrentModification is returned when a version check on a purchase
	// record fails. The whole operation is safe to retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission, or
// that a gated resource (such as invitation inventory) is exhausted.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// InvalidAmount reports a non-positive credit/debit amount or a missing user
// on a credit.
func InvalidAmount(message string) *AppError {
	return &AppError{
		Err:     ErrInvalidAmount,
		Message: message,
		Field:   "amount",
	}
}

func UserRequired() *AppError {
	return &AppError{
		Err:     ErrUserRequired,
		Message: "a user is required for this operation",
		Field:   "user",
	}
}

func DuplicateName(title string) *AppError {
	return &AppError{
		Err:     ErrDuplicateName,
		Message: fmt.Sprintf("Market item name already exists: %s", title),
		Field:   "title",
	}
}

func DuplicateConsumableKind(kind string) *AppError {
	return &AppError{
		Err:     ErrDuplicateConsumableKind,
		Message: fmt.Sprintf("a consumable item of kind %q already exists", kind),
		Field:   "kind",
	}
}

func UnsupportedVariant(variant string) *AppError {
	return &AppError{
		Err:     ErrUnsupportedVariant,
		Message: fmt.Sprintf("unsupported variant %q", variant),
		Field:   "variant",
	}
}

func InvalidPurchaseVariant(variant string) *AppError {
	return &AppError{
		Err:     ErrInvalidPurchaseVariant,
		Message: fmt.Sprintf("invalid purchase variant %q", variant),
		Field:   "variant",
	}
}

// Disabled is returned when a disabled market item is bought, or read by a
// non-admin. HTTP handlers map it to 403 alongside ErrForbidden.
func Disabled(resource, id string) *AppError {
	return &AppError{
		Err:     ErrDisabled,
		Message: fmt.Sprintf("%s %s is disabled", resource, id),
	}
}

func ConcurrentModification(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConcurrentModification,
		Message: fmt.Sprintf("%s %s was modified concurrently, retry the operation", resource, id),
	}
}

// InsufficientCreditError carries the shortfall of a failed debit.
type InsufficientCreditError struct {
	UserID    string
	Available int64
	Requested int64
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credit: available %d, requested %d",
		e.Available, e.Requested)
}

func (e *InsufficientCreditError) Unwrap() error {
	return ErrInsufficientCredit
}
