package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("purchase", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("title", "title is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "DuplicateName wraps ErrDuplicateName",
			err:       DuplicateName("Crown"),
			target:    ErrDuplicateName,
			wantMatch: true,
		},
		{
			name:      "DuplicateConsumableKind wraps its sentinel",
			err:       DuplicateConsumableKind("invitation"),
			target:    ErrDuplicateConsumableKind,
			wantMatch: true,
		},
		{
			name:      "InsufficientCreditError unwraps to ErrInsufficientCredit",
			err:       &InsufficientCreditError{UserID: "u1", Available: 3, Requested: 5},
			target:    ErrInsufficientCredit,
			wantMatch: true,
		},
		{
			name:      "wrapped InsufficientCreditError still matches",
			err:       fmt.Errorf("service: debit: %w", &InsufficientCreditError{Available: 3, Requested: 5}),
			target:    ErrInsufficientCredit,
			wantMatch: true,
		},
		{
			name:      "Disabled does NOT match ErrNotFound",
			err:       Disabled("market item", "i1"),
			target:    ErrNotFound,
			wantMatch: false,
		},
		{
			name:      "UnsupportedVariant does NOT match ErrInvalidPurchaseVariant",
			err:       UnsupportedVariant("badge"),
			target:    ErrInvalidPurchaseVariant,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("market item", "abc123"),
			wantMessage: "market item not found with id abc123",
		},
		{
			name:        "Forbidden uses custom message",
			err:         Forbidden("Not enough invitations"),
			wantMessage: "Not enough invitations",
		},
		{
			name:        "DuplicateName names the title",
			err:         DuplicateName("Crown"),
			wantMessage: "Market item name already exists: Crown",
		},
		{
			name:        "InsufficientCreditError reports both amounts",
			err:         &InsufficientCreditError{Available: 3, Requested: 5},
			wantMessage: "insufficient credit: available 3, requested 5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := InvalidPurchaseVariant("unknown")
	if err.Unwrap() != ErrInvalidPurchaseVariant {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), ErrInvalidPurchaseVariant)
	}
}

func TestFieldIsSet(t *testing.T) {
	if got := InvalidAmount("amount must be positive").Field; got != "amount" {
		t.Errorf("Field = %q, want %q", got, "amount")
	}
	if got := UnsupportedVariant("badge").Field; got != "variant" {
		t.Errorf("Field = %q, want %q", got, "variant")
	}
}
