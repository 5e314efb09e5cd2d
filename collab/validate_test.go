package collab

import (
	"errors"
	"testing"
)

func TestValidateTitle(t *testing.T) {
	if got, err := ValidateTitle("  Groceries "); err != nil || got != "Groceries" {
		t.Fatalf("ValidateTitle = %q, %v", got, err)
	}
	for _, title := range []string{"", "   ", "\t\n"} {
		var verr *ValidationError
		if _, err := ValidateTitle(title); !errors.As(err, &verr) {
			t.Fatalf("title %q: expected ValidationError, got %v", title, err)
		}
	}
}

func TestValidateEmail(t *testing.T) {
	valid := []string{"a@b.c", "ada.lovelace@example.co.uk", " u2@x.com "}
	for _, email := range valid {
		if _, err := ValidateEmail(email); err != nil {
			t.Fatalf("email %q: unexpected error %v", email, err)
		}
	}
	invalid := []string{"", "plain", "missing@dot", "no at.sign", "spa ce@x.com"}
	for _, email := range invalid {
		var verr *ValidationError
		if _, err := ValidateEmail(email); !errors.As(err, &verr) {
			t.Fatalf("email %q: expected ValidationError, got %v", email, err)
		}
	}
}
