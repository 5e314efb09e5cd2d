package collab

import (
	"regexp"
	"strings"
)

var emailShape = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// ValidateTitle trims the title and rejects blank results.
func ValidateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	return title, nil
}

// ValidateEmail applies the basic collaborator address shape check. It does
// not attempt full address validation; the identity provider owns that.
func ValidateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", &ValidationError{Field: "email", Reason: "must not be empty"}
	}
	if !emailShape.MatchString(email) {
		return "", &ValidationError{Field: "email", Reason: "is not a valid address"}
	}
	return email, nil
}
