// Package validation checks user-supplied team input.
package validation

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/splax/teamhub/internal/apperr"
	"github.com/splax/teamhub/internal/role"
)

// MaxLength bounds team names and email addresses.
const MaxLength = 255

var validate = validator.New(validator.WithRequiredStructEnabled())

// TeamName trims and checks a team name.
func TeamName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if err := validate.Var(name, "required,max=255"); err != nil {
		return "", fieldError("name", err)
	}
	return name, nil
}

// Email trims, lower-cases and checks an email address.
func Email(email string) (string, error) {
	email = NormalizeEmail(email)
	if err := validate.Var(email, "required,max=255,email"); err != nil {
		return "", fieldError("email", err)
	}
	return email, nil
}

// NormalizeEmail returns the canonical stored form of an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Role checks that id can be granted to a member.
func Role(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", apperr.Validation("role", "role is required")
	}
	if !role.IsAssignable(id) {
		return "", apperr.Validation("role", "role "+id+" cannot be assigned")
	}
	return id, nil
}

func fieldError(field string, err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return apperr.Validation(field, field+" is invalid")
	}
	switch errs[0].Tag() {
	case "required":
		return apperr.Validation(field, field+" is required")
	case "max":
		return apperr.Validation(field, field+" must be at most 255 characters")
	case "email":
		return apperr.Validation(field, field+" must be a valid email address")
	default:
		return apperr.Validation(field, field+" is invalid")
	}
}
