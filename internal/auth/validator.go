package auth

import (
	"errors"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"chat-engine/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("nospace", func(fl validator.FieldLevel) bool {
		return !strings.ContainsFunc(fl.Field().String(), unicode.IsSpace)
	})
	return v
}

// CreateAccountRequest carries the fields of a new account.
type CreateAccountRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Username string `json:"username" validate:"required,min=2,max=32,nospace"`
	Password string `json:"password" validate:"required,max=128"`
}

// CredentialsRequest carries an email and password pair.
type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Normalize trims the identifiers and lowercases the email.
func (r *CreateAccountRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
	r.Username = strings.TrimSpace(r.Username)
}

// Normalize lowercases the email.
func (r *CredentialsRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}

// NormalizeEmail is the canonical form used for uniqueness and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate checks req and converts the first failure into a models.ValidationError.
func Validate(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &models.ValidationError{Field: strings.ToLower(fe.Field()), Reason: fe.Tag()}
	}
	return &models.ValidationError{Field: "request", Reason: err.Error()}
}
