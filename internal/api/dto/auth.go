package dto

import (
	"strings"
	"time"

	"github.com/nexura/nexura-api/internal/api/validation"
	"github.com/nexura/nexura-api/internal/database/models"
)

const (
	maxNameLength        = 100
	maxDescriptionLength = 1000
)

func validateEmail(errors map[string]string, email string) {
	if strings.TrimSpace(email) == "" {
		errors["email"] = "Email is required"
	} else if !validation.IsValidEmail(email) {
		errors["email"] = "Email is invalid"
	}
}

func validatePassword(errors map[string]string, password string) {
	if ok, msg := validation.ValidatePassword(password); !ok {
		errors["password"] = msg
	}
}

func validateAddress(errors map[string]string, address string) {
	if address != "" && !validation.IsValidAddress(address) {
		errors["address"] = "Address must be a 0x-prefixed 40 digit hex string"
	}
}

// SignUpRequest is sent as JSON or as multipart form fields alongside an
// optional "logo" file.
type SignUpRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Address     string `json:"address,omitempty"`
	Description string `json:"description,omitempty"`
}

// Normalize strips control characters from free-text fields.
func (r *SignUpRequest) Normalize() {
	r.Name = validation.SanitizeString(r.Name)
	r.Description = validation.TruncateString(validation.SanitizeString(r.Description), maxDescriptionLength)
	r.Address = strings.TrimSpace(r.Address)
}

func (r SignUpRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Name == "" {
		errors["name"] = "Name is required"
	} else if len([]rune(r.Name)) > maxNameLength {
		errors["name"] = "Name must be at most 100 characters"
	}
	validateEmail(errors, r.Email)
	validatePassword(errors, r.Password)
	validateAddress(errors, r.Address)

	return errors
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

func (r SignInRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if strings.TrimSpace(r.Email) == "" {
		errors["email"] = "Email is required"
	}
	if r.Password == "" {
		errors["password"] = "Password is required"
	}

	return errors
}

type AdminSignUpRequest struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	Address  string `json:"address,omitempty"`
}

func (r AdminSignUpRequest) Validate() map[string]string {
	errors := make(map[string]string)

	validateEmail(errors, r.Email)
	if strings.TrimSpace(r.Code) == "" {
		errors["code"] = "Code is required"
	} else if !validation.IsValidCode(r.Code) {
		errors["code"] = "Code must be 6 digits"
	}
	validatePassword(errors, r.Password)
	validateAddress(errors, strings.TrimSpace(r.Address))

	return errors
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

func (r ForgotPasswordRequest) Validate() map[string]string {
	errors := make(map[string]string)
	validateEmail(errors, r.Email)
	return errors
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (r ResetPasswordRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Token == "" {
		errors["token"] = "Token is required"
	}
	validatePassword(errors, r.Password)

	return errors
}

type InviteAdminRequest struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

func (r InviteAdminRequest) Validate() map[string]string {
	errors := make(map[string]string)
	validateEmail(errors, r.Email)
	return errors
}

// SessionResponse carries the access token. The refresh token travels only
// in its HTTP-only cookie.
type SessionResponse struct {
	Message     string `json:"message"`
	AccessToken string `json:"accessToken"`
}

type SignUpResponse struct {
	AccessToken string              `json:"accessToken"`
	Project     OrganizationSummary `json:"project"`
}

type OrganizationSummary struct {
	Name string `json:"name"`
	Logo string `json:"logo"`
}

type OrganizationDTO struct {
	ID                 string `json:"id"`
	Kind               string `json:"kind"`
	Name               string `json:"name"`
	Address            string `json:"address"`
	AddressPlaceholder bool   `json:"addressPlaceholder"`
	Logo               string `json:"logo"`
	Description        string `json:"description,omitempty"`
}

type AccountDTO struct {
	ID           string           `json:"id"`
	Email        string           `json:"email"`
	Variant      string           `json:"variant"`
	Role         string           `json:"role"`
	Name         string           `json:"name,omitempty"`
	Organization *OrganizationDTO `json:"organization,omitempty"`
}

func NewAccountDTO(account *models.Account) AccountDTO {
	out := AccountDTO{
		ID:      account.ID.String(),
		Email:   account.Email,
		Variant: string(account.Variant),
		Role:    account.Role,
		Name:    account.Name,
	}
	if org := account.Organization; org != nil {
		out.Organization = &OrganizationDTO{
			ID:                 org.ID.String(),
			Kind:               string(org.Kind),
			Name:               org.Name,
			Address:            org.Address,
			AddressPlaceholder: org.AddressPlaceholder,
			Logo:               org.Logo,
			Description:        org.Description,
		}
	}
	return out
}

type InvitationResponse struct {
	Message   string    `json:"message"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}
