// Package models - API request types and input validation.
//
// Requests are validated structurally with go-playground/validator tags.
// Content rules that depend on sanitization (empty after cleaning, byte
// ceilings) are applied later by the service layer, so free-text fields
// carry no length tags here.
package models

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their JSON names so error details match
// the request body the client sent.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// RegisterRequest creates an employee account.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Position  string `json:"position" validate:"omitempty,oneof=service_staff barista supervisor assistant_manager store_manager trainer"`
}

func (r *RegisterRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Position = normalizePosition(r.Position)
}

// normalizePosition maps "Store Manager" to "store_manager".
func normalizePosition(p string) string {
	return strings.Join(strings.Fields(strings.ToLower(p)), "_")
}

func (r *RegisterRequest) Validate() error { return validate.Struct(r) }

// LoginRequest carries credentials. Email doubles as the lockout identity.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (r *LoginRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}

func (r *LoginRequest) Validate() error { return validate.Struct(r) }

type CreateAnnouncementRequest struct {
	Title    string  `json:"title" validate:"required"`
	Content  string  `json:"content" validate:"required"`
	IsUrgent bool    `json:"is_urgent"`
	ImageURL *string `json:"image_url,omitempty" validate:"omitempty,url"`
}

func (r *CreateAnnouncementRequest) Validate() error { return validate.Struct(r) }

// CreatePostRequest needs content, an image, or both; that rule is checked
// after sanitization.
type CreatePostRequest struct {
	Content  string  `json:"content"`
	ImageURL *string `json:"image_url,omitempty" validate:"omitempty,url"`
}

func (r *CreatePostRequest) Validate() error { return validate.Struct(r) }

type CreateCommentRequest struct {
	Content string `json:"content" validate:"required"`
}

func (r *CreateCommentRequest) Validate() error { return validate.Struct(r) }

type UpdateProfileRequest struct {
	Bio string `json:"bio"`
}

// UpdateMeRequest changes the caller's own account. Absent fields are kept;
// at least one must be present.
type UpdateMeRequest struct {
	FirstName *string `json:"first_name,omitempty" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name,omitempty" validate:"omitempty,max=100"`
	Position  *string `json:"position,omitempty" validate:"omitempty,oneof=service_staff barista supervisor assistant_manager store_manager trainer"`
	Password  *string `json:"password,omitempty" validate:"omitempty,min=8,max=72"`
}

func (r *UpdateMeRequest) Normalize() {
	if r.Position != nil {
		p := normalizePosition(*r.Position)
		r.Position = &p
	}
}

func (r *UpdateMeRequest) Validate() error { return validate.Struct(r) }

func (r *UpdateMeRequest) Empty() bool {
	return r.FirstName == nil && r.LastName == nil && r.Position == nil && r.Password == nil
}

// AdminStatusRequest grants or revokes admin rights. Reason is free text
// kept in the security log.
type AdminStatusRequest struct {
	IsAdmin *bool   `json:"is_admin" validate:"required"`
	Reason  *string `json:"reason,omitempty"`
}

func (r *AdminStatusRequest) Validate() error { return validate.Struct(r) }

// SpecialRoleRequest assigns a special role. An empty or null role clears it.
type SpecialRoleRequest struct {
	SpecialRole *string `json:"special_role" validate:"omitempty,oneof=training"`
}

func (r *SpecialRoleRequest) Normalize() {
	if r.SpecialRole == nil {
		return
	}
	role := strings.ToLower(strings.TrimSpace(*r.SpecialRole))
	if role == "" {
		r.SpecialRole = nil
		return
	}
	r.SpecialRole = &role
}

func (r *SpecialRoleRequest) Validate() error { return validate.Struct(r) }

// Role returns the requested role, "" meaning none.
func (r *SpecialRoleRequest) Role() string {
	if r.SpecialRole == nil {
		return ""
	}
	return *r.SpecialRole
}

// FieldErrors flattens validator errors into a field → rule map suitable for
// ErrorResponse.Details. Non-validation errors yield nil.
func FieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		details[fe.Field()] = rule
	}
	return details
}
