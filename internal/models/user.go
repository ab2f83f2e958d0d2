// Package models - Domain entities for the employee platform.
package models

import (
	"strings"
	"time"
)

// Positions an employee can hold. Only trainers publish announcements.
const (
	PositionServiceStaff     = "service_staff"
	PositionBarista          = "barista"
	PositionSupervisor       = "supervisor"
	PositionAssistantManager = "assistant_manager"
	PositionStoreManager     = "store_manager"
	PositionTrainer          = "trainer"
)

// Positions lists every accepted position, most junior first. The
// RegisterRequest and UpdateMeRequest validation tags mirror it.
var Positions = []string{
	PositionServiceStaff,
	PositionBarista,
	PositionSupervisor,
	PositionAssistantManager,
	PositionStoreManager,
	PositionTrainer,
}

// SpecialRoleTraining is the only role an admin can assign. It grants
// publishing rights and access to the user directory.
const SpecialRoleTraining = "training"

// SpecialRoles lists the assignable special roles.
var SpecialRoles = []string{SpecialRoleTraining}

// User is a registered employee. PasswordHash never leaves the service.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Position     string    `json:"position"`
	IsAdmin      bool      `json:"is_admin"`
	SpecialRole  string    `json:"special_role,omitempty"`
	Bio          string    `json:"bio"`
	CreatedAt    time.Time `json:"created_at"`
}

// CanPublish reports whether the user may create or delete announcements.
func (u *User) CanPublish() bool {
	if u == nil {
		return false
	}
	return u.IsAdmin || u.Position == PositionTrainer || u.SpecialRole == SpecialRoleTraining
}

// CanManageUsers reports whether the user may list and edit accounts.
func (u *User) CanManageUsers() bool {
	if u == nil {
		return false
	}
	return u.IsAdmin || u.SpecialRole == SpecialRoleTraining
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// NormalizeEmail lower-cases and trims an email so the same mailbox always
// maps to one account and one lockout identity.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserPatch names the account fields to change. Nil fields are left as
// they are.
type UserPatch struct {
	FirstName    *string
	LastName     *string
	Position     *string
	PasswordHash *string
	IsAdmin      *bool
	SpecialRole  *string
}

func (p *UserPatch) Empty() bool {
	return p == nil || *p == UserPatch{}
}

// Apply writes the set fields onto u.
func (p *UserPatch) Apply(u *User) {
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.Position != nil {
		u.Position = *p.Position
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.IsAdmin != nil {
		u.IsAdmin = *p.IsAdmin
	}
	if p.SpecialRole != nil {
		u.SpecialRole = *p.SpecialRole
	}
}
