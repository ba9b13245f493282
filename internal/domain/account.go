// Package domain contains the core entities shared across modules.
package domain

import (
	"strings"
	"time"
)

// Role defines the authorization class of an account.
type Role string

// Account roles.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// HasPermission reports whether the role satisfies the required minimum role.
func (r Role) HasPermission(min Role) bool {
	if min == RoleAdmin {
		return r == RoleAdmin
	}
	return r == RoleUser || r == RoleAdmin
}

// Account is the single credentialed identity owning zero or more
// subscriptions. Email is unique and immutable after creation.
type Account struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"display_name"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	NotifyAt     NotifyTime `json:"notify_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NormalizeEmail lowercases and trims an email address so lookups and the
// unique index agree on a single canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
