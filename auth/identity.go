/*
Package auth resolves who is calling and what they may do.

PURPOSE:
  A request carries a session token. The token names an account and its
  coarse role; the fine-grained sub-permissions are loaded once per request
  from storage. Handlers never compare role strings themselves, they ask
  HasCapability.

ROLES:
  admin: every capability
  user:  self-service only, plus whatever sub-permissions were granted

SEE ALSO:
  - token.go: session token signing/parsing
  - middleware.go: HTTP integration
*/
package auth

import (
	"context"
	"fmt"
	"slices"
)

// Role is the coarse account role.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleUser:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Permission is a named capability grantable to non-admin accounts.
type Permission string

const (
	PermMemberAdmin   Permission = "member_admin"
	PermInvoiceAdmin  Permission = "invoice_admin"
	PermBowAdmin      Permission = "bow_admin"
	PermCalendarAdmin Permission = "calendar_admin"
	PermSurveyAdmin   Permission = "survey_admin"
)

// AllPermissions lists every known permission in display order.
var AllPermissions = []Permission{
	PermMemberAdmin,
	PermInvoiceAdmin,
	PermBowAdmin,
	PermCalendarAdmin,
	PermSurveyAdmin,
}

// ParsePermission validates a permission string.
func ParsePermission(s string) (Permission, error) {
	p := Permission(s)
	if slices.Contains(AllPermissions, p) {
		return p, nil
	}
	return "", fmt.Errorf("unknown permission %q", s)
}

// Identity is the resolved caller of a request.
type Identity struct {
	AccountID   string
	Email       string
	Role        Role
	Permissions []Permission
}

// IsAdmin reports whether the identity holds the admin role.
func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }

// HasCapability reports whether id may act with permission p.
// The admin role implies every permission.
func HasCapability(id Identity, p Permission) bool {
	if id.IsAdmin() {
		return true
	}
	return slices.Contains(id.Permissions, p)
}

type ctxKey int

const identityKey ctxKey = 1

// WithIdentity stores the identity in the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the identity attached by the middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
