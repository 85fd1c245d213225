/*
Package membership manages club accounts and member profiles.

PURPOSE:
  Every member has exactly one account (login credentials, role, granted
  permissions) and one profile keyed by the same id. Profiles carry public
  fields that every member may read and restricted fields (student number,
  contact details, private notes) that only the owner and member
  administrators may see.

KEY CONCEPTS:
  - Account: credentials and role
  - Profile: member details, split into public and restricted parts
  - ProfilePatch: partial update, nil fields are left unchanged

SEE ALSO:
  - service.go: Operations and visibility rules
  - auth/: roles and permissions
*/
package membership

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/kyudo-console/auth"
)

// Gender is the optional gender of a member.
type Gender string

const (
	GenderUnset  Gender = ""
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// ParseGender validates a gender string; the empty string means unset.
func ParseGender(s string) (Gender, error) {
	switch Gender(s) {
	case GenderUnset, GenderMale, GenderFemale:
		return Gender(s), nil
	}
	return "", fmt.Errorf("unknown gender %q", s)
}

// Account holds login credentials.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Role         auth.Role
	Permissions  []auth.Permission

	// SessionVersion is embedded in issued tokens; bumping it revokes them.
	SessionVersion int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Profile is the member record. AccountID doubles as the profile id.
type Profile struct {
	AccountID   string
	Email       string
	DisplayName string
	Generation  string
	Gender      Gender
	Department  string
	Ryuha       string
	Position    string
	PublicNote  string

	// Restricted fields.
	StudentNumber  string
	Phone          string
	Address        string
	RestrictedNote string

	UpdatedAt time.Time
}

// redact clears the restricted fields.
func (p Profile) redact() Profile {
	p.StudentNumber = ""
	p.Phone = ""
	p.Address = ""
	p.RestrictedNote = ""
	return p
}

// ProfilePatch is a partial profile update.
type ProfilePatch struct {
	DisplayName *string
	Generation  *string
	Gender      *Gender
	Department  *string
	Ryuha       *string
	Position    *string
	PublicNote  *string

	StudentNumber  *string
	Phone          *string
	Address        *string
	RestrictedNote *string
}

// adminOnly reports whether the patch touches fields only member
// administrators may change.
func (p ProfilePatch) adminOnly() bool {
	return p.StudentNumber != nil || p.Generation != nil || p.RestrictedNote != nil || p.Position != nil
}

// ListFilter narrows ListProfiles.
type ListFilter struct {
	// Query matches display name or student number, case-insensitively.
	Query      string
	Generation string
}

// NewAccount is the input of CreateAccount.
type NewAccount struct {
	Email         string
	Password      string
	DisplayName   string
	Role          auth.Role
	Permissions   []auth.Permission
	Generation    string
	StudentNumber string
	Gender        Gender
	Department    string
}

// Store handles account and profile persistence.
// Lookups of a missing row return (nil, nil).
type Store interface {
	// CreateAccount inserts the account and its profile atomically. It
	// returns ErrEmailTaken when the email is already registered.
	CreateAccount(ctx context.Context, a Account, p Profile) error
	GetAccount(ctx context.Context, id string) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	// UpdatePassword stores the hash, revokes existing sessions and returns
	// the new session version.
	UpdatePassword(ctx context.Context, id, hash string, at time.Time) (int64, error)
	RevokeSessions(ctx context.Context, id string) error
	SetPermissions(ctx context.Context, id string, perms []auth.Permission, at time.Time) error

	GetProfile(ctx context.Context, id string) (*Profile, error)
	ListProfiles(ctx context.Context, f ListFilter) ([]Profile, error)
	UpdateProfile(ctx context.Context, p Profile) error
}
