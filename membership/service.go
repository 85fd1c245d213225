package membership

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/warp/kyudo-console/audit"
	"github.com/warp/kyudo-console/auth"
	"github.com/warp/kyudo-console/domain"
)

const minPasswordLength = 8

var validate = validator.New()

var (
	ErrAccountNotFound    = domain.NotFound("account not found")
	ErrProfileNotFound    = domain.NotFound("profile not found")
	ErrEmailTaken         = domain.Invalid("email is already registered")
	ErrBadCredentials     = domain.Unauthenticated("invalid email or password")
	ErrWrongPassword      = domain.Invalid("current password is incorrect")
	ErrWeakPassword       = domain.Invalid(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	ErrRestrictedFields   = domain.Forbidden("only member administrators may change these fields")
	ErrNotProfileOwner    = domain.Forbidden("forbidden")
	ErrDisplayNameMissing = domain.Invalid("displayName is required")
)

// Service implements account and profile operations.
type Service struct {
	store  Store
	issuer *auth.Issuer
	audit  audit.Recorder
	now    func() time.Time
	newID  func() string
}

// NewService creates a membership service. A nil recorder discards audit
// entries.
func NewService(store Store, issuer *auth.Issuer, rec audit.Recorder) *Service {
	if rec == nil {
		rec = audit.Discard
	}
	return &Service{
		store:  store,
		issuer: issuer,
		audit:  rec,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

func (s *Service) record(op auth.Identity, subject, action, detail string) {
	s.audit.Record(audit.Entry{
		Log:        audit.LogAccount,
		OperatorID: op.AccountID,
		SubjectID:  subject,
		Action:     action,
		Detail:     detail,
		At:         s.now(),
	})
}

// =============================================================================
// SESSION
// =============================================================================

// Login checks credentials and returns a signed session token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *Account, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", nil, ErrBadCredentials
	}
	acc, err := s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		return "", nil, fmt.Errorf("get account: %w", err)
	}
	if acc == nil || !auth.CheckPassword(acc.PasswordHash, password) {
		return "", nil, ErrBadCredentials
	}
	tok, err := s.issuer.Sign(acc.ID, acc.Email, acc.Role, acc.SessionVersion)
	if err != nil {
		return "", nil, fmt.Errorf("sign session: %w", err)
	}
	s.record(auth.Identity{AccountID: acc.ID}, acc.ID, "login", "")
	return tok, acc, nil
}

// Logout revokes every session of the caller, on all devices.
func (s *Service) Logout(ctx context.Context, id auth.Identity) error {
	if err := s.store.RevokeSessions(ctx, id.AccountID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.record(id, id.AccountID, "logout", "")
	return nil
}

// ChangePassword replaces the caller's password after checking the current
// one. Existing sessions are revoked; the returned token starts a new one.
func (s *Service) ChangePassword(ctx context.Context, id auth.Identity, current, next string) (string, *Account, error) {
	if utf8.RuneCountInString(next) < minPasswordLength {
		return "", nil, ErrWeakPassword
	}
	acc, err := s.store.GetAccount(ctx, id.AccountID)
	if err != nil {
		return "", nil, fmt.Errorf("get account: %w", err)
	}
	if acc == nil {
		return "", nil, ErrAccountNotFound
	}
	if !auth.CheckPassword(acc.PasswordHash, current) {
		return "", nil, ErrWrongPassword
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return "", nil, fmt.Errorf("hash password: %w", err)
	}
	version, err := s.store.UpdatePassword(ctx, acc.ID, hash, s.now())
	if err != nil {
		return "", nil, fmt.Errorf("update password: %w", err)
	}
	acc.PasswordHash = hash
	acc.SessionVersion = version
	tok, err := s.issuer.Sign(acc.ID, acc.Email, acc.Role, version)
	if err != nil {
		return "", nil, fmt.Errorf("sign session: %w", err)
	}
	s.record(id, acc.ID, "password_changed", "")
	return tok, acc, nil
}

// =============================================================================
// ACCOUNTS (administration)
// =============================================================================

// CreateAccount registers a member with an initial password.
func (s *Service) CreateAccount(ctx context.Context, op auth.Identity, in NewAccount) (*Profile, error) {
	email := normalizeEmail(in.Email)
	if validate.Var(email, "required,email") != nil {
		return nil, domain.Invalid("a valid email is required")
	}
	if strings.TrimSpace(in.DisplayName) == "" {
		return nil, ErrDisplayNameMissing
	}
	if utf8.RuneCountInString(in.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	role := in.Role
	if role == "" {
		role = auth.RoleUser
	}
	if _, err := auth.ParseRole(string(role)); err != nil {
		return nil, domain.Invalid(err.Error())
	}
	if _, err := ParseGender(string(in.Gender)); err != nil {
		return nil, domain.Invalid(err.Error())
	}
	perms, err := dedupePermissions(in.Permissions)
	if err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now()
	acc := Account{
		ID:           s.newID(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Permissions:  perms,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	p := Profile{
		AccountID:     acc.ID,
		Email:         email,
		DisplayName:   strings.TrimSpace(in.DisplayName),
		Generation:    strings.TrimSpace(in.Generation),
		StudentNumber: strings.TrimSpace(in.StudentNumber),
		Gender:        in.Gender,
		Department:    strings.TrimSpace(in.Department),
		UpdatedAt:     now,
	}
	if err := s.store.CreateAccount(ctx, acc, p); err != nil {
		if domain.IsClientError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	s.record(op, acc.ID, "created", fmt.Sprintf("role=%s", role))
	return &p, nil
}

// SetPermissions replaces the sub-permissions granted to an account.
func (s *Service) SetPermissions(ctx context.Context, op auth.Identity, accountID string, perms []auth.Permission) ([]auth.Permission, error) {
	perms, err := dedupePermissions(perms)
	if err != nil {
		return nil, err
	}
	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if acc == nil {
		return nil, ErrAccountNotFound
	}
	if err := s.store.SetPermissions(ctx, accountID, perms, s.now()); err != nil {
		return nil, fmt.Errorf("set permissions: %w", err)
	}
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = string(p)
	}
	s.record(op, accountID, "permissions_changed", strings.Join(names, ","))
	return perms, nil
}

func dedupePermissions(in []auth.Permission) ([]auth.Permission, error) {
	out := make([]auth.Permission, 0, len(in))
	seen := make(map[auth.Permission]bool, len(in))
	for _, p := range in {
		if _, err := auth.ParsePermission(string(p)); err != nil {
			return nil, domain.Invalid(err.Error())
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}

// =============================================================================
// PROFILES
// =============================================================================

func canSeeRestricted(viewer auth.Identity, profileID string) bool {
	return viewer.AccountID == profileID || auth.HasCapability(viewer, auth.PermMemberAdmin)
}

// GetProfile returns one profile. Restricted fields are cleared unless the
// viewer owns the profile or administers members.
func (s *Service) GetProfile(ctx context.Context, viewer auth.Identity, id string) (*Profile, error) {
	p, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if p == nil {
		return nil, ErrProfileNotFound
	}
	if !canSeeRestricted(viewer, id) {
		r := p.redact()
		return &r, nil
	}
	return p, nil
}

// ListProfiles returns matching profiles with restricted fields cleared for
// everyone but the owner and member administrators.
func (s *Service) ListProfiles(ctx context.Context, viewer auth.Identity, f ListFilter) ([]Profile, error) {
	f.Query = strings.TrimSpace(f.Query)
	f.Generation = strings.TrimSpace(f.Generation)
	list, err := s.store.ListProfiles(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	for i := range list {
		if !canSeeRestricted(viewer, list[i].AccountID) {
			list[i] = list[i].redact()
		}
	}
	return list, nil
}

// UpdateProfile applies a partial update. Owners may edit their public and
// contact fields; member administrators may edit everything.
func (s *Service) UpdateProfile(ctx context.Context, viewer auth.Identity, id string, patch ProfilePatch) (*Profile, error) {
	admin := auth.HasCapability(viewer, auth.PermMemberAdmin)
	if !admin && viewer.AccountID != id {
		return nil, ErrNotProfileOwner
	}
	if !admin && patch.adminOnly() {
		return nil, ErrRestrictedFields
	}

	p, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if p == nil {
		return nil, ErrProfileNotFound
	}

	var changed []string
	set := func(name string, dst *string, v *string) {
		if v == nil {
			return
		}
		if nv := strings.TrimSpace(*v); nv != *dst {
			*dst = nv
			changed = append(changed, name)
		}
	}
	set("displayName", &p.DisplayName, patch.DisplayName)
	set("generation", &p.Generation, patch.Generation)
	set("department", &p.Department, patch.Department)
	set("ryuha", &p.Ryuha, patch.Ryuha)
	set("position", &p.Position, patch.Position)
	set("publicNote", &p.PublicNote, patch.PublicNote)
	set("studentNumber", &p.StudentNumber, patch.StudentNumber)
	set("phone", &p.Phone, patch.Phone)
	set("address", &p.Address, patch.Address)
	set("restrictedNote", &p.RestrictedNote, patch.RestrictedNote)
	if patch.Gender != nil {
		if _, err := ParseGender(string(*patch.Gender)); err != nil {
			return nil, domain.Invalid(err.Error())
		}
		if *patch.Gender != p.Gender {
			p.Gender = *patch.Gender
			changed = append(changed, "gender")
		}
	}
	if p.DisplayName == "" {
		return nil, ErrDisplayNameMissing
	}
	if len(changed) == 0 {
		return p, nil
	}

	p.UpdatedAt = s.now()
	if err := s.store.UpdateProfile(ctx, *p); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	s.record(viewer, id, "profile_updated", strings.Join(changed, ","))
	return p, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
