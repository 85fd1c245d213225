package membership_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/kyudo-console/audit"
	"github.com/warp/kyudo-console/auth"
	"github.com/warp/kyudo-console/domain"
	"github.com/warp/kyudo-console/membership"
	"github.com/warp/kyudo-console/store/sqlite"
)

type recorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recorder) Record(e audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Action
	}
	return out
}

var (
	admin       = auth.Identity{AccountID: "root", Role: auth.RoleAdmin}
	memberAdmin = auth.Identity{AccountID: "clerk", Role: auth.RoleUser, Permissions: []auth.Permission{auth.PermMemberAdmin}}
)

func newService(t *testing.T) (*membership.Service, *recorder) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	issuer, err := auth.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	rec := &recorder{}
	return membership.NewService(store, issuer, rec), rec
}

func createMember(t *testing.T, svc *membership.Service, email string) *membership.Profile {
	t.Helper()
	p, err := svc.CreateAccount(context.Background(), admin, membership.NewAccount{
		Email:         email,
		Password:      "hassetsu-8",
		DisplayName:   "Member " + email,
		Generation:    "60",
		StudentNumber: "S-001",
	})
	require.NoError(t, err)
	return p
}

func TestLogin(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()
	p := createMember(t, svc, "Archer@Club.test ")

	tok, acc, err := svc.Login(ctx, "archer@club.test", "hassetsu-8")
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
	assert.Equal(t, p.AccountID, acc.ID)
	assert.Equal(t, []string{"created", "login"}, rec.actions())

	_, _, err = svc.Login(ctx, "archer@club.test", "wrong-password")
	assert.ErrorIs(t, err, membership.ErrBadCredentials)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, _, err = svc.Login(ctx, "nobody@club.test", "hassetsu-8")
	assert.ErrorIs(t, err, membership.ErrBadCredentials, "unknown email looks the same as a wrong password")
}

func TestCreateAccount_Validation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	createMember(t, svc, "a@club.test")

	tests := []struct {
		name string
		in   membership.NewAccount
	}{
		{"bad email", membership.NewAccount{Email: "not-an-email", Password: "longenough", DisplayName: "X"}},
		{"empty email", membership.NewAccount{Email: "  ", Password: "longenough", DisplayName: "X"}},
		{"display-name address", membership.NewAccount{Email: "Archer <b@club.test>", Password: "longenough", DisplayName: "X"}},
		{"short password", membership.NewAccount{Email: "b@club.test", Password: "short", DisplayName: "X"}},
		{"no display name", membership.NewAccount{Email: "b@club.test", Password: "longenough"}},
		{"unknown permission", membership.NewAccount{Email: "b@club.test", Password: "longenough", DisplayName: "X", Permissions: []auth.Permission{"root"}}},
		{"duplicate email", membership.NewAccount{Email: "A@club.test", Password: "longenough", DisplayName: "X"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateAccount(ctx, admin, tt.in)
			assert.ErrorIs(t, err, domain.ErrInvalid)
		})
	}
}

func TestChangePassword(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	p := createMember(t, svc, "a@club.test")
	me := auth.Identity{AccountID: p.AccountID, Role: auth.RoleUser}

	_, _, err := svc.ChangePassword(ctx, me, "wrong-one", "new-password")
	assert.ErrorIs(t, err, membership.ErrWrongPassword)
	_, _, err = svc.ChangePassword(ctx, me, "hassetsu-8", "short")
	assert.ErrorIs(t, err, membership.ErrWeakPassword)
	tok, acc, err := svc.ChangePassword(ctx, me, "hassetsu-8", "new-password")
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
	assert.Equal(t, int64(1), acc.SessionVersion, "password change revokes earlier sessions")

	_, _, err = svc.Login(ctx, "a@club.test", "hassetsu-8")
	assert.ErrorIs(t, err, membership.ErrBadCredentials)
	_, _, err = svc.Login(ctx, "a@club.test", "new-password")
	assert.NoError(t, err)
}

func TestProfileVisibility(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	owner := createMember(t, svc, "a@club.test")
	other := createMember(t, svc, "b@club.test")
	otherID := auth.Identity{AccountID: other.AccountID, Role: auth.RoleUser}
	ownerID := auth.Identity{AccountID: owner.AccountID, Role: auth.RoleUser}

	// GIVEN: the owner stores contact details
	phone := "090-0000-0000"
	_, err := svc.UpdateProfile(ctx, ownerID, owner.AccountID, membership.ProfilePatch{Phone: &phone})
	require.NoError(t, err)

	// THEN: other members see only public fields
	seen, err := svc.GetProfile(ctx, otherID, owner.AccountID)
	require.NoError(t, err)
	assert.Equal(t, owner.DisplayName, seen.DisplayName)
	assert.Empty(t, seen.Phone)
	assert.Empty(t, seen.StudentNumber)

	for _, viewer := range []auth.Identity{ownerID, memberAdmin, admin} {
		full, err := svc.GetProfile(ctx, viewer, owner.AccountID)
		require.NoError(t, err)
		assert.Equal(t, phone, full.Phone, viewer.AccountID)
		assert.Equal(t, "S-001", full.StudentNumber, viewer.AccountID)
	}

	list, err := svc.ListProfiles(ctx, otherID, membership.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, p := range list {
		if p.AccountID == owner.AccountID {
			assert.Empty(t, p.Phone)
		} else {
			assert.Equal(t, "S-001", p.StudentNumber, "own restricted fields stay visible")
		}
	}

	_, err = svc.GetProfile(ctx, otherID, "missing")
	assert.ErrorIs(t, err, membership.ErrProfileNotFound)
}

func TestUpdateProfile_Permissions(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()
	owner := createMember(t, svc, "a@club.test")
	other := createMember(t, svc, "b@club.test")
	me := auth.Identity{AccountID: owner.AccountID, Role: auth.RoleUser}

	ryuha := " Heki-ryu Insai-ha "
	p, err := svc.UpdateProfile(ctx, me, owner.AccountID, membership.ProfilePatch{Ryuha: &ryuha})
	require.NoError(t, err)
	assert.Equal(t, "Heki-ryu Insai-ha", p.Ryuha)

	gen := "61"
	_, err = svc.UpdateProfile(ctx, me, owner.AccountID, membership.ProfilePatch{Generation: &gen})
	assert.ErrorIs(t, err, membership.ErrRestrictedFields)

	_, err = svc.UpdateProfile(ctx, me, other.AccountID, membership.ProfilePatch{Ryuha: &ryuha})
	assert.ErrorIs(t, err, membership.ErrNotProfileOwner)

	p, err = svc.UpdateProfile(ctx, memberAdmin, owner.AccountID, membership.ProfilePatch{Generation: &gen})
	require.NoError(t, err)
	assert.Equal(t, "61", p.Generation)

	blank := "  "
	_, err = svc.UpdateProfile(ctx, me, owner.AccountID, membership.ProfilePatch{DisplayName: &blank})
	assert.ErrorIs(t, err, membership.ErrDisplayNameMissing)

	// A no-op patch is not audited.
	before := len(rec.actions())
	_, err = svc.UpdateProfile(ctx, me, owner.AccountID, membership.ProfilePatch{Ryuha: &ryuha})
	require.NoError(t, err)
	assert.Len(t, rec.actions(), before)
}

func TestSetPermissions(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	p := createMember(t, svc, "a@club.test")

	got, err := svc.SetPermissions(ctx, admin, p.AccountID,
		[]auth.Permission{auth.PermBowAdmin, auth.PermBowAdmin, auth.PermSurveyAdmin})
	require.NoError(t, err)
	assert.Equal(t, []auth.Permission{auth.PermBowAdmin, auth.PermSurveyAdmin}, got)

	_, err = svc.SetPermissions(ctx, admin, "missing", nil)
	assert.ErrorIs(t, err, membership.ErrAccountNotFound)
}
