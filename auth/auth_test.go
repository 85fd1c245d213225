package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/kyudo-console/auth"
)

type staticResolver map[string]auth.Access

func (s staticResolver) ResolveAccess(_ context.Context, id string) (auth.Access, error) {
	a, ok := s[id]
	if !ok {
		return auth.Access{}, auth.ErrAccountNotFound
	}
	return a, nil
}

func TestHasCapability(t *testing.T) {
	admin := auth.Identity{AccountID: "a", Role: auth.RoleAdmin}
	treasurer := auth.Identity{AccountID: "t", Role: auth.RoleUser, Permissions: []auth.Permission{auth.PermInvoiceAdmin}}
	member := auth.Identity{AccountID: "m", Role: auth.RoleUser}

	for _, p := range auth.AllPermissions {
		assert.True(t, auth.HasCapability(admin, p), "admin implies %s", p)
		assert.False(t, auth.HasCapability(member, p), "plain member lacks %s", p)
	}
	assert.True(t, auth.HasCapability(treasurer, auth.PermInvoiceAdmin))
	assert.False(t, auth.HasCapability(treasurer, auth.PermSurveyAdmin))
}

func TestIssuer_SignAndParse(t *testing.T) {
	is, err := auth.NewIssuer("0123456789abcdef-secret", time.Hour)
	require.NoError(t, err)

	tok, err := is.Sign("acc-1", "a@example.com", auth.RoleUser, 3)
	require.NoError(t, err)

	c, err := is.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", c.UID)
	assert.Equal(t, auth.RoleUser, c.Role)
	assert.Equal(t, int64(3), c.Version)

	other, err := auth.NewIssuer("another-secret-of-length", time.Hour)
	require.NoError(t, err)
	_, err = other.Parse(tok)
	assert.Error(t, err, "token signed with a different secret must be rejected")
}

func TestNewIssuer_RequiresSecret(t *testing.T) {
	_, err := auth.NewIssuer("", time.Hour)
	assert.Error(t, err)
}

func TestPasswordHash(t *testing.T) {
	hash, err := auth.HashPassword("yumi-and-ya")
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(hash, "yumi-and-ya"))
	assert.False(t, auth.CheckPassword(hash, "wrong"))
}

func TestMiddleware_Statuses(t *testing.T) {
	is, err := auth.NewIssuer("0123456789abcdef-secret", time.Hour)
	require.NoError(t, err)
	resolver := staticResolver{
		"member":  {Role: auth.RoleUser},
		"bows":    {Role: auth.RoleUser, Permissions: []auth.Permission{auth.PermBowAdmin}},
		"revoked": {Role: auth.RoleUser, Permissions: []auth.Permission{auth.PermBowAdmin}, SessionVersion: 1},
	}

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := auth.Authenticate(is, resolver)(auth.RequireIdentity(auth.RequireCapability(auth.PermBowAdmin)(ok)))

	do := func(accountID string, cookie bool) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if accountID != "" {
			tok, err := is.Sign(accountID, accountID+"@example.com", auth.RoleUser, 0)
			require.NoError(t, err)
			if cookie {
				req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: tok})
			} else {
				req.Header.Set("Authorization", "Bearer "+tok)
			}
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, do("", false))
	assert.Equal(t, http.StatusUnauthorized, do("deleted", false), "unknown account behaves as no session")
	assert.Equal(t, http.StatusForbidden, do("member", true))
	assert.Equal(t, http.StatusNoContent, do("bows", false))
	assert.Equal(t, http.StatusNoContent, do("bows", true))
	assert.Equal(t, http.StatusUnauthorized, do("revoked", false), "token from an older session version is ignored")
}
