package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "kyudo_session"

// ErrAccountNotFound is returned by an AccessResolver for unknown accounts.
var ErrAccountNotFound = errors.New("account not found")

// Access is what the store currently grants an account.
type Access struct {
	Role           Role
	Permissions    []Permission
	SessionVersion int64
}

// AccessResolver loads the current access of an account. The store is
// authoritative; the role in the token is only a hint.
type AccessResolver interface {
	ResolveAccess(ctx context.Context, accountID string) (Access, error)
}

// Authenticate attaches an Identity to the request context when a valid
// session token is present. Requests without one, or with a token from a
// revoked session, pass through untouched; RequireIdentity decides whether
// that is acceptable.
func Authenticate(issuer *Issuer, resolver AccessResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := tokenFromRequest(r)
			if tok == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := issuer.Parse(tok)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			access, err := resolver.ResolveAccess(r.Context(), claims.UID)
			if errors.Is(err, ErrAccountNotFound) {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to resolve session")
				return
			}
			if claims.Version != access.SessionVersion {
				next.ServeHTTP(w, r)
				return
			}
			id := Identity{AccountID: claims.UID, Email: claims.Email, Role: access.Role, Permissions: access.Permissions}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireIdentity rejects requests without a resolved identity (401).
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCapability rejects identities lacking permission p (403).
// It must run after RequireIdentity.
func RequireCapability(p Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !HasCapability(id, p) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin rejects non-admin identities (403).
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !id.IsAdmin() {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
