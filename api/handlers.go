/*
handlers.go - HTTP API handlers for the club console

PURPOSE:
  Exposes the club services via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the domain packages.

ENDPOINTS:
  Session:
    POST   /api/auth/login                  Log in, set session cookie
    POST   /api/auth/logout                 Clear session cookie
    GET    /api/me                          Current account and profile
    POST   /api/me/password                 Change own password

  Profiles:
    GET    /api/profiles                    Member directory
    GET    /api/profiles/{id}               One profile
    PUT    /api/profiles/{id}               Partial profile update

  Surveys, invoices, bows, events:
    see surveys.go, invoices.go, bows.go, events.go

  Admin:
    POST   /api/admin/accounts              Create account + profile
    PUT    /api/admin/accounts/{id}/permissions
    GET    /api/admin/account-logs          Account audit log

ARCHITECTURE:
  Handler holds one service per domain, all backed by the single store
  constructed in cmd/server. Authorization is decided by the middleware
  in server.go (role, sub-permission); handlers only read the Identity.

ERROR HANDLING:
  Errors are returned as {"error": "..."} with the status of the domain
  error kind (see errors.go):
  - 400: Validation errors, invalid input
  - 401: No valid session
  - 403: Missing permission, not eligible
  - 404: Resource not found
  - 500: Internal errors (message is generic, details are logged)

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/kyudo-console/audit"
	"github.com/warp/kyudo-console/auth"
	"github.com/warp/kyudo-console/billing"
	"github.com/warp/kyudo-console/calendar"
	"github.com/warp/kyudo-console/equipment"
	"github.com/warp/kyudo-console/membership"
	"github.com/warp/kyudo-console/store/sqlite"
	"github.com/warp/kyudo-console/survey"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Store        *sqlite.Store
	Issuer       *auth.Issuer
	Audit        audit.Recorder
	Logger       *zap.Logger
	SecureCookie bool
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Issuer *auth.Issuer

	members    *membership.Service
	reconciler *survey.Reconciler
	responder  *survey.Responder
	editor     *survey.Editor
	invoices   *billing.Service
	bows       *equipment.Service
	events     *calendar.Service

	logger       *zap.Logger
	validate     *validator.Validate
	secureCookie bool

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the services around the store.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rec := d.Audit
	if rec == nil {
		rec = audit.Discard
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	rc := survey.NewReconciler(d.Store)
	return &Handler{
		Store:        d.Store,
		Issuer:       d.Issuer,
		members:      membership.NewService(d.Store, d.Issuer, rec),
		reconciler:   rc,
		responder:    survey.NewResponder(d.Store, rc),
		editor:       survey.NewEditor(d.Store),
		invoices:     billing.NewService(d.Store, rec),
		bows:         equipment.NewService(d.Store),
		events:       calendar.NewService(d.Store),
		logger:       logger.Named("api"),
		validate:     v,
		secureCookie: d.SecureCookie,
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into dst and validates it. It writes the 400
// response itself and reports false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// identity returns the caller. Routes using it sit behind RequireIdentity.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

func surveyViewer(id auth.Identity) survey.Viewer {
	return survey.Viewer{AccountID: id.AccountID, Admin: auth.HasCapability(id, auth.PermSurveyAdmin)}
}

// queryEnd is queryTime for the upper bound of a range: a bare date covers
// the whole day.
func queryEnd(r *http.Request, key string) (time.Time, bool) {
	if t, err := time.Parse(time.DateOnly, r.URL.Query().Get(key)); err == nil {
		return t.AddDate(0, 0, 1).Add(-time.Nanosecond), true
	}
	return queryTime(r, key)
}

func queryTime(r *http.Request, key string) (time.Time, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func queryLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 || n > 1000 {
		return def
	}
	return n
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// Login checks credentials and sets the session cookie. The token is also
// returned for bearer use.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	tok, acc, err := h.members.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err, "login failed")
		return
	}
	h.startSession(w, tok, acc)
}

// startSession sets the session cookie and writes the SessionDTO.
func (h *Handler) startSession(w http.ResponseWriter, tok string, acc *membership.Account) {
	expires := time.Now().Add(h.Issuer.TTL())
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    tok,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, SessionDTO{
		Token:     tok,
		ExpiresAt: fmtTime(expires),
		Me: MeDTO{
			ID:          acc.ID,
			Email:       acc.Email,
			Role:        string(acc.Role),
			Permissions: permissionNames(acc.Permissions),
		},
	})
}

// Logout clears the session cookie. With a live session it also revokes
// every token of the account, so a copied token stops working too.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if id, ok := auth.FromContext(r.Context()); ok {
		if err := h.members.Logout(r.Context(), id); err != nil {
			h.fail(w, r, err, "logout failed")
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// Me returns the caller with their own profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	dto := MeDTO{
		ID:          id.AccountID,
		Email:       id.Email,
		Role:        string(id.Role),
		Permissions: permissionNames(id.Permissions),
	}
	p, err := h.members.GetProfile(r.Context(), id, id.AccountID)
	if err != nil && statusFor(err) != http.StatusNotFound {
		h.fail(w, r, err, "fetch failed")
		return
	}
	if p != nil {
		pd := toProfileDTO(*p)
		dto.Profile = &pd
	}
	writeJSON(w, http.StatusOK, dto)
}

// ChangePassword replaces the caller's password. Other sessions are revoked
// and the caller gets a fresh one.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	tok, acc, err := h.members.ChangePassword(r.Context(), identity(r), req.CurrentPassword, req.NewPassword)
	if err != nil {
		h.fail(w, r, err, "failed to change password")
		return
	}
	h.startSession(w, tok, acc)
}

// =============================================================================
// PROFILE HANDLERS
// =============================================================================

// ListProfiles returns the member directory.
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	list, err := h.members.ListProfiles(r.Context(), identity(r), membership.ListFilter{
		Query:      r.URL.Query().Get("q"),
		Generation: r.URL.Query().Get("generation"),
	})
	if err != nil {
		h.fail(w, r, err, "fetch failed")
		return
	}
	dtos := make([]ProfileDTO, len(list))
	for i, p := range list {
		dtos[i] = toProfileDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProfile returns one profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.members.GetProfile(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "fetch failed")
		return
	}
	writeJSON(w, http.StatusOK, toProfileDTO(*p))
}

// UpdateProfile applies a partial update.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.members.UpdateProfile(r.Context(), identity(r), chi.URLParam(r, "id"), req.toPatch())
	if err != nil {
		h.fail(w, r, err, "failed to save profile")
		return
	}
	writeJSON(w, http.StatusOK, toProfileDTO(*p))
}

// =============================================================================
// ACCOUNT ADMINISTRATION
// =============================================================================

// CreateAccount registers a member.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.members.CreateAccount(r.Context(), identity(r), membership.NewAccount{
		Email:         req.Email,
		Password:      req.Password,
		DisplayName:   req.DisplayName,
		Role:          auth.Role(req.Role),
		Permissions:   toPermissions(req.Permissions),
		Generation:    req.Generation,
		StudentNumber: req.StudentNumber,
		Gender:        membership.Gender(req.Gender),
		Department:    req.Department,
	})
	if err != nil {
		h.fail(w, r, err, "failed to save account")
		return
	}
	writeJSON(w, http.StatusCreated, toProfileDTO(*p))
}

// SetPermissions replaces an account's sub-permissions.
func (h *Handler) SetPermissions(w http.ResponseWriter, r *http.Request) {
	var req SetPermissionsRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	perms, err := h.members.SetPermissions(r.Context(), identity(r), id, toPermissions(req.Permissions))
	if err != nil {
		h.fail(w, r, err, "failed to save permissions")
		return
	}
	writeJSON(w, http.StatusOK, PermissionsDTO{AccountID: id, Permissions: permissionNames(perms)})
}

// ListAccountLogs returns the newest account log entries.
func (h *Handler) ListAccountLogs(w http.ResponseWriter, r *http.Request) {
	h.listLogs(w, r, audit.LogAccount)
}

// ListInvoiceLogs returns the newest invoice log entries.
func (h *Handler) ListInvoiceLogs(w http.ResponseWriter, r *http.Request) {
	h.listLogs(w, r, audit.LogInvoice)
}

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request, log audit.Log) {
	entries, err := h.Store.ListEntries(r.Context(), log, queryLimit(r, 100))
	if err != nil {
		h.fail(w, r, err, "fetch failed")
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTOs(entries))
}

// Health reports whether the database answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		h.fail(w, r, err, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
