/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RequestLogger: zap request logging (middleware.go)
  3. Recoverer:     Panic recovery (500 instead of crash)
  4. CORS:          Cross-origin requests for frontend
  5. Authenticate:  Resolves the session cookie or bearer token

ROUTE GROUPS:
  /api/auth/*           Login / logout (public)
  /api/healthz          Liveness (public)
  /api/me, /profiles, /surveys, /invoices, /bows, /events
                        Any logged-in account
  /api/admin/*          Gated per capability (role admin or sub-permission)
  /api/scenarios/*      Demo scenarios (only when enabled in config)
  /*                    Static files (frontend)

STATIC FILE SERVING:
  Serves the built frontend from web/dist/ when present.
  Falls back to index.html for client-side routing.

SEE ALSO:
  - handlers.go: Handler implementations
  - auth/middleware.go: Identity and capability checks
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/kyudo-console/auth"
)

// RouterOptions configure NewRouter.
type RouterOptions struct {
	AllowedOrigins  []string
	EnableScenarios bool
	// StaticDir overrides the frontend location; empty means web/dist.
	StaticDir string
	Logger    *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	r.Use(auth.Authenticate(h.Issuer, h.Store))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Login)
		r.Post("/auth/logout", h.Logout)
		r.Get("/healthz", h.Health)

		if opts.EnableScenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		}

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireIdentity)

			r.Get("/me", h.Me)
			r.Post("/me/password", h.ChangePassword)

			r.Route("/profiles", func(r chi.Router) {
				r.Get("/", h.ListProfiles)
				r.Get("/{id}", h.GetProfile)
				r.Put("/{id}", h.UpdateProfile)
			})

			r.Route("/surveys", func(r chi.Router) {
				r.Get("/", h.ListSurveys)
				r.Get("/{id}", h.GetSurvey)
				r.Post("/{id}/response", h.SubmitResponse)
				r.Post("/{id}/option", h.AppendOption)
			})

			r.Route("/invoices", func(r chi.Router) {
				r.Get("/", h.ListInvoices)
				r.Get("/{id}", h.GetInvoice)
			})

			r.Route("/bows", func(r chi.Router) {
				r.Get("/", h.ListBows)
				r.Get("/{id}/loans", h.ListLoans)
				r.Post("/{id}/borrow", h.BorrowBow)
				r.Post("/{id}/return", h.ReturnBow)
			})

			r.Get("/events", h.ListEvents)

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(auth.RequireAdmin)
					r.Post("/accounts", h.CreateAccount)
					r.Put("/accounts/{id}/permissions", h.SetPermissions)
					r.Get("/account-logs", h.ListAccountLogs)
				})

				r.Group(func(r chi.Router) {
					r.Use(auth.RequireCapability(auth.PermSurveyAdmin))
					r.Post("/surveys", h.CreateSurvey)
					r.Post("/surveys/delete", h.DeleteSurveys)
					r.Get("/surveys/analytics", h.SurveyAnalytics)
					r.Post("/surveys/{id}", h.ReplaceSurvey)
					r.Post("/surveys/{id}/status", h.SetSurveyStatus)
				})

				r.Group(func(r chi.Router) {
					r.Use(auth.RequireCapability(auth.PermInvoiceAdmin))
					r.Post("/invoices", h.CreateInvoice)
					r.Post("/invoices/approve", h.ApproveInvoices)
					r.Post("/invoices/revert", h.RevertInvoices)
					r.Post("/invoices/delete", h.DeleteInvoices)
					r.Get("/invoice-logs", h.ListInvoiceLogs)
				})

				r.Group(func(r chi.Router) {
					r.Use(auth.RequireCapability(auth.PermBowAdmin))
					r.Post("/bows", h.CreateBow)
					r.Put("/bows/{id}", h.UpdateBow)
					r.Delete("/bows/{id}", h.DeleteBow)
				})

				r.Group(func(r chi.Router) {
					r.Use(auth.RequireCapability(auth.PermCalendarAdmin))
					r.Post("/events", h.CreateEvent)
					r.Put("/events/{id}", h.UpdateEvent)
					r.Delete("/events/{id}", h.DeleteEvent)
				})
			})
		})
	})

	mountStatic(r, opts.StaticDir)
	return r
}

// mountStatic serves the built frontend. First try ./web/dist, then the
// directory next to the executable.
func mountStatic(r chi.Router, staticDir string) {
	if staticDir == "" {
		staticDir = "./web/dist"
		if _, err := os.Stat(staticDir); os.IsNotExist(err) {
			exe, _ := os.Executable()
			staticDir = filepath.Join(filepath.Dir(exe), "web", "dist")
		}
	}

	if _, err := os.Stat(staticDir); err != nil {
		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Kyudo Club Console</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Kyudo Club Console API</h1>
<p>The frontend is not built yet. Run <code>cd web && npm install && npm run build</code></p>
<p>Log in with <code>POST /api/auth/login</code>, then see <a href="/api/surveys">/api/surveys</a>.</p>
</body>
</html>`))
		})
		return
	}

	fileServer := http.FileServer(http.Dir(staticDir))
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		fullPath := filepath.Join(staticDir, filepath.Clean("/"+r.URL.Path))
		if _, err := os.Stat(fullPath); os.IsNotExist(err) {
			// SPA routing: serve index.html
			http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}
