package api

import (
	"net/http"
	"time"

	"expense-tracker-server/src/handlers"
	"expense-tracker-server/src/middleware"
	"expense-tracker-server/src/util"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type Handlers struct {
	Auth         *handlers.AuthHandler
	Users        *handlers.UserHandler
	Categories   *handlers.CategoryHandler
	Transactions *handlers.TransactionHandler
	Sync         *handlers.SyncHandler
	Reports      *handlers.ReportHandler
}

type Options struct {
	JWTSecret       string
	AllowedOrigins  []string
	ReadOnly        bool
	RateLimitMax    int
	RateLimitWindow time.Duration
	TrustProxy      bool
}

func NewRouter(h Handlers, opts Options, log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if opts.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Recovery)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		util.NotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		util.Error(w, http.StatusMethodNotAllowed, util.CodeBadRequest, "method not allowed")
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		util.Success(w, http.StatusOK, "ok", map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.CORSMiddleware(opts.AllowedOrigins))
		if opts.RateLimitMax > 0 {
			r.Use(middleware.NewRateLimiter(opts.RateLimitMax, opts.RateLimitWindow).Middleware)
		}
		r.Use(middleware.ReadOnlyMiddleware(opts.ReadOnly))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Auth.Register)
			r.Post("/login", h.Auth.Login)
			r.Post("/refresh", h.Auth.Refresh)
			r.Post("/logout", h.Auth.Logout)
			r.Post("/password/request-reset", h.Auth.RequestPasswordReset)
			r.Post("/password/reset", h.Auth.ResetPassword)
		})

		// Protected routes
		r.With(middleware.JWTAuthMiddleware(opts.JWTSecret)).Group(func(r chi.Router) {
			// User
			r.Get("/users/me", h.Users.GetMe)
			r.Put("/users/me", h.Users.UpdateMe)
			r.Post("/users/me/password", h.Users.ChangePassword)
			r.Delete("/users/me", h.Users.DeleteMe)

			// Categories
			r.Get("/categories", h.Categories.List)
			r.Post("/categories", h.Categories.Create)
			r.Get("/categories/{id}", h.Categories.Get)
			r.Put("/categories/{id}", h.Categories.Update)
			r.Delete("/categories/{id}", h.Categories.Delete)

			// Transactions
			r.Post("/transactions/sync", h.Sync.Sync)
			r.Get("/transactions/sync/attempts", h.Sync.Attempts)
			r.Get("/transactions", h.Transactions.List)
			r.Post("/transactions", h.Transactions.Create)
			r.Get("/transactions/{id}", h.Transactions.Get)
			r.Put("/transactions/{id}", h.Transactions.Update)
			r.Delete("/transactions/{id}", h.Transactions.Delete)
			r.Post("/transactions/{id}/restore", h.Transactions.Restore)

			// Reports
			r.Get("/reports/summary", h.Reports.Summary)
			r.Get("/reports/monthly", h.Reports.Monthly)
			r.Get("/reports/categories", h.Reports.Categories)
		})
	})

	return r
}
