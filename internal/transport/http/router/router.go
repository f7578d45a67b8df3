package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/transport/http/middleware"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/transport/http/response"
)

type HealthHandler interface {
	Healthz(w http.ResponseWriter, r *http.Request)
	Readyz(w http.ResponseWriter, r *http.Request)
}

type AuthHandler interface {
	Register(w http.ResponseWriter, r *http.Request)
	Login(w http.ResponseWriter, r *http.Request)
	Logout(w http.ResponseWriter, r *http.Request)

	ForgotPassword(w http.ResponseWriter, r *http.Request)
	ResetPassword(w http.ResponseWriter, r *http.Request)
	UpdatePassword(w http.ResponseWriter, r *http.Request)
}

type ProfileHandler interface {
	Details(w http.ResponseWriter, r *http.Request)
	Update(w http.ResponseWriter, r *http.Request)
	Avatar(w http.ResponseWriter, r *http.Request)
}

type AdminHandler interface {
	ListUsers(w http.ResponseWriter, r *http.Request)
	GetUser(w http.ResponseWriter, r *http.Request)
	UpdateUser(w http.ResponseWriter, r *http.Request)
	DeleteUser(w http.ResponseWriter, r *http.Request)
}

// Limit is one fixed-window rule.
type Limit struct {
	Requests int
	Window   time.Duration
}

// DefaultLimits are the per-IP limits of the public auth endpoints.
var DefaultLimits = map[string]Limit{
	"register": {Requests: 5, Window: time.Minute},
	"login":    {Requests: 10, Window: time.Minute},
	"forgot":   {Requests: 3, Window: 10 * time.Minute},
	"reset":    {Requests: 5, Window: 10 * time.Minute},
}

type Deps struct {
	Health  HealthHandler
	Auth    AuthHandler
	Profile ProfileHandler
	Admin   AdminHandler

	AuthMW  func(http.Handler) http.Handler
	AdminMW func(http.Handler) http.Handler

	// Limiter is the shared Redis limiter; nil falls back to in-process httprate.
	Limiter middleware.RateLimiter
	Limits  map[string]Limit
	// TrustProxy keys anonymous callers on X-Forwarded-For / X-Real-IP.
	TrustProxy bool

	AvatarUploads bool
	Metrics       http.Handler
}

func New(deps Deps) (http.Handler, error) {
	if deps.Health == nil {
		return nil, fmt.Errorf("nil Health handler")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("nil Auth handler")
	}
	if deps.Profile == nil {
		return nil, fmt.Errorf("nil Profile handler")
	}
	if deps.Admin == nil {
		return nil, fmt.Errorf("nil Admin handler")
	}
	if deps.AuthMW == nil {
		return nil, fmt.Errorf("nil Auth middleware")
	}
	if deps.AdminMW == nil {
		return nil, fmt.Errorf("nil Admin middleware")
	}
	if deps.Limits == nil {
		deps.Limits = DefaultLimits
	}
	if deps.Metrics == nil {
		deps.Metrics = promhttp.Handler()
	}

	limit := func(route string) func(http.Handler) http.Handler {
		return rateLimit(deps.Limiter, route, deps.Limits[route], deps.TrustProxy)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(middleware.AccessLog)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.WriteError(w, r, domain.New(domain.KindNotFound, "route_not_found", "route not found"))
	})

	r.Get("/healthz", deps.Health.Healthz)
	r.Get("/readyz", deps.Health.Readyz)
	r.Handle("/metrics", deps.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(limit("register")).Post("/register", deps.Auth.Register)
		r.With(limit("login")).Post("/login", deps.Auth.Login)
		r.Post("/logout", deps.Auth.Logout)

		r.With(limit("forgot")).Post("/password/forgot", deps.Auth.ForgotPassword)
		r.With(limit("reset")).Put("/password/reset/{token}", deps.Auth.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMW)
			r.Get("/details", deps.Profile.Details)
			r.Put("/details/update", deps.Profile.Update)
			r.Put("/password/update", deps.Auth.UpdatePassword)
			if deps.AvatarUploads {
				r.Post("/details/avatar", deps.Profile.Avatar)
			}
		})

		r.Route("/admin/users", func(r chi.Router) {
			r.Use(deps.AuthMW)
			r.Use(deps.AdminMW)
			r.Get("/", deps.Admin.ListUsers)
			r.Get("/{id}", deps.Admin.GetUser)
			r.Put("/{id}", deps.Admin.UpdateUser)
			r.Delete("/{id}", deps.Admin.DeleteUser)
		})
	})

	return r, nil
}

func rateLimit(limiter middleware.RateLimiter, route string, l Limit, trustProxy bool) func(http.Handler) http.Handler {
	if l.Requests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if limiter != nil {
		return middleware.RateLimitFixedWindow(limiter, middleware.FixedWindowConfig{
			RouteKey:   route,
			Limit:      l.Requests,
			Window:     l.Window,
			TrustProxy: trustProxy,
		}, response.WriteError)
	}
	keyFn := httprate.KeyByIP
	if trustProxy {
		keyFn = httprate.KeyByRealIP
	}
	return httprate.Limit(
		l.Requests,
		l.Window,
		httprate.WithKeyFuncs(keyFn),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			response.WriteError(w, r, domain.ErrRateLimited(route))
		}),
	)
}
