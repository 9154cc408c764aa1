package http

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/carelink-auth/internal/http/handlers"
	"github.com/pribylovaa/carelink-auth/internal/http/middleware"
	"github.com/pribylovaa/carelink-auth/internal/metrics"
)

// MaxBodyBytes — предел тела запроса на auth-эндпоинтах.
const MaxBodyBytes = 1 << 20

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger  *slog.Logger
	Timeout time.Duration
	// Ready — флаг готовности для /healthz; nil — всегда готов.
	Ready *atomic.Bool
	// LoginLimiter ограничивает /login по адресу клиента; nil — без лимита.
	LoginLimiter *middleware.RateLimiter
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(auth handlers.Auth, guard middleware.Authorizer, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.RequestID(),          // формируем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // request-scoped логгер в контексте
		middleware.Recover(),            // паника -> 500 с request_id в логе
		middleware.Metrics(),
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout))
	}

	h := handlers.New(auth, opts.Ready)

	// Пробы и метрики.
	root.Get("/livez", h.Livez)
	root.Get("/healthz", h.Healthz)
	root.Handle("/metrics", metrics.Handler())

	// Публичные auth-эндпоинты.
	root.Group(func(r chi.Router) {
		r.Use(middleware.MaxBodyBytes(MaxBodyBytes))

		login := http.HandlerFunc(h.Login)
		if opts.LoginLimiter != nil {
			r.With(opts.LoginLimiter.Middleware()).Post("/login", login)
		} else {
			r.Post("/login", login)
		}
		r.Post("/refresh", h.Refresh)
		r.Post("/logout", h.Logout)
	})

	// Защищённые эндпоинты: пример композиции guard для других сервисов.
	root.With(middleware.RequireAuth(guard, "")).Get("/session", h.Session)
	root.With(middleware.RequireAuth(guard, "org_id")).Get("/orgs/{org_id}/session", h.Session)

	return root
}
