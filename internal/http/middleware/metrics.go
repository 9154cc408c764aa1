package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/carelink-auth/internal/metrics"
)

// Metrics считает запросы по шаблону маршрута chi ("/orgs/{org_id}/session"),
// а не по сырому пути. Неизвестные маршруты попадают в "unmatched".
func Metrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			done := metrics.RequestStarted(r.Method)
			sw := newStatusWriter(w)

			next.ServeHTTP(sw, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			done(route, sw.Status())
		})
	}
}
