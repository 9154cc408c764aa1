// metrics — prometheus-коллекторы сервиса. Регистрируются в default-регистре
// при импорте пакета; отдаются через Handler на /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики.
var (
	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "carelink_auth_http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carelink_auth_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "carelink_auth_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Метрики auth-ядра.
var (
	// AuthOutcomes — исходы login/refresh/logout по стабильному коду (ok для успеха).
	AuthOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carelink_auth_operations_total",
			Help: "Auth operations by operation and outcome code.",
		},
		[]string{"op", "result"},
	)

	// GuardDecisions — решения AuthorizationGuard.
	GuardDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carelink_auth_guard_decisions_total",
			Help: "Authorization guard decisions by outcome code.",
		},
		[]string{"result"},
	)

	// RevocationUnavailable — проверки отзыва, не дошедшие до реестра.
	RevocationUnavailable = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carelink_auth_revocation_unavailable_total",
		Help: "Revocation registry checks that failed due to registry unavailability.",
	})

	// ReplaysDetected — обнаруженные повторные предъявления refresh-токенов.
	ReplaysDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carelink_auth_refresh_replays_total",
		Help: "Refresh token replays detected.",
	})

	// JanitorDeleted — удалённые janitor'ом refresh-записи.
	JanitorDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carelink_auth_janitor_deleted_total",
		Help: "Expired refresh token records deleted by the retention janitor.",
	})
)

// Handler отдаёт метрики default-регистра.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RequestStarted увеличивает число запросов в полёте и возвращает функцию
// завершения, которая фиксирует длительность и статус.
// route — шаблон маршрута chi, а не сырой путь, чтобы не раздувать кардинальность.
func RequestStarted(method string) func(route string, status int) {
	httpInFlight.Inc()
	start := time.Now()

	return func(route string, status int) {
		code := strconv.Itoa(status)
		httpRequestDuration.WithLabelValues(method, route, code).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, route, code).Inc()
		httpInFlight.Dec()
	}
}
