// Package metrics содержит метрики Prometheus сервиса salonhub.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTP метрики
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "path"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests in flight",
		},
	)

	// Доменные метрики
	DiscountDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discount_decisions_total",
			Help: "Discount combination decisions by candidate kind and result",
		},
		[]string{"kind", "allowed"},
	)
	GeneratedShiftsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "generated_shifts_total",
			Help: "Total number of shifts produced from rotation templates",
		},
	)
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Outbound notifications by outcome",
		},
		[]string{"outcome"},
	)
)

var initOnce sync.Once

// InitMetrics регистрирует метрики в реестре по умолчанию. Повторные вызовы безопасны.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(HTTPRequestDuration)
		prometheus.MustRegister(HTTPRequestsInFlight)

		prometheus.MustRegister(DiscountDecisionsTotal)
		prometheus.MustRegister(GeneratedShiftsTotal)
		prometheus.MustRegister(NotificationsTotal)
	})
}
