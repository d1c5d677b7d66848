package monitoring

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dna_community"

// Metrics holds the application collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	enrollments   *prometheus.CounterVec
	tokensMinted  prometheus.Counter
	redemptions   *prometheus.CounterVec
	certificates  *prometheus.CounterVec
	notifications *prometheus.CounterVec
	reminders     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"method", "route"},
		),
		enrollments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workshops",
				Name:      "enrollment_transitions_total",
				Help:      "Enrollment state transitions by resulting status.",
			},
			[]string{"status"},
		),
		tokensMinted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rewards",
				Name:      "tokens_minted_total",
				Help:      "Reward tokens minted for crossed level milestones.",
			},
		),
		redemptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rewards",
				Name:      "redemptions_total",
				Help:      "Reward redemption attempts by outcome.",
			},
			[]string{"outcome"},
		),
		certificates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "certificates",
				Name:      "operations_total",
				Help:      "Certificate issuance and regeneration by outcome.",
			},
			[]string{"operation", "outcome"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notifications",
				Name:      "created_total",
				Help:      "Notification documents by type and outcome.",
			},
			[]string{"type", "outcome"},
		),
		reminders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workshops",
				Name:      "reminders_sent_total",
				Help:      "Workshop reminder notifications by lead time.",
			},
			[]string{"kind"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.enrollments,
		m.tokensMinted,
		m.redemptions,
		m.certificates,
		m.notifications,
		m.reminders,
	)

	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Middleware records request counts and latency per matched route.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		m.httpRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

func (m *Metrics) RecordEnrollment(status string) {
	if m == nil {
		return
	}
	m.enrollments.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordTokensMinted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tokensMinted.Add(float64(n))
}

func (m *Metrics) RecordRedemption(outcome string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordCertificate(operation string, err error) {
	if m == nil {
		return
	}
	m.certificates.WithLabelValues(operation, outcome(err)).Inc()
}

func (m *Metrics) RecordNotification(notificationType string, err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(notificationType, outcome(err)).Inc()
}

func (m *Metrics) RecordReminders(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reminders.WithLabelValues(kind).Add(float64(n))
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
