package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Chative-rag-assistant/server/internal/agent/model"
	errx "github.com/Chative-rag-assistant/server/internal/core/error"
)

// Metrics holds the assistant collectors, registered on their own registry.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	routesTotal     *prometheus.CounterVec
	queryAttempts   *prometheus.CounterVec
	requestDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_requests_total",
				Help: "Total number of chat turns by response status",
			},
			[]string{"status"},
		),
		routesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_routes_total",
				Help: "Total number of turns handled by each route",
			},
			[]string{"route"},
		),
		queryAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_sql_attempts_total",
				Help: "SQL generation attempts by turn outcome",
			},
			[]string{"outcome"},
		),
		requestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "assistant_request_duration_seconds",
				Help:    "Duration of chat turns",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// Registry exposes the collectors for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveTurn records one finished turn. Its signature matches graph.TurnObserver.
func (m *Metrics) ObserveTurn(_ model.QueryInput, result *model.TurnResult, elapsed time.Duration, err error) {
	m.requestDuration.Observe(elapsed.Seconds())

	status := http.StatusOK
	if err != nil {
		status = errx.StatusOf(err)
	}
	m.requestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()

	if result == nil {
		return
	}
	m.routesTotal.WithLabelValues(result.Route.String()).Inc()
	if result.QueryAttempts > 0 {
		outcome := "answered"
		if result.QueryFailed {
			outcome = "apologized"
		}
		m.queryAttempts.WithLabelValues(outcome).Add(float64(result.QueryAttempts))
	}
}
