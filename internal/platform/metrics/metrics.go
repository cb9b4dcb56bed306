package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the livestream hub.
type Metrics struct {
	registry                 *prometheus.Registry
	requestsTotal            prometheus.Counter
	errorsTotal              prometheus.Counter
	clientsConnectedTotal    *prometheus.CounterVec
	clientsDisconnectedTotal prometheus.Counter
	statusTransitionsTotal   *prometheus.CounterVec
	reclamationsTotal        prometheus.Counter
	broadcastBytesTotal      prometheus.Counter
	encoderLaunchesTotal     prometheus.Counter
	activeStreams            prometheus.Gauge
	activeClients            prometheus.Gauge
}

// New creates and registers Prometheus metrics for the hub.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livestream_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livestream_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	clientsConnectedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livestream_clients_connected_total",
		Help: "Total number of viewer connections, by delivery kind",
	}, []string{"kind"})
	clientsDisconnectedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livestream_clients_disconnected_total",
		Help: "Total number of viewer disconnections",
	})
	statusTransitionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livestream_status_transitions_total",
		Help: "Total number of stream status changes, by target status",
	}, []string{"status"})
	reclamationsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livestream_reclamations_total",
		Help: "Total number of idling streams taken offline to release a tuner",
	})
	broadcastBytesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livestream_broadcast_bytes_total",
		Help: "Total number of encoder bytes written to streams",
	})
	encoderLaunchesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livestream_encoder_launches_total",
		Help: "Total number of encoder launches requested",
	})
	activeStreams := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livestream_active_streams",
		Help: "Number of streams that are not offline",
	})
	activeClients := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livestream_active_clients",
		Help: "Number of viewers attached across all streams",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		clientsConnectedTotal,
		clientsDisconnectedTotal,
		statusTransitionsTotal,
		reclamationsTotal,
		broadcastBytesTotal,
		encoderLaunchesTotal,
		activeStreams,
		activeClients,
	)

	return &Metrics{
		registry:                 registry,
		requestsTotal:            requestsTotal,
		errorsTotal:              errorsTotal,
		clientsConnectedTotal:    clientsConnectedTotal,
		clientsDisconnectedTotal: clientsDisconnectedTotal,
		statusTransitionsTotal:   statusTransitionsTotal,
		reclamationsTotal:        reclamationsTotal,
		broadcastBytesTotal:      broadcastBytesTotal,
		encoderLaunchesTotal:     encoderLaunchesTotal,
		activeStreams:            activeStreams,
		activeClients:            activeClients,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncClientsConnected increments the connect counter for the given kind.
func (m *Metrics) IncClientsConnected(kind string) {
	m.clientsConnectedTotal.WithLabelValues(kind).Inc()
}

// IncClientsDisconnected increments the disconnect counter.
func (m *Metrics) IncClientsDisconnected() {
	m.clientsDisconnectedTotal.Inc()
}

// IncStatusTransitions increments the transition counter for the target status.
func (m *Metrics) IncStatusTransitions(status string) {
	m.statusTransitionsTotal.WithLabelValues(status).Inc()
}

// IncReclamations increments the reclamation counter.
func (m *Metrics) IncReclamations() {
	m.reclamationsTotal.Inc()
}

// AddBroadcastBytes adds n to the broadcast byte counter.
func (m *Metrics) AddBroadcastBytes(n int) {
	m.broadcastBytesTotal.Add(float64(n))
}

// IncEncoderLaunches increments the encoder launch counter.
func (m *Metrics) IncEncoderLaunches() {
	m.encoderLaunchesTotal.Inc()
}

// SetActiveStreams sets the active streams gauge.
func (m *Metrics) SetActiveStreams(n int) {
	m.activeStreams.Set(float64(n))
}

// SetActiveClients sets the active clients gauge.
func (m *Metrics) SetActiveClients(n int) {
	m.activeClients.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
