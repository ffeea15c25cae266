// Package metrics exports Prometheus metrics for ftpgate and keeps a
// small in-process snapshot for the health endpoint.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label for a command that succeeded.  Failed commands are
// labelled with their error kind.
const OutcomeOK = "ok"

// Transfer directions.
const (
	Download = "download"
	Upload   = "upload"
)

// Collector owns a private Prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	sessionsActive  prometheus.Gauge
	transferBytes   *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	authAttempts    *prometheus.CounterVec

	sessions atomic.Int64
	commands atomic.Int64
	failures atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a collector with the Go runtime and process collectors
// registered alongside the ftpgate metrics.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		registry:  reg,
		startTime: time.Now(),

		commandsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ftpgate_commands_total",
			Help: "FTP commands executed, by command and outcome",
		}, []string{"command", "outcome"}),

		commandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ftpgate_command_duration_seconds",
			Help:    "Wall time of a command including connect, login and teardown",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),

		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "ftpgate_sessions_active",
			Help: "FTP sessions currently open",
		}),

		transferBytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ftpgate_transfer_bytes_total",
			Help: "File bytes moved over FTP data connections",
		}, []string{"direction"}),

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ftpgate_http_requests_total",
			Help: "HTTP requests served, by method, route and status",
		}, []string{"method", "route", "status"}),

		authAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ftpgate_auth_attempts_total",
			Help: "Token issuance attempts",
		}, []string{"result"}),
	}
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ── Sessions ─────────────────────────────────────────────────────────

// SessionOpened records a new FTP control connection.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessions.Add(1)
	c.sessionsActive.Inc()
}

// SessionClosed records a torn-down FTP session.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessions.Add(-1)
	c.sessionsActive.Dec()
}

// ActiveSessions returns the number of open sessions.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessions.Load()
}

// ── Commands ─────────────────────────────────────────────────────────

// CommandFinished records one command and how long it took.
func (c *Collector) CommandFinished(command, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.commands.Add(1)
	c.commandsTotal.WithLabelValues(command, outcome).Inc()
	c.commandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// TotalCommands returns the lifetime command count.
func (c *Collector) TotalCommands() int64 {
	if c == nil {
		return 0
	}
	return c.commands.Load()
}

// ── Transfers ────────────────────────────────────────────────────────

// BytesTransferred records n file bytes in direction.
func (c *Collector) BytesTransferred(direction string, n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.transferBytes.WithLabelValues(direction).Add(float64(n))
}

// ── HTTP ─────────────────────────────────────────────────────────────

// HTTPRequest records a served request.  route is the pattern, not the
// raw path, to keep label cardinality bounded.
func (c *Collector) HTTPRequest(method, route string, status int) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// AuthAttempt records a token request.
func (c *Collector) AuthAttempt(success bool) {
	if c == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	c.authAttempts.WithLabelValues(result).Inc()
}

// ── Errors ───────────────────────────────────────────────────────────

// RecordError increments the failure counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.failures.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the number of failed commands.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.failures.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view served by /healthz.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	SessionsActive   int64  `json:"sessions_active"`
	CommandsTotal    int64  `json:"commands_total"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:         time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive: c.sessions.Load(),
		CommandsTotal:  c.commands.Load(),
		ErrorsTotal:    c.failures.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	data, _ := json.MarshalIndent(c.Snapshot(), "", "  ")
	return string(data)
}
