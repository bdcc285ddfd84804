package api

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"fleetroute/internal/config"
	"fleetroute/internal/events"
	"fleetroute/internal/metrics"
	"fleetroute/internal/opt"
	"fleetroute/internal/sinks"
	"fleetroute/internal/store"
)

const defaultTenant = "t_demo"

type Server struct {
	Store    store.Store
	Broker   events.Broker
	Sinks    *sinks.Dispatcher
	Runs     *metrics.Runs
	Defaults opt.Options
	Config   *config.Config
	Log      *slog.Logger

	limiters *tenantLimiters
}

// NewServer wires a Server from its dependencies. Engine defaults and the
// optimize rate limit come from cfg.
func NewServer(cfg *config.Config, st store.Store, broker events.Broker, dispatcher *sinks.Dispatcher, runs *metrics.Runs, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	defaults := cfg.OptimizerOptions()
	defaults.Logger = log
	return &Server{
		Store:    st,
		Broker:   broker,
		Sinks:    dispatcher,
		Runs:     runs,
		Defaults: defaults,
		Config:   cfg,
		Log:      log,
		limiters: newTenantLimiters(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst),
	}
}

// Routes returns the API mux wrapped in the access log and metrics middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Optimization
	mux.HandleFunc("/v1/optimize", s.OptimizeHandler)
	mux.HandleFunc("/v1/results", s.ResultsHandler)
	mux.HandleFunc("/v1/results/", s.ResultByIDHandler)
	mux.HandleFunc("/v1/admin/optimizer/config", s.AdminOptimizerConfigHandler)
	mux.HandleFunc("/v1/admin/run-stats", s.RunStatsHandler)

	// Subscriptions and webhooks
	mux.HandleFunc("/v1/subscriptions", s.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", s.SubscriptionByIDHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries/", s.WebhookDeliveryRetryHandler)

	// Live events
	mux.HandleFunc("/v1/events/ws", s.EventsWSHandler)

	// Ops
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.HandleFunc("/v1/admin/debug", s.DebugJSON)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return s.logMiddleware(mux)
}

// tenantFrom reads the tenant label of a request. Tenant isolation is handled
// upstream; the header is opaque here.
func (s *Server) tenantFrom(r *http.Request) string {
	if tenant := r.Header.Get("X-Tenant-Id"); tenant != "" {
		return tenant
	}
	return defaultTenant
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer for the websocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		dur := time.Since(start)
		path := routeLabel(r.URL.Path)
		status := strconv.Itoa(rec.status)
		metrics.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, path, status).Observe(dur.Seconds())
		s.Log.Info("http request",
			"remote", r.RemoteAddr,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", dur.Milliseconds())
	})
}

// routeLabel collapses id-bearing paths so metric cardinality stays bounded.
func routeLabel(path string) string {
	for _, prefix := range []string{"/v1/results/", "/v1/subscriptions/", "/v1/admin/webhook-deliveries/"} {
		if strings.HasPrefix(path, prefix) && len(path) > len(prefix) {
			return prefix + "{id}"
		}
	}
	return path
}

// tenantLimiters hands out one token bucket per tenant.
type tenantLimiters struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	m     map[string]*rate.Limiter
}

func newTenantLimiters(limit rate.Limit, burst int) *tenantLimiters {
	return &tenantLimiters{limit: limit, burst: burst, m: map[string]*rate.Limiter{}}
}

// allow reports whether tenant may start another run. A zero limit disables
// limiting.
func (t *tenantLimiters) allow(tenant string) bool {
	if t == nil || t.limit <= 0 {
		return true
	}
	t.mu.Lock()
	l, ok := t.m[tenant]
	if !ok {
		l = rate.NewLimiter(t.limit, max(t.burst, 1))
		t.m[tenant] = l
	}
	t.mu.Unlock()
	return l.Allow()
}
