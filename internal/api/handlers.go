package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"fleetroute/internal/metrics"
	"fleetroute/internal/model"
	"fleetroute/internal/opt"
	"fleetroute/internal/store"
)

// OptimizeHandler handles POST /v1/optimize
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenant := s.tenantFrom(r)
	if !s.limiters.allow(tenant) {
		w.Header().Set("Retry-After", "1")
		writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "optimization rate limit reached for tenant", r.URL.Path)
		return
	}
	var req model.OptimizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if req.Options != nil {
		if err := validateBody(req.Options); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid optimizer options", err.Error(), r.URL.Path)
			return
		}
	}
	opts, err := s.optionsFor(r.Context(), tenant, req.Options)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load optimizer config failed", err.Error(), r.URL.Path)
		return
	}

	res, err := opt.New(opts).Optimize(r.Context(), req.Problem())
	if err != nil {
		s.optimizeFailed(w, r, tenant, res, err)
		return
	}
	s.recordRun(tenant, res, outcome(res))
	writeJSON(w, http.StatusOK, res)
}

// optimizeFailed maps engine errors onto responses. A run cancelled after
// construction still has a usable plan, which is returned with a warning.
func (s *Server) optimizeFailed(w http.ResponseWriter, r *http.Request, tenant string, res opt.Result, err error) {
	var cerr *opt.ConfigError
	switch {
	case errors.As(err, &cerr):
		metrics.OptimizerRuns.WithLabelValues("invalid").Inc()
		writeJSON(w, http.StatusBadRequest, Problem{
			Type:     "about:blank",
			Title:    "Invalid optimization input",
			Status:   http.StatusBadRequest,
			Detail:   cerr.Reason,
			Instance: r.URL.Path,
			Field:    cerr.Field,
		})
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		if res.Algorithm != "" {
			res.Warnings = append(res.Warnings, "optimization cancelled; returning best solution found")
			s.recordRun(tenant, res, "cancelled")
			writeJSON(w, http.StatusOK, res)
			return
		}
		metrics.OptimizerRuns.WithLabelValues("cancelled").Inc()
		status := http.StatusServiceUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		writeProblem(w, status, "Optimization cancelled", err.Error(), r.URL.Path)
	default:
		metrics.OptimizerRuns.WithLabelValues("error").Inc()
		s.Log.Error("optimize", "tenant", tenant, "error", err)
		writeProblem(w, http.StatusInternalServerError, "Optimization failed", err.Error(), r.URL.Path)
	}
}

// optionsFor layers the tenant's stored overrides and then the request's
// options block over the server defaults.
func (s *Server) optionsFor(ctx context.Context, tenant string, req *model.OptimizerOptions) (opt.Options, error) {
	opts := s.Defaults
	cfg, ok, err := s.Store.GetOptimizerConfig(ctx, tenant)
	if err != nil {
		return opts, err
	}
	if ok {
		opts = cfg.Apply(opts)
	}
	if req != nil {
		opts = req.Apply(opts)
	}
	opts.Logger = s.Log.With("tenant", tenant)
	return opts, nil
}

func (s *Server) recordRun(tenant string, res opt.Result, outcome string) {
	metrics.OptimizerRuns.WithLabelValues(outcome).Inc()
	metrics.OptimizerDuration.Observe(float64(res.ExecutionTimeMs) / 1000)
	metrics.OptimizerIterations.Observe(float64(res.Stats.Iterations))
	metrics.OptimizerUnassigned.Add(float64(len(res.Unassigned)))
	if s.Sinks != nil {
		s.Sinks.Dispatch(tenant, res)
	}
}

func outcome(res opt.Result) string {
	if len(res.Unassigned) > 0 {
		return "partial"
	}
	return "ok"
}

// ResultsHandler handles GET /v1/results
func (s *Server) ResultsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenant := s.tenantFrom(r)
	cursor, limit := page(r)
	items, next, err := s.Store.ListResults(r.Context(), tenant, cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List results failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// ResultByIDHandler handles GET /v1/results/{id}
func (s *Server) ResultByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/results/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	tenant := s.tenantFrom(r)
	res, err := s.Store.GetResult(r.Context(), tenant, id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Result not found", id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get result failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AdminOptimizerConfigHandler gets or replaces the tenant's optimizer overrides.
func (s *Server) AdminOptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	tenant := s.tenantFrom(r)
	switch r.Method {
	case http.MethodGet:
		cfg, _, err := s.Store.GetOptimizerConfig(r.Context(), tenant)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Load config failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"config": cfg, "effective": effective(cfg.Apply(s.Defaults))})
	case http.MethodPut:
		var body struct {
			Config *model.OptimizerOptions `json:"config"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if body.Config == nil {
			writeProblem(w, http.StatusBadRequest, "Missing config", "", r.URL.Path)
			return
		}
		if err := validateBody(body.Config); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid optimizer options", err.Error(), r.URL.Path)
			return
		}
		if err := s.Store.SaveOptimizerConfig(r.Context(), tenant, *body.Config); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Save failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// effective renders engine options without the logger.
func effective(o opt.Options) map[string]any {
	return map[string]any{
		"iterations":      o.Iterations,
		"refinePasses":    o.RefinePasses,
		"workers":         o.Workers,
		"speedKmh":        o.SpeedKmh,
		"timeBudgetMs":    o.TimeBudget.Milliseconds(),
		"stopWhenStalled": o.StopWhenStalled,
	}
}

// RunStatsHandler returns the statistics of the tenant's latest run.
func (s *Server) RunStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenant := s.tenantFrom(r)
	if s.Runs == nil {
		writeProblem(w, http.StatusNotFound, "No runs recorded", "", r.URL.Path)
		return
	}
	stats, ok := s.Runs.Latest(tenant)
	if !ok {
		writeProblem(w, http.StatusNotFound, "No runs recorded", tenant, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	tenant := s.tenantFrom(r)
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		req.TenantID = tenant
		if err := validateBody(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		cursor, limit := page(r)
		items, next, err := s.Store.ListSubscriptions(r.Context(), tenant, cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Subscription delete
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenant := s.tenantFrom(r)
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	err := s.Store.DeleteSubscription(r.Context(), tenant, id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Subscription not found", id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenant := s.tenantFrom(r)
	cursor, limit := page(r)
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), tenant, r.URL.Query().Get("status"), cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/retry") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tenant := s.tenantFrom(r)
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
	err := s.Store.RetryWebhookDelivery(r.Context(), tenant, id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Delivery not found", id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Retry delivery failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 1})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check DB connectivity when using a SQL store
	type pinger interface{ Ping(ctx context.Context) error }
	if pg, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
