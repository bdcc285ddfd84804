package webhooks

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"fleetroute/internal/metrics"
	"fleetroute/internal/store"
)

const (
	defaultMaxAttempts = 10
	batchSize          = 50
)

// Worker polls the delivery queue and POSTs due webhooks with retry and
// exponential backoff. Deliveries that run out of attempts are dead-lettered.
type Worker struct {
	Store        store.Store
	HTTP         *http.Client
	MaxAttempts  int
	PollInterval time.Duration
	Log          *slog.Logger
}

func NewWorker(s store.Store, maxAttempts int, poll time.Duration, log *slog.Logger) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if poll <= 0 {
		poll = time.Second
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Worker{
		Store:        s,
		HTTP:         &http.Client{Timeout: 5 * time.Second},
		MaxAttempts:  maxAttempts,
		PollInterval: poll,
		Log:          log,
	}
}

// Run processes the queue until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processOnce(ctx)
		}
	}
}

func (w *Worker) processOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()
	items, err := w.Store.FetchDueWebhookDeliveries(ctx, batchSize)
	if err != nil {
		w.Log.Error("fetch due webhooks", "error", err)
		return
	}
	for _, it := range items {
		w.deliver(ctx, it)
	}
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
	code, latency, err := w.post(ctx, it)
	success := err == nil && code >= 200 && code < 300

	status := "ok"
	if !success {
		status = "error"
	}
	metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
	metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))

	lastErr := ""
	switch {
	case err != nil:
		lastErr = err.Error()
	case !success:
		lastErr = "status " + strconv.Itoa(code)
	}

	if !success && it.Attempts+1 >= w.MaxAttempts {
		w.Log.Warn("webhook dead-lettered", "id", it.ID, "url", it.URL, "attempts", it.Attempts+1, "err", lastErr)
		if err := w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency); err != nil {
			w.Log.Error("fail webhook", "id", it.ID, "error", err)
		}
		return
	}
	next := time.Now().Add(nextBackoff(it.Attempts))
	if err := w.Store.MarkWebhookDelivery(ctx, it.ID, success, &next, lastErr, code, latency); err != nil {
		w.Log.Error("mark webhook", "id", it.ID, "error", err)
	}
}

func (w *Worker) post(ctx context.Context, it store.WebhookDelivery) (int, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", it.EventType)
	if it.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(it.Secret, it.Payload))
	}
	start := time.Now()
	resp, err := w.HTTP.Do(req)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		return 0, latency, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, latency, nil
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 12 {
		attempts = 12
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
