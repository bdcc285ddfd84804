package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetroute/internal/model"
	"fleetroute/internal/opt"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu      sync.Mutex
	results map[string][]model.StoredResult // tenant -> results, oldest first
	subs    map[string][]model.Subscription // tenant -> subscriptions
	optCfg  map[string]model.OptimizerOptions
	// Webhooks queue state
	deliveries         map[string]*memDelivery // id -> delivery state
	deliveriesByTenant map[string][]string     // tenant -> delivery ids
	deliveryOrder      []string
	dedup              map[string]struct{}
	dlq                []string // dead-lettered delivery ids
}

func NewMemory() *Memory {
	return &Memory{
		results:            map[string][]model.StoredResult{},
		subs:               map[string][]model.Subscription{},
		optCfg:             map[string]model.OptimizerOptions{},
		deliveries:         map[string]*memDelivery{},
		deliveriesByTenant: map[string][]string{},
		dedup:              map[string]struct{}{},
	}
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func (m *Memory) SaveResult(ctx context.Context, tenantID string, res opt.Result) (model.StoredResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sr := model.StoredResult{ID: newID(), TenantID: tenantID, CreatedAt: time.Now().UTC(), Result: res}
	m.results[tenantID] = append(m.results[tenantID], sr)
	return sr, nil
}

func (m *Memory) GetResult(ctx context.Context, tenantID, id string) (model.StoredResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.results[tenantID] {
		if r.ID == id {
			return r, nil
		}
	}
	return model.StoredResult{}, ErrNotFound
}

func (m *Memory) ListResults(ctx context.Context, tenantID, cursor string, limit int) ([]model.ResultSummary, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.results[tenantID]
	start := 0
	if cursor != "" {
		for i := range list {
			if list[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	limit = clampLimit(limit)
	end := min(start+limit, len(list))
	items := make([]model.ResultSummary, 0, end-start)
	for _, r := range list[start:end] {
		items = append(items, model.Summarize(r))
	}
	next := ""
	if end < len(list) {
		next = list[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) GetOptimizerConfig(ctx context.Context, tenantID string) (model.OptimizerOptions, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.optCfg[tenantID]
	return cfg, ok, nil
}

func (m *Memory) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg model.OptimizerOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.optCfg[tenantID] = cfg
	return nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs[tenantID] {
		if s.Wants(eventType) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[tenantID]
	start := 0
	if cursor != "" {
		for i := range list {
			if list[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	end := min(start+clampLimit(limit), len(list))
	items := slices.Clone(list[start:end])
	next := ""
	if end < len(list) {
		next = list[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	arr := m.subs[tenantID]
	n := len(arr)
	arr = slices.DeleteFunc(slices.Clone(arr), func(s model.Subscription) bool { return s.ID == id })
	if len(arr) == n {
		return ErrNotFound
	}
	m.subs[tenantID] = arr
	return nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tenantID + "|" + eventType + "|" + url + "|" + computeDedupKey(payload)
	if _, dup := m.dedup[key]; dup {
		return "", nil
	}
	m.dedup[key] = struct{}{}
	id := uuid.New().String()
	d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: StatusPending}, NextAttemptAt: time.Now()}
	m.deliveries[id] = d
	m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
	m.deliveryOrder = append(m.deliveryOrder, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.deliveryOrder {
		d := m.deliveries[id]
		if (d.Status == StatusPending || d.Status == StatusRetry) && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = StatusDelivered
		now := time.Now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = StatusRetry
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(1 * time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = StatusFailed
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	m.dlq = append(m.dlq, id)
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.WebhookDeliveryView, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.deliveriesByTenant[tenantID]
	start := 0
	if cursor != "" {
		if i := slices.Index(ids, cursor); i >= 0 {
			start = i + 1
		}
	}
	limit = clampLimit(limit)
	out := []model.WebhookDeliveryView{}
	next := ""
	for _, id := range ids[start:] {
		d := m.deliveries[id]
		if status != "" && d.Status != status {
			continue
		}
		if len(out) == limit {
			next = out[len(out)-1].ID
			break
		}
		out = append(out, d.view())
	}
	return out, next, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil || d.TenantID != tenantID {
		return ErrNotFound
	}
	d.Status = StatusPending
	d.NextAttemptAt = time.Now()
	return nil
}

// DeadLetters returns the ids of deliveries that exhausted their attempts.
func (m *Memory) DeadLetters() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.dlq)
}

func (d *memDelivery) view() model.WebhookDeliveryView {
	v := model.WebhookDeliveryView{ID: d.ID, EventType: d.EventType, Status: d.Status, Attempts: d.Attempts, URL: d.URL, LastError: d.LastError, ResponseCode: d.ResponseCode}
	if !d.NextAttemptAt.IsZero() && d.Status != StatusDelivered && d.Status != StatusFailed {
		t := d.NextAttemptAt
		v.NextAttemptAt = &t
	}
	return v
}

// newID returns a time-ordered id so listings sort chronologically by id.
func newID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.New().String()
}
