package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"fleetroute/internal/model"
	"fleetroute/internal/opt"
)

// Store is the persistence interface used by the API server, the result
// sinks and the webhook worker.
type Store interface {
	// Results
	SaveResult(ctx context.Context, tenantID string, res opt.Result) (model.StoredResult, error)
	GetResult(ctx context.Context, tenantID, id string) (model.StoredResult, error)
	ListResults(ctx context.Context, tenantID, cursor string, limit int) ([]model.ResultSummary, string, error)

	// Optimizer config per tenant
	GetOptimizerConfig(ctx context.Context, tenantID string) (model.OptimizerOptions, bool, error)
	SaveOptimizerConfig(ctx context.Context, tenantID string, cfg model.OptimizerOptions) error

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.WebhookDeliveryView, string, error)
	RetryWebhookDelivery(ctx context.Context, tenantID, id string) error
}

var ErrNotFound = errors.New("not found")

const (
	defaultLimit = 100
	maxLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxLimit {
		return defaultLimit
	}
	return limit
}
