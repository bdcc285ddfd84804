package webhooks

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"fleetroute/internal/store"
)

// Publisher turns an event into one queued delivery per matching subscription.
type Publisher struct {
	Store store.Store
	Log   *slog.Logger
}

func NewPublisher(s store.Store, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Publisher{Store: s, Log: log}
}

// Emit enqueues the event for every subscription of the tenant that wants
// eventType and returns how many deliveries were queued. The event id is
// used as the dedup key, so emitting the same id twice queues nothing new.
func (p *Publisher) Emit(ctx context.Context, eventID, tenantID, eventType string, data any) (int, error) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil {
		return 0, errors.Wrap(err, "load subscriptions")
	}
	if len(subs) == 0 {
		return 0, nil
	}
	if eventID == "" {
		eventID = "evt_" + uuid.NewString()
	}
	body, err := json.Marshal(map[string]any{
		"id":       eventID,
		"type":     eventType,
		"tenantId": tenantID,
		"ts":       time.Now().UTC().Format(time.RFC3339),
		"data":     data,
	})
	if err != nil {
		return 0, errors.Wrap(err, "marshal event")
	}
	queued := 0
	for _, s := range subs {
		id, err := p.Store.EnqueueWebhook(ctx, tenantID, s.ID, eventType, s.URL, s.Secret, body)
		if err != nil {
			p.Log.Warn("enqueue webhook", "subscription", s.ID, "error", err)
			continue
		}
		if id != "" {
			queued++
		}
	}
	return queued, nil
}
