package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

type WebhookDelivery struct {
	ID             string
	TenantID       string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}

const (
	StatusPending   = "pending"
	StatusRetry     = "retry"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// computeDedupKey uses the event id when the payload carries one and a short
// content hash otherwise.
func computeDedupKey(payload []byte) string {
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}
