package models

import "time"

// WebhookEvent is the audit record for a processed provider webhook.
// EventID doubles as the durable idempotency key for the modern protocol.
type WebhookEvent struct {
	EventID    string    `json:"event_id" db:"event_id"`
	Provider   Provider  `json:"provider" db:"provider"`
	EventType  string    `json:"event_type" db:"event_type"`
	Payload    []byte    `json:"payload" db:"payload"`
	ReceivedAt time.Time `json:"received_at" db:"received_at"`
}
