package repositories

import (
	"context"

	"subledger/internal/models"
)

type WebhookEventRepository interface {
	// Seen reports whether the event id was recorded before. This is the
	// durable dedupe signal for provider retries; it must be read-only so
	// a failed reconciliation leaves no trace and the retry reprocesses.
	Seen(ctx context.Context, eventID string) (bool, error)

	// Record inserts the audit row for an event. It returns false when the
	// event id was recorded concurrently by another delivery.
	Record(ctx context.Context, event *models.WebhookEvent) (bool, error)
}

type webhookEventRepo struct {
	db Database
}

func NewWebhookEventRepo(db Database) WebhookEventRepository {
	return &webhookEventRepo{db: db}
}

func (r *webhookEventRepo) Seen(ctx context.Context, eventID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM webhook_events WHERE event_id = $1)`
	var seen bool
	if err := r.db.QueryRow(ctx, query, eventID).Scan(&seen); err != nil {
		return false, err
	}
	return seen, nil
}

func (r *webhookEventRepo) Record(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	query := `
		INSERT INTO webhook_events (event_id, provider, event_type, payload, received_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, event.EventID, event.Provider, event.EventType, event.Payload)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
