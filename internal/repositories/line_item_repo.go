package repositories

import (
	"context"
	"errors"
	"fmt"

	"subledger/internal/billing"
	"subledger/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Database is the subset of pgxpool.Pool the repositories need. pgxmock
// satisfies it in tests.
type Database interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PlanOverlap flags a workspace holding more than one active primary
// plan tag at once.
type PlanOverlap struct {
	WorkspaceID       uuid.UUID
	ActivePrimaryTags int
}

type LineItemRepository interface {
	FindByNaturalKey(ctx context.Context, provider models.Provider, subscriptionPlanID, subscriptionID string) (*models.SubscriptionLineItem, error)
	FindAllBySubscriptionID(ctx context.Context, provider models.Provider, subscriptionID string) ([]*models.SubscriptionLineItem, error)
	Upsert(ctx context.Context, item *models.SubscriptionLineItem) error
	ApplyChangeSet(ctx context.Context, cs *billing.ChangeSet) error
	FindPrimaryPlanOverlaps(ctx context.Context, primaryTags []string) ([]PlanOverlap, error)
}

type lineItemRepo struct {
	db Database
}

func NewLineItemRepo(db Database) LineItemRepository {
	return &lineItemRepo{db: db}
}

const lineItemColumns = `id, workspace_id, provider, subscription_id, price_id, subscription_plan_id, plan_tag, status, quantity, currency, unit_price, billing_cycle_interval, cancellation_effective_date, past_due_since, customer_user_id, created_at, updated_at`

func scanLineItem(row pgx.Row) (*models.SubscriptionLineItem, error) {
	item := &models.SubscriptionLineItem{}
	err := row.Scan(
		&item.ID, &item.WorkspaceID, &item.Provider, &item.SubscriptionID,
		&item.PriceID, &item.SubscriptionPlanID, &item.PlanTag, &item.Status,
		&item.Quantity, &item.Currency, &item.UnitPrice, &item.BillingCycleInterval,
		&item.CancellationEffectiveDate, &item.PastDueSince, &item.CustomerUserID,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *lineItemRepo) FindByNaturalKey(ctx context.Context, provider models.Provider, subscriptionPlanID, subscriptionID string) (*models.SubscriptionLineItem, error) {
	query := `
		SELECT ` + lineItemColumns + `
		FROM subscription_line_items
		WHERE provider = $1 AND subscription_plan_id = $2 AND subscription_id = $3
	`
	return scanLineItem(r.db.QueryRow(ctx, query, provider, subscriptionPlanID, subscriptionID))
}

func (r *lineItemRepo) FindAllBySubscriptionID(ctx context.Context, provider models.Provider, subscriptionID string) ([]*models.SubscriptionLineItem, error) {
	query := `
		SELECT ` + lineItemColumns + `
		FROM subscription_line_items
		WHERE provider = $1 AND subscription_id = $2
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, provider, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.SubscriptionLineItem
	for rows.Next() {
		item, err := scanLineItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

const upsertLegacySQL = `
		INSERT INTO subscription_line_items (` + lineItemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
		ON CONFLICT (subscription_id, subscription_plan_id) WHERE provider = 'legacy_v1'
		DO UPDATE SET
			workspace_id = EXCLUDED.workspace_id,
			plan_tag = EXCLUDED.plan_tag,
			status = EXCLUDED.status,
			quantity = EXCLUDED.quantity,
			currency = EXCLUDED.currency,
			unit_price = EXCLUDED.unit_price,
			billing_cycle_interval = EXCLUDED.billing_cycle_interval,
			cancellation_effective_date = EXCLUDED.cancellation_effective_date,
			past_due_since = EXCLUDED.past_due_since,
			customer_user_id = EXCLUDED.customer_user_id,
			updated_at = NOW()
	`

// Upsert writes a legacy line item by its natural key. Concurrent
// first-seen deliveries for the same subscription converge on one row
// instead of racing a separate existence check.
func (r *lineItemRepo) Upsert(ctx context.Context, item *models.SubscriptionLineItem) error {
	_, err := r.db.Exec(ctx, upsertLegacySQL,
		item.ID, item.WorkspaceID, item.Provider, item.SubscriptionID,
		item.PriceID, item.SubscriptionPlanID, item.PlanTag, item.Status,
		item.Quantity, item.Currency, item.UnitPrice, item.BillingCycleInterval,
		item.CancellationEffectiveDate, item.PastDueSince, item.CustomerUserID,
	)
	return err
}

const insertModernSQL = `
		INSERT INTO subscription_line_items (` + lineItemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
		ON CONFLICT (subscription_id, price_id) WHERE provider = 'modern_v2'
		DO UPDATE SET
			workspace_id = EXCLUDED.workspace_id,
			subscription_plan_id = EXCLUDED.subscription_plan_id,
			plan_tag = EXCLUDED.plan_tag,
			status = EXCLUDED.status,
			quantity = EXCLUDED.quantity,
			currency = EXCLUDED.currency,
			unit_price = EXCLUDED.unit_price,
			billing_cycle_interval = EXCLUDED.billing_cycle_interval,
			cancellation_effective_date = EXCLUDED.cancellation_effective_date,
			past_due_since = EXCLUDED.past_due_since,
			customer_user_id = EXCLUDED.customer_user_id,
			updated_at = NOW()
	`

const updateByIDSQL = `
		UPDATE subscription_line_items
		SET subscription_plan_id = $1, plan_tag = $2, status = $3, quantity = $4, currency = $5, unit_price = $6, billing_cycle_interval = $7, cancellation_effective_date = $8, past_due_since = $9, customer_user_id = $10, updated_at = NOW()
		WHERE id = $11
	`

const deleteByIDSQL = `DELETE FROM subscription_line_items WHERE id = $1`

// ApplyChangeSet executes one event's create/update/delete intent as a
// single batch inside one transaction, so all items of the event settle
// together. Per-item errors are collected rather than masked.
func (r *lineItemRepo) ApplyChangeSet(ctx context.Context, cs *billing.ChangeSet) error {
	if cs.Empty() {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, item := range cs.Create {
		batch.Queue(insertModernSQL,
			item.ID, item.WorkspaceID, item.Provider, item.SubscriptionID,
			item.PriceID, item.SubscriptionPlanID, item.PlanTag, item.Status,
			item.Quantity, item.Currency, item.UnitPrice, item.BillingCycleInterval,
			item.CancellationEffectiveDate, item.PastDueSince, item.CustomerUserID,
		)
	}
	for _, item := range cs.Update {
		batch.Queue(updateByIDSQL,
			item.SubscriptionPlanID, item.PlanTag, item.Status, item.Quantity,
			item.Currency, item.UnitPrice, item.BillingCycleInterval,
			item.CancellationEffectiveDate, item.PastDueSince, item.CustomerUserID,
			item.ID,
		)
	}
	for _, item := range cs.Delete {
		batch.Queue(deleteByIDSQL, item.ID)
	}

	results := tx.SendBatch(ctx, batch)
	var itemErrs []error
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			itemErrs = append(itemErrs, err)
		}
	}
	if err := results.Close(); err != nil {
		itemErrs = append(itemErrs, err)
	}
	if len(itemErrs) > 0 {
		return fmt.Errorf("change set failed for %d of %d items: %w", len(itemErrs), batch.Len(), errors.Join(itemErrs...))
	}

	return tx.Commit(ctx)
}

func (r *lineItemRepo) FindPrimaryPlanOverlaps(ctx context.Context, primaryTags []string) ([]PlanOverlap, error) {
	query := `
		SELECT workspace_id, COUNT(DISTINCT plan_tag)
		FROM subscription_line_items
		WHERE status = 'active' AND plan_tag = ANY($1)
		GROUP BY workspace_id
		HAVING COUNT(DISTINCT plan_tag) > 1
	`
	rows, err := r.db.Query(ctx, query, primaryTags)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overlaps []PlanOverlap
	for rows.Next() {
		var o PlanOverlap
		if err := rows.Scan(&o.WorkspaceID, &o.ActivePrimaryTags); err != nil {
			return nil, err
		}
		overlaps = append(overlaps, o)
	}
	return overlaps, rows.Err()
}
