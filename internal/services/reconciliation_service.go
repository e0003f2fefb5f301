package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"subledger/internal/billing"
	"subledger/internal/caching"
	"subledger/internal/jobs"
	"subledger/internal/models"
	"subledger/internal/repositories"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrWorkspaceRequired is returned when a create-path event arrives
// without a usable workspace correlation. Update and cancel events for
// never-seen subscriptions are a benign no-op instead.
var ErrWorkspaceRequired = errors.New("workspace correlation is required")

// seenEventTTL bounds the redis fast-path dedupe markers. The
// webhook_events table remains the durable record.
const seenEventTTL = 48 * time.Hour

// ReconciliationService reconciles persisted subscription line items
// with the provider state carried by webhook events. Every handler is
// safe to re-run: providers retry failed deliveries.
type ReconciliationService interface {
	HandleLegacyAlert(ctx context.Context, alert *LegacyAlert) error
	HandleModernEvent(ctx context.Context, event *ModernEvent, rawPayload []byte) error
}

type reconciliationService struct {
	lineItems     repositories.LineItemRepository
	workspaces    repositories.WorkspaceRepository
	webhookEvents repositories.WebhookEventRepository
	cache         caching.CacheService
	mapper        *billing.PlanMapper
	diff          *billing.DiffEngine
	fanout        jobs.FanoutEnqueuer
	now           func() time.Time
}

// NewReconciliationService creates a new ReconciliationService instance
func NewReconciliationService(
	lineItems repositories.LineItemRepository,
	workspaces repositories.WorkspaceRepository,
	webhookEvents repositories.WebhookEventRepository,
	cache caching.CacheService,
	mapper *billing.PlanMapper,
	diff *billing.DiffEngine,
	fanout jobs.FanoutEnqueuer,
) ReconciliationService {
	return &reconciliationService{
		lineItems:     lineItems,
		workspaces:    workspaces,
		webhookEvents: webhookEvents,
		cache:         cache,
		mapper:        mapper,
		diff:          diff,
		fanout:        fanout,
		now:           time.Now,
	}
}

// HandleLegacyAlert reconciles the single line item of a legacy-protocol
// subscription, looked up by its (plan, subscription) natural key.
func (s *reconciliationService) HandleLegacyAlert(ctx context.Context, alert *LegacyAlert) error {
	now := s.now().UTC()

	existing, err := s.lineItems.FindByNaturalKey(ctx, models.ProviderLegacyV1, alert.SubscriptionPlanID, alert.SubscriptionID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to look up line item: %v", err)
	}

	if existing == nil {
		workspaceID, perr := ParsePassthrough(alert.Passthrough)
		if perr != nil {
			if alert.AlertName == AlertSubscriptionCreated {
				return fmt.Errorf("%w: %v", ErrWorkspaceRequired, perr)
			}
			// The event likely predates the workspace's first persisted row.
			log.Printf("legacy webhook: ignoring %s for unknown subscription %s", alert.AlertName, alert.SubscriptionID)
			return nil
		}

		res := billing.ResolveState(alert.StateEvent(), billing.PriorState{}, now)
		item := &models.SubscriptionLineItem{
			ID:                        uuid.New(),
			WorkspaceID:               workspaceID,
			Provider:                  models.ProviderLegacyV1,
			SubscriptionID:            alert.SubscriptionID,
			SubscriptionPlanID:        alert.SubscriptionPlanID,
			PlanTag:                   string(s.mapper.ResolvePlanTag(alert.SubscriptionPlanID)),
			Status:                    res.Status,
			Quantity:                  billing.ResolveQuantity(alert.NewQuantity, alert.Quantity, 1),
			Currency:                  alert.Currency,
			CancellationEffectiveDate: res.CancellationEffectiveDate,
			PastDueSince:              res.PastDueSince,
		}
		if price, err := strconv.ParseFloat(alert.UnitPrice, 64); err == nil {
			item.UnitPrice = price
		}
		if alert.UserID != "" {
			userID := alert.UserID
			item.CustomerUserID = &userID
		}
		return s.lineItems.Upsert(ctx, item)
	}

	prior := billing.PriorState{
		Status:                    existing.Status,
		PastDueSince:              existing.PastDueSince,
		CancellationEffectiveDate: existing.CancellationEffectiveDate,
	}
	res := billing.ResolveState(alert.StateEvent(), prior, now)

	next := *existing
	next.PlanTag = string(s.mapper.ResolvePlanTag(alert.SubscriptionPlanID))
	next.Status = res.Status
	next.Quantity = billing.ResolveQuantity(alert.NewQuantity, alert.Quantity, existing.Quantity)
	next.CancellationEffectiveDate = res.CancellationEffectiveDate
	next.PastDueSince = res.PastDueSince
	if alert.Currency != "" {
		next.Currency = alert.Currency
	}
	if price, err := strconv.ParseFloat(alert.UnitPrice, 64); err == nil {
		next.UnitPrice = price
	}
	return s.lineItems.Upsert(ctx, &next)
}

// HandleModernEvent reconciles every line item of a modern-protocol
// subscription against the event's item list.
func (s *reconciliationService) HandleModernEvent(ctx context.Context, event *ModernEvent, rawPayload []byte) error {
	now := s.now().UTC()

	if event.EventID != "" {
		duplicate, err := s.isDuplicateEvent(ctx, event.EventID)
		if err != nil {
			return err
		}
		if duplicate {
			log.Printf("modern webhook: skipping already-processed event %s", event.EventID)
			return nil
		}
	}

	stored, err := s.lineItems.FindAllBySubscriptionID(ctx, models.ProviderModernV2, event.Data.ID)
	if err != nil {
		return fmt.Errorf("failed to load line items for subscription %s: %v", event.Data.ID, err)
	}

	workspaceID := uuid.Nil
	if event.Data.CustomData != nil {
		if id, err := uuid.Parse(event.Data.CustomData.WorkspaceID); err == nil {
			workspaceID = id
		}
	}
	if workspaceID == uuid.Nil && len(stored) > 0 {
		workspaceID = stored[0].WorkspaceID
	}
	if workspaceID == uuid.Nil {
		if event.EventType == EventSubscriptionCreated {
			return fmt.Errorf("%w: event %s has no workspace reference", ErrWorkspaceRequired, event.EventID)
		}
		log.Printf("modern webhook: ignoring %s for unknown subscription %s", event.EventType, event.Data.ID)
		return nil
	}

	meta := billing.SubscriptionEventMeta{
		WorkspaceID:    workspaceID,
		SubscriptionID: event.Data.ID,
	}
	if event.Data.BillingCycle != nil {
		meta.BillingCycleInterval = event.Data.BillingCycle.Interval
	}
	if event.Data.CustomerID != "" {
		customerID := event.Data.CustomerID
		meta.CustomerUserID = &customerID
	}

	items := event.IncomingItems()
	changeSet := s.diff.Diff(meta, stored, items, event.StateEvent(), now)
	if err := s.lineItems.ApplyChangeSet(ctx, changeSet); err != nil {
		return fmt.Errorf("failed to apply change set for subscription %s: %v", event.Data.ID, err)
	}

	if s.diff.HasLegacyAddonTier(items) {
		if err := s.workspaces.SetLegacyPricing(ctx, workspaceID, true); err != nil {
			return fmt.Errorf("failed to flag legacy pricing for workspace %s: %v", workspaceID, err)
		}
		// Fan-out fires only when the subscription's rows are first
		// persisted. A retried created event finds stored rows and skips
		// it; consumers are idempotent, so the occasional double enqueue
		// from a pre-persistence retry is acceptable.
		if event.EventType == EventSubscriptionCreated && len(stored) == 0 {
			if err := s.fanOutMemberSync(ctx, workspaceID); err != nil {
				// The rows are already persisted; a provider retry would
				// find them and skip this branch, so failing the request
				// could not recover the fan-out anyway.
				log.Printf("modern webhook: member sync fanout failed for workspace %s: %v", workspaceID, err)
			}
		}
	}

	if event.EventID != "" {
		s.markEventProcessed(ctx, event, rawPayload)
	}

	return nil
}

// isDuplicateEvent checks the redis fast path, then the durable
// webhook_events record. Both are read-only: the event id is only
// written once reconciliation succeeds, so a failed attempt stays
// unrecorded and the provider's retry reprocesses it. Cache failures
// only degrade to the DB check.
func (s *reconciliationService) isDuplicateEvent(ctx context.Context, eventID string) (bool, error) {
	seen, err := s.cache.SeenWebhookEvent(ctx, string(models.ProviderModernV2), eventID)
	if err != nil {
		log.Printf("webhook cache check failed for event %s: %v", eventID, err)
	} else if seen {
		return true, nil
	}

	seen, err = s.webhookEvents.Seen(ctx, eventID)
	if err != nil {
		return false, fmt.Errorf("failed to check webhook event %s: %v", eventID, err)
	}
	return seen, nil
}

// markEventProcessed records the event id after a successful
// reconciliation. Failures here are logged, not returned: the rows are
// settled, and a retry without the record just re-runs an idempotent
// reconcile.
func (s *reconciliationService) markEventProcessed(ctx context.Context, event *ModernEvent, rawPayload []byte) {
	if _, err := s.webhookEvents.Record(ctx, &models.WebhookEvent{
		EventID:   event.EventID,
		Provider:  models.ProviderModernV2,
		EventType: event.EventType,
		Payload:   rawPayload,
	}); err != nil {
		log.Printf("failed to record webhook event %s: %v", event.EventID, err)
		return
	}
	if err := s.cache.MarkWebhookEventSeen(ctx, string(models.ProviderModernV2), event.EventID, seenEventTTL); err != nil {
		log.Printf("webhook cache mark failed for event %s: %v", event.EventID, err)
	}
}

func (s *reconciliationService) fanOutMemberSync(ctx context.Context, workspaceID uuid.UUID) error {
	members, err := s.workspaces.ListActiveMemberIDs(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to list workspace members: %v", err)
	}
	if len(members) == 0 {
		return nil
	}
	return s.fanout.EnqueueMemberSync(ctx, workspaceID, members)
}
