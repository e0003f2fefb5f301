package billing

import (
	"time"

	"github.com/google/uuid"

	"subledger/internal/models"
)

// IncomingItem is one line item as reported by a modern-protocol event.
type IncomingItem struct {
	PriceID   string
	ProductID string
	Quantity  int
	UnitPrice float64
	Currency  string
}

// SubscriptionEventMeta carries the subscription-level fields shared by
// every line item of one modern event.
type SubscriptionEventMeta struct {
	WorkspaceID          uuid.UUID
	SubscriptionID       string
	BillingCycleInterval string
	CustomerUserID       *string
}

// ChangeSet is the persistence intent for one event: rows to insert,
// rows to rewrite, and rows to remove. Items are independent; no
// ordering is implied between them.
type ChangeSet struct {
	Create []*models.SubscriptionLineItem
	Update []*models.SubscriptionLineItem
	Delete []*models.SubscriptionLineItem
}

// Empty reports whether the change set carries no work.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Create) == 0 && len(cs.Update) == 0 && len(cs.Delete) == 0
}

// DiffEngine reconciles a modern event's item list against the stored
// line items of the same subscription.
type DiffEngine struct {
	mapper *PlanMapper
}

// NewDiffEngine creates a diff engine using the given plan mapper.
func NewDiffEngine(mapper *PlanMapper) *DiffEngine {
	return &DiffEngine{mapper: mapper}
}

// Diff computes create/update/delete sets keyed by price_id. Stored rows
// absent from the event are deleted, present rows are refreshed with
// their own prior status carried forward, and unseen prices become new
// rows. A new row only seeds past_due_since when its very first status
// is already past_due.
func (e *DiffEngine) Diff(meta SubscriptionEventMeta, stored []*models.SubscriptionLineItem, incoming []IncomingItem, event StateEvent, now time.Time) *ChangeSet {
	byPrice := make(map[string]*models.SubscriptionLineItem, len(stored))
	for _, item := range stored {
		if item.PriceID != nil {
			byPrice[*item.PriceID] = item
		}
	}

	cs := &ChangeSet{}
	seen := make(map[string]bool, len(incoming))

	for _, in := range incoming {
		seen[in.PriceID] = true

		prev, exists := byPrice[in.PriceID]
		prior := PriorState{}
		if exists {
			prior = PriorState{
				Status:                    prev.Status,
				PastDueSince:              prev.PastDueSince,
				CancellationEffectiveDate: prev.CancellationEffectiveDate,
			}
		}
		res := ResolveState(event, prior, now)

		if exists {
			next := *prev
			next.SubscriptionPlanID = in.ProductID
			next.PlanTag = string(e.mapper.ResolvePlanTag(in.ProductID))
			next.Status = res.Status
			next.Quantity = in.Quantity
			next.Currency = in.Currency
			next.UnitPrice = in.UnitPrice
			next.BillingCycleInterval = meta.BillingCycleInterval
			next.CancellationEffectiveDate = res.CancellationEffectiveDate
			next.PastDueSince = res.PastDueSince
			next.CustomerUserID = meta.CustomerUserID
			cs.Update = append(cs.Update, &next)
			continue
		}

		priceID := in.PriceID
		cs.Create = append(cs.Create, &models.SubscriptionLineItem{
			ID:                        uuid.New(),
			WorkspaceID:               meta.WorkspaceID,
			Provider:                  models.ProviderModernV2,
			SubscriptionID:            meta.SubscriptionID,
			PriceID:                   &priceID,
			SubscriptionPlanID:        in.ProductID,
			PlanTag:                   string(e.mapper.ResolvePlanTag(in.ProductID)),
			Status:                    res.Status,
			Quantity:                  in.Quantity,
			Currency:                  in.Currency,
			UnitPrice:                 in.UnitPrice,
			BillingCycleInterval:      meta.BillingCycleInterval,
			CancellationEffectiveDate: res.CancellationEffectiveDate,
			PastDueSince:              res.PastDueSince,
			CustomerUserID:            meta.CustomerUserID,
		})
	}

	for _, item := range stored {
		if item.PriceID == nil || !seen[*item.PriceID] {
			cs.Delete = append(cs.Delete, item)
		}
	}

	return cs
}

// HasLegacyAddonTier reports whether any incoming item carries a
// grandfathered addon-tier price identifier.
func (e *DiffEngine) HasLegacyAddonTier(incoming []IncomingItem) bool {
	for _, in := range incoming {
		if e.mapper.IsLegacyAddonTierPrice(in.PriceID) {
			return true
		}
	}
	return false
}
