package services

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"subledger/internal/billing"

	"github.com/google/uuid"
)

// Legacy protocol alert names
const (
	AlertSubscriptionCreated   = "subscription_created"
	AlertSubscriptionUpdated   = "subscription_updated"
	AlertSubscriptionCancelled = "subscription_cancelled"
)

// Modern protocol event types
const (
	EventSubscriptionCreated  = "subscription.created"
	EventSubscriptionUpdated  = "subscription.updated"
	EventSubscriptionCanceled = "subscription.canceled"
)

// KnownLegacyAlert reports whether the alert name is one this core
// reconciles. Anything else is accepted and ignored.
func KnownLegacyAlert(name string) bool {
	switch name {
	case AlertSubscriptionCreated, AlertSubscriptionUpdated, AlertSubscriptionCancelled:
		return true
	}
	return false
}

// KnownModernEventType reports whether the event type is one this core
// reconciles.
func KnownModernEventType(eventType string) bool {
	switch eventType {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionCanceled:
		return true
	}
	return false
}

// LegacyAlert is a flat legacy-protocol webhook payload after signature
// verification. All fields arrive as strings.
type LegacyAlert struct {
	AlertName                 string
	SubscriptionID            string
	SubscriptionPlanID        string
	Status                    string
	Quantity                  string
	NewQuantity               string
	Currency                  string
	UnitPrice                 string
	CancellationEffectiveDate string
	UserID                    string
	Passthrough               string
}

// LegacyAlertFromPayload extracts the fields this core consumes from a
// verified legacy payload.
func LegacyAlertFromPayload(payload map[string]interface{}) *LegacyAlert {
	str := func(key string) string {
		s, _ := payload[key].(string)
		return s
	}
	return &LegacyAlert{
		AlertName:                 str("alert_name"),
		SubscriptionID:            str("subscription_id"),
		SubscriptionPlanID:        str("subscription_plan_id"),
		Status:                    str("status"),
		Quantity:                  str("quantity"),
		NewQuantity:               str("new_quantity"),
		Currency:                  str("currency"),
		UnitPrice:                 str("unit_price"),
		CancellationEffectiveDate: str("cancellation_effective_date"),
		UserID:                    str("user_id"),
		Passthrough:               str("passthrough"),
	}
}

// ParsePassthrough decodes the provider-opaque passthrough blob this
// system round-trips to correlate events back to a workspace.
func ParsePassthrough(raw string) (uuid.UUID, error) {
	var passthrough struct {
		WorkspaceID string `json:"workspace_id"`
	}
	if err := json.Unmarshal([]byte(raw), &passthrough); err != nil {
		return uuid.Nil, fmt.Errorf("unparsable passthrough: %v", err)
	}
	workspaceID, err := uuid.Parse(passthrough.WorkspaceID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("passthrough workspace_id is not a UUID: %v", err)
	}
	return workspaceID, nil
}

var legacyDateLayouts = []string{"2006-01-02 15:04:05", "2006-01-02", time.RFC3339}

func parseLegacyDate(s string) (time.Time, bool) {
	for _, layout := range legacyDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// StateEvent maps a legacy alert onto the provider-neutral state input.
// A cancellation alert with an effective date becomes a scheduled cancel;
// without one it is an immediate unsubscribe.
func (a *LegacyAlert) StateEvent() billing.StateEvent {
	if a.AlertName == AlertSubscriptionCancelled {
		if effective, ok := parseLegacyDate(a.CancellationEffectiveDate); ok {
			return billing.StateEvent{
				ScheduledChange: &billing.ScheduledChange{Action: "cancel", EffectiveAt: effective},
			}
		}
		return billing.StateEvent{NativeStatus: "cancelled"}
	}
	return billing.StateEvent{NativeStatus: a.Status}
}

// ModernEvent is the nested modern-protocol webhook envelope.
type ModernEvent struct {
	EventID   string             `json:"event_id"`
	EventType string             `json:"event_type"`
	Data      ModernSubscription `json:"data"`
}

type ModernSubscription struct {
	ID              string                 `json:"id"`
	Status          string                 `json:"status"`
	CurrencyCode    string                 `json:"currency_code"`
	CustomerID      string                 `json:"customer_id"`
	ScheduledChange *ModernScheduledChange `json:"scheduled_change"`
	CustomData      *ModernCustomData      `json:"custom_data"`
	BillingCycle    *ModernBillingCycle    `json:"billing_cycle"`
	Items           []ModernItem           `json:"items"`
}

type ModernScheduledChange struct {
	Action      string    `json:"action"`
	EffectiveAt time.Time `json:"effective_at"`
}

type ModernCustomData struct {
	WorkspaceID string `json:"workspace_id"`
}

type ModernBillingCycle struct {
	Interval  string `json:"interval"`
	Frequency int    `json:"frequency"`
}

type ModernItem struct {
	Price    ModernPrice `json:"price"`
	Quantity int         `json:"quantity"`
}

type ModernPrice struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	UnitPrice ModernUnitPrice `json:"unit_price"`
}

type ModernUnitPrice struct {
	// Amount is in the currency's lowest denomination, as a string.
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currency_code"`
}

// StateEvent maps the envelope onto the provider-neutral state input.
func (e *ModernEvent) StateEvent() billing.StateEvent {
	ev := billing.StateEvent{NativeStatus: e.Data.Status}
	if sc := e.Data.ScheduledChange; sc != nil {
		ev.ScheduledChange = &billing.ScheduledChange{Action: sc.Action, EffectiveAt: sc.EffectiveAt}
	}
	return ev
}

// IncomingItems flattens the envelope's item list for the diff engine.
func (e *ModernEvent) IncomingItems() []billing.IncomingItem {
	items := make([]billing.IncomingItem, 0, len(e.Data.Items))
	for _, item := range e.Data.Items {
		amount, _ := strconv.ParseFloat(item.Price.UnitPrice.Amount, 64)
		currency := item.Price.UnitPrice.CurrencyCode
		if currency == "" {
			currency = e.Data.CurrencyCode
		}
		items = append(items, billing.IncomingItem{
			PriceID:   item.Price.ID,
			ProductID: item.Price.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: amount,
			Currency:  currency,
		})
	}
	return items
}
