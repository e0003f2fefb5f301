package models

import (
	"time"

	"github.com/google/uuid"
)

// Provider identifies which billing provider protocol a line item
// originated from.
type Provider string

const (
	ProviderLegacyV1 Provider = "legacy_v1"
	ProviderModernV2 Provider = "modern_v2"
)

// LineItemStatus is the normalized subscription line item status.
type LineItemStatus string

const (
	StatusActive   LineItemStatus = "active"
	StatusTrialing LineItemStatus = "trialing"
	StatusPaused   LineItemStatus = "paused"
	StatusPastDue  LineItemStatus = "past_due"
	StatusDeleted  LineItemStatus = "deleted"
)

// SubscriptionLineItem is one priced component (plan or addon) of a
// provider subscription. Legacy subscriptions carry exactly one line item
// (PriceID nil); modern subscriptions carry one row per price.
type SubscriptionLineItem struct {
	ID                        uuid.UUID      `json:"id" db:"id"`
	WorkspaceID               uuid.UUID      `json:"workspace_id" db:"workspace_id"`
	Provider                  Provider       `json:"provider" db:"provider"`
	SubscriptionID            string         `json:"subscription_id" db:"subscription_id"`
	PriceID                   *string        `json:"price_id" db:"price_id"`
	SubscriptionPlanID        string         `json:"subscription_plan_id" db:"subscription_plan_id"`
	PlanTag                   string         `json:"plan_tag" db:"plan_tag"`
	Status                    LineItemStatus `json:"status" db:"status"`
	Quantity                  int            `json:"quantity" db:"quantity"`
	Currency                  string         `json:"currency" db:"currency"`
	UnitPrice                 float64        `json:"unit_price" db:"unit_price"`
	BillingCycleInterval      string         `json:"billing_cycle_interval" db:"billing_cycle_interval"`
	CancellationEffectiveDate *time.Time     `json:"cancellation_effective_date" db:"cancellation_effective_date"`
	PastDueSince              *time.Time     `json:"past_due_since" db:"past_due_since"`
	CustomerUserID            *string        `json:"customer_user_id" db:"customer_user_id"`
	CreatedAt                 time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt                 time.Time      `json:"updated_at" db:"updated_at"`
}
