package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subledger/internal/models"
)

func storedItem(subscriptionID, priceID, productID string, status models.LineItemStatus) *models.SubscriptionLineItem {
	pid := priceID
	return &models.SubscriptionLineItem{
		ID:                 uuid.New(),
		WorkspaceID:        uuid.New(),
		Provider:           models.ProviderModernV2,
		SubscriptionID:     subscriptionID,
		PriceID:            &pid,
		SubscriptionPlanID: productID,
		Status:             status,
		Quantity:           1,
	}
}

func TestDiff_CreateUpdateDelete(t *testing.T) {
	engine := NewDiffEngine(NewPlanMapper(false))
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	keptPrice := "pri_01hsb2d9cd4e6g8j2l4n6q8s1u"  // BUSINESS
	gonePrice := "pri_01hsb2ddef6g8j1l3n5q7s9u2w"  // SMALLTEAM
	newPrice := "pri_01hsb2dhgh8j2l4n6q8s1u3w5y"   // DEPARTMENT_ADDON
	keptProduct := "pro_01hsb2cf3t9w7y5v4u2s1q8e6d"
	newProduct := "pro_01hsb2cq2h8j6g4d2s9a7p5w3e"

	stored := []*models.SubscriptionLineItem{
		storedItem("sub_1", keptPrice, keptProduct, models.StatusActive),
		storedItem("sub_1", gonePrice, "pro_01hsb2cktm6n4b8x7z5c3v1a9f", models.StatusActive),
	}
	incoming := []IncomingItem{
		{PriceID: keptPrice, ProductID: keptProduct, Quantity: 4, UnitPrice: 49, Currency: "USD"},
		{PriceID: newPrice, ProductID: newProduct, Quantity: 2, UnitPrice: 15, Currency: "USD"},
	}
	meta := SubscriptionEventMeta{
		WorkspaceID:          stored[0].WorkspaceID,
		SubscriptionID:       "sub_1",
		BillingCycleInterval: "month",
	}

	cs := engine.Diff(meta, stored, incoming, StateEvent{NativeStatus: "active"}, now)

	require.Len(t, cs.Create, 1)
	require.Len(t, cs.Update, 1)
	require.Len(t, cs.Delete, 1)
	assert.False(t, cs.Empty())

	created := cs.Create[0]
	assert.Equal(t, newPrice, *created.PriceID)
	assert.Equal(t, string(PlanDepartmentAddon), created.PlanTag)
	assert.Equal(t, models.StatusActive, created.Status)
	assert.Equal(t, 2, created.Quantity)
	assert.Equal(t, "month", created.BillingCycleInterval)
	assert.Nil(t, created.PastDueSince)

	updated := cs.Update[0]
	assert.Equal(t, stored[0].ID, updated.ID)
	assert.Equal(t, 4, updated.Quantity)
	assert.Equal(t, float64(49), updated.UnitPrice)

	assert.Equal(t, gonePrice, *cs.Delete[0].PriceID)
}

func TestDiff_EmptyIncomingDeletesAll(t *testing.T) {
	engine := NewDiffEngine(NewPlanMapper(false))
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	stored := []*models.SubscriptionLineItem{
		storedItem("sub_1", "pri_01hsb2d9cd4e6g8j2l4n6q8s1u", "pro_01hsb2cf3t9w7y5v4u2s1q8e6d", models.StatusActive),
	}

	cs := engine.Diff(SubscriptionEventMeta{SubscriptionID: "sub_1"}, stored, nil, StateEvent{NativeStatus: "canceled"}, now)

	assert.Empty(t, cs.Create)
	assert.Empty(t, cs.Update)
	assert.Len(t, cs.Delete, 1)
}

func TestDiff_NewItemSeedsPastDueOnFirstSight(t *testing.T) {
	engine := NewDiffEngine(NewPlanMapper(false))
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	incoming := []IncomingItem{
		{PriceID: "pri_01hsb2d5ab2c4e6g8j1l3n5q7s", ProductID: "pro_01hsb2c9qdx4e8f2k3m1n0p7r2", Quantity: 1},
	}

	cs := engine.Diff(SubscriptionEventMeta{WorkspaceID: uuid.New(), SubscriptionID: "sub_1"},
		nil, incoming, StateEvent{NativeStatus: "past_due"}, now)

	require.Len(t, cs.Create, 1)
	require.NotNil(t, cs.Create[0].PastDueSince)
	assert.Equal(t, now, *cs.Create[0].PastDueSince)
}

func TestDiff_UpdateCarriesPerItemPriorState(t *testing.T) {
	engine := NewDiffEngine(NewPlanMapper(false))
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	marker := base.Add(-48 * time.Hour)

	item := storedItem("sub_1", "pri_01hsb2d9cd4e6g8j2l4n6q8s1u", "pro_01hsb2cf3t9w7y5v4u2s1q8e6d", models.StatusPastDue)
	item.PastDueSince = &marker

	incoming := []IncomingItem{
		{PriceID: *item.PriceID, ProductID: item.SubscriptionPlanID, Quantity: 1},
	}

	// Still past due: the original marker survives the refresh.
	cs := engine.Diff(SubscriptionEventMeta{SubscriptionID: "sub_1"},
		[]*models.SubscriptionLineItem{item}, incoming, StateEvent{NativeStatus: "past_due"}, base)
	require.Len(t, cs.Update, 1)
	require.NotNil(t, cs.Update[0].PastDueSince)
	assert.Equal(t, marker, *cs.Update[0].PastDueSince)

	// Recovery clears it.
	cs = engine.Diff(SubscriptionEventMeta{SubscriptionID: "sub_1"},
		[]*models.SubscriptionLineItem{item}, incoming, StateEvent{NativeStatus: "active"}, base)
	require.Len(t, cs.Update, 1)
	assert.Nil(t, cs.Update[0].PastDueSince)
}

func TestDiff_DoesNotMutateStoredRows(t *testing.T) {
	engine := NewDiffEngine(NewPlanMapper(false))
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	item := storedItem("sub_1", "pri_01hsb2d9cd4e6g8j2l4n6q8s1u", "pro_01hsb2cf3t9w7y5v4u2s1q8e6d", models.StatusActive)
	incoming := []IncomingItem{
		{PriceID: *item.PriceID, ProductID: item.SubscriptionPlanID, Quantity: 9},
	}

	engine.Diff(SubscriptionEventMeta{SubscriptionID: "sub_1"},
		[]*models.SubscriptionLineItem{item}, incoming, StateEvent{NativeStatus: "active"}, now)

	assert.Equal(t, 1, item.Quantity)
}

func TestHasLegacyAddonTier(t *testing.T) {
	engine := NewDiffEngine(NewPlanMapper(false))

	assert.True(t, engine.HasLegacyAddonTier([]IncomingItem{
		{PriceID: "pri_01hsb2d5ab2c4e6g8j1l3n5q7s"},
		{PriceID: "pri_01hsb2dmij1l3n5q7s9u2w4y6a"},
	}))
	assert.False(t, engine.HasLegacyAddonTier([]IncomingItem{
		{PriceID: "pri_01hsb2d5ab2c4e6g8j1l3n5q7s"},
	}))
	assert.False(t, engine.HasLegacyAddonTier(nil))
}
