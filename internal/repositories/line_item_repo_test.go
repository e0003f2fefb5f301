package repositories

import (
	"context"
	"testing"
	"time"

	"subledger/internal/billing"
	"subledger/internal/models"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type LineItemRepoTestSuite struct {
	suite.Suite
	mock        pgxmock.PgxPoolIface
	repo        LineItemRepository
	workspaceID uuid.UUID
	context     context.Context
}

func (suite *LineItemRepoTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	assert.NoError(suite.T(), err)
	suite.mock = mock

	suite.repo = NewLineItemRepo(mock)
	suite.workspaceID = uuid.New()
	suite.context = context.Background()
}

func (suite *LineItemRepoTestSuite) TearDownTest() {
	suite.mock.Close()
}

func TestLineItemRepoTestSuite(t *testing.T) {
	suite.Run(t, new(LineItemRepoTestSuite))
}

// anyArgs returns n pgxmock.AnyArg() matchers; pgxmock requires the
// expected argument count to match even when values are unconstrained.
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func (suite *LineItemRepoTestSuite) lineItemRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "workspace_id", "provider", "subscription_id", "price_id",
		"subscription_plan_id", "plan_tag", "status", "quantity", "currency",
		"unit_price", "billing_cycle_interval", "cancellation_effective_date",
		"past_due_since", "customer_user_id", "created_at", "updated_at",
	})
}

func (suite *LineItemRepoTestSuite) TestFindByNaturalKey_Success() {
	itemID := uuid.New()
	now := time.Now()

	rows := suite.lineItemRows().AddRow(
		itemID, suite.workspaceID, models.ProviderLegacyV1, "88123", (*string)(nil),
		"563211", "BUSINESS", models.StatusActive, 2, "USD",
		24.0, "", (*time.Time)(nil), (*time.Time)(nil), (*string)(nil), now, now,
	)
	suite.mock.ExpectQuery(`SELECT (.+) FROM subscription_line_items`).
		WithArgs(models.ProviderLegacyV1, "563211", "88123").
		WillReturnRows(rows)

	item, err := suite.repo.FindByNaturalKey(suite.context, models.ProviderLegacyV1, "563211", "88123")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), itemID, item.ID)
	assert.Equal(suite.T(), models.StatusActive, item.Status)
	assert.Equal(suite.T(), 2, item.Quantity)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *LineItemRepoTestSuite) TestFindByNaturalKey_NotFound() {
	suite.mock.ExpectQuery(`SELECT (.+) FROM subscription_line_items`).
		WithArgs(models.ProviderLegacyV1, "563211", "no-such").
		WillReturnError(pgx.ErrNoRows)

	item, err := suite.repo.FindByNaturalKey(suite.context, models.ProviderLegacyV1, "563211", "no-such")
	assert.Nil(suite.T(), item)
	assert.ErrorIs(suite.T(), err, pgx.ErrNoRows)
}

func (suite *LineItemRepoTestSuite) TestFindAllBySubscriptionID() {
	now := time.Now()
	price1, price2 := "pri_a", "pri_b"

	rows := suite.lineItemRows().
		AddRow(uuid.New(), suite.workspaceID, models.ProviderModernV2, "sub_1", &price1,
			"pro_a", "BUSINESS", models.StatusActive, 1, "USD",
			24.0, "month", (*time.Time)(nil), (*time.Time)(nil), (*string)(nil), now, now).
		AddRow(uuid.New(), suite.workspaceID, models.ProviderModernV2, "sub_1", &price2,
			"pro_b", "DEPARTMENT_ADDON", models.StatusActive, 3, "USD",
			15.0, "month", (*time.Time)(nil), (*time.Time)(nil), (*string)(nil), now, now)
	suite.mock.ExpectQuery(`SELECT (.+) FROM subscription_line_items`).
		WithArgs(models.ProviderModernV2, "sub_1").
		WillReturnRows(rows)

	items, err := suite.repo.FindAllBySubscriptionID(suite.context, models.ProviderModernV2, "sub_1")
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), items, 2)
	assert.Equal(suite.T(), "pri_a", *items[0].PriceID)
	assert.Equal(suite.T(), "pri_b", *items[1].PriceID)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *LineItemRepoTestSuite) TestUpsert_Success() {
	item := &models.SubscriptionLineItem{
		ID:                 uuid.New(),
		WorkspaceID:        suite.workspaceID,
		Provider:           models.ProviderLegacyV1,
		SubscriptionID:     "88123",
		SubscriptionPlanID: "563211",
		PlanTag:            "BUSINESS",
		Status:             models.StatusActive,
		Quantity:           2,
		Currency:           "USD",
		UnitPrice:          24.0,
	}

	suite.mock.ExpectExec(`INSERT INTO subscription_line_items (.+) ON CONFLICT \(subscription_id, subscription_plan_id\)`).
		WithArgs(item.ID, item.WorkspaceID, item.Provider, item.SubscriptionID,
			item.PriceID, item.SubscriptionPlanID, item.PlanTag, item.Status,
			item.Quantity, item.Currency, item.UnitPrice, item.BillingCycleInterval,
			item.CancellationEffectiveDate, item.PastDueSince, item.CustomerUserID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(suite.T(), suite.repo.Upsert(suite.context, item))
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *LineItemRepoTestSuite) TestApplyChangeSet_Empty() {
	assert.NoError(suite.T(), suite.repo.ApplyChangeSet(suite.context, &billing.ChangeSet{}))
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *LineItemRepoTestSuite) TestApplyChangeSet_BatchInOneTransaction() {
	price := "pri_a"
	created := &models.SubscriptionLineItem{
		ID: uuid.New(), WorkspaceID: suite.workspaceID, Provider: models.ProviderModernV2,
		SubscriptionID: "sub_1", PriceID: &price, SubscriptionPlanID: "pro_a",
		PlanTag: "BUSINESS", Status: models.StatusActive, Quantity: 1, Currency: "USD",
	}
	updated := &models.SubscriptionLineItem{
		ID: uuid.New(), SubscriptionPlanID: "pro_b", PlanTag: "SMALLTEAM",
		Status: models.StatusActive, Quantity: 2, Currency: "USD",
	}
	deleted := &models.SubscriptionLineItem{ID: uuid.New()}

	suite.mock.ExpectBegin()
	batch := suite.mock.ExpectBatch()
	batch.ExpectExec(`INSERT INTO subscription_line_items`).
		WithArgs(anyArgs(15)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	batch.ExpectExec(`UPDATE subscription_line_items`).
		WithArgs(anyArgs(11)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	batch.ExpectExec(`DELETE FROM subscription_line_items`).
		WithArgs(deleted.ID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	suite.mock.ExpectCommit()
	suite.mock.ExpectRollback()

	cs := &billing.ChangeSet{
		Create: []*models.SubscriptionLineItem{created},
		Update: []*models.SubscriptionLineItem{updated},
		Delete: []*models.SubscriptionLineItem{deleted},
	}
	assert.NoError(suite.T(), suite.repo.ApplyChangeSet(suite.context, cs))
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *LineItemRepoTestSuite) TestApplyChangeSet_ItemFailureRollsBack() {
	deleted := &models.SubscriptionLineItem{ID: uuid.New()}

	suite.mock.ExpectBegin()
	batch := suite.mock.ExpectBatch()
	batch.ExpectExec(`DELETE FROM subscription_line_items`).
		WithArgs(deleted.ID).
		WillReturnError(assert.AnError)
	suite.mock.ExpectRollback()

	err := suite.repo.ApplyChangeSet(suite.context, &billing.ChangeSet{
		Delete: []*models.SubscriptionLineItem{deleted},
	})
	assert.Error(suite.T(), err)
	assert.ErrorIs(suite.T(), err, assert.AnError)
}

func (suite *LineItemRepoTestSuite) TestFindPrimaryPlanOverlaps() {
	overlapping := uuid.New()
	rows := pgxmock.NewRows([]string{"workspace_id", "count"}).
		AddRow(overlapping, 2)
	suite.mock.ExpectQuery(`SELECT workspace_id, COUNT\(DISTINCT plan_tag\)`).
		WithArgs([]string{"ENTERPRISE", "BUSINESS"}).
		WillReturnRows(rows)

	overlaps, err := suite.repo.FindPrimaryPlanOverlaps(suite.context, []string{"ENTERPRISE", "BUSINESS"})
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), overlaps, 1)
	assert.Equal(suite.T(), overlapping, overlaps[0].WorkspaceID)
	assert.Equal(suite.T(), 2, overlaps[0].ActivePrimaryTags)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}
