package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/imagaram/sfr-backend-sub001/internal/ledger/adapter/repo"
	"github.com/imagaram/sfr-backend-sub001/internal/ledger/domain"
)

func setupStats(t *testing.T) (*LedgerService, *StatsService, *gorm.DB) {
	t.Helper()
	ledger, db := setupLedger(t)
	stats := NewStatsService(repo.NewBalanceRepo(db), repo.NewTransactionRepo(db), zap.NewNop())
	return ledger, stats, db
}

func seedStats(t *testing.T, ledger *LedgerService) {
	t.Helper()
	ctx := context.Background()
	seed := []MutationRequest{
		{PartyID: "a", SpaceID: 1, Amount: d("10"), Type: domain.PurchaseReward},
		{PartyID: "b", SpaceID: 1, Amount: d("30"), Type: domain.SalesReward},
		{PartyID: "platform-reserve", SpaceID: 1, Amount: d("5"), Type: domain.PlatformReserve},
		{PartyID: "c", SpaceID: 2, Amount: d("20"), Type: domain.Adjustment},
	}
	for _, req := range seed {
		_, err := ledger.Credit(ctx, req)
		require.NoError(t, err)
	}
	// 空账户：计入总数，不计入活跃
	_, err := ledger.GetOrCreate(ctx, "empty", 1)
	require.NoError(t, err)
	require.NoError(t, ledger.Freeze(ctx, "c", 2))
}

func TestStatsService_Supply(t *testing.T) {
	ledger, stats, _ := setupStats(t)
	seedStats(t, ledger)
	ctx := context.Background()

	assertDecimal(t, "65", stats.TotalSupply(ctx))
	assertDecimal(t, "45", stats.ActiveSupply(ctx))
	assertDecimal(t, "20", stats.FrozenSupply(ctx))
	assertDecimal(t, "45", stats.SpaceSupply(ctx, 1))

	supply := stats.Supply(ctx)
	assertDecimal(t, "0.6923", supply.CirculationRate)
}

func TestStatsService_Distribution(t *testing.T) {
	ledger, stats, _ := setupStats(t)
	seedStats(t, ledger)
	ctx := context.Background()

	dist := stats.Distribution(ctx)
	assert.Equal(t, int64(5), dist.TotalAccounts)
	assert.Equal(t, int64(3), dist.ActiveAccounts)
	// 正余额: 5 10 20 30
	assertDecimal(t, "16.25", dist.AverageBalance)
	assertDecimal(t, "15", dist.MedianBalance)
}

func TestStatsService_Space(t *testing.T) {
	ledger, stats, _ := setupStats(t)
	seedStats(t, ledger)
	ctx := context.Background()

	_, err := ledger.Debit(ctx, MutationRequest{PartyID: "b", SpaceID: 1, Amount: d("6"), Type: domain.ExchangeToJPY})
	require.NoError(t, err)

	space := stats.Space(ctx, 1)
	assert.Equal(t, int64(3), space.ActiveUsers)
	assertDecimal(t, "39", space.TotalSupply)
	assertDecimal(t, "13", space.AverageBalance)
	assertDecimal(t, "45", space.IssuedAmount)
	assertDecimal(t, "5", space.PlatformReserve)

	empty := stats.Space(ctx, 99)
	assert.Equal(t, int64(0), empty.ActiveUsers)
	assertDecimal(t, "0", empty.AverageBalance)
}

func TestStatsService_Health(t *testing.T) {
	ledger, stats, db := setupStats(t)
	ctx := context.Background()

	report := stats.Health(ctx)
	assert.True(t, report.Healthy)
	assert.Empty(t, report.Issues)

	seedStats(t, ledger)
	report = stats.Health(ctx)
	assert.True(t, report.Healthy)
	assert.Empty(t, report.Issues)

	require.NoError(t, db.Model(&domain.Balance{}).
		Where("party_id = ?", "b").
		Update("current_balance", d("-100")).Error)
	report = stats.Health(ctx)
	assert.False(t, report.Healthy)
	assert.Contains(t, report.Issues, "negative total supply detected")
}

func TestStatsService_LowActiveRatioIsAnIssueOnly(t *testing.T) {
	ledger, stats, _ := setupStats(t)
	ctx := context.Background()

	_, err := ledger.Credit(ctx, MutationRequest{PartyID: "rich", SpaceID: 1, Amount: d("1"), Type: domain.Migration})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err := ledger.GetOrCreate(ctx, string(rune('a'+i)), 1)
		require.NoError(t, err)
	}

	report := stats.Health(ctx)
	assert.True(t, report.Healthy)
	assert.Equal(t, []string{"low active account ratio"}, report.Issues)
}

func TestStatsService_FailuresFallBackToDefaults(t *testing.T) {
	ledger, stats, db := setupStats(t)
	seedStats(t, ledger)
	ctx := context.Background()

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	assertDecimal(t, "0", stats.TotalSupply(ctx))
	assert.Equal(t, int64(0), stats.TotalAccounts(ctx))
	assertDecimal(t, "0", stats.MedianBalance(ctx))
	assertDecimal(t, "0", stats.IssuedAmount(ctx, 1))

	supply := stats.Supply(ctx)
	assertDecimal(t, "0", supply.CirculationRate)

	report := stats.Health(ctx)
	assert.True(t, report.Healthy)
}
