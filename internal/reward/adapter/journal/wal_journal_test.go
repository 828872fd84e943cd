package journal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	ledger "github.com/imagaram/sfr-backend-sub001/internal/ledger/domain"
	"github.com/imagaram/sfr-backend-sub001/internal/reward/domain"
)

func sampleResult(eventID string, status domain.ShareStatus) *domain.DistributionResult {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.DistributionResult{
		EventID: eventID,
		Kind:    domain.KindSale,
		SpaceID: 7,
		Base:    decimal.NewFromInt(1000),
		Shares: []domain.Share{
			{Role: domain.RoleBuyer, PartyID: "buyer", Type: ledger.PurchaseReward, Amount: decimal.RequireFromString("12.5"), Status: domain.ShareApplied, TxID: 1},
			{Role: domain.RoleSeller, PartyID: "seller", Type: ledger.SalesReward, Amount: decimal.RequireFromString("12.5"), Status: status},
		},
		StartedAt:  now,
		FinishedAt: now.Add(time.Millisecond),
	}
}

func TestWALJournal_AppendAndFind(t *testing.T) {
	j, err := Open(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, j.Close())
	}()

	first := sampleResult("E1", domain.ShareFailed)
	require.NoError(t, j.Append(first))
	assert.NotEmpty(t, first.ID)
	require.NoError(t, j.Append(sampleResult("E1", domain.ShareApplied)))
	require.NoError(t, j.Append(sampleResult("E2", domain.ShareApplied)))

	recs, err := j.FindByEvent("E1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.False(t, recs[0].Complete())
	assert.True(t, recs[1].Complete())

	none, err := j.FindByEvent("missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWALJournal_ReplaysOnReopen(t *testing.T) {
	dir := t.TempDir()

	j, err := Open(dir, zap.NewNop())
	require.NoError(t, err)
	rec := sampleResult("E9", domain.ShareNotAttempted)
	require.NoError(t, j.Append(rec))
	require.NoError(t, j.Close())

	reopened, err := Open(dir, zap.NewNop())
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, reopened.Close())
	}()

	recs, err := reopened.FindByEvent("E9")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, rec.ID, recs[0].ID)
	assert.Equal(t, domain.ShareNotAttempted, recs[0].Shares[1].Status)
	assert.True(t, decimal.RequireFromString("12.5").Equal(recs[0].Applied()))
}
