package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledger "github.com/imagaram/sfr-backend-sub001/internal/ledger/domain"
)

func TestComputeShare(t *testing.T) {
	cases := []struct {
		base, rate, want string
	}{
		{"1000", "0.0125", "12.5"},
		{"1000", "0.025", "25"},
		{"0.00000001", "0.0125", "0"},
		{"0.0000004", "0.0125", "0.00000001"}, // 0.000000005 向上舍入
		{"123.456789", "0.025", "3.08641973"},
	}
	for _, tc := range cases {
		got := ComputeShare(decimal.RequireFromString(tc.base), decimal.RequireFromString(tc.rate))
		assert.True(t, decimal.RequireFromString(tc.want).Equal(got), "%s × %s = %s", tc.base, tc.rate, got)
	}
}

func TestSingleKindType(t *testing.T) {
	typ, err := SingleKindType(KindStaking)
	require.NoError(t, err)
	assert.Equal(t, ledger.StakingReward, typ)

	_, err = SingleKindType(KindSale)
	assert.ErrorIs(t, err, ErrUnknownRewardKind)
}

func TestDistributionResult(t *testing.T) {
	r := &DistributionResult{Shares: []Share{
		{Role: RoleBuyer, Amount: decimal.NewFromInt(5), Status: ShareApplied},
		{Role: RoleSeller, Amount: decimal.NewFromInt(0), Status: ShareSkipped},
		{Role: RolePlatform, Amount: decimal.NewFromInt(10), Status: ShareApplied},
	}}
	assert.True(t, r.Complete())
	assert.True(t, decimal.NewFromInt(15).Equal(r.Applied()))

	r.Shares[2].Status = ShareFailed
	assert.False(t, r.Complete())
	assert.True(t, decimal.NewFromInt(5).Equal(r.Applied()))
}

func TestStaticParameters(t *testing.T) {
	p := StaticParameters{
		KeyRateBuyer: "0.02",
		KeyEnabled:   "false",
		KeyMinimum:   "not-a-number",
	}
	rates := LoadRates(p, 1)
	assert.Equal(t, "0.02", rates.Buyer.String())
	assert.True(t, DefaultSellerRate.Equal(rates.Seller))
	assert.True(t, DefaultPlatformRate.Equal(rates.Platform))

	assert.False(t, p.Bool(1, KeyEnabled, true))
	assert.True(t, p.Bool(1, "missing", true))
	assert.True(t, DefaultMinimum.Equal(p.Decimal(1, KeyMinimum, DefaultMinimum)))
	assert.Equal(t, "sfrt.reward.governance.amount", KeyFlatAmount(KindGovernance))
}
