package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// 参数键，按 Space 覆盖
const (
	KeyEnabled      = "sfrt.reward.enabled"
	KeyMinimum      = "sfrt.reward.minimum"
	KeyRateBuyer    = "sfrt.reward.rate.buyer"
	KeyRateSeller   = "sfrt.reward.rate.seller"
	KeyRatePlatform = "sfrt.reward.rate.platform"
)

// KeyFlatAmount 单人奖励的固定金额，如 sfrt.reward.staking.amount
func KeyFlatAmount(k Kind) string {
	return fmt.Sprintf("sfrt.reward.%s.amount", k)
}

var (
	DefaultBuyerRate    = decimal.RequireFromString("0.0125")
	DefaultSellerRate   = decimal.RequireFromString("0.0125")
	DefaultPlatformRate = decimal.RequireFromString("0.025")
	DefaultMinimum      = decimal.New(1, -8)
)

// ParameterProvider 奖励参数来源，查不到时返回 def
type ParameterProvider interface {
	Decimal(spaceID int64, key string, def decimal.Decimal) decimal.Decimal
	Bool(spaceID int64, key string, def bool) bool
}

// StaticParameters 固定参数表，忽略 spaceID
type StaticParameters map[string]string

func (p StaticParameters) Decimal(_ int64, key string, def decimal.Decimal) decimal.Decimal {
	raw, ok := p[key]
	if !ok {
		return def
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return def
	}
	return v
}

func (p StaticParameters) Bool(_ int64, key string, def bool) bool {
	switch p[key] {
	case "true":
		return true
	case "false":
		return false
	default:
		return def
	}
}

// Rates 一次销售分发用到的三个比例
type Rates struct {
	Buyer    decimal.Decimal
	Seller   decimal.Decimal
	Platform decimal.Decimal
}

func LoadRates(p ParameterProvider, spaceID int64) Rates {
	return Rates{
		Buyer:    p.Decimal(spaceID, KeyRateBuyer, DefaultBuyerRate),
		Seller:   p.Decimal(spaceID, KeyRateSeller, DefaultSellerRate),
		Platform: p.Decimal(spaceID, KeyRatePlatform, DefaultPlatformRate),
	}
}
