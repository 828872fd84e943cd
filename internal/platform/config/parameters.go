package config

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// ViperParameters 奖励参数，查找顺序：spaces.<spaceID>.<key> -> <key> -> 默认值
type ViperParameters struct {
	v *viper.Viper
}

func NewViperParameters(v *viper.Viper) *ViperParameters {
	return &ViperParameters{v: v}
}

func (p *ViperParameters) resolve(spaceID int64, key string) (string, bool) {
	if spaceKey := fmt.Sprintf("spaces.%d.%s", spaceID, key); p.v.IsSet(spaceKey) {
		return spaceKey, true
	}
	if p.v.IsSet(key) {
		return key, true
	}
	return "", false
}

func (p *ViperParameters) Decimal(spaceID int64, key string, def decimal.Decimal) decimal.Decimal {
	k, ok := p.resolve(spaceID, key)
	if !ok {
		return def
	}
	v, err := decimal.NewFromString(p.v.GetString(k))
	if err != nil {
		return def
	}
	return v
}

func (p *ViperParameters) Bool(spaceID int64, key string, def bool) bool {
	k, ok := p.resolve(spaceID, key)
	if !ok {
		return def
	}
	return p.v.GetBool(k)
}
