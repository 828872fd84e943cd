package domain

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// MoneyColumnType Postgres 下金额列的类型
const MoneyColumnType = "decimal(26,8)"

// Money 落库的金额字段
// SQLite 的 decimal 列是 NUMERIC 亲和性，会退化成 float64，这里改存 TEXT
type Money struct {
	decimal.Decimal
}

func NewMoney(d decimal.Decimal) Money {
	return Money{Decimal: d}
}

func (Money) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "sqlite" {
		return "TEXT"
	}
	return MoneyColumnType
}
