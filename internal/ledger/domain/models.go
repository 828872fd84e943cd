package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Scale 账本定点精度（小数位）
const Scale = 8

// Balance 用户在某个 Space 下的 SFRT 余额
// 对应数据库表: sfrt_balances，(party_id, space_id) 唯一
type Balance struct {
	ID                      int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	PartyID                 string        `gorm:"type:varchar(64);not null;uniqueIndex:uk_sfrt_balance_party_space,priority:1" json:"party_id"`
	SpaceID                 int64         `gorm:"not null;uniqueIndex:uk_sfrt_balance_party_space,priority:2;index" json:"space_id"`
	CurrentBalance          Money         `gorm:"not null;index" json:"current_balance"`
	TotalEarnedPurchase     Money         `gorm:"not null" json:"total_earned_purchase"`
	TotalEarnedSales        Money         `gorm:"not null" json:"total_earned_sales"`
	TotalRedeemed           Money         `gorm:"not null" json:"total_redeemed"`
	TotalTransferredIn      Money         `gorm:"not null" json:"total_transferred_in"`
	TotalTransferredOut     Money         `gorm:"not null" json:"total_transferred_out"`
	ExternalExchangeEnabled bool          `gorm:"not null;default:true" json:"external_exchange_enabled"`
	Status                  BalanceStatus `gorm:"type:varchar(16);not null;default:'ACTIVE';index" json:"status"`
	LastRewardAt            *time.Time    `json:"last_reward_at,omitempty"`
	Version                 int64         `gorm:"not null;default:1" json:"version"` // 乐观锁
	CreatedAt               time.Time     `json:"created_at"`
	UpdatedAt               time.Time     `json:"updated_at"`
}

func (Balance) TableName() string {
	return "sfrt_balances"
}

// NewBalance 新开账户：余额清零，状态 ACTIVE
func NewBalance(partyID string, spaceID int64) *Balance {
	return &Balance{
		PartyID:                 partyID,
		SpaceID:                 spaceID,
		CurrentBalance:          NewMoney(decimal.Zero),
		TotalEarnedPurchase:     NewMoney(decimal.Zero),
		TotalEarnedSales:        NewMoney(decimal.Zero),
		TotalRedeemed:           NewMoney(decimal.Zero),
		TotalTransferredIn:      NewMoney(decimal.Zero),
		TotalTransferredOut:     NewMoney(decimal.Zero),
		ExternalExchangeEnabled: true,
		Status:                  StatusActive,
		Version:                 1,
	}
}

// IsActive 只有 ACTIVE 账户允许出账
func (b *Balance) IsActive() bool {
	return b.Status == StatusActive
}

// Credit 入账，返回变更前余额
func (b *Balance) Credit(amount decimal.Decimal, t TransactionType, now time.Time) decimal.Decimal {
	before := b.CurrentBalance.Decimal
	b.CurrentBalance = NewMoney(before.Add(amount))

	info, _ := t.Info()
	b.addToCounter(info.OnCredit, amount)
	if info.IsReward {
		ts := now
		b.LastRewardAt = &ts
	}
	return before
}

// CheckDebit 出账前置校验（顺序：余额 -> 状态）
func (b *Balance) CheckDebit(amount decimal.Decimal) error {
	if b.CurrentBalance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	if !b.IsActive() {
		return ErrAccountFrozen
	}
	return nil
}

// Debit 出账，调用方需先通过 CheckDebit，返回变更前余额
func (b *Balance) Debit(amount decimal.Decimal, t TransactionType) decimal.Decimal {
	before := b.CurrentBalance.Decimal
	b.CurrentBalance = NewMoney(before.Sub(amount))

	info, _ := t.Info()
	b.addToCounter(info.OnDebit, amount)
	return before
}

func (b *Balance) addToCounter(c Counter, amount decimal.Decimal) {
	switch c {
	case EarnedPurchase:
		b.TotalEarnedPurchase = NewMoney(b.TotalEarnedPurchase.Add(amount))
	case EarnedSales:
		b.TotalEarnedSales = NewMoney(b.TotalEarnedSales.Add(amount))
	case Redeemed:
		b.TotalRedeemed = NewMoney(b.TotalRedeemed.Add(amount))
	case TransferredIn:
		b.TotalTransferredIn = NewMoney(b.TotalTransferredIn.Add(amount))
	case TransferredOut:
		b.TotalTransferredOut = NewMoney(b.TotalTransferredOut.Add(amount))
	}
}

// Transaction SFRT 流水（只追加，不修改不删除）
// 对应数据库表: sfrt_transactions
type Transaction struct {
	ID             int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	PartyID        string            `gorm:"type:varchar(64);not null;index:idx_sfrt_tx_party_space,priority:1" json:"party_id"`
	SpaceID        int64             `gorm:"not null;index:idx_sfrt_tx_party_space,priority:2" json:"space_id"`
	Amount         Money             `gorm:"not null" json:"amount"` // 入账为正，出账为负
	Type           TransactionType   `gorm:"type:varchar(32);not null;index" json:"type"`
	RelatedEventID *string           `gorm:"type:varchar(64);index" json:"related_event_id,omitempty"`
	BalanceBefore  Money             `gorm:"not null" json:"balance_before"`
	BalanceAfter   Money             `gorm:"not null" json:"balance_after"`
	Description    string            `gorm:"type:varchar(500)" json:"description"`
	Status         TransactionStatus `gorm:"type:varchar(16);not null;default:'COMPLETED'" json:"status"`
	CompletedAt    time.Time         `gorm:"not null;index" json:"completed_at"`
	CreatedAt      time.Time         `json:"created_at"`
}

func (Transaction) TableName() string {
	return "sfrt_transactions"
}

// IsConsistent balance_after = balance_before + amount
func (t *Transaction) IsConsistent() bool {
	return t.BalanceBefore.Add(t.Amount.Decimal).Equal(t.BalanceAfter.Decimal)
}
