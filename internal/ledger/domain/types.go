package domain

import "fmt"

// BalanceStatus 账户状态
type BalanceStatus string

const (
	StatusActive BalanceStatus = "ACTIVE"
	StatusFrozen BalanceStatus = "FROZEN"
)

// TransactionStatus 流水状态
// 目前同步记账只会写 COMPLETED，PENDING/FAILED 留给以后的异步结算
type TransactionStatus string

const (
	TxPending   TransactionStatus = "PENDING"
	TxCompleted TransactionStatus = "COMPLETED"
	TxFailed    TransactionStatus = "FAILED"
)

// TransactionType 交易类型
type TransactionType string

const (
	PurchaseReward   TransactionType = "PURCHASE_REWARD"
	SalesReward      TransactionType = "SALES_REWARD"
	PlatformReserve  TransactionType = "PLATFORM_RESERVE"
	TransferIn       TransactionType = "TRANSFER_IN"
	TransferOut      TransactionType = "TRANSFER_OUT"
	ExchangeToJPY    TransactionType = "EXCHANGE_TO_JPY"
	ExchangeToCrypto TransactionType = "EXCHANGE_TO_CRYPTO"
	StakingReward    TransactionType = "STAKING_REWARD"
	GovernanceReward TransactionType = "GOVERNANCE_REWARD"
	LiquidityReward  TransactionType = "LIQUIDITY_REWARD"
	Penalty          TransactionType = "PENALTY"
	Adjustment       TransactionType = "ADJUSTMENT"
	Migration        TransactionType = "MIGRATION"
)

// Counter 累计计数器
type Counter int

const (
	NoCounter Counter = iota
	EarnedPurchase
	EarnedSales
	Redeemed
	TransferredIn
	TransferredOut
)

// TypeInfo 交易类型的静态属性
type TypeInfo struct {
	// IsReward 入账时刷新 LastRewardAt
	IsReward bool
	// OnCredit 入账时累加的计数器
	OnCredit Counter
	// OnDebit 出账时累加的计数器
	OnDebit Counter
}

// typeTable 新增交易类型只需要在这里加一行
var typeTable = map[TransactionType]TypeInfo{
	PurchaseReward:   {IsReward: true, OnCredit: EarnedPurchase},
	SalesReward:      {IsReward: true, OnCredit: EarnedSales},
	PlatformReserve:  {},
	TransferIn:       {OnCredit: TransferredIn},
	TransferOut:      {OnDebit: TransferredOut},
	ExchangeToJPY:    {OnDebit: Redeemed},
	ExchangeToCrypto: {OnDebit: Redeemed},
	StakingReward:    {IsReward: true},
	GovernanceReward: {IsReward: true},
	LiquidityReward:  {IsReward: true},
	Penalty:          {},
	Adjustment:       {},
	Migration:        {},
}

// Info 返回类型属性，未知类型返回 false
func (t TransactionType) Info() (TypeInfo, bool) {
	info, ok := typeTable[t]
	return info, ok
}

// IsValid 校验类型合法性
func (t TransactionType) IsValid() bool {
	_, ok := typeTable[t]
	return ok
}

// IsReward 是否为奖励类交易
func (t TransactionType) IsReward() bool {
	return typeTable[t].IsReward
}

// ParseTransactionType 从字符串解析交易类型
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTransactionType, s)
	}
	return t, nil
}

// AllTransactionTypes 按声明顺序返回全部类型
func AllTransactionTypes() []TransactionType {
	return []TransactionType{
		PurchaseReward, SalesReward, PlatformReserve, TransferIn, TransferOut,
		ExchangeToJPY, ExchangeToCrypto, StakingReward, GovernanceReward,
		LiquidityReward, Penalty, Adjustment, Migration,
	}
}

// RewardTypes 所有奖励类交易类型
func RewardTypes() []TransactionType {
	var out []TransactionType
	for _, t := range AllTransactionTypes() {
		if t.IsReward() {
			out = append(out, t)
		}
	}
	return out
}

// ParseBalanceStatus 从字符串解析账户状态
func ParseBalanceStatus(s string) (BalanceStatus, error) {
	switch BalanceStatus(s) {
	case StatusActive, StatusFrozen:
		return BalanceStatus(s), nil
	}
	return "", fmt.Errorf("unknown balance status %q", s)
}
