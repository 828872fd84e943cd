package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BalanceFilter 聚合查询过滤条件，零值表示不过滤
type BalanceFilter struct {
	SpaceID      *int64
	Status       BalanceStatus
	PositiveOnly bool
}

// Page 分页参数
type Page struct {
	Limit  int
	Offset int
}

// BalanceRepository 余额仓储接口
// 写方法必须使用传入的 db（事务会话）
type BalanceRepository interface {
	// FindByKey 按 (party, space) 查询，不存在返回 ErrBalanceNotFound
	FindByKey(ctx context.Context, db *gorm.DB, partyID string, spaceID int64) (*Balance, error)

	// CreateIfAbsent 插入新账户，已存在时不报错也不覆盖
	CreateIfAbsent(ctx context.Context, db *gorm.DB, b *Balance) error

	// Update 核心：带版本号的全量更新，冲突返回 ErrConcurrentUpdate
	Update(ctx context.Context, db *gorm.DB, b *Balance) error

	// UpdateStatus / UpdateExternalExchange 按 key 直接更新，不存在返回 ErrBalanceNotFound
	UpdateStatus(ctx context.Context, partyID string, spaceID int64, status BalanceStatus) error
	UpdateExternalExchange(ctx context.Context, partyID string, spaceID int64, enabled bool) error

	// 统计
	SumBalances(ctx context.Context, f BalanceFilter) (decimal.Decimal, error)
	CountAccounts(ctx context.Context, f BalanceFilter) (int64, error)
	AverageBalance(ctx context.Context, f BalanceFilter) (decimal.Decimal, error)
	MedianBalance(ctx context.Context, f BalanceFilter) (decimal.Decimal, error)
}

// TransactionRepository 流水仓储接口（只追加）
type TransactionRepository interface {
	Create(ctx context.Context, db *gorm.DB, t *Transaction) error

	// ListByAccount 按完成时间倒序
	ListByAccount(ctx context.Context, partyID string, spaceID int64, page Page) ([]Transaction, error)

	// ListByRelatedEvent 同一业务事件产生的所有流水
	ListByRelatedEvent(ctx context.Context, eventID string) ([]Transaction, error)

	// SumByAccount 账户流水合计与条数（用于回放校验）
	SumByAccount(ctx context.Context, db *gorm.DB, partyID string, spaceID int64) (decimal.Decimal, int64, error)

	// SumBySpaceAndTypes Space 内指定类型的流水合计
	SumBySpaceAndTypes(ctx context.Context, spaceID int64, types []TransactionType) (decimal.Decimal, error)
}
