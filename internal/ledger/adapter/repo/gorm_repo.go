package repo

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/imagaram/sfr-backend-sub001/internal/ledger/domain"
)

// AutoMigrate 建表 / 补齐索引
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.Balance{}, &domain.Transaction{}); err != nil {
		return errors.Wrap(err, "auto migrate sfrt tables")
	}
	return nil
}

// ClassifyError 把存储层的并发冲突统一成 domain.ErrConcurrentUpdate
// Postgres: 40001 serialization_failure / 40P01 deadlock_detected
// SQLite: database is locked
func ClassifyError(err error) error {
	if err == nil || stderrors.Is(err, domain.ErrConcurrentUpdate) {
		return err
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return errors.Wrap(domain.ErrConcurrentUpdate, pgErr.Message)
	}
	if strings.Contains(err.Error(), "database is locked") {
		return errors.Wrap(domain.ErrConcurrentUpdate, err.Error())
	}
	return err
}

type GormBalanceRepo struct {
	db *gorm.DB
}

func NewBalanceRepo(db *gorm.DB) *GormBalanceRepo {
	return &GormBalanceRepo{db: db}
}

func (r *GormBalanceRepo) FindByKey(ctx context.Context, db *gorm.DB, partyID string, spaceID int64) (*domain.Balance, error) {
	if db == nil {
		db = r.db
	}
	var balance domain.Balance
	err := db.WithContext(ctx).
		Where("party_id = ? AND space_id = ?", partyID, spaceID).
		First(&balance).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrBalanceNotFound
	}
	if err != nil {
		return nil, errors.Wrap(ClassifyError(err), "find sfrt balance")
	}
	return &balance, nil
}

// CreateIfAbsent INSERT ... ON CONFLICT (party_id, space_id) DO NOTHING
// 并发首次开户时只有一行落库，调用方需要再读一次拿到真实记录
func (r *GormBalanceRepo) CreateIfAbsent(ctx context.Context, db *gorm.DB, b *domain.Balance) error {
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "party_id"}, {Name: "space_id"}},
			DoNothing: true,
		}).
		Create(b).Error
	if err != nil {
		return errors.Wrap(ClassifyError(err), "create sfrt balance")
	}
	return nil
}

// Update 实现乐观锁更新
// SQL: UPDATE sfrt_balances SET ..., version = version + 1 WHERE id = ? AND version = ?
// status / external_exchange_enabled 不在这里改，避免覆盖并发的冻结操作
func (r *GormBalanceRepo) Update(ctx context.Context, db *gorm.DB, b *domain.Balance) error {
	now := time.Now()
	result := db.WithContext(ctx).Model(&domain.Balance{}).
		Where("id = ? AND version = ?", b.ID, b.Version).
		Updates(map[string]interface{}{
			"current_balance":       b.CurrentBalance,
			"total_earned_purchase": b.TotalEarnedPurchase,
			"total_earned_sales":    b.TotalEarnedSales,
			"total_redeemed":        b.TotalRedeemed,
			"total_transferred_in":  b.TotalTransferredIn,
			"total_transferred_out": b.TotalTransferredOut,
			"last_reward_at":        b.LastRewardAt,
			"version":               gorm.Expr("version + 1"),
			"updated_at":            now,
		})
	if result.Error != nil {
		return errors.Wrap(ClassifyError(result.Error), "update sfrt balance")
	}

	// 没有行被更新：version 不匹配（被别人改过了）
	if result.RowsAffected == 0 {
		return domain.ErrConcurrentUpdate
	}

	b.Version++
	b.UpdatedAt = now
	return nil
}

// UpdateStatus 同时递增 version，让正在进行中的出账发生冲突并重读状态
func (r *GormBalanceRepo) UpdateStatus(ctx context.Context, partyID string, spaceID int64, status domain.BalanceStatus) error {
	return r.updateByKey(ctx, partyID, spaceID, map[string]interface{}{"status": status})
}

func (r *GormBalanceRepo) UpdateExternalExchange(ctx context.Context, partyID string, spaceID int64, enabled bool) error {
	return r.updateByKey(ctx, partyID, spaceID, map[string]interface{}{"external_exchange_enabled": enabled})
}

func (r *GormBalanceRepo) updateByKey(ctx context.Context, partyID string, spaceID int64, fields map[string]interface{}) error {
	fields["version"] = gorm.Expr("version + 1")
	fields["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).Model(&domain.Balance{}).
		Where("party_id = ? AND space_id = ?", partyID, spaceID).
		Updates(fields)
	if result.Error != nil {
		return errors.Wrap(ClassifyError(result.Error), "update sfrt balance by key")
	}
	if result.RowsAffected == 0 {
		return domain.ErrBalanceNotFound
	}
	return nil
}

// moneyExpr SQLite 下金额存为 TEXT，比较和排序前先转成数值
func moneyExpr(db *gorm.DB, col string) string {
	if db.Dialector.Name() == "sqlite" {
		return "CAST(" + col + " AS REAL)"
	}
	return col
}

// sumMoney 精确求和并计数
// SQLite 的 SUM 走浮点，这里取出原值在内存里累加
func sumMoney(ctx context.Context, q *gorm.DB, col string) (decimal.Decimal, int64, error) {
	if q.Dialector.Name() != "sqlite" {
		var (
			sum   decimal.Decimal
			count int64
		)
		err := q.WithContext(ctx).
			Select("COALESCE(SUM(" + col + "), 0), COUNT(*)").
			Row().Scan(&sum, &count)
		return sum, count, err
	}

	var values []decimal.Decimal
	if err := q.WithContext(ctx).Pluck(col, &values).Error; err != nil {
		return decimal.Zero, 0, err
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum, int64(len(values)), nil
}

func balanceScope(f domain.BalanceFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.SpaceID != nil {
			db = db.Where("space_id = ?", *f.SpaceID)
		}
		if f.Status != "" {
			db = db.Where("status = ?", f.Status)
		}
		if f.PositiveOnly {
			db = db.Where(moneyExpr(db, "current_balance") + " > 0")
		}
		return db
	}
}

func (r *GormBalanceRepo) SumBalances(ctx context.Context, f domain.BalanceFilter) (decimal.Decimal, error) {
	sum, _, err := sumMoney(ctx, r.db.Model(&domain.Balance{}).Scopes(balanceScope(f)), "current_balance")
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "sum sfrt balances")
	}
	return sum, nil
}

// AverageBalance 截到账本精度
func (r *GormBalanceRepo) AverageBalance(ctx context.Context, f domain.BalanceFilter) (decimal.Decimal, error) {
	sum, n, err := sumMoney(ctx, r.db.Model(&domain.Balance{}).Scopes(balanceScope(f)), "current_balance")
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "average sfrt balance")
	}
	if n == 0 {
		return decimal.Zero, nil
	}
	return sum.DivRound(decimal.NewFromInt(n), domain.Scale), nil
}

func (r *GormBalanceRepo) CountAccounts(ctx context.Context, f domain.BalanceFilter) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Balance{}).Scopes(balanceScope(f)).Count(&count).Error; err != nil {
		return 0, errors.Wrap(err, "count sfrt balances")
	}
	return count, nil
}

// MedianBalance 取排序后中间的一个或两个值
func (r *GormBalanceRepo) MedianBalance(ctx context.Context, f domain.BalanceFilter) (decimal.Decimal, error) {
	n, err := r.CountAccounts(ctx, f)
	if err != nil || n == 0 {
		return decimal.Zero, err
	}

	rows, err := r.db.WithContext(ctx).Model(&domain.Balance{}).
		Scopes(balanceScope(f)).
		Select("current_balance").
		Order(moneyExpr(r.db, "current_balance") + " ASC").
		Offset(int((n - 1) / 2)).
		Limit(int(2 - n%2)).
		Rows()
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "median sfrt balance")
	}
	defer rows.Close()

	var middle []decimal.Decimal
	for rows.Next() {
		var v decimal.Decimal
		if err := rows.Scan(&v); err != nil {
			return decimal.Zero, errors.Wrap(err, "scan median sfrt balance")
		}
		middle = append(middle, v)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, errors.Wrap(err, "median sfrt balance")
	}
	if len(middle) == 0 {
		return decimal.Zero, nil
	}

	sum := decimal.Zero
	for _, v := range middle {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(middle)))).Round(domain.Scale), nil
}

// ---------------------------------------------------------

type GormTransactionRepo struct {
	db *gorm.DB
}

func NewTransactionRepo(db *gorm.DB) *GormTransactionRepo {
	return &GormTransactionRepo{db: db}
}

func (r *GormTransactionRepo) Create(ctx context.Context, db *gorm.DB, t *domain.Transaction) error {
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return errors.Wrap(ClassifyError(err), "append sfrt transaction")
	}
	return nil
}

func (r *GormTransactionRepo) ListByAccount(ctx context.Context, partyID string, spaceID int64, page domain.Page) ([]domain.Transaction, error) {
	if page.Limit <= 0 {
		page.Limit = 20
	}
	var txs []domain.Transaction
	err := r.db.WithContext(ctx).
		Where("party_id = ? AND space_id = ?", partyID, spaceID).
		Order("completed_at DESC, id DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&txs).Error
	if err != nil {
		return nil, errors.Wrap(err, "list sfrt transactions")
	}
	return txs, nil
}

func (r *GormTransactionRepo) ListByRelatedEvent(ctx context.Context, eventID string) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	err := r.db.WithContext(ctx).
		Where("related_event_id = ?", eventID).
		Order("id ASC").
		Find(&txs).Error
	if err != nil {
		return nil, errors.Wrap(err, "list sfrt transactions by event")
	}
	return txs, nil
}

func (r *GormTransactionRepo) SumByAccount(ctx context.Context, db *gorm.DB, partyID string, spaceID int64) (decimal.Decimal, int64, error) {
	if db == nil {
		db = r.db
	}
	q := db.Model(&domain.Transaction{}).Where("party_id = ? AND space_id = ?", partyID, spaceID)
	sum, count, err := sumMoney(ctx, q, "amount")
	if err != nil {
		return decimal.Zero, 0, errors.Wrap(err, "sum sfrt transactions")
	}
	return sum, count, nil
}

func (r *GormTransactionRepo) SumBySpaceAndTypes(ctx context.Context, spaceID int64, types []domain.TransactionType) (decimal.Decimal, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	q := r.db.Model(&domain.Transaction{}).
		Where("space_id = ? AND type IN ? AND status = ?", spaceID, names, domain.TxCompleted)
	sum, _, err := sumMoney(ctx, q, "amount")
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "sum sfrt transactions by type")
	}
	return sum, nil
}
