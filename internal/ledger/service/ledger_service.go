package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/imagaram/sfr-backend-sub001/internal/ledger/domain"
	"github.com/imagaram/sfr-backend-sub001/internal/platform/metrics"
	"github.com/imagaram/sfr-backend-sub001/internal/platform/retrier"
)

// MutationRequest 单笔入账 / 出账请求
type MutationRequest struct {
	PartyID        string
	SpaceID        int64
	Amount         decimal.Decimal
	Type           domain.TransactionType
	Description    string
	RelatedEventID string // 可选，关联的业务事件
}

// TransferRequest 同一 Space 内的账户间转账
type TransferRequest struct {
	FromPartyID string
	ToPartyID   string
	SpaceID     int64
	Amount      decimal.Decimal
	ReferenceID string // 可选，两条流水共用
}

// LedgerAudit 流水回放校验结果
type LedgerAudit struct {
	PartyID    string          `json:"party_id"`
	SpaceID    int64           `json:"space_id"`
	Balance    decimal.Decimal `json:"balance"`
	LedgerSum  decimal.Decimal `json:"ledger_sum"`
	Entries    int64           `json:"entries"`
	Consistent bool            `json:"consistent"`
}

// LedgerService 核心服务：余额与流水在同一个事务里落库
//
// 开户策略：入账可以隐式开户，出账不行（对不存在的账户出账返回 ErrBalanceNotFound）。
type LedgerService struct {
	db          *gorm.DB // 用于开启事务
	balanceRepo domain.BalanceRepository
	txRepo      domain.TransactionRepository
	logger      *zap.Logger

	retryOpts []retrier.Option
	retrier   *retrier.Retrier
	classify  func(error) error
	now       func() time.Time
}

type Option func(*LedgerService)

// WithRetryOptions 覆盖冲突重试参数
func WithRetryOptions(opts ...retrier.Option) Option {
	return func(s *LedgerService) {
		s.retryOpts = append(s.retryOpts, opts...)
	}
}

// WithErrorClassifier 把驱动相关的冲突错误映射成 domain.ErrConcurrentUpdate
func WithErrorClassifier(fn func(error) error) Option {
	return func(s *LedgerService) {
		s.classify = fn
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) {
		s.now = now
	}
}

func NewLedgerService(db *gorm.DB, balanceRepo domain.BalanceRepository, txRepo domain.TransactionRepository, logger *zap.Logger, opts ...Option) *LedgerService {
	s := &LedgerService{
		db:          db,
		balanceRepo: balanceRepo,
		txRepo:      txRepo,
		logger:      logger,
		classify:    func(err error) error { return err },
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	base := []retrier.Option{
		retrier.WithRetryIf(func(err error) bool {
			return errors.Is(err, domain.ErrConcurrentUpdate)
		}),
		retrier.WithOnRetry(func(attempt int, err error) {
			metrics.LedgerConflictRetries.Inc()
			s.logger.Warn("sfrt ledger conflict, retrying", zap.Int("attempt", attempt), zap.Error(err))
		}),
	}
	s.retrier = retrier.New(append(base, s.retryOpts...)...)
	return s
}

// atomically 一个原子单元：冲突时整体回滚并重放
func (s *LedgerService) atomically(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.classify(s.db.WithContext(ctx).Transaction(fn))
	})
	return wrapStorage(err)
}

// atomicallyWithData 同 atomically，返回最后一次成功执行的结果
func atomicallyWithData[T any](ctx context.Context, s *LedgerService, fn func(tx *gorm.DB) (T, error)) (T, error) {
	out, err := retrier.DoWithData(s.retrier, ctx, func(ctx context.Context) (T, error) {
		var out T
		err := s.classify(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			out, err = fn(tx)
			return err
		}))
		return out, err
	})
	if err != nil {
		var zero T
		return zero, wrapStorage(err)
	}
	return out, nil
}

func wrapStorage(err error) error {
	if err == nil || domain.IsBusinessError(err) || errors.Is(err, domain.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
}

func (r MutationRequest) validate() error {
	if !r.Amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if !r.Amount.Equal(r.Amount.Round(domain.Scale)) {
		return fmt.Errorf("%w: more than %d decimal places", domain.ErrInvalidAmount, domain.Scale)
	}
	if strings.TrimSpace(r.PartyID) == "" {
		return domain.ErrInvalidParty
	}
	if !r.Type.IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidTransactionType, r.Type)
	}
	return nil
}

// GetOrCreate 查询余额，不存在则开户（幂等）
func (s *LedgerService) GetOrCreate(ctx context.Context, partyID string, spaceID int64) (*domain.Balance, error) {
	if strings.TrimSpace(partyID) == "" {
		return nil, domain.ErrInvalidParty
	}
	bal, err := atomicallyWithData(ctx, s, func(tx *gorm.DB) (*domain.Balance, error) {
		return s.getOrCreate(ctx, tx, partyID, spaceID)
	})
	if err != nil {
		return nil, err
	}
	return bal, nil
}

func (s *LedgerService) getOrCreate(ctx context.Context, tx *gorm.DB, partyID string, spaceID int64) (*domain.Balance, error) {
	bal, err := s.balanceRepo.FindByKey(ctx, tx, partyID, spaceID)
	if err == nil {
		return bal, nil
	}
	if !errors.Is(err, domain.ErrBalanceNotFound) {
		return nil, err
	}

	fresh := domain.NewBalance(partyID, spaceID)
	if err := s.balanceRepo.CreateIfAbsent(ctx, tx, fresh); err != nil {
		return nil, err
	}
	if fresh.ID != 0 {
		s.logger.Info("sfrt balance opened", zap.String("party_id", partyID), zap.Int64("space_id", spaceID))
	}

	// 并发开户时别人可能先插入，这里统一再读一次
	return s.balanceRepo.FindByKey(ctx, tx, partyID, spaceID)
}

// Credit 入账：取或开户 -> 加余额 -> 按类型累计 -> 写流水
func (s *LedgerService) Credit(ctx context.Context, req MutationRequest) (*domain.Transaction, error) {
	if err := req.validate(); err != nil {
		s.observe("credit", req, nil, err)
		return nil, err
	}

	out, err := atomicallyWithData(ctx, s, func(tx *gorm.DB) (*domain.Transaction, error) {
		return s.applyCredit(ctx, tx, req)
	})
	s.observe("credit", req, out, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *LedgerService) applyCredit(ctx context.Context, tx *gorm.DB, req MutationRequest) (*domain.Transaction, error) {
	bal, err := s.getOrCreate(ctx, tx, req.PartyID, req.SpaceID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	before := bal.Credit(req.Amount, req.Type, now)
	if err := s.balanceRepo.Update(ctx, tx, bal); err != nil {
		return nil, err
	}
	return s.appendEntry(ctx, tx, req, req.Amount, before, bal.CurrentBalance.Decimal, now)
}

// Debit 出账，校验顺序：金额 -> 账户存在 -> 余额充足 -> 账户未冻结
// 流水金额记为负数
func (s *LedgerService) Debit(ctx context.Context, req MutationRequest) (*domain.Transaction, error) {
	if err := req.validate(); err != nil {
		s.observe("debit", req, nil, err)
		return nil, err
	}

	out, err := atomicallyWithData(ctx, s, func(tx *gorm.DB) (*domain.Transaction, error) {
		return s.applyDebit(ctx, tx, req)
	})
	s.observe("debit", req, out, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *LedgerService) applyDebit(ctx context.Context, tx *gorm.DB, req MutationRequest) (*domain.Transaction, error) {
	bal, err := s.balanceRepo.FindByKey(ctx, tx, req.PartyID, req.SpaceID)
	if err != nil {
		return nil, err
	}
	if err := bal.CheckDebit(req.Amount); err != nil {
		return nil, err
	}

	now := s.now()
	before := bal.Debit(req.Amount, req.Type)
	if err := s.balanceRepo.Update(ctx, tx, bal); err != nil {
		return nil, err
	}
	return s.appendEntry(ctx, tx, req, req.Amount.Neg(), before, bal.CurrentBalance.Decimal, now)
}

func (s *LedgerService) appendEntry(ctx context.Context, tx *gorm.DB, req MutationRequest, signed, before, after decimal.Decimal, now time.Time) (*domain.Transaction, error) {
	entry := &domain.Transaction{
		PartyID:       req.PartyID,
		SpaceID:       req.SpaceID,
		Amount:        domain.NewMoney(signed),
		Type:          req.Type,
		BalanceBefore: domain.NewMoney(before),
		BalanceAfter:  domain.NewMoney(after),
		Description:   req.Description,
		Status:        domain.TxCompleted,
		CompletedAt:   now,
	}
	if req.RelatedEventID != "" {
		ref := req.RelatedEventID
		entry.RelatedEventID = &ref
	}
	if err := s.txRepo.Create(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Transfer 转出与转入在同一个原子单元内完成
func (s *LedgerService) Transfer(ctx context.Context, req TransferRequest) (out, in *domain.Transaction, err error) {
	debit := MutationRequest{
		PartyID:        req.FromPartyID,
		SpaceID:        req.SpaceID,
		Amount:         req.Amount,
		Type:           domain.TransferOut,
		Description:    "transfer to " + req.ToPartyID,
		RelatedEventID: req.ReferenceID,
	}
	credit := MutationRequest{
		PartyID:        req.ToPartyID,
		SpaceID:        req.SpaceID,
		Amount:         req.Amount,
		Type:           domain.TransferIn,
		Description:    "transfer from " + req.FromPartyID,
		RelatedEventID: req.ReferenceID,
	}
	if err := debit.validate(); err != nil {
		s.observe("transfer", debit, nil, err)
		return nil, nil, err
	}
	if err := credit.validate(); err != nil {
		s.observe("transfer", credit, nil, err)
		return nil, nil, err
	}
	if req.FromPartyID == req.ToPartyID {
		s.observe("transfer", debit, nil, domain.ErrSelfTransfer)
		return nil, nil, domain.ErrSelfTransfer
	}

	err = s.atomically(ctx, func(tx *gorm.DB) error {
		var err error
		if out, err = s.applyDebit(ctx, tx, debit); err != nil {
			return err
		}
		in, err = s.applyCredit(ctx, tx, credit)
		return err
	})
	s.observe("transfer", debit, out, err)
	if err != nil {
		return nil, nil, err
	}
	s.observe("transfer", credit, in, nil)
	return out, in, nil
}

// Freeze 冻结：只拦截出账，入账仍然允许
func (s *LedgerService) Freeze(ctx context.Context, partyID string, spaceID int64) error {
	return s.setStatus(ctx, partyID, spaceID, domain.StatusFrozen)
}

func (s *LedgerService) Unfreeze(ctx context.Context, partyID string, spaceID int64) error {
	return s.setStatus(ctx, partyID, spaceID, domain.StatusActive)
}

func (s *LedgerService) setStatus(ctx context.Context, partyID string, spaceID int64, status domain.BalanceStatus) error {
	if strings.TrimSpace(partyID) == "" {
		return domain.ErrInvalidParty
	}
	if err := s.balanceRepo.UpdateStatus(ctx, partyID, spaceID, status); err != nil {
		return wrapStorage(err)
	}
	s.logger.Info("sfrt balance status changed",
		zap.String("party_id", partyID),
		zap.Int64("space_id", spaceID),
		zap.String("status", string(status)),
	)
	return nil
}

// SetExternalExchangeEnabled 只改标志位，不影响余额
func (s *LedgerService) SetExternalExchangeEnabled(ctx context.Context, partyID string, spaceID int64, enabled bool) error {
	if strings.TrimSpace(partyID) == "" {
		return domain.ErrInvalidParty
	}
	if err := s.balanceRepo.UpdateExternalExchange(ctx, partyID, spaceID, enabled); err != nil {
		return wrapStorage(err)
	}
	s.logger.Info("sfrt external exchange setting changed",
		zap.String("party_id", partyID),
		zap.Int64("space_id", spaceID),
		zap.Bool("enabled", enabled),
	)
	return nil
}

// Validate 账户不存在视为有效；只有余额为负时返回 false
func (s *LedgerService) Validate(ctx context.Context, partyID string, spaceID int64) (bool, error) {
	bal, err := s.balanceRepo.FindByKey(ctx, s.db, partyID, spaceID)
	if errors.Is(err, domain.ErrBalanceNotFound) {
		return true, nil
	}
	if err != nil {
		return false, wrapStorage(err)
	}
	if bal.CurrentBalance.IsNegative() {
		s.logger.Error("sfrt balance is negative",
			zap.String("party_id", partyID),
			zap.Int64("space_id", spaceID),
			zap.String("balance", bal.CurrentBalance.String()),
		)
		return false, nil
	}
	return true, nil
}

// Balance 只读查询，不开户
func (s *LedgerService) Balance(ctx context.Context, partyID string, spaceID int64) (*domain.Balance, error) {
	bal, err := s.balanceRepo.FindByKey(ctx, s.db, partyID, spaceID)
	if err != nil {
		return nil, wrapStorage(err)
	}
	return bal, nil
}

// History 账户流水，按完成时间倒序
func (s *LedgerService) History(ctx context.Context, partyID string, spaceID int64, page domain.Page) ([]domain.Transaction, error) {
	txs, err := s.txRepo.ListByAccount(ctx, partyID, spaceID, page)
	if err != nil {
		return nil, wrapStorage(err)
	}
	return txs, nil
}

// EventEntries 由同一业务事件产生的全部流水
func (s *LedgerService) EventEntries(ctx context.Context, eventID string) ([]domain.Transaction, error) {
	txs, err := s.txRepo.ListByRelatedEvent(ctx, eventID)
	if err != nil {
		return nil, wrapStorage(err)
	}
	return txs, nil
}

// VerifyLedger 回放流水，核对物化余额
func (s *LedgerService) VerifyLedger(ctx context.Context, partyID string, spaceID int64) (*LedgerAudit, error) {
	var audit *LedgerAudit
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bal, err := s.balanceRepo.FindByKey(ctx, tx, partyID, spaceID)
		if err != nil {
			return err
		}
		sum, n, err := s.txRepo.SumByAccount(ctx, tx, partyID, spaceID)
		if err != nil {
			return err
		}
		audit = &LedgerAudit{
			PartyID:    partyID,
			SpaceID:    spaceID,
			Balance:    bal.CurrentBalance.Decimal,
			LedgerSum:  sum,
			Entries:    n,
			Consistent: sum.Equal(bal.CurrentBalance.Decimal),
		}
		return nil
	})
	if err != nil {
		return nil, wrapStorage(err)
	}
	if !audit.Consistent {
		s.logger.Error("sfrt ledger mismatch",
			zap.String("party_id", partyID),
			zap.Int64("space_id", spaceID),
			zap.String("balance", audit.Balance.String()),
			zap.String("ledger_sum", audit.LedgerSum.String()),
		)
	}
	return audit, nil
}

// observe 统一的日志与指标出口
func (s *LedgerService) observe(op string, req MutationRequest, entry *domain.Transaction, err error) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("party_id", req.PartyID),
		zap.Int64("space_id", req.SpaceID),
		zap.String("amount", req.Amount.String()),
		zap.String("type", string(req.Type)),
	}
	switch {
	case err == nil:
		metrics.LedgerMutations.WithLabelValues(op, string(req.Type), metrics.OutcomeOK).Inc()
		s.logger.Info("sfrt balance updated", append(fields,
			zap.Int64("tx_id", entry.ID),
			zap.String("balance_after", entry.BalanceAfter.String()),
		)...)
	case domain.IsBusinessError(err):
		metrics.LedgerMutations.WithLabelValues(op, string(req.Type), metrics.OutcomeRejected).Inc()
		s.logger.Warn("sfrt mutation rejected", append(fields, zap.Error(err))...)
	default:
		metrics.LedgerMutations.WithLabelValues(op, string(req.Type), metrics.OutcomeError).Inc()
		s.logger.Error("sfrt mutation failed", append(fields, zap.Error(err))...)
	}
}
