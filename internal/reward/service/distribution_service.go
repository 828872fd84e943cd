package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	ledger "github.com/imagaram/sfr-backend-sub001/internal/ledger/domain"
	ledgersvc "github.com/imagaram/sfr-backend-sub001/internal/ledger/service"
	"github.com/imagaram/sfr-backend-sub001/internal/platform/metrics"
	"github.com/imagaram/sfr-backend-sub001/internal/reward/domain"
)

// ErrDistributionDisabled 该 Space 关闭了奖励分发
var ErrDistributionDisabled = errors.New("reward distribution is disabled for this space")

// Ledger 分发只依赖入账能力
type Ledger interface {
	Credit(ctx context.Context, req ledgersvc.MutationRequest) (*ledger.Transaction, error)
}

// SaleEvent 一笔成交：买家、卖家、平台三方分成
type SaleEvent struct {
	EventID  string
	BuyerID  string
	SellerID string
	SpaceID  int64
	Amount   decimal.Decimal
}

// PurchaseEvent 充值 / 购买：买家与平台两方
type PurchaseEvent struct {
	EventID string
	BuyerID string
	SpaceID int64
	Amount  decimal.Decimal
}

// SingleReward staking / governance / liquidity
// Amount 为 0 时使用配置的固定金额，Description 为空时生成默认描述
type SingleReward struct {
	EventID     string
	PartyID     string
	SpaceID     int64
	Amount      decimal.Decimal
	Description string
}

// ManualReward 管理员手工补发
type ManualReward struct {
	EventID string
	PartyID string
	SpaceID int64
	Amount  decimal.Decimal
	Reason  string
}

// DistributionService 把一个业务事件拆成多笔独立的入账
//
// 各份额依次入账，每笔是独立的原子单元；第一笔失败后停止，
// 已入账的份额不回滚，结果里标明每一笔的状态。
type DistributionService struct {
	ledger  Ledger
	params  domain.ParameterProvider
	journal domain.Journal // 可为 nil
	logger  *zap.Logger
	now     func() time.Time
}

func NewDistributionService(l Ledger, params domain.ParameterProvider, journal domain.Journal, logger *zap.Logger) *DistributionService {
	return &DistributionService{
		ledger:  l,
		params:  params,
		journal: journal,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *DistributionService) IsRewardDistributionEnabled(spaceID int64) bool {
	return s.params.Bool(spaceID, domain.KeyEnabled, true)
}

func (s *DistributionService) MeetsMinimumRewardThreshold(amount decimal.Decimal, spaceID int64) bool {
	return amount.GreaterThanOrEqual(s.params.Decimal(spaceID, domain.KeyMinimum, domain.DefaultMinimum))
}

// Simulate 按当前参数试算销售分成，不入账
func (s *DistributionService) Simulate(spaceID int64, amount decimal.Decimal) domain.Simulation {
	rates := domain.LoadRates(s.params, spaceID)
	sim := domain.Simulation{
		SpaceID:  spaceID,
		Base:     amount,
		Buyer:    domain.ComputeShare(amount, rates.Buyer),
		Seller:   domain.ComputeShare(amount, rates.Seller),
		Platform: domain.ComputeShare(amount, rates.Platform),
	}
	sim.Total = sim.Buyer.Add(sim.Seller).Add(sim.Platform)
	return sim
}

func (s *DistributionService) DistributeSale(ctx context.Context, ev SaleEvent) (*domain.DistributionResult, error) {
	if err := s.precheck(ev.EventID, ev.SpaceID, ev.Amount, ev.BuyerID, ev.SellerID); err != nil {
		return nil, err
	}
	rates := domain.LoadRates(s.params, ev.SpaceID)
	shares := []domain.Share{
		{Role: domain.RoleBuyer, PartyID: ev.BuyerID, Type: ledger.PurchaseReward, Amount: domain.ComputeShare(ev.Amount, rates.Buyer)},
		{Role: domain.RoleSeller, PartyID: ev.SellerID, Type: ledger.SalesReward, Amount: domain.ComputeShare(ev.Amount, rates.Seller)},
		{Role: domain.RolePlatform, PartyID: domain.PlatformPartyID, Type: ledger.PlatformReserve, Amount: domain.ComputeShare(ev.Amount, rates.Platform)},
	}
	return s.distribute(ctx, domain.KindSale, ev.EventID, ev.SpaceID, ev.Amount, shares, "")
}

func (s *DistributionService) DistributePurchase(ctx context.Context, ev PurchaseEvent) (*domain.DistributionResult, error) {
	if err := s.precheck(ev.EventID, ev.SpaceID, ev.Amount, ev.BuyerID); err != nil {
		return nil, err
	}
	rates := domain.LoadRates(s.params, ev.SpaceID)
	shares := []domain.Share{
		{Role: domain.RoleBuyer, PartyID: ev.BuyerID, Type: ledger.PurchaseReward, Amount: domain.ComputeShare(ev.Amount, rates.Buyer)},
		{Role: domain.RolePlatform, PartyID: domain.PlatformPartyID, Type: ledger.PlatformReserve, Amount: domain.ComputeShare(ev.Amount, rates.Platform)},
	}
	return s.distribute(ctx, domain.KindPurchase, ev.EventID, ev.SpaceID, ev.Amount, shares, "")
}

func (s *DistributionService) DistributeStaking(ctx context.Context, r SingleReward) (*domain.DistributionResult, error) {
	return s.DistributeSingle(ctx, domain.KindStaking, r)
}

func (s *DistributionService) DistributeGovernance(ctx context.Context, r SingleReward) (*domain.DistributionResult, error) {
	return s.DistributeSingle(ctx, domain.KindGovernance, r)
}

func (s *DistributionService) DistributeLiquidity(ctx context.Context, r SingleReward) (*domain.DistributionResult, error) {
	return s.DistributeSingle(ctx, domain.KindLiquidity, r)
}

// DistributeSingle 单人奖励，kind 只接受 staking / governance / liquidity
func (s *DistributionService) DistributeSingle(ctx context.Context, kind domain.Kind, r SingleReward) (*domain.DistributionResult, error) {
	typ, err := domain.SingleKindType(kind)
	if err != nil {
		return nil, err
	}
	amount := r.Amount
	if amount.IsZero() {
		amount = s.params.Decimal(r.SpaceID, domain.KeyFlatAmount(kind), decimal.Zero)
	}
	if err := s.precheck(r.EventID, r.SpaceID, amount, r.PartyID); err != nil {
		return nil, err
	}
	shares := []domain.Share{
		{Role: domain.RoleRecipient, PartyID: r.PartyID, Type: typ, Amount: amount},
	}
	return s.distribute(ctx, kind, r.EventID, r.SpaceID, amount, shares, strings.TrimSpace(r.Description))
}

// DistributeManual 记为 ADJUSTMENT，不刷新 LastRewardAt
func (s *DistributionService) DistributeManual(ctx context.Context, r ManualReward) (*domain.DistributionResult, error) {
	if err := s.precheck(r.EventID, r.SpaceID, r.Amount, r.PartyID); err != nil {
		return nil, err
	}
	shares := []domain.Share{
		{Role: domain.RoleRecipient, PartyID: r.PartyID, Type: ledger.Adjustment, Amount: r.Amount},
	}
	return s.distribute(ctx, domain.KindManual, r.EventID, r.SpaceID, r.Amount, shares, r.Reason)
}

// Records 日志里该事件的全部分发记录
func (s *DistributionService) Records(eventID string) ([]domain.DistributionResult, error) {
	if s.journal == nil {
		return []domain.DistributionResult{}, nil
	}
	return s.journal.FindByEvent(eventID)
}

func (s *DistributionService) precheck(eventID string, spaceID int64, amount decimal.Decimal, parties ...string) error {
	if strings.TrimSpace(eventID) == "" {
		return domain.ErrMissingEventID
	}
	if !amount.IsPositive() {
		return ledger.ErrInvalidAmount
	}
	for _, p := range parties {
		if strings.TrimSpace(p) == "" {
			return ledger.ErrInvalidParty
		}
	}
	if !s.IsRewardDistributionEnabled(spaceID) {
		return ErrDistributionDisabled
	}
	return nil
}

// note 非空时作为流水描述
func (s *DistributionService) distribute(ctx context.Context, kind domain.Kind, eventID string, spaceID int64, base decimal.Decimal, shares []domain.Share, note string) (*domain.DistributionResult, error) {
	result := &domain.DistributionResult{
		EventID:   eventID,
		Kind:      kind,
		SpaceID:   spaceID,
		Base:      base,
		Shares:    shares,
		StartedAt: s.now(),
	}

	var failure error
	for i := range result.Shares {
		share := &result.Shares[i]
		if failure != nil {
			share.Status = domain.ShareNotAttempted
			continue
		}
		// 四舍五入后为 0 或低于最小额度的份额不入账
		if !share.Amount.IsPositive() || !s.MeetsMinimumRewardThreshold(share.Amount, spaceID) {
			share.Status = domain.ShareSkipped
			continue
		}

		desc := note
		if desc == "" {
			desc = fmt.Sprintf("%s reward (%s)", kind, share.Role)
		}
		tx, err := s.ledger.Credit(ctx, ledgersvc.MutationRequest{
			PartyID:        share.PartyID,
			SpaceID:        spaceID,
			Amount:         share.Amount,
			Type:           share.Type,
			Description:    desc,
			RelatedEventID: eventID,
		})
		if err != nil {
			share.Status = domain.ShareFailed
			share.Error = err.Error()
			failure = fmt.Errorf("%w: %s share for %s: %w", domain.ErrDistributionStopped, share.Role, share.PartyID, err)
			continue
		}
		share.Status = domain.ShareApplied
		share.TxID = tx.ID
		metrics.RewardAmount.WithLabelValues(string(share.Role)).Add(share.Amount.InexactFloat64())
	}
	result.FinishedAt = s.now()

	for _, share := range result.Shares {
		metrics.RewardShares.WithLabelValues(string(kind), string(share.Role), string(share.Status)).Inc()
	}
	s.record(result)

	fields := []zap.Field{
		zap.String("event_id", eventID),
		zap.String("kind", string(kind)),
		zap.Int64("space_id", spaceID),
		zap.String("base", base.String()),
		zap.String("applied", result.Applied().String()),
	}
	if failure != nil {
		s.logger.Error("sfrt reward distribution stopped", append(fields, zap.Error(failure))...)
		return result, failure
	}
	s.logger.Info("sfrt reward distributed", fields...)
	return result, nil
}

// record 写日志失败不影响分发结果
func (s *DistributionService) record(result *domain.DistributionResult) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(result); err != nil {
		s.logger.Error("failed to journal reward distribution",
			zap.String("event_id", result.EventID),
			zap.String("kind", string(result.Kind)),
			zap.Error(err),
		)
	}
}
