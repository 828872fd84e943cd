package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/imagaram/sfr-backend-sub001/internal/ledger/domain"
	"github.com/imagaram/sfr-backend-sub001/internal/platform/metrics"
)

// 活跃账户占比低于该值时在健康报告里提示
var lowActiveRatio = decimal.RequireFromString("0.1")

// 发行量统计口径
var issuanceTypes = []domain.TransactionType{domain.PurchaseReward, domain.SalesReward, domain.PlatformReserve}

type SupplyStats struct {
	TotalSupply     decimal.Decimal `json:"total_supply"`
	ActiveSupply    decimal.Decimal `json:"active_supply"`
	FrozenSupply    decimal.Decimal `json:"frozen_supply"`
	CirculationRate decimal.Decimal `json:"circulation_rate"`
}

type DistributionStats struct {
	TotalAccounts  int64           `json:"total_accounts"`
	ActiveAccounts int64           `json:"active_accounts"`
	AverageBalance decimal.Decimal `json:"average_balance"`
	MedianBalance  decimal.Decimal `json:"median_balance"`
}

type SpaceStats struct {
	SpaceID         int64           `json:"space_id"`
	TotalSupply     decimal.Decimal `json:"total_supply"`
	ActiveUsers     int64           `json:"active_users"`
	AverageBalance  decimal.Decimal `json:"average_balance"`
	IssuedAmount    decimal.Decimal `json:"issued_amount"`
	PlatformReserve decimal.Decimal `json:"platform_reserve"`
}

type HealthReport struct {
	Healthy        bool            `json:"healthy"`
	Issues         []string        `json:"issues"`
	TotalSupply    decimal.Decimal `json:"total_supply"`
	TotalAccounts  int64           `json:"total_accounts"`
	ActiveAccounts int64           `json:"active_accounts"`
	CheckedAt      time.Time       `json:"checked_at"`
}

// StatsService 只读统计
// 单项查询失败时记录日志并返回零值，调用方拿不到错误
type StatsService struct {
	balanceRepo domain.BalanceRepository
	txRepo      domain.TransactionRepository
	logger      *zap.Logger
	now         func() time.Time
}

func NewStatsService(balanceRepo domain.BalanceRepository, txRepo domain.TransactionRepository, logger *zap.Logger) *StatsService {
	return &StatsService{
		balanceRepo: balanceRepo,
		txRepo:      txRepo,
		logger:      logger,
		now:         time.Now,
	}
}

// orDefault 统计查询统一的降级出口
func orDefault[T any](s *StatsService, query string, fallback T, v T, err error) T {
	if err == nil {
		return v
	}
	metrics.StatsQueryFailures.WithLabelValues(query).Inc()
	s.logger.Error("sfrt stats query failed, using default", zap.String("query", query), zap.Error(err))
	return fallback
}

func (s *StatsService) sum(ctx context.Context, query string, f domain.BalanceFilter) decimal.Decimal {
	v, err := s.balanceRepo.SumBalances(ctx, f)
	return orDefault(s, query, decimal.Zero, v, err)
}

func (s *StatsService) count(ctx context.Context, query string, f domain.BalanceFilter) int64 {
	v, err := s.balanceRepo.CountAccounts(ctx, f)
	return orDefault(s, query, 0, v, err)
}

func (s *StatsService) TotalSupply(ctx context.Context) decimal.Decimal {
	return s.sum(ctx, "total_supply", domain.BalanceFilter{})
}

func (s *StatsService) ActiveSupply(ctx context.Context) decimal.Decimal {
	return s.sum(ctx, "active_supply", domain.BalanceFilter{Status: domain.StatusActive})
}

func (s *StatsService) FrozenSupply(ctx context.Context) decimal.Decimal {
	return s.sum(ctx, "frozen_supply", domain.BalanceFilter{Status: domain.StatusFrozen})
}

func (s *StatsService) SpaceSupply(ctx context.Context, spaceID int64) decimal.Decimal {
	return s.sum(ctx, "space_supply", domain.BalanceFilter{SpaceID: &spaceID})
}

func (s *StatsService) TotalAccounts(ctx context.Context) int64 {
	return s.count(ctx, "total_accounts", domain.BalanceFilter{})
}

// ActiveAccounts 状态为 ACTIVE 且余额大于 0
func (s *StatsService) ActiveAccounts(ctx context.Context) int64 {
	return s.count(ctx, "active_accounts", domain.BalanceFilter{Status: domain.StatusActive, PositiveOnly: true})
}

func (s *StatsService) ActiveUsers(ctx context.Context, spaceID int64) int64 {
	return s.count(ctx, "space_active_users", domain.BalanceFilter{SpaceID: &spaceID, Status: domain.StatusActive, PositiveOnly: true})
}

// AverageBalance / MedianBalance 只统计余额大于 0 的账户
func (s *StatsService) AverageBalance(ctx context.Context) decimal.Decimal {
	v, err := s.balanceRepo.AverageBalance(ctx, domain.BalanceFilter{PositiveOnly: true})
	return orDefault(s, "average_balance", decimal.Zero, v, err)
}

func (s *StatsService) MedianBalance(ctx context.Context) decimal.Decimal {
	v, err := s.balanceRepo.MedianBalance(ctx, domain.BalanceFilter{PositiveOnly: true})
	return orDefault(s, "median_balance", decimal.Zero, v, err)
}

// IssuedAmount Space 内奖励与平台储备的累计发行量
func (s *StatsService) IssuedAmount(ctx context.Context, spaceID int64) decimal.Decimal {
	v, err := s.txRepo.SumBySpaceAndTypes(ctx, spaceID, issuanceTypes)
	return orDefault(s, "space_issued", decimal.Zero, v, err)
}

func (s *StatsService) PlatformReserve(ctx context.Context, spaceID int64) decimal.Decimal {
	v, err := s.txRepo.SumBySpaceAndTypes(ctx, spaceID, []domain.TransactionType{domain.PlatformReserve})
	return orDefault(s, "space_platform_reserve", decimal.Zero, v, err)
}

// Supply 流通率 = active / total，保留 4 位
func (s *StatsService) Supply(ctx context.Context) SupplyStats {
	out := SupplyStats{
		TotalSupply:     s.TotalSupply(ctx),
		ActiveSupply:    s.ActiveSupply(ctx),
		FrozenSupply:    s.FrozenSupply(ctx),
		CirculationRate: decimal.Zero,
	}
	if out.TotalSupply.IsPositive() {
		out.CirculationRate = out.ActiveSupply.DivRound(out.TotalSupply, 4)
	}
	return out
}

func (s *StatsService) Distribution(ctx context.Context) DistributionStats {
	return DistributionStats{
		TotalAccounts:  s.TotalAccounts(ctx),
		ActiveAccounts: s.ActiveAccounts(ctx),
		AverageBalance: s.AverageBalance(ctx),
		MedianBalance:  s.MedianBalance(ctx),
	}
}

func (s *StatsService) Space(ctx context.Context, spaceID int64) SpaceStats {
	out := SpaceStats{
		SpaceID:         spaceID,
		TotalSupply:     s.SpaceSupply(ctx, spaceID),
		ActiveUsers:     s.ActiveUsers(ctx, spaceID),
		AverageBalance:  decimal.Zero,
		IssuedAmount:    s.IssuedAmount(ctx, spaceID),
		PlatformReserve: s.PlatformReserve(ctx, spaceID),
	}
	if out.ActiveUsers > 0 {
		out.AverageBalance = out.TotalSupply.DivRound(decimal.NewFromInt(out.ActiveUsers), domain.Scale)
	}
	return out
}

// Health 总供给为负判定不健康；活跃占比过低只记为提示
func (s *StatsService) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Healthy:        true,
		Issues:         []string{},
		TotalSupply:    s.TotalSupply(ctx),
		TotalAccounts:  s.TotalAccounts(ctx),
		ActiveAccounts: s.ActiveAccounts(ctx),
		CheckedAt:      s.now(),
	}

	if report.TotalSupply.IsNegative() {
		report.Healthy = false
		report.Issues = append(report.Issues, "negative total supply detected")
	}
	if report.TotalAccounts > 0 {
		ratio := decimal.NewFromInt(report.ActiveAccounts).Div(decimal.NewFromInt(report.TotalAccounts))
		if ratio.LessThan(lowActiveRatio) {
			report.Issues = append(report.Issues, "low active account ratio")
		}
	}
	if !report.Healthy {
		s.logger.Warn("sfrt ledger unhealthy", zap.Strings("issues", report.Issues))
	}
	return report
}
