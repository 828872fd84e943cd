package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	ledger "github.com/imagaram/sfr-backend-sub001/internal/ledger/domain"
)

// PlatformPartyID 平台储备账户
const PlatformPartyID = "platform-reserve"

var (
	ErrMissingEventID      = errors.New("reward event id is required")
	ErrUnknownRewardKind   = errors.New("unknown reward kind")
	ErrDistributionStopped = errors.New("reward distribution stopped before all shares were credited")
)

// Kind 奖励种类
type Kind string

const (
	KindSale       Kind = "sale"
	KindPurchase   Kind = "purchase"
	KindStaking    Kind = "staking"
	KindGovernance Kind = "governance"
	KindLiquidity  Kind = "liquidity"
	KindManual     Kind = "manual"
)

// 单人奖励种类对应的交易类型
var singleKinds = map[Kind]ledger.TransactionType{
	KindStaking:    ledger.StakingReward,
	KindGovernance: ledger.GovernanceReward,
	KindLiquidity:  ledger.LiquidityReward,
}

// SingleKindType 只接受 staking / governance / liquidity
func SingleKindType(k Kind) (ledger.TransactionType, error) {
	t, ok := singleKinds[k]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRewardKind, k)
	}
	return t, nil
}

// Role 份额接收方角色
type Role string

const (
	RoleBuyer     Role = "buyer"
	RoleSeller    Role = "seller"
	RolePlatform  Role = "platform"
	RoleRecipient Role = "recipient"
)

// ShareStatus 份额处理结果
type ShareStatus string

const (
	ShareApplied      ShareStatus = "applied"
	ShareSkipped      ShareStatus = "skipped" // 金额为 0，不写流水
	ShareFailed       ShareStatus = "failed"
	ShareNotAttempted ShareStatus = "not_attempted"
)

// ComputeShare base × rate，8 位小数四舍五入
func ComputeShare(base, rate decimal.Decimal) decimal.Decimal {
	return base.Mul(rate).Round(ledger.Scale)
}

// Share 一笔待入账的份额
type Share struct {
	Role    Role                   `json:"role"`
	PartyID string                 `json:"party_id"`
	Type    ledger.TransactionType `json:"type"`
	Amount  decimal.Decimal        `json:"amount"`
	Status  ShareStatus            `json:"status"`
	TxID    int64                  `json:"tx_id,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// DistributionResult 一次分发的完整记录，也是日志落盘的单位
type DistributionResult struct {
	ID         string          `json:"id"`
	EventID    string          `json:"event_id"`
	Kind       Kind            `json:"kind"`
	SpaceID    int64           `json:"space_id"`
	Base       decimal.Decimal `json:"base"`
	Shares     []Share         `json:"shares"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Complete 没有失败也没有未执行的份额
func (r *DistributionResult) Complete() bool {
	for _, s := range r.Shares {
		if s.Status == ShareFailed || s.Status == ShareNotAttempted {
			return false
		}
	}
	return true
}

// Applied 已入账总额
func (r *DistributionResult) Applied() decimal.Decimal {
	total := decimal.Zero
	for _, s := range r.Shares {
		if s.Status == ShareApplied {
			total = total.Add(s.Amount)
		}
	}
	return total
}

// Simulation 试算结果，不落库
type Simulation struct {
	SpaceID  int64           `json:"space_id"`
	Base     decimal.Decimal `json:"base"`
	Buyer    decimal.Decimal `json:"buyer"`
	Seller   decimal.Decimal `json:"seller"`
	Platform decimal.Decimal `json:"platform"`
	Total    decimal.Decimal `json:"total"`
}
