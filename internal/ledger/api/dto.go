package api

import (
	"time"

	"github.com/imagaram/sfr-backend-sub001/internal/ledger/domain"
)

// MutationReq 管理端入账 / 出账
type MutationReq struct {
	PartyID        string `json:"party_id" binding:"required"`
	SpaceID        int64  `json:"space_id" binding:"required"`
	Amount         string `json:"amount" binding:"required"` // 必须传字符串
	Type           string `json:"type" binding:"required"`
	Description    string `json:"description" binding:"max=500"`
	RelatedEventID string `json:"related_event_id" binding:"max=64"`
}

type TransferReq struct {
	ToPartyID   string `json:"to_party_id" binding:"required"`
	SpaceID     int64  `json:"space_id" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	ReferenceID string `json:"reference_id" binding:"max=64"`
}

type StatusReq struct {
	PartyID string `json:"party_id" binding:"required"`
	SpaceID int64  `json:"space_id" binding:"required"`
	Status  string `json:"status" binding:"required"`
}

type ExchangeSettingsReq struct {
	SpaceID int64 `json:"space_id" binding:"required"`
	Enabled *bool `json:"enabled" binding:"required"`
}

// TransactionResp 流水输出，金额统一为字符串
type TransactionResp struct {
	ID             int64     `json:"id"`
	PartyID        string    `json:"party_id"`
	SpaceID        int64     `json:"space_id"`
	Amount         string    `json:"amount"`
	Type           string    `json:"type"`
	RelatedEventID string    `json:"related_event_id,omitempty"`
	BalanceBefore  string    `json:"balance_before"`
	BalanceAfter   string    `json:"balance_after"`
	Description    string    `json:"description,omitempty"`
	Status         string    `json:"status"`
	CompletedAt    time.Time `json:"completed_at"`
}

func NewTransactionResp(t *domain.Transaction) TransactionResp {
	resp := TransactionResp{
		ID:            t.ID,
		PartyID:       t.PartyID,
		SpaceID:       t.SpaceID,
		Amount:        t.Amount.StringFixed(domain.Scale),
		Type:          string(t.Type),
		BalanceBefore: t.BalanceBefore.StringFixed(domain.Scale),
		BalanceAfter:  t.BalanceAfter.StringFixed(domain.Scale),
		Description:   t.Description,
		Status:        string(t.Status),
		CompletedAt:   t.CompletedAt,
	}
	if t.RelatedEventID != nil {
		resp.RelatedEventID = *t.RelatedEventID
	}
	return resp
}

func NewTransactionList(txs []domain.Transaction) []TransactionResp {
	out := make([]TransactionResp, len(txs))
	for i := range txs {
		out[i] = NewTransactionResp(&txs[i])
	}
	return out
}

type BalanceResp struct {
	PartyID                 string     `json:"party_id"`
	SpaceID                 int64      `json:"space_id"`
	CurrentBalance          string     `json:"current_balance"`
	TotalEarnedPurchase     string     `json:"total_earned_purchase"`
	TotalEarnedSales        string     `json:"total_earned_sales"`
	TotalRedeemed           string     `json:"total_redeemed"`
	TotalTransferredIn      string     `json:"total_transferred_in"`
	TotalTransferredOut     string     `json:"total_transferred_out"`
	ExternalExchangeEnabled bool       `json:"external_exchange_enabled"`
	Status                  string     `json:"status"`
	LastRewardAt            *time.Time `json:"last_reward_at,omitempty"`
}

func NewBalanceResp(b *domain.Balance) BalanceResp {
	return BalanceResp{
		PartyID:                 b.PartyID,
		SpaceID:                 b.SpaceID,
		CurrentBalance:          b.CurrentBalance.StringFixed(domain.Scale),
		TotalEarnedPurchase:     b.TotalEarnedPurchase.StringFixed(domain.Scale),
		TotalEarnedSales:        b.TotalEarnedSales.StringFixed(domain.Scale),
		TotalRedeemed:           b.TotalRedeemed.StringFixed(domain.Scale),
		TotalTransferredIn:      b.TotalTransferredIn.StringFixed(domain.Scale),
		TotalTransferredOut:     b.TotalTransferredOut.StringFixed(domain.Scale),
		ExternalExchangeEnabled: b.ExternalExchangeEnabled,
		Status:                  string(b.Status),
		LastRewardAt:            b.LastRewardAt,
	}
}
