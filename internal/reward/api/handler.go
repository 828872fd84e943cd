package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	ledgerapi "github.com/imagaram/sfr-backend-sub001/internal/ledger/api"
	ledger "github.com/imagaram/sfr-backend-sub001/internal/ledger/domain"
	"github.com/imagaram/sfr-backend-sub001/internal/reward/domain"
	"github.com/imagaram/sfr-backend-sub001/internal/reward/service"
)

// EntryLookup 按事件查流水，用于审计接口
type EntryLookup interface {
	EventEntries(ctx context.Context, eventID string) ([]ledger.Transaction, error)
}

type SaleReq struct {
	EventID  string `json:"event_id" binding:"required,max=64"`
	BuyerID  string `json:"buyer_id" binding:"required"`
	SellerID string `json:"seller_id" binding:"required"`
	SpaceID  int64  `json:"space_id" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
}

type PurchaseReq struct {
	EventID string `json:"event_id" binding:"required,max=64"`
	BuyerID string `json:"buyer_id" binding:"required"`
	SpaceID int64  `json:"space_id" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}

// SingleReq amount 可省略，使用配置的固定金额
type SingleReq struct {
	EventID     string `json:"event_id" binding:"required,max=64"`
	PartyID     string `json:"party_id" binding:"required"`
	SpaceID     int64  `json:"space_id" binding:"required"`
	Amount      string `json:"amount"`
	Description string `json:"description" binding:"max=500"`
}

type ManualReq struct {
	EventID string `json:"event_id" binding:"required,max=64"`
	PartyID string `json:"party_id" binding:"required"`
	SpaceID int64  `json:"space_id" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
	Reason  string `json:"reason" binding:"max=500"`
}

type RewardHandler struct {
	svc     *service.DistributionService
	entries EntryLookup
}

func NewRewardHandler(svc *service.DistributionService, entries EntryLookup) *RewardHandler {
	return &RewardHandler{svc: svc, entries: entries}
}

func (h *RewardHandler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/sfrt/rewards")
	{
		g.POST("/sale", h.Sale)
		g.POST("/purchase", h.Purchase)
		g.POST("/manual", h.Manual)
		g.POST("/:kind", h.Single)
		g.GET("/simulate", h.Simulate)
		g.GET("/events/:eventId", h.Event)
	}
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrMissingEventID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrUnknownRewardKind):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrDistributionDisabled):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		ledgerapi.RespondError(c, err)
	}
}

func bindAmount(c *gin.Context, raw string, optional bool) (decimal.Decimal, bool) {
	if raw == "" && optional {
		return decimal.Zero, true
	}
	amt, err := decimal.NewFromString(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount: " + raw})
		return decimal.Zero, false
	}
	return amt, true
}

// respondResult 部分失败时返回 207，body 里带每笔份额的状态
func respondResult(c *gin.Context, res *domain.DistributionResult, err error) {
	if err != nil && res == nil {
		respondError(c, err)
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusMultiStatus, gin.H{"result": res, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}

// Sale POST /api/v1/sfrt/rewards/sale
func (h *RewardHandler) Sale(c *gin.Context) {
	var req SaleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	amount, ok := bindAmount(c, req.Amount, false)
	if !ok {
		return
	}
	res, err := h.svc.DistributeSale(c.Request.Context(), service.SaleEvent{
		EventID:  req.EventID,
		BuyerID:  req.BuyerID,
		SellerID: req.SellerID,
		SpaceID:  req.SpaceID,
		Amount:   amount,
	})
	respondResult(c, res, err)
}

// Purchase POST /api/v1/sfrt/rewards/purchase
func (h *RewardHandler) Purchase(c *gin.Context) {
	var req PurchaseReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	amount, ok := bindAmount(c, req.Amount, false)
	if !ok {
		return
	}
	res, err := h.svc.DistributePurchase(c.Request.Context(), service.PurchaseEvent{
		EventID: req.EventID,
		BuyerID: req.BuyerID,
		SpaceID: req.SpaceID,
		Amount:  amount,
	})
	respondResult(c, res, err)
}

// Single POST /api/v1/sfrt/rewards/{staking|governance|liquidity}
func (h *RewardHandler) Single(c *gin.Context) {
	kind := domain.Kind(c.Param("kind"))
	if _, err := domain.SingleKindType(kind); err != nil {
		respondError(c, err)
		return
	}
	var req SingleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	amount, ok := bindAmount(c, req.Amount, true)
	if !ok {
		return
	}
	res, err := h.svc.DistributeSingle(c.Request.Context(), kind, service.SingleReward{
		EventID:     req.EventID,
		PartyID:     req.PartyID,
		SpaceID:     req.SpaceID,
		Amount:      amount,
		Description: req.Description,
	})
	respondResult(c, res, err)
}

// Manual POST /api/v1/sfrt/rewards/manual
func (h *RewardHandler) Manual(c *gin.Context) {
	var req ManualReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	amount, ok := bindAmount(c, req.Amount, false)
	if !ok {
		return
	}
	res, err := h.svc.DistributeManual(c.Request.Context(), service.ManualReward{
		EventID: req.EventID,
		PartyID: req.PartyID,
		SpaceID: req.SpaceID,
		Amount:  amount,
		Reason:  req.Reason,
	})
	respondResult(c, res, err)
}

// Simulate GET /api/v1/sfrt/rewards/simulate?space_id=1&amount=1000
func (h *RewardHandler) Simulate(c *gin.Context) {
	spaceID, err := strconv.ParseInt(c.Query("space_id"), 10, 64)
	if err != nil || spaceID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid space id"})
		return
	}
	amount, ok := bindAmount(c, c.Query("amount"), false)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.svc.Simulate(spaceID, amount))
}

// Event 某个业务事件产生的流水与分发记录
// GET /api/v1/sfrt/rewards/events/:eventId
func (h *RewardHandler) Event(c *gin.Context) {
	eventID := c.Param("eventId")
	entries, err := h.entries.EventEntries(c.Request.Context(), eventID)
	if err != nil {
		respondError(c, err)
		return
	}
	records, err := h.svc.Records(eventID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"event_id":      eventID,
		"entries":       ledgerapi.NewTransactionList(entries),
		"distributions": records,
	})
}
