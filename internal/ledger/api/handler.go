package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/imagaram/sfr-backend-sub001/internal/ledger/domain"
	"github.com/imagaram/sfr-backend-sub001/internal/ledger/service"
	"github.com/imagaram/sfr-backend-sub001/internal/platform/server"
)

type LedgerHandler struct {
	svc   *service.LedgerService
	stats *service.StatsService
}

func NewLedgerHandler(svc *service.LedgerService, stats *service.StatsService) *LedgerHandler {
	return &LedgerHandler{svc: svc, stats: stats}
}

// RegisterRoutes 注册路由
func (h *LedgerHandler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/sfrt")
	{
		g.GET("/balance", h.GetBalance)
		g.GET("/transactions", h.ListTransactions)
		g.POST("/transfer", h.Transfer)
		g.PUT("/exchange-settings", h.UpdateExchangeSettings)
		g.GET("/ledger/verify", h.VerifyLedger)

		// 管理端；鉴权在网关层
		g.POST("/admin/credit", h.AdminCredit)
		g.POST("/admin/debit", h.AdminDebit)
		g.PUT("/admin/status", h.AdminStatus)

		g.GET("/stats/supply", h.SupplyStats)
		g.GET("/stats/distribution", h.DistributionStats)
		g.GET("/stats/space/:spaceId", h.SpaceStats)
		g.GET("/stats/health", h.Health)
	}
}

func currentUser(c *gin.Context) (string, bool) {
	uid := c.GetString(server.CtxUserID)
	if uid == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return "", false
	}
	return uid, true
}

func spaceParam(c *gin.Context, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid space id"})
		return 0, false
	}
	return id, true
}

func parseAmount(c *gin.Context, raw string) (decimal.Decimal, bool) {
	amt, err := decimal.NewFromString(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount: " + raw})
		return decimal.Zero, false
	}
	return amt, true
}

// GetBalance 当前用户余额，不存在则开户
// GET /api/v1/sfrt/balance?space_id=1
func (h *LedgerHandler) GetBalance(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	spaceID, ok := spaceParam(c, c.Query("space_id"))
	if !ok {
		return
	}

	bal, err := h.svc.GetOrCreate(c.Request.Context(), uid, spaceID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewBalanceResp(bal))
}

// ListTransactions GET /api/v1/sfrt/transactions?space_id=1&limit=20&offset=0
func (h *LedgerHandler) ListTransactions(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	spaceID, ok := spaceParam(c, c.Query("space_id"))
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	txs, err := h.svc.History(c.Request.Context(), uid, spaceID, domain.Page{Limit: limit, Offset: offset})
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": NewTransactionList(txs),
		"limit":        limit,
		"offset":       offset,
	})
}

// Transfer POST /api/v1/sfrt/transfer
func (h *LedgerHandler) Transfer(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req TransferReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	out, in, err := h.svc.Transfer(c.Request.Context(), service.TransferRequest{
		FromPartyID: uid,
		ToPartyID:   req.ToPartyID,
		SpaceID:     req.SpaceID,
		Amount:      amount,
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"out": NewTransactionResp(out),
		"in":  NewTransactionResp(in),
	})
}

// UpdateExchangeSettings PUT /api/v1/sfrt/exchange-settings
func (h *LedgerHandler) UpdateExchangeSettings(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req ExchangeSettingsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if err := h.svc.SetExternalExchangeEnabled(c.Request.Context(), uid, req.SpaceID, *req.Enabled); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"space_id": req.SpaceID, "external_exchange_enabled": *req.Enabled})
}

// VerifyLedger GET /api/v1/sfrt/ledger/verify?party_id=u1&space_id=1
func (h *LedgerHandler) VerifyLedger(c *gin.Context) {
	party := c.Query("party_id")
	if party == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "party_id is required"})
		return
	}
	spaceID, ok := spaceParam(c, c.Query("space_id"))
	if !ok {
		return
	}
	audit, err := h.svc.VerifyLedger(c.Request.Context(), party, spaceID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, audit)
}

func (h *LedgerHandler) bindMutation(c *gin.Context) (service.MutationRequest, bool) {
	var req MutationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return service.MutationRequest{}, false
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return service.MutationRequest{}, false
	}
	typ, err := domain.ParseTransactionType(req.Type)
	if err != nil {
		RespondError(c, err)
		return service.MutationRequest{}, false
	}
	return service.MutationRequest{
		PartyID:        req.PartyID,
		SpaceID:        req.SpaceID,
		Amount:         amount,
		Type:           typ,
		Description:    req.Description,
		RelatedEventID: req.RelatedEventID,
	}, true
}

// AdminCredit POST /api/v1/sfrt/admin/credit
func (h *LedgerHandler) AdminCredit(c *gin.Context) {
	req, ok := h.bindMutation(c)
	if !ok {
		return
	}
	tx, err := h.svc.Credit(c.Request.Context(), req)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewTransactionResp(tx))
}

// AdminDebit POST /api/v1/sfrt/admin/debit
func (h *LedgerHandler) AdminDebit(c *gin.Context) {
	req, ok := h.bindMutation(c)
	if !ok {
		return
	}
	tx, err := h.svc.Debit(c.Request.Context(), req)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewTransactionResp(tx))
}

// AdminStatus PUT /api/v1/sfrt/admin/status
func (h *LedgerHandler) AdminStatus(c *gin.Context) {
	var req StatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	status, err := domain.ParseBalanceStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if status == domain.StatusFrozen {
		err = h.svc.Freeze(c.Request.Context(), req.PartyID, req.SpaceID)
	} else {
		err = h.svc.Unfreeze(c.Request.Context(), req.PartyID, req.SpaceID)
	}
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"party_id": req.PartyID, "space_id": req.SpaceID, "status": req.Status})
}

func (h *LedgerHandler) SupplyStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.stats.Supply(c.Request.Context()))
}

func (h *LedgerHandler) DistributionStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.stats.Distribution(c.Request.Context()))
}

func (h *LedgerHandler) SpaceStats(c *gin.Context) {
	spaceID, ok := spaceParam(c, c.Param("spaceId"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.stats.Space(c.Request.Context(), spaceID))
}

// Health 不健康时返回 503，方便探针
func (h *LedgerHandler) Health(c *gin.Context) {
	report := h.stats.Health(c.Request.Context())
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
