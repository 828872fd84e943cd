package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/imagaram/sfr-backend-sub001/internal/ledger/adapter/repo"
	ledgerapi "github.com/imagaram/sfr-backend-sub001/internal/ledger/api"
	ledgersvc "github.com/imagaram/sfr-backend-sub001/internal/ledger/service"
	"github.com/imagaram/sfr-backend-sub001/internal/platform/server"
	"github.com/imagaram/sfr-backend-sub001/internal/reward/adapter/journal"
	"github.com/imagaram/sfr-backend-sub001/internal/reward/domain"
	"github.com/imagaram/sfr-backend-sub001/internal/reward/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRouter(t *testing.T, params domain.StaticParameters) *gin.Engine {
	t.Helper()
	dsn := fmt.Sprintf("file:reward_api_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{DisableForeignKeyConstraintWhenMigrating: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repo.AutoMigrate(db))

	ledger := ledgersvc.NewLedgerService(db, repo.NewBalanceRepo(db), repo.NewTransactionRepo(db), zap.NewNop(),
		ledgersvc.WithErrorClassifier(repo.ClassifyError))
	j, err := journal.Open(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	svc := service.NewDistributionService(ledger, params, j, zap.NewNop())
	return server.NewEngine(zap.NewNop(), NewRewardHandler(svc, ledger))
}

func post(t *testing.T, r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRewardHandler_SaleAndEventLookup(t *testing.T) {
	r := setupRouter(t, domain.StaticParameters{})

	w := post(t, r, "/api/v1/sfrt/rewards/sale", SaleReq{
		EventID: "order-9", BuyerID: "buyer", SellerID: "seller", SpaceID: 1, Amount: "1000",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Result domain.DistributionResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Result.Shares, 3)
	for _, s := range body.Result.Shares {
		assert.Equal(t, domain.ShareApplied, s.Status)
	}
	assert.True(t, decimal.RequireFromString("50").Equal(body.Result.Applied()))

	w = get(r, "/api/v1/sfrt/rewards/events/order-9")
	require.Equal(t, http.StatusOK, w.Code)
	var event struct {
		Entries       []ledgerapi.TransactionResp `json:"entries"`
		Distributions []domain.DistributionResult `json:"distributions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &event))
	assert.Len(t, event.Entries, 3)
	require.Len(t, event.Distributions, 1)
	assert.Equal(t, body.Result.ID, event.Distributions[0].ID)
}

func TestRewardHandler_SingleAndManual(t *testing.T) {
	r := setupRouter(t, domain.StaticParameters{
		domain.KeyFlatAmount(domain.KindStaking): "10",
	})

	w := post(t, r, "/api/v1/sfrt/rewards/staking", SingleReq{EventID: "stk-1", PartyID: "u", SpaceID: 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = post(t, r, "/api/v1/sfrt/rewards/governance", SingleReq{EventID: "gov-1", PartyID: "u", SpaceID: 1, Amount: "2.5", Description: "proposal #1 vote"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = get(r, "/api/v1/sfrt/rewards/events/gov-1")
	require.Equal(t, http.StatusOK, w.Code)
	var gov struct {
		Entries []ledgerapi.TransactionResp `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &gov))
	require.Len(t, gov.Entries, 1)
	assert.Equal(t, "proposal #1 vote", gov.Entries[0].Description)

	// 未配置固定金额且未传 amount
	w = post(t, r, "/api/v1/sfrt/rewards/liquidity", SingleReq{EventID: "liq-1", PartyID: "u", SpaceID: 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(t, r, "/api/v1/sfrt/rewards/airdrop", SingleReq{EventID: "x", PartyID: "u", SpaceID: 1, Amount: "1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = post(t, r, "/api/v1/sfrt/rewards/manual", ManualReq{EventID: "adj-1", PartyID: "u", SpaceID: 1, Amount: "3", Reason: "support ticket"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = get(r, "/api/v1/sfrt/rewards/events/adj-1")
	require.Equal(t, http.StatusOK, w.Code)
	var event struct {
		Entries []ledgerapi.TransactionResp `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &event))
	require.Len(t, event.Entries, 1)
	assert.Equal(t, "support ticket", event.Entries[0].Description)
	assert.Equal(t, "ADJUSTMENT", event.Entries[0].Type)
}

func TestRewardHandler_Guards(t *testing.T) {
	r := setupRouter(t, domain.StaticParameters{domain.KeyEnabled: "false"})

	w := post(t, r, "/api/v1/sfrt/rewards/purchase", PurchaseReq{EventID: "p-1", BuyerID: "b", SpaceID: 1, Amount: "100"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = post(t, r, "/api/v1/sfrt/rewards/purchase", PurchaseReq{EventID: "p-1", BuyerID: "b", SpaceID: 1, Amount: "abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(t, r, "/api/v1/sfrt/rewards/sale", map[string]interface{}{"buyer_id": "b", "seller_id": "s", "space_id": 1, "amount": "1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRewardHandler_Simulate(t *testing.T) {
	r := setupRouter(t, domain.StaticParameters{})

	w := get(r, "/api/v1/sfrt/rewards/simulate?space_id=1&amount=1000")
	require.Equal(t, http.StatusOK, w.Code)
	var sim domain.Simulation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sim))
	assert.True(t, decimal.RequireFromString("12.5").Equal(sim.Buyer))
	assert.True(t, decimal.RequireFromString("25").Equal(sim.Platform))
	assert.True(t, decimal.RequireFromString("50").Equal(sim.Total))

	w = get(r, "/api/v1/sfrt/rewards/simulate?space_id=0&amount=1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
