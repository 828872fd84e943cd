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
	"github.com/imagaram/sfr-backend-sub001/internal/ledger/domain"
	"github.com/imagaram/sfr-backend-sub001/internal/ledger/service"
	"github.com/imagaram/sfr-backend-sub001/internal/platform/server"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	dsn := fmt.Sprintf("file:ledger_api_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{DisableForeignKeyConstraintWhenMigrating: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repo.AutoMigrate(db))

	balances, txs := repo.NewBalanceRepo(db), repo.NewTransactionRepo(db)
	svc := service.NewLedgerService(db, balances, txs, zap.NewNop(), service.WithErrorClassifier(repo.ClassifyError))
	stats := service.NewStatsService(balances, txs, zap.NewNop())
	return server.NewEngine(zap.NewNop(), NewLedgerHandler(svc, stats))
}

func do(t *testing.T, r *gin.Engine, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(server.HeaderUserID, user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestLedgerHandler_Flow(t *testing.T) {
	r := setupRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/sfrt/admin/credit", "", MutationReq{
		PartyID: "alice", SpaceID: 1, Amount: "100", Type: string(domain.PurchaseReward), RelatedEventID: "order-1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var tx TransactionResp
	decode(t, w, &tx)
	assert.Equal(t, "100.00000000", tx.Amount)
	assert.Equal(t, "order-1", tx.RelatedEventID)

	w = do(t, r, http.MethodGet, "/api/v1/sfrt/balance?space_id=1", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var bal BalanceResp
	decode(t, w, &bal)
	assert.Equal(t, "100.00000000", bal.CurrentBalance)
	assert.Equal(t, "100.00000000", bal.TotalEarnedPurchase)

	w = do(t, r, http.MethodPost, "/api/v1/sfrt/transfer", "alice", TransferReq{ToPartyID: "bob", SpaceID: 1, Amount: "40"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/v1/sfrt/transactions?space_id=1", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Transactions []TransactionResp `json:"transactions"`
	}
	decode(t, w, &history)
	require.Len(t, history.Transactions, 1)
	assert.Equal(t, string(domain.TransferIn), history.Transactions[0].Type)

	w = do(t, r, http.MethodGet, "/api/v1/sfrt/ledger/verify?party_id=alice&space_id=1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var audit map[string]interface{}
	decode(t, w, &audit)
	assert.Equal(t, true, audit["consistent"])

	w = do(t, r, http.MethodGet, "/api/v1/sfrt/stats/supply", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var supply service.SupplyStats
	decode(t, w, &supply)
	assert.True(t, decimal.RequireFromString("100").Equal(supply.TotalSupply), supply.TotalSupply.String())
}

func TestLedgerHandler_ErrorMapping(t *testing.T) {
	r := setupRouter(t)

	cases := []struct {
		name   string
		method string
		path   string
		user   string
		body   interface{}
		want   int
	}{
		{"missing identity", http.MethodGet, "/api/v1/sfrt/balance?space_id=1", "", nil, http.StatusUnauthorized},
		{"bad space", http.MethodGet, "/api/v1/sfrt/balance?space_id=x", "u", nil, http.StatusBadRequest},
		{"bad amount", http.MethodPost, "/api/v1/sfrt/admin/credit", "", MutationReq{PartyID: "u", SpaceID: 1, Amount: "abc", Type: "ADJUSTMENT"}, http.StatusBadRequest},
		{"zero amount", http.MethodPost, "/api/v1/sfrt/admin/credit", "", MutationReq{PartyID: "u", SpaceID: 1, Amount: "0", Type: "ADJUSTMENT"}, http.StatusBadRequest},
		{"unknown type", http.MethodPost, "/api/v1/sfrt/admin/credit", "", MutationReq{PartyID: "u", SpaceID: 1, Amount: "1", Type: "GIFT"}, http.StatusBadRequest},
		{"debit unknown account", http.MethodPost, "/api/v1/sfrt/admin/debit", "", MutationReq{PartyID: "nobody", SpaceID: 1, Amount: "1", Type: "PENALTY"}, http.StatusNotFound},
		{"freeze unknown account", http.MethodPut, "/api/v1/sfrt/admin/status", "", StatusReq{PartyID: "nobody", SpaceID: 1, Status: "FROZEN"}, http.StatusNotFound},
		{"bad status", http.MethodPut, "/api/v1/sfrt/admin/status", "", StatusReq{PartyID: "nobody", SpaceID: 1, Status: "CLOSED"}, http.StatusBadRequest},
		{"self transfer", http.MethodPost, "/api/v1/sfrt/transfer", "u", TransferReq{ToPartyID: "u", SpaceID: 1, Amount: "1"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, r, tc.method, tc.path, tc.user, tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}

func TestLedgerHandler_FrozenAndInsufficient(t *testing.T) {
	r := setupRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/sfrt/admin/credit", "", MutationReq{PartyID: "u", SpaceID: 1, Amount: "10", Type: "SALES_REWARD"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/sfrt/admin/debit", "", MutationReq{PartyID: "u", SpaceID: 1, Amount: "11", Type: "EXCHANGE_TO_JPY"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, r, http.MethodPut, "/api/v1/sfrt/admin/status", "", StatusReq{PartyID: "u", SpaceID: 1, Status: "FROZEN"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/sfrt/admin/debit", "", MutationReq{PartyID: "u", SpaceID: 1, Amount: "1", Type: "EXCHANGE_TO_JPY"})
	assert.Equal(t, http.StatusConflict, w.Code)

	enabled := false
	w = do(t, r, http.MethodPut, "/api/v1/sfrt/exchange-settings", "u", ExchangeSettingsReq{SpaceID: 1, Enabled: &enabled})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/sfrt/stats/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
