package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/celf/client"
	"github.com/brojonat/celf/service/metrics"
	"github.com/brojonat/celf/service/wallet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource is an in-memory wallet API.
type fakeSource struct {
	mu         sync.Mutex
	balanceErr error
	txnsErr    error
	txns       []client.RawTransaction
	byID       map[string]*client.RawTransaction
	calls      int
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		txns: []client.RawTransaction{
			{ID: "tx1", Kind: "send", Amount: amount("-2.5"), Status: "completed", CreatedAt: "2024-01-02T10:00:00Z",
				RecipientName: "Grace", Fee: amount("0.01"), ToAddress: "addrB"},
			{ID: "tx2", Kind: "bonus", Amount: amount("5"), Status: "confirmed", CreatedAt: "2024-01-01T10:00:00Z", TaskID: "task-1"},
		},
		byID: map[string]*client.RawTransaction{},
	}
}

func (f *fakeSource) Balance(ctx context.Context, userID string) (*client.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return &client.Balance{
		Total: decimal.RequireFromString("1234.5"),
		Breakdown: map[string]decimal.Decimal{
			"mined": decimal.RequireFromString("1234.5"),
		},
	}, nil
}

func (f *fakeSource) Transactions(ctx context.Context, userID string, limit int) ([]client.RawTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.txnsErr != nil {
		return nil, f.txnsErr
	}
	return append([]client.RawTransaction(nil), f.txns...), nil
}

func (f *fakeSource) Transaction(ctx context.Context, id string) (*client.RawTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.byID[id]
	if !ok {
		return nil, client.ErrNotFound
	}
	return raw, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestController(src wallet.Source) *wallet.Controller {
	return wallet.NewController(src, wallet.NewStore(10), wallet.ControllerOptions{
		UserID: "user-1",
		Logger: testLogger(),
	})
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleGetWallet(t *testing.T) {
	ctrl := newTestController(newFakeSource())
	require.Equal(t, wallet.OutcomeSucceeded, ctrl.Refresh(context.Background(), false))

	rec := httptest.NewRecorder()
	handleGetWallet(ctrl, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var vm wallet.ViewModel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vm))
	assert.Equal(t, "1,234.50", vm.Balance)
	require.Len(t, vm.Transactions, 2)
	assert.Equal(t, "Sent", vm.Transactions[0].Label)
	assert.Equal(t, "Task Reward", vm.Transactions[1].Label)
	assert.Equal(t, wallet.StatusCompleted, vm.Transactions[1].Status)
	assert.False(t, vm.IsEmpty)
}

func TestHandleGetWallet_FailedRefresh(t *testing.T) {
	src := newFakeSource()
	src.balanceErr = errors.New("upstream down")
	src.txnsErr = errors.New("upstream down")
	ctrl := newTestController(src)
	ctrl.Refresh(context.Background(), false)

	rec := httptest.NewRecorder()
	handleGetWallet(ctrl, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil))

	assert.Equal(t, http.StatusOK, rec.Code, "a failed refresh is state, not an HTTP error")
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["refresh_failed"])
	assert.Equal(t, false, body["is_empty"])
}

func TestHandleListTransactions(t *testing.T) {
	ctrl := newTestController(newFakeSource())
	require.Equal(t, wallet.OutcomeSucceeded, ctrl.Refresh(context.Background(), false))
	handler := handleListTransactions(ctrl, testLogger())

	tests := []struct {
		name           string
		query          string
		expectedStatus int
		expectedCount  float64
		errContains    string
	}{
		{name: "default limit", query: "", expectedStatus: http.StatusOK, expectedCount: 2},
		{name: "limit 1", query: "?limit=1", expectedStatus: http.StatusOK, expectedCount: 1},
		{name: "non-numeric limit", query: "?limit=abc", expectedStatus: http.StatusBadRequest, errContains: "must be an integer"},
		{name: "zero limit", query: "?limit=0", expectedStatus: http.StatusBadRequest, errContains: "between 1 and 10"},
		{name: "limit above window", query: "?limit=11", expectedStatus: http.StatusBadRequest, errContains: "between 1 and 10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/wallet/transactions"+tt.query, nil))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			body := decodeBody(t, rec)
			if tt.errContains != "" {
				assert.Contains(t, body["error"], tt.errContains)
				return
			}
			assert.Equal(t, tt.expectedCount, body["count"])
			assert.Equal(t, true, body["loaded"])
		})
	}
}

func TestHandleGetTransaction(t *testing.T) {
	src := newFakeSource()
	src.byID["remote"] = &client.RawTransaction{ID: "remote", Kind: "receive", Amount: amount("1"), SenderName: "Ada"}
	src.byID["broken"] = &client.RawTransaction{ID: "broken", Kind: "receive"}
	ctrl := newTestController(src)
	require.Equal(t, wallet.OutcomeSucceeded, ctrl.Refresh(context.Background(), false))

	srv := New(":0", "user-1", ctrl, nil, testLogger())
	handler := srv.Handler()

	t.Run("cached", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/wallet/transactions/tx1", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var detail wallet.Detail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
		assert.Equal(t, "tx1", detail.ID)
		assert.Equal(t, "-2.500000", detail.Amount)
		assert.Equal(t, "0.010000", detail.Fee)
		assert.Equal(t, "Grace", detail.Counterparty)
		assert.Equal(t, "January 2, 2024 at 10:00 AM", detail.LongDate)
		assert.Equal(t, "-2.500000 CELF send - ID: tx1", detail.ShareText)
	})

	t.Run("remote", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/wallet/transactions/remote", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "Ada", body["counterparty"])
	})

	t.Run("not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/wallet/transactions/missing", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "transaction not found", decodeBody(t, rec)["error"])
	})

	t.Run("malformed upstream record", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/wallet/transactions/broken", nil))

		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("id too long", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/wallet/transactions/"+strings.Repeat("a", 200), nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleRefresh(t *testing.T) {
	src := newFakeSource()
	ctrl := wallet.NewController(src, wallet.NewStore(10), wallet.ControllerOptions{
		UserID:             "user-1",
		MinRefreshInterval: time.Hour,
	})
	handler := handleRefresh(ctrl, testLogger())

	tests := []struct {
		name            string
		query           string
		expectedStatus  int
		expectedOutcome string
	}{
		{name: "first refresh", query: "", expectedStatus: http.StatusOK, expectedOutcome: "succeeded"},
		{name: "fresh data is skipped", query: "?force=false", expectedStatus: http.StatusOK, expectedOutcome: "skipped"},
		{name: "forced", query: "?force=true", expectedStatus: http.StatusOK, expectedOutcome: "succeeded"},
		{name: "invalid force", query: "?force=maybe", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/wallet/refresh"+tt.query, nil))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedOutcome != "" {
				body := decodeBody(t, rec)
				assert.Equal(t, tt.expectedOutcome, body["outcome"])
				assert.NotNil(t, body["wallet"])
			}
		})
	}

	src.mu.Lock()
	assert.Equal(t, 2, src.calls)
	src.mu.Unlock()
}

func TestHandleInvalidateSession(t *testing.T) {
	ctrl := newTestController(newFakeSource())
	require.Equal(t, wallet.OutcomeSucceeded, ctrl.Refresh(context.Background(), false))

	rec := httptest.NewRecorder()
	handleInvalidateSession(ctrl, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/wallet/session", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, ctrl.Store().Transactions())
	_, ok := ctrl.Store().Balance()
	assert.False(t, ok)
}

func TestHandleDebug(t *testing.T) {
	ctrl := newTestController(newFakeSource())

	t.Run("dump before refresh", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handleDebugDump(ctrl).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/wallet", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Nil(t, body["balance"])
		assert.Nil(t, body["breakdown_matches"])
		assert.Equal(t, false, body["transactions_loaded"])
	})

	t.Run("debug refresh", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handleDebugRefresh(ctrl).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/debug/wallet/refresh", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "succeeded", body["outcome"])
		assert.Equal(t, true, body["breakdown_matches"])
		assert.Equal(t, "idle", body["phase"])
		assert.Len(t, body["transactions"], 2)
	})
}

func TestServer_Routes(t *testing.T) {
	ctrl := newTestController(newFakeSource())
	m := metrics.NewMetrics(prometheus.NewRegistry())
	handler := New(":0", "user-1", ctrl, m, testLogger()).Handler()

	tests := []struct {
		method         string
		path           string
		expectedStatus int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/v1/wallet", http.StatusOK},
		{http.MethodGet, "/api/v1/wallet/transactions", http.StatusOK},
		{http.MethodPost, "/api/v1/wallet/refresh", http.StatusOK},
		{http.MethodDelete, "/api/v1/wallet/session", http.StatusNoContent},
		{http.MethodGet, "/debug/wallet", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodPut, "/api/v1/wallet", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
		{http.MethodOptions, "/api/v1/wallet", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestServer_NoMetricsEndpointWithoutMetrics(t *testing.T) {
	handler := New(":0", "user-1", newTestController(newFakeSource()), nil, testLogger()).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNew_NilLogger(t *testing.T) {
	srv := New(":0", "user-1", newTestController(newFakeSource()), nil, nil)

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, srv.Shutdown(context.Background()))
}

func TestValidateTransactionID(t *testing.T) {
	assert.NoError(t, validateTransactionID("65a1b2c3d4e5f6"))
	assert.Error(t, validateTransactionID(""))
	assert.Error(t, validateTransactionID("   "))
	assert.Error(t, validateTransactionID(strings.Repeat("x", maxTransactionIDLength+1)))
	assert.Error(t, validateTransactionID("bad\x00id"))
}
