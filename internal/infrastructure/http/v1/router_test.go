package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/alerts"
	"stockledger/internal/domain/audit"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/stock"
	v1 "stockledger/internal/infrastructure/http/v1"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/pkg/logger"
	"stockledger/pkg/numerator"
)

func newRouter(t *testing.T, checks map[string]handlers.Check) *gin.Engine {
	t.Helper()
	store := memory.NewStore()
	ledgerSvc := ledger.NewService(store, store)
	alertSvc := alerts.NewService(store, store, nil)

	walkIns := numerator.New(store, numerator.WalkInConfig())

	return v1.NewRouter(v1.RouterConfig{
		Logger:          logger.NewNop(),
		Stock:           stock.NewService(store, store, store, stock.WithWalkInNumbers(walkIns)),
		Ledger:          ledgerSvc,
		Alerts:          alertSvc,
		Audit:           audit.NewService(store, ledgerSvc, alertSvc),
		HealthChecks:    checks,
		DefaultLocation: "main",
		Idempotency:     memory.NewIdempotencyStore(store, time.Hour),
	})
}

func do(t *testing.T, r http.Handler, method, path string, body any, user string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	headers := map[string]string{}
	if user != "" {
		headers["X-User-ID"] = user
	}
	return doWith(t, r, method, path, body, headers)
}

func doWith(t *testing.T, r http.Handler, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func TestStockFlow_PurchaseReserveCommit(t *testing.T) {
	r := newRouter(t, nil)
	product := id.New().String()

	for _, qty := range []int{10, 50} {
		w, _ := do(t, r, http.MethodPost, "/api/v1/stock/movements", map[string]any{
			"product_id": product, "movement_type": "purchase", "quantity": qty,
		}, "clerk")
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w, reservation := do(t, r, http.MethodPost, "/api/v1/stock/reservations", map[string]any{
		"product_id": product, "quantity": 20, "reference": "WI-20250105-0001",
	}, "cashier")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "active", reservation["status"])
	assert.Equal(t, "cashier", reservation["performed_by"])

	w, sale := do(t, r, http.MethodPost, "/api/v1/stock/reservations/"+reservation["id"].(string)+"/commit", nil, "cashier")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "sale", sale["movement_type"])
	assert.EqualValues(t, -20, sale["quantity"])

	w, rec := do(t, r, http.MethodGet, "/api/v1/stock/records?product_id="+product, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 40, rec["quantity_available"])
	assert.EqualValues(t, 0, rec["quantity_reserved"])
	assert.EqualValues(t, 40, rec["total_stock"])
	assert.Equal(t, "main", rec["location"])

	w, consistency := do(t, r, http.MethodGet, "/api/v1/stock/consistency?product_id="+product, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, consistency["consistent"])
}

func TestReserve_InsufficientStock(t *testing.T) {
	r := newRouter(t, nil)

	w, body := do(t, r, http.MethodPost, "/api/v1/stock/reservations", map[string]any{
		"product_id": id.New().String(), "quantity": 1,
	}, "")

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", body["code"])
	assert.Contains(t, body["message"], "Available: 0")
}

func TestReserve_MissingProduct(t *testing.T) {
	r := newRouter(t, nil)

	w, body := do(t, r, http.MethodPost, "/api/v1/stock/reservations", map[string]any{"quantity": 1}, "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
}

func TestApplyMovement_SystemTypeRejected(t *testing.T) {
	r := newRouter(t, nil)

	w, body := do(t, r, http.MethodPost, "/api/v1/stock/movements", map[string]any{
		"product_id": id.New().String(), "movement_type": "reservation", "quantity": -1,
	}, "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_MOVEMENT_TYPE", body["code"])
}

func TestRelease_UnknownReservation(t *testing.T) {
	r := newRouter(t, nil)

	w, body := do(t, r, http.MethodPost, "/api/v1/stock/reservations/"+id.New().String()+"/release", nil, "")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "RESERVATION_CONFLICT", body["code"])
}

func TestRelease_BadID(t *testing.T) {
	r := newRouter(t, nil)

	w, _ := do(t, r, http.MethodPost, "/api/v1/stock/reservations/not-a-uuid/release", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRecord_NotFound(t *testing.T) {
	r := newRouter(t, nil)

	w, body := do(t, r, http.MethodGet, "/api/v1/stock/records?product_id="+id.New().String(), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestMovements_FilterByActor(t *testing.T) {
	r := newRouter(t, nil)
	product := id.New().String()

	for _, user := range []string{"alice", "bob"} {
		w, _ := do(t, r, http.MethodPost, "/api/v1/stock/movements", map[string]any{
			"product_id": product, "movement_type": "purchase", "quantity": 5,
		}, user)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w, body := do(t, r, http.MethodGet, "/api/v1/movements?performed_by=alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	items := body["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "alice", item["performed_by"])
	assert.Equal(t, "business", item["category"])
	assert.Equal(t, "blue", item["badge_color"])

	assert.EqualValues(t, 1, body["total_items"])
	assert.EqualValues(t, ledger.DefaultPageSize, body["page_size"])
	filters := body["filters_applied"].(map[string]any)
	assert.Equal(t, "alice", filters["performed_by"])
}

func TestMovements_InvalidQuery(t *testing.T) {
	r := newRouter(t, nil)

	w, body := do(t, r, http.MethodGet, "/api/v1/movements?start_date=yesterday", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_QUERY", body["code"])
}

func TestAuditTrail_RequiresPeriod(t *testing.T) {
	r := newRouter(t, nil)

	w, body := do(t, r, http.MethodGet, "/api/v1/reports/audit-trail?start_date=2025-01-01", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_QUERY", body["code"])
}

func TestAlerts_EmptyReport(t *testing.T) {
	r := newRouter(t, nil)

	w, body := do(t, r, http.MethodGet, "/api/v1/reports/alerts", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	summary := body["summary"].(map[string]any)
	assert.EqualValues(t, 0, summary["total_alerts"])
}

func TestHealth(t *testing.T) {
	r := newRouter(t, map[string]handlers.Check{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	w, _ := do(t, r, http.MethodGet, "/health/live", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, body := do(t, r, http.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "healthy", checks["database"])
	assert.Contains(t, checks["redis"], "connection refused")
}

func TestTraceHeaders(t *testing.T) {
	r := newRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
}

func TestIdempotency_ReplaysFirstResponse(t *testing.T) {
	r := newRouter(t, nil)
	product := id.New().String()
	body := map[string]any{"product_id": product, "movement_type": "purchase", "quantity": 10}
	headers := map[string]string{"X-User-ID": "clerk", "X-Idempotency-Key": "purchase-1"}

	first, created := doWith(t, r, http.MethodPost, "/api/v1/stock/movements", body, headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	assert.Empty(t, first.Header().Get("Idempotent-Replayed"))

	second, replayed := doWith(t, r, http.MethodPost, "/api/v1/stock/movements", body, headers)
	require.Equal(t, http.StatusCreated, second.Code, second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, created["id"], replayed["id"])

	w, rec := do(t, r, http.MethodGet, "/api/v1/stock/records?product_id="+product, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 10, rec["quantity_available"])

	body["quantity"] = 11
	w, errBody := doWith(t, r, http.MethodPost, "/api/v1/stock/movements", body, headers)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "IDEMPOTENCY_KEY_REUSED", errBody["code"])
}

func TestIdempotency_FailedRequestIsNotReplayed(t *testing.T) {
	r := newRouter(t, nil)
	body := map[string]any{"product_id": id.New().String(), "quantity": 1}
	headers := map[string]string{"X-Idempotency-Key": "reserve-1"}

	for i := 0; i < 2; i++ {
		w, errBody := doWith(t, r, http.MethodPost, "/api/v1/stock/reservations", body, headers)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "INSUFFICIENT_STOCK", errBody["code"])
		assert.Empty(t, w.Header().Get("Idempotent-Replayed"))
	}
}

func TestReserve_WalkInGetsNumber(t *testing.T) {
	r := newRouter(t, nil)
	product := id.New().String()

	w, _ := do(t, r, http.MethodPost, "/api/v1/stock/movements", map[string]any{
		"product_id": product, "movement_type": "purchase", "quantity": 5,
	}, "clerk")
	require.Equal(t, http.StatusCreated, w.Code)

	w, reservation := do(t, r, http.MethodPost, "/api/v1/stock/reservations", map[string]any{
		"product_id": product, "quantity": 1, "walk_in": true,
	}, "cashier")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Regexp(t, `^WI-\d{8}-0001$`, reservation["reference"])
}
