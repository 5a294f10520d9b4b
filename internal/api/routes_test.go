package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erp-sync-service/internal/config"
	"erp-sync-service/internal/odoo"
	"erp-sync-service/internal/odoo/odootest"
	"erp-sync-service/internal/store"
	"erp-sync-service/internal/sync"
)

const testToken = "s3cret"

type testAPI struct {
	srv    *odootest.Server
	store  *store.MemoryStore
	router http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	srv := odootest.NewServer(t)
	s := store.NewMemoryStore()
	cfg := config.SyncConfig{Concurrency: 2, BatchSize: 10, MaxBatchErrors: 5, PickingTypeCode: "outgoing"}
	engine := sync.NewEngine(cfg, odoo.NewClient(srv.Config()), s, nil)
	h := NewHandler(config.ServerConfig{AuthToken: testToken}, sync.NewManager(cfg, engine), s)
	return &testAPI{srv: srv, store: s, router: h.Routes()}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) seedDelivery(t *testing.T, status store.DeliveryStatus) string {
	t.Helper()
	id, err := a.store.UpsertDelivery(context.Background(), &store.Delivery{
		OdooPickingID: store.NullInt64(10),
		Reference:     "WH/OUT/00010",
		Status:        status,
	})
	require.NoError(t, err)
	return id
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}

func TestHealthCheck(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestAuthMiddleware(t *testing.T) {
	a := newTestAPI(t)

	for _, header := range []string{"", "Bearer wrong", testToken} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/status", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		a.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
	}

	w := a.do(t, http.MethodGet, "/api/v1/sync/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware_EmptyTokenAllowsAll(t *testing.T) {
	handler := AuthMiddleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestCorsMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	t.Run("listed origin is echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://ops.example.com")
		w := httptest.NewRecorder()
		CorsMiddleware([]string{"https://ops.example.com"})(next).ServeHTTP(w, req)
		assert.Equal(t, "https://ops.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unlisted origin gets no header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		CorsMiddleware([]string{"https://ops.example.com"})(next).ServeHTTP(w, req)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		w := httptest.NewRecorder()
		CorsMiddleware(nil)(next).ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestPushStatusRoute(t *testing.T) {
	a := newTestAPI(t)
	a.srv.Handle("stock.picking", "write", func(args []any, kwargs map[string]any) (any, error) {
		return true, nil
	})
	id := a.seedDelivery(t, store.DeliveryAssigned)

	w := a.do(t, http.MethodPost, "/api/v1/deliveries/"+id+"/status", `{"status":"in_transit","notes":"on the way"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res sync.Result
	decodeBody(t, w, &res)
	assert.True(t, res.Success)
	assert.Empty(t, res.SyncError)

	d, err := a.store.GetDelivery(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.DeliveryInTransit, d.Status)
	assert.Equal(t, "on the way", d.Notes.String)
}

func TestPushStatusRoute_SyncErrorIsStillOK(t *testing.T) {
	a := newTestAPI(t)
	id := a.seedDelivery(t, store.DeliveryAssigned)
	a.srv.SetHTTPStatus(http.StatusServiceUnavailable)

	w := a.do(t, http.MethodPost, "/api/v1/deliveries/"+id+"/status", `{"status":"in_transit"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var res sync.Result
	decodeBody(t, w, &res)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.SyncError)
}

func TestPushStatusRoute_Errors(t *testing.T) {
	a := newTestAPI(t)
	id := a.seedDelivery(t, store.DeliveryDelivered)

	tests := []struct {
		name string
		path string
		body string
		code int
	}{
		{"unknown status", "/api/v1/deliveries/" + id + "/status", `{"status":"lost"}`, http.StatusBadRequest},
		{"bad json", "/api/v1/deliveries/" + id + "/status", `{`, http.StatusBadRequest},
		{"invalid transition", "/api/v1/deliveries/" + id + "/status", `{"status":"assigned"}`, http.StatusConflict},
		{"unknown delivery", "/api/v1/deliveries/missing/status", `{"status":"assigned"}`, http.StatusNotFound},
		{"missing driver", "/api/v1/deliveries/" + id + "/assign", `{}`, http.StatusBadRequest},
		{"bad signature", "/api/v1/deliveries/" + id + "/complete", `{"signature_base64":"***"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}
}

func TestAssignRoute(t *testing.T) {
	a := newTestAPI(t)
	id := a.seedDelivery(t, store.DeliveryAssigned)
	driver := &store.Driver{Name: "Dana"}
	require.NoError(t, a.store.CreateDriver(context.Background(), driver))

	w := a.do(t, http.MethodPost, "/api/v1/deliveries/"+id+"/assign", `{"driver_id":"`+driver.ID+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var res struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	decodeBody(t, w, &res)
	assert.True(t, res.Success)
	assert.Equal(t, true, res.Data["local_only"])
}

func TestPullQuotesRoute_Unlinked(t *testing.T) {
	a := newTestAPI(t)
	l := &store.Lead{Name: "Office refit"}
	require.NoError(t, a.store.CreateLead(context.Background(), l))

	w := a.do(t, http.MethodPost, "/api/v1/leads/"+l.ID+"/quotes/pull", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPullDeliveriesRoute(t *testing.T) {
	a := newTestAPI(t)
	a.srv.Handle("stock.picking", "search_count", func(args []any, kwargs map[string]any) (any, error) {
		return 0, nil
	})
	a.srv.Handle("stock.picking", "search_read", func(args []any, kwargs map[string]any) (any, error) {
		return []any{}, nil
	})

	w := a.do(t, http.MethodPost, "/api/v1/sync/deliveries/pull?since=2026-03-01T00:00:00Z&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res sync.BatchResult
	decodeBody(t, w, &res)
	assert.Zero(t, res.Total)
	assert.False(t, res.HasMore)

	calls := a.srv.CallsTo("stock.picking", "search_read")
	require.Len(t, calls, 1)
	assert.Equal(t, 5, calls[0].Kwargs["limit"])

	for _, q := range []string{"since=yesterday", "limit=-1", "offset=x"} {
		w = a.do(t, http.MethodPost, "/api/v1/sync/deliveries/pull?"+q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}

	a.srv.SetHTTPStatus(http.StatusInternalServerError)
	w = a.do(t, http.MethodPost, "/api/v1/sync/deliveries/pull", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestRunAndStatusRoutes(t *testing.T) {
	a := newTestAPI(t)
	a.srv.Handle("stock.picking", "search_count", func(args []any, kwargs map[string]any) (any, error) {
		return 0, nil
	})
	a.srv.Handle("stock.picking", "search_read", func(args []any, kwargs map[string]any) (any, error) {
		return []any{}, nil
	})

	w := a.do(t, http.MethodPost, "/api/v1/sync/run", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.do(t, http.MethodGet, "/api/v1/sync/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Status  string          `json:"status"`
		LastRun json.RawMessage `json:"last_run"`
	}
	decodeBody(t, w, &status)
	assert.Equal(t, sync.StatusIdle, status.Status)
	assert.NotEmpty(t, status.LastRun)
}

func TestSyncLogsRoute(t *testing.T) {
	a := newTestAPI(t)
	require.NoError(t, a.store.AppendSyncLog(context.Background(), &store.SyncLogEntry{
		SubjectType:   "delivery",
		SubjectID:     store.NullString("d-1"),
		Operation:     "push_status",
		Outcome:       "error",
		RemoteSummary: json.RawMessage(`{"status":"delivered"}`),
		ErrorMessage:  store.NullString("odoo transport: unexpected status 503"),
	}))
	require.NoError(t, a.store.AppendSyncLog(context.Background(), &store.SyncLogEntry{
		SubjectType: "batch",
		Operation:   "pull_deliveries",
		Outcome:     "success",
	}))

	w := a.do(t, http.MethodGet, "/api/v1/sync/logs?subject_id=d-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var logs []map[string]any
	decodeBody(t, w, &logs)
	require.Len(t, logs, 1)
	assert.Equal(t, "d-1", logs[0]["subject_id"])
	assert.Equal(t, "push_status", logs[0]["operation"])
	assert.Equal(t, map[string]any{"status": "delivered"}, logs[0]["remote_summary"])
	assert.Equal(t, "odoo transport: unexpected status 503", logs[0]["error"])

	w = a.do(t, http.MethodGet, "/api/v1/sync/logs", "")
	decodeBody(t, w, &logs)
	assert.Len(t, logs, 2)
}
