package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/approval-workflow/internal/application/service"
	appwf "github.com/garyjia/approval-workflow/internal/application/workflow"
	"github.com/garyjia/approval-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/approval-workflow/internal/domain/workflow"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

type stubEngine struct {
	err error

	submitted  appwf.SubmitInput
	approveID  string
	approveBy  string
	approveOpt appwf.ApproveOptions
	rejectOpt  appwf.RejectOptions
	resubOpt   appwf.ResubmitOptions
}

func (e *stubEngine) result(id string, status domainwf.State, version int64) (*entity.Request, error) {
	if e.err != nil {
		return nil, e.err
	}
	return &entity.Request{ID: id, Type: "expense", Status: status, Version: version}, nil
}

func (e *stubEngine) Submit(ctx context.Context, in appwf.SubmitInput) (*entity.Request, error) {
	e.submitted = in
	return e.result("R1", "finance_manager_review", 0)
}

func (e *stubEngine) Approve(ctx context.Context, requestID, actorID string, opts appwf.ApproveOptions) (*entity.Request, error) {
	e.approveID, e.approveBy, e.approveOpt = requestID, actorID, opts
	return e.result(requestID, "admin_review", 1)
}

func (e *stubEngine) Reject(ctx context.Context, requestID, actorID string, opts appwf.RejectOptions) (*entity.Request, error) {
	e.rejectOpt = opts
	return e.result(requestID, domainwf.StateRejected, 2)
}

func (e *stubEngine) Resubmit(ctx context.Context, requestID, actorID string, opts appwf.ResubmitOptions) (*entity.Request, error) {
	e.resubOpt = opts
	return e.result(requestID, "finance_manager_review", 3)
}

type stubQueue struct {
	actorID     string
	requestType string
	filter      service.QueueFilter
	err         error
}

func (q *stubQueue) ListActionable(ctx context.Context, actorID, requestType string, filter service.QueueFilter) ([]*entity.Request, error) {
	q.actorID, q.requestType, q.filter = actorID, requestType, filter
	if q.err != nil {
		return nil, q.err
	}
	return []*entity.Request{{ID: "R1", Type: requestType, Status: "admin_review"}}, nil
}

func (q *stubQueue) GetRequest(ctx context.Context, requestID string) (*entity.Request, error) {
	if requestID != "R1" {
		return nil, domainwf.NewError(domainwf.KindNotFound, "get_request", requestID, "request does not exist")
	}
	return &entity.Request{ID: "R1", Version: 4}, nil
}

type stubHistory struct{}

func (stubHistory) GetHistory(ctx context.Context, requestID string) ([]*entity.Transition, error) {
	return nil, nil
}

func (stubHistory) Report(ctx context.Context, requestID string) (*service.HistoryReport, error) {
	return &service.HistoryReport{RequestID: requestID, Status: domainwf.StateApproved, Consistent: true}, nil
}

type stubBulk struct {
	in  service.BulkInput
	err error
}

func (b *stubBulk) BulkApply(ctx context.Context, in service.BulkInput) (*service.BulkResult, error) {
	b.in = in
	if b.err != nil {
		return nil, b.err
	}
	return &service.BulkResult{
		Succeeded: []string{"R1"},
		Failed:    []service.FailedItem{{ID: "R2", Kind: domainwf.KindTerminalState}},
	}, nil
}

type stubHealth map[string]string

func (h stubHealth) Health(ctx context.Context) map[string]string { return h }

type harness struct {
	engine *stubEngine
	queue  *stubQueue
	bulk   *stubBulk
	server *Server
}

func newHarness(t *testing.T, auth AuthConfig, health HealthChecker) *harness {
	t.Helper()
	reg, err := domainwf.ParseDefinitions([]byte(`
workflows:
  - request_type: expense
    stages:
      - {name: finance_manager_review, required_capability: finance_manager}
      - {name: admin_review, required_capability: admin, amount_policy: no_increase}
`))
	require.NoError(t, err)

	h := &harness{engine: &stubEngine{}, queue: &stubQueue{}, bulk: &stubBulk{}}
	h.server = NewServer(DefaultServerConfig(), Dependencies{
		Engine:   h.engine,
		Queue:    h.queue,
		History:  stubHistory{},
		Bulk:     h.bulk,
		Registry: reg,
		Auth:     NewAuthenticator(auth),
		Health:   health,
		Gatherer: prometheus.NewRegistry(),
	}, nopLogger{})
	return h
}

func (h *harness) do(method, path, actor, body string, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.server.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateRequest(t *testing.T) {
	h := newHarness(t, AuthConfig{}, nil)

	w := h.do(http.MethodPost, "/api/v1/requests", "emp-1", `{"type":"expense","amount":12000,"description":" taxi "}`)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, `"0"`, w.Header().Get("ETag"))
	assert.Equal(t, "emp-1", h.engine.submitted.RequesterID)
	assert.Equal(t, int64(12000), h.engine.submitted.Amount)
	assert.Equal(t, "taxi", h.engine.submitted.Description)
	assert.True(t, decode(t, w).Success)
}

func TestCreateRequest_MissingFields(t *testing.T) {
	h := newHarness(t, AuthConfig{}, nil)

	w := h.do(http.MethodPost, "/api/v1/requests", "emp-1", `{"type":"expense"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decode(t, w).Code)
}

func TestAuth_HeaderRequired(t *testing.T) {
	h := newHarness(t, AuthConfig{}, nil)

	w := h.do(http.MethodGet, "/api/v1/requests?type=expense", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestApprove_PassesIfMatchAndBody(t *testing.T) {
	h := newHarness(t, AuthConfig{}, nil)

	w := h.do(http.MethodPost, "/api/v1/requests/R7/approve", "fm-1", `{"comment":"ok","adjusted_amount":9000}`, "If-Match", `"3"`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "R7", h.engine.approveID)
	assert.Equal(t, "fm-1", h.engine.approveBy)
	require.NotNil(t, h.engine.approveOpt.ExpectedVersion)
	assert.Equal(t, int64(3), *h.engine.approveOpt.ExpectedVersion)
	require.NotNil(t, h.engine.approveOpt.AdjustedAmount)
	assert.Equal(t, int64(9000), *h.engine.approveOpt.AdjustedAmount)
	assert.Equal(t, `"1"`, w.Header().Get("ETag"))
}

func TestApprove_EmptyBodyAllowed(t *testing.T) {
	h := newHarness(t, AuthConfig{}, nil)

	w := h.do(http.MethodPost, "/api/v1/requests/R7/approve", "fm-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, h.engine.approveOpt.ExpectedVersion)
}

func TestApprove_InvalidIfMatch(t *testing.T) {
	h := newHarness(t, AuthConfig{}, nil)

	w := h.do(http.MethodPost, "/api/v1/requests/R7/approve", "fm-1", "", "If-Match", "*")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRejectAndResubmit(t *testing.T) {
	h := newHarness(t, AuthConfig{}, nil)

	w := h.do(http.MethodPost, "/api/v1/requests/R7/reject", "fm-1", `{"reason":"missing receipt"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "missing receipt", h.engine.rejectOpt.Reason)

	w = h.do(http.MethodPost, "/api/v1/requests/R7/resubmit", "emp-1", `{"comment":"attached","amount":8000}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, h.engine.resubOpt.Amount)
	assert.Equal(t, int64(8000), *h.engine.resubOpt.Amount)
}

func TestErrorKindsMapToStatus(t *testing.T) {
	tests := []struct {
		kind   domainwf.Kind
		status int
	}{
		{domainwf.KindValidation, http.StatusBadRequest},
		{domainwf.KindAuthorization, http.StatusForbidden},
		{domainwf.KindNotFound, http.StatusNotFound},
		{domainwf.KindConflict, http.StatusConflict},
		{domainwf.KindTerminalState, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			h := newHarness(t, AuthConfig{}, nil)
			h.engine.err = domainwf.NewError(tt.kind, "approve", "R1", "detail for %s", tt.kind)

			w := h.do(http.MethodPost, "/api/v1/requests/R1/approve", "fm-1", "")

			assert.Equal(t, tt.status, w.Code)
			resp := decode(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, string(tt.kind), resp.Code)
			assert.Equal(t, "detail for "+string(tt.kind), resp.Error)
		})
	}
}

func TestInternalErrorIsHidden(t *testing.T) {
	h := newHarness(t, AuthConfig{}, nil)
	h.engine.err = errors.New("database is locked: /var/lib/approval.db")

	w := h.do(http.MethodPost, "/api/v1/requests/R1/approve", "fm-1", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "internal error", resp.Error)
	assert.NotContains(t, w.Body.String(), "approval.db")
}

func TestBulkApply(t *testing.T) {
	h := newHarness(t, AuthConfig{}, nil)

	w := h.do(http.MethodPost, "/api/v1/requests/bulk", "fm-1", `{"ids":["R1","R2"],"action":"approve","comment":"batch"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"R1", "R2"}, h.bulk.in.IDs)
	assert.Equal(t, domainwf.ActionApprove, h.bulk.in.Action)
	assert.Equal(t, "fm-1", h.bulk.in.ActorID)
	assert.Contains(t, w.Body.String(), `"kind":"terminal_state"`)
}

func TestBulkApply_BatchError(t *testing.T) {
	h := newHarness(t, AuthConfig{}, nil)
	h.bulk.err = domainwf.NewError(domainwf.KindValidation, "bulk", "", "reason is required")

	w := h.do(http.MethodPost, "/api/v1/requests/bulk", "fm-1", `{"ids":["R1"],"action":"reject"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListActionable_ParsesFilter(t *testing.T) {
	h := newHarness(t, AuthConfig{}, nil)

	w := h.do(http.MethodGet, "/api/v1/requests?type=expense&q=taxi&status=admin_review&status=finance_manager_review&created_from=2026-03-01&min_amount=100&max_amount=5000&limit=10&offset=20", "admin-1", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin-1", h.queue.actorID)
	assert.Equal(t, "expense", h.queue.requestType)

	f := h.queue.filter
	assert.Equal(t, "taxi", f.Text)
	assert.Equal(t, []domainwf.State{"admin_review", "finance_manager_review"}, f.Statuses)
	require.NotNil(t, f.CreatedFrom)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *f.CreatedFrom)
	assert.Nil(t, f.CreatedTo)
	assert.Equal(t, int64(100), *f.MinAmount)
	assert.Equal(t, int64(5000), *f.MaxAmount)
	assert.Equal(t, 10, f.Limit)
	assert.Equal(t, 20, f.Offset)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestListActionable_BadQuery(t *testing.T) {
	h := newHarness(t, AuthConfig{}, nil)

	w := h.do(http.MethodGet, "/api/v1/requests?type=expense&min_amount=ten", "admin-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRequestAndHistory(t *testing.T) {
	h := newHarness(t, AuthConfig{}, nil)

	w := h.do(http.MethodGet, "/api/v1/requests/R1", "emp-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `"4"`, w.Header().Get("ETag"))

	w = h.do(http.MethodGet, "/api/v1/requests/missing", "emp-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(http.MethodGet, "/api/v1/requests/R1/history", "emp-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"consistent":true`)
}

func TestGetWorkflow(t *testing.T) {
	h := newHarness(t, AuthConfig{}, nil)

	w := h.do(http.MethodGet, "/api/v1/workflows/expense", "emp-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data WorkflowResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "first", resp.Data.ResubmitTo)
	require.Len(t, resp.Data.Stages, 2)
	assert.Equal(t, domainwf.AmountPolicyNoIncrease, resp.Data.Stages[1].AmountPolicy)

	w = h.do(http.MethodGet, "/api/v1/workflows/petty_cash", "emp-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthCheck(t *testing.T) {
	h := newHarness(t, AuthConfig{}, stubHealth{"database": "ok", "dispatcher": "ok"})
	w := h.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	h = newHarness(t, AuthConfig{}, stubHealth{"database": "database is closed"})
	w = h.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, AuthConfig{}, nil)
	w := h.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestJWTAuth(t *testing.T) {
	cfg := AuthConfig{JWTSecret: "test-secret", Issuer: "approval"}
	h := newHarness(t, cfg, nil)

	token, err := NewAuthenticator(cfg).IssueToken("fm-1", time.Hour)
	require.NoError(t, err)

	w := h.do(http.MethodPost, "/api/v1/requests/R1/approve", "", "", "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fm-1", h.engine.approveBy)

	t.Run("header is ignored when tokens are required", func(t *testing.T) {
		w := h.do(http.MethodPost, "/api/v1/requests/R1/approve", "fm-1", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewAuthenticator(AuthConfig{JWTSecret: "other", Issuer: "approval"}).IssueToken("fm-1", time.Hour)
		require.NoError(t, err)
		w := h.do(http.MethodPost, "/api/v1/requests/R1/approve", "", "", "Authorization", "Bearer "+other)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired", func(t *testing.T) {
		expired, err := NewAuthenticator(cfg).IssueToken("fm-1", -time.Minute)
		require.NoError(t, err)
		w := h.do(http.MethodPost, "/api/v1/requests/R1/approve", "", "", "Authorization", "Bearer "+expired)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		foreign, err := NewAuthenticator(AuthConfig{JWTSecret: "test-secret", Issuer: "elsewhere"}).IssueToken("fm-1", time.Hour)
		require.NoError(t, err)
		w := h.do(http.MethodPost, "/api/v1/requests/R1/approve", "", "", "Authorization", "Bearer "+foreign)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
	assert.Equal(t, http.StatusConflict, StatusFor(domainwf.ErrConflict))
}
