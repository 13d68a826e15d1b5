package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/approval-workflow/internal/application/service"
	appwf "github.com/garyjia/approval-workflow/internal/application/workflow"
	"github.com/garyjia/approval-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/approval-workflow/internal/domain/workflow"
	"github.com/garyjia/approval-workflow/pkg/utils"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	deps   Dependencies
	logger Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, logger Logger) *Handlers {
	return &Handlers{
		deps:   deps,
		logger: logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	// Code is the error kind on failure
	Code string `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
}

// WorkflowResponse describes a request type's stage chain
type WorkflowResponse struct {
	RequestType string           `json:"request_type"`
	ResubmitTo  string           `json:"resubmit_to"`
	Stages      []domainwf.Stage `json:"stages"`
}

type createRequestBody struct {
	Type        string `json:"type" binding:"required"`
	Amount      *int64 `json:"amount" binding:"required"`
	Description string `json:"description"`
}

type approveBody struct {
	Comment        string `json:"comment"`
	AdjustedAmount *int64 `json:"adjusted_amount"`
}

type rejectBody struct {
	Reason string `json:"reason"`
}

type resubmitBody struct {
	Comment string `json:"comment"`
	Amount  *int64 `json:"amount"`
}

type bulkBody struct {
	IDs            []string `json:"ids" binding:"required"`
	Action         string   `json:"action" binding:"required"`
	Comment        string   `json:"comment"`
	Reason         string   `json:"reason"`
	AdjustedAmount *int64   `json:"adjusted_amount"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if h.deps.Health != nil {
		resp.Components = h.deps.Health.Health(c.Request.Context())
		for _, s := range resp.Components {
			if s != "ok" {
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				break
			}
		}
	}

	c.JSON(status, Response{
		Success: status == http.StatusOK,
		Data:    resp,
	})
}

// CreateRequest handles POST /api/v1/requests
func (h *Handlers) CreateRequest(c *gin.Context) {
	var body createRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "type and amount are required")
		return
	}

	req, err := h.deps.Engine.Submit(c.Request.Context(), appwf.SubmitInput{
		Type:        body.Type,
		RequesterID: ActorID(c),
		Amount:      *body.Amount,
		Description: utils.SanitizeString(body.Description),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.writeRequest(c, http.StatusCreated, req)
}

// Approve handles POST /api/v1/requests/:id/approve
func (h *Handlers) Approve(c *gin.Context) {
	var body approveBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	expected, ok := expectedVersion(c)
	if !ok {
		return
	}

	req, err := h.deps.Engine.Approve(c.Request.Context(), c.Param("id"), ActorID(c), appwf.ApproveOptions{
		Comment:         utils.SanitizeString(body.Comment),
		AdjustedAmount:  body.AdjustedAmount,
		ExpectedVersion: expected,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.writeRequest(c, http.StatusOK, req)
}

// Reject handles POST /api/v1/requests/:id/reject
func (h *Handlers) Reject(c *gin.Context) {
	var body rejectBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	expected, ok := expectedVersion(c)
	if !ok {
		return
	}

	req, err := h.deps.Engine.Reject(c.Request.Context(), c.Param("id"), ActorID(c), appwf.RejectOptions{
		Reason:          utils.SanitizeString(body.Reason),
		ExpectedVersion: expected,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.writeRequest(c, http.StatusOK, req)
}

// Resubmit handles POST /api/v1/requests/:id/resubmit
func (h *Handlers) Resubmit(c *gin.Context) {
	var body resubmitBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	expected, ok := expectedVersion(c)
	if !ok {
		return
	}

	req, err := h.deps.Engine.Resubmit(c.Request.Context(), c.Param("id"), ActorID(c), appwf.ResubmitOptions{
		Comment:         utils.SanitizeString(body.Comment),
		Amount:          body.Amount,
		ExpectedVersion: expected,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.writeRequest(c, http.StatusOK, req)
}

// BulkApply handles POST /api/v1/requests/bulk. Per-item failures are
// reported in the result; only batch-level errors fail the call.
func (h *Handlers) BulkApply(c *gin.Context) {
	var body bulkBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "ids and action are required")
		return
	}

	result, err := h.deps.Bulk.BulkApply(c.Request.Context(), service.BulkInput{
		IDs:     body.IDs,
		ActorID: ActorID(c),
		Action:  domainwf.Action(body.Action),
		Payload: service.BulkPayload{
			Comment:        utils.SanitizeString(body.Comment),
			Reason:         utils.SanitizeString(body.Reason),
			AdjustedAmount: body.AdjustedAmount,
		},
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// ListActionable handles GET /api/v1/requests, the caller's actionable queue
func (h *Handlers) ListActionable(c *gin.Context) {
	filter, err := parseQueueFilter(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	requests, err := h.deps.Queue.ListActionable(c.Request.Context(), ActorID(c), c.Query("type"), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"requests": requests,
			"count":    len(requests),
			"limit":    filter.Limit,
			"offset":   filter.Offset,
		},
	})
}

// GetRequest handles GET /api/v1/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	req, err := h.deps.Queue.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.writeRequest(c, http.StatusOK, req)
}

// GetHistory handles GET /api/v1/requests/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	report, err := h.deps.History.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    report,
	})
}

// GetWorkflow handles GET /api/v1/workflows/:type
func (h *Handlers) GetWorkflow(c *gin.Context) {
	def, err := h.deps.Registry.Definition(c.Param("type"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: WorkflowResponse{
			RequestType: def.RequestType,
			ResubmitTo:  string(def.ResubmitPolicy),
			Stages:      def.Stages,
		},
	})
}

func (h *Handlers) writeRequest(c *gin.Context, status int, req *entity.Request) {
	c.Header("ETag", utils.FormatVersionTag(req.Version))
	c.JSON(status, Response{
		Success: true,
		Data:    req,
	})
}

// bindOptionalJSON decodes the body when present; an empty body is allowed
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request body")
		return false
	}
	return true
}

func expectedVersion(c *gin.Context) (*int64, bool) {
	v, err := utils.ParseVersionTag(c.GetHeader("If-Match"))
	if err != nil {
		badRequest(c, err.Error())
		return nil, false
	}
	return v, true
}

func parseQueueFilter(c *gin.Context) (service.QueueFilter, error) {
	var (
		f   service.QueueFilter
		err error
	)

	f.Text = c.Query("q")
	if statuses := c.QueryArray("status"); len(statuses) > 0 {
		f.Statuses = make([]domainwf.State, len(statuses))
		for i, s := range statuses {
			f.Statuses[i] = domainwf.State(s)
		}
	}
	if f.CreatedFrom, err = utils.ParseOptionalTime("created_from", c.Query("created_from")); err != nil {
		return f, err
	}
	if f.CreatedTo, err = utils.ParseOptionalTime("created_to", c.Query("created_to")); err != nil {
		return f, err
	}
	if f.MinAmount, err = utils.ParseOptionalInt64("min_amount", c.Query("min_amount")); err != nil {
		return f, err
	}
	if f.MaxAmount, err = utils.ParseOptionalInt64("max_amount", c.Query("max_amount")); err != nil {
		return f, err
	}

	limit, err := utils.ParseOptionalInt64("limit", c.Query("limit"))
	if err != nil {
		return f, err
	}
	if limit != nil {
		f.Limit = int(*limit)
	}
	offset, err := utils.ParseOptionalInt64("offset", c.Query("offset"))
	if err != nil {
		return f, err
	}
	if offset != nil {
		f.Offset = int(*offset)
	}

	return f, nil
}
