package http

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/escrow-engine/internal/application/service"
	"github.com/garyjia/escrow-engine/internal/application/workflow"
	"github.com/garyjia/escrow-engine/internal/domain/entity"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine  workflow.EscrowEngine
	reports service.ReportService
	logger  Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(engine workflow.EscrowEngine, reports service.ReportService, logger Logger) *Handlers {
	return &Handlers{
		engine:  engine,
		reports: reports,
		logger:  logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Version    string      `json:"version"`
	Components interface{} `json:"components,omitempty"`
}

// AIDecisionResponse is the last risk assessment of a transaction
type AIDecisionResponse struct {
	Recommendation string   `json:"recommendation"`
	Confidence     int      `json:"confidence"`
	Reasons        []string `json:"reasons"`
	Timestamp      string   `json:"timestamp"`
}

// TransactionResponse represents an escrow transaction in API responses
type TransactionResponse struct {
	ID             int64               `json:"id"`
	BuyerID        int64               `json:"buyer_id"`
	SellerID       int64               `json:"seller_id"`
	ProductID      int64               `json:"product_id"`
	Amount         string              `json:"amount"`
	Status         string              `json:"status"`
	AIStatus       string              `json:"ai_status"`
	RiskScore      int                 `json:"risk_score"`
	AIDecision     *AIDecisionResponse `json:"ai_decision,omitempty"`
	ApprovedBy     *int64              `json:"approved_by,omitempty"`
	ApprovedAt     *string             `json:"approved_at,omitempty"`
	AdminNote      string              `json:"admin_note,omitempty"`
	CompletedBy    *int64              `json:"completed_by,omitempty"`
	CompletedAt    *string             `json:"completed_at,omitempty"`
	CompletionNote string              `json:"completion_note,omitempty"`
	DisputedBy     *int64              `json:"disputed_by,omitempty"`
	DisputedAt     *string             `json:"disputed_at,omitempty"`
	DisputeReason  string              `json:"dispute_reason,omitempty"`
	Version        int64               `json:"version"`
	CreatedAt      string              `json:"created_at"`
	UpdatedAt      string              `json:"updated_at"`
}

// CreateTransactionRequest is the body of POST /api/transactions.
// BuyerID defaults to the caller.
type CreateTransactionRequest struct {
	BuyerID   int64           `json:"buyer_id"`
	SellerID  int64           `json:"seller_id" binding:"required"`
	ProductID int64           `json:"product_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

// RecordAssessmentRequest is the body of POST /api/transactions/:id/assessment
type RecordAssessmentRequest struct {
	Tag            string   `json:"tag"`
	RiskScore      *int     `json:"risk_score" binding:"required"`
	Recommendation string   `json:"recommendation" binding:"required"`
	Confidence     int      `json:"confidence"`
	Reasons        []string `json:"reasons"`
}

// AdminProcessRequest is the body of POST /api/transactions/:id/admin
type AdminProcessRequest struct {
	Action string `json:"action" binding:"required"`
	Note   string `json:"note"`
}

// CompleteRequest is the body of POST /api/transactions/:id/complete
type CompleteRequest struct {
	Note string `json:"note"`
}

// DisputeRequest is the body of POST /api/transactions/:id/dispute
type DisputeRequest struct {
	Reason string `json:"reason"`
}

// CreateTransaction handles POST /api/transactions
func (h *Handlers) CreateTransaction(c *gin.Context) {
	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	caller := callerFrom(c)
	if req.BuyerID == 0 {
		req.BuyerID = caller.ID
	}

	tx, err := h.engine.Create(c.Request.Context(), caller, workflow.CreateInput{
		BuyerID:   req.BuyerID,
		SellerID:  req.SellerID,
		ProductID: req.ProductID,
		Amount:    req.Amount,
	})
	if err != nil {
		h.respondError(c, "create", err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    toTransactionResponse(tx),
	})
}

// GetTransaction handles GET /api/transactions/:id
func (h *Handlers) GetTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	tx, err := h.engine.Get(c.Request.Context(), callerFrom(c), id)
	if err != nil {
		h.respondError(c, "get", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toTransactionResponse(tx),
	})
}

// GetHistory handles GET /api/transactions/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	history, err := h.engine.History(c.Request.Context(), callerFrom(c), id)
	if err != nil {
		h.respondError(c, "history", err)
		return
	}
	if history == nil {
		history = []*entity.TransactionHistory{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    history,
	})
}

// RecordAssessment handles POST /api/transactions/:id/assessment
func (h *Handlers) RecordAssessment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req RecordAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	tx, err := h.engine.RecordAssessment(c.Request.Context(), callerFrom(c), id, workflow.AssessmentInput{
		Tag:            req.Tag,
		RiskScore:      *req.RiskScore,
		Recommendation: req.Recommendation,
		Confidence:     req.Confidence,
		Reasons:        req.Reasons,
	})
	if err != nil {
		h.respondError(c, "record_assessment", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toTransactionResponse(tx),
	})
}

// AdminProcess handles POST /api/transactions/:id/admin
func (h *Handlers) AdminProcess(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req AdminProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	tx, err := h.engine.AdminProcess(c.Request.Context(), callerFrom(c), id, req.Action, req.Note)
	if err != nil {
		h.respondError(c, "admin_process", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toTransactionResponse(tx),
	})
}

// Reanalyze handles POST /api/transactions/:id/reanalyze
func (h *Handlers) Reanalyze(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	tx, err := h.engine.Reanalyze(c.Request.Context(), callerFrom(c), id)
	if err != nil {
		h.respondError(c, "reanalyze", err)
		return
	}

	c.JSON(http.StatusAccepted, Response{
		Success: true,
		Data:    toTransactionResponse(tx),
	})
}

// Complete handles POST /api/transactions/:id/complete
func (h *Handlers) Complete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req CompleteRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	tx, err := h.engine.Complete(c.Request.Context(), callerFrom(c), id, req.Note)
	if err != nil {
		h.respondError(c, "complete", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toTransactionResponse(tx),
	})
}

// Dispute handles POST /api/transactions/:id/dispute
func (h *Handlers) Dispute(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req DisputeRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	tx, err := h.engine.Dispute(c.Request.Context(), callerFrom(c), id, req.Reason)
	if err != nil {
		h.respondError(c, "dispute", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toTransactionResponse(tx),
	})
}

// ListByStatus handles GET /api/transactions?status=...
func (h *Handlers) ListByStatus(c *gin.Context) {
	status := c.Query("status")
	if status == "" {
		badRequest(c, "status query parameter is required")
		return
	}

	list, err := h.engine.ListByStatus(c.Request.Context(), callerFrom(c), status)
	if err != nil {
		h.respondError(c, "list_by_status", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toTransactionResponses(list),
	})
}

// ListByParticipant handles GET /api/users/:id/transactions
func (h *Handlers) ListByParticipant(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}

	list, err := h.engine.ListByParticipant(c.Request.Context(), callerFrom(c), userID)
	if err != nil {
		h.respondError(c, "list_by_participant", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toTransactionResponses(list),
	})
}

// GetStats handles GET /api/stats
func (h *Handlers) GetStats(c *gin.Context) {
	stats, err := h.engine.GetStats(c.Request.Context(), callerFrom(c))
	if err != nil {
		h.respondError(c, "stats", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    stats,
	})
}

// ExportReport handles GET /api/reports/transactions.xlsx?status=...
func (h *Handlers) ExportReport(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.reports.Export(c.Request.Context(), callerFrom(c), c.Query("status"), &buf); err != nil {
		h.respondError(c, "export", err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+h.reports.FileName(time.Now())+`"`)
	c.Data(http.StatusOK, h.reports.ContentType(), buf.Bytes())
}

func pathID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id: "+idStr)
		return 0, false
	}
	return id, true
}

// bindOptionalJSON accepts an empty body as the zero request
func bindOptionalJSON(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// toTransactionResponse converts domain entity to API response
func toTransactionResponse(tx *entity.EscrowTransaction) TransactionResponse {
	resp := TransactionResponse{
		ID:             tx.ID,
		BuyerID:        tx.BuyerID,
		SellerID:       tx.SellerID,
		ProductID:      tx.ProductID,
		Amount:         tx.Amount.StringFixed(entity.AmountScale),
		Status:         tx.Status,
		AIStatus:       tx.AIStatus,
		RiskScore:      tx.RiskScore,
		ApprovedBy:     tx.ApprovedBy,
		ApprovedAt:     formatTime(tx.ApprovedAt),
		AdminNote:      tx.AdminNote,
		CompletedBy:    tx.CompletedBy,
		CompletedAt:    formatTime(tx.CompletedAt),
		CompletionNote: tx.CompletionNote,
		DisputedBy:     tx.DisputedBy,
		DisputedAt:     formatTime(tx.DisputedAt),
		DisputeReason:  tx.DisputeReason,
		Version:        tx.Version,
		CreatedAt:      tx.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      tx.UpdatedAt.UTC().Format(time.RFC3339),
	}

	if d := tx.AIDecision; d != nil {
		resp.AIDecision = &AIDecisionResponse{
			Recommendation: d.Recommendation,
			Confidence:     d.Confidence,
			Reasons:        d.Reasons,
			Timestamp:      d.Timestamp.UTC().Format(time.RFC3339),
		}
	}

	return resp
}

func toTransactionResponses(list []*entity.EscrowTransaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(list))
	for _, tx := range list {
		out = append(out, toTransactionResponse(tx))
	}
	return out
}
