package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/milkchain/internal/domain/models"
	"github.com/mamadbah2/milkchain/internal/service/payments"
)

// PaymentService is the payment surface exposed over HTTP.
type PaymentService interface {
	CalculatePayment(ctx context.Context, farmID string, start, end time.Time) (*models.PaymentPreview, error)
	CreatePayment(ctx context.Context, farmID string, input payments.CreatePaymentInput) (*models.MilkPayment, error)
	Approve(ctx context.Context, paymentID string) (*models.MilkPayment, error)
	MarkAsPaid(ctx context.Context, paymentID string, input payments.MarkPaidInput) (*models.MilkPayment, error)
	UpdateNotes(ctx context.Context, paymentID, notes string) (*models.MilkPayment, error)
	GetPayment(ctx context.Context, id string) (*models.MilkPayment, error)
	ListPayments(ctx context.Context, farmID string) ([]models.MilkPayment, error)
}

// PaymentHandler serves milk payment endpoints.
type PaymentHandler struct {
	svc    PaymentService
	logger *zap.Logger
}

// NewPaymentHandler constructs the HTTP handler adapter.
func NewPaymentHandler(svc PaymentService, logger *zap.Logger) *PaymentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentHandler{svc: svc, logger: logger}
}

// Preview prices approved batches without persisting anything.
func (h *PaymentHandler) Preview(c *gin.Context) {
	from, to, err := periodFromQuery(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	preview, err := h.svc.CalculatePayment(c.Request.Context(), c.Param("farmID"), from, to)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// createPaymentRequest carries the period as text so it is read the same way
// as the preview query: YYYY-MM-DD or RFC3339, a plain end date covering the
// whole day.
type createPaymentRequest struct {
	PeriodStart string             `json:"period_start"`
	PeriodEnd   string             `json:"period_end"`
	Deductions  []models.Deduction `json:"deductions"`
	Notes       string             `json:"notes"`
}

// Create stores a draft payment.
func (h *PaymentHandler) Create(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	start, err := parseDate(req.PeriodStart, false)
	if err != nil {
		writeError(c, h.logger, models.NewValidationError("period_start", err.Error()))
		return
	}
	end, err := parseDate(req.PeriodEnd, true)
	if err != nil {
		writeError(c, h.logger, models.NewValidationError("period_end", err.Error()))
		return
	}
	input := payments.CreatePaymentInput{
		PeriodStart: start,
		PeriodEnd:   end,
		Deductions:  req.Deductions,
		Notes:       req.Notes,
	}

	payment, err := h.svc.CreatePayment(c.Request.Context(), c.Param("farmID"), input)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

// List returns a farm's payments.
func (h *PaymentHandler) List(c *gin.Context) {
	list, err := h.svc.ListPayments(c.Request.Context(), c.Param("farmID"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if list == nil {
		list = []models.MilkPayment{}
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// Get returns a single payment.
func (h *PaymentHandler) Get(c *gin.Context) {
	payment, err := h.svc.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// Approve moves a draft payment to approved.
func (h *PaymentHandler) Approve(c *gin.Context) {
	payment, err := h.svc.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// Pay records the settlement of an approved payment.
func (h *PaymentHandler) Pay(c *gin.Context) {
	var input payments.MarkPaidInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	payment, err := h.svc.MarkAsPaid(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

// UpdateNotes replaces the administrative notes of a payment.
func (h *PaymentHandler) UpdateNotes(c *gin.Context) {
	var req notesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	payment, err := h.svc.UpdateNotes(c.Request.Context(), c.Param("id"), req.Notes)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}
