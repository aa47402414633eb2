package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/milkchain/internal/domain/models"
	"github.com/mamadbah2/milkchain/internal/service/batches"
)

// BatchService is the batch lifecycle surface exposed over HTTP.
type BatchService interface {
	CreateBatch(ctx context.Context, farmID string, input batches.CreateBatchInput) (*models.MilkBatch, error)
	GetBatch(ctx context.Context, id string) (*models.MilkBatch, error)
	ListBatches(ctx context.Context, farmID string, from, to time.Time) ([]models.MilkBatch, error)
	Dispatch(ctx context.Context, batchID string, input batches.DispatchInput) (*models.MilkBatch, error)
	UpdateTransportStatus(ctx context.Context, batchID string, input batches.TransportUpdateInput) (*models.MilkBatch, error)
	Receive(ctx context.Context, batchID string, input batches.ReceiveInput) (*models.MilkBatch, error)
	ConfirmDelivery(ctx context.Context, batchID string, input batches.ConfirmDeliveryInput) (*models.MilkBatch, error)
	UpdateQualityTest(ctx context.Context, batchID string, input batches.QualityTestInput) (*models.MilkBatch, error)
	StartProduction(ctx context.Context, farmID string, input batches.StartProductionInput) (*models.ProductionRun, error)
}

// CollectionReporter summarises collections for a period.
type CollectionReporter interface {
	CollectionSummary(ctx context.Context, farmID string, start, end time.Time) (*models.CollectionReport, error)
}

// BatchHandler serves milk batch endpoints.
type BatchHandler struct {
	svc      BatchService
	reporter CollectionReporter
	logger   *zap.Logger
}

// NewBatchHandler constructs the HTTP handler adapter.
func NewBatchHandler(svc BatchService, reporter CollectionReporter, logger *zap.Logger) *BatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchHandler{svc: svc, reporter: reporter, logger: logger}
}

// Create pools milking records into a new batch.
func (h *BatchHandler) Create(c *gin.Context) {
	var input batches.CreateBatchInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	batch, err := h.svc.CreateBatch(c.Request.Context(), c.Param("farmID"), input)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

// List returns a farm's batches, optionally bounded by from/to.
func (h *BatchHandler) List(c *gin.Context) {
	var from, to time.Time
	if c.Query("from") != "" || c.Query("to") != "" {
		var err error
		if from, to, err = periodFromQuery(c); err != nil {
			writeError(c, h.logger, err)
			return
		}
	}

	list, err := h.svc.ListBatches(c.Request.Context(), c.Param("farmID"), from, to)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if list == nil {
		list = []models.MilkBatch{}
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// Get returns a single batch.
func (h *BatchHandler) Get(c *gin.Context) {
	batch, err := h.svc.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// Dispatch hands a batch to a courier.
func (h *BatchHandler) Dispatch(c *gin.Context) {
	var input batches.DispatchInput
	if !h.bind(c, &input) {
		return
	}
	h.respond(c)(h.svc.Dispatch(c.Request.Context(), c.Param("id"), input))
}

// Transport appends a transport status update.
func (h *BatchHandler) Transport(c *gin.Context) {
	var input batches.TransportUpdateInput
	if !h.bind(c, &input) {
		return
	}
	h.respond(c)(h.svc.UpdateTransportStatus(c.Request.Context(), c.Param("id"), input))
}

// Receive records receiving checks.
func (h *BatchHandler) Receive(c *gin.Context) {
	var input batches.ReceiveInput
	if !h.bind(c, &input) {
		return
	}
	h.respond(c)(h.svc.Receive(c.Request.Context(), c.Param("id"), input))
}

// ConfirmDelivery records factory-side receipt.
func (h *BatchHandler) ConfirmDelivery(c *gin.Context) {
	var input batches.ConfirmDeliveryInput
	if !h.bind(c, &input) {
		return
	}
	h.respond(c)(h.svc.ConfirmDelivery(c.Request.Context(), c.Param("id"), input))
}

// QualityTest grades a received batch.
func (h *BatchHandler) QualityTest(c *gin.Context) {
	var input batches.QualityTestInput
	if !h.bind(c, &input) {
		return
	}
	h.respond(c)(h.svc.UpdateQualityTest(c.Request.Context(), c.Param("id"), input))
}

// StartProduction consumes approved batches into a cheese run.
func (h *BatchHandler) StartProduction(c *gin.Context) {
	var input batches.StartProductionInput
	if !h.bind(c, &input) {
		return
	}
	run, err := h.svc.StartProduction(c.Request.Context(), c.Param("farmID"), input)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, run)
}

// CollectionSummary reports collections between from and to.
func (h *BatchHandler) CollectionSummary(c *gin.Context) {
	from, to, err := periodFromQuery(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	report, err := h.reporter.CollectionSummary(c.Request.Context(), c.Param("farmID"), from, to)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report, "text": report.Format()})
}

// bind decodes an optional JSON body; an empty body leaves input zeroed.
func (h *BatchHandler) bind(c *gin.Context, input any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(input); err != nil {
		badRequest(c, h.logger, err)
		return false
	}
	return true
}

func (h *BatchHandler) respond(c *gin.Context) func(*models.MilkBatch, error) {
	return func(batch *models.MilkBatch, err error) {
		if err != nil {
			writeError(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, batch)
	}
}
