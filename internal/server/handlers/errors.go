package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/milkchain/internal/domain/models"
)

const dateLayout = "2006-01-02"

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var ve *models.ValidationError
	var te *models.InvalidTransitionError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &te),
		errors.Is(err, models.ErrMilkingAlreadyBatched),
		errors.Is(err, models.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, models.ErrNoApprovedBatches):
		return http.StatusUnprocessableEntity
	case models.IsStorage(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	var ve *models.ValidationError
	if errors.As(err, &ve) {
		body["fields"] = ve.Fields
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		body["error"] = "temporarily unavailable, try again later"
	} else {
		logger.Debug("request rejected", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, logger *zap.Logger, err error) {
	logger.Warn("invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
}

// periodFromQuery reads the from/to query parameters. Both accept
// YYYY-MM-DD or RFC3339; a plain date for "to" covers the whole day.
func periodFromQuery(c *gin.Context) (time.Time, time.Time, error) {
	from, err := parseDate(c.Query("from"), false)
	if err != nil {
		return time.Time{}, time.Time{}, models.NewValidationError("from", err.Error())
	}
	to, err := parseDate(c.Query("to"), true)
	if err != nil {
		return time.Time{}, time.Time{}, models.NewValidationError("to", err.Error())
	}
	return from, to, nil
}

func parseDate(value string, endOfDay bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("required")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, errors.New("expected YYYY-MM-DD or RFC3339")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, nil
}
