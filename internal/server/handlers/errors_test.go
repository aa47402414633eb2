package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/milkchain/internal/domain/models"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.NewValidationError("session", "required"), http.StatusBadRequest},
		{fmt.Errorf("batch x: %w", models.ErrNotFound), http.StatusNotFound},
		{&models.InvalidTransitionError{Entity: "batch", From: "approved", To: "received"}, http.StatusConflict},
		{fmt.Errorf("milking [3]: %w", models.ErrMilkingAlreadyBatched), http.StatusConflict},
		{models.ErrConcurrentModification, http.StatusConflict},
		{models.ErrNoApprovedBatches, http.StatusUnprocessableEntity},
		{models.Storage("insert", errors.New("socket closed")), http.StatusServiceUnavailable},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestParseDate(t *testing.T) {
	from, err := parseDate("2025-01-01", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), from)

	to, err := parseDate("2025-01-31", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC), to)

	exact, err := parseDate("2025-01-31T12:00:00Z", true)
	require.NoError(t, err)
	assert.Equal(t, 12, exact.Hour())

	_, err = parseDate("", false)
	assert.Error(t, err)
	_, err = parseDate("31/01/2025", false)
	assert.Error(t, err)
}
