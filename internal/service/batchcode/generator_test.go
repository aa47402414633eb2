package batchcode

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/milkchain/internal/domain/models"
	"github.com/mamadbah2/milkchain/internal/repository/memory"
)

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	gen := NewGenerator(memory.NewStore())
	day := time.Date(2025, 1, 15, 7, 30, 0, 0, time.UTC)

	first, err := gen.Generate(ctx, "mb", day)
	require.NoError(t, err)
	assert.Equal(t, "MB-20250115-001", first)

	second, err := gen.Generate(ctx, models.BatchCodePrefix, day)
	require.NoError(t, err)
	assert.Equal(t, "MB-20250115-002", second)

	production, err := gen.Generate(ctx, models.ProductionCodePrefix, day)
	require.NoError(t, err)
	assert.Equal(t, "CP-20250115-001", production, "prefixes have independent sequences")

	nextDay, err := gen.Generate(ctx, models.BatchCodePrefix, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, "MB-20250116-001", nextDay)
}

func TestGenerateRequiresPrefix(t *testing.T) {
	_, err := NewGenerator(memory.NewStore()).Generate(context.Background(), "  ", time.Now())
	var ve *models.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestGenerateContinuesAfterExistingCodes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	day := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertBatch(ctx, &models.MilkBatch{BatchCode: "MB-20250302-007", CollectionDate: day}))

	code, err := NewGenerator(store).Generate(ctx, models.BatchCodePrefix, day)
	require.NoError(t, err)
	assert.Equal(t, "MB-20250302-008", code)
}

func TestGenerateConcurrentCodesAreUnique(t *testing.T) {
	ctx := context.Background()
	gen := NewGenerator(memory.NewStore())
	day := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	const n = 50
	codes := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, err := gen.Generate(ctx, models.BatchCodePrefix, day)
			assert.NoError(t, err)
			codes <- code
		}()
	}
	wg.Wait()
	close(codes)

	seen := make(map[string]bool, n)
	for code := range codes {
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
	assert.Len(t, seen, n)
	assert.True(t, seen["MB-20250115-050"])
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "CP-20241231-120", Format("CP", time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), 120))
}
