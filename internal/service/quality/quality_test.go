package quality

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/milkchain/internal/domain/models"
	"github.com/mamadbah2/milkchain/internal/service/settings"
)

func TestComputeGrade(t *testing.T) {
	tests := []struct {
		name string
		data models.QualityData
		want models.Grade
	}{
		{"grade A", models.QualityData{PH: 6.7, FatPercentage: 3.6, BacteriaCount: 50_000}, models.GradeA},
		{"A bounds inclusive", models.QualityData{PH: 6.6, FatPercentage: 3.5, BacteriaCount: 100_000}, models.GradeA},
		{"bacteria pushes to B", models.QualityData{PH: 6.7, FatPercentage: 3.6, BacteriaCount: 200_000}, models.GradeB},
		{"fat pushes to C", models.QualityData{PH: 6.7, FatPercentage: 2.8, BacteriaCount: 50_000}, models.GradeC},
		{"pH only inside C", models.QualityData{PH: 7.0, FatPercentage: 4, BacteriaCount: 10}, models.GradeC},
		{"reject", models.QualityData{PH: 6.2, FatPercentage: 2.0, BacteriaCount: 2_000_000}, models.GradeReject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeGrade(tt.data, DefaultStandards))
		})
	}
}

func TestComputeGradeIsMonotonic(t *testing.T) {
	// Every point meeting A never grades lower; every point meeting only C never grades higher.
	for ph := 6.6; ph <= 6.8; ph += 0.05 {
		for _, fat := range []float64{3.5, 4, 6} {
			for _, bact := range []int64{0, 50_000, 100_000} {
				got := ComputeGrade(models.QualityData{PH: ph, FatPercentage: fat, BacteriaCount: bact}, DefaultStandards)
				assert.Equal(t, models.GradeA, got)
			}
		}
	}
	for _, bact := range []int64{500_001, 750_000, 1_000_000} {
		got := ComputeGrade(models.QualityData{PH: 6.7, FatPercentage: 3.6, BacteriaCount: bact}, DefaultStandards)
		assert.Equal(t, models.GradeC, got)
	}
}

func TestStandardsValidate(t *testing.T) {
	require.NoError(t, DefaultStandards.Validate())

	unset := DefaultStandards
	unset.B = Tier{}
	assert.ErrorContains(t, unset.Validate(), "tier not set")

	inverted := DefaultStandards
	inverted.C.FatMin = 3.2
	assert.ErrorContains(t, inverted.Validate(), "stricter")
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults when absent", func(t *testing.T) {
		s, err := Load(ctx, settings.Static{})
		require.NoError(t, err)
		assert.Equal(t, DefaultStandards, s)
	})

	t.Run("nil provider", func(t *testing.T) {
		s, err := Load(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultStandards, s)
	})

	t.Run("custom standards", func(t *testing.T) {
		p := settings.Static{settings.KeyQualityStandards: `{
			"A": {"ph_min": 6.5, "ph_max": 6.9, "fat_min": 4.0, "bacteria_max": 50000},
			"B": {"ph_min": 6.4, "ph_max": 7.0, "fat_min": 3.0, "bacteria_max": 300000},
			"C": {"ph_min": 6.3, "ph_max": 7.1, "fat_min": 2.0, "bacteria_max": 900000}
		}`}
		s, err := Load(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, 4.0, s.A.FatMin)
		assert.Equal(t, models.GradeB, ComputeGrade(models.QualityData{PH: 6.7, FatPercentage: 3.6, BacteriaCount: 50_000}, s))
	})

	t.Run("inverted bounds rejected", func(t *testing.T) {
		p := settings.Static{settings.KeyQualityStandards: `{"A": {"ph_min": 7, "ph_max": 6}}`}
		s, err := Load(ctx, p)
		require.Error(t, err)
		assert.Equal(t, DefaultStandards, s)
	})

	t.Run("partial value keeps default tiers", func(t *testing.T) {
		p := settings.Static{settings.KeyQualityStandards: `{"A": {"ph_min": 6.6, "ph_max": 6.8, "fat_min": 3.8, "bacteria_max": 80000}}`}
		s, err := Load(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, 3.8, s.A.FatMin)
		assert.Equal(t, DefaultStandards.B, s.B)
		assert.Equal(t, DefaultStandards.C, s.C)
		assert.Equal(t, models.GradeB, ComputeGrade(models.QualityData{PH: 6.7, FatPercentage: 3.6, BacteriaCount: 50_000}, s))
	})

	t.Run("partial tier keeps default fields", func(t *testing.T) {
		p := settings.Static{settings.KeyQualityStandards: `{"C": {"fat_min": 2.0}}`}
		s, err := Load(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, 2.0, s.C.FatMin)
		assert.Equal(t, DefaultStandards.C.BacteriaMax, s.C.BacteriaMax)
	})

	t.Run("tier looser than the grade below rejected", func(t *testing.T) {
		p := settings.Static{settings.KeyQualityStandards: `{"A": {"ph_min": 6.6, "ph_max": 6.8, "fat_min": 3.5, "bacteria_max": 600000}}`}
		s, err := Load(ctx, p)
		require.Error(t, err)
		assert.Equal(t, DefaultStandards, s)
	})

	t.Run("undecodable value", func(t *testing.T) {
		_, err := Load(ctx, settings.Static{settings.KeyQualityStandards: `not json`})
		require.Error(t, err)
	})
}
