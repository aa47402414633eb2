// Package quality holds milk grading thresholds and the grade calculator.
package quality

import (
	"context"
	"fmt"

	"github.com/mamadbah2/milkchain/internal/domain/models"
	"github.com/mamadbah2/milkchain/internal/service/settings"
)

// Tier bounds the measurements a batch must meet to earn a grade.
type Tier struct {
	PHMin       float64 `json:"ph_min"`
	PHMax       float64 `json:"ph_max"`
	FatMin      float64 `json:"fat_min"`
	BacteriaMax int64   `json:"bacteria_max"`
}

// Satisfied reports whether every measurement is inside the tier.
func (t Tier) Satisfied(q models.QualityData) bool {
	return q.PH >= t.PHMin && q.PH <= t.PHMax &&
		q.FatPercentage >= t.FatMin &&
		q.BacteriaCount <= t.BacteriaMax
}

// Standards holds the three ordered tiers, A strictest.
type Standards struct {
	A Tier `json:"A"`
	B Tier `json:"B"`
	C Tier `json:"C"`
}

// DefaultStandards apply when no milk_quality_standards setting exists.
var DefaultStandards = Standards{
	A: Tier{PHMin: 6.6, PHMax: 6.8, FatMin: 3.5, BacteriaMax: 100_000},
	B: Tier{PHMin: 6.5, PHMax: 6.9, FatMin: 3.0, BacteriaMax: 500_000},
	C: Tier{PHMin: 6.4, PHMax: 7.0, FatMin: 2.5, BacteriaMax: 1_000_000},
}

// contains reports whether every batch meeting inner also meets t.
func (t Tier) contains(inner Tier) bool {
	return t.PHMin <= inner.PHMin && t.PHMax >= inner.PHMax &&
		t.FatMin <= inner.FatMin &&
		t.BacteriaMax >= inner.BacteriaMax
}

// Validate rejects unset tiers, inverted pH bounds, negative limits and
// tiers that are stricter than the grade above them.
func (s Standards) Validate() error {
	for _, entry := range []struct {
		grade models.Grade
		tier  Tier
	}{{models.GradeA, s.A}, {models.GradeB, s.B}, {models.GradeC, s.C}} {
		t := entry.tier
		if t == (Tier{}) {
			return fmt.Errorf("grade %s: tier not set", entry.grade)
		}
		if t.PHMin > t.PHMax {
			return fmt.Errorf("grade %s: ph_min %.2f above ph_max %.2f", entry.grade, t.PHMin, t.PHMax)
		}
		if t.FatMin < 0 || t.BacteriaMax < 0 {
			return fmt.Errorf("grade %s: negative limit", entry.grade)
		}
	}
	if !s.B.contains(s.A) {
		return fmt.Errorf("grade %s: tier stricter than grade %s", models.GradeB, models.GradeA)
	}
	if !s.C.contains(s.B) {
		return fmt.Errorf("grade %s: tier stricter than grade %s", models.GradeC, models.GradeB)
	}
	return nil
}

// Load reads the standards from settings, falling back to DefaultStandards
// when the key is absent. Tiers or fields missing from the stored value keep
// their default.
func Load(ctx context.Context, p settings.Provider) (Standards, error) {
	if p == nil {
		return DefaultStandards, nil
	}

	s := DefaultStandards
	found, err := p.Get(ctx, settings.KeyQualityStandards, &s)
	if err != nil {
		return DefaultStandards, fmt.Errorf("load quality standards: %w", err)
	}
	if !found {
		return DefaultStandards, nil
	}
	if err := s.Validate(); err != nil {
		return DefaultStandards, fmt.Errorf("invalid quality standards: %w", err)
	}
	return s, nil
}
