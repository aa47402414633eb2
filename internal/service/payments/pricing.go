package payments

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/milkchain/internal/domain/models"
	"github.com/mamadbah2/milkchain/internal/service/settings"
)

// Pricing maps a grade to its rate per liter.
type Pricing map[models.Grade]decimal.Decimal

// DefaultPricing applies to farms without custom prices.
var DefaultPricing = Pricing{
	models.GradeA: decimal.NewFromInt(12000),
	models.GradeB: decimal.NewFromInt(10000),
	models.GradeC: decimal.NewFromInt(8000),
}

// Rate returns the price for g, or zero for unpriced grades.
func (p Pricing) Rate(g models.Grade) decimal.Decimal {
	if r, ok := p[g]; ok {
		return r
	}
	return decimal.Zero
}

// LoadPricing reads a farm's custom prices. Grades missing from the stored
// value keep their default rate.
func LoadPricing(ctx context.Context, p settings.Provider, farmID string) (Pricing, error) {
	out := make(Pricing, len(DefaultPricing))
	for g, r := range DefaultPricing {
		out[g] = r
	}
	if p == nil {
		return out, nil
	}

	var custom map[models.Grade]decimal.Decimal
	found, err := p.Get(ctx, settings.FarmPricingKey(farmID), &custom)
	if err != nil {
		return nil, err
	}
	if !found {
		return out, nil
	}
	for _, g := range models.PayableGrades {
		if r, ok := custom[g]; ok && !r.IsNegative() {
			out[g] = r
		}
	}
	return out, nil
}
