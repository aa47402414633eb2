// Package settings resolves pipeline configuration stored as JSON values
// under string keys.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
)

// Well-known keys.
const (
	KeyQualityStandards = "milk_quality_standards"
	KeyTemperatureRange = "milk_temperature_range"
	keyMilkPricing      = "milk_pricing"
)

// FarmPricingKey is the key of a farm's custom per-grade milk prices.
func FarmPricingKey(farmID string) string {
	return fmt.Sprintf("farm.%s.%s", farmID, keyMilkPricing)
}

// Provider looks up a JSON value and decodes it into dest. Found is false
// when the key does not exist; callers then apply their own defaults.
type Provider interface {
	Get(ctx context.Context, key string, dest any) (found bool, err error)
}

// ProviderFunc adapts a lookup function to Provider.
type ProviderFunc func(ctx context.Context, key string, dest any) (bool, error)

// Get calls f.
func (f ProviderFunc) Get(ctx context.Context, key string, dest any) (bool, error) {
	return f(ctx, key, dest)
}

// Static serves raw JSON values from memory.
type Static map[string]string

// Get decodes the stored JSON for key.
func (s Static) Get(_ context.Context, key string, dest any) (bool, error) {
	raw, ok := s[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("decode setting %s: %w", key, err)
	}
	return true, nil
}

// TemperatureRange is the cold-chain temperature configuration in °C.
type TemperatureRange struct {
	Min              float64 `json:"min"`
	Max              float64 `json:"max"`
	WarningThreshold float64 `json:"warning_threshold"`
}

// DefaultTemperatureRange applies when no setting is stored.
var DefaultTemperatureRange = TemperatureRange{Min: 2, Max: 4, WarningThreshold: 10}

// LoadTemperatureRange reads the temperature settings, falling back to the
// defaults when the key is absent or the threshold is unset.
func LoadTemperatureRange(ctx context.Context, p Provider) (TemperatureRange, error) {
	tr := DefaultTemperatureRange
	if p == nil {
		return tr, nil
	}
	found, err := p.Get(ctx, KeyTemperatureRange, &tr)
	if err != nil {
		return DefaultTemperatureRange, err
	}
	if !found || tr.WarningThreshold == 0 {
		tr.WarningThreshold = DefaultTemperatureRange.WarningThreshold
	}
	return tr, nil
}
