// Package batchcode builds human-readable, per-day sequential codes such as
// MB-20250115-001.
package batchcode

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mamadbah2/milkchain/internal/domain/models"
	"github.com/mamadbah2/milkchain/internal/repository"
)

// Generator formats codes from sequences reserved in the store.
type Generator struct {
	seq repository.SequenceRepository
}

// NewGenerator wires a generator on top of a sequence store.
func NewGenerator(seq repository.SequenceRepository) *Generator {
	return &Generator{seq: seq}
}

// Generate returns {PREFIX}-{YYYYMMDD}-{NNN}. Call it with a transactional
// context so the reserved sequence commits with the coded record.
func (g *Generator) Generate(ctx context.Context, prefix string, date time.Time) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", models.NewValidationError("prefix", "required")
	}

	n, err := g.seq.NextSequence(ctx, prefix, date)
	if err != nil {
		return "", models.Storage("next sequence", err)
	}
	return Format(prefix, date, n), nil
}

// Format renders a code without reserving a sequence.
func Format(prefix string, date time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%03d", prefix, repository.DayKey(date), seq)
}
