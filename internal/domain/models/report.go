package models

import (
	"fmt"
	"strings"
	"time"
)

// CollectionReport summarises a farm's milk collection over a period. The
// weekly job stores one per farm in MongoDB.
type CollectionReport struct {
	FarmID        string            `bson:"farm_id" json:"farm_id"`
	PeriodStart   time.Time         `bson:"period_start" json:"period_start"`
	PeriodEnd     time.Time         `bson:"period_end" json:"period_end"`
	Batches       int               `bson:"batches" json:"batches"`
	TotalLiters   float64           `bson:"total_liters" json:"total_liters"`
	LitersByGrade map[Grade]float64 `bson:"liters_by_grade" json:"liters_by_grade"`
	Rejected      int               `bson:"rejected" json:"rejected"`
	Pending       int               `bson:"pending" json:"pending"`
	AverageGrade  Grade             `bson:"average_grade,omitempty" json:"average_grade,omitempty"`
	CreatedAt     time.Time         `bson:"created_at" json:"created_at"`
}

// Format renders the report as a short chat message.
func (r CollectionReport) Format() string {
	const layout = "2006-01-02"
	var b strings.Builder
	fmt.Fprintf(&b, "Milk collection %s - %s\n", r.PeriodStart.Format(layout), r.PeriodEnd.Format(layout))
	if r.Batches == 0 {
		b.WriteString("No batches collected.")
		return b.String()
	}
	fmt.Fprintf(&b, "%d batches, %.2f L collected.\n", r.Batches, r.TotalLiters)
	for _, g := range PayableGrades {
		if liters, ok := r.LitersByGrade[g]; ok && liters > 0 {
			fmt.Fprintf(&b, "Grade %s: %.2f L\n", g, liters)
		}
	}
	if r.Rejected > 0 {
		fmt.Fprintf(&b, "Rejected: %d\n", r.Rejected)
	}
	if r.Pending > 0 {
		fmt.Fprintf(&b, "Awaiting test: %d\n", r.Pending)
	}
	if r.AverageGrade != "" {
		fmt.Fprintf(&b, "Average grade: %s", r.AverageGrade)
	}
	return strings.TrimRight(b.String(), "\n")
}
