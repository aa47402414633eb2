package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the approval workflow state of a milk payment.
type PaymentStatus string

const (
	PaymentDraft    PaymentStatus = "draft"
	PaymentApproved PaymentStatus = "approved"
	PaymentPaid     PaymentStatus = "paid"
)

// GradeLine is the payable total for one grade within a period.
type GradeLine struct {
	Liters decimal.Decimal `bson:"liters" json:"liters"`
	Rate   decimal.Decimal `bson:"rate" json:"rate"`
	Amount decimal.Decimal `bson:"amount" json:"amount"`
}

// Deduction is a named subtraction from the gross amount.
type Deduction struct {
	Label  string          `bson:"label" json:"label" validate:"required"`
	Amount decimal.Decimal `bson:"amount" json:"amount"`
}

// PaymentPreview is the read-only result of pricing a farm's approved batches.
type PaymentPreview struct {
	FarmID         string              `json:"farm_id"`
	PeriodStart    time.Time           `json:"period_start"`
	PeriodEnd      time.Time           `json:"period_end"`
	BatchCount     int                 `json:"batch_count"`
	TotalLiters    decimal.Decimal     `json:"total_liters"`
	GradeBreakdown map[Grade]GradeLine `json:"grade_breakdown"`
	GrossAmount    decimal.Decimal     `json:"gross_amount"`
}

// MilkPayment settles a farm's approved milk for a period.
type MilkPayment struct {
	ID                 string    `bson:"_id" json:"id"`
	FarmID             string    `bson:"farm_id" json:"farm_id"`
	PaymentPeriodStart time.Time `bson:"payment_period_start" json:"payment_period_start"`
	PaymentPeriodEnd   time.Time `bson:"payment_period_end" json:"payment_period_end"`

	TotalLiters     decimal.Decimal     `bson:"total_liters" json:"total_liters"`
	GradeBreakdown  map[Grade]GradeLine `bson:"grade_breakdown" json:"grade_breakdown"`
	GrossAmount     decimal.Decimal     `bson:"gross_amount" json:"gross_amount"`
	Deductions      []Deduction         `bson:"deductions" json:"deductions"`
	DeductionsTotal decimal.Decimal     `bson:"deductions_total" json:"deductions_total"`
	NetAmount       decimal.Decimal     `bson:"net_amount" json:"net_amount"`

	Status       PaymentStatus `bson:"status" json:"status"`
	CalculatedBy string        `bson:"calculated_by,omitempty" json:"calculated_by,omitempty"`
	CalculatedAt *time.Time    `bson:"calculated_at,omitempty" json:"calculated_at,omitempty"`
	ApprovedBy   string        `bson:"approved_by,omitempty" json:"approved_by,omitempty"`
	ApprovedAt   *time.Time    `bson:"approved_at,omitempty" json:"approved_at,omitempty"`
	PaidBy       string        `bson:"paid_by,omitempty" json:"paid_by,omitempty"`
	PaidAt       *time.Time    `bson:"paid_at,omitempty" json:"paid_at,omitempty"`

	PaymentMethod    string `bson:"payment_method,omitempty" json:"payment_method,omitempty"`
	PaymentReference string `bson:"payment_reference,omitempty" json:"payment_reference,omitempty"`
	PaymentProof     string `bson:"payment_proof,omitempty" json:"payment_proof,omitempty"`
	Notes            string `bson:"notes,omitempty" json:"notes,omitempty"`

	Version   int64     `bson:"version" json:"version"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Recompute derives deductions_total and net_amount from the gross amount and
// the deduction list. Net is never edited directly and may be negative.
func (p *MilkPayment) Recompute() {
	total := decimal.Zero
	for _, d := range p.Deductions {
		total = total.Add(d.Amount)
	}
	p.DeductionsTotal = total
	p.NetAmount = p.GrossAmount.Sub(total)
}
