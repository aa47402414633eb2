// Package payments prices approved milk per farm and period and drives the
// draft, approved, paid workflow of milk payments.
package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/milkchain/internal/appctx"
	"github.com/mamadbah2/milkchain/internal/domain/models"
	"github.com/mamadbah2/milkchain/internal/repository"
	"github.com/mamadbah2/milkchain/internal/service/notify"
	"github.com/mamadbah2/milkchain/internal/service/settings"
)

const periodLayout = "2006-01-02"

// Service exposes payment calculation and workflow operations.
type Service struct {
	store    repository.Store
	settings settings.Provider
	notifier notify.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires a new payment service instance.
func NewService(store repository.Store, provider settings.Provider, notifier notify.Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		settings: provider,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// CreatePaymentInput describes the period and deductions of a new payment.
type CreatePaymentInput struct {
	PeriodStart time.Time          `json:"period_start" validate:"required"`
	PeriodEnd   time.Time          `json:"period_end" validate:"required,gtefield=PeriodStart"`
	Deductions  []models.Deduction `json:"deductions" validate:"dive"`
	Notes       string             `json:"notes"`
}

// MarkPaidInput records how a payment was settled.
type MarkPaidInput struct {
	PaymentMethod    string `json:"payment_method" validate:"required"`
	PaymentReference string `json:"payment_reference"`
	PaymentProof     string `json:"payment_proof"`
}

// CalculatePayment prices a farm's approved batches collected within
// [start, end]. Nothing is persisted.
func (s *Service) CalculatePayment(ctx context.Context, farmID string, start, end time.Time) (*models.PaymentPreview, error) {
	if err := validatePeriod(farmID, start, end); err != nil {
		return nil, err
	}

	batches, err := s.store.FindBatches(ctx, repository.BatchFilter{
		FarmID:        farmID,
		Statuses:      []models.BatchStatus{models.BatchApproved},
		CollectedFrom: start,
		CollectedTo:   end,
	})
	if err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, fmt.Errorf("farm %s %s..%s: %w", farmID, start.Format(periodLayout), end.Format(periodLayout), models.ErrNoApprovedBatches)
	}

	pricing, err := LoadPricing(ctx, s.settings, farmID)
	if err != nil {
		return nil, models.Storage("load pricing", err)
	}

	liters := make(map[models.Grade]decimal.Decimal, len(models.PayableGrades))
	for _, b := range batches {
		liters[b.QualityGrade] = liters[b.QualityGrade].Add(decimal.NewFromFloat(b.TotalVolume))
	}

	preview := &models.PaymentPreview{
		FarmID:         farmID,
		PeriodStart:    start,
		PeriodEnd:      end,
		BatchCount:     len(batches),
		TotalLiters:    decimal.Zero,
		GradeBreakdown: make(map[models.Grade]models.GradeLine, len(models.PayableGrades)),
		GrossAmount:    decimal.Zero,
	}
	for _, g := range models.PayableGrades {
		l := liters[g]
		if !l.IsPositive() {
			continue
		}
		rate := pricing.Rate(g)
		amount := l.Mul(rate)
		preview.GradeBreakdown[g] = models.GradeLine{Liters: l, Rate: rate, Amount: amount}
		preview.TotalLiters = preview.TotalLiters.Add(l)
		preview.GrossAmount = preview.GrossAmount.Add(amount)
	}
	return preview, nil
}

// CreatePayment calculates and stores a draft payment with its deductions.
func (s *Service) CreatePayment(ctx context.Context, farmID string, input CreatePaymentInput) (*models.MilkPayment, error) {
	if farmID == "" {
		return nil, models.NewValidationError("farm_id", "required")
	}
	if err := models.Validate(input); err != nil {
		return nil, err
	}
	for i, d := range input.Deductions {
		if d.Amount.IsNegative() {
			return nil, models.NewValidationError(fmt.Sprintf("deductions[%d].amount", i), "gte=0")
		}
	}

	actor := appctx.ActorFrom(ctx)
	var payment *models.MilkPayment

	err := s.store.RunInTransaction(ctx, func(txCtx context.Context) error {
		preview, err := s.CalculatePayment(txCtx, farmID, input.PeriodStart, input.PeriodEnd)
		if err != nil {
			return err
		}

		p := &models.MilkPayment{
			FarmID:             farmID,
			PaymentPeriodStart: input.PeriodStart,
			PaymentPeriodEnd:   input.PeriodEnd,
			TotalLiters:        preview.TotalLiters,
			GradeBreakdown:     preview.GradeBreakdown,
			GrossAmount:        preview.GrossAmount,
			Deductions:         append([]models.Deduction{}, input.Deductions...),
			Status:             models.PaymentDraft,
			CalculatedBy:       actor,
			CalculatedAt:       s.stamp(),
			Notes:              input.Notes,
		}
		p.Recompute()

		if err := s.store.InsertPayment(txCtx, p); err != nil {
			return err
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment calculated",
		zap.String("payment_id", payment.ID),
		zap.String("farm_id", farmID),
		zap.String("gross", payment.GrossAmount.String()),
		zap.String("net", payment.NetAmount.String()))
	s.notify(ctx, models.EventPaymentCreated, payment)
	return payment, nil
}

// Approve moves a draft payment to approved.
func (s *Service) Approve(ctx context.Context, paymentID string) (*models.MilkPayment, error) {
	actor := appctx.ActorFrom(ctx)

	payment, err := s.mutate(ctx, paymentID, func(p *models.MilkPayment) error {
		if p.Status != models.PaymentDraft {
			return invalidTransition(p.Status, models.PaymentApproved)
		}
		p.Status = models.PaymentApproved
		p.ApprovedBy = actor
		p.ApprovedAt = s.stamp()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment approved", zap.String("payment_id", payment.ID), zap.String("approved_by", actor))
	s.notify(ctx, models.EventPaymentApproved, payment)
	return payment, nil
}

// MarkAsPaid moves an approved payment to paid and records the settlement.
func (s *Service) MarkAsPaid(ctx context.Context, paymentID string, input MarkPaidInput) (*models.MilkPayment, error) {
	if err := models.Validate(input); err != nil {
		return nil, err
	}
	actor := appctx.ActorFrom(ctx)

	payment, err := s.mutate(ctx, paymentID, func(p *models.MilkPayment) error {
		if p.Status != models.PaymentApproved {
			return invalidTransition(p.Status, models.PaymentPaid)
		}
		p.Status = models.PaymentPaid
		p.PaidBy = actor
		p.PaidAt = s.stamp()
		p.PaymentMethod = input.PaymentMethod
		p.PaymentReference = input.PaymentReference
		p.PaymentProof = input.PaymentProof
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment marked as paid", zap.String("payment_id", payment.ID), zap.String("method", payment.PaymentMethod))
	s.notify(ctx, models.EventPaymentPaid, payment)
	return payment, nil
}

// UpdateNotes replaces the administrative notes. Allowed in every status.
func (s *Service) UpdateNotes(ctx context.Context, paymentID, notes string) (*models.MilkPayment, error) {
	return s.mutate(ctx, paymentID, func(p *models.MilkPayment) error {
		p.Notes = notes
		return nil
	})
}

// GetPayment loads a payment by id.
func (s *Service) GetPayment(ctx context.Context, id string) (*models.MilkPayment, error) {
	return s.store.GetPayment(ctx, id)
}

// ListPayments returns a farm's payments, newest period first.
func (s *Service) ListPayments(ctx context.Context, farmID string) ([]models.MilkPayment, error) {
	if farmID == "" {
		return nil, models.NewValidationError("farm_id", "required")
	}
	return s.store.ListPayments(ctx, farmID)
}

func (s *Service) mutate(ctx context.Context, id string, fn func(p *models.MilkPayment) error) (*models.MilkPayment, error) {
	payment, err := s.store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(payment); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePayment(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *Service) notify(ctx context.Context, event models.EventType, p *models.MilkPayment) {
	if s.notifier == nil {
		return
	}
	payload := map[string]string{
		"period":       fmt.Sprintf("%s - %s", p.PaymentPeriodStart.Format(periodLayout), p.PaymentPeriodEnd.Format(periodLayout)),
		"status":       string(p.Status),
		"gross_amount": p.GrossAmount.StringFixed(2),
		"deductions":   p.DeductionsTotal.StringFixed(2),
		"net_amount":   p.NetAmount.StringFixed(2),
	}
	if p.Status == models.PaymentPaid {
		payload["method"] = p.PaymentMethod
		payload["reference"] = p.PaymentReference
	}
	s.notifier.Notify(ctx, models.Notification{
		Recipient: p.FarmID,
		Event:     event,
		Payload:   payload,
		CreatedAt: s.now(),
	})
}

func (s *Service) stamp() *time.Time {
	t := s.now().UTC()
	return &t
}

func validatePeriod(farmID string, start, end time.Time) error {
	fields := map[string]string{}
	if farmID == "" {
		fields["farm_id"] = "required"
	}
	if start.IsZero() {
		fields["period_start"] = "required"
	}
	if end.IsZero() {
		fields["period_end"] = "required"
	} else if end.Before(start) {
		fields["period_end"] = "gtefield=period_start"
	}
	if len(fields) > 0 {
		return &models.ValidationError{Fields: fields}
	}
	return nil
}

func invalidTransition(from, to models.PaymentStatus) error {
	return &models.InvalidTransitionError{Entity: "payment", From: string(from), To: string(to)}
}
