package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/milkchain/internal/appctx"
	"github.com/mamadbah2/milkchain/internal/config"
	"github.com/mamadbah2/milkchain/internal/domain/models"
	"github.com/mamadbah2/milkchain/internal/repository"
	"github.com/mamadbah2/milkchain/internal/service/payments"
	"github.com/mamadbah2/milkchain/internal/service/reporting"
)

const (
	paymentRunLock       = "milkchain:job:payment-run"
	collectionReportLock = "milkchain:job:collection-report"
	jobTimeout           = 5 * time.Minute
)

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron         *cron.Cron
	location     *time.Location
	store        repository.Store
	paymentSvc   *payments.Service
	reportingSvc *reporting.Service
	locker       *redislock.Client
	cfg          config.SchedulerConfig
	logger       *zap.Logger
}

// NewScheduler creates a new scheduler instance. A nil locker runs jobs
// without cross-replica coordination.
func NewScheduler(cfg config.SchedulerConfig, store repository.Store, paymentSvc *payments.Service, reportingSvc *reporting.Service, locker *redislock.Client, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", cfg.Timezone, err)
	}

	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cronLogger{logger})))

	return &Scheduler{
		cron:         c,
		location:     loc,
		store:        store,
		paymentSvc:   paymentSvc,
		reportingSvc: reportingSvc,
		locker:       locker,
		cfg:          cfg,
		logger:       logger,
	}, nil
}

// Start registers the jobs and starts the cron engine.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler", zap.String("timezone", s.location.String()))

	if _, err := s.cron.AddFunc(s.cfg.PaymentRunSchedule, func() {
		s.runLocked(paymentRunLock, func(ctx context.Context) error {
			_, err := s.RunMonthlyPayments(ctx, time.Now().In(s.location))
			return err
		})
	}); err != nil {
		return fmt.Errorf("schedule payment run %q: %w", s.cfg.PaymentRunSchedule, err)
	}

	if _, err := s.cron.AddFunc(s.cfg.CollectionReportCron, func() {
		s.runLocked(collectionReportLock, func(ctx context.Context) error {
			_, err := s.reportingSvc.GenerateWeeklyReports(ctx, time.Now().In(s.location))
			return err
		})
	}); err != nil {
		return fmt.Errorf("schedule collection report %q: %w", s.cfg.CollectionReportCron, err)
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

// runLocked runs job under a Redis lock so only one replica executes it.
func (s *Scheduler) runLocked(key string, job func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	ctx = appctx.WithActor(ctx, appctx.SystemActor)

	if s.locker != nil {
		lock, err := s.locker.Obtain(ctx, key, s.cfg.LockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			s.logger.Info("job already running elsewhere, skipping", zap.String("job", key))
			return
		}
		if err != nil {
			s.logger.Error("failed to obtain job lock", zap.String("job", key), zap.Error(err))
			return
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				s.logger.Warn("failed to release job lock", zap.String("job", key), zap.Error(err))
			}
		}()
	}

	start := time.Now()
	if err := job(ctx); err != nil {
		s.logger.Error("job failed", zap.String("job", key), zap.Error(err))
		return
	}
	s.logger.Info("job finished", zap.String("job", key), zap.Duration("took", time.Since(start)))
}

// RunMonthlyPayments drafts a payment for the calendar month before now for
// every active farm. Farms already paid for that period or without approved
// batches are skipped. It returns the number of payments created.
func (s *Scheduler) RunMonthlyPayments(ctx context.Context, now time.Time) (int, error) {
	start, end := PreviousMonth(now)

	farms, err := s.store.ListActiveFarms(ctx)
	if err != nil {
		return 0, fmt.Errorf("list farms: %w", err)
	}

	var created int
	for _, farm := range farms {
		logger := s.logger.With(zap.String("farm_id", farm.ID))

		exists, err := s.store.PaymentExists(ctx, farm.ID, start, end)
		if err != nil {
			logger.Error("failed to check existing payment", zap.Error(err))
			continue
		}
		if exists {
			logger.Debug("payment already drafted for period")
			continue
		}

		payment, err := s.paymentSvc.CreatePayment(ctx, farm.ID, payments.CreatePaymentInput{
			PeriodStart: start,
			PeriodEnd:   end,
			Notes:       "Drafted by monthly payment run",
		})
		if errors.Is(err, models.ErrNoApprovedBatches) {
			logger.Debug("no approved batches for period")
			continue
		}
		if err != nil {
			logger.Error("failed to draft payment", zap.Error(err))
			continue
		}
		logger.Info("payment drafted", zap.String("payment_id", payment.ID), zap.String("net", payment.NetAmount.String()))
		created++
	}
	return created, nil
}

// PreviousMonth returns the first and last second of the calendar month
// before now, in now's location.
func PreviousMonth(now time.Time) (time.Time, time.Time) {
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	start := firstOfMonth.AddDate(0, -1, 0)
	end := firstOfMonth.Add(-time.Second)
	return start, end
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Infow(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
