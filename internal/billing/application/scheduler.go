package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	billing "prepaid-billing/internal/billing/domain"
)

// DailyRunner runs the daily batch.
type DailyRunner interface {
	Run(ctx context.Context, billingDate time.Time) (billing.JobRunLog, error)
}

// InvoiceGenerator creates monthly invoices.
type InvoiceGenerator interface {
	GenerateMonthly(ctx context.Context, period billing.Period) ([]billing.Invoice, error)
}

// InvoiceSyncer pushes invoices to settlement.
type InvoiceSyncer interface {
	Sync(ctx context.Context) (SyncResult, error)
}

// Scheduler triggers billing jobs once a day.
type Scheduler struct {
	daily    DailyRunner
	invoices InvoiceGenerator
	syncer   InvoiceSyncer
	runs     JobRunStore
	schedule ScheduleConfig
	logger   *zap.Logger
}

// NewScheduler constructs a Scheduler. invoices and syncer may be nil.
func NewScheduler(daily DailyRunner, invoices InvoiceGenerator, syncer InvoiceSyncer, runs JobRunStore, schedule ScheduleConfig, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		daily:    daily,
		invoices: invoices,
		syncer:   syncer,
		runs:     runs,
		schedule: schedule,
		logger:   logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.daily == nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.shouldRun(now.UTC()) {
				continue
			}
			s.RunOnce(ctx, now.UTC())
		}
	}
}

func (s *Scheduler) shouldRun(now time.Time) bool {
	hour, minute, err := parseDailyAt(s.schedule.DailyAt)
	if err != nil {
		return false
	}
	return now.Hour() == hour && now.Minute() == minute
}

// RunOnce performs the jobs due at now: the daily batch unless the day already completed,
// and on the invoice day the previous month's invoices followed by settlement sync.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) {
	day := billing.DayStart(now)
	log := s.logger.With(zap.String("job_date", billing.DayKey(day)))

	done := false
	if s.runs != nil {
		completed, err := s.runs.HasCompletedRun(ctx, day)
		if err != nil {
			log.Warn("job run lookup failed", zap.Error(err))
		}
		done = completed
	}
	if done {
		log.Info("daily billing already completed")
	} else if _, err := s.daily.Run(ctx, day); err != nil {
		log.Error("scheduled daily billing failed", zap.Error(err))
	}

	if s.invoices == nil || s.schedule.InvoiceDay <= 0 || day.Day() != s.schedule.InvoiceDay {
		return
	}
	period := billing.PeriodOf(day).Previous()
	if _, err := s.invoices.GenerateMonthly(ctx, period); err != nil {
		log.Error("scheduled invoice generation failed", zap.String("period", period.String()), zap.Error(err))
		return
	}
	if s.syncer == nil || !s.schedule.SyncAfterInvoices {
		return
	}
	if _, err := s.syncer.Sync(ctx); err != nil {
		log.Error("scheduled settlement sync failed", zap.Error(err))
	}
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
