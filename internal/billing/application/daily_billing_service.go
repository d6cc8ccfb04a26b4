package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	billing "prepaid-billing/internal/billing/domain"
	"prepaid-billing/internal/observability/metrics"
	"prepaid-billing/internal/retry"
)

const (
	// DefaultChunkSize is the number of deductions committed per store transaction.
	DefaultChunkSize = 30

	opCommitDeductions = "commit_deductions"
)

// DefaultRetryPolicy retries transient store errors once after twelve seconds.
func DefaultRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 2,
		BaseDelay:   12 * time.Second,
		Multiplier:  2,
		Retryable:   billing.IsTransient,
	}
}

// DailyBillingService runs the daily deduction batch.
type DailyBillingService struct {
	accounts AccountStore
	ledger   ConsumptionStore
	tariffs  TariffStore
	runs     JobRunStore
	usage    UsageSource

	sink        NotificationSink
	clock       Clock
	logger      *zap.Logger
	policy      retry.Policy
	chunkSize   int
	defaultPlan string

	mu sync.Mutex
}

// DailyBillingOption customizes DailyBillingService.
type DailyBillingOption func(*DailyBillingService)

// WithNotificationSink sets where alerts are delivered.
func WithNotificationSink(sink NotificationSink) DailyBillingOption {
	return func(s *DailyBillingService) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithClock overrides the clock.
func WithClock(clock Clock) DailyBillingOption {
	return func(s *DailyBillingService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) DailyBillingOption {
	return func(s *DailyBillingService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRetryPolicy overrides the commit retry policy.
func WithRetryPolicy(policy retry.Policy) DailyBillingOption {
	return func(s *DailyBillingService) {
		s.policy = policy
	}
}

// WithChunkSize overrides the commit chunk size.
func WithChunkSize(size int) DailyBillingOption {
	return func(s *DailyBillingService) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithDefaultPlan sets the plan used by accounts without one.
func WithDefaultPlan(planID string) DailyBillingOption {
	return func(s *DailyBillingService) {
		if planID != "" {
			s.defaultPlan = planID
		}
	}
}

// NewDailyBillingService constructs the batch orchestrator.
func NewDailyBillingService(
	accounts AccountStore,
	ledger ConsumptionStore,
	tariffs TariffStore,
	runs JobRunStore,
	usage UsageSource,
	opts ...DailyBillingOption,
) (*DailyBillingService, error) {
	if accounts == nil {
		return nil, errors.New("daily billing: nil account store")
	}
	if ledger == nil {
		return nil, errors.New("daily billing: nil consumption store")
	}
	if tariffs == nil {
		return nil, errors.New("daily billing: nil tariff store")
	}
	if runs == nil {
		return nil, errors.New("daily billing: nil job run store")
	}
	if usage == nil {
		return nil, errors.New("daily billing: nil usage source")
	}
	s := &DailyBillingService{
		accounts:    accounts,
		ledger:      ledger,
		tariffs:     tariffs,
		runs:        runs,
		usage:       usage,
		sink:        nopSink{},
		clock:       SystemClock{},
		logger:      zap.NewNop(),
		policy:      DefaultRetryPolicy(),
		chunkSize:   DefaultChunkSize,
		defaultPlan: billing.DefaultPlanID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

type pendingDeduction struct {
	deduction billing.Deduction
	alerts    []billing.Alert
}

type batchCounts struct {
	processed int
	failed    int
	skipped   int
}

// Run bills every active account once for billingDate. A zero date means today.
// Per-account failures are counted and never abort the batch; the returned error is
// non-nil only when the run could not proceed at all.
func (s *DailyBillingService) Run(ctx context.Context, billingDate time.Time) (billing.JobRunLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := s.clock.Now().UTC()
	if billingDate.IsZero() {
		billingDate = started
	}
	run := billing.JobRunLog{
		ID:        uuid.NewString(),
		JobDate:   billing.DayStart(billingDate),
		StartedAt: started,
	}
	log := s.logger.With(zap.String("job_id", run.ID), zap.String("job_date", billing.DayKey(run.JobDate)))

	accounts, err := s.accounts.ListActiveAccounts(ctx)
	if err != nil {
		return s.abort(ctx, log, run, billing.Fatal("enumerate accounts", err))
	}
	run.TotalAccounts = len(accounts)

	plans, planErrs := s.resolveTariffs(ctx, log, accounts)
	if len(accounts) > 0 && len(plans) == 0 {
		return s.abort(ctx, log, run, billing.Fatal("no tariff plan could be resolved", s.firstPlanError(accounts, planErrs)))
	}

	var (
		counts  batchCounts
		pending []pendingDeduction
	)
	for i, account := range accounts {
		if ctx.Err() != nil {
			remaining := len(accounts) - i
			counts.failed += remaining
			log.Warn("daily billing interrupted", zap.Int("remaining", remaining), zap.Error(ctx.Err()))
			break
		}
		item, skip, err := s.prepare(ctx, account, run.JobDate, plans, planErrs)
		switch {
		case err != nil:
			counts.failed++
			log.Warn("account billing failed", zap.String("account_id", account.AccountID), zap.Error(err))
		case skip:
			counts.skipped++
		default:
			pending = append(pending, item)
		}
		if len(pending) >= s.chunkSize {
			s.flush(ctx, log, pending, &counts)
			pending = nil
		}
	}
	if len(pending) > 0 {
		s.flush(ctx, log, pending, &counts)
	}

	run.ProcessedCount = counts.processed
	run.FailedCount = counts.failed
	run.SkippedCount = counts.skipped
	run.Status = billing.JobCompleted
	run.FinishedAt = s.clock.Now().UTC()

	metrics.AddAccounts(metrics.AccountsProcessed, counts.processed)
	metrics.AddAccounts(metrics.AccountsFailed, counts.failed)
	metrics.AddAccounts(metrics.AccountsSkipped, counts.skipped)
	metrics.ObserveDailyJob(string(run.Status), run.FinishedAt.Sub(run.StartedAt))

	if err := s.runs.AppendJobRun(ctx, run); err != nil {
		log.Error("job run log write failed", zap.Error(err))
		return run, err
	}
	log.Info("daily billing completed",
		zap.Int("total", run.TotalAccounts),
		zap.Int("processed", run.ProcessedCount),
		zap.Int("failed", run.FailedCount),
		zap.Int("skipped", run.SkippedCount),
	)
	return run, nil
}

func (s *DailyBillingService) planID(account billing.Account) string {
	if account.TariffPlanID != "" {
		return account.TariffPlanID
	}
	return s.defaultPlan
}

func (s *DailyBillingService) resolveTariffs(ctx context.Context, log *zap.Logger, accounts []billing.Account) (map[string]billing.TariffPlan, map[string]error) {
	plans := make(map[string]billing.TariffPlan)
	planErrs := make(map[string]error)
	for _, account := range accounts {
		id := s.planID(account)
		if _, ok := plans[id]; ok {
			continue
		}
		if _, ok := planErrs[id]; ok {
			continue
		}
		tariff, err := s.tariffs.GetTariff(ctx, id)
		if err == nil {
			err = tariff.Validate()
		}
		if err != nil {
			planErrs[id] = err
			log.Warn("tariff plan unavailable", zap.String("plan_id", id), zap.Error(err))
			continue
		}
		plans[id] = tariff
	}
	return plans, planErrs
}

func (s *DailyBillingService) prepare(
	ctx context.Context,
	account billing.Account,
	day time.Time,
	plans map[string]billing.TariffPlan,
	planErrs map[string]error,
) (pendingDeduction, bool, error) {
	id := s.planID(account)
	if err, ok := planErrs[id]; ok {
		return pendingDeduction{}, false, err
	}
	tariff := plans[id]

	billed, err := s.ledger.HasConsumption(ctx, account.AccountID, day)
	if err != nil {
		return pendingDeduction{}, false, err
	}
	if billed {
		return pendingDeduction{}, true, nil
	}

	kwh, err := s.usage.DailyUsage(ctx, account.AccountID, day)
	if err != nil {
		return pendingDeduction{}, false, err
	}
	if kwh.IsZero() {
		return pendingDeduction{}, true, nil
	}

	record, err := billing.CalculateDeduction(billing.DeductionInput{
		AccountID:     account.AccountID,
		BillingDate:   day,
		Timestamp:     s.clock.Now().UTC(),
		BalanceBefore: account.Balance,
		KWhUsed:       kwh,
		Tariff:        tariff,
	})
	if err != nil {
		return pendingDeduction{}, false, err
	}
	next, alerts, err := billing.ApplyDeduction(account, record, tariff)
	if err != nil {
		return pendingDeduction{}, false, err
	}
	return pendingDeduction{
		deduction: billing.Deduction{Record: record, Account: next},
		alerts:    alerts,
	}, false, nil
}

func (s *DailyBillingService) flush(ctx context.Context, log *zap.Logger, chunk []pendingDeduction, counts *batchCounts) {
	err := s.commit(ctx, log, chunk)
	if err == nil {
		counts.processed += len(chunk)
		s.emitAll(ctx, log, chunk)
		return
	}
	if billing.IsTransient(err) || len(chunk) == 1 {
		s.countCommitFailure(log, chunk, err, counts)
		return
	}

	// a non-transient error belongs to one account; commit the rest one by one
	log.Warn("deduction chunk rejected, committing accounts individually", zap.Int("size", len(chunk)), zap.Error(err))
	for _, item := range chunk {
		single := []pendingDeduction{item}
		if err := s.commit(ctx, log, single); err != nil {
			s.countCommitFailure(log, single, err, counts)
			continue
		}
		counts.processed++
		s.emitAll(ctx, log, single)
	}
}

func (s *DailyBillingService) commit(ctx context.Context, log *zap.Logger, chunk []pendingDeduction) error {
	deductions := make([]billing.Deduction, 0, len(chunk))
	for _, item := range chunk {
		deductions = append(deductions, item.deduction)
	}

	policy := s.policy
	observe := policy.Observe
	policy.Observe = func(a retry.Attempt) {
		metrics.IncRetryAttempt(a.Operation, string(a.Outcome))
		if a.Outcome == retry.OutcomeRetry {
			log.Warn("deduction commit retry", zap.Int("attempt", a.Number), zap.Duration("delay", a.Delay), zap.Error(a.Err))
		}
		if observe != nil {
			observe(a)
		}
	}
	return policy.Do(ctx, opCommitDeductions, func(ctx context.Context) error {
		return s.ledger.CommitDeductions(ctx, deductions)
	})
}

// countCommitFailure fails the chunk's accounts, except that a duplicate day row of a
// single account means a concurrent run already billed it.
func (s *DailyBillingService) countCommitFailure(log *zap.Logger, chunk []pendingDeduction, err error, counts *batchCounts) {
	if len(chunk) == 1 && errors.Is(err, billing.ErrDuplicate) {
		counts.skipped++
		log.Info("account already billed", zap.String("account_id", chunk[0].deduction.Record.AccountID))
		return
	}
	counts.failed += len(chunk)
	for _, item := range chunk {
		log.Warn("deduction commit failed", zap.String("account_id", item.deduction.Record.AccountID), zap.Error(err))
	}
}

func (s *DailyBillingService) emitAll(ctx context.Context, log *zap.Logger, chunk []pendingDeduction) {
	for _, item := range chunk {
		for _, alert := range item.alerts {
			s.emit(ctx, log, alert)
		}
	}
}

func (s *DailyBillingService) emit(ctx context.Context, log *zap.Logger, alert billing.Alert) {
	metrics.IncAlert(string(alert.Type))
	if err := s.sink.Notify(ctx, alert); err != nil {
		log.Warn("alert delivery failed",
			zap.String("account_id", alert.AccountID),
			zap.String("type", string(alert.Type)),
			zap.Error(err),
		)
	}
}

func (s *DailyBillingService) abort(ctx context.Context, log *zap.Logger, run billing.JobRunLog, cause error) (billing.JobRunLog, error) {
	run.ProcessedCount = 0
	run.FailedCount = 0
	run.SkippedCount = 0
	run.Status = billing.JobFailed
	run.Error = cause.Error()
	run.FinishedAt = s.clock.Now().UTC()
	metrics.ObserveDailyJob(string(run.Status), run.FinishedAt.Sub(run.StartedAt))

	log.Error("daily billing aborted", zap.Error(cause))
	if err := s.runs.AppendJobRun(ctx, run); err != nil {
		log.Error("job run log write failed", zap.Error(err))
	}
	return run, cause
}

// firstPlanError returns the error of the first failing plan in account order.
func (s *DailyBillingService) firstPlanError(accounts []billing.Account, planErrs map[string]error) error {
	for _, account := range accounts {
		if err, ok := planErrs[s.planID(account)]; ok {
			return err
		}
	}
	return nil
}
