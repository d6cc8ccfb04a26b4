package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	billing "prepaid-billing/internal/billing/domain"
	"prepaid-billing/internal/observability/metrics"
	"prepaid-billing/internal/retry"
)

const (
	opSaveRecharge   = "save_recharge"
	rechargeAttempts = 3
)

// RechargeRequest credits prepaid balance.
type RechargeRequest struct {
	AccountID   string
	Amount      decimal.Decimal
	VoucherCode string
	Reference   string
}

// RechargeResult is the stored transaction with the account after it.
type RechargeResult struct {
	Transaction billing.RechargeTransaction `json:"transaction"`
	Account     billing.Account             `json:"account"`
}

// AccountService handles recharges and profile changes.
type AccountService struct {
	accounts AccountStore
	ledger   ConsumptionStore
	sink     NotificationSink
	clock    Clock
	logger   *zap.Logger
}

// NewAccountService constructs the service. sink may be nil.
func NewAccountService(accounts AccountStore, ledger ConsumptionStore, sink NotificationSink, clock Clock, logger *zap.Logger) (*AccountService, error) {
	if accounts == nil {
		return nil, errors.New("account service: nil account store")
	}
	if ledger == nil {
		return nil, errors.New("account service: nil consumption store")
	}
	if sink == nil {
		sink = nopSink{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{accounts: accounts, ledger: ledger, sink: sink, clock: clock, logger: logger}, nil
}

// Recharge credits an account. The reference must be unique across all recharges.
func (s *AccountService) Recharge(ctx context.Context, req RechargeRequest) (RechargeResult, error) {
	result, err := s.recharge(ctx, req)
	if err != nil {
		metrics.IncRecharge(metrics.ResultError)
		return RechargeResult{}, err
	}
	metrics.IncRecharge(metrics.ResultSuccess)
	return result, nil
}

func (s *AccountService) recharge(ctx context.Context, req RechargeRequest) (RechargeResult, error) {
	reference := strings.TrimSpace(req.Reference)
	if req.AccountID == "" {
		return RechargeResult{}, billing.Validation("account id is empty")
	}
	if reference == "" {
		return RechargeResult{}, billing.Validation("recharge reference is empty")
	}
	var (
		account billing.Account
		next    billing.Account
		alerts  []billing.Alert
		tx      billing.RechargeTransaction
	)
	policy := s.rechargePolicy(req.AccountID)
	err := policy.Do(ctx, opSaveRecharge, func(ctx context.Context) error {
		var err error
		account, err = s.accounts.GetAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		next, alerts, err = billing.ApplyRecharge(account, req.Amount, now)
		if err != nil {
			return err
		}
		tx = billing.RechargeTransaction{
			ID:          uuid.NewString(),
			AccountID:   account.AccountID,
			Amount:      req.Amount,
			Timestamp:   now,
			VoucherCode: strings.TrimSpace(req.VoucherCode),
			Reference:   reference,
		}
		return s.accounts.SaveRecharge(ctx, next, tx)
	})
	if err != nil {
		return RechargeResult{}, err
	}

	log := s.logger.With(zap.String("account_id", account.AccountID))
	log.Info("account recharged",
		zap.String("reference", reference),
		zap.String("amount", req.Amount.String()),
		zap.String("balance", next.Balance.String()),
	)
	for _, alert := range alerts {
		metrics.IncAlert(string(alert.Type))
		if err := s.sink.Notify(ctx, alert); err != nil {
			log.Warn("alert delivery failed", zap.String("type", string(alert.Type)), zap.Error(err))
		}
	}
	return RechargeResult{Transaction: tx, Account: next}, nil
}

// rechargePolicy re-reads the account when a concurrent write moved its balance.
func (s *AccountService) rechargePolicy(accountID string) retry.Policy {
	return retry.Policy{
		MaxAttempts: rechargeAttempts,
		Retryable: func(err error) bool {
			return errors.Is(err, billing.ErrConflict)
		},
		Observe: func(a retry.Attempt) {
			metrics.IncRetryAttempt(a.Operation, string(a.Outcome))
			if a.Outcome == retry.OutcomeRetry {
				s.logger.Info("recharge retried after balance change", zap.String("account_id", accountID), zap.Int("attempt", a.Number))
			}
		},
	}
}

// UpdateContact changes name, address or phone and nothing else.
func (s *AccountService) UpdateContact(ctx context.Context, accountID string, update billing.ContactUpdate) (billing.Account, error) {
	if accountID == "" {
		return billing.Account{}, billing.Validation("account id is empty")
	}
	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return billing.Account{}, err
	}
	next, err := billing.ApplyContactUpdate(account, update)
	if err != nil {
		return billing.Account{}, err
	}
	next.UpdatedAt = s.clock.Now().UTC()
	if err := s.accounts.UpdateContact(ctx, next); err != nil {
		return billing.Account{}, err
	}
	return next, nil
}

// GetAccount loads one account.
func (s *AccountService) GetAccount(ctx context.Context, accountID string) (billing.Account, error) {
	if accountID == "" {
		return billing.Account{}, billing.Validation("account id is empty")
	}
	return s.accounts.GetAccount(ctx, accountID)
}

// ListConsumption returns the account's records in [from, to), oldest first.
func (s *AccountService) ListConsumption(ctx context.Context, accountID string, from, to time.Time) ([]billing.ConsumptionRecord, error) {
	if accountID == "" {
		return nil, billing.Validation("account id is empty")
	}
	if from.IsZero() || to.IsZero() {
		return nil, billing.Validation("from and to are required")
	}
	if !from.Before(to) {
		return nil, billing.Validation("from must be before to")
	}
	if _, err := s.accounts.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.ledger.ListConsumption(ctx, accountID, from.UTC(), to.UTC())
}
