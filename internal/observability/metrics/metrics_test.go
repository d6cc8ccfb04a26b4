package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHelpersCount(t *testing.T) {
	Init(nil, nil)
	Init(nil, nil)

	before := testutil.ToFloat64(accountsTotal.WithLabelValues(AccountsSkipped))
	AddAccounts(AccountsSkipped, 3)
	AddAccounts(AccountsSkipped, 0)
	if got := testutil.ToFloat64(accountsTotal.WithLabelValues(AccountsSkipped)) - before; got != 3 {
		t.Fatalf("expected +3 skipped, got %v", got)
	}

	before = testutil.ToFloat64(retryAttempts.WithLabelValues("unknown", "retry"))
	IncRetryAttempt("", "retry")
	if got := testutil.ToFloat64(retryAttempts.WithLabelValues("unknown", "retry")) - before; got != 1 {
		t.Fatalf("expected +1 retry, got %v", got)
	}

	before = testutil.ToFloat64(dailyJobTotal.WithLabelValues("unknown"))
	ObserveDailyJob("", time.Second)
	if got := testutil.ToFloat64(dailyJobTotal.WithLabelValues("unknown")) - before; got != 1 {
		t.Fatalf("expected +1 job, got %v", got)
	}
}
