package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "billing_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	dailyJobTotal   *prometheus.CounterVec
	dailyJobLatency *prometheus.HistogramVec
	accountsTotal   *prometheus.CounterVec

	invoicesGenerated prometheus.Counter
	invoiceSyncTotal  *prometheus.CounterVec

	retryAttempts *prometheus.CounterVec

	htBillTotal *prometheus.CounterVec

	alertsTotal *prometheus.CounterVec

	rechargeTotal *prometheus.CounterVec
)

// Init registers billing metrics and DB-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		dailyJobTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "daily_job_total",
				Help: "Total daily billing runs by status",
			},
			[]string{"status"},
		)
		dailyJobLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "daily_job_latency_seconds",
				Help:    "Daily billing run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		)
		accountsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "accounts_total",
				Help: "Accounts handled by daily billing by result",
			},
			[]string{"result"},
		)

		invoicesGenerated = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoices_generated_total",
				Help: "Total monthly invoices created",
			},
		)
		invoiceSyncTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invoice_sync_total",
				Help: "Invoice settlement submissions by result",
			},
			[]string{"result"},
		)

		retryAttempts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "retry_attempts_total",
				Help: "Store retry attempts by operation and outcome",
			},
			[]string{"operation", "outcome"},
		)

		htBillTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ht_bill_total",
				Help: "HT bill calculations by result",
			},
			[]string{"result"},
		)

		alertsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_total",
				Help: "Account alerts emitted by type",
			},
			[]string{"type"},
		)

		rechargeTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "recharge_total",
				Help: "Recharge requests by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			dailyJobTotal,
			dailyJobLatency,
			accountsTotal,
			invoicesGenerated,
			invoiceSyncTotal,
			retryAttempts,
			htBillTotal,
			alertsTotal,
			rechargeTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveDailyJob records a daily billing run.
func ObserveDailyJob(status string, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	if dailyJobTotal != nil {
		dailyJobTotal.WithLabelValues(status).Inc()
	}
	if dailyJobLatency != nil {
		dailyJobLatency.WithLabelValues(status).Observe(duration.Seconds())
	}
}

// AddAccounts increments the per-account result counter by count.
func AddAccounts(result string, count int) {
	if count <= 0 {
		return
	}
	if accountsTotal != nil {
		accountsTotal.WithLabelValues(result).Add(float64(count))
	}
}

// AddInvoicesGenerated increments the generated invoice counter.
func AddInvoicesGenerated(count int) {
	if count <= 0 {
		return
	}
	if invoicesGenerated != nil {
		invoicesGenerated.Add(float64(count))
	}
}

// IncInvoiceSync increments invoice sync results.
func IncInvoiceSync(result string) {
	if result == "" {
		result = resultSuccess
	}
	if invoiceSyncTotal != nil {
		invoiceSyncTotal.WithLabelValues(result).Inc()
	}
}

// IncRetryAttempt counts one retry outcome.
func IncRetryAttempt(operation, outcome string) {
	if operation == "" {
		operation = "unknown"
	}
	if retryAttempts != nil {
		retryAttempts.WithLabelValues(operation, outcome).Inc()
	}
}

// IncHTBill counts one HT bill calculation.
func IncHTBill(result string) {
	if result == "" {
		result = resultSuccess
	}
	if htBillTotal != nil {
		htBillTotal.WithLabelValues(result).Inc()
	}
}

// IncAlert counts one emitted alert.
func IncAlert(alertType string) {
	if alertType == "" {
		alertType = "unknown"
	}
	if alertsTotal != nil {
		alertsTotal.WithLabelValues(alertType).Inc()
	}
}

// IncRecharge counts one recharge request.
func IncRecharge(result string) {
	if result == "" {
		result = resultSuccess
	}
	if rechargeTotal != nil {
		rechargeTotal.WithLabelValues(result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	AccountsProcessed = "processed"
	AccountsFailed    = "failed"
	AccountsSkipped   = "skipped"
)
