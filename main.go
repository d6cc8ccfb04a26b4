package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"prepaid-billing/internal/billing/application"
	billing "prepaid-billing/internal/billing/domain"
	"prepaid-billing/internal/billing/infrastructure/memory"
	billingpostgres "prepaid-billing/internal/billing/infrastructure/postgres"
	"prepaid-billing/internal/billing/infrastructure/settlement"
	"prepaid-billing/internal/billing/infrastructure/usage"
	billinghttp "prepaid-billing/internal/billing/interfaces/http"
	"prepaid-billing/internal/logging"
	"prepaid-billing/internal/notify"
	"prepaid-billing/internal/observability/metrics"
)

type stores interface {
	application.AccountStore
	application.ConsumptionStore
	application.TariffStore
	application.InvoiceStore
	application.JobRunStore
}

func main() {
	cfg, err := application.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	var store stores
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("db open error", zap.Error(err))
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("db ping error", zap.Error(err))
		}
		pg, err := billingpostgres.NewStore(db)
		if err != nil {
			logger.Fatal("postgres store error", zap.Error(err))
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal("schema error", zap.Error(err))
		}
		store = pg
	} else {
		logger.Warn("no database configured, using in-memory store")
		store = memory.NewStore()
	}

	metrics.Init(db, logger)

	usageSource, err := buildUsageSource(cfg.Usage, db)
	if err != nil {
		logger.Fatal("usage source error", zap.Error(err))
	}
	sink, closeSink, err := buildNotifier(cfg.Notify, logger)
	if err != nil {
		logger.Fatal("notifier error", zap.Error(err))
	}
	defer closeSink()

	policy := application.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.Batch.MaxAttempts
	policy.BaseDelay = cfg.Batch.BaseDelay
	policy.Multiplier = cfg.Batch.Multiplier

	daily, err := application.NewDailyBillingService(store, store, store, store, usageSource,
		application.WithNotificationSink(sink),
		application.WithLogger(logger),
		application.WithRetryPolicy(policy),
		application.WithChunkSize(cfg.Batch.ChunkSize),
		application.WithDefaultPlan(cfg.DefaultPlanID),
	)
	if err != nil {
		logger.Fatal("daily billing service error", zap.Error(err))
	}
	invoices, err := application.NewInvoiceService(store, store, application.SystemClock{}, logger)
	if err != nil {
		logger.Fatal("invoice service error", zap.Error(err))
	}
	var client application.SettlementClient = unconfiguredSettlement{}
	if cfg.Settlement.URL != "" {
		client, err = settlement.NewClient(cfg.Settlement.URL, cfg.Settlement.Token, cfg.Settlement.Timeout)
		if err != nil {
			logger.Fatal("settlement client error", zap.Error(err))
		}
	} else {
		logger.Warn("SETTLEMENT_URL not set, invoice sync will mark invoices FAILED")
	}
	syncer, err := application.NewSettlementSyncService(store, client, application.SystemClock{}, logger)
	if err != nil {
		logger.Fatal("settlement sync service error", zap.Error(err))
	}
	accounts, err := application.NewAccountService(store, store, sink, application.SystemClock{}, logger)
	if err != nil {
		logger.Fatal("account service error", zap.Error(err))
	}

	handler, err := billinghttp.NewHandler(billinghttp.Services{
		Daily:    daily,
		Invoices: invoices,
		Syncer:   syncer,
		Accounts: accounts,
		Currency: cfg.Currency,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("billing handler error", zap.Error(err))
	}

	scheduler := application.NewScheduler(daily, invoices, syncer, store, cfg.Schedule, logger)
	go scheduler.Start(ctx)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("db unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", zap.Error(err))
		}
	}()

	logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildUsageSource(cfg application.UsageConfig, db *sql.DB) (application.UsageSource, error) {
	switch cfg.Source {
	case application.UsagePostgres:
		if db == nil {
			return nil, errors.New("postgres usage source needs a database")
		}
		source, err := usage.NewPostgres(db)
		if err != nil {
			return nil, err
		}
		return source, nil
	default:
		return usage.NewSimulated(cfg.Seed), nil
	}
}

func buildNotifier(cfg application.NotifyConfig, logger *zap.Logger) (application.NotificationSink, func(), error) {
	notifiers := []notify.Notifier{notify.NewLoggingNotifier(logger)}
	closeFn := func() {}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.WebhookURL))
	}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaNotifier, err := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, closeFn, err
		}
		notifiers = append(notifiers, kafkaNotifier)
		closeFn = func() {
			if err := kafkaNotifier.Close(); err != nil {
				logger.Warn("kafka notifier close error", zap.Error(err))
			}
		}
	}
	return notify.NewMultiNotifier(notifiers...), closeFn, nil
}

func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// ---- Adapters ----

type unconfiguredSettlement struct{}

func (unconfiguredSettlement) SubmitInvoice(context.Context, billing.Invoice) error {
	return billing.Fatal("settlement endpoint not configured", nil)
}
