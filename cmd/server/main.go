package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	ledgerapp "github.com/erp/customer-ledger/internal/application/ledger"
	"github.com/erp/customer-ledger/internal/domain/ledger"
	"github.com/erp/customer-ledger/internal/infrastructure/config"
	"github.com/erp/customer-ledger/internal/infrastructure/logger"
	"github.com/erp/customer-ledger/internal/infrastructure/migration"
	"github.com/erp/customer-ledger/internal/infrastructure/persistence"
	"github.com/erp/customer-ledger/internal/infrastructure/telemetry"
	"github.com/erp/customer-ledger/internal/interfaces/http/handler"
	"github.com/erp/customer-ledger/internal/interfaces/http/middleware"
	"github.com/erp/customer-ledger/internal/interfaces/http/router"
	"github.com/erp/customer-ledger/migrations"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const meterName = "customer-ledger"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		TimeFormat:  "2006-01-02T15:04:05.000Z07:00",
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting customer ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", cfg.App.Version),
		zap.String("port", cfg.App.Port),
	)

	if err := run(cfg, log); err != nil {
		log.Fatal("Server exited with error", zap.Error(err))
	}
	log.Info("Server exited")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log, telemetry.WithSpanProfiles(cfg.Telemetry.ProfilingEnabled))
	if err != nil {
		return err
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilingServerAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
		ProfileTypes:    cfg.Telemetry.ProfilingTypes,
	}, log)
	if err != nil {
		return err
	}
	defer func() { _ = profiler.Stop() }()

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return err
	}
	defer func() { _ = mp.Shutdown(context.Background()) }()
	meter := mp.Meter(meterName)

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return err
	}
	// deferred last so it shuts down before the tracer and meter
	defer func() { _ = lp.Shutdown(context.Background()) }()
	log = lp.Bridge(log, logger.ParseLevel(cfg.Log.Level))

	db, err := persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	log.Info("Database connected",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.DBName),
	)

	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:            cfg.Telemetry.Enabled,
		IncludeVariables:   !cfg.IsProduction(),
		SlowQueryThreshold: cfg.Database.SlowThreshold,
		DBSystem:           "postgresql",
		TracerProvider:     tp.Provider(),
	}, log); err != nil {
		return err
	}
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meter, telemetry.DBMetricsConfig{
		Enabled:            cfg.Telemetry.MetricsEnabled,
		SlowQueryThreshold: cfg.Database.SlowThreshold,
	}, log)
	if err != nil {
		return err
	}
	defer func() { _ = dbMetrics.Stop() }()

	if cfg.Database.AutoMigrate {
		if err := migrate(db, log); err != nil {
			return err
		}
	}

	var ledgerMetrics *telemetry.LedgerMetrics
	if cfg.Telemetry.MetricsEnabled {
		ledgerMetrics, err = telemetry.NewLedgerMetrics(telemetry.LedgerMetricsConfig{Meter: meter, Logger: log})
		if err != nil {
			return err
		}
	}

	projector, err := ledgerapp.NewStatementProjector(cfg.Ledger.StatementLocale)
	if err != nil {
		return err
	}

	bills := persistence.NewGormBillRepository(db.DB)
	payments := persistence.NewGormPaymentRepository(db.DB)
	returns := persistence.NewGormReturnRepository(db.DB)

	ledgerService := ledgerapp.NewLedgerService(bills, payments, returns,
		ledgerapp.WithEngine(ledger.NewEngine(ledger.WithDueSoonWindow(cfg.Ledger.DueSoonWindow))),
		ledgerapp.WithMetrics(ledgerMetrics),
		ledgerapp.WithFetchTimeout(cfg.Ledger.FetchTimeout),
		ledgerapp.WithStatementProjector(projector),
	)
	paymentService := ledgerapp.NewPaymentService(
		persistence.NewGormTransactionScope(db.DB),
		ledgerService,
		ledgerapp.WithPaymentMetrics(ledgerMetrics),
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine, err := router.NewEngine(router.EngineConfig{
		Logger: log,
		CORS: middleware.CORSConfig{
			AllowOrigins: cfg.HTTP.CORSAllowOrigins,
			AllowMethods: cfg.HTTP.CORSAllowMethods,
			AllowHeaders: cfg.HTTP.CORSAllowHeaders,
			ExposeHeaders: []string{
				middleware.RequestIDHeader,
				"Content-Disposition",
			},
		},
		Tracing: middleware.TracingConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			Enabled:        cfg.Telemetry.Enabled,
			SkipPaths:      []string{"/health", "/ready"},
			TracerProvider: tp.Provider(),
		},
		Metrics: middleware.HTTPMetricsConfig{
			Meter:   meter,
			Enabled: cfg.Telemetry.MetricsEnabled,
		},
		Profiling: middleware.ProfilingConfig{
			Enabled:   cfg.Telemetry.ProfilingEnabled,
			SkipPaths: []string{"/health", "/ready"},
		},
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	}, router.Handlers{
		Ledger:  handler.NewLedgerHandler(ledgerService),
		Payment: handler.NewPaymentHandler(paymentService),
		System:  handler.NewSystemHandler(cfg.App.Name, cfg.App.Version, db),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func migrate(db *persistence.Database, log *zap.Logger) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	m, err := migration.NewFromFS(sqlDB, migrations.FS, log)
	if err != nil {
		return err
	}
	// not closed: Close would also close the pool shared with gorm
	return m.Up()
}
