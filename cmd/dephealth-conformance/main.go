// Command dephealth-conformance drives the scenarios described in the
// library's testable-properties section against in-process fixtures (and,
// when DEPHEALTH_HARNESS_POSTGRES_DSN is set, a real scratch Postgres
// schema), and serves the resulting status over HTTP the way a host
// application would.
package main

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/cmd/dephealth-conformance/fixtures"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/internal/obslog"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/internal/telemetry"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/statusapi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/amqpcheck"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/grpccheck"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/kafkacheck"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/ldapcheck"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/mysqlcheck"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/redischeck"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/tcpcheck"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

func main() {
	scenario := flag.String("scenario", "s1", "conformance scenario to drive: s1 (all healthy), s2 (connection refused), s3 (http 503 then 401)")
	flag.Parse()

	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "dephealth-conformance: loading config: %v\n", err)
		os.Exit(1)
	}

	logger := obslog.New(obslog.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	})
	slog.SetDefault(logger)

	runID := uuid.NewString()
	logger.Info("dephealth-conformance starting", "run_id", runID, "scenario", *scenario)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		logger.Warn("telemetry init failed, continuing without tracing", "error", err)
		tp = nil
	}

	if cfg.Postgres.DSN != "" {
		if err := migratePostgres(cfg.Postgres.DSN); err != nil {
			logger.Warn("postgres migration failed, continuing without it", "error", err)
		}
	}

	reg := prometheus.NewRegistry()

	dh, cleanup, err := buildScenario(*scenario, reg, logger, tp)
	if err != nil {
		logger.Error("failed to build scenario", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := dh.Start(ctx); err != nil {
		logger.Error("failed to start dephealth", "error", err)
		os.Exit(1)
	}
	defer dh.Stop()

	r := chi.NewRouter()
	statusapi.Mount(r, dh)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTP.Port), Handler: r}
	go func() {
		logger.Info("serving conformance status", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx) //nolint:errcheck

	if tp != nil {
		tp.Shutdown(shutdownCtx) //nolint:errcheck
	}

	details := dh.HealthDetails()
	out, _ := json.MarshalIndent(details, "", "  ")
	fmt.Println(string(out))
}

// buildScenario constructs a DepHealth and its fixtures for the named
// scenario; cleanup closes every fixture the scenario started.
func buildScenario(name string, reg prometheus.Registerer, logger *slog.Logger, tp *telemetry.Provider) (*dephealth.DepHealth, func(), error) {
	var opts []dephealth.Option
	opts = append(opts, dephealth.WithLogger(logger), dephealth.WithRegisterer(reg))
	if tp != nil {
		opts = append(opts, dephealth.WithTracerProvider(tp.TracerProvider()))
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch name {
	case "s1":
		httpFix, err := fixtures.NewHTTPFixture()
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { httpFix.Close() })
		hHost, hPort := httpFix.Addr()

		grpcFix, err := fixtures.NewGRPCFixture()
		if err != nil {
			cleanup()
			return nil, cleanup, err
		}
		closers = append(closers, grpcFix.Close)
		gHost, gPort := grpcFix.Addr()

		tcpFix, err := fixtures.NewTCPFixture()
		if err != nil {
			cleanup()
			return nil, cleanup, err
		}
		closers = append(closers, func() { tcpFix.Close() })
		tHost, tPort := tcpFix.Addr()

		opts = append(opts,
			dephealth.HTTP("api", dephealth.WithEndpoint(hHost, hPort), dephealth.CheckInterval(time.Second)),
			dephealth.GRPC("ledger", dephealth.WithEndpoint(gHost, gPort), dephealth.WithGRPCInsecure(true), dephealth.CheckInterval(time.Second)),
			dephealth.TCP("sidecar", dephealth.WithEndpoint(tHost, tPort), dephealth.CheckInterval(time.Second)),
		)

	case "s2":
		host, port := fixtures.UnreachableAddr()
		opts = append(opts,
			dephealth.TCP("svc", dephealth.WithEndpoint(host, port),
				dephealth.CheckInterval(time.Second), dephealth.FailureThreshold(1)),
		)

	case "s3":
		httpFix, err := fixtures.NewHTTPFixture()
		if err != nil {
			return nil, cleanup, err
		}
		httpFix.SetStatus(http.StatusServiceUnavailable)
		closers = append(closers, func() { httpFix.Close() })
		host, port := httpFix.Addr()

		go func() {
			time.Sleep(3 * time.Second)
			httpFix.SetStatus(http.StatusUnauthorized)
		}()

		opts = append(opts,
			dephealth.HTTP("api", dephealth.WithEndpoint(host, port),
				dephealth.CheckInterval(time.Second), dephealth.FailureThreshold(1)),
		)

	default:
		return nil, cleanup, fmt.Errorf("unknown scenario %q", name)
	}

	dh, err := dephealth.New("conformance", "harness", opts...)
	if err != nil {
		cleanup()
		return nil, cleanup, err
	}
	return dh, cleanup, nil
}

func migratePostgres(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("opening postgres: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}
