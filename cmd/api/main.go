package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"triage-platform/internal/audit"
	"triage-platform/internal/auth"
	"triage-platform/internal/config"
	"triage-platform/internal/dispatch"
	"triage-platform/internal/httpapi"
	"triage-platform/internal/presence"
	"triage-platform/internal/queue"
	"triage-platform/internal/reports"
	"triage-platform/internal/tracing"
	"triage-platform/pkg/logger"
	"triage-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if err := run(rootCtx, cfg, log); err != nil {
		log.Error("dispatcher exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.App.Tracing {
		shutdownTracer, err := tracing.InitTracer(cfg.App.ServiceName, cfg.App.Env, os.Stdout)
		if err != nil {
			return fmt.Errorf("tracing init: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracer(flushCtx)
		}()
	}

	if err := httpapi.RegisterValidators(); err != nil {
		return err
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth init: %w", err)
	}

	var db *sql.DB
	if cfg.NeedsPostgres() {
		db, err = utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return fmt.Errorf("postgres init: %w", err)
		}
		defer db.Close()
		if err := utils.ApplySchema(ctx, db, reports.Schema, audit.Schema); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	var revocations auth.RevocationList = auth.NewMemoryRevocationList()
	if cfg.RedisEnabled() {
		var rdb *redis.Client
		rdb, err = utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			return fmt.Errorf("redis init: %w", err)
		}
		defer rdb.Close()
		revocations = auth.NewRedisRevocationList(rdb)
	}

	var reportRepo reports.Repository = reports.NewMemoryRepo()
	if cfg.Storage.ReportStore == "postgres" {
		var fields *reports.FieldCipher
		key, err := cfg.ReportKeyBytes()
		if err != nil {
			return err
		}
		if key != nil {
			if fields, err = reports.NewFieldCipher(key); err != nil {
				return err
			}
		} else {
			log.Warn("report fields stored unencrypted", "hint", "set REPORT_ENCRYPTION_KEY")
		}
		reportRepo = reports.NewPostgresRepo(db, fields)
	}
	reportSvc := reports.NewService(reportRepo)

	auditRepo, closeAudit := openAuditSink(cfg, db)
	defer func() {
		if err := closeAudit.Close(); err != nil {
			log.Warn("audit sink close failed", "err", err)
		}
	}()

	d := dispatch.New(
		queue.NewStore(),
		presence.NewTracker(cfg.Dispatch.PresenceStaleAfter),
		reportSvc,
		dispatch.Options{Audit: audit.NewService(auditRepo), Logger: log},
	)
	sweeper, err := dispatch.NewSweeper(d, cfg.Dispatch.ReclaimInterval, cfg.Dispatch.ClaimTimeout, log)
	if err != nil {
		return err
	}

	h := httpapi.Handlers{Dispatcher: d, Reports: reportSvc, Revocations: revocations}
	r := newRouter(h, auth.RequireAccessToken(authManager, revocations), logger.Middleware(log))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env,
			"report_store", cfg.Storage.ReportStore, "audit_sink", cfg.Storage.AuditSink)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return sweeper.Start(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", "err", err)
		}
		return nil
	})
	return g.Wait()
}

// openAuditSink picks the audit repository. The closer is a no-op unless the
// sink holds a connection of its own.
func openAuditSink(cfg config.Config, db *sql.DB) (audit.Repository, io.Closer) {
	switch cfg.Storage.AuditSink {
	case "postgres":
		return audit.NewPostgresRepo(db), nopCloser{}
	case "kafka":
		s := audit.NewStreamRepo(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		return s, s
	default:
		return audit.NewMemoryRepo(), nopCloser{}
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
