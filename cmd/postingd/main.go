package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/accounting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/app"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/dispatch"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/inventory"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/observability"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/platform/cache"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/posting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
	"github.com/peterpeto56u-code/MarcoERP-sub007/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("postingd", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	backend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	metrics := observability.NewMetrics()
	clock := shared.SystemClock
	registry := posting.NewRegistry(backend.UnitOfWork, backend.Audit, logger,
		posting.WithIsolation(cfg.Isolation()),
		posting.WithAccountCodes(cfg.AccountCodes()),
		posting.WithStockConfig(inventory.EngineConfig{AllowNegativeStock: cfg.AllowNegativeStock}),
		posting.WithMetrics(metrics),
		posting.WithClock(clock),
	)
	ledger := accounting.NewService(backend.Accounting, backend.Audit, clock, logger)
	stock := inventory.NewService(backend.Inventory)

	var publisher posting.Publisher = dispatch.NewLogPublisher(logger)
	var jobHandler *jobs.Handler
	if cfg.RedisAddr != "" {
		redisClient, err := cache.New(ctx, cfg.RedisOptions())
		if err != nil {
			return err
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		publisher = dispatch.NewRedisPublisher(redisClient, cfg.EventsChannel)

		inspector := asynq.NewInspector(cfg.AsynqRedis())
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	} else {
		jobHandler = jobs.NewHandler(nil, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		PostingHandler: posting.NewHandler(logger, registry, ledger, stock, publisher),
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
