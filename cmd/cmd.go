package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/tibber-prices/internal/pkg/config"
	"github.com/anicoll/tibber-prices/internal/pkg/coordinator"
	"github.com/anicoll/tibber-prices/internal/pkg/server"
	"github.com/anicoll/tibber-prices/internal/pkg/store"
	"github.com/anicoll/tibber-prices/internal/pkg/tibber"
)

func TibberCommand(ctx *cli.Context) error {
	cfg := &config.Config{
		TibberCfg: &config.TibberConfig{
			Endpoint:    ctx.String("tibber-url"),
			AccessToken: ctx.String("tibber-token"),
			HomeID:      ctx.String("home-id"),
			Timeout:     ctx.Duration("api-timeout"),
		},
		StoreCfg: &config.StoreConfig{
			DatabaseURL: ctx.String("database-url"),
			StateDir:    ctx.String("state-dir"),
			Key:         ctx.String("home-id"),
		},
		ServerCfg: &config.ServerConfig{
			ListenAddr: ctx.String("listen-addr"),
		},
		LogLevel: ctx.String("log-level"),
	}

	return run(ctx.Context, cfg)
}

func run(ctx context.Context, cfg *config.Config) error {
	errorChan := make(chan error, 100)
	var err error

	eg, ctx := errgroup.WithContext(ctx)
	logCfg := zap.NewProductionConfig()

	logCfg.Level, err = zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	logger := zap.Must(logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)))
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	cacheStore, err := newStore(ctx, cfg.StoreCfg)
	if err != nil {
		return err
	}

	client := tibber.New(cfg.TibberCfg)
	coord := coordinator.New(client, cacheStore, cfg.TibberCfg.HomeID)

	// Loads the cache and repairs missed rotations before the first tick.
	if err := coord.Initialize(ctx); err != nil {
		return err
	}
	// Initial refresh only calls the API if the cache actually needs it.
	if err := coord.Refresh(ctx); err != nil {
		return err
	}

	eg.Go(func() error {
		return coord.Run(ctx)
	})

	eg.Go(func() error {
		return midnightCron(ctx, coord, errorChan)
	})

	eg.Go(func() error {
		srv := &http.Server{
			Handler:      server.New(coord).Handler(),
			Addr:         cfg.ServerCfg.ListenAddr,
			WriteTimeout: 15 * time.Second,
			ReadTimeout:  15 * time.Second,
		}
		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		// handle any async errors from the midnight trigger
		for {
			select {
			case err := <-errorChan:
				if errors.Is(err, coordinator.ErrReauthenticationRequired) {
					logger.Error("authentication failed, reconfiguration required", zap.Error(err))
					return err
				}
				logger.Error("async error", zap.Error(err))
			case <-ctx.Done():
				logger.Info("context done")
				return ctx.Err()
			}
		}
	})

	return eg.Wait()
}

func newStore(ctx context.Context, cfg *config.StoreConfig) (coordinator.CacheStore, error) {
	key := cfg.Key
	if key == "" {
		key = "default"
	}

	if cfg.DatabaseURL != "" {
		conn, err := pgx.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store.NewPostgresStore(ctx, conn, key)
	}
	return store.NewFileStore(cfg.StateDir, key)
}

// midnightCron rotates the cache at local midnight; the coordinator
// serializes the rotation against its regular ticks.
func midnightCron(ctx context.Context, coord *coordinator.Coordinator, errChan chan error) error {
	c := cron.New()
	if _, err := c.AddFunc("0 0 * * *", func() {
		if err := coord.HandleMidnightTransition(ctx); err != nil {
			zap.L().Error("midnight transition failed", zap.Error(err))
			errChan <- err
			return
		}
		zap.L().Info("midnight price rotation completed")
	}); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	c.Run()
	return ctx.Err()
}
