package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"testdrive/internal/api"
	"testdrive/internal/booking"
	"testdrive/internal/config"
	"testdrive/internal/database"
	"testdrive/internal/events"
	"testdrive/internal/metrics"
	"testdrive/internal/notify"
	"testdrive/internal/ratelimit"
	"testdrive/internal/reminders"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the booking API with notifications, reminders and backups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer be.close()

	if seed, ok := cfg.InitialSchedule(); ok {
		if err := be.store.SeedSchedule(ctx, cfg.Dealership.ID, seed); err != nil {
			return fmt.Errorf("seed working hours: %w", err)
		}
	}

	rdb := newRedisClient(cfg)
	if rdb != nil {
		defer rdb.Close()
	}

	bus := events.NewBus(logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		metrics.Subscribe(bus)
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
	}

	if cfg.Telegram.Enabled {
		bot, err := notify.NewBot(cfg.Telegram.BotToken, cfg.Telegram.Debug)
		if err != nil {
			return err
		}
		notifier := notify.NewNotifier(bot, be.store, logger)
		notifier.Subscribe(bus)
		go notifier.Run(ctx)

		if cfg.Reminders.Enabled {
			loc, _ := cfg.Location()
			svc := reminders.NewService(reminders.Config{
				CheckInterval: cfg.ReminderInterval(),
				Lead:          cfg.ReminderLead(),
				Location:      loc,
			}, be.store, notifier, logger)
			go svc.Start(ctx)
		}
	}

	if be.sqlite != nil && cfg.Backup.Enabled {
		go database.NewBackupService(be.sqlite, cfg.Backup, logger).Start(ctx)
	}

	rules, err := bookingRules(cfg)
	if err != nil {
		return err
	}
	coordinator := booking.NewCoordinator(be.store, be.store, newLocker(cfg, rdb, logger), bus, rules)

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		if rdb != nil {
			limiter = ratelimit.NewRedis(rdb, cfg.RateLimitMax(), cfg.RateLimitPeriod())
		} else {
			limiter = ratelimit.NewLocal(cfg.RateLimitMax(), cfg.RateLimitPeriod())
		}
	}

	srv := api.NewServer(coordinator, be.store, api.Options{
		APIKey:       cfg.HTTP.APIKey,
		Insecure:     cfg.HTTP.Insecure,
		DealershipID: cfg.Dealership.ID,
		Limiter:      limiter,
	}, logger)
	readTimeout, writeTimeout := cfg.HTTPTimeouts()
	httpSrv := srv.NewHTTPServer(cfg.HTTP.Address, readTimeout, writeTimeout)

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8081
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, be, rdb, logger)

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("HTTP shutdown failed")
		}
	}()

	logger.Info().
		Str("address", cfg.HTTP.Address).
		Str("driver", cfg.Database.Driver).
		Bool("redis", rdb != nil).
		Bool("telegram", cfg.Telegram.Enabled).
		Msg("Test drive booking service started")

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info().Msg("Test drive booking service stopped")
	return nil
}

func startHealthServer(ctx context.Context, port int, be *backend, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := be.ping(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
