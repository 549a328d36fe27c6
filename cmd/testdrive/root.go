package main

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"testdrive/internal/access"
	"testdrive/internal/booking"
	"testdrive/internal/config"
	"testdrive/internal/database"
	"testdrive/internal/database/postgres"
	"testdrive/internal/lock"
	"testdrive/internal/notify"
	"testdrive/internal/reminders"
	"testdrive/internal/schedule"
)

// lockWait bounds how long a booking attempt waits for a contended resource-day.
const lockWait = 3 * time.Second

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "testdrive",
		Short:         "Test drive booking service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $CONFIG_PATH or configs/config.yaml)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSlotsCmd())
	root.AddCommand(newAdminCmd())
	root.AddCommand(newExportCmd())
	return root
}

// dataStore is what both storage drivers provide.
type dataStore interface {
	booking.Ledger
	schedule.Store
	access.RoleStore
	notify.Directory
	reminders.Store
	SeedSchedule(ctx context.Context, dealershipID string, seed schedule.WeeklySchedule) error
	LinkTelegram(ctx context.Context, id string, chatID int64) error
}

type backend struct {
	store dataStore
	// sqlite is set for the SQLite driver only; backups apply to it alone.
	sqlite *database.DB
	ping   func(context.Context) error
	close  func()
}

func openBackend(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*backend, error) {
	if cfg.Database.Driver == "postgres" {
		pg, err := postgres.Open(ctx, cfg.Database.URL, logger)
		if err != nil {
			return nil, err
		}
		return &backend{store: pg, ping: pg.Ping, close: pg.Close}, nil
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return nil, err
	}
	return &backend{
		store:  db,
		sqlite: db,
		ping:   db.PingContext,
		close:  func() { _ = db.Close() },
	}, nil
}

// setup loads config and builds the logger every command starts with.
func setup() (*config.Config, *zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Logging.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	logger = logger.Level(level).With().Timestamp().Logger()
	return cfg, &logger, nil
}

func newRedisClient(cfg *config.Config) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func bookingRules(cfg *config.Config) (booking.Rules, error) {
	loc, err := cfg.Location()
	if err != nil {
		return booking.Rules{}, err
	}
	return booking.Rules{
		SlotMinutes:      cfg.Booking.SlotMinutes,
		MinAdvance:       cfg.BookingMinAdvance(),
		MaxAdvance:       cfg.BookingMaxAdvance(),
		MaxActivePerUser: cfg.Booking.MaxActivePerUser,
		Location:         loc,
	}, nil
}

// newLocker serializes bookings across instances through Redis when it is
// configured, falling back to an in-process lock while Redis is down.
func newLocker(cfg *config.Config, rdb *redis.Client, logger *zerolog.Logger) booking.Locker {
	local := lock.NewLocal()
	if rdb == nil {
		return local
	}
	return lock.NewFailover(lock.NewRedis(rdb, cfg.LockTTL(), lockWait), local, logger)
}
