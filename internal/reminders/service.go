// Package reminders notifies customers ahead of their confirmed test drives.
package reminders

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"testdrive/internal/metrics"
	"testdrive/internal/models"
)

type Store interface {
	// UpcomingReminders returns confirmed, not yet reminded bookings starting in [from, to).
	UpcomingReminders(ctx context.Context, from, to time.Time, loc *time.Location) ([]models.Booking, error)
	MarkReminderSent(ctx context.Context, id string) error
}

type Notifier interface {
	SendReminder(ctx context.Context, b models.Booking) (bool, error)
}

type Config struct {
	// CheckInterval is how often to look for upcoming bookings. Default: 15 minutes.
	CheckInterval time.Duration
	// Lead is how far ahead of the start a reminder goes out. Default: 24 hours.
	Lead     time.Duration
	Location *time.Location
}

type Stats struct {
	Total   int
	Sent    int
	Skipped int
	Failed  int
}

type Service struct {
	config   Config
	store    Store
	notifier Notifier
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewService(cfg Config, store Store, notifier Notifier, logger *zerolog.Logger) *Service {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 15 * time.Minute
	}
	if cfg.Lead <= 0 {
		cfg.Lead = 24 * time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	l := logger.With().Str("component", "reminders").Logger()
	return &Service{config: cfg, store: store, notifier: notifier, logger: &l, now: time.Now}
}

// Start runs a check immediately and then once per interval until ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.config.CheckInterval).Dur("lead", s.config.Lead).Msg("Reminder service started")

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("Reminder check failed")
		}
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Reminder service stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce sends reminders for every booking starting within the lead window.
// Bookings whose owner has no linked chat are marked as reminded so they are
// not picked up again; failed sends are retried on the next run.
func (s *Service) RunOnce(ctx context.Context) (Stats, error) {
	var stats Stats
	now := s.now()

	bookings, err := s.store.UpcomingReminders(ctx, now, now.Add(s.config.Lead), s.config.Location)
	if err != nil {
		return stats, err
	}
	stats.Total = len(bookings)

	for _, b := range bookings {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		sent, err := s.notifier.SendReminder(ctx, b)
		if err != nil {
			stats.Failed++
			metrics.IncReminder("failed")
			s.logger.Warn().Err(err).Str("booking_id", b.ID).Msg("Failed to send reminder")
			continue
		}
		if sent {
			stats.Sent++
			metrics.IncReminder("sent")
		} else {
			stats.Skipped++
		}

		if err := s.store.MarkReminderSent(ctx, b.ID); err != nil {
			s.logger.Error().Err(err).Str("booking_id", b.ID).Msg("Failed to mark reminder as sent")
		}
	}

	if stats.Total > 0 {
		s.logger.Info().Int("total", stats.Total).Int("sent", stats.Sent).Int("skipped", stats.Skipped).
			Int("failed", stats.Failed).Msg("Reminders processed")
	}
	return stats, nil
}
