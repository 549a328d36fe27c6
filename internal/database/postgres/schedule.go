package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"testdrive/internal/schedule"
)

// LoadSchedule returns the weekly hours of a dealership, persisting the
// default schedule for days that have no row yet.
func (s *Store) LoadSchedule(ctx context.Context, dealershipID string) (schedule.WeeklySchedule, error) {
	hours, err := s.scheduleRows(ctx, dealershipID)
	if err != nil {
		return schedule.WeeklySchedule{}, err
	}
	if len(hours) == len(schedule.AllWeekdays) {
		return schedule.NewWeeklySchedule(hours)
	}

	if err := s.SeedSchedule(ctx, dealershipID, schedule.DefaultWeeklySchedule()); err != nil {
		return schedule.WeeklySchedule{}, err
	}

	if hours, err = s.scheduleRows(ctx, dealershipID); err != nil {
		return schedule.WeeklySchedule{}, err
	}
	return schedule.NewWeeklySchedule(hours)
}

// SeedSchedule inserts the days of seed the dealership has no row for.
func (s *Store) SeedSchedule(ctx context.Context, dealershipID string, seed schedule.WeeklySchedule) error {
	batch := &pgx.Batch{}
	for _, h := range seed.Hours() {
		batch.Queue(`
			INSERT INTO working_hours (dealership_id, day_of_week, is_open, open_time, close_time)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (dealership_id, day_of_week) DO NOTHING`,
			dealershipID, int16(h.Day), h.IsOpen, h.Open.String(), h.Close.String())
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("seed working hours: %w", err)
	}
	s.logger.Info().Str("dealership_id", dealershipID).Msg("Working hours seeded")
	return nil
}

func (s *Store) scheduleRows(ctx context.Context, dealershipID string) ([]schedule.DayHours, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT day_of_week, is_open, open_time, close_time
		FROM working_hours
		WHERE dealership_id = $1
		ORDER BY day_of_week`, dealershipID)
	if err != nil {
		return nil, fmt.Errorf("query working hours: %w", err)
	}
	defer rows.Close()

	var hours []schedule.DayHours
	for rows.Next() {
		var (
			day           int16
			open, closing string
			h             schedule.DayHours
		)
		if err := rows.Scan(&day, &h.IsOpen, &open, &closing); err != nil {
			return nil, fmt.Errorf("scan working hours: %w", err)
		}
		h.Day = schedule.Weekday(day)
		if h.Open, err = schedule.ParseClock(open); err != nil {
			return nil, err
		}
		if h.Close, err = schedule.ParseClock(closing); err != nil {
			return nil, err
		}
		hours = append(hours, h)
	}
	return hours, rows.Err()
}

// ReplaceSchedule swaps all seven days in one transaction.
func (s *Store) ReplaceSchedule(ctx context.Context, dealershipID string, ws schedule.WeeklySchedule) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM working_hours WHERE dealership_id = $1`, dealershipID); err != nil {
			return fmt.Errorf("delete working hours: %w", err)
		}
		for _, h := range ws.Hours() {
			_, err := tx.Exec(ctx, `
				INSERT INTO working_hours (dealership_id, day_of_week, is_open, open_time, close_time)
				VALUES ($1, $2, $3, $4, $5)`,
				dealershipID, int16(h.Day), h.IsOpen, h.Open.String(), h.Close.String())
			if err != nil {
				return fmt.Errorf("insert working hours for %s: %w", h.Day, err)
			}
		}
		return nil
	})
}

var _ schedule.Store = (*Store)(nil)
