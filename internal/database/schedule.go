package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"testdrive/internal/schedule"
)

// LoadSchedule returns the weekly hours of a dealership. A dealership without
// rows gets the default schedule persisted on first load.
func (db *DB) LoadSchedule(ctx context.Context, dealershipID string) (schedule.WeeklySchedule, error) {
	hours, err := db.scheduleRows(ctx, dealershipID)
	if err != nil {
		return schedule.WeeklySchedule{}, err
	}
	if len(hours) == len(schedule.AllWeekdays) {
		return schedule.NewWeeklySchedule(hours)
	}

	if err := db.SeedSchedule(ctx, dealershipID, schedule.DefaultWeeklySchedule()); err != nil {
		return schedule.WeeklySchedule{}, err
	}
	if hours, err = db.scheduleRows(ctx, dealershipID); err != nil {
		return schedule.WeeklySchedule{}, err
	}
	return schedule.NewWeeklySchedule(hours)
}

func (db *DB) scheduleRows(ctx context.Context, dealershipID string) ([]schedule.DayHours, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT day_of_week, is_open, open_time, close_time
		FROM working_hours
		WHERE dealership_id = ?
		ORDER BY day_of_week`, dealershipID)
	if err != nil {
		return nil, fmt.Errorf("query working hours: %w", err)
	}
	defer rows.Close()

	var hours []schedule.DayHours
	for rows.Next() {
		var h schedule.DayHours
		if err := rows.Scan(&h.Day, &h.IsOpen, &h.Open, &h.Close); err != nil {
			return nil, fmt.Errorf("scan working hours: %w", err)
		}
		hours = append(hours, h)
	}
	return hours, rows.Err()
}

// SeedSchedule fills in whichever days of the dealership have no row yet from
// seed. Days already stored are left alone.
func (db *DB) SeedSchedule(ctx context.Context, dealershipID string, seed schedule.WeeklySchedule) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		for _, h := range seed.Hours() {
			_, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO working_hours (dealership_id, day_of_week, is_open, open_time, close_time, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				dealershipID, int(h.Day), h.IsOpen, h.Open, h.Close, now)
			if err != nil {
				return fmt.Errorf("seed hours for %s: %w", h.Day, err)
			}
		}
		return nil
	})
	if err == nil {
		db.logger.Info().Str("dealership_id", dealershipID).Msg("Working hours seeded")
	}
	return err
}

// ReplaceSchedule swaps all seven days in one transaction.
func (db *DB) ReplaceSchedule(ctx context.Context, dealershipID string, s schedule.WeeklySchedule) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM working_hours WHERE dealership_id = ?`, dealershipID); err != nil {
			return fmt.Errorf("delete working hours: %w", err)
		}
		now := time.Now()
		for _, h := range s.Hours() {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO working_hours (dealership_id, day_of_week, is_open, open_time, close_time, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				dealershipID, int(h.Day), h.IsOpen, h.Open, h.Close, now)
			if err != nil {
				return fmt.Errorf("insert working hours for %s: %w", h.Day, err)
			}
		}
		return nil
	})
}

var _ schedule.Store = (*DB)(nil)
