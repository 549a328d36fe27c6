package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"testdrive/internal/booking"
	"testdrive/internal/models"
	"testdrive/internal/schedule"
)

const bookingColumns = `id, resource_id, user_id, booking_date, start_time, end_time,
	status, notes, reminder_sent, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b    models.Booking
		date string
	)
	err := row.Scan(&b.ID, &b.ResourceID, &b.UserID, &date, &b.StartTime, &b.EndTime,
		&b.Status, &b.Notes, &b.ReminderSent, &b.Version, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if b.Date, err = schedule.ParseDate(date); err != nil {
		return nil, err
	}
	return &b, nil
}

func scanBookings(rows *sql.Rows) ([]models.Booking, error) {
	defer rows.Close()

	var out []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func conflictsWith(ctx context.Context, q queryer, resourceID string, date time.Time, start, end schedule.Clock) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE resource_id = ? AND booking_date = ?
		  AND start_time < ? AND end_time > ?
		  AND status IN ('PENDING', 'CONFIRMED')`,
		resourceID, date.Format(schedule.DateLayout), end, start,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check conflicts: %w", err)
	}
	return n > 0, nil
}

// ConflictsWith reports whether an active booking overlaps [start, end).
func (db *DB) ConflictsWith(ctx context.Context, resourceID string, date time.Time, start, end schedule.Clock) (bool, error) {
	return conflictsWith(ctx, db, resourceID, date, start, end)
}

// ExistingBookings returns the active bookings of a resource on a date.
func (db *DB) ExistingBookings(ctx context.Context, resourceID string, date time.Time) ([]models.Booking, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE resource_id = ? AND booking_date = ?
		  AND status IN ('PENDING', 'CONFIRMED')
		ORDER BY start_time ASC`,
		resourceID, date.Format(schedule.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("query existing bookings: %w", err)
	}
	return scanBookings(rows)
}

// InsertIfFree checks for overlap and inserts inside one IMMEDIATE transaction.
func (db *DB) InsertIfFree(ctx context.Context, b *models.Booking) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		taken, err := conflictsWith(ctx, tx, b.ResourceID, b.Date, b.StartTime, b.EndTime)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: %s %s %s-%s", booking.ErrSlotConflict, b.ResourceID, b.DateString(), b.StartTime, b.EndTime)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO bookings (`+bookingColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, b.ResourceID, b.UserID, b.DateString(), b.StartTime, b.EndTime,
			b.Status, b.Notes, b.ReminderSent, b.Version, b.CreatedAt, b.UpdatedAt)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s %s %s", booking.ErrSlotConflict, b.ResourceID, b.DateString(), b.StartTime)
		}
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		return nil
	})
	if err != nil && !errors.Is(err, booking.ErrSlotConflict) {
		db.logger.Error().Err(err).Str("resource_id", b.ResourceID).Str("date", b.DateString()).Msg("Failed to insert booking")
	}
	return err
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, err := scanBooking(db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", booking.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// UpdateStatus is a compare-and-set on the current status.
func (db *DB) UpdateStatus(ctx context.Context, id string, from, to models.Status) (*models.Booking, error) {
	var updated *models.Booking
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE bookings
			SET status = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND status = ?`,
			to, time.Now(), id, from)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
		current, err := scanBooking(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", booking.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("reload booking: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: booking %s is %s, expected %s", booking.ErrConcurrentModification, id, current.Status, from)
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListBookings filters and orders bookings by date descending, then start time.
func (db *DB) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.ResourceID != "" {
		where = append(where, "resource_id = ?")
		args = append(args, filter.ResourceID)
	}
	if !filter.DateFrom.IsZero() {
		where = append(where, "booking_date >= ?")
		args = append(args, filter.DateFrom.Format(schedule.DateLayout))
	}
	if !filter.DateTo.IsZero() {
		where = append(where, "booking_date <= ?")
		args = append(args, filter.DateTo.Format(schedule.DateLayout))
	}
	if filter.Search != "" {
		// instr, not LIKE: '%' and '_' in the search text are literal.
		where = append(where, "instr(fold(notes || ' ' || resource_id || ' ' || user_id), ?) > 0")
		args = append(args, strings.ToLower(filter.Search))
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY booking_date DESC, start_time ASC, id ASC"

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, max(filter.Offset, 0))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return scanBookings(rows)
}

func (db *DB) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE user_id = ? AND status IN ('PENDING', 'CONFIRMED')`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active bookings: %w", err)
	}
	return n, nil
}

// UpcomingReminders returns confirmed bookings that start within [from, to) in loc
// and have not been reminded yet.
func (db *DB) UpcomingReminders(ctx context.Context, from, to time.Time, loc *time.Location) ([]models.Booking, error) {
	const layout = "2006-01-02 15:04"
	rows, err := db.QueryContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'CONFIRMED' AND reminder_sent = 0
		  AND booking_date || ' ' || start_time >= ?
		  AND booking_date || ' ' || start_time < ?
		ORDER BY booking_date ASC, start_time ASC`,
		from.In(loc).Format(layout), to.In(loc).Format(layout))
	if err != nil {
		return nil, fmt.Errorf("query upcoming reminders: %w", err)
	}
	return scanBookings(rows)
}

// MarkReminderSent marks a booking as having had its reminder sent.
func (db *DB) MarkReminderSent(ctx context.Context, id string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE bookings SET reminder_sent = 1, updated_at = ?
		WHERE id = ?`, time.Now(), id)
	return err
}

var _ booking.Ledger = (*DB)(nil)
