package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"testdrive/internal/booking"
	"testdrive/internal/models"
	"testdrive/internal/schedule"
)

const bookingColumns = `id, resource_id, user_id, booking_date, start_time, end_time,
	status, notes, reminder_sent, version, created_at, updated_at`

func scanBooking(row pgx.Row) (*models.Booking, error) {
	var (
		b          models.Booking
		start, end string
		status     string
	)
	err := row.Scan(&b.ID, &b.ResourceID, &b.UserID, &b.Date, &start, &end,
		&status, &b.Notes, &b.ReminderSent, &b.Version, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if b.StartTime, err = schedule.ParseClock(start); err != nil {
		return nil, err
	}
	if b.EndTime, err = schedule.ParseClock(end); err != nil {
		return nil, err
	}
	b.Status = models.Status(status)
	b.Date = schedule.DateOf(b.Date)
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]models.Booking, error) {
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

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func conflictsWith(ctx context.Context, q querier, resourceID string, date time.Time, start, end schedule.Clock) (bool, error) {
	var taken bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE resource_id = $1 AND booking_date = $2
			  AND start_time < $3 AND end_time > $4
			  AND status IN ('PENDING', 'CONFIRMED')
		)`,
		resourceID, schedule.DateOf(date), end.String(), start.String(),
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check conflicts: %w", err)
	}
	return taken, nil
}

func (s *Store) ConflictsWith(ctx context.Context, resourceID string, date time.Time, start, end schedule.Clock) (bool, error) {
	return conflictsWith(ctx, s.pool, resourceID, date, start, end)
}

func (s *Store) ExistingBookings(ctx context.Context, resourceID string, date time.Time) ([]models.Booking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE resource_id = $1 AND booking_date = $2
		  AND status IN ('PENDING', 'CONFIRMED')
		ORDER BY start_time ASC`,
		resourceID, schedule.DateOf(date))
	if err != nil {
		return nil, fmt.Errorf("query existing bookings: %w", err)
	}
	return collectBookings(rows)
}

// InsertIfFree checks for overlap and inserts inside one SERIALIZABLE
// transaction. Two concurrent inserts for overlapping windows cannot both
// commit: one of them fails with a serialization error and is retried, at
// which point it sees the other's row.
func (s *Store) InsertIfFree(ctx context.Context, b *models.Booking) error {
	err := s.serializable(ctx, func(tx pgx.Tx) error {
		taken, err := conflictsWith(ctx, tx, b.ResourceID, b.Date, b.StartTime, b.EndTime)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: %s %s %s-%s", booking.ErrSlotConflict, b.ResourceID, b.DateString(), b.StartTime, b.EndTime)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO bookings (`+bookingColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			b.ID, b.ResourceID, b.UserID, schedule.DateOf(b.Date), b.StartTime.String(), b.EndTime.String(),
			string(b.Status), b.Notes, b.ReminderSent, b.Version, b.CreatedAt, b.UpdatedAt)
		return err
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s %s %s", booking.ErrSlotConflict, b.ResourceID, b.DateString(), b.StartTime)
	}
	if err != nil && !errors.Is(err, booking.ErrSlotConflict) {
		s.logger.Error().Err(err).Str("resource_id", b.ResourceID).Str("date", b.DateString()).Msg("Failed to insert booking")
		return fmt.Errorf("insert booking: %w", err)
	}
	return err
}

func (s *Store) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", booking.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// UpdateStatus is a compare-and-set on the current status.
func (s *Store) UpdateStatus(ctx context.Context, id string, from, to models.Status) (*models.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx, `
		UPDATE bookings
		SET status = $1, version = version + 1, updated_at = now()
		WHERE id = $2 AND status = $3
		RETURNING `+bookingColumns,
		string(to), id, string(from)))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update status: %w", err)
	}

	current, err := s.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: booking %s is %s, expected %s", booking.ErrConcurrentModification, id, current.Status, from)
}

func (s *Store) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		where = append(where, "status = "+arg(string(filter.Status)))
	}
	if filter.UserID != "" {
		where = append(where, "user_id = "+arg(filter.UserID))
	}
	if filter.ResourceID != "" {
		where = append(where, "resource_id = "+arg(filter.ResourceID))
	}
	if !filter.DateFrom.IsZero() {
		where = append(where, "booking_date >= "+arg(schedule.DateOf(filter.DateFrom)))
	}
	if !filter.DateTo.IsZero() {
		where = append(where, "booking_date <= "+arg(schedule.DateOf(filter.DateTo)))
	}
	if filter.Search != "" {
		where = append(where, "strpos(lower(notes || ' ' || resource_id || ' ' || user_id), "+arg(strings.ToLower(filter.Search))+") > 0")
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY booking_date DESC, start_time ASC, id ASC"

	var limit any
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	query += " LIMIT " + arg(limit) + " OFFSET " + arg(max(filter.Offset, 0))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return collectBookings(rows)
}

func (s *Store) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE user_id = $1 AND status IN ('PENDING', 'CONFIRMED')`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active bookings: %w", err)
	}
	return n, nil
}

// UpcomingReminders returns confirmed bookings that start within [from, to) in loc
// and have not been reminded yet.
func (s *Store) UpcomingReminders(ctx context.Context, from, to time.Time, loc *time.Location) ([]models.Booking, error) {
	const layout = "2006-01-02 15:04"
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'CONFIRMED' AND NOT reminder_sent
		  AND to_char(booking_date, 'YYYY-MM-DD') || ' ' || start_time >= $1
		  AND to_char(booking_date, 'YYYY-MM-DD') || ' ' || start_time < $2
		ORDER BY booking_date ASC, start_time ASC`,
		from.In(loc).Format(layout), to.In(loc).Format(layout))
	if err != nil {
		return nil, fmt.Errorf("query upcoming reminders: %w", err)
	}
	return collectBookings(rows)
}

func (s *Store) MarkReminderSent(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE bookings SET reminder_sent = TRUE, updated_at = now() WHERE id = $1`, id)
	return err
}

var _ booking.Ledger = (*Store)(nil)
