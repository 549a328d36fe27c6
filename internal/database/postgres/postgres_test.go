package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testdrive/internal/booking"
	"testdrive/internal/models"
	"testdrive/internal/schedule"
)

// Set TESTDRIVE_POSTGRES_URL to a disposable database to run these tests.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TESTDRIVE_POSTGRES_URL")
	if url == "" {
		t.Skip("TESTDRIVE_POSTGRES_URL not set")
	}

	logger := zerolog.Nop()
	s, err := Open(context.Background(), url, &logger)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

// Every test works on its own resource so runs against a shared database do not collide.
func newBooking(resourceID string, date time.Time, start, end string) *models.Booking {
	s, _ := schedule.ParseClock(start)
	e, _ := schedule.ParseClock(end)
	now := time.Now().UTC()
	return &models.Booking{
		ID:         uuid.NewString(),
		ResourceID: resourceID,
		UserID:     "u-" + resourceID,
		Date:       date,
		StartTime:  s,
		EndTime:    e,
		Status:     models.StatusPending,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505"})))
	assert.True(t, isRetryable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, isRetryable(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, isRetryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isRetryable(errors.New("boom")))
	assert.False(t, isUniqueViolation(nil))
}

func TestStore_InsertIfFree(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	res := "car-" + uuid.NewString()
	date := time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)

	first := newBooking(res, date, "09:00", "10:00")
	require.NoError(t, s.InsertIfFree(ctx, first))

	err := s.InsertIfFree(ctx, newBooking(res, date, "09:30", "10:30"))
	assert.ErrorIs(t, err, booking.ErrSlotConflict)

	require.NoError(t, s.InsertIfFree(ctx, newBooking(res, date, "10:00", "11:00")))

	got, err := s.GetBooking(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "2030-03-04", got.DateString())
	assert.Equal(t, "09:00", got.StartTime.String())
	assert.Equal(t, models.StatusPending, got.Status)

	existing, err := s.ExistingBookings(ctx, res, date)
	require.NoError(t, err)
	assert.Len(t, existing, 2)

	_, err = s.GetBooking(ctx, uuid.NewString())
	assert.ErrorIs(t, err, booking.ErrNotFound)
}

func TestStore_ConcurrentInsert(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	res := "car-" + uuid.NewString()
	date := time.Date(2030, 3, 5, 0, 0, 0, 0, time.UTC)

	windows := [][2]string{{"09:00", "10:00"}, {"09:30", "10:30"}, {"09:15", "09:45"}}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(w [2]string) {
			defer wg.Done()
			err := s.InsertIfFree(ctx, newBooking(res, date, w[0], w[1]))
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, booking.ErrSlotConflict)
		}(windows[i%len(windows)])
	}
	wg.Wait()

	assert.Equal(t, 1, created)
}

func TestStore_UpdateStatus(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	res := "car-" + uuid.NewString()
	b := newBooking(res, time.Date(2030, 3, 6, 0, 0, 0, 0, time.UTC), "11:00", "12:00")
	require.NoError(t, s.InsertIfFree(ctx, b))

	updated, err := s.UpdateStatus(ctx, b.ID, models.StatusPending, models.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, updated.Status)
	assert.Equal(t, int64(2), updated.Version)

	_, err = s.UpdateStatus(ctx, b.ID, models.StatusPending, models.StatusCancelled)
	assert.ErrorIs(t, err, booking.ErrConcurrentModification)

	_, err = s.UpdateStatus(ctx, uuid.NewString(), models.StatusPending, models.StatusCancelled)
	assert.ErrorIs(t, err, booking.ErrNotFound)

	_, err = s.UpdateStatus(ctx, b.ID, models.StatusConfirmed, models.StatusCancelled)
	require.NoError(t, err)
	require.NoError(t, s.InsertIfFree(ctx, newBooking(res, b.Date, "11:00", "12:00")))

	list, err := s.ListBookings(ctx, models.BookingFilter{ResourceID: res})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = s.ListBookings(ctx, models.BookingFilter{ResourceID: res, Status: models.StatusCancelled, Limit: 5})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)
}

func TestStore_ScheduleAndUsers(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	dealership := "d-" + uuid.NewString()

	ws, err := s.LoadSchedule(ctx, dealership)
	require.NoError(t, err)
	assert.Equal(t, schedule.DefaultWeeklySchedule(), ws)

	hours := schedule.DefaultWeeklySchedule().Hours()
	hours[0].IsOpen = false
	replacement, err := schedule.NewWeeklySchedule(hours)
	require.NoError(t, err)
	require.NoError(t, s.ReplaceSchedule(ctx, dealership, replacement))

	ws, err = s.LoadSchedule(ctx, dealership)
	require.NoError(t, err)
	assert.False(t, ws.IsOpenOn(schedule.Monday))

	user := "user-" + uuid.NewString()
	isAdmin, err := s.IsAdmin(ctx, user)
	require.NoError(t, err)
	assert.False(t, isAdmin)

	require.NoError(t, s.SetRole(ctx, user, models.RoleAdmin))
	isAdmin, err = s.IsAdmin(ctx, user)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	_, ok, err := s.TelegramChatID(ctx, user)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.LinkTelegram(ctx, user, 4242))
	chatID, ok, err := s.TelegramChatID(ctx, user)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(4242), chatID)
}
