package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testdrive/internal/schedule"
)

func booking(resource, date, start, end string) *Booking {
	d, err := schedule.ParseDate(date)
	if err != nil {
		panic(err)
	}
	s, _ := schedule.ParseClock(start)
	e, _ := schedule.ParseClock(end)
	return &Booking{ResourceID: resource, Date: d, StartTime: s, EndTime: e, Status: StatusPending}
}

func TestStatus_Helpers(t *testing.T) {
	t.Run("active", func(t *testing.T) {
		assert.True(t, StatusPending.IsActive())
		assert.True(t, StatusConfirmed.IsActive())
		assert.False(t, StatusCancelled.IsActive())
		assert.False(t, StatusCompleted.IsActive())
		assert.False(t, StatusNoShow.IsActive())
	})

	t.Run("terminal", func(t *testing.T) {
		assert.False(t, StatusPending.IsTerminal())
		assert.False(t, StatusConfirmed.IsTerminal())
		assert.True(t, StatusCancelled.IsTerminal())
		assert.True(t, StatusCompleted.IsTerminal())
		assert.True(t, StatusNoShow.IsTerminal())
	})

	t.Run("parse", func(t *testing.T) {
		s, err := ParseStatus("no_show")
		require.NoError(t, err)
		assert.Equal(t, StatusNoShow, s)

		_, err = ParseStatus("AVAILABLE")
		assert.Error(t, err)
	})
}

func TestBooking_OverlapsWith(t *testing.T) {
	base := booking("car-1", "2026-03-02", "09:00", "10:00")

	tests := []struct {
		name     string
		other    *Booking
		expected bool
	}{
		{"same window", booking("car-1", "2026-03-02", "09:00", "10:00"), true},
		{"straddles end", booking("car-1", "2026-03-02", "09:30", "10:30"), true},
		{"adjacent after", booking("car-1", "2026-03-02", "10:00", "11:00"), false},
		{"adjacent before", booking("car-1", "2026-03-02", "08:00", "09:00"), false},
		{"other date", booking("car-1", "2026-03-03", "09:00", "10:00"), false},
		{"other resource", booking("car-2", "2026-03-02", "09:00", "10:00"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, base.OverlapsWith(tt.other))
			assert.Equal(t, tt.expected, tt.other.OverlapsWith(base))
		})
	}
}

func TestBookingFilter_Matches(t *testing.T) {
	b := booking("car-1", "2026-03-02", "09:00", "10:00")
	b.UserID = "user_42"
	b.Notes = "Wants to try the highway"

	assert.True(t, BookingFilter{}.Matches(b))
	assert.True(t, BookingFilter{Status: StatusPending}.Matches(b))
	assert.False(t, BookingFilter{Status: StatusConfirmed}.Matches(b))
	assert.True(t, BookingFilter{Search: "HIGHWAY"}.Matches(b))
	assert.True(t, BookingFilter{Search: "user_4"}.Matches(b))
	assert.False(t, BookingFilter{Search: "city"}.Matches(b))
	assert.True(t, BookingFilter{DateFrom: b.Date, DateTo: b.Date}.Matches(b))
	assert.False(t, BookingFilter{DateFrom: b.Date.AddDate(0, 0, 1)}.Matches(b))
	assert.False(t, BookingFilter{DateTo: b.Date.AddDate(0, 0, -1)}.Matches(b))
}

func TestBooking_JSON(t *testing.T) {
	b := booking("car-1", "2026-03-02", "09:00", "10:00")
	b.CreatedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"start_time":"09:00"`)
	assert.Contains(t, string(data), `"status":"PENDING"`)
	assert.Contains(t, string(data), `"date":"2026-03-02"`)
	assert.Equal(t, "2026-03-02", b.DateString())
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), b.StartsAt(time.UTC))
}
