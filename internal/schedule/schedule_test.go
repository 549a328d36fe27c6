package schedule

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "09:00", want: MustClock(9, 0)},
		{in: "9:30", want: MustClock(9, 30)},
		{in: "23:59", want: MustClock(23, 59)},
		{in: "24:00", want: MustClock(24, 0)},
		{in: "24:01", wantErr: true},
		{in: "10:60", wantErr: true},
		{in: "10", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "10:5", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidClock)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClock_StringAndArithmetic(t *testing.T) {
	c := MustClock(9, 5)
	assert.Equal(t, "09:05", c.String())
	assert.Equal(t, "10:05", c.AddMinutes(60).String())
	assert.Equal(t, 90*time.Minute, MustClock(10, 35).Sub(c))

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 5, 0, 0, time.UTC), c.On(day, nil))
}

func TestClock_SQLRoundTrip(t *testing.T) {
	v, err := MustClock(14, 30).Value()
	require.NoError(t, err)
	assert.Equal(t, "14:30", v)

	var c Clock
	require.NoError(t, c.Scan([]byte("08:15")))
	assert.Equal(t, MustClock(8, 15), c)
	assert.Error(t, c.Scan(nil))
	assert.Error(t, c.Scan(42))
}

func TestWeekday(t *testing.T) {
	d, err := ParseWeekday("monday")
	require.NoError(t, err)
	assert.Equal(t, Monday, d)

	d, err = ParseWeekday("SUN")
	require.NoError(t, err)
	assert.Equal(t, Sunday, d)

	_, err = ParseWeekday("FUNDAY")
	assert.ErrorIs(t, err, ErrInvalidWeekday)

	assert.Equal(t, Sunday, WeekdayOf(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, Monday, WeekdayOf(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, Saturday, WeekdayOf(time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)))

	assert.False(t, Weekday(0).Valid())
	assert.False(t, Weekday(8).Valid())
	assert.True(t, Monday < Sunday)
}

func TestDefaultWeeklySchedule(t *testing.T) {
	s := DefaultWeeklySchedule()

	open, closing, ok := s.WindowFor(Monday)
	require.True(t, ok)
	assert.Equal(t, "09:00", open.String())
	assert.Equal(t, "18:00", closing.String())

	open, closing, ok = s.WindowFor(Saturday)
	require.True(t, ok)
	assert.Equal(t, "10:00", open.String())
	assert.Equal(t, "16:00", closing.String())

	assert.False(t, s.IsOpenOn(Sunday))
	_, _, ok = s.WindowFor(Sunday)
	assert.False(t, ok)
}

func TestWindowFor_UnknownDayIsClosed(t *testing.T) {
	s := DefaultWeeklySchedule()

	_, _, ok := s.WindowFor(Weekday(0))
	assert.False(t, ok)
	_, _, ok = s.WindowFor(Weekday(42))
	assert.False(t, ok)
	assert.False(t, s.IsOpenOn(Weekday(-1)))
}

func TestZeroScheduleIsClosed(t *testing.T) {
	var s WeeklySchedule
	for _, d := range AllWeekdays {
		assert.False(t, s.IsOpenOn(d), d.String())
	}
}

func TestNewWeeklySchedule_Validation(t *testing.T) {
	valid := DefaultWeeklySchedule().Hours()

	t.Run("missing day", func(t *testing.T) {
		_, err := NewWeeklySchedule(valid[:6])
		assert.ErrorIs(t, err, ErrInvalidSchedule)
	})

	t.Run("duplicate day", func(t *testing.T) {
		hours := append([]DayHours(nil), valid...)
		hours[6].Day = Monday
		_, err := NewWeeklySchedule(hours)
		assert.ErrorIs(t, err, ErrInvalidSchedule)
	})

	t.Run("open after close", func(t *testing.T) {
		hours := append([]DayHours(nil), valid...)
		hours[0].Open = MustClock(19, 0)
		_, err := NewWeeklySchedule(hours)
		assert.ErrorIs(t, err, ErrInvalidSchedule)
	})

	t.Run("closed day ignores times", func(t *testing.T) {
		hours := append([]DayHours(nil), valid...)
		hours[6] = DayHours{Day: Sunday, IsOpen: false, Open: MustClock(20, 0), Close: MustClock(8, 0)}
		_, err := NewWeeklySchedule(hours)
		assert.NoError(t, err)
	})

	t.Run("invalid weekday", func(t *testing.T) {
		hours := append([]DayHours(nil), valid...)
		hours[3].Day = Weekday(9)
		_, err := NewWeeklySchedule(hours)
		assert.ErrorIs(t, err, ErrInvalidWeekday)
	})
}

func TestContains(t *testing.T) {
	s := DefaultWeeklySchedule()

	assert.True(t, s.Contains(Monday, MustClock(9, 0), MustClock(10, 0)))
	assert.True(t, s.Contains(Monday, MustClock(17, 0), MustClock(18, 0)))
	assert.False(t, s.Contains(Monday, MustClock(17, 30), MustClock(18, 30)))
	assert.False(t, s.Contains(Monday, MustClock(8, 30), MustClock(9, 30)))
	assert.False(t, s.Contains(Monday, MustClock(10, 0), MustClock(10, 0)))
	assert.False(t, s.Contains(Sunday, MustClock(11, 0), MustClock(12, 0)))
}

func TestWeeklySchedule_JSON(t *testing.T) {
	s := DefaultWeeklySchedule()

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"day_of_week":"MONDAY"`)
	assert.Contains(t, string(data), `"open_time":"09:00"`)

	var decoded WeeklySchedule
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, s, decoded)

	err = json.Unmarshal([]byte(`[{"day_of_week":"MONDAY","is_open":true,"open_time":"09:00","close_time":"10:00"}]`), &decoded)
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}
