package slots

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testdrive/internal/schedule"
)

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func mondayOnly(open, closing schedule.Clock) schedule.WeeklySchedule {
	hours := make([]schedule.DayHours, 0, 7)
	for _, d := range schedule.AllWeekdays {
		hours = append(hours, schedule.DayHours{Day: d})
	}
	hours[0] = schedule.DayHours{Day: schedule.Monday, IsOpen: true, Open: open, Close: closing}
	s, err := schedule.NewWeeklySchedule(hours)
	if err != nil {
		panic(err)
	}
	return s
}

func labels(slots []TimeSlot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Label()
	}
	return out
}

func TestGenerateSlots(t *testing.T) {
	tests := []struct {
		name     string
		date     time.Time
		sched    schedule.WeeklySchedule
		minutes  int
		expected []string
	}{
		{
			name:     "monday two hourly slots",
			date:     monday,
			sched:    mondayOnly(schedule.MustClock(9, 0), schedule.MustClock(11, 0)),
			minutes:  60,
			expected: []string{"09:00 - 10:00", "10:00 - 11:00"},
		},
		{
			name:     "trailing partial window dropped",
			date:     monday,
			sched:    mondayOnly(schedule.MustClock(9, 0), schedule.MustClock(11, 30)),
			minutes:  60,
			expected: []string{"09:00 - 10:00", "10:00 - 11:00"},
		},
		{
			name:     "half hour grid",
			date:     monday,
			sched:    mondayOnly(schedule.MustClock(10, 0), schedule.MustClock(12, 0)),
			minutes:  30,
			expected: []string{"10:00 - 10:30", "10:30 - 11:00", "11:00 - 11:30", "11:30 - 12:00"},
		},
		{
			name:     "non-positive duration uses default",
			date:     monday,
			sched:    mondayOnly(schedule.MustClock(9, 0), schedule.MustClock(11, 0)),
			minutes:  0,
			expected: []string{"09:00 - 10:00", "10:00 - 11:00"},
		},
		{
			name:     "window shorter than one slot",
			date:     monday,
			sched:    mondayOnly(schedule.MustClock(9, 0), schedule.MustClock(9, 45)),
			minutes:  60,
			expected: []string{},
		},
		{
			name:     "closed day",
			date:     monday.AddDate(0, 0, 1),
			sched:    mondayOnly(schedule.MustClock(9, 0), schedule.MustClock(11, 0)),
			minutes:  60,
			expected: []string{},
		},
		{
			name:     "default schedule saturday",
			date:     monday.AddDate(0, 0, 5),
			sched:    schedule.DefaultWeeklySchedule(),
			minutes:  60,
			expected: []string{"10:00 - 11:00", "11:00 - 12:00", "12:00 - 13:00", "13:00 - 14:00", "14:00 - 15:00", "15:00 - 16:00"},
		},
		{
			name:     "closes at midnight",
			date:     monday,
			sched:    mondayOnly(schedule.MustClock(22, 0), schedule.MustClock(24, 0)),
			minutes:  60,
			expected: []string{"22:00 - 23:00", "23:00 - 24:00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateSlots(tt.date, tt.sched, tt.minutes)
			assert.Equal(t, tt.expected, labels(got))
			for _, s := range got {
				assert.True(t, tt.sched.Contains(schedule.WeekdayOf(tt.date), s.Start, s.End), s.String())
			}
		})
	}
}

func TestGenerate_Restartable(t *testing.T) {
	seq := Generate(monday, schedule.DefaultWeeklySchedule(), 60)

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	require.Len(t, first, 9)
	assert.Equal(t, first, second)
}

func TestGenerate_StopsEarly(t *testing.T) {
	var seen []TimeSlot
	for s := range Generate(monday, schedule.DefaultWeeklySchedule(), 60) {
		seen = append(seen, s)
		if len(seen) == 3 {
			break
		}
	}
	assert.Len(t, seen, 3)
	assert.Equal(t, "11:00 - 12:00", seen[2].Label())
}

func TestGenerate_DropsTimeOfDay(t *testing.T) {
	slots := GenerateSlots(monday.Add(15*time.Hour), schedule.DefaultWeeklySchedule(), 60)
	require.NotEmpty(t, slots)
	assert.Equal(t, monday, slots[0].Date)
	assert.Equal(t, "2026-03-02 09:00-10:00", slots[0].String())
	assert.Equal(t, monday.Add(9*time.Hour), slots[0].StartIn(time.UTC))
}

func TestOverlapping(t *testing.T) {
	c := schedule.MustClock
	tests := []struct {
		name           string
		s1, e1, s2, e2 schedule.Clock
		expected       bool
	}{
		{"identical", c(9, 0), c(10, 0), c(9, 0), c(10, 0), true},
		{"partial", c(9, 0), c(10, 0), c(9, 30), c(10, 30), true},
		{"contained", c(9, 0), c(12, 0), c(10, 0), c(11, 0), true},
		{"touching end", c(9, 0), c(10, 0), c(10, 0), c(11, 0), false},
		{"touching start", c(10, 0), c(11, 0), c(9, 0), c(10, 0), false},
		{"disjoint", c(9, 0), c(10, 0), c(14, 0), c(15, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Overlapping(tt.s1, tt.e1, tt.s2, tt.e2))
			assert.Equal(t, tt.expected, Overlapping(tt.s2, tt.e2, tt.s1, tt.e1))
		})
	}
}

func TestFindConsecutive(t *testing.T) {
	all := GenerateSlots(monday, schedule.DefaultWeeklySchedule(), 60)
	// drop 11:00 and 12:00
	free := append(slices.Clone(all[:2]), all[4:]...)

	groups := FindConsecutive(free)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"09:00 - 10:00", "10:00 - 11:00"}, labels(groups[0]))
	assert.Len(t, groups[1], 5)

	assert.Nil(t, FindConsecutive(nil))
}

func TestDurationOptions(t *testing.T) {
	all := GenerateSlots(monday, schedule.DefaultWeeklySchedule(), 60)
	free := append(slices.Clone(all[:3]), all[5:]...)

	assert.Equal(t, []int{60, 120, 180}, DurationOptions(free, schedule.MustClock(9, 0), 60))
	assert.Equal(t, []int{60}, DurationOptions(free, schedule.MustClock(11, 0), 60))
	assert.Nil(t, DurationOptions(free, schedule.MustClock(12, 0), 60))

	// Order of the free list does not matter.
	slices.Reverse(free)
	assert.Equal(t, []int{60, 120, 180}, DurationOptions(free, schedule.MustClock(9, 0), 60))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "30 min", FormatDuration(30))
	assert.Equal(t, "1 h", FormatDuration(60))
	assert.Equal(t, "1 h 30 min", FormatDuration(90))
	assert.Equal(t, "2 h", FormatDuration(120))
}
