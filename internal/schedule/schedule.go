package schedule

import (
	"context"
	"encoding/json"
	"fmt"
)

// DayHours is the open window of one weekday.
type DayHours struct {
	Day    Weekday `json:"day_of_week" yaml:"day_of_week"`
	IsOpen bool    `json:"is_open" yaml:"is_open"`
	Open   Clock   `json:"open_time" yaml:"open_time"`
	Close  Clock   `json:"close_time" yaml:"close_time"`
}

// Validate checks the open < close invariant for open days.
func (h DayHours) Validate() error {
	if !h.Day.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidWeekday, int(h.Day))
	}
	if !h.IsOpen {
		return nil
	}
	if h.Open >= h.Close {
		return fmt.Errorf("%w: %s opens at %s but closes at %s", ErrInvalidSchedule, h.Day, h.Open, h.Close)
	}
	return nil
}

// WeeklySchedule holds exactly one DayHours per weekday.
// The zero value is a schedule closed every day.
type WeeklySchedule struct {
	days [7]DayHours
}

// NewWeeklySchedule builds a schedule from seven entries, one per weekday, in any order.
func NewWeeklySchedule(hours []DayHours) (WeeklySchedule, error) {
	var s WeeklySchedule
	if len(hours) != len(AllWeekdays) {
		return s, fmt.Errorf("%w: expected %d days, got %d", ErrInvalidSchedule, len(AllWeekdays), len(hours))
	}

	var seen [7]bool
	for _, h := range hours {
		if err := h.Validate(); err != nil {
			return WeeklySchedule{}, err
		}
		if seen[h.Day.index()] {
			return WeeklySchedule{}, fmt.Errorf("%w: %s listed twice", ErrInvalidSchedule, h.Day)
		}
		seen[h.Day.index()] = true
		s.days[h.Day.index()] = h
	}
	return s, nil
}

// DefaultWeeklySchedule is the schedule a new dealership starts with.
func DefaultWeeklySchedule() WeeklySchedule {
	weekday := func(d Weekday) DayHours {
		return DayHours{Day: d, IsOpen: true, Open: MustClock(9, 0), Close: MustClock(18, 0)}
	}
	s, err := NewWeeklySchedule([]DayHours{
		weekday(Monday),
		weekday(Tuesday),
		weekday(Wednesday),
		weekday(Thursday),
		weekday(Friday),
		{Day: Saturday, IsOpen: true, Open: MustClock(10, 0), Close: MustClock(16, 0)},
		{Day: Sunday, IsOpen: false, Open: MustClock(10, 0), Close: MustClock(16, 0)},
	})
	if err != nil {
		panic(err)
	}
	return s
}

// Day returns the stored entry for d. Unknown days come back closed.
func (s WeeklySchedule) Day(d Weekday) DayHours {
	if !d.Valid() {
		return DayHours{Day: d}
	}
	h := s.days[d.index()]
	h.Day = d
	return h
}

// IsOpenOn reports whether the dealership opens on d.
func (s WeeklySchedule) IsOpenOn(d Weekday) bool {
	return s.Day(d).IsOpen
}

// WindowFor returns the open window of d; ok is false when the day is closed
// or d is not a valid weekday.
func (s WeeklySchedule) WindowFor(d Weekday) (open, closing Clock, ok bool) {
	h := s.Day(d)
	if !h.IsOpen || h.Open >= h.Close {
		return 0, 0, false
	}
	return h.Open, h.Close, true
}

// Contains reports whether [start, end) fits inside the open window of d.
func (s WeeklySchedule) Contains(d Weekday, start, end Clock) bool {
	open, closing, ok := s.WindowFor(d)
	if !ok {
		return false
	}
	return start >= open && end <= closing && start < end
}

// Hours returns the seven entries Monday first.
func (s WeeklySchedule) Hours() []DayHours {
	out := make([]DayHours, 0, len(AllWeekdays))
	for _, d := range AllWeekdays {
		out = append(out, s.Day(d))
	}
	return out
}

func (s WeeklySchedule) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Hours())
}

func (s *WeeklySchedule) UnmarshalJSON(data []byte) error {
	var hours []DayHours
	if err := json.Unmarshal(data, &hours); err != nil {
		return err
	}
	parsed, err := NewWeeklySchedule(hours)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Store persists one weekly schedule per dealership.
type Store interface {
	// LoadSchedule returns the dealership schedule, creating the default one when absent.
	LoadSchedule(ctx context.Context, dealershipID string) (WeeklySchedule, error)

	// ReplaceSchedule swaps all seven days in one transaction.
	ReplaceSchedule(ctx context.Context, dealershipID string, s WeeklySchedule) error
}
