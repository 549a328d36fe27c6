package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"testdrive/internal/schedule"
)

// Status is the lifecycle state of a test-drive booking.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusNoShow    Status = "NO_SHOW"
)

// ActiveStatuses block the booked window for everybody else.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed}

// AllStatuses in lifecycle order.
var AllStatuses = []Status{StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow}

func (s Status) Valid() bool {
	return slices.Contains(AllStatuses, s)
}

// IsActive reports whether a booking in this status occupies its window.
func (s Status) IsActive() bool {
	return slices.Contains(ActiveStatuses, s)
}

// IsTerminal reports whether no further transitions leave this status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// ParseStatus accepts any letter case.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown booking status %q", raw)
	}
	return s, nil
}

// Booking is a committed reservation of a resource for a window on one date.
type Booking struct {
	ID           string         `json:"id"`
	ResourceID   string         `json:"resource_id"`
	UserID       string         `json:"user_id"`
	Date         time.Time      `json:"-"`
	StartTime    schedule.Clock `json:"start_time"`
	EndTime      schedule.Clock `json:"end_time"`
	Status       Status         `json:"status"`
	Notes        string         `json:"notes,omitempty"`
	ReminderSent bool           `json:"reminder_sent"`
	Version      int64          `json:"version"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type bookingJSON Booking

// MarshalJSON writes the date as YYYY-MM-DD next to the other fields.
func (b Booking) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		bookingJSON
		Date string `json:"date"`
	}{bookingJSON(b), b.DateString()})
}

func (b *Booking) UnmarshalJSON(data []byte) error {
	var aux struct {
		*bookingJSON
		Date string `json:"date"`
	}
	aux.bookingJSON = (*bookingJSON)(b)
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Date == "" {
		return nil
	}
	d, err := schedule.ParseDate(aux.Date)
	if err != nil {
		return err
	}
	b.Date = d
	return nil
}

// DateString is the booking date as YYYY-MM-DD.
func (b Booking) DateString() string {
	return b.Date.Format(schedule.DateLayout)
}

// StartsAt returns the absolute start of the booking in loc.
func (b *Booking) StartsAt(loc *time.Location) time.Time {
	return b.StartTime.On(b.Date, loc)
}

// Overlaps checks [StartTime, EndTime) against [start, end) on the same date.
func (b *Booking) Overlaps(date time.Time, start, end schedule.Clock) bool {
	if b.DateString() != date.Format(schedule.DateLayout) {
		return false
	}
	return b.StartTime < end && start < b.EndTime
}

// OverlapsWith reports whether two bookings of the same resource collide.
// Uses half-open interval [start, end) semantics - end boundary is exclusive.
func (b *Booking) OverlapsWith(other *Booking) bool {
	if b.ResourceID != other.ResourceID {
		return false
	}
	return b.Overlaps(other.Date, other.StartTime, other.EndTime)
}

// BookingFilter narrows booking listings. Zero values mean "any".
type BookingFilter struct {
	Status     Status
	UserID     string
	ResourceID string
	Search     string
	DateFrom   time.Time
	DateTo     time.Time
	Limit      int
	Offset     int
}

// Matches applies the filter to one booking; storage layers push the same
// conditions into their queries.
func (f BookingFilter) Matches(b *Booking) bool {
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.UserID != "" && b.UserID != f.UserID {
		return false
	}
	if f.ResourceID != "" && b.ResourceID != f.ResourceID {
		return false
	}
	if !f.DateFrom.IsZero() && b.DateString() < f.DateFrom.Format(schedule.DateLayout) {
		return false
	}
	if !f.DateTo.IsZero() && b.DateString() > f.DateTo.Format(schedule.DateLayout) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		haystack := strings.ToLower(b.Notes + " " + b.ResourceID + " " + b.UserID)
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}
