// Package booking coordinates slot availability and the lifecycle of test-drive bookings.
package booking

import (
	"context"
	"fmt"
	"time"

	"testdrive/internal/models"
	"testdrive/internal/schedule"
)

// Ledger is the durable record of bookings per resource.
type Ledger interface {
	// ConflictsWith reports whether an active booking of resourceID on date
	// overlaps [start, end).
	ConflictsWith(ctx context.Context, resourceID string, date time.Time, start, end schedule.Clock) (bool, error)

	// ExistingBookings returns the active bookings of resourceID on date ordered by start time.
	ExistingBookings(ctx context.Context, resourceID string, date time.Time) ([]models.Booking, error)

	// InsertIfFree runs the conflict check and the insert as one atomic unit.
	// It returns ErrSlotConflict and writes nothing when the window is taken.
	InsertIfFree(ctx context.Context, b *models.Booking) error

	GetBooking(ctx context.Context, id string) (*models.Booking, error)

	// UpdateStatus moves a booking from one status to another only if it is
	// still in from; otherwise it returns ErrConcurrentModification.
	UpdateStatus(ctx context.Context, id string, from, to models.Status) (*models.Booking, error)

	ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
	CountActiveByUser(ctx context.Context, userID string) (int, error)
}

// Privileges answers whether a user holds elevated rights.
type Privileges interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// Locker serializes work on one key across processes.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// EventPublisher receives booking lifecycle events.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

const (
	EventBookingCreated       = "booking.created"
	EventBookingStatusChanged = "booking.status_changed"
)

// Event is the payload of every booking event.
type Event struct {
	BookingID  string        `json:"booking_id"`
	ResourceID string        `json:"resource_id"`
	UserID     string        `json:"user_id"`
	Date       string        `json:"date"`
	StartTime  string        `json:"start_time"`
	EndTime    string        `json:"end_time"`
	OldStatus  models.Status `json:"old_status,omitempty"`
	Status     models.Status `json:"status"`
	ChangedBy  string        `json:"changed_by,omitempty"`
	At         time.Time     `json:"at"`
}

func newEvent(b *models.Booking, old models.Status, by string, at time.Time) Event {
	return Event{
		BookingID:  b.ID,
		ResourceID: b.ResourceID,
		UserID:     b.UserID,
		Date:       b.DateString(),
		StartTime:  b.StartTime.String(),
		EndTime:    b.EndTime.String(),
		OldStatus:  old,
		Status:     b.Status,
		ChangedBy:  by,
		At:         at,
	}
}

// LockKey is the mutual-exclusion scope of CreateBooking. Different resources never contend.
func LockKey(resourceID string, date time.Time) string {
	return fmt.Sprintf("booking:%s:%s", resourceID, date.Format(schedule.DateLayout))
}

type nopLocker struct{}

func (nopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }

type nopPublisher struct{}

func (nopPublisher) PublishJSON(string, interface{}) error { return nil }

type noPrivileges struct{}

func (noPrivileges) IsAdmin(context.Context, string) (bool, error) { return false, nil }
