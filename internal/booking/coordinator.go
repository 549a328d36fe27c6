package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"testdrive/internal/models"
	"testdrive/internal/schedule"
	"testdrive/internal/slots"
)

// maxStatusAttempts bounds re-reads when a status update races another writer.
const maxStatusAttempts = 3

// Rules are the booking policy knobs.
type Rules struct {
	SlotMinutes      int
	MinAdvance       time.Duration
	MaxAdvance       time.Duration
	MaxActivePerUser int
	Location         *time.Location
}

// CreateRequest is a booking attempt for one window.
type CreateRequest struct {
	ResourceID  string
	RequesterID string
	Date        time.Time
	Start       schedule.Clock
	End         schedule.Clock
	Notes       string

	// Schedule, when set, requires the window to lie inside that day's open hours.
	Schedule *schedule.WeeklySchedule
}

// Coordinator is the single entry point for reading availability and mutating bookings.
type Coordinator struct {
	ledger     Ledger
	privileges Privileges
	locker     Locker
	events     EventPublisher
	fsm        *FSM
	rules      Rules

	now   func() time.Time
	newID func() string
}

// NewCoordinator wires a coordinator. privileges, locker and events may be nil.
func NewCoordinator(ledger Ledger, privileges Privileges, locker Locker, events EventPublisher, rules Rules) *Coordinator {
	if privileges == nil {
		privileges = noPrivileges{}
	}
	if locker == nil {
		locker = nopLocker{}
	}
	if events == nil {
		events = nopPublisher{}
	}
	if rules.SlotMinutes <= 0 {
		rules.SlotMinutes = slots.DefaultSlotMinutes
	}
	if rules.Location == nil {
		rules.Location = time.UTC
	}
	return &Coordinator{
		ledger:     ledger,
		privileges: privileges,
		locker:     locker,
		events:     events,
		fsm:        NewFSM(),
		rules:      rules,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Rules returns the effective policy.
func (c *Coordinator) Rules() Rules {
	return c.rules
}

// ListAvailableSlots returns the free slots of resourceID on date in start order.
// Slots starting before now+MinAdvance or after now+MaxAdvance are left out.
func (c *Coordinator) ListAvailableSlots(ctx context.Context, resourceID string, date time.Time, sched schedule.WeeklySchedule) ([]slots.TimeSlot, error) {
	if strings.TrimSpace(resourceID) == "" {
		return nil, fmt.Errorf("%w: resource id is required", ErrInvalidRequest)
	}
	day := schedule.DateOf(date)

	existing, err := c.ledger.ExistingBookings(ctx, resourceID, day)
	if err != nil {
		return nil, fmt.Errorf("existing bookings: %w", err)
	}

	now := c.now()
	earliest := now.Add(c.rules.MinAdvance)

	available := make([]slots.TimeSlot, 0)
	for slot := range slots.Generate(day, sched, c.rules.SlotMinutes) {
		startAt := slot.StartIn(c.rules.Location)
		if startAt.Before(earliest) {
			continue
		}
		if c.rules.MaxAdvance > 0 && startAt.After(now.Add(c.rules.MaxAdvance)) {
			break
		}
		if overlapsAny(existing, slot) {
			continue
		}
		available = append(available, slot)
	}
	return available, nil
}

func overlapsAny(existing []models.Booking, slot slots.TimeSlot) bool {
	for i := range existing {
		if existing[i].Status.IsActive() && existing[i].Overlaps(slot.Date, slot.Start, slot.End) {
			return true
		}
	}
	return false
}

// ExistingBookings returns the active bookings of resourceID on date.
func (c *Coordinator) ExistingBookings(ctx context.Context, resourceID string, date time.Time) ([]models.Booking, error) {
	if strings.TrimSpace(resourceID) == "" {
		return nil, fmt.Errorf("%w: resource id is required", ErrInvalidRequest)
	}
	return c.ledger.ExistingBookings(ctx, resourceID, schedule.DateOf(date))
}

// CreateBooking reserves [Start, End) on Date for the requester with status PENDING.
// The conflict check is repeated inside the storage transaction, so a window that was
// free when listed but claimed since fails with ErrSlotConflict and writes nothing.
func (c *Coordinator) CreateBooking(ctx context.Context, req CreateRequest) (*models.Booking, error) {
	if err := c.validateCreate(req); err != nil {
		return nil, err
	}
	b, err := c.reserve(ctx, req)
	if err != nil {
		return nil, err
	}
	// Published outside the resource lock.
	_ = c.events.PublishJSON(EventBookingCreated, newEvent(b, "", req.RequesterID, b.CreatedAt))
	return b, nil
}

// reserve runs the limit check and the insert under the per-resource lock.
func (c *Coordinator) reserve(ctx context.Context, req CreateRequest) (*models.Booking, error) {
	day := schedule.DateOf(req.Date)

	unlock, err := c.locker.Lock(ctx, LockKey(req.ResourceID, day))
	if err != nil {
		return nil, fmt.Errorf("acquire booking lock: %w", err)
	}
	defer unlock()

	if c.rules.MaxActivePerUser > 0 {
		active, err := c.ledger.CountActiveByUser(ctx, req.RequesterID)
		if err != nil {
			return nil, fmt.Errorf("count active bookings: %w", err)
		}
		if active >= c.rules.MaxActivePerUser {
			return nil, fmt.Errorf("%w: limit is %d", ErrTooManyActive, c.rules.MaxActivePerUser)
		}
	}

	now := c.now()
	b := &models.Booking{
		ID:         c.newID(),
		ResourceID: req.ResourceID,
		UserID:     req.RequesterID,
		Date:       day,
		StartTime:  req.Start,
		EndTime:    req.End,
		Status:     models.StatusPending,
		Notes:      strings.TrimSpace(req.Notes),
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.ledger.InsertIfFree(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *Coordinator) validateCreate(req CreateRequest) error {
	if strings.TrimSpace(req.ResourceID) == "" {
		return fmt.Errorf("%w: resource id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.RequesterID) == "" {
		return fmt.Errorf("%w: requester id is required", ErrInvalidRequest)
	}
	if req.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidRequest)
	}
	if req.Start < 0 || req.Start >= req.End {
		return fmt.Errorf("%w: start %s must be before end %s", ErrInvalidRequest, req.Start, req.End)
	}

	day := schedule.DateOf(req.Date)
	if req.Schedule != nil && !req.Schedule.Contains(schedule.WeekdayOf(day), req.Start, req.End) {
		return fmt.Errorf("%w: %s %s-%s", ErrOutsideHours, schedule.WeekdayOf(day), req.Start, req.End)
	}

	now := c.now()
	startAt := req.Start.On(day, c.rules.Location)
	if startAt.Before(now) {
		return ErrPastDate
	}
	if startAt.Before(now.Add(c.rules.MinAdvance)) {
		return fmt.Errorf("%w: bookings must be made at least %s ahead", ErrPastDate, c.rules.MinAdvance)
	}
	if c.rules.MaxAdvance > 0 && startAt.After(now.Add(c.rules.MaxAdvance)) {
		return fmt.Errorf("%w: at most %s ahead", ErrDateTooFar, c.rules.MaxAdvance)
	}
	return nil
}

// TransitionStatus moves a booking along the lifecycle. Disallowed moves fail
// with ErrInvalidTransition.
func (c *Coordinator) TransitionStatus(ctx context.Context, bookingID string, to models.Status, byUserID string) (*models.Booking, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	return c.transition(ctx, bookingID, to, byUserID, nil)
}

// CancelBooking cancels on behalf of the owner or an admin.
func (c *Coordinator) CancelBooking(ctx context.Context, bookingID, byUserID string) (*models.Booking, error) {
	var admin *bool
	guard := func(b *models.Booking) error {
		if b.UserID != byUserID {
			if admin == nil {
				ok, err := c.privileges.IsAdmin(ctx, byUserID)
				if err != nil {
					return fmt.Errorf("check privileges: %w", err)
				}
				admin = &ok
			}
			if !*admin {
				return ErrForbidden
			}
		}
		if b.Status == models.StatusCancelled || b.Status == models.StatusCompleted {
			return fmt.Errorf("%w: status is %s", ErrAlreadyTerminal, b.Status)
		}
		return nil
	}
	return c.transition(ctx, bookingID, models.StatusCancelled, byUserID, guard)
}

// transition re-reads the booking when the compare-and-set loses a race, so the
// caller always gets the error that matches the booking's latest status.
func (c *Coordinator) transition(ctx context.Context, bookingID string, to models.Status, by string, guard func(*models.Booking) error) (*models.Booking, error) {
	for attempt := 0; attempt < maxStatusAttempts; attempt++ {
		current, err := c.ledger.GetBooking(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		if guard != nil {
			if err := guard(current); err != nil {
				return nil, err
			}
		}
		if !c.fsm.CanTransition(current.Status, to) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
		}

		updated, err := c.ledger.UpdateStatus(ctx, bookingID, current.Status, to)
		if errors.Is(err, ErrConcurrentModification) {
			continue
		}
		if err != nil {
			return nil, err
		}

		_ = c.events.PublishJSON(EventBookingStatusChanged, newEvent(updated, current.Status, by, c.now()))
		return updated, nil
	}
	return nil, fmt.Errorf("%w: booking %s", ErrConcurrentModification, bookingID)
}

// GetBooking returns a booking visible to viewerID: its owner or an admin.
func (c *Coordinator) GetBooking(ctx context.Context, bookingID, viewerID string) (*models.Booking, error) {
	b, err := c.ledger.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID == viewerID {
		return b, nil
	}
	if err := c.requireAdmin(ctx, viewerID); err != nil {
		return nil, err
	}
	return b, nil
}

// NextStatuses lists the statuses a booking in status can move to.
func (c *Coordinator) NextStatuses(status models.Status) []models.Status {
	return c.fsm.Allowed(status)
}

// ListUserBookings returns every booking of userID, newest date first.
func (c *Coordinator) ListUserBookings(ctx context.Context, userID string) ([]models.Booking, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	return c.ledger.ListBookings(ctx, models.BookingFilter{UserID: userID})
}

// ListBookings is the admin listing.
func (c *Coordinator) ListBookings(ctx context.Context, byUserID string, filter models.BookingFilter) ([]models.Booking, error) {
	if err := c.requireAdmin(ctx, byUserID); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, filter.Status)
	}
	return c.ledger.ListBookings(ctx, filter)
}

// RequireAdmin fails with ErrForbidden unless userID is an admin.
func (c *Coordinator) RequireAdmin(ctx context.Context, userID string) error {
	return c.requireAdmin(ctx, userID)
}

func (c *Coordinator) requireAdmin(ctx context.Context, userID string) error {
	ok, err := c.privileges.IsAdmin(ctx, userID)
	if err != nil {
		return fmt.Errorf("check privileges: %w", err)
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
