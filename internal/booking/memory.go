package booking

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"testdrive/internal/models"
	"testdrive/internal/schedule"
)

// MemoryLedger is an in-process Ledger. One mutex covers check and insert.
type MemoryLedger struct {
	mu       sync.RWMutex
	bookings map[string]*models.Booking
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{bookings: make(map[string]*models.Booking)}
}

func (m *MemoryLedger) ConflictsWith(ctx context.Context, resourceID string, date time.Time, start, end schedule.Clock) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conflictLocked(resourceID, date, start, end), nil
}

func (m *MemoryLedger) conflictLocked(resourceID string, date time.Time, start, end schedule.Clock) bool {
	for _, b := range m.bookings {
		if b.ResourceID == resourceID && b.Status.IsActive() && b.Overlaps(date, start, end) {
			return true
		}
	}
	return false
}

func (m *MemoryLedger) ExistingBookings(ctx context.Context, resourceID string, date time.Time) ([]models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	day := date.Format(schedule.DateLayout)
	var out []models.Booking
	for _, b := range m.bookings {
		if b.ResourceID == resourceID && b.DateString() == day && b.Status.IsActive() {
			out = append(out, *b)
		}
	}
	slices.SortFunc(out, func(a, b models.Booking) int { return cmp.Compare(a.StartTime, b.StartTime) })
	return out, nil
}

func (m *MemoryLedger) InsertIfFree(ctx context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := m.bookings[b.ID]; ok {
		return fmt.Errorf("%w: duplicate id %s", ErrInvalidRequest, b.ID)
	}
	if m.conflictLocked(b.ResourceID, b.Date, b.StartTime, b.EndTime) {
		return fmt.Errorf("%w: %s %s %s-%s", ErrSlotConflict, b.ResourceID, b.DateString(), b.StartTime, b.EndTime)
	}
	stored := *b
	m.bookings[b.ID] = &stored
	return nil
}

func (m *MemoryLedger) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	out := *b
	return &out, nil
}

func (m *MemoryLedger) UpdateStatus(ctx context.Context, id string, from, to models.Status) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, ok := m.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if b.Status != from {
		return nil, fmt.Errorf("%w: booking %s is %s, expected %s", ErrConcurrentModification, id, b.Status, from)
	}
	b.Status = to
	b.Version++
	b.UpdatedAt = time.Now()
	out := *b
	return &out, nil
}

// MarkReminderSent flags a booking so that reminders are not sent twice.
func (m *MemoryLedger) MarkReminderSent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	b.ReminderSent = true
	return nil
}

func (m *MemoryLedger) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	var out []models.Booking
	for _, b := range m.bookings {
		if filter.Matches(b) {
			out = append(out, *b)
		}
	}
	m.mu.RUnlock()

	SortForListing(out)
	return Page(out, filter.Limit, filter.Offset), nil
}

func (m *MemoryLedger) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, b := range m.bookings {
		if b.UserID == userID && b.Status.IsActive() {
			n++
		}
	}
	return n, nil
}

// SortForListing orders bookings newest date first, then by start time.
func SortForListing(list []models.Booking) {
	slices.SortStableFunc(list, func(a, b models.Booking) int {
		if c := cmp.Compare(b.DateString(), a.DateString()); c != 0 {
			return c
		}
		if c := cmp.Compare(a.StartTime, b.StartTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Page applies limit/offset to an already ordered listing.
func Page(list []models.Booking, limit, offset int) []models.Booking {
	if offset > 0 {
		if offset >= len(list) {
			return nil
		}
		list = list[offset:]
	}
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}
