package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"testdrive/internal/booking"
	"testdrive/internal/export"
	"testdrive/internal/lock"
	"testdrive/internal/metrics"
	"testdrive/internal/models"
	"testdrive/internal/schedule"
	"testdrive/internal/slots"
)

// CreateBookingRequest is the body of POST /api/v1/bookings.
type CreateBookingRequest struct {
	ResourceID string `json:"resource_id"`
	Date       string `json:"date"`       // YYYY-MM-DD
	StartTime  string `json:"start_time"` // HH:MM
	EndTime    string `json:"end_time"`   // HH:MM
	Notes      string `json:"notes,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type SlotResponse struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Label     string `json:"label"`
	// Durations lists the booking lengths, in minutes, that can start at this slot.
	Durations []int `json:"durations"`
}

type SlotsResponse struct {
	ResourceID string         `json:"resource_id"`
	Date       string         `json:"date"`
	Slots      []SlotResponse `json:"slots"`
}

type BookingsResponse struct {
	Bookings []models.Booking `json:"bookings"`
}

// BookingResponse carries one booking and the statuses it may move to next.
type BookingResponse struct {
	Booking      *models.Booking `json:"booking"`
	NextStatuses []models.Status `json:"next_statuses"`
}

// BusyWindow is an occupied interval with the owner and notes stripped.
type BusyWindow struct {
	StartTime schedule.Clock `json:"start_time"`
	EndTime   schedule.Clock `json:"end_time"`
}

// ResourceBookingsResponse lists every occupied window of a resource on one
// day; only the caller's own bookings are returned in full.
type ResourceBookingsResponse struct {
	ResourceID string           `json:"resource_id"`
	Date       string           `json:"date"`
	Busy       []BusyWindow     `json:"busy"`
	Mine       []models.Booking `json:"mine"`
}

// GET /api/v1/schedule
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := s.schedules.LoadSchedule(r.Context(), s.dealershipID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// PUT /api/v1/schedule
func (s *Server) handleReplaceSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.RequireAdmin(r.Context(), userID(r)); err != nil {
		s.writeServiceError(w, err)
		return
	}

	var hours []schedule.DayHours
	if err := json.NewDecoder(r.Body).Decode(&hours); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sched, err := schedule.NewWeeklySchedule(hours)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.schedules.ReplaceSchedule(r.Context(), s.dealershipID, sched); err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.logger.Info().Str("dealership_id", s.dealershipID).Str("by", userID(r)).Msg("Working hours replaced")
	writeJSON(w, http.StatusOK, sched)
}

// GET /api/v1/resources/{id}/slots?date=YYYY-MM-DD
func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	resourceID := r.PathValue("id")
	date, ok := queryDate(w, r, "date", true)
	if !ok {
		return
	}

	sched, err := s.schedules.LoadSchedule(r.Context(), s.dealershipID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	free, err := s.coordinator.ListAvailableSlots(r.Context(), resourceID, date, sched)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	minutes := s.coordinator.Rules().SlotMinutes
	resp := SlotsResponse{
		ResourceID: resourceID,
		Date:       date.Format(schedule.DateLayout),
		Slots:      make([]SlotResponse, 0, len(free)),
	}
	for _, slot := range free {
		resp.Slots = append(resp.Slots, SlotResponse{
			StartTime: slot.Start.String(),
			EndTime:   slot.End.String(),
			Label:     slot.Label(),
			Durations: slots.DurationOptions(free, slot.Start, minutes),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/v1/resources/{id}/bookings?date=YYYY-MM-DD
func (s *Server) handleResourceBookings(w http.ResponseWriter, r *http.Request) {
	date, ok := queryDate(w, r, "date", true)
	if !ok {
		return
	}
	list, err := s.coordinator.ExistingBookings(r.Context(), r.PathValue("id"), date)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	uid := userID(r)
	resp := ResourceBookingsResponse{
		ResourceID: r.PathValue("id"),
		Date:       date.Format(schedule.DateLayout),
		Busy:       make([]BusyWindow, 0, len(list)),
		Mine:       []models.Booking{},
	}
	for _, b := range list {
		resp.Busy = append(resp.Busy, BusyWindow{StartTime: b.StartTime, EndTime: b.EndTime})
		if b.UserID == uid {
			resp.Mine = append(resp.Mine, b)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/v1/bookings
func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if s.limiter != nil {
		allowed, err := s.limiter.Allow(r.Context(), uid)
		if err != nil {
			// Fail open: the ledger still guarantees correctness.
			s.logger.Warn().Err(err).Msg("Rate limiter unavailable")
		} else if !allowed {
			writeError(w, http.StatusTooManyRequests, "too many booking requests; try again later")
			return
		}
	}

	var req CreateBookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Date == "" || req.StartTime == "" || req.EndTime == "" {
		writeError(w, http.StatusBadRequest, "date, start_time and end_time are required")
		return
	}
	date, err := schedule.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}
	start, err := schedule.ParseClock(req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_time; expected HH:MM")
		return
	}
	end, err := schedule.ParseClock(req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_time; expected HH:MM")
		return
	}

	sched, err := s.schedules.LoadSchedule(r.Context(), s.dealershipID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	b, err := s.coordinator.CreateBooking(r.Context(), booking.CreateRequest{
		ResourceID:  req.ResourceID,
		RequesterID: uid,
		Date:        date,
		Start:       start,
		End:         end,
		Notes:       req.Notes,
		Schedule:    &sched,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// GET /api/v1/bookings/mine
func (s *Server) handleMyBookings(w http.ResponseWriter, r *http.Request) {
	list, err := s.coordinator.ListUserBookings(r.Context(), userID(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BookingsResponse{Bookings: nonNil(list)})
}

// GET /api/v1/bookings/{id}
func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.coordinator.GetBooking(r.Context(), r.PathValue("id"), userID(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	next := s.coordinator.NextStatuses(b.Status)
	if next == nil {
		next = []models.Status{}
	}
	writeJSON(w, http.StatusOK, BookingResponse{Booking: b, NextStatuses: next})
}

// POST /api/v1/bookings/{id}/cancel
func (s *Server) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.coordinator.CancelBooking(r.Context(), r.PathValue("id"), userID(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// PATCH /api/v1/bookings/{id}/status
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.RequireAdmin(r.Context(), userID(r)); err != nil {
		s.writeServiceError(w, err)
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	status, err := models.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := s.coordinator.TransitionStatus(r.Context(), r.PathValue("id"), status, userID(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GET /api/v1/admin/bookings?status=&user_id=&resource_id=&q=&from=&to=&limit=&offset=
func (s *Server) handleAdminBookings(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}
	list, err := s.coordinator.ListBookings(r.Context(), userID(r), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BookingsResponse{Bookings: nonNil(list)})
}

// GET /api/v1/admin/bookings/export accepts the same filters as the listing.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}
	list, err := s.coordinator.ListBookings(r.Context(), userID(r), filter)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteBookings(&buf, list); err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.GenerateFilename(filter.DateFrom, filter.DateTo)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func parseFilter(w http.ResponseWriter, r *http.Request) (models.BookingFilter, bool) {
	q := r.URL.Query()
	filter := models.BookingFilter{
		Status:     models.Status(q.Get("status")),
		UserID:     q.Get("user_id"),
		ResourceID: q.Get("resource_id"),
		Search:     q.Get("q"),
	}

	var ok bool
	if filter.DateFrom, ok = queryDate(w, r, "from", false); !ok {
		return filter, false
	}
	if filter.DateTo, ok = queryDate(w, r, "to", false); !ok {
		return filter, false
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid "+name)
			return filter, false
		}
		*dst = n
	}
	return filter, true
}

// queryDate parses a YYYY-MM-DD query parameter, writing a 400 when it is malformed
// or missing but required.
func queryDate(w http.ResponseWriter, r *http.Request, name string, required bool) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if required {
			writeError(w, http.StatusBadRequest, name+" is required")
			return time.Time{}, false
		}
		return time.Time{}, true
	}
	d, err := schedule.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name+" format; expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return d, true
}

func nonNil(list []models.Booking) []models.Booking {
	if list == nil {
		return []models.Booking{}
	}
	return list
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrSlotConflict):
		metrics.IncBookingConflict()
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrAlreadyTerminal),
		errors.Is(err, booking.ErrConcurrentModification),
		errors.Is(err, booking.ErrTooManyActive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, booking.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrInvalidRequest),
		errors.Is(err, booking.ErrOutsideHours),
		errors.Is(err, booking.ErrPastDate),
		errors.Is(err, booking.ErrDateTooFar),
		errors.Is(err, schedule.ErrInvalidSchedule):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, lock.ErrTimeout):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "booking system busy; try again")
	default:
		s.logger.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
