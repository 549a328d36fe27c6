package metrics

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testdrive/internal/booking"
	"testdrive/internal/events"
	"testdrive/internal/models"
)

func TestSubscribe_CountsLifecycleEvents(t *testing.T) {
	logger := zerolog.New(io.Discard)
	bus := events.NewBus(&logger)
	Subscribe(bus)

	created := testutil.ToFloat64(bookingCreated.WithLabelValues("PENDING"))
	confirmed := testutil.ToFloat64(bookingStatusChanged.WithLabelValues("PENDING", "CONFIRMED"))

	require.NoError(t, bus.PublishJSON(booking.EventBookingCreated, booking.Event{ResourceID: "car-metrics", Status: models.StatusPending}))
	require.NoError(t, bus.PublishJSON(booking.EventBookingStatusChanged, booking.Event{
		ResourceID: "car-metrics", OldStatus: models.StatusPending, Status: models.StatusConfirmed,
	}))

	assert.Equal(t, created+1, testutil.ToFloat64(bookingCreated.WithLabelValues("PENDING")))
	assert.Equal(t, confirmed+1, testutil.ToFloat64(bookingStatusChanged.WithLabelValues("PENDING", "CONFIRMED")))

	// Vehicle ids never become label values.
	assert.Equal(t, 1, testutil.CollectAndCount(bookingCreated))
}

func TestCounters(t *testing.T) {
	Register()
	Register()

	conflicts := testutil.ToFloat64(bookingConflicts)
	IncBookingConflict()
	assert.Equal(t, conflicts+1, testutil.ToFloat64(bookingConflicts))

	ObserveRequest("POST /api/v1/bookings", http.StatusCreated, 20*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(httpRequests.WithLabelValues("POST /api/v1/bookings", "201")))

	IncReminder("sent")
	assert.Equal(t, float64(1), testutil.ToFloat64(remindersSent.WithLabelValues("sent")))
}
