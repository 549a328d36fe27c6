package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"testdrive/internal/booking"
	"testdrive/internal/events"
)

const namespace = "testdrive"

var (
	once sync.Once

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_created_total",
			Help:      "Count of bookings created by initial status.",
		},
		[]string{"status"},
	)

	bookingStatusChanged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_status_changed_total",
			Help:      "Count of booking status transitions.",
		},
		[]string{"from", "to"},
	)

	bookingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_conflicts_total",
			Help:      "Count of booking attempts rejected because the slot was taken.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"route"},
	)

	remindersSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Count of reminder deliveries by result.",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingCreated, bookingStatusChanged, bookingConflicts,
			httpRequests, httpDuration, remindersSent)
	})
}

// Subscribe feeds booking counters from the lifecycle events on bus.
func Subscribe(bus *events.Bus) {
	bus.Subscribe(booking.EventBookingCreated, func(e events.Event) error {
		var ev booking.Event
		if err := e.Decode(&ev); err != nil {
			return err
		}
		bookingCreated.WithLabelValues(string(ev.Status)).Inc()
		return nil
	})
	bus.Subscribe(booking.EventBookingStatusChanged, func(e events.Event) error {
		var ev booking.Event
		if err := e.Decode(&ev); err != nil {
			return err
		}
		bookingStatusChanged.WithLabelValues(string(ev.OldStatus), string(ev.Status)).Inc()
		return nil
	})
}

func IncBookingConflict() {
	bookingConflicts.Inc()
}

func ObserveRequest(route string, code int, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// IncReminder records a reminder delivery; result is "sent" or "failed".
func IncReminder(result string) {
	remindersSent.WithLabelValues(result).Inc()
}
