package events

import (
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishJSON(t *testing.T) {
	logger := zerolog.New(io.Discard)
	bus := NewBus(&logger)

	var got []Event
	bus.Subscribe("booking.created", func(e Event) error {
		got = append(got, e)
		return errors.New("handler failure does not stop delivery")
	})
	bus.Subscribe("booking.created", func(e Event) error {
		got = append(got, e)
		return nil
	})
	bus.Subscribe("booking.status_changed", func(Event) error {
		t.Fatal("unexpected delivery")
		return nil
	})

	require.NoError(t, bus.PublishJSON("booking.created", map[string]string{"booking_id": "b-1"}))
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.False(t, got[0].CreatedAt.IsZero())

	var payload struct {
		BookingID string `json:"booking_id"`
	}
	require.NoError(t, got[1].Decode(&payload))
	assert.Equal(t, "b-1", payload.BookingID)

	assert.Error(t, bus.PublishJSON("booking.created", make(chan int)))
}
