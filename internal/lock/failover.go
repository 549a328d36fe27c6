package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"testdrive/internal/booking"
)

const recheckInterval = time.Minute

// Failover uses primary until it reports an infrastructure error, then serves
// from fallback and re-probes primary once per minute.
type Failover struct {
	primary  booking.Locker
	fallback booking.Locker
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailover(primary, fallback booking.Locker, logger *zerolog.Logger) *Failover {
	return &Failover{primary: primary, fallback: fallback, logger: logger}
}

func (f *Failover) Lock(ctx context.Context, key string) (func(), error) {
	if f.isDown.Load() && !f.shouldRecheck() {
		return f.fallback.Lock(ctx, key)
	}

	unlock, err := f.primary.Lock(ctx, key)
	if err == nil {
		if f.isDown.CompareAndSwap(true, false) {
			f.logger.Info().Msg("Primary lock backend recovered")
		}
		return unlock, nil
	}
	// Contention and caller cancellation are not backend failures.
	if errors.Is(err, ErrTimeout) || ctx.Err() != nil {
		return nil, err
	}

	f.markDown(err)
	return f.fallback.Lock(ctx, key)
}

func (f *Failover) shouldRecheck() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) < recheckInterval {
		return false
	}
	f.lastCheck = time.Now()
	return true
}

func (f *Failover) markDown(err error) {
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
	if !f.isDown.Swap(true) {
		f.logger.Warn().Err(err).Msg("Primary lock backend failed, using in-process locks")
	}
}
