package events

import (
	"fmt"
	"sync"
	"time"
)

const (
	// deliveryStaleAfter is how long a sink may go without a successful delivery
	deliveryStaleAfter = 5 * time.Minute
	// deliveryMaxFailures consecutive failures mark a sink unhealthy
	deliveryMaxFailures = 3
)

// deliveryHealth follows the outcome of deliveries to one sink. A sink
// with no traffic yet counts as healthy until staleAfter has passed.
type deliveryHealth struct {
	mu         sync.Mutex
	staleAfter time.Duration
	lastOK     time.Time
	failures   int
	lastErr    error
	now        func() time.Time
}

func newDeliveryHealth(staleAfter time.Duration) *deliveryHealth {
	return &deliveryHealth{
		staleAfter: staleAfter,
		lastOK:     time.Now(),
		now:        time.Now,
	}
}

// observe records the result of one delivery
func (d *deliveryHealth) observe(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err == nil {
		d.lastOK = d.now()
		d.failures = 0
		d.lastErr = nil
		return
	}
	d.failures++
	d.lastErr = err
}

func (d *deliveryHealth) check() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failures >= deliveryMaxFailures {
		return fmt.Errorf("%d consecutive delivery failures, last: %w", d.failures, d.lastErr)
	}
	if idle := d.now().Sub(d.lastOK); idle >= d.staleAfter && d.lastErr != nil {
		return fmt.Errorf("no successful delivery for %s: %w", idle.Truncate(time.Second), d.lastErr)
	}
	return nil
}
