package connection

import (
	"sync"
	"time"
)

// Backoff is a linear reconnect delay: it starts at Initial, grows by Step
// after every use and never exceeds Max.
type Backoff struct {
	initial time.Duration
	step    time.Duration
	max     time.Duration

	mu      sync.Mutex
	current time.Duration
}

// NewBackoff creates a linear backoff. Negative values are treated as zero and
// an initial delay above max is clamped.
func NewBackoff(initial, step, max time.Duration) *Backoff {
	if max < 0 {
		max = 0
	}
	if step < 0 {
		step = 0
	}
	if initial < 0 {
		initial = 0
	}
	if initial > max {
		initial = max
	}

	return &Backoff{
		initial: initial,
		step:    step,
		max:     max,
		current: initial,
	}
}

// Next returns the delay to wait before the upcoming attempt and advances
// the delay for the attempt after it.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.current
	b.current += b.step
	if b.current > b.max {
		b.current = b.max
	}
	return delay
}

// Current returns the delay the next call to Next will return.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Reset returns the delay to its initial value.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.current = b.initial
	b.mu.Unlock()
}
