package process

import (
	"math/rand"
	"time"
)

const (
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffCap  = 30 * time.Second
)

// Backoff produces the delay between consecutive restart attempts of a
// crashing service: the base doubles on every attempt up to the cap, with
// up to 25% jitter so a fleet of crashing services does not restart in
// lockstep.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration

	attempt int
}

// Next returns the delay to apply before the upcoming attempt and advances
// the counter.
func (b *Backoff) Next() time.Duration {
	base := b.Base
	if base <= 0 {
		base = defaultBackoffBase
	}
	cap := b.Cap
	if cap <= 0 {
		cap = defaultBackoffCap
	}

	d := base
	for i := 0; i < b.attempt && d < cap; i++ {
		d *= 2
	}
	if d > cap {
		d = cap
	}
	b.attempt++

	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}

// Attempts returns how many delays have been handed out since the last reset.
func (b *Backoff) Attempts() int {
	return b.attempt
}

// Reset starts the progression over, used after a clean manual start.
func (b *Backoff) Reset() {
	b.attempt = 0
}
