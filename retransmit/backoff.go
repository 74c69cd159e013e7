package retransmit

import (
	"time"

	"github.com/soypat/dhcpc/internal"
)

const (
	initialDelay = 4000 * time.Millisecond
	maxDelay     = 64000 * time.Millisecond
)

// Backoff produces the randomized exponential retransmission schedule:
// delay(0)=4000ms, delay(n+1)=min(2*delay(n), 64000ms), jittered by up to
// ±10%. Next does not sleep itself; the retransmission engine owns the
// actual wait so it stays mockable in tests.
type Backoff struct {
	wait uint32 // current delay, milliseconds
	seed uint16
}

// NewBackoff returns a Backoff ready to produce delay(0) on its first
// call to Next. seed seeds the jitter PRNG (see internal.Prand16); pass a
// value derived from the interface's hardware address and the current
// tick for reproducible-but-varied jitter across interfaces.
func NewBackoff(seed uint16) *Backoff {
	return &Backoff{wait: uint32(initialDelay / time.Millisecond), seed: seed}
}

// Reset restores the schedule to delay(0).
func (b *Backoff) Reset() { b.wait = uint32(initialDelay / time.Millisecond) }

// Next returns the jittered delay for this attempt and advances the
// schedule for the following call.
func (b *Backoff) Next() time.Duration {
	b.seed = internal.Prand16(b.seed)
	spread := int64(b.wait) / 10 // ±10%
	offset := int64(0)
	if spread > 0 {
		offset = int64(b.seed)%(2*spread+1) - spread
	}
	d := time.Duration(int64(b.wait)+offset) * time.Millisecond

	next := uint64(b.wait) * 2
	if next > uint64(maxDelay/time.Millisecond) {
		next = uint64(maxDelay / time.Millisecond)
	}
	b.wait = uint32(next)
	return d
}
