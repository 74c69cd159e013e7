package ambient

import "time"

// SystemClock implements dhcpc.Clock over the process's monotonic clock.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a Clock whose NowTicks starts counting from the
// moment it is constructed, so tick values stay small across a long
// process lifetime.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// NowTicks returns whole seconds elapsed since the clock was constructed.
func (c *SystemClock) NowTicks() uint32 {
	return uint32(time.Since(c.start) / time.Second)
}

// Sleep blocks the calling goroutine for d. The dispatcher calls this
// with its single global mutex held: only one interface is ever
// mid-backoff at a time.
func (c *SystemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
