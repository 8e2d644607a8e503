package lipo

import "time"

// SystemClock is a Clock counting milliseconds since it was created. It wraps
// after about 49 days like a 32 bit tick counter does.
type SystemClock struct {
	start time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Millis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}
