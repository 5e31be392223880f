package game

import "time"

// Timer tracks a round deadline. It only records the start; the
// expiry callback is scheduled separately by the session.
type Timer struct {
	Start  time.Time
	Length time.Duration
}

func NewTimer(start time.Time, length time.Duration) *Timer {
	return &Timer{Start: start, Length: length}
}

// Remaining may be negative once the deadline has passed.
func (t *Timer) Remaining() time.Duration {
	return t.Length - time.Since(t.Start)
}

// SecondsLeft is Remaining clamped to zero, for wire frames.
func (t *Timer) SecondsLeft() int {
	left := t.Remaining()
	if left < 0 {
		return 0
	}
	return int(left / time.Second)
}
