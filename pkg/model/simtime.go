package model

import (
	"fmt"
	"time"
)

// NanosPerSecond is the carry threshold of the simulated clock.
const NanosPerSecond = 1_000_000_000

// SimTime is a point on the simulated clock. Nanoseconds is always in
// [0, NanosPerSecond).
type SimTime struct {
	Seconds     uint64 `json:"seconds"`
	Nanoseconds uint64 `json:"nanoseconds"`
}

// SimTimeOf builds a normalized SimTime from a duration since zero.
func SimTimeOf(d time.Duration) SimTime {
	return SimTime{}.Add(d)
}

// Add returns t advanced by d, carrying every full second into Seconds.
// d must not be negative.
func (t SimTime) Add(d time.Duration) SimTime {
	if d < 0 {
		panic(fmt.Sprintf("simtime: negative advance %s", d))
	}
	n := t.Nanoseconds + uint64(d)
	return SimTime{
		Seconds:     t.Seconds + n/NanosPerSecond,
		Nanoseconds: n % NanosPerSecond,
	}
}

// Compare returns -1, 0 or +1 depending on whether t is before, equal to or after u.
func (t SimTime) Compare(u SimTime) int {
	switch {
	case t.Seconds < u.Seconds:
		return -1
	case t.Seconds > u.Seconds:
		return 1
	case t.Nanoseconds < u.Nanoseconds:
		return -1
	case t.Nanoseconds > u.Nanoseconds:
		return 1
	}
	return 0
}

// Before reports whether t is strictly earlier than u.
func (t SimTime) Before(u SimTime) bool { return t.Compare(u) < 0 }

// After reports whether t is strictly later than u.
func (t SimTime) After(u SimTime) bool { return t.Compare(u) > 0 }

// Sub returns the signed duration t-u.
func (t SimTime) Sub(u SimTime) time.Duration {
	secs := int64(t.Seconds) - int64(u.Seconds)
	nanos := int64(t.Nanoseconds) - int64(u.Nanoseconds)
	return time.Duration(secs*NanosPerSecond + nanos)
}

// Duration returns the time elapsed since the zero point.
func (t SimTime) Duration() time.Duration {
	return t.Sub(SimTime{})
}

// IsValid reports whether t satisfies the clock invariant.
func (t SimTime) IsValid() bool {
	return t.Nanoseconds < NanosPerSecond
}

// String formats t as seconds:nanoseconds, the notation used in every log line.
func (t SimTime) String() string {
	return fmt.Sprintf("%d:%09d", t.Seconds, t.Nanoseconds)
}
