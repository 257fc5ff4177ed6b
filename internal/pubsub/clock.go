package pubsub

import "time"

// Clock supplies wall time for ID_TIME replies. Required to be monotonic
// on an epoch-seconds scale with at least 1ms resolution.
type Clock interface {
	WallTime() (sec uint32, nsec uint32)
}

// SystemClock is the production Clock, backed by time.Now(). It is a
// one-line implementation of a one-method interface: kept as a plain
// type rather than over-built, matching how the teacher keeps narrow
// seams (e.g. server.SendFunc) as simple function types.
type SystemClock struct{}

// WallTime returns the current wall-clock time as (seconds, nanoseconds)
// since the Unix epoch.
func (SystemClock) WallTime() (uint32, uint32) {
	now := time.Now()
	return uint32(now.Unix()), uint32(now.Nanosecond())
}
