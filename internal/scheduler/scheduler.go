// Package scheduler provides deferred-callback scheduling with a real and a
// virtual clock implementation.
package scheduler

import (
	"time"
)

// Timer is a pending callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer, false if it already ran or was stopped.
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type realScheduler struct{}

// Real returns a scheduler backed by time.AfterFunc.
func Real() Scheduler {
	return realScheduler{}
}

func (realScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
