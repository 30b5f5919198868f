// Package coarsetime is a clock with 50ms resolution that is cheap to read.
// The ticker goroutine starts on first use.
package coarsetime

import (
	"sync"
	"sync/atomic"
	"time"
)

const tick = 50 * time.Millisecond

var (
	now   atomic.Int64
	start sync.Once
)

func run() {
	now.Store(time.Now().UnixNano())

	ticker := time.NewTicker(tick)
	go func() {
		for t := range ticker.C {
			now.Store(t.UnixNano())
		}
	}()
}

// Now returns the current time, at most one tick stale.
func Now() time.Time {
	start.Do(run)
	return time.Unix(0, now.Load())
}

// Since returns the time elapsed since t, measured with Now.
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}
