// Package pool keeps reusable timers for the settling delays and pacing
// sleeps issued on every exchange.
package pool

import (
	"context"
	"sync"
	"time"
)

var timerPool sync.Pool

// GetTimer returns a timer from the pool armed for d.
//
// Return it with PutTimer once it has fired or is no longer needed.
func GetTimer(d time.Duration) *time.Timer {
	if v := timerPool.Get(); v != nil {
		t, _ := v.(*time.Timer)
		if t.Reset(d) {
			select {
			case <-t.C:
			default:
			}
		}
		return t
	}
	return time.NewTimer(d)
}

// PutTimer stops t and returns it to the pool. t must not be used afterwards.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}

// Sleep blocks for d using a pooled timer. Non-positive durations return immediately.
func Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	t := GetTimer(d)
	<-t.C
	PutTimer(t)
}

// SleepContext blocks for d or until ctx is done, whichever comes first.
// It returns ctx.Err() when the context ended the wait.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := GetTimer(d)
	defer PutTimer(t)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
