package retry

import (
	"context"
	"time"
)

// timerC returns a channel that fires after d, or immediately once ctx
// is cancelled — whichever comes first.
func timerC(ctx context.Context, d time.Duration) <-chan time.Time {
	out := make(chan time.Time, 1)
	t := time.NewTimer(d)
	go func() {
		defer t.Stop()
		select {
		case tm := <-t.C:
			out <- tm
		case <-ctx.Done():
			out <- time.Now()
		}
	}()
	return out
}
