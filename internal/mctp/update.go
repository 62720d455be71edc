package mctp

import (
	"context"
	"time"
)

const minUpdateDelay = 10 * time.Millisecond

// UpdateLoop drives Stack.Update until ctx is done.
func UpdateLoop(ctx context.Context, s *Stack) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-timer.C:
			delay := max(s.Update(now), minUpdateDelay)
			timer.Reset(delay)
		}
	}
}
