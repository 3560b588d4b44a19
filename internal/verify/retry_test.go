package verify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryPolicySchedule(t *testing.T) {
	p := DefaultRetryPolicy()
	ctx := context.Background()

	var waits []time.Duration
	for attempt := 1; ; attempt++ {
		delay, again := p.retryDelay(ctx, context.DeadlineExceeded, attempt)
		if !again {
			break
		}
		waits = append(waits, delay)
	}
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, waits)

	p.MaxAttempts = 5
	require.Equal(t, 8*time.Second, p.backoff(3))
	require.Equal(t, 8*time.Second, p.backoff(4), "waits stay at the cap")
}
