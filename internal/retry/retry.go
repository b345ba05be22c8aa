package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is a bounded fixed-delay retry policy. It replaces ad hoc
// sleep-in-a-loop retries with one reusable object that can be shared by
// outbound message delivery and connection establishment.
type Policy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts uint64
	// Delay is the fixed pause between consecutive tries.
	Delay time.Duration
}

// Do runs op until it succeeds, the attempt budget is exhausted, or ctx is
// cancelled. The last error from op is returned.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), attempts-1)
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}
