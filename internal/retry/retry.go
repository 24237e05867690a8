// Package retry provides the bounded poll-wait primitive shared by the
// injection adapters and the bridge liveness probes: a fixed number of
// attempts at a fixed interval, cancellable through the context.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Poll runs probe until it succeeds, up to attempts times interval apart.
// Exhausting the budget returns the last probe error; it is a normal
// terminal failure, not a panic. A probe error wrapped with Permanent stops
// polling immediately.
func Poll(ctx context.Context, attempts int, interval time.Duration, probe func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	_, err := backoff.Retry(ctx,
		func() (struct{}, error) { return struct{}{}, probe(ctx) },
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
		backoff.WithMaxTries(uint(attempts)),
	)
	return err
}

// Permanent marks an error as non-retryable so Poll stops at once.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
