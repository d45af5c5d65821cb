// Package retry runs an operation again with exponential backoff and
// jitter until it succeeds, the attempts run out or the context ends.
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
//	    return callBackend(ctx)
//	}, retry.WithShouldRetry(isTransient))
package retry
