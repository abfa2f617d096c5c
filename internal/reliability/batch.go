// Package reliability holds the retry and backpressure primitives the
// engine leans on: residual-subset batch retries and a delivery-queue
// depth gate.
package reliability

import (
	"context"
	"time"
)

const (
	batchBaseBackoff = 100 * time.Millisecond
	batchMaxAttempts = 3
)

// BatchWriter applies a batched write and returns the subset of IDs the
// store reported as unprocessed, plus the last error if any item failed.
type BatchWriter interface {
	WriteBatch(ctx context.Context, ids []string) (unprocessed []string, err error)
}

// BatchWriterFunc adapts a function to the BatchWriter interface
type BatchWriterFunc func(ctx context.Context, ids []string) ([]string, error)

func (f BatchWriterFunc) WriteBatch(ctx context.Context, ids []string) ([]string, error) {
	return f(ctx, ids)
}

// SafeBatchWrite writes ids through w, retrying only the residual
// unprocessed subset with exponential backoff, at most 3 attempts. It
// returns whatever remained unprocessed after the last attempt; callers
// must not assume full success and should reconcile on the next tick.
func SafeBatchWrite(ctx context.Context, w BatchWriter, ids []string) ([]string, error) {
	remaining := ids
	var lastErr error

	for attempt := 0; attempt < batchMaxAttempts && len(remaining) > 0; attempt++ {
		if attempt > 0 {
			backoff := batchBaseBackoff * (1 << (attempt - 1))
			select {
			case <-ctx.Done():
				return remaining, ctx.Err()
			case <-time.After(backoff):
			}
		}

		remaining, lastErr = w.WriteBatch(ctx, remaining)
	}

	return remaining, lastErr
}
