package logging

import (
	"context"
	"time"
)

// DetachContext creates a context that won't be cancelled when parent is.
// Uses Go 1.21+ context.WithoutCancel for clean implementation.
//
// Decision and outcome persistence must complete even when the decision
// request that produced them is abandoned; detaching the write context keeps
// a caller-side cancel from truncating a record mid-write.
func DetachContext(parent context.Context) context.Context {
	return context.WithoutCancel(parent)
}

// DetachContextWithTimeout creates a detached context with its own timeout,
// giving persistence operations their own deadline independent of the parent
// context's cancellation status.
//
// Example usage:
//
//	writeCtx, cancel := logging.DetachContextWithTimeout(ctx, 5*time.Second)
//	defer cancel()
//	err := store.CreateDecision(writeCtx, record)
func DetachContextWithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(parent)
	return context.WithTimeout(detached, timeout)
}
