package queue

import (
	"context"
	"time"
)

// Store is durable storage of queue items.
type Store interface {
	// Enqueue persists a new item ready to execute immediately.
	Enqueue(ctx context.Context, eventType string, payload []byte) (Item, error)
	// ItemsReadyToExecute returns every uncompleted item whose desired execution time has passed.
	ItemsReadyToExecute(ctx context.Context) ([]Item, error)
	// IsItemStillQueued reports whether item is uncompleted with the same retry count.
	IsItemStillQueued(ctx context.Context, item Item) (bool, error)
	// Complete marks item completed; zero rows means it was already completed.
	Complete(ctx context.Context, item Item) (int64, error)
	// IncreaseRetryCounter bumps the retry count if it still equals item.RetryCount
	// and defers the item until notBefore.
	IncreaseRetryCounter(ctx context.Context, item Item, notBefore time.Time) (int64, error)
}
