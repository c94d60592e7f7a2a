package eventstore

import (
	"context"
	"time"
)

// Store persists build transitions and reads them back.
type Store interface {
	// Append records t. Recording the same transition twice is a no-op.
	Append(ctx context.Context, t Transition) error

	// GetByBuildID returns the transitions of one build, oldest first.
	GetByBuildID(ctx context.Context, kind string, buildID int64) ([]Event, error)

	// GetRange returns transitions recorded in [start, end], oldest first.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)

	Close() error
}
