package queue

import (
	"strconv"
	"time"
)

// Item is a persisted unit of inbound work awaiting dispatch.
type Item struct {
	ID         int64
	EventType  string
	Payload    []byte
	RetryCount int
	Completed  bool
	// NotBefore is the desired execution time; the item is not ready until then.
	NotBefore time.Time
	CreatedAt time.Time
}

// Key identifies the item in the processing and errored sets.
func (i Item) Key() string {
	return i.EventType + "#" + strconv.FormatInt(i.ID, 10)
}

// Ready reports whether the item may execute at now.
func (i Item) Ready(now time.Time) bool {
	return !i.Completed && !i.NotBefore.After(now)
}
