package metrics

import "time"

// ItemOutcome enumerates what happened to one queue item attempt.
type ItemOutcome string

const (
	OutcomeCompleted ItemOutcome = "completed" // dispatched without error
	OutcomeRetried   ItemOutcome = "retried"   // failed, retry counter increased
	OutcomeDropped   ItemOutcome = "dropped"   // failed past the retry cap
	OutcomeRejected  ItemOutcome = "rejected"  // non-retryable failure
	OutcomeSkipped   ItemOutcome = "skipped"   // no longer queued when the lane got to it
)

// Recorder defines observability hooks for the scheduler and coordinators.
// Implementations must be safe for concurrent use.
type Recorder interface {
	ObserveCycleDuration(d time.Duration)
	IncCycleError()
	IncItemOutcome(eventType string, outcome ItemOutcome)
	ObserveItemDuration(eventType string, d time.Duration)
	IncBackpressureDeferral(eventType string)
	SetProcessing(n int)
	SetLanes(n int)
	SetLeader(leader bool)
	IncInterProjectFinalized(state string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveCycleDuration(time.Duration)        {}
func (NoopRecorder) IncCycleError()                            {}
func (NoopRecorder) IncItemOutcome(string, ItemOutcome)        {}
func (NoopRecorder) ObserveItemDuration(string, time.Duration) {}
func (NoopRecorder) IncBackpressureDeferral(string)            {}
func (NoopRecorder) SetProcessing(int)                         {}
func (NoopRecorder) SetLanes(int)                              {}
func (NoopRecorder) SetLeader(bool)                            {}
func (NoopRecorder) IncInterProjectFinalized(string)           {}
