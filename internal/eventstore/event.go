package eventstore

import "time"

// Transition is a build state change to record.
type Transition struct {
	Kind     string
	BuildID  int64
	State    string
	Previous string
	At       time.Time
	Payload  []byte
	Metadata map[string]string
}

// Event is a recorded transition.
type Event struct {
	ID        int64             `json:"id"`
	Kind      string            `json:"kind"`
	BuildID   int64             `json:"buildId"`
	State     string            `json:"state"`
	Previous  string            `json:"previous,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   []byte            `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
