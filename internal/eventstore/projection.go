// Package eventstore keeps the history of build state transitions and derives
// build summaries from it.
package eventstore

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"git.home.luguber.info/inful/buildmesh/internal/build"
)

// BuildSummary is a read model of one build reconstructed from its transitions.
type BuildSummary struct {
	Kind        string        `json:"kind"`
	BuildID     int64         `json:"build_id"`
	State       string        `json:"state"`
	QueuedAt    time.Time     `json:"queued_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Transitions int           `json:"transitions"`
}

func (s *BuildSummary) finished() bool { return build.State(s.State).IsFinished() }

func summaryKey(kind string, id int64) string { return kind + "/" + strconv.FormatInt(id, 10) }

// BuildHistoryProjection maintains an in-memory view of build history,
// reconstructed from the transitions in the store.
type BuildHistoryProjection struct {
	mu       sync.RWMutex
	store    Store
	builds   map[string]*BuildSummary
	history  []*BuildSummary // finished builds, newest first
	maxSize  int
	lastSync time.Time
}

// NewBuildHistoryProjection creates a new projection backed by the given store.
func NewBuildHistoryProjection(store Store, maxHistorySize int) *BuildHistoryProjection {
	if maxHistorySize <= 0 {
		maxHistorySize = 100
	}
	return &BuildHistoryProjection{
		store:   store,
		builds:  make(map[string]*BuildSummary),
		history: make([]*BuildSummary, 0, maxHistorySize),
		maxSize: maxHistorySize,
	}
}

// Rebuild reconstructs the projection from the transitions recorded since since.
func (p *BuildHistoryProjection) Rebuild(ctx context.Context, since time.Time) error {
	events, err := p.store.GetRange(ctx, since, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.builds = make(map[string]*BuildSummary)
	p.history = make([]*BuildSummary, 0, p.maxSize)
	for _, event := range events {
		p.applyEventLocked(event)
	}
	p.lastSync = time.Now()
	return nil
}

// Apply processes a single transition and updates the projection.
func (p *BuildHistoryProjection) Apply(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyEventLocked(event)
}

func (p *BuildHistoryProjection) applyEventLocked(event Event) {
	if event.BuildID == 0 {
		return
	}
	key := summaryKey(event.Kind, event.BuildID)
	summary, exists := p.builds[key]
	if !exists {
		summary = &BuildSummary{Kind: event.Kind, BuildID: event.BuildID, QueuedAt: event.Timestamp}
		p.builds[key] = summary
	}
	if summary.finished() {
		return
	}
	summary.Transitions++
	summary.State = event.State

	at := event.Timestamp
	switch state := build.State(event.State); {
	case state == build.StateQueued:
		summary.QueuedAt = at
	case state == build.StateLaunching || state == build.StateRunning:
		if summary.StartedAt == nil {
			summary.StartedAt = &at
		}
	case state.IsFinished():
		summary.CompletedAt = &at
		if summary.StartedAt != nil {
			summary.Duration = at.Sub(*summary.StartedAt)
		}
		p.addToHistoryLocked(summary)
	}
}

func (p *BuildHistoryProjection) addToHistoryLocked(summary *BuildSummary) {
	p.history = slices.Insert(p.history, 0, summary)
	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}
	p.pruneBuildsLocked()
}

// pruneBuildsLocked drops finished builds that fell out of the bounded history.
// Caller must hold p.mu (write lock).
func (p *BuildHistoryProjection) pruneBuildsLocked() {
	keep := make(map[string]struct{}, len(p.history))
	for _, h := range p.history {
		keep[summaryKey(h.Kind, h.BuildID)] = struct{}{}
	}
	for key, summary := range p.builds {
		if !summary.finished() {
			continue
		}
		if _, ok := keep[key]; !ok {
			delete(p.builds, key)
		}
	}
}

// GetHistory returns finished builds, newest first.
func (p *BuildHistoryProjection) GetHistory() []BuildSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]BuildSummary, len(p.history))
	for i, s := range p.history {
		result[i] = *s
	}
	return result
}

// GetBuild returns the summary for a specific build.
func (p *BuildHistoryProjection) GetBuild(kind string, buildID int64) (BuildSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	summary, exists := p.builds[summaryKey(kind, buildID)]
	if !exists {
		return BuildSummary{}, false
	}
	return *summary, true
}

// GetActiveBuilds returns the builds that have not finished, oldest first.
func (p *BuildHistoryProjection) GetActiveBuilds() []BuildSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []BuildSummary
	for _, summary := range p.builds {
		if !summary.finished() {
			out = append(out, *summary)
		}
	}
	slices.SortFunc(out, func(a, b BuildSummary) int { return a.QueuedAt.Compare(b.QueuedAt) })
	return out
}

// LastSyncTime returns when the projection was last rebuilt.
func (p *BuildHistoryProjection) LastSyncTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}
