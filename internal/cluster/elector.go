package cluster

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/buildmesh/internal/logfields"
	"git.home.luguber.info/inful/buildmesh/internal/metrics"
)

// LeaseStore persists named leases.
type LeaseStore interface {
	// AcquireLease claims or renews the lease for holder until now+ttl. It succeeds
	// when the lease is free, expired, or already held by holder.
	AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
	// ReleaseLease gives the lease up if holder still owns it.
	ReleaseLease(ctx context.Context, name, holder string) error
}

// LeaderListener is notified about leadership changes.
type LeaderListener interface {
	OnLeader()
	OnNotLeader()
}

// Elector runs lease based leader election for one lease name.
type Elector struct {
	store    LeaseStore
	name     string
	id       string
	ttl      time.Duration
	renew    time.Duration
	recorder metrics.Recorder

	mu        sync.Mutex
	listeners []LeaderListener
	leader    atomic.Bool
}

// ElectorOption configures an Elector.
type ElectorOption func(*Elector)

// WithInstanceID sets the holder identity; a random uuid is used otherwise.
func WithInstanceID(id string) ElectorOption {
	return func(e *Elector) {
		if id != "" {
			e.id = id
		}
	}
}

// WithLeaseTiming sets the lease ttl and renew interval.
func WithLeaseTiming(ttl, renew time.Duration) ElectorOption {
	return func(e *Elector) {
		if ttl > 0 {
			e.ttl = ttl
		}
		if renew > 0 {
			e.renew = renew
		}
	}
}

func WithElectorRecorder(r metrics.Recorder) ElectorOption {
	return func(e *Elector) {
		if r != nil {
			e.recorder = r
		}
	}
}

// NewElector creates an elector for lease name.
func NewElector(store LeaseStore, name string, opts ...ElectorOption) *Elector {
	e := &Elector{
		store:    store,
		name:     name,
		id:       uuid.NewString(),
		ttl:      15 * time.Second,
		renew:    5 * time.Second,
		recorder: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ID returns the holder identity used for the lease.
func (e *Elector) ID() string { return e.id }

// IsLeader reports whether the last election round won the lease.
func (e *Elector) IsLeader() bool { return e.leader.Load() }

// Subscribe adds a listener. A listener added while leader is told immediately.
func (e *Elector) Subscribe(l LeaderListener) {
	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()
	if e.leader.Load() {
		l.OnLeader()
	}
}

// Run campaigns until ctx is done, then releases the lease if held.
func (e *Elector) Run(ctx context.Context) error {
	slog.Info("Starting leader election",
		slog.String("lease", e.name),
		logfields.InstanceID(e.id),
		slog.Duration("ttl", e.ttl))

	ticker := time.NewTicker(e.renew)
	defer ticker.Stop()

	e.Campaign(ctx)
	for {
		select {
		case <-ctx.Done():
			e.resign()
			return nil
		case <-ticker.C:
			e.Campaign(ctx)
		}
	}
}

// Campaign runs one acquire-or-renew round. A store error counts as a loss so
// two instances never both believe they lead.
func (e *Elector) Campaign(ctx context.Context) {
	ok, err := e.store.AcquireLease(ctx, e.name, e.id, e.ttl)
	if err != nil {
		slog.Warn("Lease acquisition failed",
			slog.String("lease", e.name),
			logfields.InstanceID(e.id),
			logfields.Error(err))
		ok = false
	}
	e.set(ok)
}

func (e *Elector) resign() {
	if !e.leader.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.ReleaseLease(ctx, e.name, e.id); err != nil {
		slog.Warn("Lease release failed", slog.String("lease", e.name), logfields.Error(err))
	}
	e.set(false)
}

func (e *Elector) set(leader bool) {
	if e.leader.Swap(leader) == leader {
		return
	}
	e.recorder.SetLeader(leader)
	slog.Info("Leadership changed",
		slog.String("lease", e.name),
		logfields.InstanceID(e.id),
		slog.Bool("leader", leader))

	e.mu.Lock()
	listeners := append([]LeaderListener(nil), e.listeners...)
	e.mu.Unlock()
	for _, l := range listeners {
		if leader {
			l.OnLeader()
		} else {
			l.OnNotLeader()
		}
	}
}
