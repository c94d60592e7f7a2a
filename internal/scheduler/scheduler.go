// Package scheduler runs the leader-gated queue admission cycle.
//
// Each cycle fetches the ready queue items in id order, applies cluster-health
// backpressure and hands every admitted item to the lane for its event type.
// Lanes run one item at a time. An item is completed after a clean dispatch,
// retried up to the policy's cap otherwise, and completed anyway once the cap
// is reached or the failure is non-retryable.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"

	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
	"git.home.luguber.info/inful/buildmesh/internal/logfields"
	"git.home.luguber.info/inful/buildmesh/internal/metrics"
	"git.home.luguber.info/inful/buildmesh/internal/queue"
	"git.home.luguber.info/inful/buildmesh/internal/retry"
	"git.home.luguber.info/inful/buildmesh/internal/util/sets"
)

// DefaultPollInterval is the admission cycle period when Start gets a non-positive interval.
const DefaultPollInterval = time.Second

// DefaultAllowlist holds the event types admitted while no cluster is healthy.
var DefaultAllowlist = []string{"PushEvent", "DeleteEvent", "CreateEvent"}

// HealthMonitor reports whether any build-execution cluster is healthy.
type HealthMonitor interface {
	IsSomeClusterAvailable() bool
}

// Decoder turns a stored payload back into the event value for its type tag.
type Decoder interface {
	Decode(eventType string, payload []byte) (any, error)
}

// Dispatcher delivers one event synchronously and tracks which keys had a failing handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, key string, evt any) error
	Errored(key string) bool
	Forget(key string)
}

// Scheduler is the queue admission loop. It is safe for concurrent use.
type Scheduler struct {
	store      queue.Store
	decoder    Decoder
	dispatcher Dispatcher
	health     HealthMonitor
	policy     retry.Policy
	allow      sets.Set[string]
	recorder   metrics.Recorder
	logger     *slog.Logger
	now        func() time.Time

	leader     atomic.Bool
	running    atomic.Bool
	processing sets.Concurrent[int64]
	lanes      sync.Map // event type -> *lane
	laneCount  atomic.Int64
	tasks      inflight

	mu      sync.Mutex
	cron    gocron.Scheduler
	job     gocron.Job
	laneCtx context.Context
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPolicy sets the retry cap and delay policy.
func WithPolicy(p retry.Policy) Option { return func(s *Scheduler) { s.policy = p } }

// WithAllowlist replaces the event types admitted under backpressure.
func WithAllowlist(eventTypes []string) Option {
	return func(s *Scheduler) { s.allow = sets.New(eventTypes...) }
}

// WithRecorder sets the metrics recorder for cycles and items.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLogger sets the logger; nil keeps slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces the time source used for retry scheduling.
func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// New creates a stopped, non-leader scheduler. A nil health monitor treats every
// cluster as available.
func New(store queue.Store, decoder Decoder, dispatcher Dispatcher, health HealthMonitor, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:      store,
		decoder:    decoder,
		dispatcher: dispatcher,
		health:     health,
		policy:     retry.DefaultPolicy(),
		allow:      sets.New(DefaultAllowlist...),
		recorder:   metrics.NoopRecorder{},
		logger:     slog.Default(),
		now:        time.Now,
		laneCtx:    context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnLeader is the election callback for gaining leadership.
func (s *Scheduler) OnLeader() {
	if !s.leader.Swap(true) {
		s.logger.Info("Queue scheduler acquired leadership")
	}
	s.recorder.SetLeader(true)
}

// OnNotLeader is the election callback for losing leadership. Work already in a
// lane keeps running.
func (s *Scheduler) OnNotLeader() {
	if s.leader.Swap(false) {
		s.logger.Info("Queue scheduler lost leadership")
	}
	s.recorder.SetLeader(false)
}

// IsLeader reports the current leadership flag.
func (s *Scheduler) IsLeader() bool { return s.leader.Load() }

// Running reports whether periodic scheduling is active.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Start begins periodic admission cycles every interval, the first one immediately.
// Lane work runs on a context detached from ctx's cancellation.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return ferrors.DaemonError("queue scheduler already started").Build()
	}

	cron, err := gocron.NewScheduler()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryDaemon, "failed to create gocron scheduler").Build()
	}
	job, err := cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if ctx.Err() != nil {
				return
			}
			_ = s.RunCycle(ctx)
		}),
		gocron.WithName("queue-admission"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = cron.Shutdown()
		return ferrors.WrapError(err, ferrors.CategoryDaemon, "failed to schedule admission cycle").Build()
	}

	s.cron = cron
	s.job = job
	s.laneCtx = context.WithoutCancel(ctx)
	s.tasks.reset()
	s.running.Store(true)
	cron.Start()

	s.logger.Info("Queue scheduler started",
		slog.Duration("interval", interval),
		slog.String("job_id", job.ID().String()))
	return nil
}

// Stop cancels future admission cycles. It never interrupts lane work; use Wait
// for that. A failure to remove the periodic job is logged, not returned.
func (s *Scheduler) Stop() {
	s.running.Store(false)

	s.mu.Lock()
	cron, job := s.cron, s.job
	s.cron, s.job = nil, nil
	s.mu.Unlock()
	if cron == nil {
		return
	}

	if err := cron.RemoveJob(job.ID()); err != nil {
		s.logger.Error("Failed to cancel admission cycle job",
			slog.String("job_id", job.ID().String()),
			logfields.Error(err))
	}
	if err := cron.Shutdown(); err != nil {
		s.logger.Error("Failed to shut down admission cycle scheduler", logfields.Error(err))
	}
	s.logger.Info("Queue scheduler stopped")
}

// Wait blocks until every item handed to a lane has finished, bounded by ctx.
// Items admitted while waiting stay queued for a later cycle.
func (s *Scheduler) Wait(ctx context.Context) error {
	return s.tasks.drain(ctx)
}

// RunCycle runs one admission cycle if this process is leader and the scheduler
// is started. Errors are logged and returned; they never stop later cycles.
func (s *Scheduler) RunCycle(ctx context.Context) (err error) {
	if !s.leader.Load() || !s.running.Load() {
		return nil
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = ferrors.InternalError("admission cycle panicked").
				WithContext("panic", fmt.Sprint(r)).Build()
		}
		s.recorder.ObserveCycleDuration(time.Since(start))
		if err != nil {
			s.recorder.IncCycleError()
			s.logger.Error("Queue admission cycle failed", logfields.Error(err))
		}
	}()
	return s.cycle(ctx)
}

func (s *Scheduler) cycle(ctx context.Context) error {
	items, err := s.store.ItemsReadyToExecute(ctx)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryStore, "fetch ready queue items").Build()
	}
	slices.SortFunc(items, func(a, b queue.Item) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	bp := backpressure{allow: s.allow, health: s.health}
	for _, item := range items {
		if s.processing.Has(item.ID) {
			continue
		}
		if !bp.admits(item.EventType) {
			s.recorder.IncBackpressureDeferral(item.EventType)
			s.logger.Debug("No build cluster available, deferring remaining items",
				logfields.ItemID(item.ID),
				logfields.EventType(item.EventType))
			return nil
		}
		if !s.leader.Load() {
			return nil
		}
		if !s.processing.Add(item.ID) {
			continue
		}
		s.submit(item)
	}
	return nil
}

func (s *Scheduler) submit(item queue.Item) {
	if !s.tasks.add() {
		s.processing.Delete(item.ID)
		return
	}
	s.recorder.SetProcessing(s.processing.Len())

	s.mu.Lock()
	ctx := s.laneCtx
	s.mu.Unlock()

	s.laneFor(item.EventType).submit(func() {
		defer s.tasks.done()
		defer func() {
			s.processing.Delete(item.ID)
			s.recorder.SetProcessing(s.processing.Len())
		}()
		s.execute(ctx, item)
	})
}

func (s *Scheduler) laneFor(eventType string) *lane {
	if l, ok := s.lanes.Load(eventType); ok {
		return l.(*lane)
	}
	l, loaded := s.lanes.LoadOrStore(eventType, newLane(eventType))
	if !loaded {
		s.recorder.SetLanes(int(s.laneCount.Add(1)))
		s.logger.Debug("Created queue lane", logfields.Lane(eventType))
	}
	return l.(*lane)
}

// LaneCount returns how many event-type lanes exist.
func (s *Scheduler) LaneCount() int { return int(s.laneCount.Load()) }

// Processing reports whether the item with id is currently handed to a lane.
func (s *Scheduler) Processing(id int64) bool { return s.processing.Has(id) }

// backpressure admits allow-listed event types unconditionally and everything
// else only when a cluster is available. Health is probed at most once.
type backpressure struct {
	allow     sets.Set[string]
	health    HealthMonitor
	checked   bool
	available bool
}

func (b *backpressure) admits(eventType string) bool {
	if b.allow.Has(eventType) {
		return true
	}
	if !b.checked {
		b.checked = true
		b.available = b.health == nil || b.health.IsSomeClusterAvailable()
	}
	return b.available
}
