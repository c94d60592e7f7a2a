package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
	"git.home.luguber.info/inful/buildmesh/internal/logfields"
	"git.home.luguber.info/inful/buildmesh/internal/metrics"
	"git.home.luguber.info/inful/buildmesh/internal/queue"
)

// execute runs one attempt of item on its lane and records the outcome in the store.
func (s *Scheduler) execute(ctx context.Context, item queue.Item) {
	start := time.Now()
	log := s.logger.With(
		logfields.ItemID(item.ID),
		logfields.EventType(item.EventType),
		logfields.RetryCount(item.RetryCount))

	still, err := s.store.IsItemStillQueued(ctx, item)
	if err != nil {
		log.Error("Failed to re-check queue item", logfields.Error(err))
		return
	}
	if !still {
		log.Debug("Queue item no longer queued, skipping")
		s.recorder.IncItemOutcome(item.EventType, metrics.OutcomeSkipped)
		return
	}

	key := item.Key()
	s.dispatcher.Forget(key)
	err = s.dispatch(ctx, item, key)
	failed := err != nil || s.dispatcher.Errored(key)
	s.dispatcher.Forget(key)
	s.recorder.ObserveItemDuration(item.EventType, time.Since(start))

	switch {
	case !failed:
		s.complete(ctx, log, item)
		s.recorder.IncItemOutcome(item.EventType, metrics.OutcomeCompleted)
	case ferrors.IsNonRetryable(err):
		log.Error("Queue item failed permanently, dropping", logfields.Error(err))
		s.complete(ctx, log, item)
		s.recorder.IncItemOutcome(item.EventType, metrics.OutcomeRejected)
	case s.policy.CanRetry(item.RetryCount):
		notBefore := s.policy.NotBefore(s.now(), item.RetryCount+1)
		log.Warn("Queue item failed, will retry",
			slog.Time("not_before", notBefore),
			logfields.Error(err))
		s.increaseRetry(ctx, log, item, notBefore)
		s.recorder.IncItemOutcome(item.EventType, metrics.OutcomeRetried)
	default:
		log.Warn("Queue item exhausted its retries, dropping",
			slog.Int("max_retries", s.policy.MaxRetries),
			logfields.Error(err))
		s.complete(ctx, log, item)
		s.recorder.IncItemOutcome(item.EventType, metrics.OutcomeDropped)
	}
}

// dispatch decodes and delivers the payload, turning handler panics into errors.
func (s *Scheduler) dispatch(ctx context.Context, item queue.Item, key string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ferrors.InternalError("queue item dispatch panicked").
				WithContext("panic", fmt.Sprint(r)).
				Build()
		}
	}()
	evt, err := s.decoder.Decode(item.EventType, item.Payload)
	if err != nil {
		return err
	}
	return s.dispatcher.Dispatch(ctx, key, evt)
}

func (s *Scheduler) complete(ctx context.Context, log *slog.Logger, item queue.Item) {
	n, err := s.store.Complete(ctx, item)
	switch {
	case err != nil:
		log.Error("Failed to complete queue item", logfields.Error(err))
	case n == 0:
		log.Info("Queue item was completed concurrently")
	}
}

func (s *Scheduler) increaseRetry(ctx context.Context, log *slog.Logger, item queue.Item, notBefore time.Time) {
	n, err := s.store.IncreaseRetryCounter(ctx, item, notBefore)
	switch {
	case err != nil:
		log.Error("Failed to increase queue item retry counter", logfields.Error(err))
	case n == 0:
		log.Info("Queue item retry counter changed concurrently")
	}
}
