// Package metrics provides the observability hooks for the queue scheduler,
// leader election and build coordination.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no call site needs a nil check:
//
//	s := scheduler.New(store, codec, dispatcher, health, scheduler.WithRecorder(rec))
//
// PrometheusRecorder registers its collectors on the registry handed to it; the
// daemon serves that registry through HTTPHandler. ActiveBuildsCollector exports
// cached per-state counts of unfinished builds.
package metrics
