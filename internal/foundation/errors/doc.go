// Package errors provides the classified error primitives shared across buildmesh.
//
// Key features:
//   - ErrorCategory: broad classification (config, queue, build, cluster, store, ...)
//   - ErrorSeverity: impact level (fatal, error, warning, info)
//   - RetryStrategy: how a caller should react (never, immediate, backoff, ...)
//   - ClassifiedError: structured error with category, severity and context
//   - ErrorBuilder: fluent API for creating classified errors
//   - NonRetryableError: marks a failure the queue must not retry
//   - CLI adapter for exit codes and presentation
//
// Example usage:
//
//	err := errors.NewError(errors.CategoryCluster, "launch failed").
//		WithRetry(errors.RetryBackoff).
//		WithContext("module_build_id", id).
//		WithCause(originalErr).
//		Build()
package errors
