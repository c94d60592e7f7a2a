package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid scheduler interval").
			WithSeverity(SeverityFatal).
			WithContext("file", "buildmesh.yaml").
			Build()

		if err.Category() != CategoryConfig {
			t.Errorf("expected category %s, got %s", CategoryConfig, err.Category())
		}
		if err.Severity() != SeverityFatal {
			t.Errorf("expected severity %s, got %s", SeverityFatal, err.Severity())
		}
		if err.Message() != "invalid scheduler interval" {
			t.Errorf("unexpected message %q", err.Message())
		}

		file, exists := err.Context().GetString("file")
		if !exists || file != "buildmesh.yaml" {
			t.Errorf("expected context file=buildmesh.yaml, got %v", file)
		}
	})

	t.Run("Detection through wrapping", func(t *testing.T) {
		inner := StoreError("lease update failed").Build()
		wrapped := fmt.Errorf("elect: %w", inner)

		if !IsClassified(wrapped) {
			t.Fatal("expected wrapped error to be classified")
		}
		if !HasCategory(wrapped, CategoryStore) {
			t.Error("expected store category")
		}
		if GetRetryStrategy(wrapped) != RetryBackoff {
			t.Errorf("expected backoff, got %s", GetRetryStrategy(wrapped))
		}
		if GetCategory(errors.New("plain")) != CategoryInternal {
			t.Error("expected unclassified errors to report internal")
		}
	})

	t.Run("WithContext copies", func(t *testing.T) {
		base := ClusterError("launch failed").Build()
		derived := base.WithContext("cluster", "eu-1")

		if _, ok := base.Context().Get("cluster"); ok {
			t.Error("expected base context to be untouched")
		}
		if v, _ := derived.Context().GetString("cluster"); v != "eu-1" {
			t.Errorf("expected cluster=eu-1, got %q", v)
		}
		if !errors.Is(derived, base) {
			t.Error("expected derived error to match base by category and message")
		}
	})

	t.Run("Config errors are fatal", func(t *testing.T) {
		err := ConfigError("test error").Build()
		if err.CanRetry() {
			t.Error("expected config error to not be retryable")
		}
		if !err.IsFatal() {
			t.Error("expected config error to be fatal")
		}
		if err.IsTransient() {
			t.Error("expected config error to not be transient")
		}
	})
}

func TestErrorBuilder(t *testing.T) {
	t.Run("Fluent API", func(t *testing.T) {
		originalErr := errors.New("connection refused")
		err := WrapError(originalErr, CategoryCluster, "health probe failed").
			Warning().
			Retryable().
			WithContext("cluster", "eu-1").
			WithContext("attempt", 3).
			Build()

		if err.Category() != CategoryCluster {
			t.Errorf("expected category %s, got %s", CategoryCluster, err.Category())
		}
		if err.Severity() != SeverityWarning {
			t.Errorf("expected severity %s, got %s", SeverityWarning, err.Severity())
		}
		if !err.IsTransient() {
			t.Error("expected backoff error to be transient")
		}
		if !errors.Is(err, originalErr) {
			t.Error("expected error to wrap original error")
		}
	})

	t.Run("WithCause", func(t *testing.T) {
		cause := errors.New("disk full")
		err := StoreError("insert failed").WithCause(cause).Build()
		if !errors.Is(err, cause) {
			t.Error("expected cause to be reachable")
		}
	})

	t.Run("Convenience constructors", func(t *testing.T) {
		tests := []struct {
			name     string
			builder  *ErrorBuilder
			category ErrorCategory
			severity ErrorSeverity
			retry    RetryStrategy
		}{
			{"ConfigError", ConfigError("test"), CategoryConfig, SeverityFatal, RetryNever},
			{"ValidationError", ValidationError("test"), CategoryValidation, SeverityFatal, RetryNever},
			{"NotFoundError", NotFoundError("test"), CategoryNotFound, SeverityError, RetryNever},
			{"QueueError", QueueError("test"), CategoryQueue, SeverityError, RetryBackoff},
			{"BuildError", BuildError("test"), CategoryBuild, SeverityError, RetryNever},
			{"StoreError", StoreError("test"), CategoryStore, SeverityError, RetryBackoff},
			{"ClusterError", ClusterError("test"), CategoryCluster, SeverityError, RetryBackoff},
			{"NotifyError", NotifyError("test"), CategoryNotify, SeverityWarning, RetryBackoff},
			{"RuntimeError", RuntimeError("test"), CategoryRuntime, SeverityFatal, RetryNever},
			{"DaemonError", DaemonError("test"), CategoryDaemon, SeverityFatal, RetryNever},
			{"InternalError", InternalError("test"), CategoryInternal, SeverityFatal, RetryNever},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.builder.Build()
				if err.Category() != tt.category {
					t.Errorf("expected category %s, got %s", tt.category, err.Category())
				}
				if err.Severity() != tt.severity {
					t.Errorf("expected severity %s, got %s", tt.severity, err.Severity())
				}
				if err.RetryStrategy() != tt.retry {
					t.Errorf("expected retry strategy %s, got %s", tt.retry, err.RetryStrategy())
				}
			})
		}
	})
}

func TestErrorContext(t *testing.T) {
	t.Run("Nil context set", func(t *testing.T) {
		var ctx ErrorContext
		ctx = ctx.Set("key", "value")
		if v, ok := ctx.GetString("key"); !ok || v != "value" {
			t.Errorf("expected key=value, got %v", v)
		}
	})

	t.Run("Context merge", func(t *testing.T) {
		ctx1 := ErrorContext{"key1": "value1", "shared": "original"}
		ctx2 := ErrorContext{"key2": "value2", "shared": "overridden"}

		merged := ctx1.Merge(ctx2)

		if v, _ := merged.GetString("shared"); v != "overridden" {
			t.Errorf("expected shared=overridden, got %s", v)
		}
		if v, _ := merged.GetString("key1"); v != "value1" {
			t.Errorf("expected key1=value1, got %s", v)
		}
		if v, _ := ctx1.GetString("shared"); v != "original" {
			t.Error("expected merge to leave the receiver untouched")
		}
	})
}
