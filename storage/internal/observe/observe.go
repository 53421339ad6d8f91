// Package observe wraps storage operations in a span and a metric record.
// Every backend embeds an Observer.
package observe

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sparcrpg/sparc-oauth/instrumentation"
	"github.com/sparcrpg/sparc-oauth/storage"
)

// Result values recorded for storage operations.
const (
	ResultSuccess  = "success"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Observer records spans and metrics for one storage backend.
type Observer struct {
	storageType string

	mu     sync.RWMutex
	inst   *instrumentation.Instrumentation
	tracer trace.Tracer
}

// New returns an Observer for the named backend ("memory", "sqlite", ...).
func New(storageType string) *Observer {
	return &Observer{storageType: storageType}
}

// SetInstrumentation enables spans and metrics. A nil inst disables them.
func (o *Observer) SetInstrumentation(inst *instrumentation.Instrumentation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inst = inst
	o.tracer = nil
	if inst != nil {
		o.tracer = inst.Tracer("storage")
	}
}

// Start opens a span for operation. The returned func must be called with
// the operation's final error.
//
//	ctx, done := s.obs.Start(ctx, "get_client")
//	defer func() { done(err) }()
func (o *Observer) Start(ctx context.Context, operation string) (context.Context, func(error)) {
	o.mu.RLock()
	inst, tracer := o.inst, o.tracer
	o.mu.RUnlock()

	if inst == nil {
		return ctx, func(error) {}
	}

	ctx, span := tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(
			attribute.String(instrumentation.AttrStorageOperation, operation),
			attribute.String(instrumentation.AttrStorageType, o.storageType),
		))
	startTime := time.Now()

	return ctx, func(err error) {
		defer span.End()

		result := ResultSuccess
		switch {
		case err == nil:
			span.SetStatus(codes.Ok, "")
		case errors.Is(err, storage.ErrNotFound):
			// A miss is an answer, not a failure.
			result = ResultNotFound
			span.SetStatus(codes.Ok, "")
		default:
			result = ResultError
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String(instrumentation.AttrStorageResult, result))

		durationMs := float64(time.Since(startTime).Microseconds()) / 1000
		inst.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
	}
}
