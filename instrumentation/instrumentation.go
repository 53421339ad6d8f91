package instrumentation

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceName is used when Config.ServiceName is empty
	DefaultServiceName = "sparc-oauth"

	// DefaultServiceVersion is the default service version used when none is provided
	DefaultServiceVersion = "unknown"

	scopePrefix = "github.com/sparcrpg/sparc-oauth/"
)

// Config holds instrumentation configuration
type Config struct {
	// ServiceName is the name of the service (e.g., "sparc-oauth")
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Enabled controls whether instrumentation is active.
	// When false, no-op providers are used regardless of the fields below.
	Enabled bool

	// MeterProvider and TracerProvider are used when Enabled. A nil provider
	// falls back to the otel global provider.
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider

	// Resource allows custom resource attributes
	// If nil, default resource is created with service name and version
	Resource *resource.Resource
}

// Instrumentation provides OpenTelemetry instrumentation components
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	metrics *Metrics

	// Registered during New and RegisterStorageSizeCallbacks only.
	mu            sync.Mutex
	registrations []metric.Registration
	shutdownOnce  sync.Once
}

// New creates a new instrumentation instance
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = DefaultServiceVersion
	}

	res := config.Resource
	if res == nil {
		var err error
		res, err = resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
	}

	inst := &Instrumentation{
		config:   config,
		resource: res,
	}

	if config.Enabled {
		inst.meterProvider = config.MeterProvider
		if inst.meterProvider == nil {
			inst.meterProvider = otel.GetMeterProvider()
		}
		inst.tracerProvider = config.TracerProvider
		if inst.tracerProvider == nil {
			inst.tracerProvider = otel.GetTracerProvider()
		}
	} else {
		// Use no-op providers for zero overhead
		inst.meterProvider = noop.NewMeterProvider()
		inst.tracerProvider = tracenoop.NewTracerProvider()
	}

	var err error
	inst.metrics, err = newMetrics(inst)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return inst, nil
}

// Shutdown unregisters storage callbacks. Providers passed in Config are
// owned by the caller and are not shut down here.
func (i *Instrumentation) Shutdown(_ context.Context) error {
	var shutdownErr error

	i.shutdownOnce.Do(func() {
		i.mu.Lock()
		defer i.mu.Unlock()
		for _, reg := range i.registrations {
			if err := reg.Unregister(); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}
		i.registrations = nil
	})

	return shutdownErr
}

// Resource returns the resource describing this service.
func (i *Instrumentation) Resource() *resource.Resource {
	return i.resource
}

// Meter returns a named meter for the given scope ("server", "storage").
// The full name will be "github.com/sparcrpg/sparc-oauth/{scope}"
func (i *Instrumentation) Meter(scope string) metric.Meter {
	return i.meterProvider.Meter(scopePrefix + scope)
}

// Tracer returns a named tracer for the given scope ("server", "storage").
// The full name will be "github.com/sparcrpg/sparc-oauth/{scope}"
func (i *Instrumentation) Tracer(scope string) trace.Tracer {
	return i.tracerProvider.Tracer(scopePrefix + scope)
}

// Metrics returns the metrics holder for recording metric values
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// TracerProvider returns the underlying tracer provider
func (i *Instrumentation) TracerProvider() trace.TracerProvider {
	return i.tracerProvider
}

// MeterProvider returns the underlying meter provider
func (i *Instrumentation) MeterProvider() metric.MeterProvider {
	return i.meterProvider
}

// StorageSizeCallback is a function that returns the current size of a storage component
type StorageSizeCallback func() int64

// StorageSizeCallbacks groups the size callbacks a backend can report. Nil
// callbacks are skipped.
type StorageSizeCallbacks struct {
	Clients        StorageSizeCallback
	AuthCodes      StorageSizeCallback
	AccessTokens   StorageSizeCallback
	RefreshTokens  StorageSizeCallback
	Authorizations StorageSizeCallback
}

// RegisterStorageSizeCallbacks registers callbacks for the storage size
// gauges. Storage implementations call this from SetInstrumentation.
func (i *Instrumentation) RegisterStorageSizeCallbacks(cb StorageSizeCallbacks) error {
	m := i.metrics
	reg, err := i.Meter("storage").RegisterCallback(
		func(_ context.Context, observer metric.Observer) error {
			observe := func(g metric.Int64ObservableGauge, f StorageSizeCallback) {
				if f != nil {
					observer.ObserveInt64(g, f())
				}
			}
			observe(m.StorageClientsCount, cb.Clients)
			observe(m.StorageAuthCodesCount, cb.AuthCodes)
			observe(m.StorageAccessTokensCount, cb.AccessTokens)
			observe(m.StorageRefreshTokensCount, cb.RefreshTokens)
			observe(m.StorageAuthorizationsCount, cb.Authorizations)
			return nil
		},
		m.StorageClientsCount,
		m.StorageAuthCodesCount,
		m.StorageAccessTokensCount,
		m.StorageRefreshTokensCount,
		m.StorageAuthorizationsCount,
	)
	if err != nil {
		return fmt.Errorf("failed to register storage size callbacks: %w", err)
	}

	i.mu.Lock()
	i.registrations = append(i.registrations, reg)
	i.mu.Unlock()
	return nil
}
