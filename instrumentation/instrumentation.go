package instrumentation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceName is used when Config.ServiceName is empty.
	DefaultServiceName = "extension-oauth"

	// DefaultServiceVersion is used when Config.ServiceVersion is empty.
	DefaultServiceVersion = "unknown"

	// ExporterPrometheus selects the Prometheus pull exporter.
	ExporterPrometheus = "prometheus"

	instrumentationPrefix = "github.com/droneregistry/extension-oauth/"
)

// Config holds instrumentation configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Enabled switches from no-op providers to the OpenTelemetry SDK.
	Enabled bool

	// LogClientIPs allows client addresses as span attributes.
	LogClientIPs bool

	// MetricsExporter is "" (SDK only) or ExporterPrometheus.
	MetricsExporter string

	// MetricReader is an additional reader registered with the meter
	// provider, e.g. a ManualReader in tests or a periodic OTLP reader.
	MetricReader sdkmetric.Reader

	// SpanProcessors are registered with the tracer provider.
	SpanProcessors []sdktrace.SpanProcessor

	// Resource overrides the default service resource.
	Resource *resource.Resource
}

// Instrumentation owns the meter and tracer providers and the metric
// instruments created from them.
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	promHandler    http.Handler

	metrics *Metrics

	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// New creates an Instrumentation for config.
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = DefaultServiceVersion
	}
	if config.MetricsExporter != "" && config.MetricsExporter != ExporterPrometheus {
		return nil, fmt.Errorf("unsupported metrics exporter %q", config.MetricsExporter)
	}

	res := config.Resource
	if res == nil {
		var err error
		res, err = resource.New(context.Background(),
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
		if err := inst.initializeProviders(); err != nil {
			return nil, fmt.Errorf("failed to initialize providers: %w", err)
		}
	} else {
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

func (i *Instrumentation) initializeProviders() error {
	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(i.resource)}

	if i.config.MetricsExporter == ExporterPrometheus {
		registry := prometheus.NewRegistry()
		exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			return fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		meterOpts = append(meterOpts, sdkmetric.WithReader(exporter))
		i.promHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}
	if i.config.MetricReader != nil {
		meterOpts = append(meterOpts, sdkmetric.WithReader(i.config.MetricReader))
	}

	mp := sdkmetric.NewMeterProvider(meterOpts...)
	i.meterProvider = mp
	i.shutdownFuncs = append(i.shutdownFuncs, mp.Shutdown)

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(i.resource)}
	for _, sp := range i.config.SpanProcessors {
		traceOpts = append(traceOpts, sdktrace.WithSpanProcessor(sp))
	}
	tp := sdktrace.NewTracerProvider(traceOpts...)
	i.tracerProvider = tp
	i.shutdownFuncs = append(i.shutdownFuncs, tp.Shutdown)

	return nil
}

// Shutdown flushes and stops the providers. Only the first call has effect.
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	var errs []error
	i.shutdownOnce.Do(func() {
		for _, fn := range i.shutdownFuncs {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// Meter returns the meter for scope ("http", "server", "storage", "security").
func (i *Instrumentation) Meter(scope string) metric.Meter {
	return i.meterProvider.Meter(instrumentationPrefix + scope)
}

// Tracer returns the tracer for scope.
func (i *Instrumentation) Tracer(scope string) trace.Tracer {
	return i.tracerProvider.Tracer(instrumentationPrefix + scope)
}

// Metrics returns the instrument holder.
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// MeterProvider returns the underlying meter provider.
func (i *Instrumentation) MeterProvider() metric.MeterProvider {
	return i.meterProvider
}

// TracerProvider returns the underlying tracer provider.
func (i *Instrumentation) TracerProvider() trace.TracerProvider {
	return i.tracerProvider
}

// PrometheusHandler serves the Prometheus exposition, or nil when the
// Prometheus exporter is not configured.
func (i *Instrumentation) PrometheusHandler() http.Handler {
	return i.promHandler
}

// ShouldLogClientIPs reports whether client addresses may be attached to spans.
func (i *Instrumentation) ShouldLogClientIPs() bool {
	return i.config.LogClientIPs
}

// GaugeCallback reports the current value of an observable gauge.
type GaugeCallback func() int64

// RegisterCodeStoreSizeCallback reports the number of pending authorization
// codes held by an in-process store.
func (i *Instrumentation) RegisterCodeStoreSizeCallback(cb GaugeCallback) error {
	return i.registerGauge("storage", i.metrics.StorageCodesPending, cb)
}

// RegisterRateLimiterCallback reports the number of identifiers tracked by
// the rate limiter.
func (i *Instrumentation) RegisterRateLimiterCallback(cb GaugeCallback) error {
	return i.registerGauge("security", i.metrics.RateLimitActiveLimiters, cb)
}

func (i *Instrumentation) registerGauge(scope string, gauge metric.Int64ObservableGauge, cb GaugeCallback) error {
	if cb == nil {
		return errors.New("gauge callback must not be nil")
	}
	_, err := i.Meter(scope).RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(gauge, cb())
			return nil
		},
		gauge,
	)
	return err
}
