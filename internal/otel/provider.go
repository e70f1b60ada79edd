// Package otel provides OpenTelemetry tracer provider initialization and management.
package otel

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/mrzor/strace-summary/internal/config"
)

// exportTimeout bounds exporter creation and each export request.
const exportTimeout = 10 * time.Second

// logProxyConfig reports the proxy settings the HTTP exporter will honor.
func logProxyConfig(logger zerolog.Logger) {
	httpProxy := os.Getenv("HTTP_PROXY")
	if httpProxy == "" {
		httpProxy = os.Getenv("http_proxy")
	}
	httpsProxy := os.Getenv("HTTPS_PROXY")
	if httpsProxy == "" {
		httpsProxy = os.Getenv("https_proxy")
	}

	if httpProxy != "" || httpsProxy != "" {
		logger.Debug().Str("http_proxy", httpProxy).Str("https_proxy", httpsProxy).Msg("proxy configuration")
	} else {
		logger.Debug().Msg("no proxy configured (HTTP_PROXY/HTTPS_PROXY not set)")
	}
}

// NewResource builds the service resource from cfg.
func NewResource(ctx context.Context, cfg *config.OTELConfig) (*resource.Resource, error) {
	opts := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	}
	if customAttrs := cfg.ParseResourceAttributes(); len(customAttrs) > 0 {
		opts = append(opts, resource.WithAttributes(customAttrs...))
	}

	res, err := resource.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// InitProvider creates a tracer provider exporting over OTLP/HTTP.
//
// The HTTP client honors HTTP_PROXY, HTTPS_PROXY and NO_PROXY through the
// standard net/http transport. Connectivity is verified on the first export.
// extra options are applied after the exporter and resource.
func InitProvider(ctx context.Context, cfg *config.OTELConfig, logger zerolog.Logger, extra ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	ctx, cancel := context.WithTimeout(ctx, exportTimeout)
	defer cancel()

	endpoint := cfg.GetEndpoint()

	logger.Info().
		Str("service", cfg.ServiceName).
		Str("endpoint", endpoint).
		Str("otlp_endpoint", cfg.ExporterEndpoint).
		Str("otlp_traces_endpoint", cfg.TracesEndpoint).
		Str("resource_attributes", cfg.ResourceAttributes).
		Msg("OTEL configuration")
	logProxyConfig(logger)

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithTimeout(exportTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	res, err := NewResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := append([]sdktrace.TracerProviderOption{
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	}, extra...)
	tp := sdktrace.NewTracerProvider(opts...)

	return tp, nil
}

// ShutdownProvider gracefully shuts down the tracer provider, flushing any remaining spans.
func ShutdownProvider(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}

	if err := tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}

	return nil
}
