// Package telemetry wires structured log export to an OTLP collector.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/praktikumlab/go-praktikum/logger"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ShutdownFunc flushes and tears down the exporter pipeline.
type ShutdownFunc func()

// New builds an OTLP-backed logger. collectorURL is the base URL of the
// collector; the /v1/logs path is appended. authToken, when non-empty, is sent
// as a bearer Authorization header.
func New(ctx context.Context, collectorURL, authToken, serviceName string) (logger.Logger, ShutdownFunc, error) {
	u, err := url.Parse(collectorURL)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: parsing collector url: %w", err)
	}
	u.Path = "/v1/logs"

	res, err := resource.New(
		ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: creating resource: %w", err)
	}

	headers := make(map[string]string)
	if authToken != "" {
		headers["Authorization"] = "Bearer " + authToken
	}
	opts := []otlploghttp.Option{
		otlploghttp.WithEndpointURL(u.String()),
		otlploghttp.WithHeaders(headers),
		otlploghttp.WithTimeout(10 * time.Second),
		otlploghttp.WithCompression(otlploghttp.GzipCompression),
	}
	if u.Scheme == "http" {
		opts = append(opts, otlploghttp.WithInsecure())
	}

	exporter, err := otlploghttp.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: creating log exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	otelLogger := logger.NewOtelLogger(provider.Logger(serviceName), logger.LevelTrace)

	return otelLogger, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
	}, nil
}
