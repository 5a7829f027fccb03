package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// ExportConfig is the OTLP collector target shared by traces, metrics and logs
type ExportConfig struct {
	Enabled           bool
	CollectorEndpoint string // gRPC host:port
	ServiceName       string
	ServiceVersion    string
	Insecure          bool
}

func (c ExportConfig) resource() (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(c.ServiceName),
			semconv.ServiceVersion(c.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}
	return res, nil
}

// sdkProvider is the lifecycle every OpenTelemetry SDK provider exposes
type sdkProvider interface {
	Shutdown(ctx context.Context) error
	ForceFlush(ctx context.Context) error
}

// lifecycle flushes and stops one signal's SDK provider. A zero sdk means the
// signal is disabled and every call is a no-op.
type lifecycle struct {
	signal string
	sdk    sdkProvider
	logger *zap.Logger
}

// IsEnabled reports whether the signal is exported
func (l *lifecycle) IsEnabled() bool {
	return l.sdk != nil
}

// Shutdown flushes pending data and stops the exporter. Calling it again is
// a no-op.
func (l *lifecycle) Shutdown(ctx context.Context) error {
	if l.sdk == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	sdk := l.sdk
	l.sdk = nil
	if err := sdk.Shutdown(ctx); err != nil {
		l.logger.Error("Telemetry shutdown failed", zap.String("signal", l.signal), zap.Error(err))
		return fmt.Errorf("shutdown %s provider: %w", l.signal, err)
	}
	l.logger.Debug("Telemetry provider stopped", zap.String("signal", l.signal))
	return nil
}

// ForceFlush exports everything buffered so far
func (l *lifecycle) ForceFlush(ctx context.Context) error {
	if l.sdk == nil {
		return nil
	}
	return l.sdk.ForceFlush(ctx)
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
