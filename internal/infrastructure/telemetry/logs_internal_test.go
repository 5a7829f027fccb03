package telemetry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func (e *recordingExporter) bodies() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.records))
	for _, r := range e.records {
		out = append(out, r.Body().AsString())
	}
	return out
}

func TestBridgeLogger_ExportsAtOrAboveLevel(t *testing.T) {
	exp := &recordingExporter{}
	sdk := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp)))
	lp := &LoggerProvider{
		lifecycle: lifecycle{signal: "logs", sdk: sdk, logger: zap.NewNop()},
		provider:  sdk,
	}
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })

	obsCore, local := observer.New(zapcore.DebugLevel)
	logger := BridgeLogger(zap.New(obsCore), lp, "crmsync", zapcore.WarnLevel)

	logger.Debug("Fetched page")
	logger.Info("Phase finished")
	logger.With(zap.String("run_id", "r1")).Warn("Owner not mapped")
	logger.Error("Phase aborted")

	assert.Equal(t, 4, local.Len())
	require.NoError(t, lp.ForceFlush(context.Background()))
	assert.Equal(t, []string{"Owner not mapped", "Phase aborted"}, exp.bodies())
}

func TestMinLevelCore_Enabled(t *testing.T) {
	obsCore, _ := observer.New(zapcore.DebugLevel)
	core := &minLevelCore{Core: obsCore, level: zapcore.InfoLevel}

	assert.False(t, core.Enabled(zapcore.DebugLevel))
	assert.True(t, core.Enabled(zapcore.InfoLevel))
	assert.True(t, core.With(nil).Enabled(zapcore.ErrorLevel))
	assert.False(t, core.With(nil).Enabled(zapcore.DebugLevel))
}
