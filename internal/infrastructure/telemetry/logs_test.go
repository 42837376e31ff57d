package telemetry_test

import (
	"context"
	"sync"
	"testing"

	"github.com/erp/customer-ledger/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// memoryLogExporter keeps exported record bodies
type memoryLogExporter struct {
	mu     sync.Mutex
	bodies []string
}

func (e *memoryLogExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.bodies = append(e.bodies, r.Body().AsString())
	}
	return nil
}

func (e *memoryLogExporter) Shutdown(context.Context) error   { return nil }
func (e *memoryLogExporter) ForceFlush(context.Context) error { return nil }

func (e *memoryLogExporter) exported() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.bodies...)
}

func TestLoggerProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{ServiceName: "customer-ledger-test"}, nil)
	require.NoError(t, err)
	assert.False(t, lp.IsEnabled())

	base := zap.NewNop()
	assert.Same(t, base, lp.Bridge(base, zapcore.InfoLevel))
	assert.NoError(t, lp.ForceFlush(ctx))
	assert.NoError(t, lp.Shutdown(ctx))
}

func TestLoggerProvider_BridgeTeesEntries(t *testing.T) {
	ctx := context.Background()
	exporter := &memoryLogExporter{}
	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:     true,
		ServiceName: "customer-ledger-test",
	}, zap.NewNop(), telemetry.WithLogExporter(exporter))
	require.NoError(t, err)
	require.True(t, lp.IsEnabled())

	core, local := observer.New(zapcore.DebugLevel)
	log := lp.Bridge(zap.New(core), zapcore.InfoLevel).With(zap.String("customer_id", "c1"))

	log.Debug("ledger fetched")
	log.Info("payment recorded")
	log.Warn("ledger not balanced")

	assert.Equal(t, 3, local.Len())
	assert.Equal(t, []string{"payment recorded", "ledger not balanced"}, exporter.exported())
	assert.NoError(t, lp.Shutdown(ctx))
}
