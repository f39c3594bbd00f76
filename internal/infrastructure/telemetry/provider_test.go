package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetup_Disabled(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.InfoLevel)

	p, err := Setup(ctx, Config{ServiceName: "edgesync-test", ExportLogs: true}, zap.New(core))
	require.NoError(t, err)

	assert.False(t, p.Exporting())
	assert.NotNil(t, p.Tracer("test"))
	assert.NotNil(t, p.Meter("test"))
	local := zap.NewExample()
	assert.Same(t, local, p.Bridge(local, zapcore.InfoLevel))
	assert.NoError(t, p.Shutdown(ctx))
	assert.Equal(t, 1, logs.FilterMessage("Telemetry export disabled").Len())

	var none *Providers
	assert.False(t, none.Exporting())
	assert.Same(t, local, none.Bridge(local, zapcore.InfoLevel))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "root:AlwaysOnSampler,")
	assert.Contains(t, sampler(0).Description(), "root:AlwaysOffSampler,")
	assert.Contains(t, sampler(0.25).Description(), "root:TraceIDRatioBased{0.25},")
}

func TestMinLevelCore(t *testing.T) {
	inner, logs := observer.New(zapcore.DebugLevel)
	core := minLevelCore{Core: inner, min: zapcore.WarnLevel}
	log := zap.New(core).With(zap.String("tenant_id", "t1"))

	log.Debug("dropped")
	log.Info("dropped")
	log.Warn("kept")
	log.Error("kept")

	require.Equal(t, 2, logs.Len())
	for _, entry := range logs.All() {
		assert.Equal(t, "kept", entry.Message)
		assert.Equal(t, "t1", entry.ContextMap()["tenant_id"])
	}
	assert.False(t, core.Enabled(zapcore.InfoLevel))
	assert.True(t, core.Enabled(zapcore.ErrorLevel))
}
