package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func sqlFn(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_Trace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Info, WithSlowThreshold(50*time.Millisecond))

	ctx := WithDownlinkMsgID(WithTenantID(context.Background(), "tenant-a"), 3)

	gl.Trace(ctx, time.Now(), sqlFn("SELECT 1", 1), nil)
	gl.Trace(ctx, time.Now().Add(-time.Second), sqlFn("SELECT * FROM assets", 10), nil)
	gl.Trace(ctx, time.Now(), sqlFn("INSERT INTO users", 0), errors.New("duplicate key"))
	gl.Trace(ctx, time.Now(), sqlFn("SELECT * FROM users", 0), gormlogger.ErrRecordNotFound)

	entries := logs.All()
	assert.Len(t, entries, 3)
	assert.Equal(t, "SQL Query", entries[0].Message)
	assert.Equal(t, "Slow SQL", entries[1].Message)
	assert.Equal(t, "SQL Error", entries[2].Message)
	assert.Equal(t, "tenant-a", entries[0].ContextMap()["tenant_id"])
	assert.Equal(t, int32(3), entries[0].ContextMap()["downlink_msg_id"])
}

func TestGormLogger_LevelsAndNotFound(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Silent, WithIgnoreRecordNotFoundError(false))

	gl.Trace(context.Background(), time.Now(), sqlFn("SELECT 1", 1), errors.New("ignored when silent"))
	assert.Zero(t, logs.Len())

	verbose := gl.LogMode(gormlogger.Error)
	verbose.Trace(context.Background(), time.Now(), sqlFn("SELECT 1", 0), gormlogger.ErrRecordNotFound)
	verbose.Info(context.Background(), "not logged at error level")
	verbose.Error(context.Background(), "migration %s failed", "0002")

	assert.Equal(t, 2, logs.Len())
	assert.Equal(t, "migration 0002 failed", logs.All()[1].Message)
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("anything"))
}
