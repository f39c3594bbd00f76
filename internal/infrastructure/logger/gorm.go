package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

const defaultSlowSQL = 200 * time.Millisecond

// GormLogger writes GORM output to zap. Statements are tagged with the sync
// identifiers and trace ids found in their context.
type GormLogger struct {
	log         *zap.Logger
	level       gormlogger.LogLevel
	slow        time.Duration
	logNotFound bool
}

// GormLoggerOption configures a GormLogger
type GormLoggerOption func(*GormLogger)

// WithSlowThreshold sets the duration above which a statement is logged as slow. Zero disables it.
func WithSlowThreshold(d time.Duration) GormLoggerOption {
	return func(l *GormLogger) { l.slow = d }
}

// WithIgnoreRecordNotFoundError controls whether lookups that found nothing are logged.
func WithIgnoreRecordNotFoundError(ignore bool) GormLoggerOption {
	return func(l *GormLogger) { l.logNotFound = !ignore }
}

// NewGormLogger creates a GORM logger at level
func NewGormLogger(log *zap.Logger, level gormlogger.LogLevel, opts ...GormLoggerOption) *GormLogger {
	l := &GormLogger{log: log.Named("gorm"), level: level, slow: defaultSlowSQL}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LogMode returns a copy logging at level.
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *l
	c.level = level
	return &c
}

func (l *GormLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.sugar(ctx).Infof(msg, args...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.sugar(ctx).Warnf(msg, args...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.sugar(ctx).Errorf(msg, args...)
	}
}

func (l *GormLogger) sugar(ctx context.Context) *zap.SugaredLogger {
	return WithTraceContext(ctx, l.log).Sugar()
}

// Trace logs a finished statement: failures at error, slow statements at
// warn and everything else at debug when the level is Info.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	var (
		msg   string
		write func(string, ...zap.Field)
		extra zap.Field
	)
	log := WithTraceContext(ctx, l.log)
	switch {
	case err != nil && l.level >= gormlogger.Error:
		if errors.Is(err, gormlogger.ErrRecordNotFound) && !l.logNotFound {
			return
		}
		msg, write, extra = "SQL Error", log.Error, zap.Error(err)
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		msg, write, extra = "Slow SQL", log.Warn, zap.Duration("threshold", l.slow)
	case l.level >= gormlogger.Info:
		msg, write, extra = "SQL Query", log.Debug, zap.Skip()
	default:
		return
	}

	sql, rows := fc()
	fields := append(Fields(ctx),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
		extra,
	)
	write(msg, fields...)
}

// MapGormLogLevel maps a service log level to the GORM level. Unknown names map to Warn.
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

var _ gormlogger.Interface = (*GormLogger)(nil)
