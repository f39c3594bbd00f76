package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBConfig configures database instrumentation.
type DBConfig struct {
	TraceEnabled       bool          // register otelgorm spans
	LogQueryVariables  bool          // include bound values in span statements
	DBName             string        // reported as db.name
	SlowQueryThreshold time.Duration // Default: 200ms
	PoolStatsInterval  time.Duration // Default: 15s
}

// DBInstrumentation is a GORM plugin recording query metrics, annotating
// query spans and sampling connection pool statistics.
type DBInstrumentation struct {
	config DBConfig
	logger *zap.Logger

	queryTotal      *Counter
	queryDuration   *Histogram
	slowQueryTotal  *Counter
	poolConnections *Gauge

	sqlDB    *sql.DB
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type dbStartKey struct{}

// NewDBInstrumentation creates the plugin. Register it with db.Use.
func NewDBInstrumentation(meter metric.Meter, cfg DBConfig, logger *zap.Logger) (*DBInstrumentation, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.PoolStatsInterval <= 0 {
		cfg.PoolStatsInterval = 15 * time.Second
	}

	d := &DBInstrumentation{config: cfg, logger: logger, stopCh: make(chan struct{})}
	var err error
	if d.queryTotal, err = NewCounter(meter, "db_query_total", "Total number of database queries by operation", "{query}"); err != nil {
		return nil, err
	}
	if d.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database query latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if d.slowQueryTotal, err = NewCounter(meter, "db_slow_query_total", "Total number of queries above the slow threshold", "{query}"); err != nil {
		return nil, err
	}
	if d.poolConnections, err = NewGauge(meter, "db_pool_connections", "Connections in the pool by state", "{connection}"); err != nil {
		return nil, err
	}
	return d, nil
}

// Name implements gorm.Plugin.
func (d *DBInstrumentation) Name() string {
	return "edgesync:db_instrumentation"
}

// Initialize implements gorm.Plugin.
func (d *DBInstrumentation) Initialize(db *gorm.DB) error {
	if d.config.TraceEnabled {
		opts := []otelgorm.Option{otelgorm.WithDBName(d.config.DBName)}
		if !d.config.LogQueryVariables {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return err
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	d.sqlDB = sqlDB

	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("edgesync:before_create", d.before),
		cb.Query().Before("gorm:query").Register("edgesync:before_query", d.before),
		cb.Update().Before("gorm:update").Register("edgesync:before_update", d.before),
		cb.Delete().Before("gorm:delete").Register("edgesync:before_delete", d.before),
		cb.Row().Before("gorm:row").Register("edgesync:before_row", d.before),
		cb.Raw().Before("gorm:raw").Register("edgesync:before_raw", d.before),
		cb.Create().After("gorm:create").Register("edgesync:after_create", d.after("INSERT")),
		cb.Query().After("gorm:query").Register("edgesync:after_query", d.after("SELECT")),
		cb.Update().After("gorm:update").Register("edgesync:after_update", d.after("UPDATE")),
		cb.Delete().After("gorm:delete").Register("edgesync:after_delete", d.after("DELETE")),
		cb.Row().After("gorm:row").Register("edgesync:after_row", d.after("")),
		cb.Raw().After("gorm:raw").Register("edgesync:after_raw", d.after("")),
	)
}

func (d *DBInstrumentation) before(db *gorm.DB) {
	if db.Statement.Context == nil {
		db.Statement.Context = context.Background()
	}
	db.Statement.Context = context.WithValue(db.Statement.Context, dbStartKey{}, time.Now())
}

func (d *DBInstrumentation) after(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			return
		}
		start, ok := ctx.Value(dbStartKey{}).(time.Time)
		if !ok {
			return
		}
		elapsed := time.Since(start)
		op := operation
		if op == "" {
			op = detectOperation(db.Statement.SQL.String())
		}
		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}

		d.queryTotal.Inc(ctx, AttrDBOperation.String(op))
		d.queryDuration.RecordDuration(ctx, elapsed, AttrDBOperation.String(op))
		slow := elapsed > d.config.SlowQueryThreshold
		if slow {
			d.slowQueryTotal.Inc(ctx, AttrDBTable.String(table))
		}

		span := trace.SpanFromContext(ctx)
		if !span.IsRecording() {
			return
		}
		span.SetAttributes(
			attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
			attribute.String("db.sql.table", table),
		)
		if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
			span.RecordError(db.Error)
			span.SetStatus(codes.Error, db.Error.Error())
		}
		if slow {
			span.SetAttributes(attribute.Bool("db.slow_query", true))
			span.AddEvent("slow_query", trace.WithAttributes(
				attribute.Int64("duration_ms", elapsed.Milliseconds()),
				attribute.Int64("threshold_ms", d.config.SlowQueryThreshold.Milliseconds()),
			))
		}
	}
}

// StartPoolStats samples pool statistics until ctx is done or Stop is called.
func (d *DBInstrumentation) StartPoolStats(ctx context.Context) {
	if d.sqlDB == nil {
		d.logger.Warn("Pool stats not started: plugin is not registered")
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.config.PoolStatsInterval)
		defer ticker.Stop()

		d.collectPoolStats(ctx)
		for {
			select {
			case <-ticker.C:
				d.collectPoolStats(ctx)
			case <-d.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (d *DBInstrumentation) collectPoolStats(ctx context.Context) {
	stats := d.sqlDB.Stats()
	d.poolConnections.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	d.poolConnections.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	d.poolConnections.Record(ctx, int64(stats.OpenConnections), AttrDBState.String("open"))
	d.poolConnections.Record(ctx, int64(stats.MaxOpenConnections), AttrDBState.String("max"))
}

// Stop ends pool sampling. Safe to call more than once.
func (d *DBInstrumentation) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		d.wg.Wait()
	})
}

func detectOperation(statement string) string {
	statement = strings.ToUpper(strings.TrimSpace(statement))
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(statement, op) {
			return op
		}
	}
	return "OTHER"
}

var _ gorm.Plugin = (*DBInstrumentation)(nil)
