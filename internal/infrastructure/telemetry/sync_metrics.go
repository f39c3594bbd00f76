package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// SyncMetrics tracks how change messages from edge installations are applied,
// which follow-up requests go back over the link and how the entity caches behave.
type SyncMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics
	downlinkMsgTotal    *Counter
	uplinkMsgTotal      *Counter
	uplinkDeliveryTotal *Counter
	followUpTotal       *Counter
	cacheLookupTotal    *Counter

	// Histogram metrics
	downlinkMsgDuration *Histogram
	uplinkQueueLatency  *Histogram

	// Gauge metrics
	outboxBacklog *Gauge

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	outboxProvider OutboxStatsProvider
}

// OutboxStatsProvider reports the uplink outbox backlog per status
type OutboxStatsProvider interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// SyncMetricsConfig holds configuration for sync metrics.
type SyncMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	CollectInterval time.Duration // Default: 1 minute
	OutboxProvider  OutboxStatsProvider
}

// NewSyncMetrics creates a new SyncMetrics instance.
func NewSyncMetrics(cfg SyncMetricsConfig) (*SyncMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sm := &SyncMetrics{
		meter:          cfg.Meter,
		logger:         logger,
		stopChan:       make(chan struct{}),
		outboxProvider: cfg.OutboxProvider,
	}

	var err error

	sm.downlinkMsgTotal, err = NewCounter(
		cfg.Meter,
		"edge_downlink_msg_total",
		"Total number of change messages applied from edge installations",
		"{messages}",
	)
	if err != nil {
		return nil, err
	}

	sm.uplinkMsgTotal, err = NewCounter(
		cfg.Meter,
		"edge_uplink_msg_total",
		"Total number of follow-up requests queued for edge installations",
		"{messages}",
	)
	if err != nil {
		return nil, err
	}

	sm.uplinkDeliveryTotal, err = NewCounter(
		cfg.Meter,
		"edge_uplink_delivery_total",
		"Total number of uplink outbox delivery attempts",
		"{attempts}",
	)
	if err != nil {
		return nil, err
	}

	sm.followUpTotal, err = NewCounter(
		cfg.Meter,
		"edge_followup_total",
		"Total number of follow-up pipelines completed",
		"{pipelines}",
	)
	if err != nil {
		return nil, err
	}

	sm.cacheLookupTotal, err = NewCounter(
		cfg.Meter,
		"edge_cache_lookup_total",
		"Total number of versioned cache operations by result",
		"{lookups}",
	)
	if err != nil {
		return nil, err
	}

	sm.downlinkMsgDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "edge_downlink_msg_duration_seconds",
		Description: "Time spent applying one change message",
		Unit:        "s",
		Boundaries:  []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})
	if err != nil {
		return nil, err
	}

	sm.uplinkQueueLatency, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "edge_uplink_queue_latency_seconds",
		Description: "Time from downlink queue start to follow-up request emission",
		Unit:        "s",
		Boundaries:  []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
	if err != nil {
		return nil, err
	}

	sm.outboxBacklog, err = NewGauge(
		cfg.Meter,
		"edge_uplink_outbox_entries",
		"Number of uplink outbox entries per status",
		"{entries}",
	)
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// Outcome labels a processed message or pipeline.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// RecordDownlinkMsg records one applied change message and how long it took.
func (sm *SyncMetrics) RecordDownlinkMsg(ctx context.Context, entityType, msgType string, outcome Outcome, d time.Duration) {
	sm.downlinkMsgTotal.Inc(ctx,
		AttrEntityType.String(entityType),
		AttrMsgType.String(msgType),
		AttrOutcome.String(string(outcome)),
	)
	sm.downlinkMsgDuration.RecordDuration(ctx, d, AttrEntityType.String(entityType))
}

// RecordUplinkMsg records an emitted follow-up request.
// queueLatency is measured from the downlink queue start timestamp; zero skips the histogram.
func (sm *SyncMetrics) RecordUplinkMsg(ctx context.Context, requestType string, queueLatency time.Duration) {
	sm.uplinkMsgTotal.Inc(ctx, AttrRequestType.String(requestType))
	if queueLatency > 0 {
		sm.uplinkQueueLatency.RecordDuration(ctx, queueLatency, AttrRequestType.String(requestType))
	}
}

// RecordUplinkDelivery records one attempt to hand a queued uplink message to the transport.
func (sm *SyncMetrics) RecordUplinkDelivery(ctx context.Context, requestType string, outcome Outcome) {
	sm.uplinkDeliveryTotal.Inc(ctx,
		AttrRequestType.String(requestType),
		AttrOutcome.String(string(outcome)),
	)
}

// RecordFollowUp records a completed follow-up pipeline.
func (sm *SyncMetrics) RecordFollowUp(ctx context.Context, entityType string, outcome Outcome) {
	sm.followUpTotal.Inc(ctx,
		AttrEntityType.String(entityType),
		AttrOutcome.String(string(outcome)),
	)
}

// RecordCacheLookup records a cache operation result (hit, miss, corrupt, rejected).
func (sm *SyncMetrics) RecordCacheLookup(ctx context.Context, cacheName, result string) {
	sm.cacheLookupTotal.Inc(ctx,
		AttrCacheName.String(cacheName),
		AttrCacheResult.String(result),
	)
}

// RecordOutboxBacklog records the number of outbox entries in a status.
func (sm *SyncMetrics) RecordOutboxBacklog(ctx context.Context, status string, count int64) {
	sm.outboxBacklog.Record(ctx, count, AttrOutboxStatus.String(status))
}

// StartPeriodicCollection starts periodic collection of the outbox backlog gauge.
// This is non-blocking - use Stop() to stop collection.
func (sm *SyncMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	sm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = time.Minute
		}

		go sm.runPeriodicCollection(ctx, interval)
	})
}

func (sm *SyncMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sm.collectOutboxMetrics(ctx)

	for {
		select {
		case <-sm.stopChan:
			sm.logger.Info("Stopping periodic sync metrics collection")
			return
		case <-ctx.Done():
			sm.logger.Info("Context cancelled, stopping periodic sync metrics collection")
			return
		case <-ticker.C:
			sm.collectOutboxMetrics(ctx)
		}
	}
}

func (sm *SyncMetrics) collectOutboxMetrics(ctx context.Context) {
	if sm.outboxProvider == nil {
		sm.logger.Debug("No outbox provider configured, skipping outbox metrics collection")
		return
	}

	counts, err := sm.outboxProvider.CountByStatus(ctx)
	if err != nil {
		sm.logger.Warn("Failed to count outbox entries", zap.Error(err))
		return
	}
	for status, count := range counts {
		sm.RecordOutboxBacklog(ctx, status, count)
	}
}

// Stop stops the periodic collection.
func (sm *SyncMetrics) Stop() {
	sm.stopOnce.Do(func() {
		close(sm.stopChan)
	})
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "telemetry", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}

// Sync attribute keys
var (
	AttrEntityType   = attribute.Key("entity_type")
	AttrMsgType      = attribute.Key("msg_type")
	AttrRequestType  = attribute.Key("request_type")
	AttrOutcome      = attribute.Key("outcome")
	AttrCacheName    = attribute.Key("cache")
	AttrCacheResult  = attribute.Key("result")
	AttrOutboxStatus = attribute.Key("outbox_status")
)
