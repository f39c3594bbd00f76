package uplink

import (
	"context"
	"sync"
	"time"

	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/edgesync/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProcessorConfig holds configuration for the outbox processor
type ProcessorConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	MaxRetries       int
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultProcessorConfig returns default configuration
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		BatchSize:        100,
		PollInterval:     5 * time.Second,
		MaxRetries:       shared.DefaultMaxRetries,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Processor polls the outbox and hands queued uplink messages to a Sender.
// Failed deliveries back off exponentially until they are moved to the dead letters.
type Processor struct {
	repo    shared.OutboxRepository
	sender  Sender
	config  ProcessorConfig
	metrics *telemetry.SyncMetrics
	logger  *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ProcessorOption configures a Processor
type ProcessorOption func(*Processor)

// WithProcessorLogger sets the logger
func WithProcessorLogger(logger *zap.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithProcessorMetrics records delivery attempts
func WithProcessorMetrics(metrics *telemetry.SyncMetrics) ProcessorOption {
	return func(p *Processor) {
		p.metrics = metrics
	}
}

// NewProcessor creates a new outbox processor
func NewProcessor(repo shared.OutboxRepository, sender Sender, config ProcessorConfig, opts ...ProcessorOption) *Processor {
	p := &Processor{
		repo:   repo,
		sender: sender,
		config: config,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	def := DefaultProcessorConfig()
	if p.config.BatchSize <= 0 {
		p.config.BatchSize = def.BatchSize
	}
	if p.config.PollInterval <= 0 {
		p.config.PollInterval = def.PollInterval
	}
	if p.config.CleanupInterval <= 0 {
		p.config.CleanupInterval = def.CleanupInterval
	}
	return p
}

// Start starts the background processing
func (p *Processor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.processLoop(ctx)

	if p.config.CleanupEnabled {
		p.wg.Add(1)
		go p.cleanupLoop(ctx)
	}

	p.logger.Info("Uplink outbox processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
	)
	return nil
}

// Stop gracefully stops the processor
func (p *Processor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Uplink outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor) processLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch delivers one batch of pending entries and one batch of entries due for retry
func (p *Processor) ProcessBatch(ctx context.Context) {
	pending, err := p.repo.FindPending(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.Error("Failed to find pending uplink messages", zap.Error(err))
		return
	}
	if len(pending) > 0 {
		p.processEntries(ctx, pending)
	}

	retryable, err := p.repo.FindRetryable(ctx, time.Now(), p.config.BatchSize)
	if err != nil {
		p.logger.Error("Failed to find retryable uplink messages", zap.Error(err))
		return
	}
	if len(retryable) > 0 {
		p.processEntries(ctx, retryable)
	}
}

func (p *Processor) processEntries(ctx context.Context, entries []*shared.OutboxEntry) {
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}

	claimed, err := p.repo.MarkProcessing(ctx, ids)
	if err != nil {
		p.logger.Error("Failed to claim uplink messages", zap.Error(err))
		return
	}
	for _, entry := range claimed {
		p.deliver(ctx, entry)
	}
}

func (p *Processor) deliver(ctx context.Context, entry *shared.OutboxEntry) {
	if p.config.MaxRetries > 0 {
		entry.MaxRetries = p.config.MaxRetries
	}

	msg, err := decodeEntry(entry)
	if err == nil {
		err = p.sender.Send(ctx, msg, entry.Payload)
	}
	if err != nil {
		p.fail(ctx, entry, err)
		return
	}

	entry.MarkSent()
	p.record(ctx, entry, telemetry.OutcomeSuccess)
	if err := p.repo.Update(ctx, entry); err != nil {
		p.logger.Error("Failed to mark uplink message as sent",
			zap.String("entry_id", entry.ID.String()),
			zap.Error(err),
		)
		return
	}
	p.logger.Debug("Uplink message delivered",
		zap.Int32("uplink_msg_id", entry.UplinkMsgID),
		zap.String("request_type", entry.RequestType),
	)
}

func (p *Processor) fail(ctx context.Context, entry *shared.OutboxEntry, err error) {
	p.logger.Warn("Failed to deliver uplink message",
		zap.Int32("uplink_msg_id", entry.UplinkMsgID),
		zap.String("request_type", entry.RequestType),
		zap.Error(err),
	)
	entry.MarkFailed(err.Error())
	p.record(ctx, entry, telemetry.OutcomeFailed)
	if entry.IsDead() {
		p.logger.Error("Uplink message moved to dead letters",
			zap.String("entry_id", entry.ID.String()),
			zap.String("tenant_id", entry.TenantID.String()),
			zap.String("entity_type", entry.EntityType),
			zap.String("entity_id", entry.EntityID.String()),
			zap.Int("retry_count", entry.RetryCount),
			zap.String("last_error", entry.LastError),
		)
	}
	if updateErr := p.repo.Update(ctx, entry); updateErr != nil {
		p.logger.Error("Failed to update uplink message", zap.Error(updateErr))
	}
}

func (p *Processor) record(ctx context.Context, entry *shared.OutboxEntry, outcome telemetry.Outcome) {
	if p.metrics != nil {
		p.metrics.RecordUplinkDelivery(ctx, entry.RequestType, outcome)
	}
}

func (p *Processor) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Cleanup(ctx)
		}
	}
}

// Cleanup removes entries delivered before the retention window
func (p *Processor) Cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.CleanupRetention)
	deleted, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("Failed to clean up uplink outbox", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("Cleaned up uplink outbox",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
