package edgesync

import (
	"context"
	"fmt"
	"time"

	"github.com/edgesync/backend/internal/domain/edge"
	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/edgesync/backend/internal/infrastructure/telemetry"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// StageResult accumulates what a follow-up pipeline produced so far
type StageResult struct {
	Uplinks []*edge.UplinkMsg
	Events  []shared.DomainEvent
}

// WithUplink returns a copy of r with msg appended
func (r StageResult) WithUplink(msg *edge.UplinkMsg) StageResult {
	r.Uplinks = append(append([]*edge.UplinkMsg(nil), r.Uplinks...), msg)
	return r
}

// WithEvent returns a copy of r with event appended
func (r StageResult) WithEvent(event shared.DomainEvent) StageResult {
	r.Events = append(append([]shared.DomainEvent(nil), r.Events...), event)
	return r
}

// Stage is one step of a follow-up pipeline. It receives the result of the previous stage.
type Stage func(ctx context.Context, prev StageResult) (StageResult, error)

// Pipeline is an ordered list of stages run after a storage mutation.
// The first failing stage stops the pipeline.
type Pipeline struct {
	name   string
	stages []Stage
}

// NewPipeline creates a pipeline
func NewPipeline(name string, stages ...Stage) *Pipeline {
	return &Pipeline{name: name, stages: stages}
}

// Then appends a stage
func (p *Pipeline) Then(stage Stage) *Pipeline {
	p.stages = append(p.stages, stage)
	return p
}

// Name returns the pipeline name
func (p *Pipeline) Name() string {
	return p.name
}

// Len returns the number of stages
func (p *Pipeline) Len() int {
	return len(p.stages)
}

func (p *Pipeline) run(ctx context.Context) (StageResult, error) {
	var res StageResult
	for i, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		next, err := stage(ctx, res)
		if err != nil {
			return res, fmt.Errorf("%s stage %d: %w", p.name, i+1, err)
		}
		res = next
	}
	return res, nil
}

// FollowUp is the handle of a pipeline running in the background
type FollowUp struct {
	done   chan struct{}
	result StageResult
	err    error
}

func newFollowUp() *FollowUp {
	return &FollowUp{done: make(chan struct{})}
}

// CompletedFollowUp returns a handle that is already resolved with res
func CompletedFollowUp(res StageResult) *FollowUp {
	f := newFollowUp()
	f.resolve(res, nil)
	return f
}

func (f *FollowUp) resolve(res StageResult, err error) {
	f.result = res
	f.err = err
	close(f.done)
}

// Done is closed once the pipeline has finished
func (f *FollowUp) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the pipeline finishes or ctx is done.
// A timeout here does not cancel the pipeline.
func (f *FollowUp) Wait(ctx context.Context) (StageResult, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return StageResult{}, ctx.Err()
	}
}

// Executor runs follow-up pipelines in the background with bounded concurrency
type Executor struct {
	wg      conc.WaitGroup
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  *zap.Logger
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the logger
func WithExecutorLogger(logger *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithStageTimeout bounds the total run time of each pipeline
func WithStageTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = d
	}
}

// NewExecutor creates an executor running at most workers pipelines at once
func NewExecutor(workers int, opts ...ExecutorOption) *Executor {
	if workers <= 0 {
		workers = 1
	}
	e := &Executor{
		sem:     semaphore.NewWeighted(int64(workers)),
		timeout: time.Minute,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run starts p and returns immediately. The pipeline keeps the values of ctx but not
// its cancellation, so it outlives the request that triggered it.
func (e *Executor) Run(ctx context.Context, p *Pipeline) *FollowUp {
	if p == nil || p.Len() == 0 {
		return CompletedFollowUp(StageResult{})
	}

	f := newFollowUp()
	runCtx := context.WithoutCancel(ctx)
	e.wg.Go(func() {
		if err := e.sem.Acquire(runCtx, 1); err != nil {
			f.resolve(StageResult{}, err)
			return
		}
		defer e.sem.Release(1)

		ctx, cancel := context.WithTimeout(runCtx, e.timeout)
		defer cancel()
		ctx, span := telemetry.StartSpan(ctx, "sync.follow_up", attribute.String(telemetry.SpanAttrPipeline, p.name))
		defer span.End()

		var (
			res StageResult
			err error
			pc  panics.Catcher
		)
		pc.Try(func() {
			res, err = p.run(ctx)
		})
		if r := pc.Recovered(); r != nil {
			err = fmt.Errorf("%s: %w", p.name, r.AsError())
		}
		if err != nil {
			telemetry.RecordError(span, err)
			e.logger.Warn("Follow-up pipeline failed",
				zap.String("pipeline", p.name),
				zap.Error(err),
			)
		}
		f.resolve(res, err)
	})
	return f
}

// Wait blocks until every started pipeline has finished
func (e *Executor) Wait() {
	e.wg.Wait()
}
