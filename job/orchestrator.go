// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package job owns analysis runs end to end: persisted state machine,
// background execution, cooperative cancellation, and chat over
// completed results. A job moves queued -> running -> one terminal
// state; terminal states never transition again.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/poiesic/reviewlens/ai"
	"github.com/poiesic/reviewlens/consolidate"
	"github.com/poiesic/reviewlens/core"
	"github.com/poiesic/reviewlens/extract"
	"github.com/poiesic/reviewlens/fetch"
	"github.com/poiesic/reviewlens/storage"
	"github.com/poiesic/reviewlens/trend"
)

// Defaults for run supervision.
const (
	DefaultJobTimeout  = 30 * time.Minute
	DefaultGracePeriod = 500 * time.Millisecond
)

// Phase names reported while a job is running. Each phase owns a fixed
// progress window so callers can render a single 0-100 bar.
const (
	PhaseFetch       = "fetch"
	PhaseExtract     = "extract"
	PhaseConsolidate = "consolidate"
	PhaseMap         = "map"
	PhaseReport      = "report"
)

var (
	// ErrJobNotCompleted indicates a result or chat request against a
	// job that hasn't completed.
	ErrJobNotCompleted = errors.New("job has not completed")

	// ErrJobNotRetryable indicates retry on a job that isn't in a
	// failed or cancelled state.
	ErrJobNotRetryable = errors.New("only failed or cancelled jobs can be retried")

	// ErrChatUnavailable indicates Ask was called without a configured
	// completion backend.
	ErrChatUnavailable = errors.New("chat backend not configured")
)

// Orchestrator runs analysis jobs against the pipeline components.
type Orchestrator struct {
	jobs      storage.JobRepository
	datasets  storage.DatasetRepository
	fetcher   *fetch.Manager
	pipeline  *extract.Pipeline
	engine    *consolidate.Engine
	mapper    *trend.Mapper
	completer ai.Completer

	jobTimeout  time.Duration
	gracePeriod time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup

	// persistMu makes the terminal-state check and the job write one
	// atomic step across the run goroutine and Cancel.
	persistMu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithJobTimeout bounds one job's total wall-clock time.
// Default is DefaultJobTimeout.
func WithJobTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.jobTimeout = d
		}
	}
}

// WithGracePeriod sets how long Cancel waits for a running job to
// observe the signal before force-marking it cancelled.
func WithGracePeriod(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.gracePeriod = d
		}
	}
}

// WithCompleter sets the completion backend used for chat over results.
func WithCompleter(completer ai.Completer) Option {
	return func(o *Orchestrator) {
		o.completer = completer
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator wires the pipeline components into a job runner.
func NewOrchestrator(jobs storage.JobRepository, datasets storage.DatasetRepository, fetcher *fetch.Manager, pipeline *extract.Pipeline, engine *consolidate.Engine, mapper *trend.Mapper, opts ...Option) (*Orchestrator, error) {
	if jobs == nil || datasets == nil {
		return nil, errors.New("job and dataset repositories are required")
	}
	if fetcher == nil || pipeline == nil || engine == nil || mapper == nil {
		return nil, errors.New("all pipeline components are required")
	}

	o := &Orchestrator{
		jobs:        jobs,
		datasets:    datasets,
		fetcher:     fetcher,
		pipeline:    pipeline,
		engine:      engine,
		mapper:      mapper,
		jobTimeout:  DefaultJobTimeout,
		gracePeriod: DefaultGracePeriod,
		logger:      slog.Default().With("component", "orchestrator"),
		cancels:     make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Submit validates the request, persists a queued job, and starts its
// background run. Returns the queued job snapshot.
func (o *Orchestrator) Submit(ctx context.Context, namespace string, start, end time.Time) (*core.Job, error) {
	if err := core.ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if err := core.ValidateDateRange(start, end); err != nil {
		return nil, err
	}

	job := &core.Job{
		ID:        uuid.NewString(),
		Namespace: namespace,
		StartDate: start,
		EndDate:   end,
		Status:    core.JobQueued,
		Message:   "queued",
	}
	if err := o.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrBackend, err)
	}

	runCtx, cancel := context.WithTimeout(context.Background(), o.jobTimeout)
	o.mu.Lock()
	o.cancels[job.ID] = cancel
	o.mu.Unlock()

	// The run goroutine owns job from here; the caller gets a detached
	// snapshot it can read without racing phase updates.
	snapshot := *job

	o.wg.Add(1)
	go o.run(runCtx, job)

	o.logger.Info("job submitted",
		"job_id", job.ID,
		"namespace", namespace,
		"start", start.Format(core.DateBucket),
		"end", end.Format(core.DateBucket))
	return &snapshot, nil
}

// Cancel signals a running job and waits up to the grace period for it
// to reach a terminal state. If the signal isn't observed in time (or
// no run is active, e.g. after a restart) the job is marked cancelled
// directly. Cancelling a terminal job is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}

	o.mu.Lock()
	cancel, active := o.cancels[jobID]
	o.mu.Unlock()

	if active {
		cancel()

		deadline := time.Now().Add(o.gracePeriod)
		for time.Now().Before(deadline) {
			current, err := o.jobs.GetJob(ctx, jobID)
			if err != nil {
				return err
			}
			if current.Status.Terminal() {
				return nil
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	// Signal not observed within the grace period, or no active run.
	job, err = o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	o.markCancelled(job)
	return nil
}

// Retry submits a fresh job with a terminal job's original parameters.
// The original record is never mutated.
func (o *Orchestrator) Retry(ctx context.Context, jobID string) (*core.Job, error) {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != core.JobFailed && job.Status != core.JobCancelled {
		return nil, fmt.Errorf("%w: job %s is %s", ErrJobNotRetryable, jobID, job.Status)
	}
	return o.Submit(ctx, job.Namespace, job.StartDate, job.EndDate)
}

// Delete removes a job and its chat log. A non-terminal job is
// cancelled first.
func (o *Orchestrator) Delete(ctx context.Context, jobID string) error {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Status.Terminal() {
		if err := o.Cancel(ctx, jobID); err != nil {
			return err
		}
	}
	return o.jobs.DeleteJob(ctx, jobID)
}

// GetStatus returns the current job snapshot.
func (o *Orchestrator) GetStatus(ctx context.Context, jobID string) (*core.Job, error) {
	return o.jobs.GetJob(ctx, jobID)
}

// GetResult returns a completed job's report.
func (o *Orchestrator) GetResult(ctx context.Context, jobID string) (*Report, error) {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != core.JobCompleted {
		return nil, fmt.Errorf("%w: job %s is %s", ErrJobNotCompleted, jobID, job.Status)
	}
	return DecodeReport(job.Results)
}

// History lists jobs newest-first. A non-empty status filters; limit 0
// means unlimited.
func (o *Orchestrator) History(ctx context.Context, limit, offset int, status core.JobStatus) ([]*core.Job, error) {
	return o.jobs.ListJobs(ctx, limit, offset, status)
}

// Shutdown waits for in-flight jobs to finish or the context to expire.
// New submissions during shutdown are not prevented; callers stop the
// intake surface first.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes one job through all phases. Persistence uses a fresh
// context so a cancelled run can still record its terminal state.
func (o *Orchestrator) run(ctx context.Context, job *core.Job) {
	defer o.wg.Done()
	defer func() {
		o.mu.Lock()
		if cancel, ok := o.cancels[job.ID]; ok {
			cancel()
			delete(o.cancels, job.ID)
		}
		o.mu.Unlock()
	}()

	job.Status = core.JobRunning
	o.setPhase(job, PhaseFetch, 10, "fetching reviews")

	reviews, err := o.fetcher.Fetch(ctx, job.Namespace, job.StartDate, job.EndDate)
	if err != nil {
		o.finish(ctx, job, err)
		return
	}
	o.setPhase(job, PhaseFetch, 25, fmt.Sprintf("fetched %d reviews", len(reviews)))

	o.setPhase(job, PhaseExtract, 30, "extracting topics")
	rawTopics, err := o.pipeline.Extract(ctx, reviews, func(done, total int) {
		// Extraction owns the 30-50 window.
		progress := 30 + done*20/total
		o.setPhase(job, PhaseExtract, progress,
			fmt.Sprintf("extracted %d/%d reviews", done, total))
	})
	if err != nil {
		o.finish(ctx, job, err)
		return
	}
	o.setPhase(job, PhaseExtract, 50, fmt.Sprintf("extracted %d raw labels", len(rawTopics)))

	o.setPhase(job, PhaseConsolidate, 60, "consolidating topics")
	consolidation, err := o.engine.Consolidate(ctx, rawTopics, job.Namespace)
	if err != nil {
		o.finish(ctx, job, err)
		return
	}
	o.setPhase(job, PhaseConsolidate, 75,
		fmt.Sprintf("consolidated to %d topics", len(consolidation.Topics)))

	o.setPhase(job, PhaseMap, 80, "mapping topics")
	mapped, err := o.mapper.Map(ctx, rawTopics, consolidation.Topics, job.Namespace)
	if err != nil {
		o.finish(ctx, job, err)
		return
	}
	o.setPhase(job, PhaseMap, 85, "mapping complete")

	o.setPhase(job, PhaseReport, 90, "building report")
	report := o.buildReport(job, reviews, rawTopics, consolidation, mapped)
	encoded, err := EncodeReport(report)
	if err != nil {
		o.finish(ctx, job, err)
		return
	}

	job.DisplayName = report.DisplayName
	job.Results = encoded
	job.Status = core.JobCompleted
	job.Phase = PhaseReport
	job.Progress = 100
	job.Message = "analysis complete"
	job.CompletedAt = time.Now().UTC()
	o.persist(job)

	o.logger.Info("job completed",
		"job_id", job.ID,
		"reviews", report.TotalReviews,
		"topics", len(report.Topics))
}

// buildReport assembles the persisted result payload.
func (o *Orchestrator) buildReport(job *core.Job, reviews []*core.Review, rawTopics []core.RawTopic, consolidation *consolidate.Result, mapped *trend.Result) *Report {
	displayName := job.Namespace
	if meta, err := o.datasets.GetDataset(context.Background(), job.Namespace); err == nil && meta.DisplayName != "" {
		displayName = meta.DisplayName
	}

	topics := make([]ReportTopic, len(consolidation.Topics))
	for i, t := range consolidation.Topics {
		topics[i] = ReportTopic{
			Name:       t.Name,
			Variations: t.Variations,
			Total:      mapped.Matrix.TopicTotal(t.Name),
		}
	}

	report := &Report{
		Namespace:    job.Namespace,
		DisplayName:  displayName,
		StartDate:    job.StartDate.Format(core.DateBucket),
		EndDate:      job.EndDate.Format(core.DateBucket),
		TotalReviews: len(reviews),
		RawLabels:    len(rawTopics),
		Topics:       topics,
		Matrix:       mapped.Matrix,
		Unmapped:     mapped.Unmapped,
		UsedFallback: consolidation.UsedFallback,
		Warnings:     consolidation.Warnings,
	}
	report.Summary = trend.Summarize(mapped)
	return report
}

// finish records a terminal failure or cancellation on the job.
func (o *Orchestrator) finish(ctx context.Context, job *core.Job, err error) {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		o.markCancelled(job)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		o.markFailed(job, fmt.Errorf("job timed out after %s: %w", o.jobTimeout, err))
	default:
		o.markFailed(job, err)
	}
}

func (o *Orchestrator) markFailed(job *core.Job, err error) {
	job.Status = core.JobFailed
	job.Error = err.Error()
	job.Message = "analysis failed"
	job.CompletedAt = time.Now().UTC()
	o.persist(job)
	o.logger.Warn("job failed", "job_id", job.ID, "phase", job.Phase, "err", err)
}

func (o *Orchestrator) markCancelled(job *core.Job) {
	job.Status = core.JobCancelled
	job.Message = "cancelled"
	job.CompletedAt = time.Now().UTC()
	o.persist(job)
	o.logger.Info("job cancelled", "job_id", job.ID, "phase", job.Phase)
}

func (o *Orchestrator) setPhase(job *core.Job, phase string, progress int, message string) {
	job.Phase = phase
	job.Progress = progress
	job.Message = message
	o.persist(job)
}

// persist writes job state with a fresh context so terminal updates
// survive run cancellation. A job already in a terminal state is never
// overwritten: the first terminal transition wins. Check and write hold
// one lock so a phase update can't slip in between a concurrent
// terminal write's check and its commit.
func (o *Orchestrator) persist(job *core.Job) {
	o.persistMu.Lock()
	defer o.persistMu.Unlock()

	if current, err := o.jobs.GetJob(context.Background(), job.ID); err == nil && current.Status.Terminal() {
		return
	}
	if err := o.jobs.UpdateJob(context.Background(), job); err != nil {
		o.logger.Error("failed to persist job state", "job_id", job.ID, "err", err)
	}
}
