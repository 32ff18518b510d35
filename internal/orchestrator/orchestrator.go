// Package orchestrator drives scan jobs through their lifecycle. It validates
// submissions, dispatches the requested probes through a worker pool shared
// across jobs, enforces the per-probe and per-job budgets, and finalizes every
// job exactly once no matter how its probes ended.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jalal-stack/cyberaudit/internal/domain/scan"
	"github.com/jalal-stack/cyberaudit/internal/probe"
	"github.com/jalal-stack/cyberaudit/internal/scoring"
	"github.com/jalal-stack/cyberaudit/internal/shared/constants"
	sharederrors "github.com/jalal-stack/cyberaudit/internal/shared/errors"
)

// Archiver persists terminal jobs outside the live store. Archive failures are
// logged and never fail the scan.
type Archiver interface {
	Archive(ctx context.Context, job *scan.Job) error
}

// Config bounds the shared probe pool and the time budgets.
type Config struct {
	Concurrency  int           // maximum in-flight probes across all jobs
	DispatchRate int           // probe launches per second (global)
	ProbeTimeout time.Duration // budget for a single probe
	JobDeadline  time.Duration // budget for a whole job
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = constants.DefaultConcurrency
	}
	if c.DispatchRate <= 0 {
		c.DispatchRate = constants.DefaultDispatchRate
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = constants.DefaultProbeTimeout
	}
	if c.JobDeadline <= 0 {
		c.JobDeadline = constants.DefaultJobDeadline
	}
	return c
}

// Orchestrator owns the scan lifecycle. Every job draws probe slots from one
// rate limiter and one semaphore, so a burst of submissions queues instead of
// stampeding the network.
type Orchestrator struct {
	cfg      Config
	store    scan.Repository
	registry *probe.Registry
	archiver Archiver
	logger   *zap.Logger

	limiter *rate.Limiter
	sem     chan struct{}
	wg      sync.WaitGroup
}

// New builds an Orchestrator. The archiver may be nil when no archive is
// configured.
func New(cfg Config, store scan.Repository, registry *probe.Registry, archiver Archiver, logger *zap.Logger) *Orchestrator {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		registry: registry,
		archiver: archiver,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Limit(cfg.DispatchRate), cfg.DispatchRate),
		sem:      make(chan struct{}, cfg.Concurrency),
	}
}

// Submit validates a scan request, persists the pending job and launches its
// probes in the background. It returns as soon as the job is durable.
func (o *Orchestrator) Submit(ctx context.Context, target string, probeTags []string, locale string) (string, error) {
	job, err := scan.NewJob(target, probeTags, locale)
	if err != nil {
		return "", err
	}
	if err := o.store.Save(ctx, job); err != nil {
		return "", fmt.Errorf("%w: %v", sharederrors.ErrStorePersistence, err)
	}

	o.logger.Info("scan job accepted",
		zap.String("job_id", job.ID()),
		zap.String("target", job.Target()),
		zap.Int("probes", len(job.ProbeTypes())))

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(job)
	}()
	return job.ID(), nil
}

// GetJob returns a snapshot of a job from the store.
func (o *Orchestrator) GetJob(ctx context.Context, jobID string) (*scan.Job, error) {
	return o.store.FindByID(ctx, jobID)
}

// ListJobs returns snapshots of every job in the store.
func (o *Orchestrator) ListJobs(ctx context.Context) ([]*scan.Job, error) {
	return o.store.FindAll(ctx)
}

// Drain blocks until every in-flight job and probe has finished or ctx
// expires. Jobs are bounded by the job deadline, so a shutdown budget past
// JobDeadline always completes.
func (o *Orchestrator) Drain(ctx context.Context) error {
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

type probeResult struct {
	probeType scan.ProbeType
	report    probe.Report
	elapsed   time.Duration
}

// run drives one job from Running to a terminal state. It owns the job value
// exclusively; concurrent readers only ever see store snapshots.
func (o *Orchestrator) run(job *scan.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.JobDeadline)
	defer cancel()

	if err := job.Start(); err != nil {
		o.logger.Error("start scan job", zap.String("job_id", job.ID()), zap.Error(err))
		return
	}
	if err := o.store.Save(ctx, job); err != nil {
		o.logger.Warn("persist running job", zap.String("job_id", job.ID()), zap.Error(err))
	}

	types := job.ProbeTypes()
	// Buffered so abandoned probes can still deliver and exit.
	results := make(chan probeResult, len(types))
	for _, t := range types {
		o.wg.Add(1)
		go func(t scan.ProbeType) {
			defer o.wg.Done()
			results <- o.dispatch(ctx, job.Target(), t)
		}(t)
	}

	o.collect(ctx, job, results)
	o.finalize(job)
}

// dispatch admits one probe through the shared pool and runs it. It always
// produces a result; admission cut short by the job deadline reports Timeout.
func (o *Orchestrator) dispatch(ctx context.Context, target string, t scan.ProbeType) probeResult {
	select {
	case o.sem <- struct{}{}:
	case <-ctx.Done():
		return probeResult{probeType: t, report: probe.Report{
			Kind: scan.OutcomeTimeout,
			Err:  sharederrors.ErrJobDeadlineExceeded.Error(),
		}}
	}
	defer func() { <-o.sem }()

	if err := o.limiter.Wait(ctx); err != nil {
		return probeResult{probeType: t, report: probe.Report{
			Kind: scan.OutcomeTimeout,
			Err:  sharederrors.ErrJobDeadlineExceeded.Error(),
		}}
	}

	prober, ok := o.registry.Lookup(t)
	if !ok {
		return probeResult{probeType: t, report: probe.Report{
			Kind: scan.OutcomeFailure,
			Err:  "no prober registered for " + string(t),
		}}
	}

	probeCtx, cancel := context.WithTimeout(ctx, o.cfg.ProbeTimeout)
	defer cancel()

	start := time.Now()
	report := o.runProbe(probeCtx, prober, target)
	return probeResult{probeType: t, report: report, elapsed: time.Since(start)}
}

// runProbe isolates a prober call so a panic becomes a Failure report instead
// of taking down the process.
func (o *Orchestrator) runProbe(ctx context.Context, p probe.Prober, target string) (report probe.Report) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("probe panicked",
				zap.String("probe", string(p.Type())),
				zap.Any("panic", r))
			report = probe.Report{
				Kind: scan.OutcomeFailure,
				Err:  fmt.Sprintf("probe panicked: %v", r),
			}
		}
	}()
	return p.Probe(ctx, target)
}

// collect records exactly one outcome per requested probe. When the job
// deadline fires it force-records Timeout for everything still outstanding and
// stops listening; stragglers finish into the buffered channel and are
// discarded.
func (o *Orchestrator) collect(ctx context.Context, job *scan.Job, results <-chan probeResult) {
	outstanding := make(map[scan.ProbeType]struct{}, len(job.ProbeTypes()))
	for _, t := range job.ProbeTypes() {
		outstanding[t] = struct{}{}
	}

	for len(outstanding) > 0 {
		select {
		case res := <-results:
			delete(outstanding, res.probeType)
			o.record(job, o.outcomeFromReport(res))
			o.logger.Debug("probe finished",
				zap.String("job_id", job.ID()),
				zap.String("probe", string(res.probeType)),
				zap.String("kind", string(res.report.Kind)),
				zap.Duration("took", res.elapsed))
		case <-ctx.Done():
			o.logger.Warn("job deadline exceeded",
				zap.String("job_id", job.ID()),
				zap.Int("abandoned", len(outstanding)))
			for t := range outstanding {
				outcome, _ := scan.NewTimeoutOutcome(t, sharederrors.ErrJobDeadlineExceeded.Error())
				o.record(job, outcome)
			}
			return
		}
	}
}

func (o *Orchestrator) record(job *scan.Job, outcome *scan.ProbeOutcome) {
	if err := job.RecordOutcome(outcome); err != nil {
		o.logger.Error("record probe outcome",
			zap.String("job_id", job.ID()),
			zap.String("probe", string(outcome.ProbeType())),
			zap.Error(err))
	}
}

// outcomeFromReport converts a raw probe report into a domain outcome,
// scrubbing details and error text at the boundary. A malformed report is
// demoted to Failure rather than dropped, so the job still finalizes.
func (o *Orchestrator) outcomeFromReport(res probeResult) *scan.ProbeOutcome {
	t := res.probeType
	details := probe.SanitizeDetails(res.report.Details)

	switch res.report.Kind {
	case scan.OutcomeSuccess:
		outcome, err := scan.NewSuccessOutcome(t, res.report.SubScore, details)
		if err != nil {
			return o.malformed(t, err, details)
		}
		return outcome
	case scan.OutcomePartialSuccess:
		outcome, err := scan.NewPartialSuccessOutcome(t, res.report.SubScore, details)
		if err != nil {
			return o.malformed(t, err, details)
		}
		return outcome
	case scan.OutcomeTimeout:
		msg := probe.ScrubText(res.report.Err)
		if msg == "" {
			msg = sharederrors.ErrProbeTimeout.Error()
		}
		outcome, _ := scan.NewTimeoutOutcome(t, msg)
		return outcome
	default:
		msg := probe.ScrubText(res.report.Err)
		if msg == "" {
			msg = sharederrors.ErrProbeFailure.Error()
		}
		outcome, _ := scan.NewFailureOutcome(t, msg, details)
		return outcome
	}
}

func (o *Orchestrator) malformed(t scan.ProbeType, cause error, details map[string]any) *scan.ProbeOutcome {
	o.logger.Error("malformed probe report",
		zap.String("probe", string(t)),
		zap.Error(cause))
	outcome, _ := scan.NewFailureOutcome(t, "malformed probe report: "+cause.Error(), details)
	return outcome
}

// finalize scores the job, transitions it to its terminal status and persists
// the result. It runs once per job, after the collector has recorded an
// outcome for every requested probe.
func (o *Orchestrator) finalize(job *scan.Job) {
	composite, err := scoring.Aggregate(job.ID(), job.ProbeTypes(), job.Outcomes(), job.Locale())
	if err != nil {
		o.logger.Error("aggregate scan results", zap.String("job_id", job.ID()), zap.Error(err))
		return
	}
	if err := job.Finalize(composite); err != nil {
		o.logger.Error("finalize scan job", zap.String("job_id", job.ID()), zap.Error(err))
		return
	}

	// The job deadline may already be spent; persistence gets its own budget.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var persistErr error
	if err := o.store.Save(ctx, job); err != nil {
		persistErr = multierr.Append(persistErr, fmt.Errorf("persist terminal job: %w", err))
	}
	if o.archiver != nil {
		if err := o.archiver.Archive(ctx, job); err != nil {
			persistErr = multierr.Append(persistErr, fmt.Errorf("archive terminal job: %w", err))
		}
	}
	if persistErr != nil {
		o.logger.Error("finalization persistence", zap.String("job_id", job.ID()), zap.Error(persistErr))
	}

	o.logger.Info("scan job finalized",
		zap.String("job_id", job.ID()),
		zap.String("status", string(job.Status())),
		zap.Int("score", composite.Score()),
		zap.Duration("took", job.CompletedAt().Sub(job.StartedAt())))
}
