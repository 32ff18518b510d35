package scan

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	sharederrors "github.com/jalal-stack/cyberaudit/internal/shared/errors"
)

// Status is the lifecycle state of a scan job.
type Status string

const (
	StatusPending        Status = "pending"
	StatusRunning        Status = "running"
	StatusCompleted      Status = "completed"
	StatusPartialFailure Status = "partial_failure"
	StatusFailed         Status = "failed"
)

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusPartialFailure || s == StatusFailed
}

// Supported report locales. Anything else normalizes to the default.
const (
	LocaleRussian = "ru"
	LocaleUzbek   = "uz"
	DefaultLocale = LocaleRussian
)

// NormalizeLocale maps a raw language tag onto a supported locale.
func NormalizeLocale(locale string) string {
	switch strings.ToLower(strings.TrimSpace(locale)) {
	case LocaleUzbek:
		return LocaleUzbek
	default:
		return DefaultLocale
	}
}

// ValidateTarget checks that raw is an absolute http(s) URL with a host.
// Nothing is rewritten; a bare hostname without a scheme is rejected.
func ValidateTarget(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty target", sharederrors.ErrInvalidTarget)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", sharederrors.ErrInvalidTarget, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q not allowed", sharederrors.ErrInvalidTarget, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", sharederrors.ErrInvalidTarget)
	}
	return u.String(), nil
}

// Job is the aggregate root for one scan. The orchestrator owns a job
// exclusively while it runs; once a terminal state is reached the job is
// immutable apart from first-issuance caching of certificate and report
// timestamps.
type Job struct {
	id            string
	target        string
	probeTypes    []ProbeType
	locale        string
	status        Status
	createdAt     time.Time
	startedAt     time.Time
	completedAt   time.Time
	outcomes      map[ProbeType]*ProbeOutcome
	composite     *CompositeResult
	certificate   *Certificate
	reportBuiltAt time.Time
}

// NewJob validates the submission and creates a pending job.
func NewJob(target string, probeTags []string, locale string) (*Job, error) {
	validated, err := ValidateTarget(target)
	if err != nil {
		return nil, err
	}
	types, err := ParseProbeTypes(probeTags)
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, sharederrors.ErrEmptyProbeSet
	}

	return &Job{
		id:         uuid.NewString(),
		target:     validated,
		probeTypes: types,
		locale:     NormalizeLocale(locale),
		status:     StatusPending,
		createdAt:  time.Now().UTC(),
		outcomes:   make(map[ProbeType]*ProbeOutcome, len(types)),
	}, nil
}

// Reconstruct rebuilds a job from persisted data without revalidating it.
func Reconstruct(id, target string, probeTypes []ProbeType, locale string, status Status,
	createdAt, startedAt, completedAt time.Time, outcomes map[ProbeType]*ProbeOutcome,
	composite *CompositeResult, certificate *Certificate, reportBuiltAt time.Time) *Job {
	if outcomes == nil {
		outcomes = make(map[ProbeType]*ProbeOutcome)
	}
	return &Job{
		id:            id,
		target:        target,
		probeTypes:    probeTypes,
		locale:        locale,
		status:        status,
		createdAt:     createdAt,
		startedAt:     startedAt,
		completedAt:   completedAt,
		outcomes:      outcomes,
		composite:     composite,
		certificate:   certificate,
		reportBuiltAt: reportBuiltAt,
	}
}

// Business methods

// Start marks the job as running.
func (j *Job) Start() error {
	if j.status != StatusPending {
		return fmt.Errorf("%w: status %s", sharederrors.ErrJobAlreadyStarted, j.status)
	}
	j.status = StatusRunning
	j.startedAt = time.Now().UTC()
	return nil
}

// RecordOutcome appends a probe outcome. Each requested probe type may report
// exactly once; unrequested types are rejected.
func (j *Job) RecordOutcome(outcome *ProbeOutcome) error {
	if j.status != StatusRunning {
		return fmt.Errorf("%w: status %s", sharederrors.ErrJobNotRunning, j.status)
	}
	t := outcome.ProbeType()
	if !j.requested(t) {
		return fmt.Errorf("%w: %s", sharederrors.ErrOutcomeNotRequested, t)
	}
	if _, exists := j.outcomes[t]; exists {
		return fmt.Errorf("%w: %s", sharederrors.ErrDuplicateOutcome, t)
	}
	j.outcomes[t] = outcome
	return nil
}

// Finalize freezes the job with its composite result. The terminal status is
// derived from the recorded outcome kinds: all usable means completed, none
// usable means failed, a mix means partial failure. Every requested probe
// type must have reported before finalization.
func (j *Job) Finalize(composite *CompositeResult) error {
	if j.status.Terminal() {
		return fmt.Errorf("%w: status %s", sharederrors.ErrJobAlreadyTerminal, j.status)
	}
	if j.status != StatusRunning {
		return fmt.Errorf("%w: status %s", sharederrors.ErrJobNotRunning, j.status)
	}
	if composite == nil {
		return fmt.Errorf("%w: composite result is nil", sharederrors.ErrValidation)
	}
	if composite.JobID() != j.id {
		return fmt.Errorf("%w: composite result belongs to job %s", sharederrors.ErrValidation, composite.JobID())
	}
	for _, t := range j.probeTypes {
		if _, ok := j.outcomes[t]; !ok {
			return fmt.Errorf("%w: %s", sharederrors.ErrOutcomeIncomplete, t)
		}
	}

	usable, unusable := 0, 0
	for _, o := range j.outcomes {
		if o.Kind().Usable() {
			usable++
		} else {
			unusable++
		}
	}
	switch {
	case unusable == 0:
		j.status = StatusCompleted
	case usable == 0:
		j.status = StatusFailed
	default:
		j.status = StatusPartialFailure
	}

	j.composite = composite
	j.completedAt = time.Now().UTC()
	return nil
}

// AttachCertificate caches the certificate issued for this job. Issuance is
// idempotent: a second attach is rejected so callers return the cached one.
func (j *Job) AttachCertificate(cert *Certificate) error {
	if !j.status.Terminal() {
		return fmt.Errorf("%w: status %s", sharederrors.ErrJobNotTerminal, j.status)
	}
	if j.certificate != nil {
		return sharederrors.ErrCertificateAlreadyIssued
	}
	if cert == nil || cert.JobID() != j.id {
		return fmt.Errorf("%w: certificate does not belong to this job", sharederrors.ErrValidation)
	}
	j.certificate = cert
	return nil
}

// MarkReportBuilt caches the first report build timestamp so repeated builds
// stay byte-identical.
func (j *Job) MarkReportBuilt(at time.Time) error {
	if !j.status.Terminal() {
		return fmt.Errorf("%w: status %s", sharederrors.ErrJobNotTerminal, j.status)
	}
	if !j.reportBuiltAt.IsZero() {
		return nil
	}
	j.reportBuiltAt = at.UTC()
	return nil
}

// Clone returns a deep copy safe to hand across goroutine boundaries.
// Outcomes, composite, and certificate are immutable, so sharing their
// pointers is fine; only the mutable containers are copied.
func (j *Job) Clone() *Job {
	typesCopy := make([]ProbeType, len(j.probeTypes))
	copy(typesCopy, j.probeTypes)
	outcomesCopy := make(map[ProbeType]*ProbeOutcome, len(j.outcomes))
	for t, o := range j.outcomes {
		outcomesCopy[t] = o
	}
	return &Job{
		id:            j.id,
		target:        j.target,
		probeTypes:    typesCopy,
		locale:        j.locale,
		status:        j.status,
		createdAt:     j.createdAt,
		startedAt:     j.startedAt,
		completedAt:   j.completedAt,
		outcomes:      outcomesCopy,
		composite:     j.composite,
		certificate:   j.certificate,
		reportBuiltAt: j.reportBuiltAt,
	}
}

func (j *Job) requested(t ProbeType) bool {
	for _, rt := range j.probeTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// Getters

func (j *Job) ID() string {
	return j.id
}

func (j *Job) Target() string {
	return j.target
}

// TargetHost returns the host portion of the target for aggregate statistics.
func (j *Job) TargetHost() string {
	u, err := url.Parse(j.target)
	if err != nil {
		return j.target
	}
	return u.Hostname()
}

func (j *Job) ProbeTypes() []ProbeType {
	out := make([]ProbeType, len(j.probeTypes))
	copy(out, j.probeTypes)
	return out
}

func (j *Job) Locale() string {
	return j.locale
}

func (j *Job) Status() Status {
	return j.status
}

func (j *Job) CreatedAt() time.Time {
	return j.createdAt
}

func (j *Job) StartedAt() time.Time {
	return j.startedAt
}

// CompletedAt is zero until the job reaches a terminal state.
func (j *Job) CompletedAt() time.Time {
	return j.completedAt
}

// Outcome returns the outcome recorded for t, if any.
func (j *Job) Outcome(t ProbeType) (*ProbeOutcome, bool) {
	o, ok := j.outcomes[t]
	return o, ok
}

// Outcomes returns a copy of the recorded outcomes keyed by probe type.
func (j *Job) Outcomes() map[ProbeType]*ProbeOutcome {
	out := make(map[ProbeType]*ProbeOutcome, len(j.outcomes))
	for t, o := range j.outcomes {
		out[t] = o
	}
	return out
}

// Composite is nil until the job reaches a terminal state.
func (j *Job) Composite() *CompositeResult {
	return j.composite
}

// Certificate is nil until first issuance.
func (j *Job) Certificate() *Certificate {
	return j.certificate
}

// ReportBuiltAt is zero until the first report build.
func (j *Job) ReportBuiltAt() time.Time {
	return j.reportBuiltAt
}
