// Package api adapts the orchestrator, job store, and certificate issuer
// into the service surface the HTTP layer consumes.
package api

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jalal-stack/cyberaudit/internal/certificate"
	"github.com/jalal-stack/cyberaudit/internal/domain/scan"
	"github.com/jalal-stack/cyberaudit/internal/orchestrator"
	sharederrors "github.com/jalal-stack/cyberaudit/internal/shared/errors"
)

// ScanManager drives scans through the orchestrator and serves snapshots
// from the store. Certificate issuance and report builds mutate the job's
// cached artifacts, so both persist the job back before returning.
type ScanManager struct {
	orch    *orchestrator.Orchestrator
	store   scan.Repository
	issuer  *certificate.Issuer
	archive orchestrator.Archiver
	logger  *zap.Logger
}

// NewScanManager wires the manager. archive may be nil when terminal jobs
// are not mirrored to disk.
func NewScanManager(orch *orchestrator.Orchestrator, store scan.Repository,
	issuer *certificate.Issuer, archive orchestrator.Archiver, logger *zap.Logger) *ScanManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScanManager{
		orch:    orch,
		store:   store,
		issuer:  issuer,
		archive: archive,
		logger:  logger,
	}
}

func (m *ScanManager) StartScan(ctx context.Context, target string, probeTags []string, locale string) (string, error) {
	return m.orch.Submit(ctx, target, probeTags, locale)
}

func (m *ScanManager) GetJob(ctx context.Context, id string) (*scan.Job, error) {
	return m.store.FindByID(ctx, id)
}

func (m *ScanManager) ListJobs(ctx context.Context) ([]*scan.Job, error) {
	return m.store.FindAll(ctx)
}

// IssueCertificate issues on first request and returns the cached
// certificate afterwards. The store copy is updated so issuance survives
// a snapshot reload; concurrent first requests settle on last-write-wins
// with identical content.
func (m *ScanManager) IssueCertificate(ctx context.Context, id string) (*scan.Job, *scan.Certificate, error) {
	job, err := m.store.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	issued := job.Certificate() != nil
	cert, err := m.issuer.Issue(job)
	if err != nil {
		return nil, nil, err
	}
	if !issued {
		if err := m.persist(ctx, job); err != nil {
			return nil, nil, err
		}
	}
	return job, cert, nil
}

// BuildReport builds the report payload, fixing the generation timestamp on
// the first build.
func (m *ScanManager) BuildReport(ctx context.Context, id string) (*certificate.Report, error) {
	job, err := m.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stamped := !job.ReportBuiltAt().IsZero()
	report, err := certificate.BuildReport(job)
	if err != nil {
		return nil, err
	}
	if !stamped {
		if err := m.persist(ctx, job); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// persist writes the mutated job back and refreshes its archive copy.
// Archive failures are logged, not surfaced: the store stays canonical.
func (m *ScanManager) persist(ctx context.Context, job *scan.Job) error {
	if err := m.store.Save(ctx, job); err != nil {
		return fmt.Errorf("%w: %v", sharederrors.ErrStorePersistence, err)
	}
	if m.archive != nil {
		if err := m.archive.Archive(ctx, job); err != nil {
			m.logger.Warn("archive refresh failed",
				zap.String("job_id", job.ID()),
				zap.Error(err),
			)
		}
	}
	return nil
}
