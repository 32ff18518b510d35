// Package json archives terminal scan jobs as pretty-printed JSON files, one
// per job, so results survive restarts and can be exported by the CLI.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jalal-stack/cyberaudit/internal/domain/scan"
	sharederrors "github.com/jalal-stack/cyberaudit/internal/shared/errors"
	"github.com/jalal-stack/cyberaudit/internal/shared/security"
)

// jobDTO is the data transfer object for JSON serialization.
type jobDTO struct {
	ID            string                `json:"id"`
	Target        string                `json:"target"`
	ProbeTypes    []string              `json:"probe_types"`
	Locale        string                `json:"locale"`
	Status        string                `json:"status"`
	CreatedAt     string                `json:"created_at"`
	StartedAt     string                `json:"started_at,omitempty"`
	CompletedAt   string                `json:"completed_at,omitempty"`
	Outcomes      map[string]outcomeDTO `json:"outcomes"`
	Composite     *compositeDTO         `json:"composite,omitempty"`
	Certificate   *certificateDTO       `json:"certificate,omitempty"`
	ReportBuiltAt string                `json:"report_built_at,omitempty"`
}

type outcomeDTO struct {
	Kind       string         `json:"kind"`
	SubScore   int            `json:"sub_score"`
	Details    map[string]any `json:"details,omitempty"`
	Error      string         `json:"error,omitempty"`
	RecordedAt string         `json:"recorded_at"`
}

type compositeDTO struct {
	Score           int      `json:"score"`
	Level           string   `json:"security_level"`
	Recommendations []string `json:"recommendations"`
	ComputedAt      string   `json:"computed_at"`
}

type certificateDTO struct {
	IssuedAt        string `json:"issued_at"`
	ValidUntil      string `json:"valid_until"`
	Score           int    `json:"score"`
	Token           string `json:"token"`
	VerificationURL string `json:"verification_url"`
}

// Archive persists terminal jobs under a results directory, one file per job.
type Archive struct {
	dir string
	mu  sync.RWMutex
}

// NewArchive creates the results directory if needed and returns an archive
// rooted there.
func NewArchive(dir string) (*Archive, error) {
	if dir == "" {
		return nil, fmt.Errorf("results directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create results directory: %w", err)
	}
	return &Archive{dir: dir}, nil
}

// Dir returns the archive's root directory.
func (a *Archive) Dir() string {
	return a.dir
}

// Archive writes a terminal job to disk, replacing any previous snapshot.
func (a *Archive) Archive(ctx context.Context, job *scan.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !job.Status().Terminal() {
		return fmt.Errorf("%w: status %s", sharederrors.ErrJobNotTerminal, job.Status())
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	filePath, err := security.ResolveWithin(a.dir, job.ID()+".json")
	if err != nil {
		return fmt.Errorf("resolve archive path: %w", err)
	}

	data, err := json.MarshalIndent(toDTO(job), "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", sharederrors.ErrSerializationFailed, err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", sharederrors.ErrStorePersistence, err)
	}
	return nil
}

// Load reads one archived job by ID.
func (a *Archive) Load(ctx context.Context, jobID string) (*scan.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	// Job IDs come from user input on this path, so resolve them strictly
	// under the results root.
	filePath, err := security.ResolveWithin(a.dir, jobID+".json")
	if err != nil {
		return nil, fmt.Errorf("resolve archive path: %w", err)
	}

	job, err := loadFromFile(filePath)
	if os.IsNotExist(err) {
		return nil, sharederrors.ErrJobNotFound
	}
	return job, err
}

// LoadAll reads every archived job, skipping files that fail to parse.
func (a *Archive) LoadAll(ctx context.Context) ([]*scan.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("read results directory: %w", err)
	}

	var jobs []*scan.Job
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		job, err := loadFromFile(filepath.Join(a.dir, entry.Name()))
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Helper methods

func loadFromFile(filePath string) (*scan.Job, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var dto jobDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("%w: %v", sharederrors.ErrDeserializationFailed, err)
	}
	return fromDTO(dto)
}

func toDTO(job *scan.Job) jobDTO {
	dto := jobDTO{
		ID:         job.ID(),
		Target:     job.Target(),
		ProbeTypes: make([]string, 0, len(job.ProbeTypes())),
		Locale:     job.Locale(),
		Status:     string(job.Status()),
		CreatedAt:  job.CreatedAt().Format(time.RFC3339),
		Outcomes:   make(map[string]outcomeDTO, len(job.Outcomes())),
	}
	for _, t := range job.ProbeTypes() {
		dto.ProbeTypes = append(dto.ProbeTypes, string(t))
	}
	if !job.StartedAt().IsZero() {
		dto.StartedAt = job.StartedAt().Format(time.RFC3339)
	}
	if !job.CompletedAt().IsZero() {
		dto.CompletedAt = job.CompletedAt().Format(time.RFC3339)
	}
	if !job.ReportBuiltAt().IsZero() {
		dto.ReportBuiltAt = job.ReportBuiltAt().Format(time.RFC3339)
	}

	for t, outcome := range job.Outcomes() {
		dto.Outcomes[string(t)] = outcomeToDTO(outcome)
	}

	if composite := job.Composite(); composite != nil {
		dto.Composite = &compositeDTO{
			Score:           composite.Score(),
			Level:           string(composite.Level()),
			Recommendations: composite.Recommendations(),
			ComputedAt:      composite.ComputedAt().Format(time.RFC3339),
		}
	}
	if cert := job.Certificate(); cert != nil {
		dto.Certificate = &certificateDTO{
			IssuedAt:        cert.IssuedAt().Format(time.RFC3339),
			ValidUntil:      cert.ValidUntil().Format(time.RFC3339),
			Score:           cert.Score(),
			Token:           cert.Token(),
			VerificationURL: cert.VerificationURL(),
		}
	}
	return dto
}

func outcomeToDTO(outcome *scan.ProbeOutcome) outcomeDTO {
	dto := outcomeDTO{
		Kind:       string(outcome.Kind()),
		Details:    outcome.Details(),
		Error:      outcome.Error(),
		RecordedAt: outcome.RecordedAt().Format(time.RFC3339),
	}
	if score, ok := outcome.SubScore(); ok {
		dto.SubScore = score
	}
	return dto
}

func fromDTO(dto jobDTO) (*scan.Job, error) {
	createdAt, err := time.Parse(time.RFC3339, dto.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: created_at: %v", sharederrors.ErrDeserializationFailed, err)
	}
	startedAt, err := parseOptionalTime(dto.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: started_at: %v", sharederrors.ErrDeserializationFailed, err)
	}
	completedAt, err := parseOptionalTime(dto.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: completed_at: %v", sharederrors.ErrDeserializationFailed, err)
	}
	reportBuiltAt, err := parseOptionalTime(dto.ReportBuiltAt)
	if err != nil {
		return nil, fmt.Errorf("%w: report_built_at: %v", sharederrors.ErrDeserializationFailed, err)
	}

	probeTypes := make([]scan.ProbeType, 0, len(dto.ProbeTypes))
	for _, t := range dto.ProbeTypes {
		probeTypes = append(probeTypes, scan.ProbeType(t))
	}

	outcomes := make(map[scan.ProbeType]*scan.ProbeOutcome, len(dto.Outcomes))
	for tag, o := range dto.Outcomes {
		recordedAt, err := parseOptionalTime(o.RecordedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: recorded_at: %v", sharederrors.ErrDeserializationFailed, err)
		}
		t := scan.ProbeType(tag)
		outcomes[t] = scan.ReconstructOutcome(t, scan.OutcomeKind(o.Kind), o.SubScore,
			o.Details, o.Error, recordedAt)
	}

	var composite *scan.CompositeResult
	if dto.Composite != nil {
		computedAt, err := parseOptionalTime(dto.Composite.ComputedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: computed_at: %v", sharederrors.ErrDeserializationFailed, err)
		}
		composite = scan.ReconstructCompositeResult(dto.ID, dto.Composite.Score,
			scan.SecurityLevel(dto.Composite.Level), dto.Composite.Recommendations,
			outcomes, computedAt)
	}

	var certificate *scan.Certificate
	if dto.Certificate != nil {
		issuedAt, err := parseOptionalTime(dto.Certificate.IssuedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: issued_at: %v", sharederrors.ErrDeserializationFailed, err)
		}
		validUntil, err := parseOptionalTime(dto.Certificate.ValidUntil)
		if err != nil {
			return nil, fmt.Errorf("%w: valid_until: %v", sharederrors.ErrDeserializationFailed, err)
		}
		certificate = scan.ReconstructCertificate(dto.ID, issuedAt, validUntil,
			dto.Certificate.Score, dto.Certificate.Token, dto.Certificate.VerificationURL)
	}

	return scan.Reconstruct(dto.ID, dto.Target, probeTypes, dto.Locale, scan.Status(dto.Status),
		createdAt, startedAt, completedAt, outcomes, composite, certificate, reportBuiltAt), nil
}

func parseOptionalTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}
