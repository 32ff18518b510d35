package certificate

import (
	"fmt"
	"time"

	"github.com/jalal-stack/cyberaudit/internal/domain/scan"
	"github.com/jalal-stack/cyberaudit/internal/i18n"
	sharederrors "github.com/jalal-stack/cyberaudit/internal/shared/errors"
)

// Report is the exportable result document for one terminal job.
type Report struct {
	ScanID          string         `json:"scan_id"`
	Target          string         `json:"target"`
	Locale          string         `json:"language"`
	Status          string         `json:"status"`
	Score           int            `json:"score"`
	SecurityLevel   string         `json:"security_level"`
	GeneratedAt     time.Time      `json:"generated_at"`
	Probes          []ProbeSection `json:"probes"`
	Recommendations []string       `json:"recommendations"`
}

// ProbeSection summarizes one probe outcome for rendering.
type ProbeSection struct {
	Type     string         `json:"type"`
	Label    string         `json:"label"`
	Result   string         `json:"result"`
	SubScore int            `json:"sub_score"`
	Usable   bool           `json:"usable"`
	Error    string         `json:"error,omitempty"`
	Issues   []string       `json:"issues,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// BuildReport assembles the report payload for a terminal job. The first
// build fixes GeneratedAt on the job, so repeated builds of a persisted job
// produce identical documents. The caller persists the job afterwards.
func BuildReport(job *scan.Job) (*Report, error) {
	if !job.Status().Terminal() {
		return nil, fmt.Errorf("%w: status %s", sharederrors.ErrJobNotTerminal, job.Status())
	}
	if err := job.MarkReportBuilt(time.Now().UTC().Truncate(time.Second)); err != nil {
		return nil, err
	}

	report := &Report{
		ScanID:      job.ID(),
		Target:      job.Target(),
		Locale:      job.Locale(),
		Status:      string(job.Status()),
		GeneratedAt: job.ReportBuiltAt(),
	}
	if composite := job.Composite(); composite != nil {
		report.Score = composite.Score()
		report.SecurityLevel = string(composite.Level())
		report.Recommendations = composite.Recommendations()
	}
	for _, t := range job.ProbeTypes() {
		outcome, ok := job.Outcome(t)
		if !ok {
			continue
		}
		report.Probes = append(report.Probes, probeSection(job.Locale(), t, outcome))
	}
	return report, nil
}

func probeSection(locale string, t scan.ProbeType, outcome *scan.ProbeOutcome) ProbeSection {
	details := outcome.Details()
	section := ProbeSection{
		Type:    string(t),
		Label:   i18n.ProbeLabel(locale, string(t)),
		Result:  string(outcome.Kind()),
		Error:   outcome.Error(),
		Issues:  detailIssues(details),
		Details: details,
	}
	if score, ok := outcome.SubScore(); ok {
		section.SubScore = score
		section.Usable = true
	}
	return section
}

// detailIssues pulls the conventional "issues" list out of a detail map.
// Archived jobs carry it as []any after a JSON round-trip.
func detailIssues(details map[string]any) []string {
	switch list := details["issues"].(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
