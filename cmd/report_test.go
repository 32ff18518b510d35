package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jalal-stack/cyberaudit/internal/certificate"
	jsonstore "github.com/jalal-stack/cyberaudit/internal/infrastructure/persistence/json"
	sharederrors "github.com/jalal-stack/cyberaudit/internal/shared/errors"
)

func TestExportReportJSON(t *testing.T) {
	id, archive := archivedTerminalJob(t)

	output := captureStdout(t, func() {
		if err := exportReport(context.Background(), archive, id, "json", ""); err != nil {
			t.Errorf("export report: %v", err)
		}
	})

	var report certificate.Report
	if err := json.Unmarshal([]byte(output), &report); err != nil {
		t.Fatalf("failed to decode report: %v\n%s", err, output)
	}
	if report.ScanID != id || report.Target != "https://example.com" {
		t.Fatalf("unexpected report header: %+v", report)
	}
	if report.Score != 90 || report.Status != "completed" {
		t.Fatalf("unexpected report summary: %+v", report)
	}
	if len(report.Probes) != 1 || report.Probes[0].Type != "ssl" {
		t.Fatalf("expected one ssl section, got %+v", report.Probes)
	}
	if report.GeneratedAt.IsZero() {
		t.Fatalf("expected a generation timestamp")
	}

	// the first build stamps the archived job
	job, err := archive.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to reload job: %v", err)
	}
	if !job.ReportBuiltAt().Equal(report.GeneratedAt) {
		t.Fatalf("expected report stamp %s in archive, got %s", report.GeneratedAt, job.ReportBuiltAt())
	}
}

func TestExportReportKeepsFirstTimestamp(t *testing.T) {
	id, archive := archivedTerminalJob(t)

	decode := func(raw string) certificate.Report {
		var report certificate.Report
		if err := json.Unmarshal([]byte(raw), &report); err != nil {
			t.Fatalf("failed to decode report: %v", err)
		}
		return report
	}

	first := decode(captureStdout(t, func() {
		if err := exportReport(context.Background(), archive, id, "json", ""); err != nil {
			t.Errorf("export report: %v", err)
		}
	}))
	second := decode(captureStdout(t, func() {
		if err := exportReport(context.Background(), archive, id, "json", ""); err != nil {
			t.Errorf("export report: %v", err)
		}
	}))

	if !first.GeneratedAt.Equal(second.GeneratedAt) {
		t.Fatalf("expected a stable generation timestamp, got %s then %s",
			first.GeneratedAt, second.GeneratedAt)
	}
}

func TestExportReportPDFDefaultPath(t *testing.T) {
	id, archive := archivedTerminalJob(t)

	captureStdout(t, func() {
		if err := exportReport(context.Background(), archive, id, "pdf", ""); err != nil {
			t.Errorf("export report: %v", err)
		}
	})

	expected := filepath.Join(archive.Dir(), "report-"+id+".pdf")
	data, err := os.ReadFile(expected)
	if err != nil {
		t.Fatalf("expected PDF at %s: %v", expected, err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("expected a PDF document, got %q", data[:16])
	}
}

func TestExportReportUnknownScan(t *testing.T) {
	archive, err := jsonstore.NewArchive(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}

	err = exportReport(context.Background(), archive, "missing", "json", "")
	if !errors.Is(err, sharederrors.ErrJobNotFound) {
		t.Fatalf("expected job not found, got %v", err)
	}
}
