package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jalal-stack/cyberaudit/internal/certificate"
	jsonstore "github.com/jalal-stack/cyberaudit/internal/infrastructure/persistence/json"
	sharederrors "github.com/jalal-stack/cyberaudit/internal/shared/errors"
)

func testIssuer(t *testing.T) *certificate.Issuer {
	t.Helper()
	issuer, err := certificate.NewIssuer("test-secret", "https://verify.example.com")
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}
	return issuer
}

func TestExportCertificateJSON(t *testing.T) {
	id, archive := archivedTerminalJob(t)
	issuer := testIssuer(t)

	output := captureStdout(t, func() {
		if err := exportCertificate(context.Background(), archive, issuer, id, "json", ""); err != nil {
			t.Errorf("export certificate: %v", err)
		}
	})

	var payload certificate.CertificatePayload
	if err := json.Unmarshal([]byte(output), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v\n%s", err, output)
	}
	if payload.ScanID != id {
		t.Fatalf("expected scan ID %s, got %s", id, payload.ScanID)
	}
	if payload.Token == "" || payload.VerificationURL == "" {
		t.Fatalf("expected token and verification URL, got %+v", payload)
	}
	if !payload.Eligible || payload.Score != 90 {
		t.Fatalf("expected eligible certificate with score 90, got %+v", payload)
	}

	// issuing must survive an archive reload
	job, err := archive.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to reload job: %v", err)
	}
	if job.Certificate() == nil || job.Certificate().Token() != payload.Token {
		t.Fatalf("expected the issued certificate in the archive")
	}
}

func TestExportCertificateIsIdempotent(t *testing.T) {
	id, archive := archivedTerminalJob(t)
	issuer := testIssuer(t)

	first := captureStdout(t, func() {
		if err := exportCertificate(context.Background(), archive, issuer, id, "json", ""); err != nil {
			t.Errorf("export certificate: %v", err)
		}
	})
	second := captureStdout(t, func() {
		if err := exportCertificate(context.Background(), archive, issuer, id, "json", ""); err != nil {
			t.Errorf("export certificate: %v", err)
		}
	})

	if first != second {
		t.Fatalf("expected identical payloads across exports:\n%s\n%s", first, second)
	}
}

func TestExportCertificatePDF(t *testing.T) {
	id, archive := archivedTerminalJob(t)
	issuer := testIssuer(t)
	out := filepath.Join(t.TempDir(), "cert.pdf")

	output := captureStdout(t, func() {
		if err := exportCertificate(context.Background(), archive, issuer, id, "pdf", out); err != nil {
			t.Errorf("export certificate: %v", err)
		}
	})

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("expected PDF file: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("expected a PDF document, got %q", data[:16])
	}
	if !strings.Contains(output, out) {
		t.Fatalf("expected output path in message, got %q", output)
	}
}

func TestExportCertificatePDFDefaultPath(t *testing.T) {
	id, archive := archivedTerminalJob(t)
	issuer := testIssuer(t)

	captureStdout(t, func() {
		if err := exportCertificate(context.Background(), archive, issuer, id, "pdf", ""); err != nil {
			t.Errorf("export certificate: %v", err)
		}
	})

	expected := filepath.Join(archive.Dir(), "certificate-"+id+".pdf")
	if _, err := os.Stat(expected); err != nil {
		t.Fatalf("expected PDF at %s: %v", expected, err)
	}
}

func TestExportCertificateUnknownScan(t *testing.T) {
	archive, err := jsonstore.NewArchive(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}

	err = exportCertificate(context.Background(), archive, testIssuer(t), "missing", "json", "")
	if !errors.Is(err, sharederrors.ErrJobNotFound) {
		t.Fatalf("expected job not found, got %v", err)
	}
}

func TestExportCertificateUnsupportedFormat(t *testing.T) {
	id, archive := archivedTerminalJob(t)

	err := exportCertificate(context.Background(), archive, testIssuer(t), id, "html", "")
	if err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}
