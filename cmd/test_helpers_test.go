package cmd

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/jalal-stack/cyberaudit/internal/domain/scan"
	jsonstore "github.com/jalal-stack/cyberaudit/internal/infrastructure/persistence/json"
	"github.com/jalal-stack/cyberaudit/internal/infrastructure/persistence/memory"
	"github.com/jalal-stack/cyberaudit/internal/orchestrator"
	"github.com/jalal-stack/cyberaudit/internal/probe"
)

// captureStdout redirects os.Stdout for the duration of fn and returns what
// was written. The reader drains concurrently so large outputs cannot fill
// the pipe buffer and deadlock.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	original := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	done := make(chan string, 1)
	go func() {
		data, _ := io.ReadAll(r)
		done <- string(data)
	}()

	fn()

	os.Stdout = original
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close pipe writer: %v", err)
	}
	return <-done
}

// stubProber returns a canned report without touching the network.
type stubProber struct {
	probeType scan.ProbeType
	report    probe.Report
	delay     time.Duration
}

func (p stubProber) Type() scan.ProbeType { return p.probeType }

func (p stubProber) Probe(ctx context.Context, target string) probe.Report {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return probe.Report{Kind: scan.OutcomeTimeout, Err: "probe cancelled"}
		}
	}
	return p.report
}

func okSSLProber() probe.Prober {
	return stubProber{
		probeType: scan.ProbeSSL,
		report: probe.Report{
			Kind:     scan.OutcomeSuccess,
			SubScore: 90,
			Details:  map[string]any{"tls_version": "TLS 1.3"},
		},
	}
}

// newTestOrchestrator wires a scan pipeline around stub probers and a
// throwaway archive directory.
func newTestOrchestrator(t *testing.T, probers ...probe.Prober) (*orchestrator.Orchestrator, *jsonstore.Archive) {
	t.Helper()

	archive, err := jsonstore.NewArchive(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	registry := probe.NewRegistry()
	for _, p := range probers {
		registry.Register(p)
	}
	orch := orchestrator.New(orchestrator.Config{
		Concurrency:  4,
		DispatchRate: 100,
		ProbeTimeout: 2 * time.Second,
		JobDeadline:  5 * time.Second,
	}, memory.NewStore(), registry, archive, zaptest.NewLogger(t))
	return orch, archive
}

// archivedTerminalJob runs one scan to completion through the pipeline and
// returns its ID together with the archive it landed in.
func archivedTerminalJob(t *testing.T) (string, *jsonstore.Archive) {
	t.Helper()

	orch, archive := newTestOrchestrator(t, okSSLProber())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := orch.Submit(ctx, "https://example.com", []string{"ssl"}, "ru")
	if err != nil {
		t.Fatalf("failed to submit scan: %v", err)
	}
	if err := orch.Drain(ctx); err != nil {
		t.Fatalf("failed to drain orchestrator: %v", err)
	}
	if _, err := archive.Load(ctx, id); err != nil {
		t.Fatalf("expected job %s in archive: %v", id, err)
	}
	return id, archive
}
