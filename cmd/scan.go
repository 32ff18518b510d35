package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jalal-stack/cyberaudit/internal/api"
	"github.com/jalal-stack/cyberaudit/internal/domain/scan"
	jsonstore "github.com/jalal-stack/cyberaudit/internal/infrastructure/persistence/json"
	"github.com/jalal-stack/cyberaudit/internal/infrastructure/persistence/memory"
	"github.com/jalal-stack/cyberaudit/internal/orchestrator"
	"github.com/jalal-stack/cyberaudit/internal/probe"
	"github.com/jalal-stack/cyberaudit/internal/shared/constants"
)

// newScanRegistry builds the prober set for one-shot scans. Swappable so
// tests can run the command pipeline without touching the network.
var newScanRegistry = probe.NewDefaultRegistry

// targetOutcome is what one scanned URL produced: a terminal job, or the
// error that kept it from running.
type targetOutcome struct {
	Target string
	Job    *scan.Job
	Err    error
}

var scanCmd = &cobra.Command{
	Use:   "scan <url> [url...]",
	Short: "Run security scans against one or more websites",
	Long: `Scan one or more websites and print a scored summary.

Each target runs the requested probes (ssl, ports, headers, cms, ddos)
concurrently under a shared worker pool. Terminal results are archived as
JSON under the results directory, ready for "cyberaudit certificate" and
"cyberaudit report".`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		go func() {
			select {
			case sig := <-sigCh:
				fmt.Printf("\n%s Received %s, abandoning outstanding probes...\n", colorWarn("!"), sig.String())
				cancel()
			case <-ctx.Done():
			}
		}()

		types, _ := cmd.Flags().GetStringSlice("types")
		language, _ := cmd.Flags().GetString("language")
		asJSON, _ := cmd.Flags().GetBool("json")
		showProgress, _ := cmd.Flags().GetBool("progress")

		engineCfg := engineSettings(cmd.Flags())

		archive, err := jsonstore.NewArchive(resultsDir)
		if err != nil {
			return err
		}
		store := memory.NewStore()
		orch := orchestrator.New(engineCfg, store, newScanRegistry(logger), archive, logger)

		var progress *progressPrinter
		if showProgress && !asJSON {
			progress = newProgressPrinter(len(args), "scan")
			progress.Start()
		}

		outcomes := runTargets(ctx, orch, args, types, language, engineCfg.Concurrency, progress)

		// Probes are deadline-bounded, so a drain budget past the job
		// deadline always returns.
		drainCtx, drainCancel := context.WithTimeout(context.Background(), engineCfg.JobDeadline+10*time.Second)
		defer drainCancel()
		_ = orch.Drain(drainCtx)

		if progress != nil {
			progress.Stop()
		}

		if asJSON {
			if err := printScanJSON(outcomes); err != nil {
				return err
			}
		} else {
			printScanSummary(outcomes, archive.Dir())
		}

		if failed := countFailures(outcomes); failed > 0 {
			return fmt.Errorf("%d of %d scans failed", failed, len(outcomes))
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().StringSlice("types", nil, "probe types to run (default: all of ssl,ports,headers,cms,ddos)")
	scanCmd.Flags().String("language", "ru", "recommendation language (ru, uz)")
	scanCmd.Flags().Duration("timeout", constants.DefaultProbeTimeout, "per-probe timeout")
	scanCmd.Flags().Duration("deadline", constants.DefaultJobDeadline, "per-target deadline")
	scanCmd.Flags().Int("concurrency", constants.DefaultConcurrency, "maximum in-flight probes")
	scanCmd.Flags().Bool("json", false, "print full results as JSON instead of a summary")
	scanCmd.Flags().Bool("progress", true, "show live progress")
}

// runTargets fans the targets out with at most limit of them in flight and
// waits for every started job to reach a terminal state. A target that fails
// to submit (bad URL, unknown probe type) is recorded and does not stop the
// rest; only cancellation aborts the batch.
func runTargets(ctx context.Context, orch *orchestrator.Orchestrator, targets []string,
	types []string, language string, limit int, progress *progressPrinter) []targetOutcome {

	var (
		mu       sync.Mutex
		outcomes []targetOutcome
	)

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, target := range targets {
		target := target
		g.Go(func() error {
			start := time.Now()
			res := targetOutcome{Target: target}
			id, err := orch.Submit(gctx, target, types, language)
			if err == nil {
				res.Job, err = waitForJob(gctx, orch, id)
			}
			res.Err = err

			if progress != nil {
				status := scan.Status("")
				if res.Job != nil {
					status = res.Job.Status()
				}
				progress.Observe(status, time.Since(start).Seconds())
			}

			mu.Lock()
			outcomes = append(outcomes, res)
			mu.Unlock()

			if errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Target < outcomes[j].Target })
	return outcomes
}

// waitForJob polls the store until the job is terminal. The orchestrator
// finalizes jobs in the background; for a one-shot CLI run a short poll
// against the in-memory store is plenty.
func waitForJob(ctx context.Context, orch *orchestrator.Orchestrator, jobID string) (*scan.Job, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		job, err := orch.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status().Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func countFailures(outcomes []targetOutcome) int {
	failed := 0
	for _, res := range outcomes {
		if res.Err != nil || res.Job == nil || res.Job.Status() == scan.StatusFailed {
			failed++
		}
	}
	return failed
}

func printScanSummary(outcomes []targetOutcome, dir string) {
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, res := range outcomes {
		if res.Err != nil || res.Job == nil {
			fmt.Fprintf(w, "%s %s\t-\t-\terror: %v\n", colorError("✗"), res.Target, res.Err)
			continue
		}
		job := res.Job
		score := "-"
		level := "-"
		if composite := job.Composite(); composite != nil {
			score = fmt.Sprintf("%d/100", composite.Score())
			level = string(composite.Level())
		}
		fmt.Fprintf(w, "%s %s\t%s\t%s\t%s\n",
			statusMarker(job.Status()), job.Target(), score, level,
			formatStatusWithColor(string(job.Status())))
	}
	_ = w.Flush()

	ok, degraded, failed := 0, 0, 0
	for _, res := range outcomes {
		switch {
		case res.Err != nil || res.Job == nil:
			failed++
		case res.Job.Status() == scan.StatusCompleted:
			ok++
		case res.Job.Status() == scan.StatusPartialFailure:
			degraded++
		default:
			failed++
		}
	}

	fmt.Println()
	fmt.Printf("%s Scanned: %d targets (%d ok, %d degraded, %d failed)\n",
		colorInfo("→"), len(outcomes), ok, degraded, failed)
	fmt.Printf("%s Results: %s\n", colorInfo("→"), dir)
}

// printScanJSON emits the same job payloads the REST API serves, so scripted
// callers can switch between the CLI and the server without remapping fields.
func printScanJSON(outcomes []targetOutcome) error {
	type scanError struct {
		URL   string `json:"url"`
		Error string `json:"error"`
	}
	payload := struct {
		Scans  []api.JobResponse `json:"scans"`
		Errors []scanError       `json:"errors,omitempty"`
	}{Scans: []api.JobResponse{}}

	for _, res := range outcomes {
		if res.Err != nil || res.Job == nil {
			payload.Errors = append(payload.Errors, scanError{URL: res.Target, Error: res.Err.Error()})
			continue
		}
		payload.Scans = append(payload.Scans, api.JobResponseFor(res.Job))
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode scan results: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
