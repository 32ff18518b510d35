package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jalal-stack/cyberaudit/internal/certificate"
	jsonstore "github.com/jalal-stack/cyberaudit/internal/infrastructure/persistence/json"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build or export the detailed report for an archived scan",
	Long: `Build the localized findings report for a finished scan and export it.

The report carries one section per requested probe (score or failure cause,
issues found, raw details) plus the recommendation list. The first build
stamps the scan, so repeated exports keep the original generation time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		if id == "" {
			return errors.New("--id is required")
		}

		archive, err := jsonstore.NewArchive(resultsDir)
		if err != nil {
			return err
		}
		return exportReport(cmd.Context(), archive, id, format, output)
	},
}

func init() {
	reportCmd.Flags().String("id", "", "scan ID (required)")
	reportCmd.Flags().String("format", "json", "output format: json or pdf")
	reportCmd.Flags().String("output", "", "output path (default: stdout for json, results dir for pdf)")
}

func exportReport(ctx context.Context, archive *jsonstore.Archive, id, format, output string) error {
	job, err := archive.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("load scan %s: %w", id, err)
	}

	stamped := !job.ReportBuiltAt().IsZero()
	report, err := certificate.BuildReport(job)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}
	if !stamped {
		if err := archive.Archive(ctx, job); err != nil {
			return fmt.Errorf("archive report stamp: %w", err)
		}
	}

	switch format {
	case "", "json":
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		return writeArtifact(output, data)
	case "pdf":
		data, err := certificate.RenderReportPDF(report)
		if err != nil {
			return fmt.Errorf("render report: %w", err)
		}
		if output == "" {
			output = filepath.Join(archive.Dir(), fmt.Sprintf("report-%s.pdf", job.ID()))
		}
		return writeArtifact(output, data)
	default:
		return fmt.Errorf("unsupported format %q (json or pdf)", format)
	}
}
