package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jalal-stack/cyberaudit/internal/certificate"
	jsonstore "github.com/jalal-stack/cyberaudit/internal/infrastructure/persistence/json"
	"github.com/jalal-stack/cyberaudit/internal/shared/constants"
)

var certificateCmd = &cobra.Command{
	Use:   "certificate",
	Short: "Issue or export the certificate for an archived scan",
	Long: `Issue the security certificate for a finished scan and export it.

The scan is loaded from the results directory, so the target must have been
scanned first ("cyberaudit scan" or via the API with archiving enabled).
Issuing is idempotent: the first call mints the certificate and updates the
archive, later calls export the stored one.`,
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
		issuer, err := certificate.NewIssuer(signingSecret(), verifyBaseURL())
		if err != nil {
			return err
		}
		return exportCertificate(cmd.Context(), archive, issuer, id, format, output)
	},
}

func init() {
	certificateCmd.Flags().String("id", "", "scan ID (required)")
	certificateCmd.Flags().String("format", "json", "output format: json or pdf")
	certificateCmd.Flags().String("output", "", "output path (default: stdout for json, results dir for pdf)")
}

func exportCertificate(ctx context.Context, archive *jsonstore.Archive, issuer *certificate.Issuer,
	id, format, output string) error {

	job, err := archive.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("load scan %s: %w", id, err)
	}

	issued := job.Certificate() != nil
	cert, err := issuer.Issue(job)
	if err != nil {
		return fmt.Errorf("issue certificate: %w", err)
	}
	if !issued {
		if err := archive.Archive(ctx, job); err != nil {
			return fmt.Errorf("archive certificate: %w", err)
		}
	}

	switch format {
	case "", "json":
		data, err := json.MarshalIndent(certificate.PayloadFor(job, cert), "", "  ")
		if err != nil {
			return fmt.Errorf("encode certificate: %w", err)
		}
		return writeArtifact(output, data)
	case "pdf":
		data, err := certificate.RenderCertificatePDF(job, cert)
		if err != nil {
			return fmt.Errorf("render certificate: %w", err)
		}
		if output == "" {
			output = filepath.Join(archive.Dir(), fmt.Sprintf("certificate-%s.pdf", job.ID()))
		}
		return writeArtifact(output, data)
	default:
		return fmt.Errorf("unsupported format %q (json or pdf)", format)
	}
}

// writeArtifact writes data to path, or to stdout when no path is given.
func writeArtifact(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(path, data, constants.DefaultFilePerm); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("%s Written to %s\n", colorSuccess("✓"), path)
	return nil
}
