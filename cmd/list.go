package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jalal-stack/cyberaudit/internal/domain/scan"
	jsonstore "github.com/jalal-stack/cyberaudit/internal/infrastructure/persistence/json"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived scans",
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := jsonstore.NewArchive(resultsDir)
		if err != nil {
			return err
		}
		jobs, err := archive.LoadAll(cmd.Context())
		if err != nil {
			return err
		}
		printArchiveTable(jobs)
		return nil
	},
}

func printArchiveTable(jobs []*scan.Job) {
	if len(jobs) == 0 {
		fmt.Println("No archived scans found.")
		return
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt().After(jobs[j].CreatedAt())
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTARGET\tSTATUS\tSCORE\tCERT\tCREATED")
	for _, job := range jobs {
		score := "-"
		if composite := job.Composite(); composite != nil {
			score = fmt.Sprintf("%d/100", composite.Score())
		}
		cert := "-"
		if job.Certificate() != nil {
			cert = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			job.ID(), job.Target(), formatStatusWithColor(string(job.Status())),
			score, cert, job.CreatedAt().Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}
