package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/bozonx/mediastore/internal/logger"
	"github.com/bozonx/mediastore/internal/registry"
	"github.com/bozonx/mediastore/pkg/problems"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var problemsFormat string

var problemsCmd = &cobra.Command{
	Use:   "problems-report",
	Short: "Run the Problem Detector and print its report",
	Long: `Scan the metadata store for invariant violations (missing blobs,
stale pending uploads, stuck optimizations, stale soft-deletes) and print
the resulting report to stdout, for use by operators or external
monitoring. --format table (the default) renders a human-readable table;
--format json emits the raw report for machine consumption.`,
	RunE: runProblems,
}

func init() {
	problemsCmd.Flags().StringVar(&problemsFormat, "format", "table", "output format: table or json")
}

func runProblems(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}

	ctx := context.Background()
	reg, err := registry.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize registry: %w", err)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Error("registry close error", "error", err)
		}
	}()

	report, err := reg.Detector.Scan(ctx)
	if err != nil {
		return fmt.Errorf("problem scan failed: %w", err)
	}

	if problemsFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return renderProblemsTable(os.Stdout, report)
}

func renderProblemsTable(w io.Writer, report *problems.Report) error {
	fmt.Fprintln(w, "status counts:")
	statusTable := tablewriter.NewWriter(w)
	statusTable.SetHeader([]string{"Status", "Count"})
	for status, count := range report.StatusCounts {
		statusTable.Append([]string{string(status), fmt.Sprintf("%d", count)})
	}
	statusTable.Render()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "problems found: %d\n", len(report.Problems))
	if len(report.Problems) == 0 {
		return nil
	}

	problemsTable := tablewriter.NewWriter(w)
	problemsTable.SetHeader([]string{"Code", "File ID", "Message"})
	for _, p := range report.Problems {
		problemsTable.Append([]string{p.Code, p.FileID, p.Message})
	}
	problemsTable.Render()
	return nil
}
