package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/beesaferoot/buildops/internal/reports"
)

func ReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build and export reports",
	}
	cmd.AddCommand(ReportListCmd(), ReportExportCmd())
	return cmd
}

func ReportListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			for _, name := range a.Services.Reports.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func ReportExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <name>[,<name>...]",
		Short: "Export reports as CSV or XLSX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			entity, _ := cmd.Flags().GetUint("entity")
			job, _ := cmd.Flags().GetUint("job")
			investor, _ := cmd.Flags().GetUint("investor")
			asOf, _ := cmd.Flags().GetString("as-of")

			p := reports.Params{EntityID: entity, JobID: job, InvestorID: investor}
			if asOf != "" {
				t, err := time.Parse(time.DateOnly, asOf)
				if err != nil {
					return fmt.Errorf("invalid --as-of %q: want YYYY-MM-DD", asOf)
				}
				p.AsOf = t
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tables, err := a.Services.Reports.Bundle(cmd.Context(), strings.Split(args[0], ","), p)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				return reports.Export(cmd.OutOrStdout(), format, tables...)
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			if err := reports.Export(f, format, tables...); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().String("format", reports.FormatCSV, "Export format: csv or xlsx")
	cmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	cmd.Flags().Uint("entity", 0, "Entity id for accounting reports")
	cmd.Flags().Uint("job", 0, "Job id for the job cost report")
	cmd.Flags().Uint("investor", 0, "Investor id for the investor statement")
	cmd.Flags().String("as-of", "", "Report date, YYYY-MM-DD (default today)")
	return cmd
}
