package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func WorkflowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage workflow templates",
	}
	cmd.AddCommand(WorkflowImportCmd(), WorkflowExportCmd())
	return cmd
}

func WorkflowImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import a workflow template from YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open template: %w", err)
			}
			defer f.Close()

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tpl, err := a.Services.Workflow.ImportYAML(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported template %q (id %d, %d phases)\n", tpl.Name, tpl.ID, len(tpl.Phases))
			return nil
		},
	}
}

func WorkflowExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <template-id>",
		Short: "Write a workflow template as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid template id %q", args[0])
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Services.Workflow.ExportYAML(cmd.Context(), uint(id), cmd.OutOrStdout())
		},
	}
}
