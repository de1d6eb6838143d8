package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func BankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bank",
		Short: "Bank account tools",
	}
	cmd.AddCommand(BankImportCmd())
	return cmd
}

func BankImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <account-id> <file.csv>",
		Short: "Import a bank statement CSV",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid account id %q", args[0])
			}
			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("failed to open statement: %w", err)
			}
			defer f.Close()

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Services.Banking.ImportStatement(cmd.Context(), uint(id), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d lines, skipped %d already imported\n", res.Imported, res.Skipped)
			return nil
		},
	}
}
