package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if migrate {
				m, err := a.Migrator()
				if err != nil {
					return err
				}
				applied, err := m.Up(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to migrate: %w", err)
				}
				a.Log.Info("migrations applied", zap.Int("count", len(applied)))
			}
			return a.Serve(cmd.Context())
		},
	}
	cmd.Flags().Bool("migrate", false, "Apply pending migrations before serving")
	return cmd
}
