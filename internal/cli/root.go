// Package cli implements the buildops command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/beesaferoot/buildops/internal/app"
	"github.com/beesaferoot/buildops/internal/config"
	"github.com/beesaferoot/buildops/internal/database"
	"github.com/beesaferoot/buildops/internal/logging"
	"github.com/beesaferoot/buildops/internal/migration"
)

// NewRootCmd returns the buildops command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "buildops",
		Short:         "Back office for a land and home building business",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("debug", false, "Enable debug logging")
	root.PersistentFlags().String("config", "", "Path to a YAML config file (default $BUILDOPS_CONFIG_FILE)")

	root.AddCommand(
		ServeCmd(),
		MigrateCmd(),
		DealSheetCmd(),
		ReportCmd(),
		WorkflowCmd(),
		BankCmd(),
	)
	return root
}

func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Logging, debug)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// session is a database connection without the services, for commands
// that only touch the schema.
type session struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB
}

func openDB(cmd *cobra.Command) (*session, error) {
	cfg, log, err := setup(cmd)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, log: log, db: db}, nil
}

func (s *session) migrator() (*migration.Migrator, error) {
	return app.NewMigrator(s.db, s.log, s.cfg.Migrations.Dir)
}

func (s *session) Close() {
	_ = database.Close(s.db)
	_ = s.log.Sync()
}

func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, log, err := setup(cmd)
	if err != nil {
		return nil, err
	}
	a, err := app.New(cmd.Context(), cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	return a, nil
}
