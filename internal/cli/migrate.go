package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/beesaferoot/buildops/internal/migration"
	"github.com/beesaferoot/buildops/internal/models"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(
		InitCmd(),
		CreateCmd(),
		UpCmd(),
		DownCmd(),
		StatusCmd(),
		HistoryCmd(),
		ValidateCmd(),
		DriftCmd(),
		GenerateCmd(),
	)
	return cmd
}

func InitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize migration tracking table in the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			m, err := s.migrator()
			if err != nil {
				return err
			}
			if err := m.Init(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migration table initialized.")
			return nil
		},
	}
}

func CreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create [name]",
		Short: "Create a new migration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			up, down, err := migration.CreateFiles(cfg.Migrations.Dir, args[0], time.Now(),
				"-- Write the forward change here.\n",
				"-- Write the statements that undo the up migration here.\n")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created migration: %s\n", up)
			fmt.Fprintf(cmd.OutOrStdout(), "Created migration: %s\n", down)
			return nil
		},
	}
}

func UpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			s, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			m, err := s.migrator()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			pending, err := m.Pending(cmd.Context())
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Fprintln(out, "No pending migrations.")
				return nil
			}
			if dryRun {
				fmt.Fprintln(out, "Pending migrations:")
				for _, mig := range pending {
					fmt.Fprintf(out, "- %s (%s)\n", mig.Name, mig.Version)
				}
				return nil
			}

			applied, err := m.Up(cmd.Context())
			for _, mig := range applied {
				fmt.Fprintf(out, "Successfully applied migration: %s (%s)\n", mig.Name, mig.Version)
			}
			return err
		},
	}
	cmd.Flags().Bool("dry-run", false, "List pending migrations without applying them")
	return cmd
}

func DownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Revert the last migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			m, err := s.migrator()
			if err != nil {
				return err
			}

			reverted, err := m.Down(cmd.Context())
			if err != nil {
				return err
			}
			if reverted == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No migrations to revert.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Successfully reverted migration: %s (%s)\n", reverted.Name, reverted.Version)
			return nil
		},
	}
}

func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show status of all migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			m, err := s.migrator()
			if err != nil {
				return err
			}

			rows, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-16s  %-30s  %-8s  %s\n", "Version", "Name", "Status", "Applied At")
			for _, r := range rows {
				at := ""
				if r.AppliedAt != nil {
					at = r.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(out, "%-16s  %-30s  %-8s  %s\n", r.Version, r.Name, r.Status, at)
			}
			return nil
		},
	}
}

func HistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show migration history",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			m, err := s.migrator()
			if err != nil {
				return err
			}

			records, err := m.History(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No migrations have been applied yet.")
				return nil
			}
			fmt.Fprintf(out, "%-16s  %-30s  %-24s\n", "Version", "Name", "Applied At")
			for _, r := range records {
				fmt.Fprintf(out, "%-16s  %-30s  %-24s\n", r.Version, r.Name, r.AppliedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func ValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate all migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			migs, err := migration.All(cfg.Migrations.Dir)
			if err != nil {
				return err
			}
			if err := migration.Validate(migs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "All %d migrations are valid.\n", len(migs))
			return nil
		},
	}
}

func DriftCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drift",
		Short: "Compare the models with the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			drift, err := migration.DetectDrift(cmd.Context(), s.db, models.All()...)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), drift.String())
			return nil
		},
	}
}

func GenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate [name]",
		Short: "Generate a migration from model changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			gen, err := migration.Generate(cmd.Context(), s.db, s.cfg.Migrations.Dir, args[0], time.Now(), models.All()...)
			if errors.Is(err, migration.ErrNoDrift) {
				fmt.Fprintln(cmd.OutOrStdout(), "No schema changes detected")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated migration: %s\n", gen.UpPath)
			fmt.Fprintf(cmd.OutOrStdout(), "Generated migration: %s\n", gen.DownPath)
			return nil
		},
	}
}
