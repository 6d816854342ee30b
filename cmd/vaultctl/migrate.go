package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"vault-store/config"
	"vault-store/internal/app"
	"vault-store/internal/domain"
)

// openWire は環境変数の設定で依存関係を組み立てる。migrateコマンドはAPIを経由せずに保管庫を直接操作する。
func openWire(ctx context.Context) (*app.Wire, error) {
	_ = godotenv.Load()
	w, err := app.NewWire(ctx, config.Load())
	if err != nil {
		return nil, fmt.Errorf("opening vault: %w", err)
	}
	return w, nil
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage document schema migrations",
		Long:  "Inspect and apply schema migrations to the local encrypted document",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateStatusCmd())
	cmd.AddCommand(migratePlanCmd())
	cmd.AddCommand(migrateValidateCmd())
	cmd.AddCommand(migrateHistoryCmd())
	cmd.AddCommand(migrateBackupsCmd())
	return cmd
}

type outcomeView struct {
	Success    bool   `json:"success" yaml:"success"`
	From       int    `json:"from_version" yaml:"from_version"`
	To         int    `json:"to_version" yaml:"to_version"`
	Message    string `json:"message" yaml:"message"`
	DurationMs int64  `json:"duration_ms" yaml:"duration_ms"`
	BackupName string `json:"backup_name,omitempty" yaml:"backup_name,omitempty"`
}

func migrateUpCmd() *cobra.Command {
	var target int
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Migrate the stored document",
		Long:  "Back up the stored document and migrate it to the target schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target < 0 {
				return fmt.Errorf("--to must not be negative")
			}
			ctx := cmd.Context()
			w, err := openWire(ctx)
			if err != nil {
				return err
			}
			defer w.Close()

			out := cmd.ErrOrStderr()
			outcome, err := w.Documents.Migrate(ctx, target, func(p domain.MigrationProgress) {
				fmt.Fprintf(out, "[%d/%d] %s\n", p.CurrentStep, p.TotalSteps, p.StepDescription)
			})
			if err != nil {
				return fmt.Errorf("migration failed: %s", domain.UserMessage(err))
			}

			view := outcomeView{
				Success:    outcome.Success,
				From:       outcome.FromVersion,
				To:         outcome.ToVersion,
				Message:    outcome.Message,
				DurationMs: outcome.DurationMs(),
				BackupName: outcome.BackupName,
			}
			if err := render(cmd.OutOrStdout(), view, func(w io.Writer) {
				fmt.Fprintln(w, outcome.Message)
				if outcome.BackupCreated {
					fmt.Fprintf(w, "Backup: %s\n", outcome.BackupName)
				}
			}); err != nil {
				return err
			}
			if !outcome.Success {
				return fmt.Errorf("migration failed: %s", domain.UserMessage(outcome.Cause))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&target, "to", domain.CurrentSchemaVersion.Number, "Target schema version")
	return cmd
}

func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w, err := openWire(ctx)
			if err != nil {
				return err
			}
			defer w.Close()

			status, err := w.Documents.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			view := struct {
				DocumentExists bool `json:"document_exists" yaml:"document_exists"`
				StoredVersion  int  `json:"stored_version" yaml:"stored_version"`
				CurrentVersion int  `json:"current_version" yaml:"current_version"`
				NeedsMigration bool `json:"needs_migration" yaml:"needs_migration"`
				Intact         bool `json:"intact" yaml:"intact"`
			}{status.DocumentExists, status.StoredVersion, status.CurrentVersion, status.NeedsMigration, status.Intact}

			return render(cmd.OutOrStdout(), view, func(out io.Writer) {
				if !status.DocumentExists {
					fmt.Fprintln(out, "No document stored.")
					return
				}
				if !status.Intact {
					fmt.Fprintln(out, "Stored document is unreadable.")
					return
				}
				fmt.Fprintf(out, "Stored version %d, current version %d (%s)\n",
					status.StoredVersion, status.CurrentVersion,
					yesNo(status.NeedsMigration, "migration required", "up to date"))
			})
		},
	}
}

type stepView struct {
	From        int    `json:"from_version" yaml:"from_version"`
	To          int    `json:"to_version" yaml:"to_version"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Reversible  bool   `json:"reversible" yaml:"reversible"`
}

func toStepViews(units []domain.MigrationUnit) []stepView {
	views := make([]stepView, len(units))
	for i, u := range units {
		views[i] = stepView{u.FromVersion(), u.ToVersion(), u.Name(), u.Description(), u.Reversible()}
	}
	return views
}

func migratePlanCmd() *cobra.Command {
	var from, to int
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the migration path between two versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := app.NewRegistry()
			if err != nil {
				return err
			}
			steps := toStepViews(registry.FindPath(from, to))
			if from != to && len(steps) == 0 {
				return fmt.Errorf("no migration path from %d to %d", from, to)
			}

			return render(cmd.OutOrStdout(), steps, func(out io.Writer) {
				if len(steps) == 0 {
					fmt.Fprintln(out, "Nothing to do.")
					return
				}
				tw := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
				fmt.Fprintln(tw, "STEP\tFROM\tTO\tNAME\tDESCRIPTION")
				for i, s := range steps {
					fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\n", i+1, s.From, s.To, s.Name, s.Description)
				}
				tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&from, "from", 0, "Source schema version")
	cmd.Flags().IntVar(&to, "to", domain.CurrentSchemaVersion.Number, "Target schema version")
	cmd.MarkFlagRequired("from")
	return cmd
}

func migrateValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the registered migrations form a complete chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := app.NewRegistry()
			if err != nil {
				return err
			}
			result := registry.ValidateChain()
			if err := render(cmd.OutOrStdout(), result, func(out io.Writer) {
				if result.Valid {
					fmt.Fprintf(out, "Migration chain is valid (versions %d to %d).\n",
						registry.LowestVersion(), registry.HighestVersion())
					return
				}
				for _, e := range result.Errors {
					fmt.Fprintln(out, e)
				}
			}); err != nil {
				return err
			}
			if !result.Valid {
				return fmt.Errorf("migration chain is invalid")
			}
			return nil
		},
	}
}

func migrateHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show recorded migration attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w, err := openWire(ctx)
			if err != nil {
				return err
			}
			defer w.Close()

			records, err := w.Documents.History(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), records, func(out io.Writer) {
				tw := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
				fmt.Fprintln(tw, "FROM\tTO\tSTATUS\tDURATION\tAPPLIED AT\tBACKUP")
				for _, r := range records {
					backup := r.BackupName
					if backup == "" {
						backup = "-"
					}
					fmt.Fprintf(tw, "%d\t%d\t%s\t%dms\t%s\t%s\n",
						r.FromVersion, r.ToVersion, r.Status, r.DurationMs,
						r.AppliedAt.Format("2006-01-02 15:04:05"), backup)
				}
				tw.Flush()
			})
		},
	}
}

func migrateBackupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List pre-migration backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w, err := openWire(ctx)
			if err != nil {
				return err
			}
			defer w.Close()

			names, err := w.Store.ListBackups(ctx)
			if err != nil {
				return fmt.Errorf("failed to list backups: %w", err)
			}
			return render(cmd.OutOrStdout(), names, func(out io.Writer) {
				if len(names) == 0 {
					fmt.Fprintln(out, "No backups.")
					return
				}
				for _, n := range names {
					fmt.Fprintln(out, n)
				}
			})
		},
	}
}
