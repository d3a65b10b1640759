package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	rootpkg "github.com/getpup/pupsourcing-migrator"
	"github.com/getpup/pupsourcing-migrator/orchestrator"
	"github.com/getpup/pupsourcing-migrator/source"
	"github.com/getpup/pupsourcing-migrator/strategy"
)

func newApplyCmd(a *app) *cobra.Command {
	var (
		strategyName string
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := strategy.ParseKind(strategyName)
			if err != nil {
				return err
			}

			s, err := openSession(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.migrator.Apply(cmd.Context(), orchestrator.ApplyOptions{Strategy: kind, DryRun: dryRun})
			return reportApply(cmd, report, err)
		},
	}
	cmd.Flags().StringVar(&strategyName, "strategy", string(strategy.KindOnline), "migration strategy: online, shadow_table, dual_write or maintenance")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be applied without executing anything")
	return cmd
}

// reportApply prints whatever part of the run completed, even when Apply
// returned an error alongside the report.
func reportApply(cmd *cobra.Command, report *rootpkg.RunReport, err error) error {
	if report != nil {
		printReport(cmd, report)
	}
	if err != nil {
		return err
	}
	if report.Failed() {
		return errMigrationFailed
	}
	return nil
}

func printReport(cmd *cobra.Command, report *rootpkg.RunReport) {
	out := cmd.OutOrStdout()

	switch report.Outcome {
	case rootpkg.RunOutcomeNothingToDo:
		fmt.Fprintln(out, "No pending migrations")
		return
	case rootpkg.RunOutcomeDryRun:
		fmt.Fprintf(out, "Dry run (%s): %d migrations would be applied\n", report.Strategy, len(report.WouldApply))
		for _, def := range report.WouldApply {
			fmt.Fprintf(out, "  %s - %s\n", def.ID, def.Name)
		}
		return
	}

	fmt.Fprintf(out, "Applied %d/%d migrations successfully\n", len(report.Applied()), len(report.Results))
	for _, res := range report.Results {
		printResult(cmd, "", res)
	}
	if len(report.StillPending) > 0 {
		ids := make([]string, len(report.StillPending))
		for i, def := range report.StillPending {
			ids[i] = def.ID
		}
		fmt.Fprintf(out, "Not attempted: %s\n", strings.Join(ids, ", "))
	}
}

func printResult(cmd *cobra.Command, prefix string, res rootpkg.ExecutionResult) {
	label := "OK"
	if !res.Success {
		label = "FAILED"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "  %s %s%s (%.2fs)\n", label, prefix, res.MigrationID, res.Duration.Seconds())
	if res.Error != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "     Error: %s\n", res.Error)
	}
}

func newRollbackCmd(a *app) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Roll back one applied migration using its stored rollback SQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.migrator.Rollback(cmd.Context(), id)
			if err != nil {
				return err
			}

			printResult(cmd, "rollback ", res)
			if !res.Success {
				return errMigrationFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "migration-id", "", "ID of the migration to roll back")
	_ = cmd.MarkFlagRequired("migration-id")
	return cmd
}

type snapshotView struct {
	Operation        string     `json:"operation"`
	Strategy         string     `json:"strategy"`
	CurrentMigration string     `json:"current_migration"`
	Status           string     `json:"status"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	FailedAt         *time.Time `json:"failed_at,omitempty"`
	Error            string     `json:"error,omitempty"`
}

type appliedView struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Version         string    `json:"version"`
	AppliedAt       time.Time `json:"applied_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	Checksum        string    `json:"checksum"`
	IsBreaking      bool      `json:"is_breaking"`
	Strategy        string    `json:"strategy,omitempty"`
}

type statusView struct {
	CurrentOperation *snapshotView `json:"current_operation"`
	AppliedCount     int           `json:"applied_count"`
	PendingCount     int           `json:"pending_count"`
	BlockedCount     int           `json:"blocked_count"`
	LatestApplied    *appliedView  `json:"latest_applied"`
	NextPending      *string       `json:"next_pending"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the live run and ledger summary as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer s.Close()

			summary, err := s.migrator.Status(cmd.Context())
			if err != nil {
				return err
			}

			view := statusView{
				AppliedCount: summary.AppliedCount,
				PendingCount: summary.PendingCount,
				BlockedCount: summary.BlockedCount,
			}
			if cur := summary.Current; cur != nil {
				view.CurrentOperation = &snapshotView{
					Operation:        cur.Operation,
					Strategy:         cur.Strategy,
					CurrentMigration: cur.CurrentMigration,
					Status:           string(cur.Phase),
					StartedAt:        timePtr(cur.StartedAt),
					FailedAt:         timePtr(cur.FailedAt),
					Error:            cur.Error,
				}
			}
			if last := summary.LastApplied; last != nil {
				view.LatestApplied = &appliedView{
					ID:              last.ID,
					Name:            last.Name,
					Version:         last.Version,
					AppliedAt:       last.AppliedAt,
					DurationSeconds: last.Duration.Seconds(),
					Checksum:        last.Checksum,
					IsBreaking:      last.IsBreaking,
					Strategy:        last.Metadata.Strategy,
				}
			}
			if summary.NextPending != "" {
				next := summary.NextPending
				view.NextPending = &next
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List applied, pending and blocked migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer s.Close()

			listing, err := s.migrator.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Applied migrations (%d):\n", len(listing.Applied))
			for _, rec := range listing.Applied {
				fmt.Fprintf(out, "  %s - %s (applied: %s)\n", rec.ID, rec.Name, rec.AppliedAt.Format(time.RFC3339))
			}
			fmt.Fprintf(out, "\nPending migrations (%d):\n", len(listing.Pending))
			for _, def := range listing.Pending {
				fmt.Fprintf(out, "  %s - %s\n", def.ID, def.Name)
			}
			if len(listing.Blocked) > 0 {
				fmt.Fprintf(out, "\nBlocked migrations (%d):\n", len(listing.Blocked))
				for _, b := range listing.Blocked {
					fmt.Fprintf(out, "  %s - %s (missing: %s)\n", b.Definition.ID, b.Definition.Name, strings.Join(b.Missing, ", "))
				}
			}
			return nil
		},
	}
}

func newNewCmd(a *app) *cobra.Command {
	var (
		dir  string
		opts source.ScaffoldOptions
	)

	cmd := &cobra.Command{
		Use:   "new NAME",
		Short: "Create a new migration unit in the migrations directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = a.cfg.Migrations.Dir
			}
			path, err := source.Scaffold(dir, args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "target directory (default: migrations.dir)")
	cmd.Flags().StringVar(&opts.Version, "version", "", "migration version (default: 1.0.0)")
	cmd.Flags().StringSliceVar(&opts.Dependencies, "depends", nil, "IDs this migration depends on")
	cmd.Flags().BoolVar(&opts.IsBreaking, "breaking", false, "mark the migration as breaking")
	cmd.Flags().BoolVar(&opts.RequiresMaintenance, "maintenance", false, "mark the migration as requiring maintenance")
	cmd.Flags().StringVar(&opts.TargetTable, "target-table", "", "table rebuilt by the shadow_table strategy")
	cmd.Flags().DurationVar(&opts.EstimatedDuration, "estimated-duration", 0, "estimated apply duration")
	return cmd
}
