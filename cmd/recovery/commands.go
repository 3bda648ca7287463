package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"interview-backend/internal/interviews"
	"interview-backend/internal/recovery"
	"interview-backend/internal/shared/auth"
	"interview-backend/internal/shared/requestid"
)

func newRootCommand(ctx *commandContext) *cobra.Command {
	root := &cobra.Command{
		Use:           "recovery",
		Short:         "Inspect and repair stalled interview processing",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path (TOML)")

	root.AddCommand(newRunCommand(ctx))
	root.AddCommand(newStatusCommand(ctx))
	root.AddCommand(newOrphanedCommand(ctx))
	root.AddCommand(newRetryCommand(ctx))
	root.AddCommand(newCleanupCommand(ctx))
	root.AddCommand(newTokenCommand(ctx))
	return root
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Print status, run one recovery cycle, then print status again",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx := requestid.With(cmd.Context(), requestid.New())
			op, err := ctx.operator(runCtx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			before, err := op.Status(runCtx)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Before:")
			printReport(out, before)

			res, err := op.RunCycle(runCtx)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			printCycle(out, res)

			after, err := op.Status(runCtx)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "\nAfter:")
			printReport(out, after)
			return nil
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show interview counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := ctx.operator(cmd.Context())
			if err != nil {
				return err
			}
			report, err := op.Status(cmd.Context())
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
}

func newOrphanedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "orphaned",
		Short: "List interviews stalled past the orphan timeout",
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := ctx.operator(cmd.Context())
			if err != nil {
				return err
			}
			views, err := op.ListOrphaned(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(views) == 0 {
				fmt.Fprintln(out, "No orphaned interviews")
				return nil
			}
			rows := make([][]string, 0, len(views))
			for _, v := range views {
				started := ""
				if v.StartedAt != nil {
					started = v.StartedAt.UTC().Format(time.RFC3339)
				}
				rows = append(rows, []string{
					v.ID,
					v.OwnerRef,
					string(v.Status),
					started,
					fmt.Sprintf("%d/%d", v.ChunksProcessed, v.ChunksTotal),
					strconv.Itoa(v.RetryCount),
					fmt.Sprintf("%.1f", v.ProcessingMinutes),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Owner", "Status", "Started", "Chunks", "Retries", "Minutes"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <interview-id>",
		Short: "Force a retry of one failed interview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx := requestid.With(cmd.Context(), requestid.New())
			op, err := ctx.operator(runCtx)
			if err != nil {
				return err
			}
			outcome, err := op.ForceRetry(runCtx, args[0])
			switch {
			case errors.Is(err, interviews.ErrNotFound):
				return fmt.Errorf("interview %s not found", args[0])
			case err != nil:
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Interview %s: %s\n", args[0], outcome)
			return nil
		},
	}
}

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete finished interviews older than --days",
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := ctx.operator(cmd.Context())
			if err != nil {
				return err
			}
			deleted, err := op.Cleanup(cmd.Context(), days)
			if errors.Is(err, recovery.ErrCleanupTooRecent) {
				return fmt.Errorf("--days must be at least %d", ctx.cleanupFloor())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d interviews older than %d days\n", deleted, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Minimum age in days of interviews to delete")
	return cmd
}

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var (
		operatorName string
		ttl          time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a personal operator token signed with ADMIN_TOKEN",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(ctx.configFlag)
			if err != nil {
				return err
			}
			token, err := auth.NewSigner(cfg.AdminToken).Sign(operatorName, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&operatorName, "operator", "", "Operator name embedded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTTL, "Token lifetime")
	cmd.MarkFlagRequired("operator")
	return cmd
}

func printReport(out io.Writer, report recovery.Report) {
	rows := make([][]string, 0, len(report.ByStatus)+3)
	for _, status := range statusOrder() {
		rows = append(rows, []string{string(status), strconv.Itoa(report.ByStatus[status])})
	}
	rows = append(rows,
		[]string{"total", strconv.Itoa(report.Total)},
		[]string{"orphaned", strconv.Itoa(report.Orphaned)},
		[]string{"retry ready", strconv.Itoa(report.RetryReady)},
	)
	fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	fmt.Fprintf(out, "Policy: orphan timeout %.0fm, retry delay %.0fm, max attempts %d\n",
		report.Policy.OrphanTimeoutMinutes, report.Policy.RetryDelayMinutes, report.Policy.MaxRetryAttempts)
}

func printCycle(out io.Writer, res recovery.CycleResult) {
	rows := [][]string{
		{"orphans found", strconv.Itoa(res.OrphansFound)},
		{"orphans recovered", strconv.Itoa(res.OrphansRecovered)},
		{"retries found", strconv.Itoa(res.RetriesFound)},
		{"retries dispatched", strconv.Itoa(res.RetriesDispatched)},
		{"permanently failed", strconv.Itoa(res.PermanentlyFailed)},
		{"conflicts", strconv.Itoa(res.Conflicts)},
		{"errors", strconv.Itoa(res.Errors)},
	}
	fmt.Fprintln(out, "Cycle:")
	fmt.Fprintln(out, renderTable([]string{"Step", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}
