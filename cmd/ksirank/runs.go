package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ksi-rank/internal/consensus"
	"ksi-rank/internal/report"
	"ksi-rank/internal/storage"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded ranking runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetDuration("since")

		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		end := time.Now()
		start := time.Time{}
		if since > 0 {
			start = end.Add(-since)
		}
		runs, err := store.GetRunsInRange(start, end)
		if err != nil {
			return fmt.Errorf("query runs: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs found.")
			return nil
		}

		fmt.Fprintf(out, "%-36s  %-19s  %-4s  %-7s  %-6s  %s\n", "Run", "Created", "K", "Voted", "Failed", "Top feature")
		fmt.Fprintln(out, strings.Repeat("─", 100))
		for _, r := range runs {
			top := ""
			if len(r.Entries) > 0 {
				top = fmt.Sprintf("%s (%d)", r.Entries[0].Feature, r.Entries[0].Votes)
			}
			fmt.Fprintf(out, "%-36s  %-19s  %-4d  %-7d  %-6d  %s\n",
				r.RunID,
				r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				r.K,
				r.Succeeded(),
				len(r.Failures),
				top,
			)
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id|latest>",
	Short: "Show the ranking of a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		top, _ := cmd.Flags().GetInt("top")

		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		var r *consensus.Ranking
		if args[0] == "latest" {
			r, err = store.LatestRun()
		} else {
			r, err = store.GetRun(args[0])
		}
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("run %s not found", args[0])
		}
		if err != nil {
			return fmt.Errorf("get run: %w", err)
		}

		if top <= 0 {
			top = r.K
		}
		return report.NewReporter(r, "").PrintSummary(cmd.OutOrStdout(), top)
	},
}

var runsHistoryCmd = &cobra.Command{
	Use:   "history <feature>",
	Short: "Show how a feature was voted across runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.GetFeatureHistory(args[0], time.Time{}, time.Now())
		if err != nil {
			return fmt.Errorf("query history: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(records) == 0 {
			fmt.Fprintf(out, "No history for %s.\n", args[0])
			return nil
		}
		fmt.Fprintf(out, "%-19s  %-36s  %-5s  %-6s  %s\n", "Created", "Run", "Rank", "Votes", "Selected by")
		for _, rec := range records {
			fmt.Fprintf(out, "%-19s  %-36s  %-5d  %d/%-4d  %s\n",
				rec.Timestamp.Local().Format("2006-01-02 15:04:05"),
				rec.RunID,
				rec.Rank,
				rec.Votes,
				rec.Voters,
				strings.Join(rec.SelectedBy, ","),
			)
		}
		return nil
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.DeleteRun(args[0]); err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s.\n", args[0])
		return nil
	},
}

func init() {
	runsListCmd.Flags().Duration("since", 0, "Only list runs newer than this (0 = all)")
	runsShowCmd.Flags().Int("top", 0, "Rows to print (default: the run's k)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsHistoryCmd)
	runsCmd.AddCommand(runsDeleteCmd)
}

func openStore(cmd *cobra.Command) (*storage.Store, error) {
	settings, err := loadSettings(cmd)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	store, err := storage.New(settings.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	return store, nil
}
