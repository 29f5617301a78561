package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"squeeze/internal/history"
)

func newHistoryCommand(cctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or reset recorded sweep outcomes",
	}
	cmd.AddCommand(newHistoryListCommand(cctx))
	cmd.AddCommand(newHistoryStatsCommand(cctx))
	cmd.AddCommand(newHistoryForgetCommand(cctx))
	cmd.AddCommand(newHistoryClearCommand(cctx))
	return cmd
}

func withStore(cctx *commandContext, fn func(cmd *cobra.Command, store *history.Store, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := cctx.ensureConfig()
		if err != nil {
			return err
		}
		store, err := history.Open(cfg.Paths.HistoryDB)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		return fn(cmd, store, args)
	}
}

func newHistoryListCommand(cctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded outcomes",
		RunE: withStore(cctx, func(cmd *cobra.Command, store *history.Store, _ []string) error {
			var statuses []history.Status
			if statusFilter != "" {
				statuses = append(statuses, history.Status(statusFilter))
			}
			records, err := store.List(cmd.Context(), statuses...)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("history is empty")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, record := range records {
				rows = append(rows, []string{
					record.Key,
					string(record.Status),
					humanize.IBytes(uint64(record.BytesSaved)),
					record.RecordedAt.Local().Format(time.DateTime),
				})
			}
			fmt.Println(renderTable(
				[]string{"File", "Status", "Saved", "Recorded"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		}),
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show records with this status")
	return cmd
}

func newHistoryStatsCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show outcome counts and cumulative savings",
		RunE: withStore(cctx, func(cmd *cobra.Command, store *history.Store, _ []string) error {
			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			total, err := store.TotalSaved(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(stats)+1)
			for _, status := range history.Statuses() {
				if count, ok := stats[status]; ok {
					rows = append(rows, []string{string(status), fmt.Sprintf("%d", count)})
				}
			}
			rows = append(rows, []string{"total saved", humanize.IBytes(uint64(total))})
			fmt.Println(renderTable(
				[]string{"Status", "Count"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		}),
	}
}

func newHistoryForgetCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <key>",
		Short: "Remove one record so the file is reconsidered next run",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(cctx, func(cmd *cobra.Command, store *history.Store, args []string) error {
			removed, err := store.Remove(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no record for %q", args[0])
			}
			fmt.Printf("forgot %s\n", args[0])
			return nil
		}),
	}
}

func newHistoryClearCommand(cctx *commandContext) *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all records and reset the savings counter",
		RunE: withStore(cctx, func(cmd *cobra.Command, store *history.Store, _ []string) error {
			if !confirmed {
				return fmt.Errorf("refusing to clear history without --yes")
			}
			count, err := store.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("cleared %d records\n", count)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm clearing all history")
	return cmd
}
