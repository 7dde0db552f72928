package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"triagebot/internal/store"

	"github.com/spf13/cobra"
)

func auditCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recent routing decisions from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.Storage.Enabled {
				return fmt.Errorf("storage is disabled, no routing audit is recorded")
			}
			st, err := store.NewSQLiteStore(cfg.Storage.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			entries, err := st.RecentRoutes(ctx, limit)
			if err != nil {
				return err
			}
			printRoutes(cmd, entries)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}

func printRoutes(cmd *cobra.Command, entries []store.RouteEntry) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tOUTCOME\tCATEGORY\tCHANNEL\tMESSAGE\tDURATION\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%dms\t%s\n",
			e.CreatedAt.Format(time.RFC3339), e.Outcome, e.Category, e.ChannelID, e.MessageID, e.DurationMS, e.Detail)
	}
	w.Flush()
}
