package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

const defaultSyncLogLimit = 20

func newSyncLogCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "synclog",
		Short: "Show recent sync run entries",
		Long: `Display the most recent entries from the shared SyncLog table: one row
per phase transition (Started/Progress/Completed/Failed/Resuming) of each
sync run, newest first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSyncLog(cmd, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", defaultSyncLogLimit, "number of entries to show")

	return cmd
}

type syncLogEntryJSON struct {
	SessionID string `json:"session_id"`
	Phase     string `json:"phase"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Recorded  string `json:"recorded_at"`
}

func runSyncLog(cmd *cobra.Command, limit int) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	a, err := newApp(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.synclog.Recent(ctx, limit)
	if err != nil {
		return err
	}

	out := make([]syncLogEntryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, syncLogEntryJSON{
			SessionID: e.SessionID,
			Phase:     e.Phase,
			Status:    string(e.Status),
			Detail:    e.Detail,
			Recorded:  formatTime(e.TimestampUTC),
		})
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	printSyncLogText(out)

	return nil
}

func printSyncLogText(entries []syncLogEntryJSON) {
	if len(entries) == 0 {
		statusf(flagQuiet, "No sync runs recorded yet.\n")
		return
	}

	headers := []string{"SESSION", "PHASE", "STATUS", "RECORDED", "DETAIL"}
	rows := make([][]string, 0, len(entries))

	for _, e := range entries {
		rows = append(rows, []string{shorten(e.SessionID, 8), e.Phase, e.Status, e.Recorded, e.Detail})
	}

	printTable(os.Stdout, headers, rows)
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n]
}
