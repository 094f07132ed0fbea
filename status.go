package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/countrydata/rowsync/internal/store"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sync anchor and last run outcome",
		Long: `Display the current sync anchor timestamp, whether the last run left a
dangling (crashed) session, and the most recent SyncLog entry.`,
		RunE: runStatus,
	}
}

type statusJSON struct {
	Anchor          string `json:"anchor,omitempty"`
	DanglingSession string `json:"dangling_session,omitempty"`
	LastEntrySession string `json:"last_entry_session,omitempty"`
	LastEntryPhase  string `json:"last_entry_phase,omitempty"`
	LastEntryStatus string `json:"last_entry_status,omitempty"`
	LastEntryDetail string `json:"last_entry_detail,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	a, err := newApp(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := buildStatus(ctx, a)
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	printStatusText(cc, out)

	return nil
}

func buildStatus(ctx context.Context, a *app) (statusJSON, error) {
	var out statusJSON

	anchor, ok, err := a.local.GetParameter(ctx, store.ParameterLastSyncTimestamp)
	if err != nil {
		return out, err
	}

	if ok {
		out.Anchor = anchor
	}

	if sessionID, dangling, err := a.synclog.LatestDangling(ctx); err == nil && dangling {
		out.DanglingSession = sessionID
	}

	entries, err := a.synclog.Recent(ctx, 1)
	if err != nil {
		return out, err
	}

	if len(entries) > 0 {
		e := entries[0]
		out.LastEntrySession = e.SessionID
		out.LastEntryPhase = e.Phase
		out.LastEntryStatus = string(e.Status)
		out.LastEntryDetail = e.Detail
	}

	return out, nil
}

func printStatusText(cc *CLIContext, out statusJSON) {
	if out.Anchor == "" {
		cc.Statusf("Anchor:    (never synced)\n")
	} else {
		cc.Statusf("Anchor:    %s\n", out.Anchor)
	}

	if out.DanglingSession != "" {
		cc.Statusf("Warning:   last run (session %s) did not complete\n", out.DanglingSession)
	}

	if out.LastEntrySession != "" {
		cc.Statusf("Last run:  %s %s/%s %s\n", out.LastEntrySession, out.LastEntryPhase, out.LastEntryStatus, out.LastEntryDetail)
	}
}
