package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/countrydata/rowsync/internal/config"
	"github.com/countrydata/rowsync/internal/orchestrator"
)

// shutdownTimeout bounds how long the progress websocket server gets to
// drain connections when watch mode exits.
const shutdownTimeout = 5 * time.Second

func newSyncCmd() *cobra.Command {
	var (
		flagWatch        bool
		flagProgressAddr string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronization cycle",
		Long: `Push local changes to the remote store, pull remote changes, resolve
conflicts with last-writer-wins, and advance the sync anchor.

Use --watch to run continuously, re-syncing whenever the local change log
is written to, plus a periodic safety scan. --progress-addr additionally
serves progress over WebSocket on the given address, for a UI shell that
wants to observe a long-running watch process without polling.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), flagWatch, flagProgressAddr)
		},
	}

	cmd.Flags().BoolVar(&flagWatch, "watch", false, "continuous sync, re-running on local changes")
	cmd.Flags().StringVar(&flagProgressAddr, "progress-addr", "", "serve progress over WebSocket on this address (requires --watch)")

	cmd.AddCommand(newSyncReloadCmd())

	return cmd
}

func newSyncReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Force a running sync --watch daemon to resync immediately",
		Long: `Sends SIGHUP to the PID recorded by a running "sync --watch" process,
which forces it to run Synchronize immediately instead of waiting for the
next filesystem event or periodic safety scan.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			pidPath, err := watchPIDPath(cc.Cfg.Local)
			if err != nil {
				return err
			}

			return sendSIGHUP(pidPath)
		},
	}
}

// watchPIDPath returns the PID file path a "sync --watch" daemon for sc
// writes, or an error if sc isn't a file-backed store (watch mode requires
// one, so there is no daemon to signal).
func watchPIDPath(sc config.StoreConfig) (string, error) {
	changeLogPath := localChangeLogPath(sc)
	if changeLogPath == "" {
		return "", fmt.Errorf("no running watch daemon: local store is not file-backed (DSN %q)", sc.DSN)
	}

	return filepath.Join(filepath.Dir(changeLogPath), "rowsync-watch.pid"), nil
}

func runSync(ctx context.Context, watch bool, progressAddr string) error {
	cc := mustCLIContext(ctx)

	if progressAddr != "" && !watch {
		return fmt.Errorf("--progress-addr requires --watch")
	}

	a, err := newApp(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if watch {
		return runWatch(ctx, cc, a, progressAddr)
	}

	result := a.orch.Synchronize(ctx, nil)

	if flagJSON {
		if err := printSyncJSON(result); err != nil {
			return err
		}
	} else {
		printSyncText(cc, result)
	}

	if !result.Success {
		return fmt.Errorf("sync failed: %s", result.ErrorDetails)
	}

	return nil
}

func runWatch(ctx context.Context, cc *CLIContext, a *app, progressAddr string) error {
	changeLogPath := localChangeLogPath(cc.Cfg.Local)
	if changeLogPath == "" {
		return fmt.Errorf("--watch requires a file-backed local store (got DSN %q)", cc.Cfg.Local.DSN)
	}

	pidPath, err := watchPIDPath(cc.Cfg.Local)
	if err != nil {
		return err
	}

	cleanup, err := writePIDFile(pidPath)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx = shutdownContext(ctx, cc.Logger)

	reload := make(chan struct{}, 1)
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	defer signal.Stop(hupCh)

	go func() {
		for {
			select {
			case <-hupCh:
				select {
				case reload <- struct{}{}:
				default:
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	progress := orchestrator.ProgressFunc(func(pct int, msg string) {
		cc.Statusf("[%3d%%] %s\n", pct, msg)
	})

	if progressAddr != "" {
		broadcaster := orchestrator.NewProgressBroadcaster(cc.Logger)

		srv := &http.Server{Addr: progressAddr, Handler: broadcaster.Handler()}

		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				cc.Logger.Error("progress websocket server failed", "error", err)
			}
		}()

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				cc.Logger.Warn("progress websocket server shutdown failed", "error", err)
			}
		}()

		cc.Statusf("progress websocket listening on %s\n", progressAddr)

		broadcastFunc := broadcaster.Func()
		progress = orchestrator.ProgressFunc(func(pct int, msg string) {
			cc.Statusf("[%3d%%] %s\n", pct, msg)
			broadcastFunc(pct, msg)
		})
	}

	if err := a.orch.RunWatch(ctx, changeLogPath, progress, reload); err != nil {
		return fmt.Errorf("watch mode: %w", err)
	}

	return nil
}

func printSyncText(cc *CLIContext, result *orchestrator.SyncResult) {
	durationMs := result.EndTime.Sub(result.StartTime).Milliseconds()

	if !result.Success {
		cc.Statusf("Sync failed (%dms): %s\n", durationMs, result.ErrorDetails)
		return
	}

	if result.PushedChanges == 0 && result.PulledChanges == 0 && result.ConflictsResolved == 0 {
		cc.Statusf("Already in sync.\n")
		return
	}

	cc.Statusf("Sync complete (%dms)\n", durationMs)
	cc.Statusf("  Pushed:    %s\n", formatCount(result.PushedChanges))
	cc.Statusf("  Pulled:    %s\n", formatCount(result.PulledChanges))

	if result.ConflictsResolved > 0 {
		cc.Statusf("  Resolved:  %s conflicts\n", formatCount(result.ConflictsResolved))
	}

	if len(result.UnresolvedConflicts) > 0 {
		cc.Statusf("  Unresolved conflicts: %d\n", len(result.UnresolvedConflicts))
	}
}

// syncJSONOutput is the JSON output schema for the sync command.
type syncJSONOutput struct {
	Success           bool               `json:"success"`
	DurationMs        int64              `json:"duration_ms"`
	Pushed            int                `json:"pushed"`
	Pulled            int                `json:"pulled"`
	ConflictsResolved int                `json:"conflicts_resolved"`
	Unresolved        []unresolvedJSON   `json:"unresolved_conflicts"`
	Message           string             `json:"message"`
	Error             string             `json:"error,omitempty"`
}

type unresolvedJSON struct {
	Table string `json:"table"`
	ID    string `json:"id"`
	Type  string `json:"type"`
}

func printSyncJSON(result *orchestrator.SyncResult) error {
	unresolved := make([]unresolvedJSON, 0, len(result.UnresolvedConflicts))
	for _, c := range result.UnresolvedConflicts {
		unresolved = append(unresolved, unresolvedJSON{Table: c.Table, ID: c.RecordID, Type: c.ConflictType.String()})
	}

	out := syncJSONOutput{
		Success:           result.Success,
		DurationMs:        result.EndTime.Sub(result.StartTime).Milliseconds(),
		Pushed:            result.PushedChanges,
		Pulled:            result.PulledChanges,
		ConflictsResolved: result.ConflictsResolved,
		Unresolved:        unresolved,
		Message:           result.Message,
		Error:             result.ErrorDetails,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}
