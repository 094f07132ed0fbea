// Package orchestrator implements the SyncOrchestrator (component-design.md
// section 4.5): the single end-to-end Synchronize operation driving push,
// pull, conflict resolution, and anchor advancement across the configured
// tables.
//
// Grounded on internal/sync/engine.go's Engine.RunOnce: a fixed phase
// sequence (load baseline, observe remote, observe local, plan, execute,
// report) over injected collaborators, generalized from file-sync
// observation/planning to row push/pull/fold.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/countrydata/rowsync/internal/conflict"
	"github.com/countrydata/rowsync/internal/lock"
	"github.com/countrydata/rowsync/internal/retry"
	"github.com/countrydata/rowsync/internal/rowcodec"
	"github.com/countrydata/rowsync/internal/rowvalue"
	"github.com/countrydata/rowsync/internal/store"
	"github.com/countrydata/rowsync/internal/synclog"
	"github.com/countrydata/rowsync/internal/tracker"
)

// Config wires the orchestrator's collaborators (component-design.md
// section 4.5 and architecture.md section 4).
type Config struct {
	Local, Remote store.Provider
	Tracker       *tracker.Tracker
	Resolver      *conflict.Resolver
	// Locker is optional: GlobalLock is only required around multi-row bulk
	// imports, not ordinary per-run sync (architecture.md section 5,
	// "Shared-resource policy"). Nil makes AcquireBulkImportLock return an
	// error.
	Locker   *lock.Locker
	SyncLog  *synclog.Log
	Retry    *retry.Runner
	Columns  store.Columns
	TablesToSync []string
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Orchestrator drives one end-to-end sync per Synchronize call.
type Orchestrator struct {
	local, remote store.Provider
	tracker       *tracker.Tracker
	resolver      *conflict.Resolver
	locker        *lock.Locker
	synclog       *synclog.Log
	retry         *retry.Runner
	columns       store.Columns
	tables        []string
	logger        *slog.Logger
	clock         func() time.Time
}

// New creates an Orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Orchestrator{
		local:    cfg.Local,
		remote:   cfg.Remote,
		tracker:  cfg.Tracker,
		resolver: cfg.Resolver,
		locker:   cfg.Locker,
		synclog:  cfg.SyncLog,
		retry:    cfg.Retry,
		columns:  cfg.Columns.WithDefaults(),
		tables:   cfg.TablesToSync,
		logger:   logger,
		clock:    clock,
	}
}

// AcquireBulkImportLock wraps Locker.Acquire under the fixed lock name
// "bulk-import", for the callers that need to hold the GlobalLock around a
// multi-row bulk import (architecture.md section 5, "Writers must hold the
// GlobalLock when performing multi-row bulk imports"; ordinary per-run sync
// does not). Returns an error if no Locker was configured.
func (o *Orchestrator) AcquireBulkImportLock(ctx context.Context, reason string, lease, wait time.Duration) (*lock.Handle, error) {
	if o.locker == nil {
		return nil, fmt.Errorf("orchestrator: no GlobalLock configured")
	}

	return o.locker.Acquire(ctx, "bulk-import", reason, lease, wait)
}

// Close releases both providers, aggregating any errors
// (architecture.md section 4, "the orchestrator owns both providers'
// lifetimes").
func (o *Orchestrator) Close() error {
	return multierr.Combine(o.local.Close(), o.remote.Close())
}

// ProgressFunc receives monotonically non-decreasing progress in [0,100]
// with a short human-readable message. 100 is sent exactly once, on
// success (component-design.md section 4.5).
type ProgressFunc func(pct int, msg string)

// SyncResult is the outcome of one Synchronize call (external-interfaces.md
// section 6).
type SyncResult struct {
	Success             bool
	PushedChanges       int
	PulledChanges       int
	ConflictsResolved   int
	UnresolvedConflicts []conflict.Conflict
	StartTime           time.Time
	EndTime             time.Time
	Message             string
	ErrorDetails        string
}

// Synchronize runs one push-pull-advance cycle. It never panics: any
// internal failure is caught and reported as a failed SyncResult
// (error-handling-design.md section 7, "Propagation policy").
func (o *Orchestrator) Synchronize(ctx context.Context, progress ProgressFunc) (result *SyncResult) {
	if progress == nil {
		progress = func(int, string) {}
	}

	sessionID := uuid.NewString()
	result = &SyncResult{StartTime: o.clock().UTC()}

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.EndTime = o.clock().UTC()
			result.Message = "sync panicked"
			result.ErrorDetails = fmt.Sprintf("%v", r)
			o.synclog.WriteBestEffort(ctx, sessionID, "sync", synclog.Failed, result.ErrorDetails)
			o.logger.Error("sync panicked", slog.String("session_id", sessionID), slog.Any("recover", r))
		}
	}()

	if danglingSession, dangling, err := o.synclog.LatestDangling(ctx); err == nil && dangling {
		o.synclog.WriteBestEffort(ctx, danglingSession, "startup", synclog.Resuming, "")
	}

	o.synclog.WriteBestEffort(ctx, sessionID, "sync", synclog.Started, "")
	progress(0, "starting sync")

	if err := o.run(ctx, sessionID, result.StartTime, progress, result); err != nil {
		result.Success = false
		result.EndTime = o.clock().UTC()
		result.Message = "sync failed"
		result.ErrorDetails = err.Error()
		o.synclog.WriteBestEffort(ctx, sessionID, "sync", synclog.Failed, summarizeResult(result)+" error="+err.Error())
		o.logger.Error("sync failed", slog.String("session_id", sessionID), slog.String("error", err.Error()))

		return result
	}

	result.Success = true
	result.EndTime = o.clock().UTC()
	result.Message = "sync completed"
	o.synclog.WriteBestEffort(ctx, sessionID, "sync", synclog.Completed, summarizeResult(result))
	progress(100, "sync completed")

	return result
}

// summarizeResult renders the counters a `rowsync synclog` view reports
// alongside each Completed/Failed entry.
func summarizeResult(result *SyncResult) string {
	return fmt.Sprintf("pushed=%d pulled=%d conflicts_resolved=%d unresolved=%d",
		result.PushedChanges, result.PulledChanges, result.ConflictsResolved, len(result.UnresolvedConflicts))
}

func (o *Orchestrator) run(ctx context.Context, sessionID string, syncStartTime time.Time, progress ProgressFunc, result *SyncResult) error {
	if err := o.push(ctx, sessionID, progress, result); err != nil {
		return fmt.Errorf("push: %w", err)
	}

	anchor, err := o.readOrInitAnchor(ctx, syncStartTime)
	if err != nil {
		return fmt.Errorf("read anchor: %w", err)
	}

	if err := o.pull(ctx, sessionID, anchor, progress, result); err != nil {
		return fmt.Errorf("pull: %w", err)
	}

	// Phase 3 — advance the anchor to the end of this run, not
	// syncStartTime: writes performed during push also bump lastModified on
	// the remote, and advancing past them prevents re-pulling them next run.
	if err := o.local.SetParameter(ctx, store.ParameterLastSyncTimestamp, rowcodec.FormatAnchor(o.clock().UTC())); err != nil {
		return fmt.Errorf("advance anchor: %w", err)
	}

	return nil
}

// readOrInitAnchor loads the persisted anchor, or initializes it to
// syncStartTime on first run to avoid a full historical pull
// (component-design.md section 4.5, Phase 2).
func (o *Orchestrator) readOrInitAnchor(ctx context.Context, syncStartTime time.Time) (time.Time, error) {
	raw, found, err := o.local.GetParameter(ctx, store.ParameterLastSyncTimestamp)
	if err != nil {
		return time.Time{}, err
	}

	if !found || raw == "" {
		if err := o.local.SetParameter(ctx, store.ParameterLastSyncTimestamp, rowcodec.FormatAnchor(syncStartTime)); err != nil {
			return time.Time{}, err
		}

		return syncStartTime, nil
	}

	anchor, ok := rowcodec.ParseAnchor(raw)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid anchor %q", raw)
	}

	return anchor, nil
}

// push is Phase 1: fold unsynced local changes per table, build payloads,
// apply to the remote, and mark pushed entries synced.
func (o *Orchestrator) push(ctx context.Context, sessionID string, progress ProgressFunc, result *SyncResult) error {
	entries, err := o.tracker.GetUnsynced(ctx)
	if err != nil {
		return err
	}

	folded := foldByTable(entries)

	for i, table := range o.tables {
		ops := folded[table]
		if len(ops) == 0 {
			continue
		}

		if err := o.pushTable(ctx, table, ops, result); err != nil {
			return fmt.Errorf("table %q: %w", table, err)
		}

		o.synclog.WriteBestEffort(ctx, sessionID, "push", synclog.Progress, table)
		progress(pushProgress(i, len(o.tables)), "pushed "+table)
	}

	return nil
}

func (o *Orchestrator) pushTable(ctx context.Context, table string, ops map[string]*foldedOp, result *SyncResult) error {
	ids := make([]string, 0, len(ops))
	for id := range ops {
		ids = append(ids, id)
	}

	rows, err := o.local.GetRecordsByIDs(ctx, table, ids)
	if err != nil {
		return err
	}

	byID := indexRows(rows, o.columns.PrimaryKey)

	var payloads []*rowvalue.Row
	var syncedIDs []int64
	now := o.clock().UTC()

	for id, op := range ops {
		syncedIDs = append(syncedIDs, op.ids...)

		if payload := buildPushPayload(o.columns, id, op, byID[foldKey(id)], now); payload != nil {
			payloads = append(payloads, payload)
		}
	}

	if len(payloads) > 0 {
		err := o.retry.Do(ctx, "push:"+table, func(ctx context.Context) error {
			return o.remote.ApplyRows(ctx, table, payloads)
		})
		if err != nil {
			return err
		}
	}

	if err := o.tracker.MarkSynced(ctx, syncedIDs); err != nil {
		return err
	}

	result.PushedChanges += len(payloads)

	return nil
}

// buildPushPayload implements the per-op payload rules of
// component-design.md section 4.5, Phase 1.
func buildPushPayload(columns store.Columns, id string, op *foldedOp, row *rowvalue.Row, now time.Time) *rowvalue.Row {
	switch op.kind {
	case "DELETE":
		payload := rowvalue.NewRow()
		payload.Set(columns.PrimaryKey, rowvalue.String(id))
		payload.Set(columns.IsDeleted, rowvalue.Bool(true))

		return payload

	case "INSERT":
		return row

	default: // UPDATE
		if len(op.columns) == 0 || row == nil {
			// Legacy empty column set, or the row already vanished locally:
			// push the full row (or skip if it's gone).
			return row
		}

		payload := rowvalue.NewRow()
		payload.Set(columns.PrimaryKey, rowvalue.String(id))

		for _, col := range op.columns {
			if v, ok := row.Get(col); ok {
				payload.Set(col, v)
			}
		}

		payload.Set(columns.LastModified, rowvalue.Timestamp(now))

		if v, ok := row.Get(modifiedByColumn); ok {
			payload.Set(modifiedByColumn, v)
		}

		return payload
	}
}

// modifiedByColumn is propagated on partial UPDATE payloads when present,
// per component-design.md section 4.5.
const modifiedByColumn = "ModifiedBy"

// pull is Phase 2: for each table, pull changes since the anchor, partition
// against local unsynced entries, and apply the clean and resolved rows
// locally.
func (o *Orchestrator) pull(ctx context.Context, sessionID string, anchor time.Time, progress ProgressFunc, result *SyncResult) error {
	unsynced, err := o.tracker.GetUnsynced(ctx)
	if err != nil {
		return err
	}

	for i, table := range o.tables {
		if err := o.pullTable(ctx, table, anchor, unsynced, result); err != nil {
			return fmt.Errorf("table %q: %w", table, err)
		}

		o.synclog.WriteBestEffort(ctx, sessionID, "pull", synclog.Progress, table)
		progress(pullProgress(i, len(o.tables)), "pulled "+table)
	}

	return nil
}

func (o *Orchestrator) pullTable(ctx context.Context, table string, anchor time.Time, unsynced []tracker.Entry, result *SyncResult) error {
	var remote []*rowvalue.Row

	err := o.retry.Do(ctx, "pull:"+table, func(ctx context.Context) error {
		rows, err := o.remote.GetChangesSince(ctx, table, &anchor)
		if err != nil {
			return err
		}

		remote = rows

		return nil
	})
	if err != nil {
		return err
	}

	tableUnsynced := filterByTable(unsynced, table)

	localRows, err := o.localRowsFor(ctx, table, tableUnsynced)
	if err != nil {
		return err
	}

	partition := o.resolver.PartitionAndResolve(table, remote, tableUnsynced, localRows)

	toApply := make([]*rowvalue.Row, 0, len(partition.Clean)+len(partition.Resolved))
	toApply = append(toApply, partition.Clean...)

	for _, c := range partition.Resolved {
		if c.RemoteVersion != nil {
			toApply = append(toApply, c.RemoteVersion)
		}
	}

	if len(toApply) > 0 {
		if err := o.local.ApplyRows(ctx, table, toApply); err != nil {
			return err
		}
	}

	result.PulledChanges += len(partition.Clean) + len(partition.Resolved)
	result.ConflictsResolved += len(partition.Resolved)
	result.UnresolvedConflicts = append(result.UnresolvedConflicts, partition.Unresolved...)

	return nil
}

func (o *Orchestrator) localRowsFor(ctx context.Context, table string, entries []tracker.Entry) (map[string]*rowvalue.Row, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.RecordID)
	}

	rows, err := o.local.GetRecordsByIDs(ctx, table, ids)
	if err != nil {
		return nil, err
	}

	return indexRows(rows, o.columns.PrimaryKey), nil
}

func filterByTable(entries []tracker.Entry, table string) []tracker.Entry {
	var out []tracker.Entry

	for _, e := range entries {
		if e.Table == table {
			out = append(out, e)
		}
	}

	return out
}

func indexRows(rows []*rowvalue.Row, primaryKeyColumn string) map[string]*rowvalue.Row {
	out := make(map[string]*rowvalue.Row, len(rows))

	for _, row := range rows {
		v, ok := row.Get(primaryKeyColumn)
		if !ok || v.IsNull() {
			continue
		}

		out[foldKey(stringifyID(v))] = row
	}

	return out
}

func stringifyID(v rowvalue.Value) string {
	switch v.Kind() {
	case rowvalue.KindString:
		return v.AsString()
	case rowvalue.KindGUID:
		return v.AsGUID().String()
	default:
		return ""
	}
}

func foldKey(s string) string {
	return strings.ToLower(s)
}
