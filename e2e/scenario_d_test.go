package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/countrydata/rowsync/internal/rowcodec"
	"github.com/countrydata/rowsync/internal/rowvalue"
	"github.com/countrydata/rowsync/internal/store"
	"github.com/countrydata/rowsync/testutil"
)

// TestScenarioD_CrashBetweenPushAndAnchor: a prior successful run already
// advanced the anchor to t0. A later push commits on the remote and marks
// its change-log entry synced, but the process dies before the anchor
// write that would normally close out that run. The next run's push finds
// no unsynced entries; pull still starts from the stale t0 anchor, so the
// row just pushed — now lm > t0 on the remote — gets pulled back down and
// re-applied to local as a no-op upsert.
func TestScenarioD_CrashBetweenPushAndAnchor(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	now := t1.Add(time.Hour)

	h := testutil.NewHarness(t, testutil.FixedClock(now), "T")

	// A previous, successful run already synced row 1 at t0 and advanced
	// the anchor to t0.
	initial := rowvalue.NewRow()
	initial.Set("ID", rowvalue.String("1"))
	initial.Set("Name", rowvalue.String("old"))
	initial.Set("LastModified", rowvalue.Timestamp(t0))
	require.NoError(t, h.Local.ApplyRows(ctx, "T", []*rowvalue.Row{initial}))
	require.NoError(t, h.Remote.ApplyRows(ctx, "T", []*rowvalue.Row{initial}))
	require.NoError(t, h.Local.SetParameter(ctx, store.ParameterLastSyncTimestamp, rowcodec.FormatAnchor(t0)))

	// A local write at t1, tracked but not yet pushed.
	updated := rowvalue.NewRow()
	updated.Set("ID", rowvalue.String("1"))
	updated.Set("Name", rowvalue.String("new"))
	updated.Set("LastModified", rowvalue.Timestamp(t1))
	require.NoError(t, h.Local.ApplyRows(ctx, "T", []*rowvalue.Row{updated}))
	require.NoError(t, h.Tracker.Record(ctx, "T", "1", "UPDATE(Name)"))

	// Simulate the crashed run: push committed to the remote and the
	// change log entry was marked synced, but the anchor write never
	// happened.
	require.NoError(t, h.Remote.ApplyRows(ctx, "T", []*rowvalue.Row{updated}))
	unsynced, err := h.Tracker.GetUnsynced(ctx)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	require.NoError(t, h.Tracker.MarkSynced(ctx, []int64{unsynced[0].ID}))

	anchor, found, err := h.Local.GetParameter(ctx, store.ParameterLastSyncTimestamp)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rowcodec.FormatAnchor(t0), anchor, "anchor must still be stale, as if the process died before writing it")

	// Recovery run.
	result := h.Orchestrator.Synchronize(ctx, nil)
	require.True(t, result.Success, result.ErrorDetails)
	assert.Equal(t, 0, result.PushedChanges, "nothing left unsynced for push to find")
	assert.Equal(t, 1, result.PulledChanges, "the already-pushed row is pulled back as a no-op")

	local, err := h.Local.GetRecordsByIDs(ctx, "T", []string{"1"})
	require.NoError(t, err)
	require.Len(t, local, 1)
	name, _ := local[0].Get("Name")
	assert.Equal(t, "new", name.AsString(), "re-applying the pulled row must not resurrect the stale value")

	anchor, found, err = h.Local.GetParameter(ctx, store.ParameterLastSyncTimestamp)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rowcodec.FormatAnchor(now), anchor, "the recovery run advances the anchor past the crash")
}
