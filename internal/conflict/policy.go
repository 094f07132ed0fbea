package conflict

import (
	"time"

	"github.com/countrydata/rowsync/internal/rowvalue"
)

// LastWriterWinsPolicy is the default ResolutionPolicy (component-design.md
// section 4.4): the side with the later lastModifiedColumn value wins. If
// only one side has a timestamp, that side wins. If neither has one, or the
// two are exactly equal, the remote version wins rather than declining to
// resolve, so ties never surface as unresolved conflicts.
type LastWriterWinsPolicy struct{}

func (LastWriterWinsPolicy) Resolve(c Conflict, lastModifiedColumn string) (remoteWins bool, ok bool) {
	localTS, localOK := lastModified(c.LocalVersion, lastModifiedColumn)
	remoteTS, remoteOK := lastModified(c.RemoteVersion, lastModifiedColumn)

	switch {
	case remoteOK && localOK && !remoteTS.Equal(localTS):
		return remoteTS.After(localTS), true
	case remoteOK && !localOK:
		return true, true
	case localOK && !remoteOK:
		return false, true
	default:
		// Both missing, or an exact tie: remote wins. A single row's two
		// conflicting versions share one recordId, so recordId cannot break
		// a tie between them; remote-wins keeps behavior deterministic and
		// matches the "apply what the network already agreed on" default
		// (see DESIGN.md, internal/conflict, for the recordId-ordering
		// decision this replaces).
		return true, true
	}
}

func lastModified(row *rowvalue.Row, column string) (time.Time, bool) {
	if row == nil || column == "" {
		return time.Time{}, false
	}

	v, ok := row.Get(column)
	if !ok || v.IsNull() || v.Kind() != rowvalue.KindTimestamp {
		return time.Time{}, false
	}

	return v.AsTimestamp(), true
}

// SurfaceAllPolicy never auto-resolves: every conflict it sees is returned
// via Result.Unresolved (spec.md Open Question 3, opt-in strict mode).
type SurfaceAllPolicy struct{}

func (SurfaceAllPolicy) Resolve(Conflict, string) (remoteWins bool, ok bool) {
	return false, false
}
