// Package selector resolves which database/retention-policy pair an operation
// targets and which measurements it covers. Filtering is a pure function over
// a list resolved once per run, so the selection is deterministic regardless
// of network timing.
package selector

import (
	"sort"

	"github.com/xtxerr/fluxdump/internal/errors"
)

// Target names the database and optional retention policy an operation
// reads from or writes to.
type Target struct {
	Database        string
	RetentionPolicy string
}

// NewTarget validates and builds a Target. The retention policy may be empty,
// meaning the database default.
func NewTarget(database, retentionPolicy string) (Target, error) {
	if database == "" {
		return Target{}, errors.NewMissingField("database")
	}
	return Target{Database: database, RetentionPolicy: retentionPolicy}, nil
}

// Filter selects measurements out of all known names.
//
// When explicit is non-empty it wins and is returned verbatim in the given
// order. Otherwise the names are sorted and, if from is set, restricted to
// the pure predicate name >= from, which is the cursor for resuming an
// aborted run at the measurement it stopped on.
func Filter(all []string, explicit []string, from string) []string {
	if len(explicit) > 0 {
		out := make([]string, len(explicit))
		copy(out, explicit)
		return out
	}

	sorted := make([]string, len(all))
	copy(sorted, all)
	sort.Strings(sorted)

	if from == "" {
		return sorted
	}

	i := sort.SearchStrings(sorted, from)
	if i == len(sorted) {
		return nil
	}
	return sorted[i:]
}
