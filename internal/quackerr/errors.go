// Package quackerr defines the typed error taxonomy surfaced by the
// conversion pipeline. Every hard error returned across a package boundary
// is one of these types; soft per-entity failures are counted separately
// via RunSummary and never returned as errors.
package quackerr

import "fmt"

// InvalidInputError signals malformed input: PBF framing, a non-polygon
// geometry filter, a zero-area polygon, or a contradictory configuration.
type InvalidInputError struct {
	Reason string
	Cause  error
}

func (e *InvalidInputError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid input: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return e.Cause }

// FilterConflictError signals that a concrete tag key is matched by both a
// positive and a negative spec after wildcard expansion.
type FilterConflictError struct {
	Key   string
	Group string // empty if not a grouped filter
}

func (e *FilterConflictError) Error() string {
	if e.Group != "" {
		return fmt.Sprintf("filter conflict on key %q across group %q", e.Key, e.Group)
	}
	return fmt.Sprintf("filter conflict on key %q", e.Key)
}

// EmptyFilterError signals a geometry filter whose polygonal component has
// zero area.
type EmptyFilterError struct {
	Reason string
}

func (e *EmptyFilterError) Error() string {
	return fmt.Sprintf("empty geometry filter: %s", e.Reason)
}

// OutOfMemoryError signals the group scheduler reached its floor group size
// without the stage completing.
type OutOfMemoryError struct {
	Stage string
	Floor int
}

func (e *OutOfMemoryError) Error() string {
	return fmt.Sprintf("out of memory in stage %s after reaching floor group size %d", e.Stage, e.Floor)
}

// CacheBusyError signals the working directory lock is held by another
// process targeting the same cache key.
type CacheBusyError struct {
	LockPath string
}

func (e *CacheBusyError) Error() string {
	return fmt.Sprintf("cache busy: lock held at %s", e.LockPath)
}

// UncoveredGeometryError signals auto-discovery could not cover the filter
// geometry with the extracts available from the catalog.
type UncoveredGeometryError struct {
	CoveredFraction float64
}

func (e *UncoveredGeometryError) Error() string {
	return fmt.Sprintf("uncovered geometry: only %.4f of filter area covered by available extracts", e.CoveredFraction)
}

// ExtractAmbiguousError signals a text query matched more than one catalog
// entry. Suggestions carries the candidate full names.
type ExtractAmbiguousError struct {
	Query       string
	Suggestions []string
}

func (e *ExtractAmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous extract query %q: %d candidates", e.Query, len(e.Suggestions))
}

// ExtractNotFoundError signals a text query matched zero catalog entries.
type ExtractNotFoundError struct {
	Query string
}

func (e *ExtractNotFoundError) Error() string {
	return fmt.Sprintf("no extract found for query %q", e.Query)
}

// RuntimeFailureError wraps an engine-level I/O or compute failure that
// does not fit any other category.
type RuntimeFailureError struct {
	Stage string
	Cause error
}

func (e *RuntimeFailureError) Error() string {
	return fmt.Sprintf("runtime failure in %s: %v", e.Stage, e.Cause)
}

func (e *RuntimeFailureError) Unwrap() error { return e.Cause }

// CancelledError signals cooperative cancellation was observed.
type CancelledError struct {
	Stage string
}

func (e *CancelledError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("cancelled during %s", e.Stage)
	}
	return "cancelled"
}

// RunSummary accumulates soft-error counters across a conversion run. Soft
// errors never abort the run; they are tallied here and surfaced in the
// final result. Not synchronized: each stage updates it from its single
// scan callback.
type RunSummary struct {
	UnresolvedWayRefs       int64
	DroppedShortWays        int64
	UnresolvedRelationRefs  int64
	UnclosableRings         int64
	DroppedUncontainedHoles int64
	PostRepairEmptyGeoms    int64
}

func (s *RunSummary) HasSoftErrors() bool {
	return s.UnresolvedWayRefs+s.DroppedShortWays+s.UnresolvedRelationRefs+
		s.UnclosableRings+s.DroppedUncontainedHoles+s.PostRepairEmptyGeoms > 0
}
