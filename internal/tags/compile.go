package tags

import (
	"sort"
	"strings"

	"github.com/kraina-ai/quackosm-go/internal/quackerr"
)

// Predicate is the compiled boolean function for a feature's tag map.
type Predicate func(t map[string]string) (bool, string) // (passes, matched group name or "")

// Compiled is the result of compiling a Filter or GroupedFilter: the
// predicate and the projection key set used by exploded-mode output.
type Compiled struct {
	Predicate     Predicate
	ProjectionSet []string // sorted, deduplicated
	Grouped       bool
}

// Compile compiles filter against universe (which must already be frozen),
// returning a FilterConflictError if a concrete key is matched by both a
// positive and a negative spec after wildcard expansion.
func Compile(filter Filter, universe *Universe) (*Compiled, error) {
	expanded, err := expand(filter, universe, "")
	if err != nil {
		return nil, err
	}
	if err := checkConflicts(map[string]map[string]ValueSpec{"": expanded}); err != nil {
		return nil, err
	}

	pred := func(t map[string]string) (bool, string) {
		return evaluate(expanded, t), ""
	}

	return &Compiled{
		Predicate:     pred,
		ProjectionSet: projectionSet(expanded),
		Grouped:       false,
	}, nil
}

// CompileGrouped compiles a GroupedFilter. The projection set for a
// grouped filter is the set of group names; the matched group name (first
// one whose inner filter passes) is returned by the predicate.
func CompileGrouped(gf GroupedFilter, universe *Universe) (*Compiled, error) {
	expandedByGroup := make(map[string]map[string]ValueSpec, len(gf))
	names := make([]string, 0, len(gf))
	for group, inner := range gf {
		expanded, err := expand(inner, universe, group)
		if err != nil {
			return nil, err
		}
		expandedByGroup[group] = expanded
		names = append(names, group)
	}
	if err := checkConflicts(expandedByGroup); err != nil {
		return nil, err
	}
	sort.Strings(names)

	pred := func(t map[string]string) (bool, string) {
		for _, group := range names {
			if evaluate(expandedByGroup[group], t) {
				return true, group
			}
		}
		return false, ""
	}

	return &Compiled{
		Predicate:     pred,
		ProjectionSet: names,
		Grouped:       true,
	}, nil
}

// expand resolves every wildcard key and value spec in filter against the
// observed universe, returning a concrete-key-only map. group identifies
// which group's conflicts to report (empty for an ungrouped filter).
func expand(filter Filter, universe *Universe, group string) (map[string]ValueSpec, error) {
	out := make(map[string]ValueSpec)
	for key, spec := range filter {
		if !strings.Contains(key, "*") {
			concreteSpec, err := expandValue(spec, universe, key)
			if err != nil {
				return nil, err
			}
			if err := mergeSpec(out, key, concreteSpec, group); err != nil {
				return nil, err
			}
			continue
		}
		pattern := keyPattern(key)
		for _, candidate := range universe.Keys() {
			if pattern.MatchString(candidate) {
				concreteSpec, err := expandValue(spec, universe, candidate)
				if err != nil {
					return nil, err
				}
				if err := mergeSpec(out, candidate, concreteSpec, group); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}

// expandValue resolves a wildcard *value* pattern for a single concrete
// key against the universe's observed values, collapsing to an AnyOf of
// the matching concrete values. Non-wildcard specs pass through unchanged.
func expandValue(spec ValueSpec, universe *Universe, key string) (ValueSpec, error) {
	if spec.Kind != Wildcard {
		return spec, nil
	}
	if spec.Value == "*" {
		return PresentSpec(), nil
	}
	pattern := valuePattern(spec.Value)
	var matches []string
	for _, v := range universe.Values(key) {
		if pattern.MatchString(v) {
			matches = append(matches, v)
		}
	}
	return AnyOfSpec(matches), nil
}

// mergeSpec folds a concrete-key spec into out, combining repeats of the
// same key (from overlapping wildcard expansions) via AnyOf union; a
// Present spec always wins outright since it subsumes any AnyOf. A
// positive spec (Present/Equals/AnyOf) colliding with a negative Absent
// spec on the same key, within this same expansion, is a conflict:
// reported immediately rather than letting one overwrite the other
// before checkConflicts ever gets to compare both sides.
func mergeSpec(out map[string]ValueSpec, key string, spec ValueSpec, group string) error {
	existing, ok := out[key]
	if !ok {
		out[key] = spec
		return nil
	}
	if (existing.Kind == Absent) != (spec.Kind == Absent) {
		return &quackerr.FilterConflictError{Key: key, Group: group}
	}
	if existing.Kind == Absent {
		return nil
	}
	if existing.Kind == Present || spec.Kind == Present {
		out[key] = PresentSpec()
		return nil
	}
	out[key] = AnyOfSpec(append(append([]string{}, valuesOf(existing)...), valuesOf(spec)...))
	return nil
}

func valuesOf(spec ValueSpec) []string {
	switch spec.Kind {
	case Equals:
		return []string{spec.Value}
	case AnyOf:
		return spec.Values
	default:
		return nil
	}
}

// checkConflicts reports a FilterConflictError if any concrete key appears
// with a positive spec in one group and an Absent spec in another (or the
// same) group.
func checkConflicts(byGroup map[string]map[string]ValueSpec) error {
	positive := make(map[string]string) // key -> group that matched positively
	negative := make(map[string]string) // key -> group that matched negatively
	for group, specs := range byGroup {
		for key, spec := range specs {
			if spec.Kind == Absent {
				negative[key] = group
			} else {
				positive[key] = group
			}
		}
	}
	for key, group := range negative {
		if posGroup, ok := positive[key]; ok {
			if posGroup == group {
				return &quackerr.FilterConflictError{Key: key, Group: group}
			}
			return &quackerr.FilterConflictError{Key: key, Group: posGroup + "/" + group}
		}
	}
	return nil
}

// evaluate applies the spec-4.1 semantics: positive disjunction AND
// negative conjunction.
func evaluate(specs map[string]ValueSpec, t map[string]string) bool {
	var hasPositive, positiveMatched bool
	var hasNegative, negativeHolds = false, true

	for key, spec := range specs {
		if spec.Kind == Absent {
			hasNegative = true
			if _, present := t[key]; present {
				negativeHolds = false
			}
			continue
		}
		hasPositive = true
		if value, present := t[key]; present && matchesValue(spec, value) {
			positiveMatched = true
		}
	}

	if hasPositive && !positiveMatched {
		return false
	}
	if hasNegative && !negativeHolds {
		return false
	}
	return true
}

func matchesValue(spec ValueSpec, value string) bool {
	switch spec.Kind {
	case Present:
		return true
	case Equals:
		return spec.Value == value
	case AnyOf:
		for _, v := range spec.Values {
			if v == value {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func projectionSet(specs map[string]ValueSpec) []string {
	out := make([]string, 0, len(specs))
	for k := range specs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
