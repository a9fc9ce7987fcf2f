package tags

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// rawSpec is the surface-syntax shape of one filter entry, generalizing
// the teacher's internal/style Filter YAML: a key maps to true (Present),
// false (Absent), a string (Equals, wildcard-aware), or a list of strings
// (AnyOf, wildcard-aware per element).
type rawFilter map[string]interface{}

// LoadFilter reads a tag filter document (JSON or YAML, content-sniffed by
// looking for a leading '{') from disk and compiles its raw shape into a
// Filter, ready for Compile.
func LoadFilter(path string) (Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tag filter %s: %w", path, err)
	}
	return ParseFilter(data)
}

// ParseFilter decodes raw filter document bytes (JSON or YAML) into a
// Filter of tagged-variant specs.
func ParseFilter(data []byte) (Filter, error) {
	var raw rawFilter
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse tag filter json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse tag filter yaml: %w", err)
		}
	}
	return rawToFilter(raw)
}

func rawToFilter(raw rawFilter) (Filter, error) {
	out := make(Filter, len(raw))
	for key, v := range raw {
		spec, err := rawToSpec(v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		out[key] = spec
	}
	return out, nil
}

func rawToSpec(v interface{}) (ValueSpec, error) {
	switch val := v.(type) {
	case bool:
		if val {
			return PresentSpec(), nil
		}
		return AbsentSpec(), nil
	case string:
		if strings.Contains(val, "*") {
			return WildcardSpec(val), nil
		}
		return EqualsSpec(val), nil
	case []interface{}:
		values := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return ValueSpec{}, fmt.Errorf("list entries must be strings, got %T", item)
			}
			values = append(values, s)
		}
		return AnyOfSpec(values), nil
	case []string:
		return AnyOfSpec(val), nil
	default:
		return ValueSpec{}, fmt.Errorf("unsupported filter value type %T", v)
	}
}

// LoadGroupedFilter reads a grouped filter document: group_name ->
// (rawFilter document), same leaf encoding as LoadFilter.
func LoadGroupedFilter(path string) (GroupedFilter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read grouped tag filter %s: %w", path, err)
	}

	var raw map[string]rawFilter
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse grouped tag filter json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse grouped tag filter yaml: %w", err)
		}
	}

	out := make(GroupedFilter, len(raw))
	for group, inner := range raw {
		filter, err := rawToFilter(inner)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", group, err)
		}
		out[group] = filter
	}
	return out, nil
}
