// Package wayclass implements the way polygon classification policy
// (C4.4): whether a closed way becomes a polygon or stays a linestring.
// The config shape (All/Allowlist/Denylist) is lifted directly from
// QuackOSM's _osm_way_polygon_features.py OsmWayPolygonConfig NamedTuple.
package wayclass

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the way polygon classification policy.
//
//   - All: keys that, when present with any value, mark a closed way as a
//     polygon (the teacher's simpler isArea() boolean-key map).
//   - Allowlist: key -> values for which the way is a polygon; other
//     values of that key do not trigger polygon classification from this
//     key (though another key might still).
//   - Denylist: key -> values for which the way is explicitly NOT a
//     polygon, overriding an otherwise-matching All/Allowlist entry.
type Config struct {
	All       []string            `yaml:"all"`
	Allowlist map[string][]string `yaml:"allowlist"`
	Denylist  map[string][]string `yaml:"denylist"`
}

// Load reads a way polygon classification config document from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read way polygon config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse way polygon config: %w", err)
	}
	return &cfg, nil
}

// IsPolygon decides whether a closed way with the given tags should be
// classified as a polygon, per §4.4: an explicit area=yes/area=no override
// wins outright; otherwise the All/Allowlist/Denylist policy decides; a
// way with neither an override nor a matching key stays a linestring.
func (c *Config) IsPolygon(tags map[string]string) bool {
	if area, ok := tags["area"]; ok {
		return area == "yes"
	}

	for key, values := range c.Denylist {
		if v, ok := tags[key]; ok {
			for _, denied := range values {
				if denied == v {
					return false
				}
			}
		}
	}

	for _, key := range c.All {
		if _, ok := tags[key]; ok {
			return true
		}
	}

	for key, values := range c.Allowlist {
		if v, ok := tags[key]; ok {
			for _, allowed := range values {
				if allowed == v {
					return true
				}
			}
		}
	}

	return false
}
