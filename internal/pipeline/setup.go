package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/kraina-ai/quackosm-go/internal/config"
	"github.com/kraina-ai/quackosm-go/internal/osmsource"
	"github.com/kraina-ai/quackosm-go/internal/quackerr"
	"github.com/kraina-ai/quackosm-go/internal/tags"
)

// hasWildcard reports whether a raw filter document's bytes contain a '*',
// used to skip an otherwise-unnecessary universe-observing scan pass when
// the filter has no wildcard keys or values to expand.
func hasWildcard(data []byte) bool {
	return strings.Contains(string(data), "*")
}

// compileTagPredicate builds C1's compiled predicate. An empty TagFilter
// compiles to "everything passes" (an empty Filter). A filter containing
// any '*' triggers a single observing pass over the source to populate the
// wildcard-expansion Universe before compiling; otherwise the Universe is
// frozen empty, since expand() only consults it inside wildcard branches.
func compileTagPredicate(ctx context.Context, cfg *config.Config, source osmsource.Source) (*tags.Compiled, error) {
	universe := tags.NewUniverse()

	if cfg.TagFilter == "" {
		universe.Freeze()
		compiled, err := tags.Compile(tags.Filter{}, universe)
		if err != nil {
			return nil, err
		}
		return applyCustomFilter(cfg, compiled)
	}

	raw, err := readTagFilterInput(cfg.TagFilter)
	if err != nil {
		return nil, &quackerr.InvalidInputError{Reason: "tag filter", Cause: err}
	}

	if hasWildcard(raw) {
		observe := func(t map[string]string) {
			for k, v := range t {
				universe.Observe(k, v)
			}
		}
		err := source.Scan(ctx,
			func(n osmsource.NodeRecord) error { observe(n.Tags); return nil },
			func(w osmsource.WayRecord) error { observe(w.Tags); return nil },
			func(r osmsource.RelationRecord) error { observe(r.Tags); return nil },
		)
		if err != nil {
			return nil, &quackerr.RuntimeFailureError{Stage: "tag universe scan", Cause: err}
		}
	}
	universe.Freeze()

	filter, err := tags.ParseFilter(raw)
	if err != nil {
		return nil, &quackerr.InvalidInputError{Reason: "tag filter", Cause: err}
	}
	compiled, err := tags.Compile(filter, universe)
	if err != nil {
		return nil, err
	}
	return applyCustomFilter(cfg, compiled)
}

// applyCustomFilter wraps compiled with the Lua custom_filter hook when
// cfg.CustomFilter names one, so a feature must pass both the tag filter and
// the script's filter(tags) function.
func applyCustomFilter(cfg *config.Config, compiled *tags.Compiled) (*tags.Compiled, error) {
	if cfg.CustomFilter == "" {
		return compiled, nil
	}
	cf, err := tags.LoadCustomFilter(cfg.CustomFilter)
	if err != nil {
		return nil, &quackerr.InvalidInputError{Reason: "custom filter", Cause: err}
	}
	return tags.WithCustomFilter(compiled, cf), nil
}

// readTagFilterInput returns the filter document's bytes whether cfg's
// TagFilter field names a file path or carries the document inline.
func readTagFilterInput(spec string) ([]byte, error) {
	trimmed := strings.TrimSpace(spec)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "-") {
		return []byte(spec), nil
	}
	if data, err := os.ReadFile(spec); err == nil {
		return data, nil
	}
	return []byte(spec), nil
}

// loadGeometryFilter resolves C2's clip geometry from either a GeoJSON/WKT
// file path or an inline string. GeoJSON is parsed with encoding/json
// against a minimal local struct rather than orb/geojson's Unmarshal
// helpers: every verified use of orb/geojson anywhere in the example pack
// only constructs features for *writing* (geojson.NewFeature, NewFeatureCollection),
// never parses one back, so there is no grounded read-side API to call
// here; WKT is handled by a small hand-written POLYGON/MULTIPOLYGON parser
// for the same reason (no orb/encoding/wkt usage appears in the pack
// either). Both are flagged in DESIGN.md as standard-library-only.
func loadGeometryFilter(cfg *config.Config) (orb.MultiPolygon, error) {
	raw := cfg.GeometryWKT
	if cfg.GeometryFile != "" {
		data, err := os.ReadFile(cfg.GeometryFile)
		if err != nil {
			return nil, &quackerr.InvalidInputError{Reason: "geometry filter file", Cause: err}
		}
		raw = string(data)
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &quackerr.InvalidInputError{Reason: "no geometry filter supplied"}
	}

	if strings.HasPrefix(trimmed, "{") {
		return parseGeoJSONPolygon([]byte(trimmed))
	}
	return parseWKTPolygon(trimmed)
}

// rawGeoJSON covers the three shapes of geometry filter input this pipeline
// accepts: a bare Polygon/MultiPolygon geometry, a Feature, or a
// FeatureCollection, matched by trying each in turn against the same
// type-field-driven decode.
type rawGeoJSON struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
	Geometry    *rawGeoJSON     `json:"geometry"`
	Features    []rawGeoJSON    `json:"features"`
}

func parseGeoJSONPolygon(data []byte) (orb.MultiPolygon, error) {
	var g rawGeoJSON
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, &quackerr.InvalidInputError{Reason: "malformed GeoJSON geometry filter", Cause: err}
	}

	switch g.Type {
	case "Polygon":
		poly, err := decodeGeoJSONPolygon(g.Coordinates)
		if err != nil {
			return nil, &quackerr.InvalidInputError{Reason: "malformed GeoJSON polygon", Cause: err}
		}
		return orb.MultiPolygon{poly}, nil
	case "MultiPolygon":
		mp, err := decodeGeoJSONMultiPolygon(g.Coordinates)
		if err != nil {
			return nil, &quackerr.InvalidInputError{Reason: "malformed GeoJSON multipolygon", Cause: err}
		}
		return mp, nil
	case "Feature":
		if g.Geometry == nil {
			return nil, &quackerr.InvalidInputError{Reason: "GeoJSON feature has no geometry"}
		}
		sub, err := json.Marshal(g.Geometry)
		if err != nil {
			return nil, &quackerr.InvalidInputError{Reason: "malformed GeoJSON feature geometry", Cause: err}
		}
		return parseGeoJSONPolygon(sub)
	case "FeatureCollection":
		mp := orb.MultiPolygon{}
		for _, f := range g.Features {
			sub, err := json.Marshal(f)
			if err != nil {
				continue
			}
			part, err := parseGeoJSONPolygon(sub)
			if err != nil {
				continue
			}
			mp = append(mp, part...)
		}
		if len(mp) == 0 {
			return nil, &quackerr.InvalidInputError{Reason: "GeoJSON feature collection has no polygonal features"}
		}
		return mp, nil
	default:
		return nil, &quackerr.InvalidInputError{Reason: fmt.Sprintf("geometry filter must be polygonal, got GeoJSON type %q", g.Type)}
	}
}

func decodeGeoJSONPolygon(raw json.RawMessage) (orb.Polygon, error) {
	var rings [][][2]float64
	if err := json.Unmarshal(raw, &rings); err != nil {
		return nil, err
	}
	poly := make(orb.Polygon, 0, len(rings))
	for _, ring := range rings {
		r := make(orb.Ring, 0, len(ring))
		for _, c := range ring {
			r = append(r, orb.Point{c[0], c[1]})
		}
		poly = append(poly, r)
	}
	return poly, nil
}

func decodeGeoJSONMultiPolygon(raw json.RawMessage) (orb.MultiPolygon, error) {
	var polys [][][][2]float64
	if err := json.Unmarshal(raw, &polys); err != nil {
		return nil, err
	}
	mp := make(orb.MultiPolygon, 0, len(polys))
	for _, rings := range polys {
		poly := make(orb.Polygon, 0, len(rings))
		for _, ring := range rings {
			r := make(orb.Ring, 0, len(ring))
			for _, c := range ring {
				r = append(r, orb.Point{c[0], c[1]})
			}
			poly = append(poly, r)
		}
		mp = append(mp, poly)
	}
	return mp, nil
}

// parseWKTPolygon parses a POLYGON(...) or MULTIPOLYGON(...) WKT string.
// It tolerates the "POLYGON Z" / "MULTIPOLYGON Z" form by simply ignoring a
// third coordinate when present, and is whitespace-insensitive between
// tokens, but otherwise assumes well-formed input; malformed WKT produces
// an InvalidInputError rather than a panic.
func parseWKTPolygon(wkt string) (orb.MultiPolygon, error) {
	trimmed := strings.TrimSpace(wkt)
	upper := strings.ToUpper(trimmed)

	switch {
	case strings.HasPrefix(upper, "MULTIPOLYGON"):
		body, err := wktParenBody(trimmed, len("MULTIPOLYGON"))
		if err != nil {
			return nil, &quackerr.InvalidInputError{Reason: "malformed WKT MULTIPOLYGON", Cause: err}
		}
		polyBodies, err := wktSplitTopLevel(body)
		if err != nil {
			return nil, &quackerr.InvalidInputError{Reason: "malformed WKT MULTIPOLYGON", Cause: err}
		}
		mp := make(orb.MultiPolygon, 0, len(polyBodies))
		for _, pb := range polyBodies {
			poly, err := wktParsePolygonBody(strings.TrimSuffix(strings.TrimPrefix(pb, "("), ")"))
			if err != nil {
				return nil, &quackerr.InvalidInputError{Reason: "malformed WKT MULTIPOLYGON member", Cause: err}
			}
			mp = append(mp, poly)
		}
		return mp, nil

	case strings.HasPrefix(upper, "POLYGON"):
		body, err := wktParenBody(trimmed, len("POLYGON"))
		if err != nil {
			return nil, &quackerr.InvalidInputError{Reason: "malformed WKT POLYGON", Cause: err}
		}
		poly, err := wktParsePolygonBody(body)
		if err != nil {
			return nil, &quackerr.InvalidInputError{Reason: "malformed WKT POLYGON", Cause: err}
		}
		return orb.MultiPolygon{poly}, nil

	default:
		return nil, &quackerr.InvalidInputError{Reason: "geometry filter must be WKT POLYGON or MULTIPOLYGON"}
	}
}

// wktParenBody strips the leading "TYPE" (and any "TYPE Z"/"TYPE M" tag)
// plus whitespace, then returns the contents of the single outermost pair
// of parens that wraps the rest of the string.
func wktParenBody(s string, skip int) (string, error) {
	rest := strings.TrimSpace(s[skip:])
	rest = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(rest, "Z"), "M"))
	if !strings.HasPrefix(rest, "(") || !strings.HasSuffix(rest, ")") {
		return "", fmt.Errorf("expected parenthesized body, got %q", rest)
	}
	return rest[1 : len(rest)-1], nil
}

// wktSplitTopLevel splits a comma-separated list of parenthesized groups at
// the top paren-nesting level only, so "(...), (...)" yields its two groups
// without being confused by commas inside each group's own coordinates.
func wktSplitTopLevel(s string) ([]string, error) {
	var parts []string
	depth := 0
	start := -1
	for i, ch := range s {
		switch ch {
		case '(':
			if depth == 0 {
				start = i
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				if start < 0 {
					return nil, fmt.Errorf("unbalanced parens")
				}
				parts = append(parts, s[start:i+1])
				start = -1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parens")
	}
	return parts, nil
}

// wktParsePolygonBody parses the inside of a POLYGON(...)'s parens, a
// comma-separated list of ring bodies, the first being the shell.
func wktParsePolygonBody(body string) (orb.Polygon, error) {
	ringBodies, err := wktSplitTopLevel(body)
	if err != nil {
		return nil, err
	}
	poly := make(orb.Polygon, 0, len(ringBodies))
	for _, rb := range ringBodies {
		inner := strings.TrimSpace(rb)
		inner = strings.TrimSuffix(strings.TrimPrefix(inner, "("), ")")
		ring, err := wktParseRing(inner)
		if err != nil {
			return nil, err
		}
		poly = append(poly, ring)
	}
	return poly, nil
}

// wktParseRing parses a comma-separated list of whitespace-separated
// coordinate pairs (optionally triples, with the third value discarded).
func wktParseRing(coordList string) (orb.Ring, error) {
	pairs := strings.Split(coordList, ",")
	ring := make(orb.Ring, 0, len(pairs))
	for _, p := range pairs {
		fields := strings.Fields(strings.TrimSpace(p))
		if len(fields) < 2 {
			return nil, fmt.Errorf("malformed coordinate %q", p)
		}
		lon, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed longitude %q: %w", fields[0], err)
		}
		lat, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed latitude %q: %w", fields[1], err)
		}
		ring = append(ring, orb.Point{lon, lat})
	}
	return ring, nil
}
