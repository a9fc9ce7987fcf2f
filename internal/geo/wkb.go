// Package geo holds the geometry primitives shared by every stage: WKB
// encoding backed by paulmach/orb, and the repair pass (C7) that makes
// assembled geometries valid before they reach a shard writer.
//
// The Encoder here keeps the method names of the teacher's own
// internal/wkb.Encoder (EncodePoint, EncodeLineString, ...) but its
// innards are now orb geometry construction + orb/encoding/wkb marshaling,
// and it emits plain WKB (no SRID flag) since GeoParquet carries the CRS
// in file-level metadata rather than per-geometry.
package geo

import (
	"encoding/binary"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// Encoder builds WKB byte strings for the four geometry shapes this
// pipeline emits: point, linestring, polygon and multipolygon.
type Encoder struct{}

// NewEncoder returns an Encoder. It carries no state; the teacher's
// version pre-sized a reusable buffer, but orb's marshaler allocates its
// own buffer per call, so there is nothing to pre-size here.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// EncodePoint encodes a single (lon, lat) point.
func (e *Encoder) EncodePoint(lon, lat float64) ([]byte, error) {
	return wkb.Marshal(orb.Point{lon, lat}, binary.LittleEndian)
}

// EncodeLineString encodes a flat [lon,lat,lon,lat,...] coordinate slice.
func (e *Encoder) EncodeLineString(coords []float64) ([]byte, error) {
	ls, err := coordsToLineString(coords)
	if err != nil {
		return nil, err
	}
	return wkb.Marshal(ls, binary.LittleEndian)
}

// EncodePolygonWithRings encodes a polygon from outer ring + holes, each a
// flat [lon,lat,...] coordinate slice. The first ring is the shell.
func (e *Encoder) EncodePolygonWithRings(rings [][]float64) ([]byte, error) {
	poly, err := coordsToPolygon(rings)
	if err != nil {
		return nil, err
	}
	return wkb.Marshal(poly, binary.LittleEndian)
}

// EncodeMultiPolygon encodes a multipolygon from a list of polygons, each a
// list of rings, each a flat [lon,lat,...] coordinate slice.
func (e *Encoder) EncodeMultiPolygon(polygons [][][]float64) ([]byte, error) {
	mp := make(orb.MultiPolygon, 0, len(polygons))
	for _, rings := range polygons {
		poly, err := coordsToPolygon(rings)
		if err != nil {
			return nil, err
		}
		mp = append(mp, poly)
	}
	return wkb.Marshal(mp, binary.LittleEndian)
}

// EncodeGeometry marshals any orb geometry value directly, for stages that
// already hold repaired orb.Ring/orb.Polygon values and would otherwise
// have to flatten and reparse them through the coordinate-slice methods.
func EncodeGeometry(g orb.Geometry) ([]byte, error) {
	return wkb.Marshal(g, binary.LittleEndian)
}

func coordsToLineString(coords []float64) (orb.LineString, error) {
	if len(coords)%2 != 0 {
		return nil, fmt.Errorf("odd coordinate count %d", len(coords))
	}
	ls := make(orb.LineString, 0, len(coords)/2)
	for i := 0; i < len(coords); i += 2 {
		ls = append(ls, orb.Point{coords[i], coords[i+1]})
	}
	return ls, nil
}

func coordsToPolygon(rings [][]float64) (orb.Polygon, error) {
	poly := make(orb.Polygon, 0, len(rings))
	for _, coords := range rings {
		ls, err := coordsToLineString(coords)
		if err != nil {
			return nil, err
		}
		poly = append(poly, orb.Ring(ls))
	}
	return poly, nil
}

// Decode parses a plain WKB geometry back into an orb.Geometry.
func Decode(data []byte) (orb.Geometry, error) {
	return wkb.Unmarshal(data)
}

// GeometryType returns the GeoParquet geometry_types string for g, one of
// "Point", "LineString", "Polygon", "MultiPolygon".
func GeometryType(g orb.Geometry) string {
	switch g.(type) {
	case orb.Point:
		return "Point"
	case orb.LineString:
		return "LineString"
	case orb.Polygon:
		return "Polygon"
	case orb.MultiPolygon:
		return "MultiPolygon"
	default:
		return fmt.Sprintf("%T", g)
	}
}
