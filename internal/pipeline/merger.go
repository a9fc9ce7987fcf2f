package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	arrparquet "github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/kraina-ai/quackosm-go/internal/config"
	"github.com/kraina-ai/quackosm-go/internal/geo"
	"github.com/kraina-ai/quackosm-go/internal/groupstore"
)

// mergedRow is one row of the final GeoParquet output, after dedup by
// feature_id and before the compact/exploded tag pivot.
type mergedRow struct {
	featureID string
	geomType  string
	geomWKB   []byte
	tags      map[string]string
	hilbert   uint64
}

// mergeOutput reads every feature shard from stores in order (feature_nodes,
// feature_ways, feature_relations per §4.8's priority, node < way <
// relation), dedups by feature_id, optionally pivots tags into exploded
// columns, optionally Hilbert-sorts by centroid, and writes the final
// GeoParquet file with its "geo" metadata block. Returns the row count
// written.
func mergeOutput(ctx context.Context, cfg *config.Config, finalPath string, stores []*groupstore.Store, projection []string) (int64, error) {
	// Each store's groups are read concurrently (C3-C5 wrote them in one
	// sequential pass per stage), following the teacher's errgroup
	// pattern; results land in per-group slots so the merge below stays
	// deterministic regardless of goroutine completion order.
	perStoreRows := make([][]*mergedRow, len(stores))
	for idx, store := range stores {
		groupIDs, err := store.GroupIDs()
		if err != nil {
			return 0, fmt.Errorf("list shard groups: %w", err)
		}
		slots := make([][]*mergedRow, len(groupIDs))

		g, gctx := errgroup.WithContext(ctx)
		for slot, gid := range groupIDs {
			slot, gid := slot, gid
			g.Go(func() error {
				rows, err := store.ReadFeatureGroup(gctx, gid)
				if err != nil {
					return fmt.Errorf("read shard group %d: %w", gid, err)
				}
				out := make([]*mergedRow, 0, len(rows))
				for _, r := range rows {
					p := r.Kind
					if r.Kind == "way_polygon" {
						p = "way"
					}
					var tagMap map[string]string
					_ = json.Unmarshal([]byte(r.Tags), &tagMap)

					geom, err := geo.Decode(r.GeomWKB)
					if err != nil {
						continue
					}
					out = append(out, &mergedRow{
						featureID: fmt.Sprintf("%s/%d", p, r.ID),
						geomType:  geo.GeometryType(geom),
						geomWKB:   r.GeomWKB,
						tags:      tagMap,
						hilbert:   hilbertOf(geom),
					})
				}
				slots[slot] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return 0, fmt.Errorf("read shards of store %d: %w", idx, err)
		}

		var flat []*mergedRow
		for _, s := range slots {
			flat = append(flat, s...)
		}
		perStoreRows[idx] = flat
	}

	rowsByID := map[string]*mergedRow{}
	order := make([]string, 0)
	for _, rows := range perStoreRows {
		for _, r := range rows {
			if _, exists := rowsByID[r.featureID]; !exists {
				order = append(order, r.featureID)
			}
			rowsByID[r.featureID] = r
		}
	}

	merged := make([]*mergedRow, 0, len(order))
	for _, id := range order {
		merged = append(merged, rowsByID[id])
	}

	if cfg.ResolveSortResult() {
		sort.Slice(merged, func(i, j int) bool { return merged[i].hilbert < merged[j].hilbert })
	}

	if err := writeGeoParquet(cfg, finalPath, merged, projection); err != nil {
		return 0, err
	}

	return int64(len(merged)), nil
}

// hilbertOf maps a geometry's centroid to a Hilbert curve index for spatial
// locality sorting. No Hilbert/S2/H3/geohash library appears anywhere in
// the example pack, so the 2D bit-interleaving walk is hand-implemented
// here; flagged in DESIGN.md.
func hilbertOf(g orb.Geometry) uint64 {
	b := g.Bound()
	cx := (b.Min[0] + b.Max[0]) / 2
	cy := (b.Min[1] + b.Max[1]) / 2
	const order = 16 // 16 bits per axis, enough resolution for WGS84 sorting
	const scale = (1 << order) - 1
	x := uint32((cx + 180) / 360 * float64(scale))
	y := uint32((cy + 90) / 180 * float64(scale))
	return hilbertD2XY(order, x, y)
}

// hilbertD2XY interleaves x,y into a single Hilbert curve distance using
// the standard rotate-and-reflect construction.
func hilbertD2XY(order int, x, y uint32) uint64 {
	var rx, ry uint32
	var d uint64
	for s := uint32(1) << (order - 1); s > 0; s >>= 1 {
		if x&s > 0 {
			rx = 1
		} else {
			rx = 0
		}
		if y&s > 0 {
			ry = 1
		} else {
			ry = 0
		}
		d += uint64(s) * uint64(s) * uint64((3*rx)^ry)
		// rotate
		if ry == 0 {
			if rx == 1 {
				x = s - 1 - x
				y = s - 1 - y
			}
			x, y = y, x
		}
	}
	return d
}

// geoparquetCRS84 is the PROJJSON WGS84/CRS84 definition QuackOSM embeds in
// every output file's "geo" metadata, copied verbatim from
// _geoparquet_metadata.py's _CRS_LONLAT constant.
var geoparquetCRS84 = map[string]interface{}{
	"$schema": "https://proj.org/schemas/v0.5/projjson.schema.json",
	"type":    "GeographicCRS",
	"name":    "WGS 84 longitude-latitude",
	"datum": map[string]interface{}{
		"type": "GeodeticReferenceFrame",
		"name": "World Geodetic System 1984",
		"ellipsoid": map[string]interface{}{
			"name":               "WGS 84",
			"semi_major_axis":    6378137,
			"inverse_flattening": 298.257223563,
		},
	},
	"coordinate_system": map[string]interface{}{
		"subtype": "ellipsoidal",
		"axis": []map[string]interface{}{
			{"name": "Geodetic longitude", "abbreviation": "Lon", "direction": "east", "unit": "degree"},
			{"name": "Geodetic latitude", "abbreviation": "Lat", "direction": "north", "unit": "degree"},
		},
	},
	"id": map[string]interface{}{"authority": "OGC", "code": "CRS84"},
}

// geoparquetMetadataJSON builds the "geo" key's JSON value per the
// GeoParquet 1.0.0 spec, following get_geoparquet_metadata's shape:
// version, primary_column, per-column encoding/crs/geometry_types/bbox, and
// a creator stamp.
func geoparquetMetadataJSON(geometryTypes []string, bbox [4]float64, encoding string) (string, error) {
	meta := map[string]interface{}{
		"version":        "1.0.0",
		"primary_column": "geometry",
		"columns": map[string]interface{}{
			"geometry": map[string]interface{}{
				"encoding":       encoding,
				"crs":            geoparquetCRS84,
				"geometry_types": geometryTypes,
				"bbox":           []float64{bbox[0], bbox[1], bbox[2], bbox[3]},
			},
		},
		"creator": map[string]interface{}{"library": "quackosm-go"},
	}
	enc, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode geoparquet metadata: %w", err)
	}
	return string(enc), nil
}

func compressionCodec(c config.Compression) compress.Compression {
	switch c {
	case config.CompressionZstd:
		return compress.Codecs.Zstd
	case config.CompressionSnappy:
		return compress.Codecs.Snappy
	case config.CompressionGzip:
		return compress.Codecs.Gzip
	default:
		return compress.Codecs.Uncompressed
	}
}

// writeGeoParquet writes merged rows to finalPath as a single GeoParquet
// file: compact mode emits a single JSON-encoded tags column, exploded mode
// emits one nullable string column per projection key. Geometry is WKB
// unless SaveAsWKT requests text encoding, mirroring C8's output contract.
func writeGeoParquet(cfg *config.Config, finalPath string, rows []*mergedRow, projection []string) error {
	exploded := cfg.ResolveExplodeTags()

	fields := []arrow.Field{
		{Name: "feature_id", Type: arrow.BinaryTypes.String, Nullable: false},
	}
	geomFieldIdx := 1
	geomFieldType := arrow.BinaryTypes.Binary
	encoding := "WKB"
	if cfg.SaveAsWKT {
		geomFieldType = arrow.BinaryTypes.String
		encoding = "WKT"
	}
	fields = append(fields, arrow.Field{Name: "geometry", Type: geomFieldType, Nullable: false})

	tagKeys := projection
	if exploded {
		for _, k := range tagKeys {
			fields = append(fields, arrow.Field{Name: k, Type: arrow.BinaryTypes.String, Nullable: true})
		}
	} else {
		fields = append(fields, arrow.Field{Name: "tags", Type: arrow.BinaryTypes.String, Nullable: false})
	}

	geometryTypesSeen := map[string]bool{}
	var bbox [4]float64
	first := true
	for _, r := range rows {
		geometryTypesSeen[r.geomType] = true
		g, err := geo.Decode(r.geomWKB)
		if err != nil {
			continue
		}
		b := g.Bound()
		if first {
			bbox = [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
			first = false
		} else {
			if b.Min[0] < bbox[0] {
				bbox[0] = b.Min[0]
			}
			if b.Min[1] < bbox[1] {
				bbox[1] = b.Min[1]
			}
			if b.Max[0] > bbox[2] {
				bbox[2] = b.Max[0]
			}
			if b.Max[1] > bbox[3] {
				bbox[3] = b.Max[1]
			}
		}
	}
	geometryTypes := make([]string, 0, len(geometryTypesSeen))
	for t := range geometryTypesSeen {
		geometryTypes = append(geometryTypes, t)
	}
	sort.Strings(geometryTypes)

	geoJSON, err := geoparquetMetadataJSON(geometryTypes, bbox, encoding)
	if err != nil {
		return err
	}
	schemaMeta := arrow.NewMetadata([]string{"geo"}, []string{geoJSON})
	schema := arrow.NewSchema(fields, &schemaMeta)

	f, err := os.Create(finalPath)
	if err != nil {
		return fmt.Errorf("create output file %s: %w", finalPath, err)
	}
	defer f.Close()

	props := arrparquet.NewWriterProperties(
		arrparquet.WithCompression(compressionCodec(cfg.Compression)),
		arrparquet.WithMaxRowGroupLength(int64(cfg.RowGroupSize)),
	)
	writer, err := pqarrow.NewFileWriter(schema, f, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("open output parquet writer: %w", err)
	}

	builder := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer builder.Release()

	flush := func() error {
		if builder.Field(0).Len() == 0 {
			return nil
		}
		rec := builder.NewRecord()
		defer rec.Release()
		return writer.Write(rec)
	}

	batch := cfg.RowGroupSize
	if batch <= 0 {
		batch = 100_000
	}

	for _, r := range rows {
		builder.Field(0).(*array.StringBuilder).Append(r.featureID)

		if cfg.SaveAsWKT {
			g, err := geo.Decode(r.geomWKB)
			if err != nil {
				builder.Field(geomFieldIdx).(*array.StringBuilder).AppendNull()
			} else {
				builder.Field(geomFieldIdx).(*array.StringBuilder).Append(wktOf(g))
			}
		} else {
			builder.Field(geomFieldIdx).(*array.BinaryBuilder).Append(r.geomWKB)
		}

		if exploded {
			for i, k := range tagKeys {
				col := geomFieldIdx + 1 + i
				if v, ok := r.tags[k]; ok {
					builder.Field(col).(*array.StringBuilder).Append(v)
				} else {
					builder.Field(col).(*array.StringBuilder).AppendNull()
				}
			}
		} else {
			enc, _ := json.Marshal(r.tags)
			builder.Field(geomFieldIdx + 1).(*array.StringBuilder).Append(string(enc))
		}

		if builder.Field(0).Len() >= batch {
			if err := flush(); err != nil {
				writer.Close()
				return fmt.Errorf("write output batch: %w", err)
			}
		}
	}
	if err := flush(); err != nil {
		writer.Close()
		return fmt.Errorf("write final output batch: %w", err)
	}

	return writer.Close()
}

// wktOf renders a geometry as WKT text for SaveAsWKT mode. No orb/encoding/wkt
// usage appears anywhere in the example pack (see setup.go's geometry
// filter parsing), so this is a small hand-written encoder covering the
// four shapes this pipeline emits; flagged in DESIGN.md.
func wktOf(g orb.Geometry) string {
	switch v := g.(type) {
	case orb.Point:
		return fmt.Sprintf("POINT(%s)", wktCoord(v))
	case orb.LineString:
		return fmt.Sprintf("LINESTRING(%s)", wktCoords(v))
	case orb.Polygon:
		return fmt.Sprintf("POLYGON(%s)", wktRings(v))
	case orb.MultiPolygon:
		parts := make([]string, 0, len(v))
		for _, poly := range v {
			parts = append(parts, fmt.Sprintf("(%s)", wktRings(poly)))
		}
		return fmt.Sprintf("MULTIPOLYGON(%s)", joinComma(parts))
	default:
		return ""
	}
}

func wktCoord(p orb.Point) string {
	return fmt.Sprintf("%g %g", p[0], p[1])
}

func wktCoords(pts []orb.Point) string {
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = wktCoord(p)
	}
	return joinComma(parts)
}

func wktRings(poly orb.Polygon) string {
	parts := make([]string, len(poly))
	for i, ring := range poly {
		parts[i] = fmt.Sprintf("(%s)", wktCoords(ring))
	}
	return joinComma(parts)
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}
