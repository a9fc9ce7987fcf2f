package parquet

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
)

// FeatureRow is one row of an intermediate feature shard: a candidate
// feature (node/way/relation) together with its tags and geometry, before
// the final C8 merge. Mirrors the teacher's WKBGeometryWriter schema
// (osm_id, osm_type, tags, geom_wkb), adapted from a single writer shape
// into the per-group shard unit C6 partitions work into.
type FeatureRow struct {
	ID      int64
	Kind    string // "node", "way", or "relation"
	Tags    string // JSON-encoded string->string map
	GeomWKB []byte
}

var featureShardSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	{Name: "kind", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "tags", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "geom_wkb", Type: arrow.BinaryTypes.Binary, Nullable: false},
}, nil)

// FeatureShardWriter writes one group's FeatureRows to a parquet shard file.
type FeatureShardWriter struct {
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	batchSize int
	count     int
}

// NewFeatureShardWriter creates a shard writer at path, flushing every
// batchSize rows.
func NewFeatureShardWriter(path string, batchSize int) (*FeatureShardWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create feature shard %s: %w", path, err)
	}
	props := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)
	writer, err := pqarrow.NewFileWriter(featureShardSchema, f, props, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open feature shard writer: %w", err)
	}
	return &FeatureShardWriter{
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, featureShardSchema),
		batchSize: batchSize,
	}, nil
}

// Write appends one feature row, flushing a batch if batchSize is reached.
func (w *FeatureShardWriter) Write(row FeatureRow) error {
	w.builder.Field(0).(*array.Int64Builder).Append(row.ID)
	w.builder.Field(1).(*array.StringBuilder).Append(row.Kind)
	w.builder.Field(2).(*array.StringBuilder).Append(row.Tags)
	w.builder.Field(3).(*array.BinaryBuilder).Append(row.GeomWKB)

	w.count++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

func (w *FeatureShardWriter) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	err := w.writer.Write(rec)
	w.count = 0
	return err
}

// Close flushes remaining rows and closes the shard file.
func (w *FeatureShardWriter) Close() error {
	if err := w.flush(); err != nil {
		return err
	}
	if err := w.writer.Close(); err != nil {
		return err
	}
	// pqarrow's writer closes its sink itself; a second close is harmless.
	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

// ReadFeatureShard reads every row back out of a shard file written by
// FeatureShardWriter, in the reader pattern the teacher's loader.go uses
// (parquet/file.OpenParquetFile + pqarrow.NewFileReader + ReadTable).
func ReadFeatureShard(ctx context.Context, path string) ([]FeatureRow, error) {
	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("open feature shard %s: %w", path, err)
	}
	defer pf.Close()

	reader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("create feature shard reader: %w", err)
	}
	tbl, err := reader.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("read feature shard table: %w", err)
	}
	defer tbl.Release()

	rows := make([]FeatureRow, 0, tbl.NumRows())
	if tbl.NumRows() == 0 {
		return rows, nil
	}

	idCol := tbl.Column(0)
	kindCol := tbl.Column(1)
	tagsCol := tbl.Column(2)
	geomCol := tbl.Column(3)

	var rowIdx int64
	for chunkIdx := 0; chunkIdx < idCol.Data().Len(); chunkIdx++ {
		ids := idCol.Data().Chunk(chunkIdx).(*array.Int64)
		kinds := kindCol.Data().Chunk(chunkIdx).(*array.String)
		tags := tagsCol.Data().Chunk(chunkIdx).(*array.String)
		geoms := geomCol.Data().Chunk(chunkIdx).(*array.Binary)
		for i := 0; i < ids.Len(); i++ {
			rows = append(rows, FeatureRow{
				ID:      ids.Value(i),
				Kind:    kinds.Value(i),
				Tags:    tags.Value(i),
				GeomWKB: append([]byte(nil), geoms.Value(i)...),
			})
			rowIdx++
		}
	}
	return rows, nil
}

// KVRow is one row of an id -> WKB lookup shard (all_nodes_kv's polygon
// cousin, way_linestrings_kv): an entity id mapped to its geometry and,
// optionally, its tags for downstream consumers that need them.
type KVRow struct {
	ID      int64
	GeomWKB []byte
	Tags    string
}

var kvShardSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	{Name: "geom_wkb", Type: arrow.BinaryTypes.Binary, Nullable: false},
	{Name: "tags", Type: arrow.BinaryTypes.String, Nullable: false},
}, nil)

// KVShardWriter writes an id->geometry lookup shard, e.g. way_linestrings_kv.
type KVShardWriter struct {
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	batchSize int
	count     int
}

// NewKVShardWriter creates a kv shard writer at path.
func NewKVShardWriter(path string, batchSize int) (*KVShardWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create kv shard %s: %w", path, err)
	}
	props := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)
	writer, err := pqarrow.NewFileWriter(kvShardSchema, f, props, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open kv shard writer: %w", err)
	}
	return &KVShardWriter{
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, kvShardSchema),
		batchSize: batchSize,
	}, nil
}

// Write appends one kv row.
func (w *KVShardWriter) Write(row KVRow) error {
	w.builder.Field(0).(*array.Int64Builder).Append(row.ID)
	w.builder.Field(1).(*array.BinaryBuilder).Append(row.GeomWKB)
	w.builder.Field(2).(*array.StringBuilder).Append(row.Tags)

	w.count++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

func (w *KVShardWriter) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	err := w.writer.Write(rec)
	w.count = 0
	return err
}

// Close flushes and closes the kv shard.
func (w *KVShardWriter) Close() error {
	if err := w.flush(); err != nil {
		return err
	}
	if err := w.writer.Close(); err != nil {
		return err
	}
	// pqarrow's writer closes its sink itself; a second close is harmless.
	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

// ReadKVShard reads a kv shard into an in-memory map keyed by id, for the
// left-join steps in C4/C5 (a group's worth of keys fits comfortably in
// memory by construction of C6's rows-per-group sizing).
func ReadKVShard(ctx context.Context, path string) (map[int64]KVRow, error) {
	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("open kv shard %s: %w", path, err)
	}
	defer pf.Close()

	reader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("create kv shard reader: %w", err)
	}
	tbl, err := reader.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("read kv shard table: %w", err)
	}
	defer tbl.Release()

	out := make(map[int64]KVRow, tbl.NumRows())
	if tbl.NumRows() == 0 {
		return out, nil
	}

	idCol := tbl.Column(0)
	geomCol := tbl.Column(1)
	tagsCol := tbl.Column(2)

	for chunkIdx := 0; chunkIdx < idCol.Data().Len(); chunkIdx++ {
		ids := idCol.Data().Chunk(chunkIdx).(*array.Int64)
		geoms := geomCol.Data().Chunk(chunkIdx).(*array.Binary)
		tags := tagsCol.Data().Chunk(chunkIdx).(*array.String)
		for i := 0; i < ids.Len(); i++ {
			id := ids.Value(i)
			out[id] = KVRow{
				ID:      id,
				GeomWKB: append([]byte(nil), geoms.Value(i)...),
				Tags:    tags.Value(i),
			}
		}
	}
	return out, nil
}
