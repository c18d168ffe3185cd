package warehouse

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/memory"
	"github.com/apache/arrow/go/v15/parquet"
	"github.com/apache/arrow/go/v15/parquet/compress"
	"github.com/apache/arrow/go/v15/parquet/file"
	"github.com/apache/arrow/go/v15/parquet/pqarrow"

	"github.com/dvloznov/finance-warehouse/internal/table"
)

// Parquet key/value metadata written into every snapshot footer.
const (
	metaCreatedAt   = "created_at"
	metaSourceFile  = "source_file"
	metaDataVersion = "data_version"
)

// footer is what the store needs from a snapshot without reading its rows.
type footer struct {
	rows        int64
	createdAt   time.Time
	hasCreated  bool
	sourceFile  string
	dataVersion int64
}

func arrowType(t table.Type) arrow.DataType {
	switch t {
	case table.Int64:
		return arrow.PrimitiveTypes.Int64
	case table.Float64:
		return arrow.PrimitiveTypes.Float64
	case table.Date:
		return arrow.FixedWidthTypes.Date32
	case table.Timestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		return arrow.BinaryTypes.String
	}
}

func tableType(dt arrow.DataType) table.Type {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return table.Int64
	case arrow.FLOAT32, arrow.FLOAT64:
		return table.Float64
	case arrow.DATE32, arrow.DATE64:
		return table.Date
	case arrow.TIMESTAMP:
		return table.Timestamp
	default:
		return table.String
	}
}

// encodeParquet serializes t as a snappy-compressed Parquet file carrying
// meta in its footer.
func encodeParquet(t *table.Table, meta Meta, mem memory.Allocator) ([]byte, error) {
	cols := t.Columns()
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		fields[i] = arrow.Field{Name: c.Name, Type: arrowType(c.Type), Nullable: true}
	}
	md := arrow.NewMetadata(
		[]string{metaCreatedAt, metaSourceFile, metaDataVersion},
		[]string{meta.CreatedAt.UTC().Format(time.RFC3339Nano), meta.SourceFile, strconv.FormatInt(meta.DataVersion, 10)},
	)
	schema := arrow.NewSchema(fields, &md)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for ci, c := range cols {
		fb := b.Field(ci)
		for ri := 0; ri < t.Len(); ri++ {
			v := table.Coerce(t.Value(ri, c.Name), c.Type)
			if v == nil {
				fb.AppendNull()
				continue
			}
			switch c.Type {
			case table.Int64:
				fb.(*array.Int64Builder).Append(v.(int64))
			case table.Float64:
				fb.(*array.Float64Builder).Append(v.(float64))
			case table.Date:
				fb.(*array.Date32Builder).Append(arrow.Date32FromTime(v.(civil.Date).In(time.UTC)))
			case table.Timestamp:
				fb.(*array.TimestampBuilder).Append(arrow.Timestamp(v.(time.Time).UnixMicro()))
			default:
				fb.(*array.StringBuilder).Append(v.(string))
			}
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	buf := &bytes.Buffer{}
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	fw, err := pqarrow.NewFileWriter(schema, buf, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return nil, fmt.Errorf("encodeParquet: create writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("encodeParquet: write record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("encodeParquet: close writer: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeParquet reads every row of an open Parquet file into a table.
func decodeParquet(ctx context.Context, f *os.File, mem memory.Allocator) (*table.Table, error) {
	pf, err := file.NewParquetReader(f)
	if err != nil {
		return nil, fmt.Errorf("decodeParquet: open reader: %w", err)
	}
	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, fmt.Errorf("decodeParquet: arrow reader: %w", err)
	}
	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("decodeParquet: read table: %w", err)
	}
	defer tbl.Release()

	sc := tbl.Schema()
	cols := make([]table.Column, sc.NumFields())
	for i, field := range sc.Fields() {
		cols[i] = table.Column{Name: field.Name, Type: tableType(field.Type)}
	}
	out := table.New(cols...)
	if out.Width() != len(cols) {
		return nil, fmt.Errorf("decodeParquet: duplicate column names in %s", f.Name())
	}

	n := int(tbl.NumRows())
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = make([]any, len(cols))
	}
	for ci := 0; ci < int(tbl.NumCols()); ci++ {
		r := 0
		for _, chunk := range tbl.Column(ci).Data().Chunks() {
			for j := 0; j < chunk.Len() && r < n; j++ {
				rows[r][ci] = arrowValue(chunk, j)
				r++
			}
		}
	}
	for _, row := range rows {
		if err := out.AppendRow(row...); err != nil {
			return nil, fmt.Errorf("decodeParquet: %w", err)
		}
	}
	return out, nil
}

func arrowValue(arr arrow.Array, i int) any {
	if _, ok := arr.(*array.Null); ok || arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Int64:
		return a.Value(i)
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Int16:
		return int64(a.Value(i))
	case *array.Int8:
		return int64(a.Value(i))
	case *array.Uint64:
		return int64(a.Value(i))
	case *array.Uint32:
		return int64(a.Value(i))
	case *array.Uint16:
		return int64(a.Value(i))
	case *array.Uint8:
		return int64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Date32:
		return civil.DateOf(a.Value(i).ToTime())
	case *array.Date64:
		return civil.DateOf(a.Value(i).ToTime())
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit).UTC()
	default:
		return arr.ValueStr(i)
	}
}

// readFooter reads the row count and snapshot metadata from the Parquet
// footer without touching row data.
func readFooter(f *os.File) (footer, error) {
	pf, err := file.NewParquetReader(f)
	if err != nil {
		return footer{}, fmt.Errorf("readFooter: %w", err)
	}
	ft := footer{rows: pf.NumRows()}
	kv := pf.MetaData().KeyValueMetadata()
	if v := kv.FindValue(metaCreatedAt); v != nil {
		if ts, err := time.Parse(time.RFC3339Nano, *v); err == nil {
			ft.createdAt = ts
			ft.hasCreated = true
		}
	}
	if v := kv.FindValue(metaSourceFile); v != nil {
		ft.sourceFile = *v
	}
	if v := kv.FindValue(metaDataVersion); v != nil {
		if n, err := strconv.ParseInt(*v, 10, 64); err == nil {
			ft.dataVersion = n
		}
	}
	return ft, nil
}
