package render

import (
	"fmt"
	"io"

	"agridash/internal/engine"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"
)

// Schema maps result columns to nullable Arrow fields.
func Schema(res *engine.Result) *arrow.Schema {
	fields := make([]arrow.Field, len(res.Columns))
	for i, c := range res.Columns {
		var dt arrow.DataType
		switch c.Kind {
		case engine.KindInt:
			dt = arrow.PrimitiveTypes.Int64
		case engine.KindFloat:
			dt = arrow.PrimitiveTypes.Float64
		default:
			dt = arrow.BinaryTypes.String
		}
		fields[i] = arrow.Field{Name: c.Name, Type: dt, Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// WriteArrow writes res as a single-batch Arrow IPC stream.
func WriteArrow(w io.Writer, res *engine.Result) error {
	mem := memory.NewGoAllocator()
	schema := Schema(res)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for _, row := range res.Rows {
		for j, v := range row {
			if err := appendCell(b.Field(j), v); err != nil {
				return fmt.Errorf("column %q: %w", res.Columns[j].Name, err)
			}
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	iw := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err := iw.Write(rec); err != nil {
		iw.Close()
		return err
	}
	return iw.Close()
}

func appendCell(fb array.Builder, v any) error {
	if v == nil {
		fb.AppendNull()
		return nil
	}
	switch b := fb.(type) {
	case *array.Int64Builder:
		n, ok := v.(int64)
		if !ok {
			return fmt.Errorf("want int64, got %T", v)
		}
		b.Append(n)
	case *array.Float64Builder:
		switch n := v.(type) {
		case float64:
			b.Append(n)
		case int64:
			b.Append(float64(n))
		default:
			return fmt.Errorf("want float64, got %T", v)
		}
	case *array.StringBuilder:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("want string, got %T", v)
		}
		b.Append(s)
	default:
		return fmt.Errorf("unsupported builder %T", fb)
	}
	return nil
}
