package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/spf13/afero"
)

// LoadParquet reads a flat Parquet file with the same column layout as the
// CSV source. Every non-key leaf column is treated as a metric.
func LoadParquet(fs afero.Fs, path string) (*ColumnStore, error) {
	start := time.Now()
	slog.Info("loading dataset", "path", path, "format", "parquet")

	file, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	pqFile, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		return nil, &IngestError{Path: path, Reason: fmt.Sprintf("not a parquet file: %v", err)}
	}

	reader := parquet.NewReader(pqFile)
	defer func() { _ = reader.Close() }()

	var names []string
	for _, p := range reader.Schema().Columns() {
		names = append(names, p[len(p)-1])
	}
	var metricNames []string
	for _, name := range names {
		if name != ColYear && name != ColState && name != ColDistrict {
			metricNames = append(metricNames, name)
		}
	}
	if err := requireKeys(names); err != nil {
		err.Path = path
		return nil, err
	}

	var records []Record
	buf := make([]parquet.Row, 256)
	line := 0
	for {
		n, err := reader.ReadRows(buf)
		for _, row := range buf[:n] {
			line++
			fields := make(map[string]any, len(row))
			for _, v := range row {
				if c := v.Column(); c >= 0 && c < len(names) {
					fields[names[c]] = parquetValue(v)
				}
			}
			rec, ferr := recordFromFields(fields, metricNames)
			if ferr != nil {
				ferr.Path = path
				ferr.Line = line
				return nil, ferr
			}
			records = append(records, rec)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
	}

	cs := NewColumnStore(metricNames, records)
	slog.Info("dataset loaded", "path", path, "rows", cs.Len(), "metrics", len(cs.MetricNames), "elapsed", time.Since(start))
	return cs, nil
}

func requireKeys(columns []string) *IngestError {
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[c] = true
	}
	var missing []string
	for _, k := range []string{ColDistrict, ColState, ColYear} {
		if !have[k] {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &IngestError{Missing: missing}
	}
	return nil
}

func parquetValue(v parquet.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return int64(v.Int32())
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}

// recordFromFields converts one decoded row into a Record.
func recordFromFields(fields map[string]any, metricNames []string) (Record, *IngestError) {
	var rec Record

	switch y := fields[ColYear].(type) {
	case int64:
		rec.Year = int(y)
	case float64:
		if y != math.Trunc(y) || math.IsInf(y, 0) {
			return rec, &IngestError{Column: ColYear, Reason: fmt.Sprintf("year %v is not an integer", y)}
		}
		rec.Year = int(y)
	default:
		return rec, &IngestError{Column: ColYear, Reason: fmt.Sprintf("year %v is not an integer", y)}
	}

	state, ok := fields[ColState].(string)
	if !ok {
		return rec, &IngestError{Column: ColState, Reason: "expected a string"}
	}
	district, ok := fields[ColDistrict].(string)
	if !ok {
		return rec, &IngestError{Column: ColDistrict, Reason: "expected a string"}
	}
	rec.State, rec.District = state, district

	rec.Metrics = make(map[string]float64, len(metricNames))
	for _, name := range metricNames {
		switch v := fields[name].(type) {
		case nil:
		case float64:
			if math.IsInf(v, 0) {
				return rec, &IngestError{Column: name, Reason: fmt.Sprintf("non-numeric value %v", v)}
			}
			if !math.IsNaN(v) {
				rec.Metrics[name] = v
			}
		case int64:
			rec.Metrics[name] = float64(v)
		default:
			return rec, &IngestError{Column: name, Reason: fmt.Sprintf("non-numeric value %v", v)}
		}
	}
	return rec, nil
}
