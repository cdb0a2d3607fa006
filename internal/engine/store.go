package engine

import (
	"math"
	"slices"

	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
)

// Key column names as they appear in the source header.
const (
	ColYear     = "Year"
	ColState    = "State Name"
	ColDistrict = "Dist Name"
)

// ColumnStore holds the dataset in Struct-of-Arrays format.
// It is never mutated after construction.
type ColumnStore struct {
	// Key Columns (Flat Arrays)
	Years []int32

	// Dictionary Encoded IDs (0..N)
	StateIDs    []int32
	DistrictIDs []int32

	// Dictionaries (ID -> String)
	StateDict    []string
	DistrictDict []string

	// Metric Columns, header order. Nulls live in the Arrow validity bitmap.
	MetricNames []string
	Metrics     []*array.Float64

	metricIndex map[string]int
	stateIndex  map[string]int32
	maxYear     int32
}

// Record is one district-year row. A null metric is an absent key.
type Record struct {
	Year     int
	State    string
	District string
	Metrics  map[string]float64
}

// NewColumnStore builds a store from records. metricNames fixes the schema;
// record metrics not named there are ignored.
func NewColumnStore(metricNames []string, records []Record) *ColumnStore {
	n := len(records)
	cs := &ColumnStore{
		Years:       make([]int32, n),
		StateIDs:    make([]int32, n),
		DistrictIDs: make([]int32, n),
		MetricNames: slices.Clone(metricNames),
	}

	stateMap := make(map[string]int32)
	distMap := make(map[string]int32)
	intern := func(m map[string]int32, dict *[]string, s string) int32 {
		if id, ok := m[s]; ok {
			return id
		}
		id := int32(len(*dict))
		*dict = append(*dict, s)
		m[s] = id
		return id
	}

	values := make([][]float64, len(metricNames))
	valid := make([][]bool, len(metricNames))
	for m := range metricNames {
		values[m] = make([]float64, n)
		valid[m] = make([]bool, n)
	}

	for i, r := range records {
		cs.Years[i] = int32(r.Year)
		cs.StateIDs[i] = intern(stateMap, &cs.StateDict, r.State)
		cs.DistrictIDs[i] = intern(distMap, &cs.DistrictDict, r.District)
		for m, name := range metricNames {
			if v, ok := r.Metrics[name]; ok && !math.IsNaN(v) {
				values[m][i] = v
				valid[m][i] = true
			}
		}
	}

	cs.Metrics = buildMetricArrays(values, valid)
	cs.finish()
	return cs
}

func buildMetricArrays(values [][]float64, valid [][]bool) []*array.Float64 {
	mem := memory.NewGoAllocator()
	out := make([]*array.Float64, len(values))
	for m := range values {
		b := array.NewFloat64Builder(mem)
		b.AppendValues(values[m], valid[m])
		out[m] = b.NewFloat64Array()
		b.Release()
	}
	return out
}

// finish builds the lookup indexes once all columns are in place.
func (cs *ColumnStore) finish() {
	cs.metricIndex = make(map[string]int, len(cs.MetricNames))
	for i, name := range cs.MetricNames {
		cs.metricIndex[name] = i
	}
	cs.stateIndex = make(map[string]int32, len(cs.StateDict))
	for i, name := range cs.StateDict {
		cs.stateIndex[name] = int32(i)
	}
	cs.maxYear = 0
	for i, y := range cs.Years {
		if i == 0 || y > cs.maxYear {
			cs.maxYear = y
		}
	}
}

// Len returns the number of records.
func (cs *ColumnStore) Len() int { return len(cs.Years) }

// MaxYear returns the latest year present, or 0 for an empty store.
func (cs *ColumnStore) MaxYear() int { return int(cs.maxYear) }

// HasMetric reports whether name is a metric column of the loaded schema.
func (cs *ColumnStore) HasMetric(name string) bool {
	_, ok := cs.metricIndex[name]
	return ok
}

func (cs *ColumnStore) metric(name string) (*array.Float64, error) {
	idx, ok := cs.metricIndex[name]
	if !ok {
		return nil, &UnknownMetricError{Column: name}
	}
	return cs.Metrics[idx], nil
}

// Record materialises row i.
func (cs *ColumnStore) Record(i int) Record {
	r := Record{
		Year:     int(cs.Years[i]),
		State:    cs.StateDict[cs.StateIDs[i]],
		District: cs.DistrictDict[cs.DistrictIDs[i]],
		Metrics:  make(map[string]float64, len(cs.MetricNames)),
	}
	for m, name := range cs.MetricNames {
		col := cs.Metrics[m]
		if col.IsValid(i) {
			r.Metrics[name] = col.Value(i)
		}
	}
	return r
}

// Release frees the Arrow buffers backing the metric columns.
func (cs *ColumnStore) Release() {
	for _, col := range cs.Metrics {
		if col != nil {
			col.Release()
		}
	}
}
