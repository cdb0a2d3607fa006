package engine

import (
	"cmp"
	"runtime"
	"sort"

	"github.com/apache/arrow/go/v18/arrow/array"
	"golang.org/x/sync/errgroup"
)

// Rows per partial aggregate. Fixed so float sums merge in the same order
// on every machine.
const chunkRows = 8192

type aggStats struct {
	Sum float64
	N   int64
	Min float64
	Max float64
}

func (a *aggStats) add(v float64) {
	if a.N == 0 || v < a.Min {
		a.Min = v
	}
	if a.N == 0 || v > a.Max {
		a.Max = v
	}
	a.Sum += v
	a.N++
}

func (a *aggStats) merge(b aggStats) {
	if b.N == 0 {
		return
	}
	if a.N == 0 || b.Min < a.Min {
		a.Min = b.Min
	}
	if a.N == 0 || b.Max > a.Max {
		a.Max = b.Max
	}
	a.Sum += b.Sum
	a.N += b.N
}

func (a aggStats) value(fn Func) any {
	if a.N == 0 {
		return nil
	}
	switch fn {
	case Sum:
		return a.Sum
	case Avg:
		return a.Sum / float64(a.N)
	case Min:
		return a.Min
	default:
		return a.Max
	}
}

// groupKey is the composite GROUP BY key. Unused parts stay -1.
type groupKey struct {
	year, state, district int32
}

type outRow struct {
	vals  []any
	first int
}

// Query runs q against the store. An empty store yields an empty result.
func (cs *ColumnStore) Query(q Query) (*Result, error) {
	cols, err := q.columns()
	if err != nil {
		return nil, err
	}
	if cs.Len() == 0 {
		return emptyResult(cols), nil
	}

	// 1. Resolve metric columns
	operands := make([][]*array.Float64, len(q.Aggregates))
	for i, a := range q.Aggregates {
		for _, name := range a.Metrics {
			col, err := cs.metric(name)
			if err != nil {
				return nil, err
			}
			operands[i] = append(operands[i], col)
		}
	}
	selected := make([]*array.Float64, len(q.Select))
	for i, name := range q.Select {
		col, err := cs.metric(name)
		if err != nil {
			return nil, err
		}
		selected[i] = col
	}

	// 2. Filter
	rows := cs.filter(q.Where)

	// 3. Project or aggregate
	var out []outRow
	if len(q.Aggregates) == 0 {
		out = make([]outRow, 0, len(rows))
		for _, r := range rows {
			vals := make([]any, 0, len(cols))
			vals = append(vals, cs.keyValues(q.Keys, int(r))...)
			for _, col := range selected {
				vals = append(vals, cellValue(col, int(r)))
			}
			out = append(out, outRow{vals: vals, first: int(r)})
		}
	} else {
		out, err = cs.aggregate(q, rows, operands)
		if err != nil {
			return nil, err
		}
	}

	// 4. Order and limit
	sortRows(out, cols, q.OrderBy, len(q.Keys))
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	res := emptyResult(cols)
	for _, r := range out {
		res.Rows = append(res.Rows, r.vals)
	}
	return res, nil
}

func (cs *ColumnStore) filter(where []Predicate) []int32 {
	preds := make([]func(int) bool, len(where))
	for i, p := range where {
		preds[i] = p.bind(cs)
	}
	rows := make([]int32, 0, cs.Len())
next:
	for i := 0; i < cs.Len(); i++ {
		for _, p := range preds {
			if !p(i) {
				continue next
			}
		}
		rows = append(rows, int32(i))
	}
	return rows
}

func (cs *ColumnStore) keyValues(keys []Key, row int) []any {
	vals := make([]any, len(keys))
	for i, k := range keys {
		switch k {
		case Year:
			vals[i] = int64(cs.Years[row])
		case State:
			vals[i] = cs.StateDict[cs.StateIDs[row]]
		case District:
			vals[i] = cs.DistrictDict[cs.DistrictIDs[row]]
		}
	}
	return vals
}

func (cs *ColumnStore) groupKeyOf(keys []Key, row int) groupKey {
	gk := groupKey{-1, -1, -1}
	for _, k := range keys {
		switch k {
		case Year:
			gk.year = cs.Years[row]
		case State:
			gk.state = cs.StateIDs[row]
		case District:
			gk.district = cs.DistrictIDs[row]
		}
	}
	return gk
}

func cellValue(col *array.Float64, row int) any {
	if col.IsNull(row) {
		return nil
	}
	return col.Value(row)
}

func (cs *ColumnStore) aggregate(q Query, rows []int32, operands [][]*array.Float64) ([]outRow, error) {
	numAggs := len(q.Aggregates)

	// 1. Assign group IDs in first-appearance order
	groupIdx := make(map[groupKey]int32)
	groupOf := make([]int32, len(rows))
	var firsts []int
	for i, r := range rows {
		gk := cs.groupKeyOf(q.Keys, int(r))
		gid, ok := groupIdx[gk]
		if !ok {
			gid = int32(len(firsts))
			groupIdx[gk] = gid
			firsts = append(firsts, int(r))
		}
		groupOf[i] = gid
	}
	numGroups := len(firsts)
	if len(q.Keys) == 0 && numGroups == 0 {
		// Aggregates without GROUP BY always produce one row.
		numGroups = 1
		firsts = append(firsts, 0)
	}

	// 2. Parallel partials over fixed chunks
	numChunks := (len(rows) + chunkRows - 1) / chunkRows
	partials := make([][]aggStats, numChunks)

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for c := 0; c < numChunks; c++ {
		g.Go(func() error {
			start := c * chunkRows
			end := min(start+chunkRows, len(rows))
			p := make([]aggStats, numGroups*numAggs)
			for j := start; j < end; j++ {
				r := int(rows[j])
				base := int(groupOf[j]) * numAggs
			nextAgg:
				for a, cols := range operands {
					var v float64
					for _, col := range cols {
						if col.IsNull(r) {
							continue nextAgg
						}
						v += col.Value(r)
					}
					p[base+a].add(v)
				}
			}
			partials[c] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 3. Merge Phase in chunk order
	final := make([]aggStats, numGroups*numAggs)
	for _, p := range partials {
		for i := range final {
			final[i].merge(p[i])
		}
	}

	// 4. Build rows
	out := make([]outRow, numGroups)
	for gid := 0; gid < numGroups; gid++ {
		vals := make([]any, 0, len(q.Keys)+numAggs)
		vals = append(vals, cs.keyValues(q.Keys, firsts[gid])...)
		for a, agg := range q.Aggregates {
			vals = append(vals, final[gid*numAggs+a].value(agg.Func))
		}
		out[gid] = outRow{vals: vals, first: firsts[gid]}
	}
	return out, nil
}

// compareValues orders nil < numbers < strings.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	switch {
	case aNum && bNum:
		return cmp.Compare(af, bf)
	case aNum:
		return -1
	case bNum:
		return 1
	}
	as, _ := a.(string)
	bs, _ := b.(string)
	return cmp.Compare(as, bs)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func sortRows(rows []outRow, cols []Column, orderBy []Order, numKeys int) {
	idx := make([]int, len(orderBy))
	for i, o := range orderBy {
		for j, c := range cols {
			if c.Name == o.Column {
				idx[i] = j
				break
			}
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].vals, rows[j].vals
		for k, o := range orderBy {
			c := compareValues(a[idx[k]], b[idx[k]])
			if o.Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		for k := 0; k < numKeys; k++ {
			if c := compareValues(a[k], b[k]); c != 0 {
				return c < 0
			}
		}
		return rows[i].first < rows[j].first
	})
}
