package catalog

import (
	"math"

	"agridash/internal/engine"

	"gonum.org/v1/gonum/stat"
)

// Measure names one metric and its output column.
type Measure struct {
	Metric string
	As     string
}

// TopKTrend ranks states by the combined SUM of all measure metrics, keeps
// the top k, and returns SUM per measure by (Year, State) for those states,
// ordered by Year.
func TopKTrend(store *engine.ColumnStore, k int, measures ...Measure) (*engine.Result, error) {
	trend := engine.Query{
		Keys:    []engine.Key{engine.Year, engine.State},
		OrderBy: []engine.Order{{Column: engine.ColYear}},
	}
	metrics := make([]string, len(measures))
	for i, m := range measures {
		metrics[i] = m.Metric
		trend.Aggregates = append(trend.Aggregates, engine.SumOf(m.As, m.Metric))
	}

	ranked, err := store.Query(engine.Query{
		Keys:       []engine.Key{engine.State},
		Aggregates: []engine.Aggregate{engine.SumOf("rank_total", metrics...)},
		OrderBy:    []engine.Order{{Column: "rank_total", Desc: true}},
		Limit:      max(k, 1),
	})
	if err != nil {
		return nil, err
	}
	states := make([]string, 0, ranked.Len())
	if k > 0 {
		for i := range ranked.Rows {
			states = append(states, ranked.Text(i, engine.ColState))
		}
	}

	trend.Where = []engine.Predicate{engine.StateIn(states...)}
	return store.Query(trend)
}

// WindowDelta aggregates metric per (key, Year) over the last window years,
// scores each key by max-min across those years, and returns the top k.
func WindowDelta(store *engine.ColumnStore, fn engine.Func, metric string, key engine.Key, window, k int, as string) (*engine.Result, error) {
	out := engine.NewResult(
		engine.Column{Name: key.ColumnName(), Kind: key.Kind()},
		engine.Column{Name: as, Kind: engine.KindFloat},
	)

	keys := []engine.Key{key, engine.Year}
	if key == engine.Year {
		keys = keys[:1]
	}
	yearly, err := store.Query(engine.Query{
		Keys:       keys,
		Aggregates: []engine.Aggregate{{Func: fn, Metrics: []string{metric}, As: "value"}},
		Where:      []engine.Predicate{engine.YearAtLeast(store.MaxYear() - (window - 1))},
	})
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return out, nil
	}

	type span struct {
		lo, hi float64
		n      int
	}
	spans := make(map[any]*span)
	var order []any
	for i, row := range yearly.Rows {
		name := row[0]
		s, ok := spans[name]
		if !ok {
			s = &span{}
			spans[name] = s
			order = append(order, name)
		}
		v, ok := yearly.Float(i, "value")
		if !ok {
			continue
		}
		if s.n == 0 || v < s.lo {
			s.lo = v
		}
		if s.n == 0 || v > s.hi {
			s.hi = v
		}
		s.n++
	}

	for _, name := range order {
		var delta any
		if s := spans[name]; s.n > 0 {
			delta = s.hi - s.lo
		}
		out.Rows = append(out.Rows, []any{name, delta})
	}
	out.OrderBy([]engine.Order{{Column: as, Desc: true}}, 1)
	out.Limit(k)
	return out, nil
}

// PointInTimeTopN returns the n districts with the highest metric in year.
func PointInTimeTopN(store *engine.ColumnStore, metric string, year, n int) (*engine.Result, error) {
	return topN(store, engine.Query{
		Keys:    []engine.Key{engine.District, engine.State},
		Select:  []string{metric},
		Where:   []engine.Predicate{engine.YearEquals(year)},
		OrderBy: []engine.Order{{Column: metric, Desc: true}},
	}, n)
}

// MaxPerGroupTopN returns the n (district, state) groups with the highest
// all-time maximum of metric.
func MaxPerGroupTopN(store *engine.ColumnStore, metric string, n int, as string) (*engine.Result, error) {
	return topN(store, engine.Query{
		Keys:       []engine.Key{engine.District, engine.State},
		Aggregates: []engine.Aggregate{engine.MaxOf(as, metric)},
		OrderBy:    []engine.Order{{Column: as, Desc: true}},
	}, n)
}

// topN runs q limited to n rows. n <= 0 still validates q but returns no rows.
func topN(store *engine.ColumnStore, q engine.Query, n int) (*engine.Result, error) {
	q.Limit = max(n, 1)
	res, err := store.Query(q)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		res.Rows = res.Rows[:0]
	}
	return res, nil
}

// YearlyMean averages metric per Year across the whole dataset.
func YearlyMean(store *engine.ColumnStore, metric, as string) (*engine.Result, error) {
	return store.Query(engine.Query{
		Keys:       []engine.Key{engine.Year},
		Aggregates: []engine.Aggregate{engine.AvgOf(as, metric)},
		OrderBy:    []engine.Order{{Column: engine.ColYear}},
	})
}

// GroupTotals sums metric per key, largest first, with no limit.
func GroupTotals(store *engine.ColumnStore, metric string, key engine.Key, as string) (*engine.Result, error) {
	return store.Query(engine.Query{
		Keys:       []engine.Key{key},
		Aggregates: []engine.Aggregate{engine.SumOf(as, metric)},
		OrderBy:    []engine.Order{{Column: as, Desc: true}},
	})
}

// CorrelationMatrix returns the pairwise Pearson correlation of metrics,
// using the rows where both values are present. The matrix is symmetric;
// the diagonal is 1 for columns with non-zero variance and null otherwise.
func CorrelationMatrix(store *engine.ColumnStore, metrics ...string) (*engine.Result, error) {
	cols := []engine.Column{{Name: "metric", Kind: engine.KindString}}
	for _, m := range metrics {
		cols = append(cols, engine.Column{Name: m, Kind: engine.KindFloat})
	}
	out := engine.NewResult(cols...)

	data, err := store.Query(engine.Query{Select: metrics})
	if err != nil {
		return nil, err
	}
	if data.Len() == 0 {
		return out, nil
	}

	matrix := make([][]any, len(metrics))
	for i := range matrix {
		matrix[i] = make([]any, len(metrics))
	}
	for i := range metrics {
		for j := i; j < len(metrics); j++ {
			x, y := pairwise(data, i, j)
			var r any
			switch {
			case i == j:
				if len(x) >= 2 && stat.Variance(x, nil) > 0 {
					r = 1.0
				}
			case len(x) >= 2:
				c := stat.Correlation(x, y, nil)
				if !math.IsNaN(c) {
					r = math.Max(-1, math.Min(1, c))
				}
			}
			matrix[i][j], matrix[j][i] = r, r
		}
	}

	for i, m := range metrics {
		row := append([]any{m}, matrix[i]...)
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func pairwise(data *engine.Result, i, j int) (x, y []float64) {
	for _, row := range data.Rows {
		a, aok := row[i].(float64)
		b, bok := row[j].(float64)
		if aok && bok {
			x = append(x, a)
			y = append(y, b)
		}
	}
	return x, y
}
