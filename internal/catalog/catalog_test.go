package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"agridash/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allMetrics = []string{
	RiceArea, RiceProduction, RiceYield,
	WheatArea, WheatProduction, WheatYield,
	MaizeArea, MaizeProduction, MaizeYield,
	OilseedsArea, OilseedsProduction,
	CottonProduction, GroundnutProduction,
}

// fixture builds 4 states x 2 districts x 2015..2020 with distinct,
// tie-free values.
func fixture(t *testing.T, metrics []string) *engine.ColumnStore {
	t.Helper()
	var records []engine.Record
	for s := 1; s <= 4; s++ {
		for d := 1; d <= 2; d++ {
			for y := 2015; y <= 2020; y++ {
				m := make(map[string]float64)
				for i, name := range metrics {
					m[name] = float64(s*1000+d*100+(y-2015)*(s+d)) + float64(i)/10
				}
				records = append(records, engine.Record{
					Year:     y,
					State:    fmt.Sprintf("S%d", s),
					District: fmt.Sprintf("S%d-D%d", s, d),
					Metrics:  m,
				})
			}
		}
	}
	return engine.NewColumnStore(metrics, records)
}

func distinct(res *engine.Result, col string) map[string]bool {
	out := make(map[string]bool)
	for i := range res.Rows {
		out[res.Text(i, col)] = true
	}
	return out
}

func TestTopKTrendTwoRecordScenario(t *testing.T) {
	store := engine.NewColumnStore([]string{RiceProduction}, []engine.Record{
		{Year: 2019, State: "A", District: "D1", Metrics: map[string]float64{RiceProduction: 10}},
		{Year: 2020, State: "A", District: "D1", Metrics: map[string]float64{RiceProduction: 20}},
	})

	res, err := TopKTrend(store, 3, Measure{Metric: RiceProduction, As: "total_production"})
	require.NoError(t, err)

	assert.Equal(t, []string{engine.ColYear, engine.ColState, "total_production"}, res.Names())
	assert.Equal(t, [][]any{
		{int64(2019), "A", 10.0},
		{int64(2020), "A", 20.0},
	}, res.Rows)
}

func TestTopKTrendBoundedAndMonotonic(t *testing.T) {
	store := fixture(t, allMetrics)

	prev := -1
	for k := 6; k >= 0; k-- {
		res, err := TopKTrend(store, k, Measure{Metric: CottonProduction, As: "total_production"})
		require.NoError(t, err)

		n := len(distinct(res, engine.ColState))
		assert.LessOrEqual(t, n, k, "k=%d", k)
		if prev >= 0 {
			assert.LessOrEqual(t, n, prev, "k=%d", k)
		}
		prev = n
	}
}

func TestTopKTrendPicksLargestStatesOrderedByYear(t *testing.T) {
	store := fixture(t, allMetrics)

	res, err := TopKTrend(store, 2, Measure{Metric: RiceProduction, As: "total_production"})
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{"S4": true, "S3": true}, distinct(res, engine.ColState))
	require.Equal(t, 12, res.Len())
	for i := 1; i < res.Len(); i++ {
		prevYear, _ := res.Float(i-1, engine.ColYear)
		year, _ := res.Float(i, engine.ColYear)
		assert.LessOrEqual(t, prevYear, year)
		if prevYear == year {
			assert.Less(t, res.Text(i-1, engine.ColState), res.Text(i, engine.ColState))
		}
	}
}

func TestTopKTrendTieBreaksOnStateName(t *testing.T) {
	store := engine.NewColumnStore([]string{RiceProduction}, []engine.Record{
		{Year: 2020, State: "Zeta", District: "Z1", Metrics: map[string]float64{RiceProduction: 5}},
		{Year: 2020, State: "Alpha", District: "A1", Metrics: map[string]float64{RiceProduction: 5}},
		{Year: 2020, State: "Mid", District: "M1", Metrics: map[string]float64{RiceProduction: 5}},
	})

	res, err := TopKTrend(store, 2, Measure{Metric: RiceProduction, As: "total_production"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"Alpha": true, "Mid": true}, distinct(res, engine.ColState))
}

func TestTopKTrendCompositeRanking(t *testing.T) {
	// Rice alone favours R; rice + wheat favours W.
	store := engine.NewColumnStore([]string{RiceProduction, WheatProduction}, []engine.Record{
		{Year: 2019, State: "R", District: "R1", Metrics: map[string]float64{RiceProduction: 100, WheatProduction: 1}},
		{Year: 2019, State: "W", District: "W1", Metrics: map[string]float64{RiceProduction: 50, WheatProduction: 90}},
		{Year: 2020, State: "W", District: "W1", Metrics: map[string]float64{RiceProduction: 10, WheatProduction: 20}},
	})

	res, err := TopKTrend(store, 1,
		Measure{Metric: RiceProduction, As: "rice_production"},
		Measure{Metric: WheatProduction, As: "wheat_production"},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{engine.ColYear, engine.ColState, "rice_production", "wheat_production"}, res.Names())
	assert.Equal(t, [][]any{
		{int64(2019), "W", 50.0, 90.0},
		{int64(2020), "W", 10.0, 20.0},
	}, res.Rows)
}

func TestWindowDeltaUsesRecentYearsOnly(t *testing.T) {
	rec := func(y int, d string, v float64) engine.Record {
		return engine.Record{Year: y, State: "S", District: d, Metrics: map[string]float64{WheatYield: v}}
	}
	store := engine.NewColumnStore([]string{WheatYield}, []engine.Record{
		rec(2010, "Old", 0), // outside the window
		rec(2016, "Old", 90),
		rec(2020, "Old", 100),
		rec(2016, "New", 10),
		rec(2018, "New", 70),
		rec(2020, "New", 40),
		rec(2019, "Flat", 5),
	})

	res, err := WindowDelta(store, engine.Avg, WheatYield, engine.District, 5, 5, "yield_increase")
	require.NoError(t, err)

	assert.Equal(t, []string{engine.ColDistrict, "yield_increase"}, res.Names())
	assert.Equal(t, [][]any{
		{"New", 60.0},
		{"Old", 10.0},
		{"Flat", 0.0},
	}, res.Rows)
}

func TestWindowDeltaSumPerYear(t *testing.T) {
	store := engine.NewColumnStore([]string{OilseedsProduction}, []engine.Record{
		{Year: 2019, State: "A", District: "A1", Metrics: map[string]float64{OilseedsProduction: 1}},
		{Year: 2019, State: "A", District: "A2", Metrics: map[string]float64{OilseedsProduction: 2}},
		{Year: 2020, State: "A", District: "A1", Metrics: map[string]float64{OilseedsProduction: 10}},
		{Year: 2020, State: "B", District: "B1", Metrics: map[string]float64{}},
	})

	res, err := WindowDelta(store, engine.Sum, OilseedsProduction, engine.State, 5, 5, "growth")
	require.NoError(t, err)

	// A: 10 - 3; B has no values at all, so its delta is null and sorts last.
	assert.Equal(t, [][]any{{"A", 7.0}, {"B", nil}}, res.Rows)
}

func TestWindowDeltaBounded(t *testing.T) {
	store := fixture(t, allMetrics)
	prev := -1
	for k := 5; k >= 0; k-- {
		res, err := WindowDelta(store, engine.Avg, WheatYield, engine.District, 5, k, "yield_increase")
		require.NoError(t, err)
		assert.LessOrEqual(t, res.Len(), k)
		if prev >= 0 {
			assert.LessOrEqual(t, res.Len(), prev)
		}
		prev = res.Len()
	}
}

func TestWindowDeltaByYearKeepsIntKeys(t *testing.T) {
	store := fixture(t, allMetrics)

	res, err := WindowDelta(store, engine.Sum, RiceProduction, engine.Year, 3, 5, "spread")
	require.NoError(t, err)

	assert.Equal(t, engine.KindInt, res.Columns[0].Kind)
	assert.Equal(t, [][]any{
		{int64(2018), 0.0},
		{int64(2019), 0.0},
		{int64(2020), 0.0},
	}, res.Rows)
}

func TestPointInTimeTopN(t *testing.T) {
	store := fixture(t, allMetrics)

	res, err := PointInTimeTopN(store, GroundnutProduction, 2020, 3)
	require.NoError(t, err)

	assert.Equal(t, []string{engine.ColDistrict, engine.ColState, GroundnutProduction}, res.Names())
	require.Equal(t, 3, res.Len())
	assert.Equal(t, "S4-D2", res.Text(0, engine.ColDistrict))
	for i := 1; i < res.Len(); i++ {
		a, _ := res.Float(i-1, GroundnutProduction)
		b, _ := res.Float(i, GroundnutProduction)
		assert.GreaterOrEqual(t, a, b)
	}

	none, err := PointInTimeTopN(store, GroundnutProduction, 1999, 3)
	require.NoError(t, err)
	assert.Zero(t, none.Len())
}

func TestPointInTimeTopNBounded(t *testing.T) {
	store := fixture(t, allMetrics)
	prev := -1
	for n := 6; n >= 0; n-- {
		res, err := PointInTimeTopN(store, GroundnutProduction, 2020, n)
		require.NoError(t, err)
		assert.LessOrEqual(t, res.Len(), n)
		if prev >= 0 {
			assert.LessOrEqual(t, res.Len(), prev)
		}
		prev = res.Len()
	}
}

func TestMaxPerGroupTopNBounded(t *testing.T) {
	store := fixture(t, allMetrics)
	prev := -1
	for n := 6; n >= 0; n-- {
		res, err := MaxPerGroupTopN(store, RiceYield, n, "max_yield")
		require.NoError(t, err)
		assert.LessOrEqual(t, res.Len(), n)
		if prev >= 0 {
			assert.LessOrEqual(t, res.Len(), prev)
		}
		prev = res.Len()
	}
}

func TestMaxPerGroupKeepsSameNamedDistrictsApart(t *testing.T) {
	store := engine.NewColumnStore([]string{RiceYield}, []engine.Record{
		{Year: 2019, State: "A", District: "Aurangabad", Metrics: map[string]float64{RiceYield: 900}},
		{Year: 2020, State: "A", District: "Aurangabad", Metrics: map[string]float64{RiceYield: 1200}},
		{Year: 2019, State: "B", District: "Aurangabad", Metrics: map[string]float64{RiceYield: 1500}},
	})

	res, err := MaxPerGroupTopN(store, RiceYield, 5, "max_yield")
	require.NoError(t, err)

	assert.Equal(t, [][]any{
		{"Aurangabad", "B", 1500.0},
		{"Aurangabad", "A", 1200.0},
	}, res.Rows)
}

func TestYearlyMeanSingleRow(t *testing.T) {
	store := engine.NewColumnStore([]string{MaizeYield}, []engine.Record{
		{Year: 2001, State: "A", District: "D", Metrics: map[string]float64{MaizeYield: 1234.567}},
	})

	res, err := YearlyMean(store, MaizeYield, "avg_yield")
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(2001), 1234.567}}, res.Rows)
}

func TestGroupTotalsCoverWholeDataset(t *testing.T) {
	store := fixture(t, allMetrics)

	res, err := GroupTotals(store, OilseedsArea, engine.State, "total_area")
	require.NoError(t, err)
	require.Equal(t, 4, res.Len())

	var fromStates, total float64
	for i := range res.Rows {
		v, _ := res.Float(i, "total_area")
		fromStates += v
	}
	for i := 0; i < store.Len(); i++ {
		total += store.Record(i).Metrics[OilseedsArea]
	}
	assert.InDelta(t, total, fromStates, 1e-6)
	assert.Equal(t, "S4", res.Text(0, engine.ColState))
}

func TestCorrelationMatrix(t *testing.T) {
	x, y, z, c := "X AREA (1000 ha)", "X PRODUCTION (1000 tons)", "Z AREA (1000 ha)", "C AREA (1000 ha)"
	var records []engine.Record
	for i := 1; i <= 6; i++ {
		v := float64(i)
		m := map[string]float64{x: v, y: 2*v + 1, z: -v * v, c: 3}
		records = append(records, engine.Record{Year: 2000 + i, State: "S", District: "D", Metrics: m})
	}
	store := engine.NewColumnStore([]string{x, y, z, c}, records)

	res, err := CorrelationMatrix(store, x, y, z, c)
	require.NoError(t, err)
	require.Equal(t, 4, res.Len())
	assert.Equal(t, []string{"metric", x, y, z, c}, res.Names())

	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			assert.Equal(t, res.Rows[i][j+1], res.Rows[j][i+1], "asymmetric at %d,%d", i, j)
		}
	}
	for i := 0; i < 3; i++ {
		assert.Equal(t, 1.0, res.Rows[i][i+1])
	}
	assert.Nil(t, res.Rows[3][4], "zero-variance diagonal")
	assert.Nil(t, res.Rows[0][4], "correlation with a constant")

	xy, _ := res.Float(0, y)
	assert.InDelta(t, 1.0, xy, 1e-12)
	xz, _ := res.Float(0, z)
	assert.Less(t, xz, -0.9)
	assert.GreaterOrEqual(t, xz, -1.0)
}

func TestCorrelationMatrixPairwiseComplete(t *testing.T) {
	a, b := "A AREA (1000 ha)", "B AREA (1000 ha)"
	store := engine.NewColumnStore([]string{a, b}, []engine.Record{
		{Year: 1, State: "S", District: "D", Metrics: map[string]float64{a: 1, b: 10}},
		{Year: 2, State: "S", District: "D", Metrics: map[string]float64{a: 2, b: 20}},
		{Year: 3, State: "S", District: "D", Metrics: map[string]float64{a: 3}},
		{Year: 4, State: "S", District: "D", Metrics: map[string]float64{a: 4, b: 40}},
	})

	res, err := CorrelationMatrix(store, a, b)
	require.NoError(t, err)
	ab, ok := res.Float(0, b)
	require.True(t, ok)
	assert.InDelta(t, 1.0, ab, 1e-12)
}

func TestEntriesOnEmptyStore(t *testing.T) {
	store := engine.NewColumnStore(allMetrics, nil)

	for _, o := range Run(context.Background(), store, Entries()) {
		require.NoError(t, o.Err, "entry %d", o.Entry.ID)
		assert.Zero(t, o.Result.Len(), "entry %d", o.Entry.ID)
		assert.ErrorIs(t, o.Warning, engine.ErrEmptyResult, "entry %d", o.Entry.ID)
	}
}

func TestUnknownMetricIsolatedToEntry(t *testing.T) {
	var metrics []string
	for _, m := range allMetrics {
		if m != CottonProduction {
			metrics = append(metrics, m)
		}
	}
	store := fixture(t, metrics)

	outcomes := Run(context.Background(), store, Entries())
	require.Len(t, outcomes, 10)
	for _, o := range outcomes {
		if o.Entry.ID == 5 {
			var ume *engine.UnknownMetricError
			require.True(t, errors.As(o.Err, &ume))
			assert.Equal(t, CottonProduction, ume.Column)
			continue
		}
		assert.NoError(t, o.Err, "entry %d", o.Entry.ID)
		assert.NotNil(t, o.Result, "entry %d", o.Entry.ID)
	}
}

func TestEntriesIdempotentAndOrderIndependent(t *testing.T) {
	store := fixture(t, allMetrics)
	entries := Entries()

	first := Run(context.Background(), store, entries)
	second := Run(context.Background(), store, entries)
	for i := range entries {
		require.NoError(t, first[i].Err)
		assert.Equal(t, first[i].Result, second[i].Result, "entry %d", entries[i].ID)

		// Sequential, reverse-order evaluation matches the concurrent run.
		j := len(entries) - 1 - i
		seq := Evaluate(store, entries[j])
		assert.Equal(t, first[j].Result, seq.Result, "entry %d", entries[j].ID)
	}
}

func TestEntriesShape(t *testing.T) {
	entries := Entries()
	require.Len(t, entries, 10)
	for i, e := range entries {
		assert.Equal(t, i+1, e.ID)
		assert.NotEmpty(t, e.Slug)
		if e.Chart != nil {
			assert.Equal(t, "line_chart", string(e.Display))
		}
	}

	e, ok := Lookup(10)
	require.True(t, ok)
	require.NotNil(t, e.Chart)

	res, err := e.Run(fixture(t, allMetrics))
	require.NoError(t, err)
	for _, y := range e.Chart.Y {
		assert.GreaterOrEqual(t, res.ColumnIndex(y), 0, "chart column %s missing from own result", y)
	}

	_, ok = Lookup(11)
	assert.False(t, ok)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, o := range Run(ctx, fixture(t, allMetrics), Entries()) {
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
}
