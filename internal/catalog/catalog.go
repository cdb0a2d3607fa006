// Package catalog holds the fixed set of dashboard queries.
//
// Every entry is a pure function of the dataset store. Entries are built
// from four aggregation patterns:
//
//   - TopKTrend: rank states by a total, keep the top K, trend them by year.
//   - WindowDelta: score groups by max-min over the most recent years.
//   - PointInTimeTopN / MaxPerGroupTopN: rank districts in one year or across all years.
//   - YearlyMean, GroupTotals, CorrelationMatrix: whole-population aggregates.
package catalog

import (
	"agridash/internal/engine"
	"agridash/internal/models"
)

// Metric columns referenced by the catalog.
const (
	RiceArea       = "RICE AREA (1000 ha)"
	RiceProduction = "RICE PRODUCTION (1000 tons)"
	RiceYield      = "RICE YIELD (Kg per ha)"

	WheatArea       = "WHEAT AREA (1000 ha)"
	WheatProduction = "WHEAT PRODUCTION (1000 tons)"
	WheatYield      = "WHEAT YIELD (Kg per ha)"

	MaizeArea       = "MAIZE AREA (1000 ha)"
	MaizeProduction = "MAIZE PRODUCTION (1000 tons)"
	MaizeYield      = "MAIZE YIELD (Kg per ha)"

	OilseedsArea       = "OILSEEDS AREA (1000 ha)"
	OilseedsProduction = "OILSEEDS PRODUCTION (1000 tons)"

	CottonProduction    = "COTTON PRODUCTION (1000 tons)"
	GroundnutProduction = "GROUNDNUT PRODUCTION (1000 tons)"
)

const (
	recentWindow  = 5
	groundnutYear = 2020
)

// Entry is one catalog query.
type Entry struct {
	ID      int
	Slug    string
	Title   string
	Display models.Display
	Chart   *models.ChartSpec
	Run     func(*engine.ColumnStore) (*engine.Result, error)
}

// Entries returns the ten catalog entries in display order.
func Entries() []Entry {
	return []Entry{
		{
			ID:      1,
			Slug:    "rice-production-top-states",
			Title:   "Year-wise Trend of Rice Production Across Top 3 States",
			Display: models.DisplayLineChart,
			Chart:   trendChart("total_production"),
			Run: func(s *engine.ColumnStore) (*engine.Result, error) {
				return TopKTrend(s, 3, Measure{Metric: RiceProduction, As: "total_production"})
			},
		},
		{
			ID:      2,
			Slug:    "wheat-yield-increase",
			Title:   "Top 5 Districts by Wheat Yield Increase Over the Last 5 Years",
			Display: models.DisplayTable,
			Run: func(s *engine.ColumnStore) (*engine.Result, error) {
				return WindowDelta(s, engine.Avg, WheatYield, engine.District, recentWindow, 5, "yield_increase")
			},
		},
		{
			ID:      3,
			Slug:    "oilseed-growth",
			Title:   "States with Highest Growth in Oilseed Production (5-Year Growth Rate)",
			Display: models.DisplayTable,
			Run: func(s *engine.ColumnStore) (*engine.Result, error) {
				return WindowDelta(s, engine.Sum, OilseedsProduction, engine.State, recentWindow, 5, "growth")
			},
		},
		{
			ID:      4,
			Slug:    "area-production-correlation",
			Title:   "Correlation Between Area and Production (Rice, Wheat, Maize)",
			Display: models.DisplayTable,
			Run: func(s *engine.ColumnStore) (*engine.Result, error) {
				return CorrelationMatrix(s,
					RiceArea, RiceProduction,
					WheatArea, WheatProduction,
					MaizeArea, MaizeProduction,
				)
			},
		},
		{
			ID:      5,
			Slug:    "cotton-production-top-states",
			Title:   "Yearly Production Growth of Cotton in Top 5 Producing States",
			Display: models.DisplayLineChart,
			Chart:   trendChart("total_production"),
			Run: func(s *engine.ColumnStore) (*engine.Result, error) {
				return TopKTrend(s, 5, Measure{Metric: CottonProduction, As: "total_production"})
			},
		},
		{
			ID:      6,
			Slug:    "groundnut-districts-2020",
			Title:   "Districts with Highest Groundnut Production in 2020",
			Display: models.DisplayTable,
			Run: func(s *engine.ColumnStore) (*engine.Result, error) {
				return PointInTimeTopN(s, GroundnutProduction, groundnutYear, 5)
			},
		},
		{
			ID:      7,
			Slug:    "maize-yield-annual-average",
			Title:   "Annual Average Maize Yield Across All States",
			Display: models.DisplayLineChart,
			Chart:   &models.ChartSpec{X: engine.ColYear, Y: []string{"avg_yield"}, YLabel: "avg_yield"},
			Run: func(s *engine.ColumnStore) (*engine.Result, error) {
				return YearlyMean(s, MaizeYield, "avg_yield")
			},
		},
		{
			ID:      8,
			Slug:    "oilseed-area-by-state",
			Title:   "Total Area Cultivated for Oilseeds in Each State",
			Display: models.DisplayTable,
			Run: func(s *engine.ColumnStore) (*engine.Result, error) {
				return GroupTotals(s, OilseedsArea, engine.State, "total_area")
			},
		},
		{
			ID:      9,
			Slug:    "rice-yield-districts",
			Title:   "Districts with Highest Rice Yield",
			Display: models.DisplayTable,
			Run: func(s *engine.ColumnStore) (*engine.Result, error) {
				return MaxPerGroupTopN(s, RiceYield, 5, "max_yield")
			},
		},
		{
			ID:      10,
			Slug:    "rice-wheat-top-states",
			Title:   "Compare Wheat and Rice Production for Top 5 States Over 10 Years",
			Display: models.DisplayLineChart,
			Chart: &models.ChartSpec{
				X:      engine.ColYear,
				Y:      []string{"rice_production", "wheat_production"},
				Series: engine.ColState,
				YLabel: "production (1000 tons)",
			},
			Run: func(s *engine.ColumnStore) (*engine.Result, error) {
				return TopKTrend(s, 5,
					Measure{Metric: RiceProduction, As: "rice_production"},
					Measure{Metric: WheatProduction, As: "wheat_production"},
				)
			},
		},
	}
}

func trendChart(y string) *models.ChartSpec {
	return &models.ChartSpec{X: engine.ColYear, Y: []string{y}, Series: engine.ColState, YLabel: y}
}

// Lookup finds an entry by ID.
func Lookup(id int) (Entry, bool) {
	for _, e := range Entries() {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}
