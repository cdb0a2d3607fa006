package models

// Display is how a catalog result is meant to be rendered.
type Display string

const (
	DisplayTable     Display = "table"
	DisplayLineChart Display = "line_chart"
)

// ChartSpec maps result columns onto a line chart.
// Each Y column becomes one series per distinct Series value.
type ChartSpec struct {
	X      string   `json:"x"`
	Y      []string `json:"y"`
	Series string   `json:"series,omitempty"`
	YLabel string   `json:"y_label,omitempty"`
}

type Series struct {
	Name   string  `json:"name"`
	Color  string  `json:"color,omitempty"`
	Points []Point `json:"points"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type QuerySummary struct {
	ID       int     `json:"id"`
	Slug     string  `json:"slug"`
	Title    string  `json:"title"`
	Display  Display `json:"display"`
	RowCount int     `json:"row_count"`
	Error    string  `json:"error,omitempty"`
	Warning  string  `json:"warning,omitempty"`
}

type ColumnInfo struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type QueryPayload struct {
	QuerySummary
	Columns []ColumnInfo `json:"columns"`
	Data    [][]any      `json:"data"`
	Chart   *ChartData   `json:"chart,omitempty"`
}

type ChartData struct {
	Spec   ChartSpec `json:"spec"`
	Series []Series  `json:"series"`
}
