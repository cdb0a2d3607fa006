// Package render turns catalog results into tables, files and charts.
package render

import (
	"fmt"
	"sort"

	"agridash/internal/engine"
	"agridash/internal/models"
)

// Default color palette for chart series.
var defaultColors = []string{
	"#4F46E5", "#10B981", "#F59E0B", "#EF4444", "#8B5CF6",
	"#06B6D4", "#EC4899", "#84CC16", "#F97316", "#6366F1",
}

// BuildSeries splits res into one line per series value and Y column.
// Rows with a null X or Y are skipped. Series come back sorted by name.
func BuildSeries(res *engine.Result, spec models.ChartSpec) ([]models.Series, error) {
	for _, name := range append([]string{spec.X}, spec.Y...) {
		if res.ColumnIndex(name) < 0 {
			return nil, fmt.Errorf("chart column %q not in result", name)
		}
	}
	if spec.Series != "" && res.ColumnIndex(spec.Series) < 0 {
		return nil, fmt.Errorf("chart column %q not in result", spec.Series)
	}

	byName := make(map[string]*models.Series)
	for i := range res.Rows {
		x, ok := res.Float(i, spec.X)
		if !ok {
			continue
		}
		group := ""
		if spec.Series != "" {
			group = res.Text(i, spec.Series)
		}
		for _, col := range spec.Y {
			y, ok := res.Float(i, col)
			if !ok {
				continue
			}
			name := seriesName(group, col, len(spec.Y))
			s, ok := byName[name]
			if !ok {
				s = &models.Series{Name: name}
				byName[name] = s
			}
			s.Points = append(s.Points, models.Point{X: x, Y: y})
		}
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]models.Series, len(names))
	for i, name := range names {
		s := byName[name]
		sort.SliceStable(s.Points, func(a, b int) bool { return s.Points[a].X < s.Points[b].X })
		s.Color = defaultColors[i%len(defaultColors)]
		out[i] = *s
	}
	return out, nil
}

func seriesName(group, col string, ycols int) string {
	switch {
	case group == "":
		return col
	case ycols == 1:
		return group
	default:
		return group + " · " + col
	}
}
