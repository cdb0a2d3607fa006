package render

import (
	"io"
	"strconv"

	"agridash/internal/engine"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Table renders res as an aligned text table. Floats get two decimals and
// thousands separators; nulls print as "null".
func Table(w io.Writer, res *engine.Result) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(res.Names())
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)

	aligns := make([]int, len(res.Columns))
	for i, c := range res.Columns {
		if c.Kind == engine.KindString {
			aligns[i] = tablewriter.ALIGN_LEFT
		} else {
			aligns[i] = tablewriter.ALIGN_RIGHT
		}
	}
	table.SetColumnAlignment(aligns)

	rows := make([][]string, len(res.Rows))
	for i, row := range res.Rows {
		rows[i] = make([]string, len(row))
		for j, v := range row {
			rows[i][j] = cellText(v)
		}
	}
	table.AppendBulk(rows)
	table.Render()
}

func cellText(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return printer.Sprintf("%.2f", val)
	case string:
		return val
	default:
		return printer.Sprint(val)
	}
}
