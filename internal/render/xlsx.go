package render

import (
	"fmt"
	"io"

	"agridash/internal/catalog"
	"agridash/internal/engine"

	"github.com/xuri/excelize/v2"
)

const (
	indexSheet    = "Index"
	maxSheetChars = 31
)

// WriteWorkbook writes an index sheet plus one sheet per outcome.
// Failed entries get a sheet holding the error message.
func WriteWorkbook(w io.Writer, outcomes []catalog.Outcome) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", indexSheet); err != nil {
		return err
	}
	header := []any{"id", "title", "sheet", "rows", "status"}
	if err := setRow(f, indexSheet, 1, header); err != nil {
		return err
	}

	for i, o := range outcomes {
		sheet := SheetName(o.Entry)
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}

		status, rows := "ok", 0
		switch {
		case o.Err != nil:
			status = "error: " + o.Err.Error()
			if err := f.SetCellValue(sheet, "A1", status); err != nil {
				return err
			}
		default:
			rows = o.Result.Len()
			if o.Warning != nil {
				status = o.Warning.Error()
			}
			if err := writeResult(f, sheet, o.Result); err != nil {
				return err
			}
		}

		if err := setRow(f, indexSheet, i+2, []any{o.Entry.ID, o.Entry.Title, sheet, rows, status}); err != nil {
			return err
		}
	}

	f.SetActiveSheet(0)
	return f.Write(w)
}

// SheetName is "Q<id> <slug>" cut to the sheet name limit.
func SheetName(e catalog.Entry) string {
	name := fmt.Sprintf("Q%d %s", e.ID, e.Slug)
	if len(name) > maxSheetChars {
		name = name[:maxSheetChars]
	}
	return name
}

func writeResult(f *excelize.File, sheet string, res *engine.Result) error {
	header := make([]any, len(res.Columns))
	for i, name := range res.Names() {
		header[i] = name
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	for i, row := range res.Rows {
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

// setRow writes values from column A; nil cells stay blank.
func setRow(f *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		if v == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}
