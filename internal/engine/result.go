package engine

// Kind is the scalar type of a result column.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "string"
	}
}

// Column describes one output column.
type Column struct {
	Name string
	Kind Kind
}

// Result is an ordered table. Cells hold int64, float64, string or nil.
type Result struct {
	Columns []Column
	Rows    [][]any
}

func emptyResult(cols []Column) *Result {
	return &Result{Columns: cols, Rows: [][]any{}}
}

// Len returns the row count.
func (r *Result) Len() int { return len(r.Rows) }

// Names returns the column names in order.
func (r *Result) Names() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the position of name, or -1.
func (r *Result) ColumnIndex(name string) int {
	for i, c := range r.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Float returns a numeric cell; ok is false for null or non-numeric cells.
func (r *Result) Float(row int, col string) (float64, bool) {
	idx := r.ColumnIndex(col)
	if idx < 0 {
		return 0, false
	}
	switch v := r.Rows[row][idx].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Text returns a string cell, or "" when the cell is not a string.
func (r *Result) Text(row int, col string) string {
	idx := r.ColumnIndex(col)
	if idx < 0 {
		return ""
	}
	s, _ := r.Rows[row][idx].(string)
	return s
}

// OrderBy sorts rows in place by order. Ties break on the first tieKeys
// columns ascending, then on current position.
func (r *Result) OrderBy(order []Order, tieKeys int) {
	rows := make([]outRow, len(r.Rows))
	for i, vals := range r.Rows {
		rows[i] = outRow{vals: vals, first: i}
	}
	sortRows(rows, r.Columns, order, tieKeys)
	for i := range rows {
		r.Rows[i] = rows[i].vals
	}
}

// Limit keeps at most n rows. n <= 0 keeps all.
func (r *Result) Limit(n int) {
	if n > 0 && len(r.Rows) > n {
		r.Rows = r.Rows[:n]
	}
}

// NewResult returns an empty result with the given schema.
func NewResult(cols ...Column) *Result {
	return emptyResult(cols)
}
