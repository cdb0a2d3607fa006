// Package sqlref re-runs catalog entries as plain SQL over an in-memory
// SQLite copy of the dataset, to cross-check the column engine.
package sqlref

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"agridash/internal/catalog"
	"agridash/internal/engine"

	_ "modernc.org/sqlite"
)

// ErrUnsupported is returned for entries with no SQL rendition.
var ErrUnsupported = errors.New("no reference query for entry")

const table = "agri_data"

// Reference holds the SQLite copy of a store.
type Reference struct {
	db *sql.DB
}

// Open copies store into a fresh in-memory database.
func Open(ctx context.Context, store *engine.ColumnStore) (*Reference, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Each connection to :memory: is its own database.
	db.SetMaxOpenConns(1)

	if err := load(ctx, db, store); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Reference{db: db}, nil
}

func (r *Reference) Close() error { return r.db.Close() }

func load(ctx context.Context, db *sql.DB, store *engine.ColumnStore) error {
	cols := []string{quote(engine.ColYear) + " INTEGER", quote(engine.ColState) + " TEXT", quote(engine.ColDistrict) + " TEXT"}
	for _, m := range store.MetricNames {
		cols = append(cols, quote(m)+" REAL")
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(cols, ", "))); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	marks := strings.TrimSuffix(strings.Repeat("?, ", 3+len(store.MetricNames)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", table, marks))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, 3+len(store.MetricNames))
	for i := 0; i < store.Len(); i++ {
		rec := store.Record(i)
		args[0], args[1], args[2] = rec.Year, rec.State, rec.District
		for j, m := range store.MetricNames {
			if v, ok := rec.Metrics[m]; ok {
				args[3+j] = v
			} else {
				args[3+j] = nil
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Query runs the reference SQL for entry id.
func (r *Reference) Query(ctx context.Context, id int) (*engine.Result, error) {
	q, ok := statements()[id]
	if !ok {
		return nil, fmt.Errorf("entry %d: %w", id, ErrUnsupported)
	}
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("entry %d: %w", id, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &engine.Result{Rows: [][]any{}}
	for _, n := range names {
		res.Columns = append(res.Columns, engine.Column{Name: n, Kind: engine.KindFloat})
	}

	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			vals[i] = normalize(v)
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for j := range res.Columns {
		res.Columns[j].Kind = inferKind(res.Rows, j)
	}
	return res, nil
}

// inferKind takes the kind of the first non-null cell in column j.
func inferKind(rows [][]any, j int) engine.Kind {
	for _, row := range rows {
		switch row[j].(type) {
		case int64:
			return engine.KindInt
		case string:
			return engine.KindString
		case float64:
			return engine.KindFloat
		}
	}
	return engine.KindFloat
}

func normalize(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case int:
		return int64(val)
	case float32:
		return float64(val)
	}
	return v
}

// Mismatch lists differences found for one entry.
type Mismatch struct {
	ID       int
	Problems []string
}

// Verify compares every successful outcome with its reference query.
// Entries without SQL are skipped.
func (r *Reference) Verify(ctx context.Context, outcomes []catalog.Outcome, tol float64) ([]Mismatch, error) {
	var out []Mismatch
	for _, o := range outcomes {
		if !o.OK() {
			continue
		}
		want, err := r.Query(ctx, o.Entry.ID)
		if errors.Is(err, ErrUnsupported) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if diffs := Diff(o.Result, want, tol); len(diffs) > 0 {
			out = append(out, Mismatch{ID: o.Entry.ID, Problems: diffs})
		}
	}
	return out, nil
}

// Diff reports column, row-count and cell differences between a and b.
// Numbers match within tol relative to their magnitude.
func Diff(a, b *engine.Result, tol float64) []string {
	var diffs []string
	an, bn := a.Names(), b.Names()
	if strings.Join(an, "\x00") != strings.Join(bn, "\x00") {
		diffs = append(diffs, fmt.Sprintf("columns %q != %q", an, bn))
		return diffs
	}
	if a.Len() != b.Len() {
		diffs = append(diffs, fmt.Sprintf("row count %d != %d", a.Len(), b.Len()))
		return diffs
	}
	for i := range a.Rows {
		for j := range an {
			if !sameCell(a.Rows[i][j], b.Rows[i][j], tol) {
				diffs = append(diffs, fmt.Sprintf("row %d %s: %v != %v", i, an[j], a.Rows[i][j], b.Rows[i][j]))
			}
		}
	}
	return diffs
}

func sameCell(x, y any, tol float64) bool {
	if x == nil || y == nil {
		return x == nil && y == nil
	}
	xf, xok := number(x)
	yf, yok := number(y)
	if xok && yok {
		scale := math.Max(1, math.Max(math.Abs(xf), math.Abs(yf)))
		return math.Abs(xf-yf) <= tol*scale
	}
	return x == y
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
