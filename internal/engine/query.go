package engine

import "fmt"

// Key is a grouping (or projected) key column.
type Key int

const (
	Year Key = iota + 1
	State
	District
)

// ColumnName returns the output column name of the key.
func (k Key) ColumnName() string {
	switch k {
	case Year:
		return ColYear
	case State:
		return ColState
	case District:
		return ColDistrict
	default:
		return fmt.Sprintf("key(%d)", int(k))
	}
}

// Kind returns the column kind of the key: KindInt for Year, KindString otherwise.
func (k Key) Kind() Kind {
	if k == Year {
		return KindInt
	}
	return KindString
}

// Func is an aggregate function.
type Func int

const (
	Sum Func = iota + 1
	Avg
	Min
	Max
)

func (f Func) String() string {
	switch f {
	case Sum:
		return "SUM"
	case Avg:
		return "AVG"
	case Min:
		return "MIN"
	case Max:
		return "MAX"
	default:
		return fmt.Sprintf("FUNC(%d)", int(f))
	}
}

// Aggregate computes Func over the row-wise sum of Metrics, named As.
// A row where any operand is null contributes nothing.
type Aggregate struct {
	Func    Func
	Metrics []string
	As      string
}

func SumOf(as string, metrics ...string) Aggregate {
	return Aggregate{Func: Sum, Metrics: metrics, As: as}
}

func AvgOf(as string, metrics ...string) Aggregate {
	return Aggregate{Func: Avg, Metrics: metrics, As: as}
}

func MinOf(as string, metrics ...string) Aggregate {
	return Aggregate{Func: Min, Metrics: metrics, As: as}
}

func MaxOf(as string, metrics ...string) Aggregate {
	return Aggregate{Func: Max, Metrics: metrics, As: as}
}

// Predicate filters records before grouping.
type Predicate interface {
	bind(cs *ColumnStore) func(row int) bool
}

type yearPredicate struct {
	year  int32
	exact bool
}

func (p yearPredicate) bind(cs *ColumnStore) func(int) bool {
	years := cs.Years
	if p.exact {
		return func(i int) bool { return years[i] == p.year }
	}
	return func(i int) bool { return years[i] >= p.year }
}

// YearEquals keeps records of exactly year y.
func YearEquals(y int) Predicate { return yearPredicate{year: int32(y), exact: true} }

// YearAtLeast keeps records with Year >= y.
func YearAtLeast(y int) Predicate { return yearPredicate{year: int32(y)} }

type stateIn []string

func (p stateIn) bind(cs *ColumnStore) func(int) bool {
	ids := make(map[int32]bool, len(p))
	for _, name := range p {
		if id, ok := cs.stateIndex[name]; ok {
			ids[id] = true
		}
	}
	stateIDs := cs.StateIDs
	return func(i int) bool { return ids[stateIDs[i]] }
}

// StateIn keeps records whose state is one of names.
func StateIn(names ...string) Predicate { return stateIn(names) }

// Order sorts the result by an output column.
type Order struct {
	Column string
	Desc   bool
}

// Query is a declarative aggregate expression over the store.
//
// With Aggregates, Keys are the GROUP BY columns. Without them the query is
// a row-level projection of Keys followed by the Select metrics.
//
// Rows sort by OrderBy, then by the key columns ascending, then by first
// source row. Nulls sort lowest.
type Query struct {
	Keys       []Key
	Aggregates []Aggregate
	Select     []string
	Where      []Predicate
	OrderBy    []Order
	Limit      int
}

// columns returns the output schema and validates the query shape.
func (q Query) columns() ([]Column, error) {
	if len(q.Aggregates) > 0 && len(q.Select) > 0 {
		return nil, fmt.Errorf("query mixes aggregates with row-level select")
	}
	cols := make([]Column, 0, len(q.Keys)+len(q.Aggregates)+len(q.Select))
	seen := make(map[string]bool)
	add := func(name string, kind Kind) error {
		if seen[name] {
			return fmt.Errorf("duplicate output column %q", name)
		}
		seen[name] = true
		cols = append(cols, Column{Name: name, Kind: kind})
		return nil
	}
	for _, k := range q.Keys {
		if k < Year || k > District {
			return nil, fmt.Errorf("unknown key %d", int(k))
		}
		if err := add(k.ColumnName(), k.Kind()); err != nil {
			return nil, err
		}
	}
	for _, a := range q.Aggregates {
		if a.Func < Sum || a.Func > Max {
			return nil, fmt.Errorf("unknown aggregate function %d", int(a.Func))
		}
		if len(a.Metrics) == 0 {
			return nil, fmt.Errorf("%s requires an argument", a.Func)
		}
		name := a.As
		if name == "" {
			name = fmt.Sprintf("%s(%s)", a.Func, a.Metrics[0])
		}
		if err := add(name, KindFloat); err != nil {
			return nil, err
		}
	}
	for _, m := range q.Select {
		if err := add(m, KindFloat); err != nil {
			return nil, err
		}
	}
	for _, o := range q.OrderBy {
		if !seen[o.Column] {
			return nil, fmt.Errorf("ORDER BY column %q not in output", o.Column)
		}
	}
	if q.Limit < 0 {
		return nil, fmt.Errorf("negative limit %d", q.Limit)
	}
	return cols, nil
}
