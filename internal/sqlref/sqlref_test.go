package sqlref

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"agridash/internal/catalog"
	"agridash/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var metrics = []string{
	catalog.RiceArea, catalog.RiceProduction, catalog.RiceYield,
	catalog.WheatArea, catalog.WheatProduction, catalog.WheatYield,
	catalog.MaizeArea, catalog.MaizeProduction, catalog.MaizeYield,
	catalog.OilseedsArea, catalog.OilseedsProduction,
	catalog.CottonProduction, catalog.GroundnutProduction,
}

// tieFree builds distinct values everywhere, plus one state with no
// oilseed data at all.
func tieFree() *engine.ColumnStore {
	var records []engine.Record
	for s := 1; s <= 6; s++ {
		for d := 1; d <= 3; d++ {
			for y := 2012; y <= 2020; y++ {
				m := make(map[string]float64)
				for i, name := range metrics {
					if s == 6 && (name == catalog.OilseedsArea || name == catalog.OilseedsProduction) {
						continue
					}
					m[name] = float64(s*s*1000+d*d*97+(y-2012)*(s*7+d*3)) + float64(i)/8
				}
				records = append(records, engine.Record{
					Year:     y,
					State:    fmt.Sprintf("State %d", s),
					District: fmt.Sprintf("District %d-%d", s, d),
					Metrics:  m,
				})
			}
		}
	}
	return engine.NewColumnStore(metrics, records)
}

func TestEngineMatchesSQL(t *testing.T) {
	ctx := context.Background()
	store := tieFree()

	ref, err := Open(ctx, store)
	require.NoError(t, err)
	defer ref.Close()

	outcomes := catalog.Run(ctx, store, catalog.Entries())
	for _, o := range outcomes {
		require.NoError(t, o.Err, "entry %d", o.Entry.ID)
	}

	mismatches, err := ref.Verify(ctx, outcomes, 1e-9)
	require.NoError(t, err)
	for _, m := range mismatches {
		t.Errorf("entry %d: %v", m.ID, m.Problems)
	}
}

func TestQueryKinds(t *testing.T) {
	ctx := context.Background()
	ref, err := Open(ctx, tieFree())
	require.NoError(t, err)
	defer ref.Close()

	res, err := ref.Query(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{engine.ColYear, engine.ColState, "total_production"}, res.Names())
	assert.Equal(t, engine.KindInt, res.Columns[0].Kind)
	assert.Equal(t, engine.KindString, res.Columns[1].Kind)
	assert.Equal(t, engine.KindFloat, res.Columns[2].Kind)

	res, err = ref.Query(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Len())

	res, err = ref.Query(ctx, 8)
	require.NoError(t, err)
	require.Equal(t, 6, res.Len())
	assert.Nil(t, res.Rows[5][1], "state without oilseed data sorts last")
}

func TestQueryUnsupported(t *testing.T) {
	ctx := context.Background()
	ref, err := Open(ctx, tieFree())
	require.NoError(t, err)
	defer ref.Close()

	_, err = ref.Query(ctx, 4)
	assert.True(t, errors.Is(err, ErrUnsupported))
	_, err = ref.Query(ctx, 42)
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestDiff(t *testing.T) {
	a := engine.NewResult(
		engine.Column{Name: "k", Kind: engine.KindString},
		engine.Column{Name: "v", Kind: engine.KindFloat},
	)
	a.Rows = [][]any{{"x", 1000.0}, {"y", nil}}

	b := engine.NewResult(a.Columns...)
	b.Rows = [][]any{{"x", 1000.0000001}, {"y", nil}}
	assert.Empty(t, Diff(a, b, 1e-9))

	b.Rows = [][]any{{"x", 1001.0}, {"y", 0.0}}
	assert.Len(t, Diff(a, b, 1e-9), 2)

	b.Rows = b.Rows[:1]
	assert.Equal(t, []string{"row count 2 != 1"}, Diff(a, b, 1e-9))

	c := engine.NewResult(engine.Column{Name: "other", Kind: engine.KindFloat})
	assert.Len(t, Diff(a, c, 1e-9), 1)
}

func TestVerifySkipsFailedEntries(t *testing.T) {
	ctx := context.Background()
	store := tieFree()
	ref, err := Open(ctx, store)
	require.NoError(t, err)
	defer ref.Close()

	e, _ := catalog.Lookup(1)
	wrong := engine.NewResult(engine.Column{Name: "Year", Kind: engine.KindInt})
	outcomes := []catalog.Outcome{
		{Entry: e, Result: wrong},
		{Entry: e, Err: errors.New("boom")},
	}

	mismatches, err := ref.Verify(ctx, outcomes, 1e-9)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, 1, mismatches[0].ID)
}
