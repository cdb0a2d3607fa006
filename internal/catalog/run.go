package catalog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"agridash/internal/engine"

	"golang.org/x/sync/errgroup"
)

// Outcome is the result of evaluating one entry. Err is set when the entry
// failed; Warning carries engine.ErrEmptyResult for a legitimate empty table.
type Outcome struct {
	Entry   Entry
	Result  *engine.Result
	Err     error
	Warning error
	Elapsed time.Duration
}

// OK reports whether the entry produced a result.
func (o Outcome) OK() bool { return o.Err == nil }

// Evaluate runs a single entry.
func Evaluate(store *engine.ColumnStore, e Entry) Outcome {
	start := time.Now()
	res, err := e.Run(store)
	out := Outcome{Entry: e, Result: res, Err: err, Elapsed: time.Since(start)}
	if err == nil && res.Len() == 0 {
		out.Warning = engine.ErrEmptyResult
	}
	return out
}

// Run evaluates entries concurrently and returns outcomes in entry order.
// A failing entry never stops the others.
func Run(ctx context.Context, store *engine.ColumnStore, entries []Entry) []Outcome {
	outcomes := make([]Outcome, len(entries))

	g, ctx := errgroup.WithContext(ctx)
	for i, e := range entries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i] = Outcome{Entry: e, Err: err}
				return nil
			}
			outcomes[i] = Evaluate(store, e)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		var ume *engine.UnknownMetricError
		switch {
		case errors.As(o.Err, &ume):
			slog.Warn("catalog entry failed", "id", o.Entry.ID, "missing_column", ume.Column)
		case o.Err != nil:
			slog.Warn("catalog entry failed", "id", o.Entry.ID, "error", o.Err)
		case o.Warning != nil:
			slog.Info("catalog entry empty", "id", o.Entry.ID)
		default:
			slog.Debug("catalog entry done", "id", o.Entry.ID, "rows", o.Result.Len(), "elapsed", o.Elapsed)
		}
	}
	return outcomes
}
