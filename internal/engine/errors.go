package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyResult marks a query that legitimately produced no rows.
// It is a warning for the display layer, never a failure.
var ErrEmptyResult = errors.New("query returned no rows")

// IngestError reports malformed or incomplete source data.
type IngestError struct {
	Path    string
	Line    int // 1-based, 0 when not tied to a line
	Column  string
	Missing []string
	Reason  string
}

func (e *IngestError) Error() string {
	var b strings.Builder
	b.WriteString("ingest")
	if e.Path != "" {
		fmt.Fprintf(&b, " %s", e.Path)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " line %d", e.Line)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " column %q", e.Column)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing required columns %q", e.Missing)
		return b.String()
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// UnknownMetricError reports a query referencing a column absent from the schema.
type UnknownMetricError struct {
	Column string
}

func (e *UnknownMetricError) Error() string {
	return fmt.Sprintf("unknown metric column %q", e.Column)
}
