package api

import (
	"fmt"
	"log/slog"
	"slices"

	"agridash/internal/catalog"
	"agridash/internal/models"
	"agridash/internal/render"

	"github.com/goccy/go-json"
	"github.com/zeebo/xxh3"
	"gonum.org/v1/plot/vg"
)

// Dashboard is the fully computed state served by the API.
// It is immutable once built.
type Dashboard struct {
	Outcomes []catalog.Outcome

	byID     map[int]int
	series   map[int][]models.Series
	payloads map[int][]byte
	etags    map[int]string

	chartWidth  vg.Length
	chartHeight vg.Length
}

// BuildDashboard precomputes chart series, JSON payloads and ETags.
// An entry whose payload cannot be encoded is served as failed.
func BuildDashboard(outcomes []catalog.Outcome, chartWidth, chartHeight vg.Length) *Dashboard {
	d := &Dashboard{
		Outcomes:    slices.Clone(outcomes),
		byID:        make(map[int]int, len(outcomes)),
		series:      make(map[int][]models.Series),
		payloads:    make(map[int][]byte),
		etags:       make(map[int]string),
		chartWidth:  chartWidth,
		chartHeight: chartHeight,
	}

	for i := range d.Outcomes {
		o := d.Outcomes[i]
		id := o.Entry.ID
		d.byID[id] = i
		if !o.OK() {
			continue
		}

		body, series, err := encodePayload(o)
		if err != nil {
			slog.Warn("entry payload failed", "id", id, "error", err)
			d.Outcomes[i].Err = err
			continue
		}
		if series != nil {
			d.series[id] = series
		}
		d.payloads[id] = body
		d.etags[id] = fmt.Sprintf(`"%016x"`, xxh3.Hash(body))
	}
	return d
}

func encodePayload(o catalog.Outcome) ([]byte, []models.Series, error) {
	payload := Payload(o)
	var series []models.Series
	if o.Entry.Chart != nil {
		s, err := render.BuildSeries(o.Result, *o.Entry.Chart)
		if err != nil {
			return nil, nil, fmt.Errorf("chart: %w", err)
		}
		series = s
		payload.Chart = &models.ChartData{Spec: *o.Entry.Chart, Series: s}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("payload: %w", err)
	}
	return body, series, nil
}

func (d *Dashboard) outcome(id int) (catalog.Outcome, bool) {
	i, ok := d.byID[id]
	if !ok {
		return catalog.Outcome{}, false
	}
	return d.Outcomes[i], true
}

// Payload is the JSON body for one outcome, without chart data.
func Payload(o catalog.Outcome) models.QueryPayload {
	p := models.QueryPayload{QuerySummary: summary(o), Columns: []models.ColumnInfo{}, Data: [][]any{}}
	if o.Err != nil || o.Result == nil {
		return p
	}
	for _, c := range o.Result.Columns {
		p.Columns = append(p.Columns, models.ColumnInfo{Name: c.Name, Kind: c.Kind.String()})
	}
	p.Data = o.Result.Rows
	return p
}

func summary(o catalog.Outcome) models.QuerySummary {
	s := models.QuerySummary{
		ID:      o.Entry.ID,
		Slug:    o.Entry.Slug,
		Title:   o.Entry.Title,
		Display: o.Entry.Display,
	}
	switch {
	case o.Err != nil:
		s.Error = o.Err.Error()
	case o.Result != nil:
		s.RowCount = o.Result.Len()
		if o.Warning != nil {
			s.Warning = o.Warning.Error()
		}
	}
	return s
}
