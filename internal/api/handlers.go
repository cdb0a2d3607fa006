package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"agridash/internal/catalog"
	"agridash/internal/models"
	"agridash/internal/render"

	"github.com/labstack/echo/v4"
)

const (
	mimeCSV   = "text/csv; charset=utf-8"
	mimeArrow = "application/vnd.apache.arrow.stream"
	mimeXLSX  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Handler struct {
	data atomic.Pointer[Dashboard]
}

// NewHandler accepts nil data; the API answers 503 until SetData is called.
func NewHandler(data *Dashboard) *Handler {
	h := &Handler{}
	if data != nil {
		h.data.Store(data)
	}
	return h
}

// SetData swaps in a fully computed dashboard.
func (h *Handler) SetData(data *Dashboard) {
	h.data.Store(data)
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api")
	api.GET("/health", h.Health)

	api.GET("/queries", h.ListQueries, h.requireData)
	api.GET("/queries/:id", h.GetQuery, h.requireData)
	api.GET("/queries/:id/chart", h.GetChart, h.requireData)
	api.GET("/export.xlsx", h.ExportWorkbook, h.requireData)
}

func (h *Handler) requireData(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.data.Load() == nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "dataset is loading")
		}
		return next(c)
	}
}

// --- HANDLERS ---
func getPaginationParams(c echo.Context, defaultLimit int) (int, int) {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (h *Handler) Health(c echo.Context) error {
	if h.data.Load() == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "loading"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ListQueries returns entry summaries, paginated.
func (h *Handler) ListQueries(c echo.Context) error {
	d := h.data.Load()
	total := len(d.Outcomes)
	limit, offset := getPaginationParams(c, total)

	page := []models.QuerySummary{}
	if offset < total {
		end := offset + min(limit, total-offset)
		for _, o := range d.Outcomes[offset:end] {
			page = append(page, summary(o))
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":   page,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetQuery returns one result as json (default), csv or arrow.
func (h *Handler) GetQuery(c echo.Context) error {
	d := h.data.Load()
	o, err := h.lookup(c, d)
	if err != nil {
		return err
	}
	id := o.Entry.ID

	switch c.QueryParam("format") {
	case "", "json":
		etag := d.etags[id]
		c.Response().Header().Set("Cache-Control", "no-cache")
		c.Response().Header().Set("ETag", etag)
		if c.Request().Header.Get("If-None-Match") == etag {
			return c.NoContent(http.StatusNotModified)
		}
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, d.payloads[id])

	case "csv":
		var buf bytes.Buffer
		if err := render.NewCSVFormatter(&buf).Format(o.Result); err != nil {
			return err
		}
		attachment(c, o.Entry.Slug+".csv")
		return c.Blob(http.StatusOK, mimeCSV, buf.Bytes())

	case "arrow":
		var buf bytes.Buffer
		if err := render.WriteArrow(&buf, o.Result); err != nil {
			return err
		}
		attachment(c, o.Entry.Slug+".arrow")
		return c.Blob(http.StatusOK, mimeArrow, buf.Bytes())

	default:
		return echo.NewHTTPError(http.StatusBadRequest, "format must be json, csv or arrow")
	}
}

// GetChart renders a line chart entry as png (default) or svg.
func (h *Handler) GetChart(c echo.Context) error {
	d := h.data.Load()
	o, err := h.lookup(c, d)
	if err != nil {
		return err
	}
	if o.Entry.Chart == nil {
		return echo.NewHTTPError(http.StatusNotFound, "entry has no chart")
	}

	format := c.QueryParam("format")
	if format == "" {
		format = "png"
	}
	mime := map[string]string{"png": "image/png", "svg": "image/svg+xml"}[format]
	if mime == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "format must be png or svg")
	}

	var buf bytes.Buffer
	err = render.LineChart(&buf, d.series[o.Entry.ID], render.ChartOptions{
		Title:  o.Entry.Title,
		XLabel: o.Entry.Chart.X,
		YLabel: o.Entry.Chart.YLabel,
		Width:  d.chartWidth,
		Height: d.chartHeight,
		Format: format,
	})
	switch {
	case errors.Is(err, render.ErrNoData):
		return c.NoContent(http.StatusNoContent)
	case err != nil:
		return err
	}
	return c.Blob(http.StatusOK, mime, buf.Bytes())
}

// ExportWorkbook streams every outcome as an xlsx workbook.
func (h *Handler) ExportWorkbook(c echo.Context) error {
	var buf bytes.Buffer
	if err := render.WriteWorkbook(&buf, h.data.Load().Outcomes); err != nil {
		return err
	}
	attachment(c, "agridash.xlsx")
	return c.Blob(http.StatusOK, mimeXLSX, buf.Bytes())
}

// lookup resolves :id, mapping unknown ids to 404 and failed entries to 422.
func (h *Handler) lookup(c echo.Context, d *Dashboard) (catalog.Outcome, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return catalog.Outcome{}, echo.NewHTTPError(http.StatusBadRequest, "id must be an integer")
	}
	o, ok := d.outcome(id)
	if !ok {
		return catalog.Outcome{}, echo.NewHTTPError(http.StatusNotFound, "unknown query id")
	}
	if !o.OK() {
		return catalog.Outcome{}, echo.NewHTTPError(http.StatusUnprocessableEntity, o.Err.Error()).SetInternal(o.Err)
	}
	return o, nil
}

func attachment(c echo.Context, filename string) {
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
}
