package web

import (
	"bytes"
	"database/sql"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hpungsan/uartscope/internal/config"
	"github.com/hpungsan/uartscope/internal/errors"
	"github.com/hpungsan/uartscope/internal/export"
	"github.com/hpungsan/uartscope/internal/ops"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	renderer *Renderer
}

// HandleList handles GET /runs: list stored decode runs, newest first.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	result, err := ops.ListRuns(r.Context(), h.db, ops.ListRunsInput{
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, r, "list", ListPageData{
		PageData: PageData{
			Title:   "Runs",
			Version: h.renderer.version,
			Nav:     "runs",
		},
		Items:      result.Items,
		Pagination: result.Pagination,
	})
}

// HandleDetail handles GET /runs/{id}: run statistics and one page of symbols.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	result, err := ops.FetchRun(r.Context(), h.db, ops.FetchRunInput{
		ID:     r.PathValue("id"),
		Limit:  parseIntParam(r, "limit", ops.DefaultSymbolLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, r, "detail", DetailPageData{
		PageData: PageData{
			Title:   "Run " + result.Run.ID,
			Version: h.renderer.version,
			Nav:     "runs",
		},
		Run:        result.Run,
		Symbols:    result.Symbols,
		Pagination: result.Pagination,
		Warning:    export.LowConfidenceWarning(result.Run.Baud),
		Formats:    export.Formats,
	})
}

// HandleExport returns the handler for GET /runs/{id}/export.<format>, which
// streams the full run as a download.
func (h *Handlers) HandleExport(format export.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := ops.LoadReport(r.Context(), h.db, r.PathValue("id"))
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}

		// Render fully before writing headers so failures still get an error page
		var buf bytes.Buffer
		if err := export.Write(&buf, format, report); err != nil {
			h.renderer.renderError(w, r, errors.NewInternal(err))
			return
		}

		filename := ops.SanitizeForFilename(report.RunID) + format.Extension()
		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

// HandleDelete handles DELETE /runs/{id}: permanently delete a run.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	result, err := ops.DeleteRun(r.Context(), h.db, ops.DeleteRunInput{ID: r.PathValue("id")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	// HTMX request: redirect via HX-Redirect header
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/runs")
		w.WriteHeader(http.StatusOK)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	http.Redirect(w, r, "/runs", http.StatusSeeOther)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
