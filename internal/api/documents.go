package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/snarg/depo-engine/internal/metrics"
	"github.com/snarg/depo-engine/internal/oncue"
	"github.com/snarg/depo-engine/internal/transcript"
)

// DocumentHandler serves the stateless pagination, export and import routes.
type DocumentHandler struct {
	opts transcript.Options
}

func NewDocumentHandler(opts transcript.Options) *DocumentHandler {
	return &DocumentHandler{opts: opts}
}

// PaginateResponse is the body of POST /paginate.
type PaginateResponse struct {
	Lines       []transcript.LineEntry `json:"lines"`
	LastPGLN    int                    `json:"last_pgln"`
	ContentHash string                 `json:"content_hash"`
}

// ImportResponse is the body of POST /import/oncue.
type ImportResponse struct {
	Lines         []transcript.EditedLine `json:"lines"`
	Title         oncue.Title             `json:"title_data"`
	AudioDuration float64                 `json:"audio_duration"`
}

func (h *DocumentHandler) render(w http.ResponseWriter, r *http.Request, source string) (*oncue.Rendered, bool) {
	var doc oncue.Document
	if err := DecodeJSON(w, r, &doc); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return nil, false
	}
	if doc.AudioDuration < 0 {
		WriteError(w, http.StatusBadRequest, "audio_duration must be >= 0")
		return nil, false
	}
	rendered, err := oncue.Render(&doc, h.opts)
	if err != nil {
		WriteServiceError(w, r, err)
		return nil, false
	}
	metrics.ObservePagination(source, len(rendered.Pagination.Lines), rendered.TimestampErrors())
	return rendered, true
}

// Paginate handles POST /api/v1/paginate.
func (h *DocumentHandler) Paginate(w http.ResponseWriter, r *http.Request) {
	rendered, ok := h.render(w, r, "api")
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, PaginateResponse{
		Lines:       rendered.Pagination.Lines,
		LastPGLN:    rendered.Pagination.LastPGLN,
		ContentHash: rendered.ContentHash,
	})
}

// ExportOnCue handles POST /api/v1/export/oncue.
func (h *DocumentHandler) ExportOnCue(w http.ResponseWriter, r *http.Request) {
	rendered, ok := h.render(w, r, "api")
	if !ok {
		return
	}
	metrics.ExportsTotal.WithLabelValues("api").Inc()
	writeXML(w, r, rendered.XML, rendered.ETag())
}

// ImportOnCue handles POST /api/v1/import/oncue with a raw XML body.
func (h *DocumentHandler) ImportOnCue(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}
	imp, err := oncue.Parse(data)
	if err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid OnCue XML", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, ImportResponse{
		Lines:         imp.Lines,
		Title:         imp.Title,
		AudioDuration: imp.AudioDuration,
	})
}

// writeXML sends an export with its ETag, answering a matching
// If-None-Match with 304.
func writeXML(w http.ResponseWriter, r *http.Request, body []byte, tag string) {
	etag := `"` + tag + `"`
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && strings.Contains(match, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
