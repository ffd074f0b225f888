package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/snarg/depo-engine/internal/align"
	"github.com/snarg/depo-engine/internal/audio"
	"github.com/snarg/depo-engine/internal/database"
	"github.com/snarg/depo-engine/internal/metrics"
	"github.com/snarg/depo-engine/internal/oncue"
	"github.com/snarg/depo-engine/internal/resync"
	"github.com/snarg/depo-engine/internal/transcript"
)

// TranscriptStore is the persistence behind the transcript routes.
type TranscriptStore interface {
	InsertTranscript(ctx context.Context, row *database.TranscriptRow) (int64, error)
	GetTranscript(ctx context.Context, id int64) (*database.TranscriptAPI, error)
	GetResyncJob(ctx context.Context, id string) (*database.ResyncJob, error)
	ListResyncJobs(ctx context.Context, f database.ResyncJobFilter) ([]*database.ResyncJob, error)
}

// ResyncQueue accepts alignment jobs.
type ResyncQueue interface {
	Submit(ctx context.Context, transcriptID int64, audio align.AudioRef) (*database.ResyncJob, error)
	Stats() resync.QueueStats
}

// TranscriptHandler serves stored transcripts and their resync jobs.
type TranscriptHandler struct {
	store    TranscriptStore
	queue    ResyncQueue // nil when alignment is not configured
	opts     transcript.Options
	audioDir string
}

func NewTranscriptHandler(store TranscriptStore, queue ResyncQueue, opts transcript.Options, audioDir string) *TranscriptHandler {
	return &TranscriptHandler{store: store, queue: queue, opts: opts, audioDir: audioDir}
}

// CreateTranscriptRequest carries either turns or edited lines. Lines win
// when both are present.
type CreateTranscriptRequest struct {
	oncue.Document
	Lines []transcript.EditedLine `json:"lines,omitempty"`
}

// CreateTranscriptResponse is the body of POST /transcripts.
type CreateTranscriptResponse struct {
	ID          int64  `json:"id"`
	ContentHash string `json:"content_hash"`
	LastPGLN    int    `json:"last_pgln"`
}

// ResyncRequest names the audio to align against.
type ResyncRequest struct {
	AudioURL  string `json:"audio_url"`
	AudioPath string `json:"audio_path"`
}

// Routes mounts the transcript and resync routes on r.
func (h *TranscriptHandler) Routes(r chi.Router) {
	r.Post("/transcripts", h.Create)
	r.Get("/transcripts/{id}", h.Get)
	r.Get("/transcripts/{id}/oncue", h.ExportOnCue)
	r.Get("/transcripts/{id}/resync/jobs", h.ListJobs)
	if h.queue != nil {
		r.Post("/transcripts/{id}/resync", h.Resync)
		r.Get("/resync/queue", h.QueueStats)
	}
	r.Get("/resync/jobs/{id}", h.GetJob)
}

// Create handles POST /api/v1/transcripts.
func (h *TranscriptHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTranscriptRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	doc := req.Document
	if len(req.Lines) > 0 {
		lines, dur := transcript.NormalizeLines(req.Lines, doc.AudioDuration)
		doc.Turns = transcript.TurnsFromLines(lines)
		doc.AudioDuration = dur
	}

	rendered, err := oncue.Render(&doc, h.opts)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	metrics.ObservePagination("store", len(rendered.Pagination.Lines), rendered.TimestampErrors())

	turns, err := json.Marshal(rendered.Turns)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	title, err := json.Marshal(doc.Title)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	id, err := h.store.InsertTranscript(r.Context(), &database.TranscriptRow{
		Title:         title,
		Turns:         turns,
		AudioDuration: doc.AudioDuration,
		LinesPerPage:  rendered.Options.LinesPerPage,
		ContentHash:   rendered.ContentHash,
	})
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, CreateTranscriptResponse{
		ID:          id,
		ContentHash: rendered.ContentHash,
		LastPGLN:    rendered.Pagination.LastPGLN,
	})
}

// Get handles GET /api/v1/transcripts/{id}.
func (h *TranscriptHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid transcript id")
		return
	}
	t, err := h.store.GetTranscript(r.Context(), id)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, t)
}

// ExportOnCue handles GET /api/v1/transcripts/{id}/oncue.
func (h *TranscriptHandler) ExportOnCue(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid transcript id")
		return
	}
	t, err := h.store.GetTranscript(r.Context(), id)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	doc := oncue.Document{AudioDuration: t.AudioDuration, LinesPerPage: t.LinesPerPage}
	if err := json.Unmarshal(t.Turns, &doc.Turns); err != nil {
		WriteServiceError(w, r, err)
		return
	}
	if len(t.Title) > 0 {
		if err := json.Unmarshal(t.Title, &doc.Title); err != nil {
			WriteServiceError(w, r, err)
			return
		}
	}

	rendered, err := oncue.Render(&doc, h.opts)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	metrics.ExportsTotal.WithLabelValues("store").Inc()
	writeXML(w, r, rendered.XML, rendered.ETag())
}

// Resync handles POST /api/v1/transcripts/{id}/resync.
func (h *TranscriptHandler) Resync(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid transcript id")
		return
	}
	var req ResyncRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	ref := align.AudioRef{URL: req.AudioURL}
	if ref.URL == "" {
		if req.AudioPath == "" {
			WriteError(w, http.StatusBadRequest, "audio_url or audio_path is required")
			return
		}
		path, err := audio.ResolveFile(h.audioDir, req.AudioPath)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		ref.Path = path
	}

	job, err := h.queue.Submit(r.Context(), id, ref)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "status": job.Status})
}

// ListJobs handles GET /api/v1/transcripts/{id}/resync/jobs.
func (h *TranscriptHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid transcript id")
		return
	}
	status, _ := QueryString(r, "status")
	jobs, err := h.store.ListResyncJobs(r.Context(), database.ResyncJobFilter{
		TranscriptID: id,
		Status:       status,
		Limit:        ParseLimit(r, 50, 500),
	})
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "total": len(jobs)})
}

// GetJob handles GET /api/v1/resync/jobs/{id}.
func (h *TranscriptHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusNotFound, "resync job not found")
		return
	}
	job, err := h.store.GetResyncJob(r.Context(), id.String())
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// QueueStats handles GET /api/v1/resync/queue.
func (h *TranscriptHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.queue.Stats())
}
