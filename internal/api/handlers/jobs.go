package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/pagescribe/internal/auth"
	"github.com/nikhilbhutani/pagescribe/internal/config"
	"github.com/nikhilbhutani/pagescribe/internal/llm"
	"github.com/nikhilbhutani/pagescribe/internal/pdfdoc"
	"github.com/nikhilbhutani/pagescribe/internal/transcription"
)

type JobHandler struct {
	registry        *transcription.Registry
	driver          *transcription.Driver
	loader          transcription.Loader
	settings        *config.Settings
	defaultProvider llm.ProviderID
	maxUpload       int64
}

func NewJobHandler(registry *transcription.Registry, driver *transcription.Driver, loader transcription.Loader,
	settings *config.Settings, defaultProvider llm.ProviderID, maxUploadBytes int64) *JobHandler {
	return &JobHandler{
		registry:        registry,
		driver:          driver,
		loader:          loader,
		settings:        settings,
		defaultProvider: defaultProvider,
		maxUpload:       maxUploadBytes,
	}
}

// Create accepts a multipart upload (field "file", optional "name",
// "provider", "pages", "all", "translate") and returns the ready job.
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form or file too large")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read file: "+err.Error())
		return
	}

	provider := h.defaultProvider
	if p := r.FormValue("provider"); p != "" {
		if provider, err = llm.ParseProvider(p); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	job := h.registry.Create(userID, provider)
	err = job.Load(r.Context(), h.loader, transcription.File{
		Name:        header.Filename,
		DisplayName: r.FormValue("name"),
		Data:        data,
	}, h.settings.Render.PreviewScale, h.settings.Render.PreviewMaxPages)
	if err != nil {
		_ = h.registry.Delete(userID, job.ID)
		status := http.StatusInternalServerError
		if errors.Is(err, pdfdoc.ErrUnreadable) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}

	patch, err := patchFromForm(r)
	if err == nil {
		err = job.Update(patch)
	}
	if err != nil {
		_ = h.registry.Delete(userID, job.ID)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slog.Info("job created", "job_id", job.ID, "file", header.Filename, "size", len(data))
	writeJSON(w, http.StatusCreated, job.View(true))
}

func patchFromForm(r *http.Request) (transcription.Patch, error) {
	var p transcription.Patch
	if v, ok := r.MultipartForm.Value["pages"]; ok && len(v) > 0 {
		p.Pages = &v[0]
	}
	for _, field := range []struct {
		name string
		dest **bool
	}{{"all", &p.All}, {"translate", &p.Translate}} {
		v := r.FormValue(field.name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return p, fmt.Errorf("invalid %s: %q", field.name, v)
		}
		*field.dest = &b
	}
	return p, nil
}

func (h *JobHandler) job(w http.ResponseWriter, r *http.Request) (*transcription.Job, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job ID")
		return nil, false
	}
	job, err := h.registry.Get(auth.UserIDFromContext(r.Context()), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return job, true
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(w, r)
	if !ok {
		return
	}
	withPreviews, _ := strconv.ParseBool(r.URL.Query().Get("previews"))
	writeJSON(w, http.StatusOK, job.View(withPreviews))
}

func (h *JobHandler) Update(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(w, r)
	if !ok {
		return
	}
	var patch transcription.Patch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := job.Update(patch); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, transcription.ErrNotEditable) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job.View(false))
}

func (h *JobHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job ID")
		return
	}
	if err := h.registry.Delete(auth.UserIDFromContext(r.Context()), id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitRequest struct {
	APIKey string `json:"api_key"`
}

type submitResponse struct {
	Job     transcription.View `json:"job"`
	Record  any                `json:"record,omitempty"`
	Warning string             `json:"warning,omitempty"`
}

// Submit runs the job. With Accept: text/event-stream the response is a
// stream of progress events ending in a "done" or "error" event.
func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request) {
	job, ok := h.job(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.APIKey == "" {
		req.APIKey = r.Header.Get("X-Provider-Key")
	}
	opts := transcription.RunOptions{APIKey: req.APIKey}

	// Submission is not cancellable; a dropped client does not stop the run.
	ctx := context.WithoutCancel(r.Context())

	if r.Header.Get("Accept") == "text/event-stream" {
		h.submitStream(ctx, w, r, job, opts)
		return
	}

	out, err := h.driver.Run(ctx, job, opts, nil)
	if err != nil {
		writeError(w, submitStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{Job: job.View(false), Record: out.Record, Warning: out.Warning})
}

func (h *JobHandler) submitStream(ctx context.Context, w http.ResponseWriter, r *http.Request,
	job *transcription.Job, opts transcription.RunOptions) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	switch job.State() {
	case transcription.StateSubmitting:
		writeError(w, http.StatusConflict, transcription.ErrAlreadySubmitting.Error())
		return
	case transcription.StateSucceeded, transcription.StateFailed:
		writeError(w, http.StatusConflict, transcription.ErrJobFinished.Error())
		return
	}

	type result struct {
		out *transcription.Outcome
		err error
	}
	progress := make(chan transcription.Progress, 16)
	done := make(chan result, 1)
	go func() {
		out, err := h.driver.Run(ctx, job, opts, func(p transcription.Progress) {
			select {
			case progress <- p:
			default: // slow reader; the final event carries the state
			}
		})
		done <- result{out, err}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case p := <-progress:
			writeEvent(w, "progress", p)
			flusher.Flush()
		case res := <-done:
			drainProgress(w, progress)
			if res.err != nil {
				writeEvent(w, "error", map[string]any{"error": res.err.Error(), "status": submitStatus(res.err)})
			} else {
				writeEvent(w, "done", submitResponse{Job: job.View(false), Record: res.out.Record, Warning: res.out.Warning})
			}
			flusher.Flush()
			return
		case <-r.Context().Done():
			slog.Info("progress stream closed by client; job continues", "job_id", job.ID)
			return
		}
	}
}

// drainProgress flushes events queued before the run finished so the final
// event is always last.
func drainProgress(w io.Writer, progress <-chan transcription.Progress) {
	for {
		select {
		case p := <-progress:
			writeEvent(w, "progress", p)
		default:
			return
		}
	}
}

func writeEvent(w io.Writer, event string, data any) {
	payload, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}

func submitStatus(err error) int {
	switch {
	case errors.Is(err, transcription.ErrAlreadySubmitting), errors.Is(err, transcription.ErrJobFinished):
		return http.StatusConflict
	case errors.Is(err, transcription.ErrNoFile), errors.Is(err, transcription.ErrEmptySelection),
		errors.Is(err, transcription.ErrMissingAPIKey):
		return http.StatusUnprocessableEntity
	case errors.Is(err, llm.ErrProviderNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
