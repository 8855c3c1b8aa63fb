package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/pagescribe/internal/auth"
	"github.com/nikhilbhutani/pagescribe/internal/config"
	"github.com/nikhilbhutani/pagescribe/internal/export"
	"github.com/nikhilbhutani/pagescribe/internal/models"
	"github.com/nikhilbhutani/pagescribe/internal/store"
)

// Records is the slice of the store the transcription endpoints use.
type Records interface {
	List(ctx context.Context, userID uuid.UUID) ([]models.Transcription, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*models.Transcription, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	UpdateText(ctx context.Context, userID, id uuid.UUID, text string) error
	UpdateTags(ctx context.Context, userID, id uuid.UUID, tags []string) ([]string, error)
	DownloadOriginal(ctx context.Context, userID, id uuid.UUID) (*store.Original, error)
}

type TranscriptionHandler struct {
	records  Records
	settings *config.Settings
}

func NewTranscriptionHandler(records Records, settings *config.Settings) *TranscriptionHandler {
	return &TranscriptionHandler{records: records, settings: settings}
}

func recordID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transcription ID")
		return uuid.Nil, false
	}
	return id, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "transcription not found")
		return
	}
	slog.Error("transcription store", "error", err)
	writeError(w, http.StatusInternalServerError, "storage error")
}

// List returns the caller's transcriptions, newest first. ?tag= narrows the
// list to records carrying that tag.
func (h *TranscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.records.List(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if tag := strings.TrimSpace(r.URL.Query().Get("tag")); tag != "" {
		items = slices.DeleteFunc(items, func(t models.Transcription) bool {
			return !slices.ContainsFunc(t.Tags, func(s string) bool { return strings.EqualFold(s, tag) })
		})
	}
	if items == nil {
		items = []models.Transcription{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transcriptions": items})
}

func (h *TranscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	t, err := h.records.Get(r.Context(), auth.UserIDFromContext(r.Context()), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TranscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	if err := h.records.Delete(r.Context(), auth.UserIDFromContext(r.Context()), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TranscriptionHandler) UpdateText(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	var req struct {
		Transcription string `json:"transcription"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.records.UpdateText(r.Context(), auth.UserIDFromContext(r.Context()), id, req.Transcription); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *TranscriptionHandler) UpdateTags(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	var req struct {
		Tags []string `json:"tags"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tags, err := h.records.UpdateTags(r.Context(), auth.UserIDFromContext(r.Context()), id, req.Tags)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func (h *TranscriptionHandler) Original(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	orig, err := h.records.DownloadOriginal(r.Context(), auth.UserIDFromContext(r.Context()), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if orig == nil {
		writeError(w, http.StatusNotFound, "original file not stored")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", attachment(orig.Name, ".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(orig.Data)
}

func (h *TranscriptionHandler) ExportText(w http.ResponseWriter, r *http.Request) {
	t, ok := h.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment(t.Name, ".txt"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(export.CleanText(t.Text)))
}

func (h *TranscriptionHandler) ExportPDF(w http.ResponseWriter, r *http.Request) {
	t, ok := h.load(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	err := export.PDF(&buf, t.Name, t.Text, export.Options{
		HeaderBanner: h.settings.Export.HeaderBanner,
		FooterBanner: h.settings.Export.FooterBanner,
	})
	if err != nil {
		slog.Error("export pdf", "id", t.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to render PDF")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", attachment(t.Name, ".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// Pages returns the sequential to original page mapping of a record.
func (h *TranscriptionHandler) Pages(w http.ResponseWriter, r *http.Request) {
	t, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": export.PageTable(t.Text)})
}

func (h *TranscriptionHandler) load(w http.ResponseWriter, r *http.Request) (*models.Transcription, bool) {
	id, ok := recordID(w, r)
	if !ok {
		return nil, false
	}
	t, err := h.records.Get(r.Context(), auth.UserIDFromContext(r.Context()), id)
	if err != nil {
		writeStoreError(w, err)
		return nil, false
	}
	return t, true
}

func attachment(name, ext string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." {
		base = "transcription"
	}
	base = strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 {
			return '_'
		}
		return r
	}, base)
	return fmt.Sprintf("attachment; filename=%q", base+ext)
}
