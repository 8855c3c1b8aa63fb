package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/pagescribe/internal/models"
	"github.com/nikhilbhutani/pagescribe/internal/store"
)

// fileRecorder persists a run as <name>.txt plus a <name>.json sidecar in
// dir. The source PDF is already on disk, so nothing else is copied.
type fileRecorder struct {
	dir  string
	base string

	textPath string
	metaPath string
}

func newFileRecorder(dir, source string) *fileRecorder {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return &fileRecorder{dir: dir, base: base}
}

func (r *fileRecorder) Create(_ context.Context, in store.NewTranscription, _ *store.File) (*models.Transcription, error) {
	if in.PageCount > in.OriginalPageCount {
		return nil, fmt.Errorf("page count %d exceeds document pages %d", in.PageCount, in.OriginalPageCount)
	}
	rec := &models.Transcription{
		ID:                uuid.New(),
		UserID:            in.UserID,
		Name:              in.Name,
		FileName:          in.FileName,
		PageSelection:     in.PageSelection,
		PageCount:         in.PageCount,
		OriginalPageCount: in.OriginalPageCount,
		Provider:          in.Provider,
		Mode:              in.Mode,
		MarkerVersion:     in.MarkerVersion,
		Text:              in.Text,
		Tags:              []string{},
		CreatedAt:         time.Now().UTC(),
	}
	if in.Error != "" {
		rec.Error = &in.Error
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	r.textPath = filepath.Join(r.dir, r.base+".txt")
	r.metaPath = filepath.Join(r.dir, r.base+".json")

	if !rec.Failed() {
		if err := os.WriteFile(r.textPath, []byte(rec.Text), 0o644); err != nil {
			return nil, fmt.Errorf("write transcription: %w", err)
		}
	}
	meta, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	if err := os.WriteFile(r.metaPath, meta, 0o644); err != nil {
		return nil, fmt.Errorf("write record: %w", err)
	}
	return rec, nil
}
