package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nikhilbhutani/pagescribe/internal/config"
	"github.com/nikhilbhutani/pagescribe/internal/llm"
	"github.com/nikhilbhutani/pagescribe/internal/marker"
	"github.com/nikhilbhutani/pagescribe/internal/models"
	"github.com/nikhilbhutani/pagescribe/internal/pages"
	"github.com/nikhilbhutani/pagescribe/internal/pdfdoc"
	"github.com/nikhilbhutani/pagescribe/internal/prompt"
	"github.com/nikhilbhutani/pagescribe/internal/store"
)

// Resolver picks the provider for a run. *llm.Gateway implements it.
type Resolver interface {
	Resolve(id llm.ProviderID, apiKey string) (llm.Provider, error)
}

// Recorder persists the outcome of a run. *store.Store implements it. A
// Recorder may return a record together with store.ErrOriginalNotStored.
type Recorder interface {
	Create(ctx context.Context, in store.NewTranscription, file *store.File) (*models.Transcription, error)
}

// Progress is reported after every transcribed page.
type Progress struct {
	Page     int     `json:"page"`
	Done     int     `json:"done"`
	Total    int     `json:"total"`
	Fraction float64 `json:"fraction"`
}

type RunOptions struct {
	// APIKey overrides the server key for providers that need one.
	APIKey string
}

// Outcome is what a submitted job produced. Record.Error is set when the run
// failed part way.
type Outcome struct {
	Record *models.Transcription
	// Warning is set when the record was saved without its original file.
	Warning string
}

type Driver struct {
	providers Resolver
	recorder  Recorder
	settings  *config.Settings
}

func NewDriver(providers Resolver, recorder Recorder, settings *config.Settings) *Driver {
	return &Driver{providers: providers, recorder: recorder, settings: settings}
}

// Run submits job. Validation errors (ErrNoFile, ErrEmptySelection,
// ErrMissingAPIKey) leave the job Ready and persist nothing. Once pages are
// being sent, exactly one record is written whatever happens; the first
// failing page stops the run and the record keeps an empty transcription.
func (d *Driver) Run(ctx context.Context, job *Job, opts RunOptions, progress func(Progress)) (*Outcome, error) {
	if err := job.BeginSubmit(); err != nil {
		return nil, err
	}

	snap := job.snapshot()
	provider, promptText, err := d.validate(snap, opts)
	if err != nil {
		job.abortSubmit(err)
		return nil, err
	}

	logger := slog.With("job_id", job.ID, "provider", snap.provider, "pages", len(snap.pages))
	logger.Info("transcription started")
	start := time.Now()

	text, runErr := d.transcribe(ctx, job, snap, provider, promptText, progress, logger)

	in := store.NewTranscription{
		UserID:            job.UserID,
		Name:              snap.displayName,
		FileName:          snap.fileName,
		PageSelection:     pages.Describe(snap.selection, snap.all),
		PageCount:         len(snap.pages),
		OriginalPageCount: snap.totalPages,
		Provider:          string(snap.provider),
		Mode:              string(mode(snap.translate)),
		MarkerVersion:     d.settings.MarkerVersion,
		Text:              text,
	}
	if runErr != nil {
		in.Text = ""
		in.Error = runErr.Error()
	}

	rec, err := d.recorder.Create(ctx, in, &store.File{
		Name:        snap.fileName,
		ContentType: "application/pdf",
		Data:        snap.data,
	})
	out := &Outcome{Record: rec}
	switch {
	case err == nil:
	case errors.Is(err, store.ErrOriginalNotStored) && rec != nil:
		logger.Warn("record saved without original", "error", err)
		out.Warning = err.Error()
	default:
		logger.Error("persist transcription failed", "error", err)
		job.finish(nil, fmt.Errorf("save transcription: %w", err))
		return nil, fmt.Errorf("save transcription: %w", err)
	}

	job.finish(rec, runErr)
	if runErr != nil {
		logger.Warn("transcription failed", "error", runErr, "duration", time.Since(start))
	} else {
		logger.Info("transcription finished", "record_id", rec.ID, "duration", time.Since(start))
	}
	return out, nil
}

func (d *Driver) validate(snap snapshot, opts RunOptions) (llm.Provider, string, error) {
	if snap.doc == nil || len(snap.data) == 0 {
		return nil, "", ErrNoFile
	}
	if len(snap.pages) == 0 {
		return nil, "", ErrEmptySelection
	}
	// a missing caller key is fine when the server holds one
	provider, err := d.providers.Resolve(snap.provider, opts.APIKey)
	if errors.Is(err, llm.ErrMissingAPIKey) {
		return nil, "", ErrMissingAPIKey
	}
	if err != nil {
		return nil, "", fmt.Errorf("resolve provider: %w", err)
	}
	promptText, err := prompt.ForPage(d.settings, mode(snap.translate))
	if err != nil {
		return nil, "", err
	}
	return provider, promptText, nil
}

func (d *Driver) transcribe(ctx context.Context, job *Job, snap snapshot, provider llm.Transcriber,
	promptText string, progress func(Progress), logger *slog.Logger) (string, error) {
	version := marker.Version(d.settings.MarkerVersion)
	total := len(snap.pages)
	job.setProgress(0, total)

	var acc strings.Builder
	for i, page := range snap.pages {
		img, err := snap.doc.Render(ctx, page, d.settings.Render.PageScale)
		if err != nil {
			return acc.String(), fmt.Errorf("page %d: %w", page, err)
		}
		payload, err := pdfdoc.EncodePage(img, d.settings.Render.ImageFormat)
		if err != nil {
			return acc.String(), fmt.Errorf("page %d: %w", page, err)
		}
		text, err := provider.Transcribe(ctx, payload, promptText)
		if err != nil {
			return acc.String(), fmt.Errorf("page %d: %w", page, err)
		}

		acc.WriteString(marker.Block(version, i+1, page, text))
		job.setProgress(i+1, total)
		logger.Debug("page transcribed", "page", page, "done", i+1)
		if progress != nil {
			progress(Progress{Page: page, Done: i + 1, Total: total, Fraction: fraction(i+1, total)})
		}
	}
	return acc.String(), nil
}

func mode(translate bool) prompt.Mode {
	if translate {
		return prompt.ModeTranslate
	}
	return prompt.ModeTranscribe
}
