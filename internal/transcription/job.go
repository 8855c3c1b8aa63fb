package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/pagescribe/internal/llm"
	"github.com/nikhilbhutani/pagescribe/internal/models"
	"github.com/nikhilbhutani/pagescribe/internal/pages"
	"github.com/nikhilbhutani/pagescribe/internal/pdfdoc"
)

// State of a job. Jobs move Idle -> ReadingFile -> Ready -> Submitting and
// end in Succeeded or Failed.
type State string

const (
	StateIdle        State = "idle"
	StateReadingFile State = "reading_file"
	StateReady       State = "ready"
	StateSubmitting  State = "submitting"
	StateSucceeded   State = "succeeded"
	StateFailed      State = "failed"
)

func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

var (
	ErrNoFile            = errors.New("no file loaded")
	ErrEmptySelection    = errors.New("no pages selected")
	ErrMissingAPIKey     = errors.New("an API key is required for this provider")
	ErrAlreadySubmitting = errors.New("job is already being submitted")
	ErrJobFinished       = errors.New("job has already finished")
	ErrNotEditable       = errors.New("job cannot be changed while submitting or after it finished")
)

// Loader validates uploaded bytes and opens them for rendering.
type Loader func(data []byte) (pdfdoc.Info, pdfdoc.Renderer, error)

// PDFLoader is the Loader backed by pdfcpu and MuPDF.
func PDFLoader(data []byte) (pdfdoc.Info, pdfdoc.Renderer, error) {
	info, err := pdfdoc.Inspect(data)
	if err != nil {
		return pdfdoc.Info{}, nil, err
	}
	doc, err := pdfdoc.Open(data)
	if err != nil {
		return pdfdoc.Info{}, nil, err
	}
	return info, doc, nil
}

// File is an uploaded source document.
type File struct {
	Name        string
	DisplayName string
	Data        []byte
}

// Job is one user's in-progress transcription. It lives only in memory.
type Job struct {
	ID     uuid.UUID
	UserID uuid.UUID

	mu          sync.Mutex
	state       State
	fileName    string
	displayName string
	data        []byte
	doc         pdfdoc.Renderer
	info        pdfdoc.Info
	previews    []pdfdoc.Preview
	selection   string
	all         bool
	provider    llm.ProviderID
	translate   bool
	done        int
	total       int
	record      *models.Transcription
	lastError   string
	touched     time.Time
}

func NewJob(userID uuid.UUID, provider llm.ProviderID) *Job {
	return &Job{
		ID:       uuid.New(),
		UserID:   userID,
		state:    StateIdle,
		provider: provider,
		touched:  time.Now(),
	}
}

// Load reads a file into the job and renders its previews. On failure the
// job goes back to Idle with no file.
func (j *Job) Load(ctx context.Context, load Loader, f File, previewScale float64, previewMax int) error {
	j.mu.Lock()
	switch {
	case j.state == StateSubmitting || j.state.Terminal():
		j.mu.Unlock()
		return ErrNotEditable
	case j.state == StateReadingFile:
		j.mu.Unlock()
		return fmt.Errorf("a file is already being read")
	}
	j.closeDocLocked()
	j.state = StateReadingFile
	j.touched = time.Now()
	j.mu.Unlock()

	info, doc, err := load(f.Data)
	var previews []pdfdoc.Preview
	if err == nil {
		previews = pdfdoc.Previews(ctx, doc, previewScale, previewMax)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.touched = time.Now()
	if err != nil {
		j.state = StateIdle
		j.lastError = err.Error()
		return fmt.Errorf("load %s: %w", f.Name, err)
	}

	j.state = StateReady
	j.fileName = f.Name
	j.displayName = pdfdoc.DisplayName(f.DisplayName, info.Title, f.Name)
	j.data = f.Data
	j.doc = doc
	j.info = info
	j.previews = previews
	j.lastError = ""
	return nil
}

// Patch carries optional edits to a job's inputs.
type Patch struct {
	Name      *string         `json:"name,omitempty"`
	Pages     *string         `json:"pages,omitempty"`
	All       *bool           `json:"all,omitempty"`
	Provider  *llm.ProviderID `json:"provider,omitempty"`
	Translate *bool           `json:"translate,omitempty"`
}

func (j *Job) Update(p Patch) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateSubmitting || j.state.Terminal() {
		return ErrNotEditable
	}
	if p.Provider != nil {
		if _, err := llm.ParseProvider(string(*p.Provider)); err != nil {
			return err
		}
		j.provider = *p.Provider
	}
	if p.Name != nil {
		if name := strings.TrimSpace(*p.Name); name != "" {
			j.displayName = name
		}
	}
	if p.Pages != nil {
		j.selection = *p.Pages
	}
	if p.All != nil {
		j.all = *p.All
	}
	if p.Translate != nil {
		j.translate = *p.Translate
	}
	j.touched = time.Now()
	return nil
}

// Selected is the current page selection, ascending and deduplicated.
func (j *Job) Selected() []int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return pages.Select(j.selection, j.all, j.info.PageCount)
}

// BeginSubmit moves a Ready job to Submitting. A job can be submitted once.
func (j *Job) BeginSubmit() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch j.state {
	case StateReady:
	case StateSubmitting:
		return ErrAlreadySubmitting
	case StateSucceeded, StateFailed:
		return ErrJobFinished
	default:
		return ErrNoFile
	}
	j.state = StateSubmitting
	j.done, j.total = 0, 0
	j.lastError = ""
	j.touched = time.Now()
	return nil
}

// abortSubmit returns the job to Ready after a rejected submission.
func (j *Job) abortSubmit(reason error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateSubmitting {
		j.state = StateReady
	}
	j.lastError = reason.Error()
}

func (j *Job) setProgress(done, total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.done, j.total = done, total
	j.touched = time.Now()
}

// finish records the outcome and releases the document.
func (j *Job) finish(rec *models.Transcription, runErr error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.record = rec
	if runErr != nil {
		j.state = StateFailed
		j.lastError = runErr.Error()
	} else {
		j.state = StateSucceeded
	}
	j.closeDocLocked()
	j.data = nil
	j.touched = time.Now()
}

// closeDocLocked releases the document unless a run is rendering from it.
// finish closes it once the run is over.
func (j *Job) closeDocLocked() {
	if j.state == StateSubmitting {
		return
	}
	if j.doc != nil {
		_ = j.doc.Close()
		j.doc = nil
	}
}

// Close releases the rendering document without changing state. It reports
// false, and leaves the document open, while the job is submitting.
func (j *Job) Close() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closeDocLocked()
	return j.state != StateSubmitting
}

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Progress is the fraction of selected pages completed.
func (j *Job) Progress() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return fraction(j.done, j.total)
}

func (j *Job) Record() *models.Transcription {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.record
}

func (j *Job) idleSince() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.touched
}

// snapshot is the immutable input of one run.
type snapshot struct {
	fileName    string
	displayName string
	data        []byte
	doc         pdfdoc.Renderer
	totalPages  int
	selection   string
	all         bool
	pages       []int
	provider    llm.ProviderID
	translate   bool
}

func (j *Job) snapshot() snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return snapshot{
		fileName:    j.fileName,
		displayName: j.displayName,
		data:        j.data,
		doc:         j.doc,
		totalPages:  j.info.PageCount,
		selection:   j.selection,
		all:         j.all,
		pages:       pages.Select(j.selection, j.all, j.info.PageCount),
		provider:    j.provider,
		translate:   j.translate,
	}
}

func fraction(done, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(done) / float64(total)
}
