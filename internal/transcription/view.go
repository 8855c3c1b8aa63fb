package transcription

import (
	"github.com/google/uuid"

	"github.com/nikhilbhutani/pagescribe/internal/llm"
	"github.com/nikhilbhutani/pagescribe/internal/pages"
)

// View is the JSON shape of a job.
type View struct {
	ID           uuid.UUID      `json:"id"`
	State        State          `json:"state"`
	FileName     string         `json:"file_name,omitempty"`
	DisplayName  string         `json:"display_name,omitempty"`
	TotalPages   int            `json:"total_pages"`
	HasTextLayer bool           `json:"has_text_layer"`
	Selection    string         `json:"selection"`
	All          bool           `json:"all"`
	Pages        []int          `json:"pages"`
	PagesCompact string         `json:"pages_compact"`
	Provider     llm.ProviderID `json:"provider"`
	NeedsAPIKey  bool           `json:"needs_api_key"`
	Translate    bool           `json:"translate"`
	Estimate     string         `json:"estimate,omitempty"`
	Progress     float64        `json:"progress"`
	RecordID     *uuid.UUID     `json:"record_id,omitempty"`
	Error        string         `json:"error,omitempty"`
	Previews     []PreviewView  `json:"previews,omitempty"`
}

type PreviewView struct {
	Page    int    `json:"page"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	DataURL string `json:"data_url"`
}

// View renders the job; previews are included only when asked for.
func (j *Job) View(withPreviews bool) View {
	j.mu.Lock()
	defer j.mu.Unlock()

	sel := pages.Select(j.selection, j.all, j.info.PageCount)
	v := View{
		ID:           j.ID,
		State:        j.state,
		FileName:     j.fileName,
		DisplayName:  j.displayName,
		TotalPages:   j.info.PageCount,
		HasTextLayer: j.info.HasTextLayer,
		Selection:    j.selection,
		All:          j.all,
		Pages:        sel,
		PagesCompact: pages.Compact(sel),
		Provider:     j.provider,
		NeedsAPIKey:  llm.RequiresAPIKey(j.provider),
		Translate:    j.translate,
		Progress:     fraction(j.done, j.total),
		Error:        j.lastError,
	}
	if est, ok := llm.EstimateCost(len(sel), j.provider); ok {
		v.Estimate = est.String()
	}
	if j.record != nil {
		id := j.record.ID
		v.RecordID = &id
	}
	if withPreviews {
		v.Previews = make([]PreviewView, 0, len(j.previews))
		for _, p := range j.previews {
			v.Previews = append(v.Previews, PreviewView{
				Page: p.Page, Width: p.Width, Height: p.Height, DataURL: p.Image.DataURL(),
			})
		}
	}
	return v
}
