package handlers

import (
	"net/http"
	"strconv"

	"github.com/nikhilbhutani/pagescribe/internal/config"
	"github.com/nikhilbhutani/pagescribe/internal/llm"
	"github.com/nikhilbhutani/pagescribe/internal/pages"
)

// ProviderCatalog reports which providers the server can use.
type ProviderCatalog interface {
	Default() llm.ProviderID
	Configured() []llm.ProviderID
}

type MiscHandler struct {
	providers ProviderCatalog
	settings  *config.Settings
}

func NewMiscHandler(providers ProviderCatalog, settings *config.Settings) *MiscHandler {
	return &MiscHandler{providers: providers, settings: settings}
}

type estimateResponse struct {
	Pages        []int         `json:"pages"`
	PagesCompact string        `json:"pages_compact"`
	Estimate     *llm.Estimate `json:"estimate"`
	Display      string        `json:"display,omitempty"`
}

// Estimate prices a page selection without a file: ?pages=1-3,7&total=40.
func (h *MiscHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	total, err := strconv.Atoi(q.Get("total"))
	if err != nil || total < 0 {
		writeError(w, http.StatusBadRequest, "total must be a non-negative integer")
		return
	}
	all := false
	if v := q.Get("all"); v != "" {
		if all, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid all")
			return
		}
	}
	provider := h.providers.Default()
	if v := q.Get("provider"); v != "" {
		if provider, err = llm.ParseProvider(v); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	selected := pages.Select(q.Get("pages"), all, total)
	resp := estimateResponse{Pages: selected, PagesCompact: pages.Compact(selected)}
	if est, ok := llm.EstimateCost(len(selected), provider); ok {
		resp.Estimate = &est
		resp.Display = est.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *MiscHandler) Settings(w http.ResponseWriter, r *http.Request) {
	configured := h.providers.Configured()
	needsKey := map[llm.ProviderID]bool{}
	for _, id := range []llm.ProviderID{llm.ProviderGemini, llm.ProviderOpenAI, llm.ProviderAnthropic} {
		needsKey[id] = llm.RequiresAPIKey(id)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"settings":             h.settings,
		"default_provider":     h.providers.Default(),
		"configured_providers": configured,
		"requires_api_key":     needsKey,
	})
}
