package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/pagescribe/internal/auth"
	"github.com/nikhilbhutani/pagescribe/internal/config"
	"github.com/nikhilbhutani/pagescribe/internal/llm"
	"github.com/nikhilbhutani/pagescribe/internal/models"
	"github.com/nikhilbhutani/pagescribe/internal/pdfdoc"
	"github.com/nikhilbhutani/pagescribe/internal/store"
	"github.com/nikhilbhutani/pagescribe/internal/transcription"
)

var testUser = uuid.MustParse("6f1c1f8e-2b7a-4a53-9d44-0b8f1a1d2c3e")

func withUser(id uuid.UUID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), id)))
		})
	}
}

// --- jobs ---

type grayDoc struct{ pages int }

func (d grayDoc) PageCount() int { return d.pages }
func (d grayDoc) Close() error   { return nil }
func (d grayDoc) Render(context.Context, int, float64) (image.Image, error) {
	return image.NewGray(image.Rect(0, 0, 8, 8)), nil
}

type stubProvider struct{ failOn int }

func (p *stubProvider) Name() llm.ProviderID { return llm.ProviderGemini }
func (p *stubProvider) Transcribe(_ context.Context, _ llm.Image, _ string) (string, error) {
	p.failOn--
	if p.failOn == 0 {
		return "", &llm.ProviderError{Provider: llm.ProviderGemini, StatusCode: 500, Message: "boom"}
	}
	return "page text", nil
}
func (p *stubProvider) Reply(context.Context, llm.Conversation, string) (string, error) {
	return "", nil
}

type stubResolver struct{ p llm.Provider }

func (r stubResolver) Resolve(id llm.ProviderID, key string) (llm.Provider, error) {
	if llm.RequiresAPIKey(id) && key == "" {
		return nil, llm.ErrMissingAPIKey
	}
	return r.p, nil
}

type memRecorder struct {
	mu      sync.Mutex
	created []store.NewTranscription
}

func (m *memRecorder) Create(_ context.Context, in store.NewTranscription, _ *store.File) (*models.Transcription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, in)
	rec := &models.Transcription{ID: uuid.New(), UserID: in.UserID, Name: in.Name, PageCount: in.PageCount, Text: in.Text}
	if in.Error != "" {
		rec.Error = &in.Error
	}
	return rec, nil
}

type jobFixture struct {
	router   http.Handler
	registry *transcription.Registry
	recorder *memRecorder
}

func newJobFixture(t *testing.T, provider *stubProvider, loadErr error) *jobFixture {
	t.Helper()
	settings := config.DefaultSettings()
	registry := transcription.NewRegistry(0)
	recorder := &memRecorder{}
	driver := transcription.NewDriver(stubResolver{p: provider}, recorder, settings)
	loader := func([]byte) (pdfdoc.Info, pdfdoc.Renderer, error) {
		if loadErr != nil {
			return pdfdoc.Info{}, nil, loadErr
		}
		return pdfdoc.Info{PageCount: 4, Title: "Quarterly report"}, grayDoc{pages: 4}, nil
	}
	h := NewJobHandler(registry, driver, loader, settings, llm.ProviderGemini, 1<<20)

	r := chi.NewRouter()
	r.Use(withUser(testUser))
	r.Post("/jobs", h.Create)
	r.Get("/jobs/{id}", h.Get)
	r.Patch("/jobs/{id}", h.Update)
	r.Delete("/jobs/{id}", h.Delete)
	r.Post("/jobs/{id}/submit", h.Submit)
	return &jobFixture{router: r, registry: registry, recorder: recorder}
}

func uploadRequest(t *testing.T, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "report.pdf")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("%PDF-1.4 fake"))
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/jobs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *jobFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestJobHandler_CreatePatchSubmit(t *testing.T) {
	f := newJobFixture(t, &stubProvider{}, nil)

	rec := f.do(uploadRequest(t, map[string]string{"pages": "2-3"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	view := decode[transcription.View](t, rec)
	assert.Equal(t, transcription.StateReady, view.State)
	assert.Equal(t, "Quarterly report", view.DisplayName)
	assert.Equal(t, []int{2, 3}, view.Pages)
	assert.Len(t, view.Previews, 4)

	patch := httptest.NewRequest(http.MethodPatch, "/jobs/"+view.ID.String(), strings.NewReader(`{"pages":"1, 4","name":"Q3"}`))
	rec = f.do(patch)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view = decode[transcription.View](t, rec)
	assert.Equal(t, "1, 4", view.PagesCompact)
	assert.Equal(t, "Q3", view.DisplayName)
	assert.NotEmpty(t, view.Estimate)

	rec = f.do(httptest.NewRequest(http.MethodPost, "/jobs/"+view.ID.String()+"/submit", nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode[struct {
		Job    transcription.View   `json:"job"`
		Record models.Transcription `json:"record"`
	}](t, rec)
	assert.Equal(t, transcription.StateSucceeded, out.Job.State)
	assert.Equal(t, 2, out.Record.PageCount)
	assert.Contains(t, out.Record.Text, "PDF Original: 4")
	require.Len(t, f.recorder.created, 1)

	rec = f.do(httptest.NewRequest(http.MethodPost, "/jobs/"+view.ID.String()+"/submit", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodPatch, "/jobs/"+view.ID.String(), strings.NewReader(`{"pages":"1"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestJobHandler_SubmitValidation(t *testing.T) {
	f := newJobFixture(t, &stubProvider{}, nil)

	rec := f.do(uploadRequest(t, nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[transcription.View](t, rec).ID.String()

	rec = f.do(httptest.NewRequest(http.MethodPost, "/jobs/"+id+"/submit", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "empty selection")

	rec = f.do(httptest.NewRequest(http.MethodPatch, "/jobs/"+id, strings.NewReader(`{"all":true,"provider":"openai"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(httptest.NewRequest(http.MethodPost, "/jobs/"+id+"/submit", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "missing api key")
	assert.Empty(t, f.recorder.created)

	req := httptest.NewRequest(http.MethodPost, "/jobs/"+id+"/submit", strings.NewReader(`{"api_key":"sk-test"}`))
	rec = f.do(req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestJobHandler_SubmitStream(t *testing.T) {
	f := newJobFixture(t, &stubProvider{failOn: 3}, nil)

	rec := f.do(uploadRequest(t, map[string]string{"all": "true"}))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[transcription.View](t, rec).ID.String()

	req := httptest.NewRequest(http.MethodPost, "/jobs/"+id+"/submit", nil)
	req.Header.Set("Accept", "text/event-stream")
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Equal(t, 2, strings.Count(body, "event: progress"))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(body), "}"))
	last := body[strings.LastIndex(body, "event: "):]
	assert.True(t, strings.HasPrefix(last, "event: done"), last)
	assert.Contains(t, last, `"state":"failed"`)
	assert.Contains(t, last, "boom")
}

func TestJobHandler_CreateRejectsUnreadable(t *testing.T) {
	f := newJobFixture(t, &stubProvider{}, fmt.Errorf("%w: no header", pdfdoc.ErrUnreadable))

	rec := f.do(uploadRequest(t, nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 0, f.registry.Len())
}

func TestJobHandler_OtherUsersJob(t *testing.T) {
	f := newJobFixture(t, &stubProvider{}, nil)
	job := f.registry.Create(uuid.New(), llm.ProviderGemini)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID.String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodDelete, "/jobs/"+job.ID.String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/jobs/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- transcriptions ---

type memRecords struct {
	items    map[uuid.UUID]*models.Transcription
	original *store.Original
}

func (m *memRecords) List(context.Context, uuid.UUID) ([]models.Transcription, error) {
	var out []models.Transcription
	for _, t := range m.items {
		out = append(out, *t)
	}
	return out, nil
}

func (m *memRecords) Get(_ context.Context, _ uuid.UUID, id uuid.UUID) (*models.Transcription, error) {
	t, ok := m.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t, nil
}

func (m *memRecords) Delete(_ context.Context, _ uuid.UUID, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memRecords) UpdateText(_ context.Context, _ uuid.UUID, id uuid.UUID, text string) error {
	t, ok := m.items[id]
	if !ok {
		return store.ErrNotFound
	}
	t.Text = text
	return nil
}

func (m *memRecords) UpdateTags(_ context.Context, _ uuid.UUID, id uuid.UUID, tags []string) ([]string, error) {
	t, ok := m.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	t.Tags = store.NormalizeTags(tags)
	return t.Tags, nil
}

func (m *memRecords) DownloadOriginal(_ context.Context, _ uuid.UUID, id uuid.UUID) (*store.Original, error) {
	if _, ok := m.items[id]; !ok {
		return nil, store.ErrNotFound
	}
	return m.original, nil
}

const storedText = "--- PÁGINA 1 (PDF Original: 3) ---\n```\nfirst page   \n```\n\n\n\n--- PÁGINA 2 (PDF Original: 7) ---\nsecond page\n"

func newTranscriptionRouter(records *memRecords) http.Handler {
	h := NewTranscriptionHandler(records, config.DefaultSettings())
	r := chi.NewRouter()
	r.Use(withUser(testUser))
	r.Get("/transcriptions", h.List)
	r.Route("/transcriptions/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Delete)
		r.Put("/text", h.UpdateText)
		r.Put("/tags", h.UpdateTags)
		r.Get("/original", h.Original)
		r.Get("/export.txt", h.ExportText)
		r.Get("/export.pdf", h.ExportPDF)
		r.Get("/pages", h.Pages)
	})
	return r
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTranscriptionHandler_ListFiltersByTag(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	records := &memRecords{items: map[uuid.UUID]*models.Transcription{
		a: {ID: a, Name: "a", Tags: []string{"legal"}},
		b: {ID: b, Name: "b"},
	}}
	r := newTranscriptionRouter(records)

	rec := serve(r, http.MethodGet, "/transcriptions?tag=Legal", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string][]models.Transcription](t, rec)
	require.Len(t, body["transcriptions"], 1)
	assert.Equal(t, a, body["transcriptions"][0].ID)

	rec = serve(r, http.MethodGet, "/transcriptions?tag=none", "")
	assert.JSONEq(t, `{"transcriptions":[]}`, rec.Body.String())
}

func TestTranscriptionHandler_Exports(t *testing.T) {
	id := uuid.New()
	records := &memRecords{items: map[uuid.UUID]*models.Transcription{
		id: {ID: id, Name: "Contract.pdf", Text: storedText},
	}}
	r := newTranscriptionRouter(records)
	base := "/transcriptions/" + id.String()

	rec := serve(r, http.MethodGet, base+"/export.txt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="Contract.txt"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "--- PÁGINA 1 (PDF Original: 3) ---\nfirst page\n\n--- PÁGINA 2 (PDF Original: 7) ---\nsecond page\n", rec.Body.String())

	rec = serve(r, http.MethodGet, base+"/export.pdf", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = serve(r, http.MethodGet, base+"/pages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	pages := decode[map[string][]struct {
		Seq      int `json:"seq"`
		Original int `json:"original"`
	}](t, rec)["pages"]
	require.Len(t, pages, 2)
	assert.Equal(t, 7, pages[1].Original)
}

func TestTranscriptionHandler_Original(t *testing.T) {
	id := uuid.New()
	records := &memRecords{items: map[uuid.UUID]*models.Transcription{id: {ID: id, Name: "x"}}}
	r := newTranscriptionRouter(records)

	rec := serve(r, http.MethodGet, "/transcriptions/"+id.String()+"/original", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	records.original = &store.Original{Name: "scan.pdf", Data: []byte("%PDF-1.7")}
	rec = serve(r, http.MethodGet, "/transcriptions/"+id.String()+"/original", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.7", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "scan.pdf")
}

func TestTranscriptionHandler_Edits(t *testing.T) {
	id := uuid.New()
	records := &memRecords{items: map[uuid.UUID]*models.Transcription{id: {ID: id}}}
	r := newTranscriptionRouter(records)
	base := "/transcriptions/" + id.String()

	rec := serve(r, http.MethodPut, base+"/text", `{"transcription":"edited"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "edited", records.items[id].Text)

	rec = serve(r, http.MethodPut, base+"/tags", `{"tags":[" Legal ","legal","2024"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tags":["Legal","2024"]}`, rec.Body.String())

	rec = serve(r, http.MethodPut, base+"/text", `{"text":"wrong field"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(r, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = serve(r, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- chat ---

type stubChats struct {
	sent []string
	err  error
}

func (s *stubChats) Open(context.Context, uuid.UUID, uuid.UUID) ([]models.ChatMessage, error) {
	return []models.ChatMessage{{ID: "g", Role: models.ChatRoleAssistant, Text: "hello"}}, s.err
}

func (s *stubChats) Send(_ context.Context, _, _ uuid.UUID, text, apiKey string) ([]models.ChatMessage, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.sent = append(s.sent, text+"|"+apiKey)
	return []models.ChatMessage{{ID: "1", Role: models.ChatRoleUser, Text: text}}, nil
}

func TestChatHandler(t *testing.T) {
	chats := &stubChats{}
	h := NewChatHandler(chats)
	r := chi.NewRouter()
	r.Use(withUser(testUser))
	r.Get("/transcriptions/{id}/chat", h.Open)
	r.Post("/transcriptions/{id}/chat", h.Send)
	path := "/transcriptions/" + uuid.NewString() + "/chat"

	rec := serve(r, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"assistant"`)

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"message":"what is the total?"}`))
	req.Header.Set("X-Provider-Key", "sk-header")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"what is the total?|sk-header"}, chats.sent)

	chats.err = store.ErrNotFound
	rec = serve(r, http.MethodPost, path, `{"message":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	chats.err = errors.New("db down")
	rec = serve(r, http.MethodGet, path, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// --- misc ---

type stubCatalog struct{}

func (stubCatalog) Default() llm.ProviderID      { return llm.ProviderGemini }
func (stubCatalog) Configured() []llm.ProviderID { return []llm.ProviderID{llm.ProviderGemini} }

func TestMiscHandler_Estimate(t *testing.T) {
	h := NewMiscHandler(stubCatalog{}, config.DefaultSettings())

	tests := []struct {
		name      string
		query     string
		status    int
		compact   string
		estimated bool
	}{
		{"range", "pages=1-3,%207&total=10", http.StatusOK, "1-3, 7", true},
		{"all pages", "all=true&total=4", http.StatusOK, "1-4", true},
		{"nothing selected", "pages=20&total=4", http.StatusOK, "", false},
		{"bad total", "pages=1&total=x", http.StatusBadRequest, "", false},
		{"bad provider", "pages=1&total=2&provider=acme", http.StatusBadRequest, "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(http.HandlerFunc(h.Estimate), http.MethodGet, "/estimate?"+tc.query, "")
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.status != http.StatusOK {
				return
			}
			body := decode[estimateResponse](t, rec)
			assert.Equal(t, tc.compact, body.PagesCompact)
			assert.Equal(t, tc.estimated, body.Estimate != nil)
		})
	}
}

func TestMiscHandler_Settings(t *testing.T) {
	h := NewMiscHandler(stubCatalog{}, config.DefaultSettings())
	rec := serve(http.HandlerFunc(h.Settings), http.MethodGet, "/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]json.RawMessage](t, rec)
	assert.JSONEq(t, `["gemini"]`, string(body["configured_providers"]))
	assert.JSONEq(t, `{"gemini":false,"openai":true,"anthropic":true}`, string(body["requires_api_key"]))
}

// --- health ---

func TestHealthHandler_Readyz(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{
		"database": PingFunc(func(context.Context) error { return nil }),
		"redis":    PingFunc(func(context.Context) error { return errors.New("connection refused") }),
	})

	rec := serve(http.HandlerFunc(h.Readyz), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")

	rec = serve(http.HandlerFunc(h.Healthz), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
