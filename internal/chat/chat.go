// Package chat runs question-and-answer threads over a stored transcription.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/pagescribe/internal/cache"
	"github.com/nikhilbhutani/pagescribe/internal/config"
	"github.com/nikhilbhutani/pagescribe/internal/llm"
	"github.com/nikhilbhutani/pagescribe/internal/models"
	"github.com/nikhilbhutani/pagescribe/internal/prompt"
)

const threadTTL = 30 * time.Minute

var ErrEmptyMessage = errors.New("message is empty")

// Threads is the persistence the service needs. *store.Store implements it.
type Threads interface {
	Get(ctx context.Context, userID, id uuid.UUID) (*models.Transcription, error)
	GetChat(ctx context.Context, userID, transcriptionID uuid.UUID) ([]models.ChatMessage, error)
	SaveChat(ctx context.Context, userID, transcriptionID uuid.UUID, msgs []models.ChatMessage) error
}

// ThreadCache fronts thread reads. *cache.Cache implements it.
type ThreadCache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ModelResolver returns the chat model. *llm.Gateway implements it.
type ModelResolver interface {
	Resolve(id llm.ProviderID, apiKey string) (llm.Provider, error)
}

type Service struct {
	threads  Threads
	cache    ThreadCache
	models   ModelResolver
	provider llm.ProviderID
	settings *config.Settings
	locks    threadLocks
}

// NewService builds a chat service answering with provider. cache may be nil.
func NewService(threads Threads, c ThreadCache, models ModelResolver, provider llm.ProviderID, settings *config.Settings) *Service {
	return &Service{threads: threads, cache: c, models: models, provider: provider, settings: settings}
}

// Open returns the stored thread verbatim, or a single greeting when the
// document has never been discussed. The greeting is not saved until the
// first message is sent.
func (s *Service) Open(ctx context.Context, userID, transcriptionID uuid.UUID) ([]models.ChatMessage, error) {
	if _, err := s.threads.Get(ctx, userID, transcriptionID); err != nil {
		return nil, err
	}
	msgs, err := s.load(ctx, userID, transcriptionID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return []models.ChatMessage{s.greeting()}, nil
	}
	return msgs, nil
}

// Send appends text as a user turn, asks the model and saves the thread. A
// provider failure is recorded in the thread as an error message rather
// than returned.
func (s *Service) Send(ctx context.Context, userID, transcriptionID uuid.UUID, text, apiKey string) ([]models.ChatMessage, error) {
	if text == "" {
		return nil, ErrEmptyMessage
	}
	// one exchange per thread at a time, so a save never drops another's turns
	unlock := s.locks.lock(cacheKey(userID, transcriptionID))
	defer unlock()

	doc, err := s.threads.Get(ctx, userID, transcriptionID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.load(ctx, userID, transcriptionID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		msgs = []models.ChatMessage{s.greeting()}
	}

	conv, err := s.conversation(doc, msgs)
	if err != nil {
		return nil, err
	}
	msgs = append(msgs, models.ChatMessage{ID: uuid.NewString(), Role: models.ChatRoleUser, Text: text})

	reply, err := s.reply(ctx, conv, text, apiKey)
	if err != nil {
		slog.Warn("chat reply failed", "transcription_id", transcriptionID, "error", err)
		msgs = append(msgs, models.ChatMessage{ID: uuid.NewString(), Role: models.ChatRoleError, Text: err.Error()})
	} else {
		msgs = append(msgs, models.ChatMessage{ID: uuid.NewString(), Role: models.ChatRoleAssistant, Text: reply})
	}

	if err := s.threads.SaveChat(ctx, userID, transcriptionID, msgs); err != nil {
		return msgs, fmt.Errorf("save chat: %w", err)
	}
	s.invalidate(ctx, userID, transcriptionID)
	return msgs, nil
}

func (s *Service) reply(ctx context.Context, conv llm.Conversation, text, apiKey string) (string, error) {
	model, err := s.models.Resolve(s.provider, apiKey)
	if err != nil {
		return "", err
	}
	return model.Reply(ctx, conv, text)
}

// conversation turns the stored thread into model input. Error entries are
// local notes and are not replayed.
func (s *Service) conversation(doc *models.Transcription, msgs []models.ChatMessage) (llm.Conversation, error) {
	system, err := prompt.ChatSystem(s.settings, doc.Text)
	if err != nil {
		return llm.Conversation{}, err
	}
	conv := llm.Conversation{System: system}
	for _, m := range msgs {
		switch m.Role {
		case models.ChatRoleUser:
			conv = conv.With(llm.Turn{Role: llm.RoleUser, Text: m.Text})
		case models.ChatRoleAssistant:
			conv = conv.With(llm.Turn{Role: llm.RoleAssistant, Text: m.Text})
		}
	}
	return conv, nil
}

func (s *Service) greeting() models.ChatMessage {
	return models.ChatMessage{ID: "greeting", Role: models.ChatRoleAssistant, Text: s.settings.Prompts.ChatGreeting}
}

func cacheKey(userID, transcriptionID uuid.UUID) string {
	return fmt.Sprintf("chat:%s:%s", userID, transcriptionID)
}

func (s *Service) load(ctx context.Context, userID, transcriptionID uuid.UUID) ([]models.ChatMessage, error) {
	key := cacheKey(userID, transcriptionID)
	if s.cache != nil {
		var cached []models.ChatMessage
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			slog.Warn("chat cache read failed", "key", key, "error", err)
		}
	}

	msgs, err := s.threads.GetChat(ctx, userID, transcriptionID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && len(msgs) > 0 {
		if err := s.cache.Set(ctx, key, msgs, threadTTL); err != nil {
			slog.Warn("chat cache write failed", "key", key, "error", err)
		}
	}
	return msgs, nil
}

func (s *Service) invalidate(ctx context.Context, userID, transcriptionID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKey(userID, transcriptionID)); err != nil {
		slog.Warn("chat cache invalidate failed", "error", err)
	}
}

// threadLocks serializes work per thread key. Entries are dropped once no
// caller holds or waits on them.
type threadLocks struct {
	mu sync.Mutex
	m  map[string]*threadLock
}

type threadLock struct {
	sync.Mutex
	refs int
}

func (l *threadLocks) lock(key string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*threadLock)
	}
	tl, ok := l.m[key]
	if !ok {
		tl = &threadLock{}
		l.m[key] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.Lock()
	return func() {
		tl.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.m, key)
		}
		l.mu.Unlock()
	}
}
