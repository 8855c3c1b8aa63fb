package llm

import (
	"context"
	"encoding/base64"
	"fmt"
)

// ProviderID names one of the vision-capable services a page can be sent to.
type ProviderID string

const (
	ProviderGemini    ProviderID = "gemini"
	ProviderOpenAI    ProviderID = "openai"
	ProviderAnthropic ProviderID = "anthropic"
)

// ParseProvider validates a provider identifier coming from a request.
func ParseProvider(s string) (ProviderID, error) {
	switch p := ProviderID(s); p {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
		return p, nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}

// RequiresAPIKey reports whether jobs on this provider need a caller or
// server supplied API key. Gemini authenticates through Google credentials.
func RequiresAPIKey(p ProviderID) bool {
	return p == ProviderOpenAI || p == ProviderAnthropic
}

// Transcriber turns one page image into text.
type Transcriber interface {
	Transcribe(ctx context.Context, img Image, prompt string) (string, error)
	Name() ProviderID
}

// ChatModel answers a user message given the conversation so far. The
// conversation is passed in full on every call; implementations keep no
// session state between calls.
type ChatModel interface {
	Reply(ctx context.Context, conv Conversation, message string) (string, error)
}

// Image is an encoded page bitmap.
type Image struct {
	Data     []byte
	MIMEType string // image/png or image/jpeg
}

func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURL returns the image as a data: URL.
func (i Image) DataURL() string {
	mimeType := i.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, i.Base64())
}

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one exchanged message.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Conversation is the full chat state handed to a ChatModel.
type Conversation struct {
	System string `json:"system"`
	Turns  []Turn `json:"turns"`
}

// With returns a copy of c with the given turns appended.
func (c Conversation) With(turns ...Turn) Conversation {
	next := Conversation{System: c.System, Turns: make([]Turn, 0, len(c.Turns)+len(turns))}
	next.Turns = append(next.Turns, c.Turns...)
	next.Turns = append(next.Turns, turns...)
	return next
}

// ProviderError is returned by every adapter when the upstream service fails
// or answers with something that is not a transcription.
type ProviderError struct {
	Provider   ProviderID
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }
