package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicTranscribe_SendsImageAndPrompt(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string           `json:"role"`
			Content []map[string]any `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":" page "},{"type":"text","text":"text\n"}],
			"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":2}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("sk-ant", "claude-test", option.WithBaseURL(srv.URL))
	text, err := p.Transcribe(context.Background(), Image{Data: []byte{1, 2}, MIMEType: "image/jpeg"}, "read it")
	require.NoError(t, err)
	assert.Equal(t, "page text", text)

	assert.Equal(t, "claude-test", got.Model)
	require.Len(t, got.Messages, 1)
	require.Len(t, got.Messages[0].Content, 2)
	assert.Equal(t, "image", got.Messages[0].Content[0]["type"])
	source := got.Messages[0].Content[0]["source"].(map[string]any)
	assert.Equal(t, "image/jpeg", source["media_type"])
	assert.Equal(t, "AQI=", source["data"])
	assert.Equal(t, "read it", got.Messages[0].Content[1]["text"])
}

func TestAnthropicTranscribe_ErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("bad", "", option.WithBaseURL(srv.URL))
	_, err := p.Transcribe(context.Background(), Image{Data: []byte{1}}, "read it")
	require.Error(t, err)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ProviderAnthropic, pe.Provider)
	assert.Equal(t, http.StatusUnauthorized, pe.StatusCode)
	assert.Contains(t, pe.Message, "invalid x-api-key")
}

func TestAnthropicReply_SkipsLeadingGreeting(t *testing.T) {
	var got struct {
		System   []map[string]any `json:"system"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_2","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"May."}],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`))
	}))
	defer srv.Close()

	conv := Conversation{
		System: "doc",
		Turns: []Turn{
			{Role: RoleAssistant, Text: "hi"},
			{Role: RoleUser, Text: "when?"},
			{Role: RoleAssistant, Text: "soon"},
		},
	}
	p := NewAnthropicProvider("sk-ant", "claude-test", option.WithBaseURL(srv.URL))
	reply, err := p.Reply(context.Background(), conv, "which month?")
	require.NoError(t, err)
	assert.Equal(t, "May.", reply)

	require.Len(t, got.System, 1)
	assert.Equal(t, "doc", got.System[0]["text"])
	roles := make([]string, 0, len(got.Messages))
	for _, m := range got.Messages {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []string{"user", "assistant", "user"}, roles)
}
