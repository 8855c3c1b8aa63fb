package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeGenerator struct {
	resp  *genai.GenerateContentResponse
	err   error
	parts []genai.Part
}

func (g *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	g.parts = parts
	return g.resp, g.err
}

func geminiWith(gen *fakeGenerator) (*GeminiProvider, *string) {
	var model string
	p := &GeminiProvider{
		model: "gemini-test",
		generator: func(name string) contentGenerator {
			model = name
			return gen
		},
	}
	return p, &model
}

func textResponse(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
	}
}

func TestGeminiTranscribe_SendsImageThenPrompt(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse(genai.Text(" first "), genai.Text("half\n"))}
	p, model := geminiWith(gen)

	text, err := p.Transcribe(context.Background(), Image{Data: []byte{7, 8}, MIMEType: "image/jpeg"}, "read it")
	require.NoError(t, err)
	assert.Equal(t, "first half", text)
	assert.Equal(t, "gemini-test", *model)

	require.Len(t, gen.parts, 2)
	assert.Equal(t, genai.Blob{MIMEType: "image/jpeg", Data: []byte{7, 8}}, gen.parts[0])
	assert.Equal(t, genai.Text("read it"), gen.parts[1])
}

func TestGeminiTranscribe_Blocked(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want string
	}{
		{
			name: "prompt blocked",
			resp: &genai.GenerateContentResponse{PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockedReasonSafety}},
			want: "prompt blocked: BlockedReasonSafety",
		},
		{
			name: "no candidates",
			resp: &genai.GenerateContentResponse{},
			want: "response contained no candidates",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := geminiWith(&fakeGenerator{resp: tt.resp})
			_, err := p.Transcribe(context.Background(), Image{Data: []byte{1}}, "read it")

			var pe *ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, ProviderGemini, pe.Provider)
			assert.Equal(t, tt.want, pe.Message)
		})
	}
}

func TestGeminiTranscribe_ErrorStatus(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{
			name:    "http error",
			err:     &googleapi.Error{Code: http.StatusTooManyRequests, Message: "quota exceeded"},
			code:    http.StatusTooManyRequests,
			message: "quota exceeded",
		},
		{
			name:    "grpc resource exhausted",
			err:     status.Error(codes.ResourceExhausted, "quota exceeded"),
			code:    http.StatusTooManyRequests,
			message: "quota exceeded",
		},
		{
			name:    "grpc permission denied",
			err:     status.Error(codes.PermissionDenied, "vertex api disabled"),
			code:    http.StatusForbidden,
			message: "vertex api disabled",
		},
		{
			name:    "plain error",
			err:     errors.New("connection reset"),
			code:    0,
			message: "connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := geminiWith(&fakeGenerator{err: tt.err})
			_, err := p.Transcribe(context.Background(), Image{Data: []byte{1}, MIMEType: "image/png"}, "read it")

			var pe *ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.code, pe.StatusCode)
			assert.Equal(t, tt.message, pe.Message)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
