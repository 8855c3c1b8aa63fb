package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider talks to Gemini on Vertex AI. Transcription is a one-shot
// GenerateContent call per page; chat builds a session seeded with the
// document as system instruction and the stored history.
type GeminiProvider struct {
	client *genai.Client
	model  string
	// generator builds the model used for one-shot page requests.
	generator func(name string) contentGenerator
}

// contentGenerator is the part of *genai.GenerativeModel transcription uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

func NewGeminiProvider(ctx context.Context, project, location, model, credentialsFile string) (*GeminiProvider, error) {
	if project == "" {
		return nil, fmt.Errorf("gemini: project is required")
	}
	if location == "" {
		location = "us-central1"
	}
	if model == "" {
		model = defaultGeminiModel
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := genai.NewClient(ctx, project, location, opts...)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	p := &GeminiProvider{client: client, model: model}
	p.generator = func(name string) contentGenerator {
		m := client.GenerativeModel(name)
		m.SetTemperature(0)
		return m
	}
	return p, nil
}

func (p *GeminiProvider) Name() ProviderID { return ProviderGemini }

func (p *GeminiProvider) Close() error { return p.client.Close() }

func (p *GeminiProvider) Transcribe(ctx context.Context, img Image, prompt string) (string, error) {
	resp, err := p.generator(p.model).GenerateContent(ctx, genai.ImageData(imageFormat(img.MIMEType), img.Data), genai.Text(prompt))
	if err != nil {
		return "", p.wrapError(err)
	}
	text, ok := extractText(resp)
	if !ok {
		return "", &ProviderError{Provider: ProviderGemini, Message: blockedReason(resp)}
	}
	return text, nil
}

func (p *GeminiProvider) Reply(ctx context.Context, conv Conversation, message string) (string, error) {
	model := p.client.GenerativeModel(p.model)
	if conv.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(conv.System)},
		}
	}

	cs := model.StartChat()
	cs.History = geminiHistory(conv.Turns)

	resp, err := cs.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return "", p.wrapError(err)
	}
	text, ok := extractText(resp)
	if !ok {
		return "", &ProviderError{Provider: ProviderGemini, Message: blockedReason(resp)}
	}
	return text, nil
}

// geminiHistory maps stored turns to session history. Gemini rejects a
// history that opens with a model turn, so leading assistant turns (the
// greeting) are dropped.
func geminiHistory(turns []Turn) []*genai.Content {
	history := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.Role == RoleAssistant {
			if len(history) == 0 {
				continue
			}
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(t.Text)},
		})
	}
	return history
}

func (p *GeminiProvider) wrapError(err error) error {
	pe := &ProviderError{Provider: ProviderGemini, Message: err.Error(), Err: err}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		pe.StatusCode = gErr.Code
		if gErr.Message != "" {
			pe.Message = gErr.Message
		}
		return pe
	}
	// Vertex AI is called over gRPC; its errors carry a status code instead.
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		pe.StatusCode = grpcHTTPStatus(st.Code())
		if st.Message() != "" {
			pe.Message = st.Message()
		}
	}
	return pe
}

func grpcHTTPStatus(c codes.Code) int {
	switch c {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func extractText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", false
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(sb.String()), true
}

func blockedReason(resp *genai.GenerateContentResponse) string {
	if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		return "prompt blocked: " + resp.PromptFeedback.BlockReason.String()
	}
	return "response contained no candidates"
}

// imageFormat converts a MIME type to the short form genai.ImageData wants.
func imageFormat(mimeType string) string {
	if f, ok := strings.CutPrefix(mimeType, "image/"); ok && f != "" {
		return f
	}
	return "png"
}
