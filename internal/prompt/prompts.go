package prompt

import (
	"fmt"

	"github.com/nikhilbhutani/pagescribe/internal/config"
)

// Mode selects between verbatim transcription and transcription with
// translation into the configured target language.
type Mode string

const (
	ModeTranscribe Mode = "transcribe"
	ModeTranslate  Mode = "translate"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeTranscribe:
		return ModeTranscribe, nil
	case ModeTranslate:
		return ModeTranslate, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// ForPage returns the prompt sent alongside every page image.
func ForPage(s *config.Settings, mode Mode) (string, error) {
	tmpl := s.Prompts.Transcription
	if mode == ModeTranslate {
		tmpl = s.Prompts.Translation
	}
	out, err := Render(tmpl, map[string]string{"language": s.TargetLanguage})
	if err != nil {
		return "", fmt.Errorf("render %s prompt: %w", mode, err)
	}
	return out, nil
}

// ChatSystem embeds the document text in the chat system instruction.
func ChatSystem(s *config.Settings, document string) (string, error) {
	out, err := Render(s.Prompts.ChatSystem, map[string]string{
		"document": document,
		"language": s.TargetLanguage,
	})
	if err != nil {
		return "", fmt.Errorf("render chat prompt: %w", err)
	}
	return out, nil
}
