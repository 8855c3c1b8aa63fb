package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings holds the user-facing preferences that the transcription driver,
// the chat service and the export handlers receive explicitly.
type Settings struct {
	Prompts        PromptSettings `yaml:"prompts" json:"prompts"`
	TargetLanguage string         `yaml:"target_language" json:"target_language"`
	Render         RenderSettings `yaml:"render" json:"render"`
	MarkerVersion  int            `yaml:"marker_version" json:"marker_version"`
	Export         ExportSettings `yaml:"export" json:"export"`

	// Retry is shown on the settings screen only. Nothing in the
	// transcription path reads it.
	Retry RetrySettings `yaml:"retry" json:"retry"`
}

type PromptSettings struct {
	Transcription string `yaml:"transcription" json:"transcription"`
	Translation   string `yaml:"translation" json:"translation"`
	ChatSystem    string `yaml:"chat_system" json:"chat_system"`
	ChatGreeting  string `yaml:"chat_greeting" json:"chat_greeting"`
}

type RenderSettings struct {
	PreviewScale    float64 `yaml:"preview_scale" json:"preview_scale"`
	PreviewMaxPages int     `yaml:"preview_max_pages" json:"preview_max_pages"`
	PageScale       float64 `yaml:"page_scale" json:"page_scale"`
	ImageFormat     string  `yaml:"image_format" json:"image_format"` // png or jpeg
}

type ExportSettings struct {
	HeaderBanner string `yaml:"header_banner" json:"header_banner"`
	FooterBanner string `yaml:"footer_banner" json:"footer_banner"`
}

type RetrySettings struct {
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
	BackoffMs   int `yaml:"backoff_ms" json:"backoff_ms"`
}

const (
	defaultTranscriptionPrompt = `Transcribe ALL text visible in this page image exactly as written.
Preserve paragraphs, lists, headings and tables (use markdown tables).
Do not summarize, translate or comment. Return only the transcribed text.`

	defaultTranslationPrompt = `Transcribe ALL text visible in this page image and translate it into {{language}}.
Preserve paragraphs, lists, headings and tables (use markdown tables).
Return only the translated text, without notes or commentary.`

	defaultChatSystem = `You are an assistant that answers questions about a single transcribed document.
Answer only from the document below. If the answer is not in the document, say so.
Page boundaries are marked with lines like "--- PÁGINA n ---".

DOCUMENT:
{{document}}`

	defaultChatGreeting = "Hello! I have read this transcription. Ask me anything about its content."
)

// DefaultSettings returns the settings used when no settings file is given.
func DefaultSettings() *Settings {
	return &Settings{
		Prompts: PromptSettings{
			Transcription: defaultTranscriptionPrompt,
			Translation:   defaultTranslationPrompt,
			ChatSystem:    defaultChatSystem,
			ChatGreeting:  defaultChatGreeting,
		},
		TargetLanguage: "Portuguese",
		Render: RenderSettings{
			PreviewScale:    0.5,
			PreviewMaxPages: 20,
			PageScale:       2.0,
			ImageFormat:     "jpeg",
		},
		MarkerVersion: 2,
		Export: ExportSettings{
			HeaderBanner: "AI-generated transcription. Review against the original document.",
			FooterBanner: "This document may contain transcription errors.",
		},
		Retry: RetrySettings{
			MaxAttempts: 3,
			BackoffMs:   1000,
		},
	}
}

// LoadSettings reads a YAML settings file on top of the defaults. An empty
// path returns the defaults.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse settings file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("settings file %s: %w", path, err)
	}
	return s, nil
}

func (s *Settings) Validate() error {
	if s.Render.PreviewScale <= 0 || s.Render.PageScale <= 0 {
		return fmt.Errorf("render scales must be positive")
	}
	if s.Render.PreviewMaxPages < 0 {
		return fmt.Errorf("preview_max_pages must not be negative")
	}
	switch s.Render.ImageFormat {
	case "png", "jpeg":
	default:
		return fmt.Errorf("image_format must be png or jpeg, got %q", s.Render.ImageFormat)
	}
	if s.MarkerVersion != 1 && s.MarkerVersion != 2 {
		return fmt.Errorf("marker_version must be 1 or 2, got %d", s.MarkerVersion)
	}
	for _, p := range []struct{ key, value string }{
		{"transcription", s.Prompts.Transcription},
		{"translation", s.Prompts.Translation},
		{"chat_system", s.Prompts.ChatSystem},
		{"chat_greeting", s.Prompts.ChatGreeting},
	} {
		if strings.TrimSpace(p.value) == "" {
			return fmt.Errorf("prompts.%s is required", p.key)
		}
	}
	return nil
}
