package models

import (
	"time"

	"github.com/google/uuid"
)

// Transcription is one persisted job result, successful or not.
type Transcription struct {
	ID                uuid.UUID `json:"id" db:"id"`
	UserID            uuid.UUID `json:"user_id" db:"user_id"`
	Name              string    `json:"name" db:"name"`
	FileName          string    `json:"file_name" db:"file_name"`
	FilePath          *string   `json:"-" db:"file_path"`
	PageSelection     string    `json:"page_selection" db:"page_selection"`
	PageCount         int       `json:"page_count" db:"page_count"`
	OriginalPageCount int       `json:"original_page_count" db:"original_page_count"`
	Provider          string    `json:"provider" db:"provider"`
	Mode              string    `json:"mode" db:"mode"`
	MarkerVersion     int       `json:"marker_version" db:"marker_version"`
	Text              string    `json:"transcription" db:"transcription"`
	Error             *string   `json:"error,omitempty" db:"error"`
	Tags              []string  `json:"tags" db:"tags"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// HasOriginal reports whether the source PDF was stored with the record.
func (t *Transcription) HasOriginal() bool {
	return t.FilePath != nil && *t.FilePath != ""
}

// Failed reports whether the run that produced t ended in an error.
func (t *Transcription) Failed() bool {
	return t.Error != nil && *t.Error != ""
}

const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
	ChatRoleError     = "error"
)

// ChatMessage is one entry of a document chat thread.
type ChatMessage struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	Text string `json:"text"`
}
