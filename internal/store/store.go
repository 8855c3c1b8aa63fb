// Package store persists transcription records, their original PDFs and the
// chat threads attached to them.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nikhilbhutani/pagescribe/internal/models"
	"github.com/nikhilbhutani/pagescribe/internal/storage"
)

var (
	ErrNotFound = errors.New("transcription not found")
	// ErrOriginalNotStored is returned with a valid record when the row was
	// written but the source file upload failed.
	ErrOriginalNotStored = errors.New("original file not stored")
)

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db      DB
	objects storage.Storage
	bucket  string
}

func New(db DB, objects storage.Storage, bucket string) *Store {
	return &Store{db: db, objects: objects, bucket: bucket}
}

// NewTranscription is everything needed to create a record.
type NewTranscription struct {
	UserID            uuid.UUID
	Name              string
	FileName          string
	PageSelection     string
	PageCount         int
	OriginalPageCount int
	Provider          string
	Mode              string
	MarkerVersion     int
	Text              string
	Error             string
}

// File is the uploaded original.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

const columns = `id, user_id, name, file_name, file_path, page_selection, page_count,
	original_page_count, provider, mode, marker_version, transcription, error, tags, created_at`

func scanTranscription(row pgx.Row) (*models.Transcription, error) {
	var t models.Transcription
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.FileName, &t.FilePath, &t.PageSelection, &t.PageCount,
		&t.OriginalPageCount, &t.Provider, &t.Mode, &t.MarkerVersion, &t.Text, &t.Error, &t.Tags, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return &t, nil
}

// List returns the user's records, newest first.
func (s *Store) List(ctx context.Context, userID uuid.UUID) ([]models.Transcription, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+columns+` FROM transcriptions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transcriptions: %w", err)
	}
	defer rows.Close()

	out := []models.Transcription{}
	for rows.Next() {
		t, err := scanTranscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transcription: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, userID, id uuid.UUID) (*models.Transcription, error) {
	t, err := scanTranscription(s.db.QueryRow(ctx,
		`SELECT `+columns+` FROM transcriptions WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transcription: %w", err)
	}
	return t, nil
}

// Create inserts the record and then uploads the original. When the upload
// fails the record is still returned, together with ErrOriginalNotStored.
func (s *Store) Create(ctx context.Context, in NewTranscription, file *File) (*models.Transcription, error) {
	if in.PageCount > in.OriginalPageCount {
		return nil, fmt.Errorf("page count %d exceeds original page count %d", in.PageCount, in.OriginalPageCount)
	}

	var errMsg *string
	if in.Error != "" {
		errMsg = &in.Error
	}

	t, err := scanTranscription(s.db.QueryRow(ctx,
		`INSERT INTO transcriptions (user_id, name, file_name, page_selection, page_count,
			original_page_count, provider, mode, marker_version, transcription, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING `+columns,
		in.UserID, in.Name, in.FileName, in.PageSelection, in.PageCount,
		in.OriginalPageCount, in.Provider, in.Mode, in.MarkerVersion, in.Text, errMsg,
	))
	if err != nil {
		return nil, fmt.Errorf("insert transcription: %w", err)
	}

	if file == nil || len(file.Data) == 0 {
		return t, nil
	}

	objectPath := originalPath(t.UserID, t.ID, file.Name)
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	if err := s.objects.Upload(ctx, s.bucket, objectPath, bytes.NewReader(file.Data), contentType); err != nil {
		slog.Error("upload original failed", "transcription_id", t.ID, "error", err)
		return t, fmt.Errorf("%w: %v", ErrOriginalNotStored, err)
	}

	if _, err := s.db.Exec(ctx,
		`UPDATE transcriptions SET file_path = $1 WHERE id = $2`, objectPath, t.ID); err != nil {
		return t, fmt.Errorf("%w: record file path: %v", ErrOriginalNotStored, err)
	}
	t.FilePath = &objectPath
	return t, nil
}

// Delete removes a record owned by userID. The stored original is removed
// on a best-effort basis.
func (s *Store) Delete(ctx context.Context, userID, id uuid.UUID) error {
	var filePath *string
	err := s.db.QueryRow(ctx,
		`SELECT file_path FROM transcriptions WHERE id = $1 AND user_id = $2`, id, userID).Scan(&filePath)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup transcription: %w", err)
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM transcriptions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transcription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if filePath != nil && *filePath != "" {
		if err := s.objects.Delete(ctx, s.bucket, *filePath); err != nil {
			slog.Warn("delete original failed", "transcription_id", id, "path", *filePath, "error", err)
		}
	}
	return nil
}

func (s *Store) UpdateText(ctx context.Context, userID, id uuid.UUID, text string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE transcriptions SET transcription = $1 WHERE id = $2 AND user_id = $3`, text, id, userID)
	if err != nil {
		return fmt.Errorf("update transcription text: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTags replaces the tag set. Tags are trimmed, blanks dropped and
// duplicates removed, keeping first-seen order.
func (s *Store) UpdateTags(ctx context.Context, userID, id uuid.UUID, tags []string) ([]string, error) {
	clean := NormalizeTags(tags)
	tag, err := s.db.Exec(ctx,
		`UPDATE transcriptions SET tags = $1 WHERE id = $2 AND user_id = $3`, clean, id, userID)
	if err != nil {
		return nil, fmt.Errorf("update tags: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return clean, nil
}

func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		out = append(out, t)
	}
	return out
}

// Original is a downloaded source PDF.
type Original struct {
	Name string
	Data []byte
}

// DownloadOriginal returns nil without error when the record has no stored
// file.
func (s *Store) DownloadOriginal(ctx context.Context, userID, id uuid.UUID) (*Original, error) {
	t, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !t.HasOriginal() {
		return nil, nil
	}

	rc, err := s.objects.Download(ctx, s.bucket, *t.FilePath)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("download original: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read original: %w", err)
	}
	return &Original{Name: t.FileName, Data: data}, nil
}

// GetChat returns the stored thread, or nil when none has been saved.
func (s *Store) GetChat(ctx context.Context, userID, transcriptionID uuid.UUID) ([]models.ChatMessage, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT messages FROM chats WHERE user_id = $1 AND transcription_id = $2`,
		userID, transcriptionID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chat: %w", err)
	}

	var msgs []models.ChatMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("decode chat: %w", err)
	}
	return msgs, nil
}

// SaveChat overwrites the whole thread.
func (s *Store) SaveChat(ctx context.Context, userID, transcriptionID uuid.UUID, msgs []models.ChatMessage) error {
	raw, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode chat: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO chats (user_id, transcription_id, messages, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (user_id, transcription_id)
		 DO UPDATE SET messages = EXCLUDED.messages, updated_at = now()`,
		userID, transcriptionID, raw)
	if err != nil {
		return fmt.Errorf("save chat: %w", err)
	}
	return nil
}

func originalPath(userID, id uuid.UUID, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "original.pdf"
	}
	return fmt.Sprintf("%s/%s/%s", userID, id, name)
}
