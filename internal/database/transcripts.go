package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// TranscriptRow is the input for inserting a transcript.
type TranscriptRow struct {
	Title         json.RawMessage
	Turns         json.RawMessage
	AudioDuration float64
	LinesPerPage  int
	ContentHash   string
}

// TranscriptAPI is the transcript representation for API responses.
type TranscriptAPI struct {
	ID            int64           `json:"id"`
	Title         json.RawMessage `json:"title_data"`
	Turns         json.RawMessage `json:"turns"`
	AudioDuration float64         `json:"audio_duration"`
	LinesPerPage  int             `json:"lines_per_page"`
	ContentHash   string          `json:"content_hash"`
	AlignedAt     *time.Time      `json:"aligned_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// InsertTranscript stores a new transcript and returns its ID.
func (db *DB) InsertTranscript(ctx context.Context, row *TranscriptRow) (int64, error) {
	title := row.Title
	if len(title) == 0 {
		title = json.RawMessage(`{}`)
	}

	var id int64
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO transcripts (title, turns, audio_duration, lines_per_page, content_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, title, row.Turns, row.AudioDuration, row.LinesPerPage, row.ContentHash).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert transcript: %w", err)
	}
	return id, nil
}

// GetTranscript returns a transcript by ID, or ErrNotFound.
func (db *DB) GetTranscript(ctx context.Context, id int64) (*TranscriptAPI, error) {
	var t TranscriptAPI
	err := db.Pool.QueryRow(ctx, `
		SELECT id, title, turns, audio_duration, lines_per_page, content_hash,
			aligned_at, created_at, updated_at
		FROM transcripts WHERE id = $1
	`, id).Scan(
		&t.ID, &t.Title, &t.Turns, &t.AudioDuration, &t.LinesPerPage, &t.ContentHash,
		&t.AlignedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transcript %d: %w", id, err)
	}
	return &t, nil
}

// ReplaceTurns swaps in re-aligned turns and stamps aligned_at.
func (db *DB) ReplaceTurns(ctx context.Context, id int64, turns json.RawMessage, contentHash string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE transcripts
		SET turns = $2, content_hash = $3, aligned_at = now(), updated_at = now()
		WHERE id = $1
	`, id, turns, contentHash)
	if err != nil {
		return fmt.Errorf("replace turns for transcript %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
