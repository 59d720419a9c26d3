package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/models"
)

func (db *DB) CreateClip(ctx context.Context, clip *models.ClipReference) error {
	query := `
		INSERT INTO clips (
			id, prompt, duration_sec, aspect, provider, extends_clip, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		clip.ID, clip.Prompt, clip.DurationSec, clip.Aspect, clip.Provider,
		clip.ExtendsClip, clip.Status,
	).Scan(&clip.CreatedAt, &clip.UpdatedAt)
}

func (db *DB) GetClip(ctx context.Context, id uuid.UUID) (*models.ClipReference, error) {
	query := `
		SELECT
			id, prompt, source_url, duration_sec, aspect, provider,
			extends_clip, status, error_message, created_at, updated_at
		FROM clips
		WHERE id = $1
	`

	clip := &models.ClipReference{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&clip.ID, &clip.Prompt, &clip.SourceURL, &clip.DurationSec,
		&clip.Aspect, &clip.Provider, &clip.ExtendsClip, &clip.Status,
		&clip.ErrorMessage, &clip.CreatedAt, &clip.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("clip %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get clip: %w", err)
	}

	return clip, nil
}

// ListClips returns clips ordered by creation date (newest first).
// Supports optional aspect and status filters, limit, and offset for
// pagination; the merge picker filters on aspect so only compatible clips
// are offered.
func (db *DB) ListClips(ctx context.Context, aspect, status string, limit, offset int) ([]models.ClipReference, error) {
	query := `
		SELECT
			id, prompt, source_url, duration_sec, aspect, provider,
			extends_clip, status, error_message, created_at, updated_at
		FROM clips
		WHERE ($1 = '' OR aspect = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := db.QueryContext(ctx, query, aspect, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list clips: %w", err)
	}
	defer rows.Close()

	var clips []models.ClipReference
	for rows.Next() {
		var c models.ClipReference
		if err := rows.Scan(
			&c.ID, &c.Prompt, &c.SourceURL, &c.DurationSec,
			&c.Aspect, &c.Provider, &c.ExtendsClip, &c.Status,
			&c.ErrorMessage, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan clip: %w", err)
		}
		clips = append(clips, c)
	}

	return clips, rows.Err()
}

// CountClips returns the total number of clips matching the same filters as
// ListClips.
func (db *DB) CountClips(ctx context.Context, aspect, status string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM clips WHERE ($1 = '' OR aspect = $1) AND ($2 = '' OR status = $2)`,
		aspect, status,
	).Scan(&count)
	return count, err
}

func (db *DB) UpdateClipStatus(ctx context.Context, id uuid.UUID, status models.ClipStatus) error {
	query := `UPDATE clips SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := db.ExecContext(ctx, query, status, id)
	return err
}

// UpdateClipReady records the stored artifact and measured duration once
// generation succeeds.
func (db *DB) UpdateClipReady(ctx context.Context, id uuid.UUID, sourceURL string, durationSec float64) error {
	query := `
		UPDATE clips
		SET status = $1, source_url = $2, duration_sec = $3, error_message = NULL, updated_at = $4
		WHERE id = $5
	`
	_, err := db.ExecContext(ctx, query, models.ClipStatusReady, sourceURL, durationSec, time.Now(), id)
	return err
}

func (db *DB) UpdateClipError(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE clips
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4
	`
	_, err := db.ExecContext(ctx, query, models.ClipStatusFailed, errorMessage, time.Now(), id)
	return err
}
