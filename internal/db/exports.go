package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/models"
)

func (db *DB) CreateExport(ctx context.Context, export *models.Export) error {
	planJSON, err := json.Marshal(export.Plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	query := `
		INSERT INTO exports (
			id, clip_id, plan, status
		) VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		export.ID, export.ClipID, planJSON, export.Status,
	).Scan(&export.CreatedAt, &export.UpdatedAt)
}

func (db *DB) GetExport(ctx context.Context, id uuid.UUID) (*models.Export, error) {
	query := `
		SELECT
			id, clip_id, plan, status, failed_segment, error_kind,
			error_message, artifact_path, duration_sec, created_at, updated_at
		FROM exports
		WHERE id = $1
	`

	export := &models.Export{}
	var planJSON []byte
	err := db.QueryRowContext(ctx, query, id).Scan(
		&export.ID, &export.ClipID, &planJSON, &export.Status,
		&export.FailedSegment, &export.ErrorKind, &export.ErrorMessage,
		&export.ArtifactPath, &export.DurationSec,
		&export.CreatedAt, &export.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("export %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get export: %w", err)
	}

	if err := json.Unmarshal(planJSON, &export.Plan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
	}

	return export, nil
}

// ListClipExports returns all exports derived from one clip, newest first.
func (db *DB) ListClipExports(ctx context.Context, clipID uuid.UUID) ([]models.Export, error) {
	query := `
		SELECT
			id, clip_id, plan, status, failed_segment, error_kind,
			error_message, artifact_path, duration_sec, created_at, updated_at
		FROM exports
		WHERE clip_id = $1
		ORDER BY created_at DESC
	`

	rows, err := db.QueryContext(ctx, query, clipID)
	if err != nil {
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}
	defer rows.Close()

	var exports []models.Export
	for rows.Next() {
		var e models.Export
		var planJSON []byte
		if err := rows.Scan(
			&e.ID, &e.ClipID, &planJSON, &e.Status,
			&e.FailedSegment, &e.ErrorKind, &e.ErrorMessage,
			&e.ArtifactPath, &e.DurationSec,
			&e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan export: %w", err)
		}
		if err := json.Unmarshal(planJSON, &e.Plan); err != nil {
			return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
		}
		exports = append(exports, e)
	}

	return exports, rows.Err()
}

func (db *DB) UpdateExportStatus(ctx context.Context, id uuid.UUID, status models.ExportStatus) error {
	query := `UPDATE exports SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := db.ExecContext(ctx, query, status, id)
	return err
}

// UpdateExportCompleted records the stored artifact and its measured
// duration.
func (db *DB) UpdateExportCompleted(ctx context.Context, id uuid.UUID, artifactPath string, durationSec float64) error {
	query := `
		UPDATE exports
		SET status = $1, artifact_path = $2, duration_sec = $3,
		    failed_segment = NULL, error_kind = NULL, error_message = NULL,
		    updated_at = $4
		WHERE id = $5
	`
	_, err := db.ExecContext(ctx, query, models.ExportStatusCompleted, artifactPath, durationSec, time.Now(), id)
	return err
}

// UpdateExportFailed records which segment broke the render and why.
// failedSegment may be nil when the failure was not tied to one segment.
func (db *DB) UpdateExportFailed(ctx context.Context, id uuid.UUID, failedSegment *int, errorKind, errorMessage string) error {
	query := `
		UPDATE exports
		SET status = $1, failed_segment = $2, error_kind = $3, error_message = $4, updated_at = $5
		WHERE id = $6
	`
	_, err := db.ExecContext(ctx, query, models.ExportStatusFailed, failedSegment, errorKind, errorMessage, time.Now(), id)
	return err
}
