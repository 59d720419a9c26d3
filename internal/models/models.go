package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Enums
type ClipStatus string

const (
	ClipStatusQueued     ClipStatus = "queued"
	ClipStatusGenerating ClipStatus = "generating"
	ClipStatusReady      ClipStatus = "ready"
	ClipStatusFailed     ClipStatus = "failed"
)

type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRendering ExportStatus = "rendering"
	ExportStatusCompleted ExportStatus = "completed"
	ExportStatusFailed    ExportStatus = "failed"
)

// AspectClass is the aspect-ratio family a clip belongs to. Clips can only be
// merged with clips of the same class because they share one output canvas.
type AspectClass string

const (
	AspectPortrait  AspectClass = "9:16"
	AspectLandscape AspectClass = "16:9"
	AspectSquare    AspectClass = "1:1"
)

// Dimensions returns the render canvas size for this aspect class at 720p.
func (a AspectClass) Dimensions() (width, height int) {
	switch a {
	case AspectLandscape:
		return 1280, 720
	case AspectSquare:
		return 720, 720
	default: // portrait
		return 720, 1280
	}
}

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Models

// ClipReference identifies one generated clip in the history collection.
// Immutable once the clip reaches ready: the source URL and duration never
// change after the generation provider hands the file back.
type ClipReference struct {
	ID           uuid.UUID   `json:"id"`
	Prompt       string      `json:"prompt"`
	SourceURL    string      `json:"source_url,omitempty"`   // storage path of the finished clip
	DurationSec  *float64    `json:"duration_sec,omitempty"` // requested until ready, then measured by probing
	Aspect       AspectClass `json:"aspect"`
	Provider     string      `json:"provider"`               // "veo" or "grok"
	ExtendsClip  *uuid.UUID  `json:"extends_clip,omitempty"` // set when this clip extends another
	Status       ClipStatus  `json:"status"`
	ErrorMessage *string     `json:"error_message,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// EditPlan is the user's trim/caption/merge configuration. Mutable while the
// user edits; the render engine takes a read-only snapshot at export time.
type EditPlan struct {
	ClipID      uuid.UUID   `json:"clip_id"`
	TrimStart   float64     `json:"trim_start"`
	TrimEnd     float64     `json:"trim_end"`
	CaptionText string      `json:"caption_text,omitempty"`
	MergeQueue  []uuid.UUID `json:"merge_queue,omitempty"`
}

// MinSegmentSec is the smallest trim window an EditPlan may carry. Anything
// shorter renders fewer frames than the encoder can flush.
const MinSegmentSec = 0.1

// Validate checks the plan's trim invariants against the source duration.
// sourceDuration <= 0 means the duration is unknown and only the relative
// invariants are checked.
func (p EditPlan) Validate(sourceDuration float64) error {
	if p.TrimStart < 0 {
		return fmt.Errorf("trim start %.3fs is negative", p.TrimStart)
	}
	if p.TrimEnd-p.TrimStart < MinSegmentSec {
		return fmt.Errorf("trim window [%.3f, %.3f) is shorter than %.1fs", p.TrimStart, p.TrimEnd, MinSegmentSec)
	}
	if sourceDuration > 0 && p.TrimEnd > sourceDuration {
		return fmt.Errorf("trim end %.3fs exceeds source duration %.3fs", p.TrimEnd, sourceDuration)
	}
	return nil
}

// Export is one render job derived from an EditPlan snapshot. FailedSegment
// and ErrorKind are persisted so the presentation layer can flag the exact
// merge-queue entry that broke the job.
type Export struct {
	ID            uuid.UUID    `json:"id"`
	ClipID        uuid.UUID    `json:"clip_id"`
	Plan          EditPlan     `json:"plan"`
	Status        ExportStatus `json:"status"`
	FailedSegment *int         `json:"failed_segment,omitempty"`
	ErrorKind     *string      `json:"error_kind,omitempty"`
	ErrorMessage  *string      `json:"error_message,omitempty"`
	ArtifactPath  *string      `json:"artifact_path,omitempty"`
	DurationSec   *float64     `json:"duration_sec,omitempty"` // measured duration of the artifact
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// DTOs for API responses

type CreateClipRequest struct {
	Prompt      string       `json:"prompt"`
	Aspect      *AspectClass `json:"aspect,omitempty"`   // Default: "9:16"
	Provider    *string      `json:"provider,omitempty"` // Default: configured provider
	DurationSec *int         `json:"duration_sec,omitempty"`
}

type CreateClipResponse struct {
	ClipID uuid.UUID  `json:"clip_id"`
	Status ClipStatus `json:"status"`
}

type ClipResponse struct {
	ClipReference
	ClipURL *string `json:"clip_url,omitempty"`
}

type ListClipsResponse struct {
	Clips  []ClipResponse `json:"clips"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type ExtendClipRequest struct {
	Prompt string `json:"prompt"`
}

type CreateExportRequest struct {
	Plan EditPlan `json:"plan"`
}

type CreateExportResponse struct {
	ExportID uuid.UUID    `json:"export_id"`
	Status   ExportStatus `json:"status"`
}

type ExportResponse struct {
	Export
	ArtifactURL *string `json:"artifact_url,omitempty"`
}
