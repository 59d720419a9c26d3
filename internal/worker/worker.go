package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/db"
	"github.com/clipforge/clipforge/internal/ffmpeg"
	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/queue"
	"github.com/clipforge/clipforge/internal/render"
	"github.com/clipforge/clipforge/internal/services"
	"github.com/clipforge/clipforge/internal/storage"
)

const renderRetryDelay = 5 * time.Second

type Worker struct {
	db        *db.DB
	queue     *queue.Queue
	storage   *storage.Storage
	veo       *services.VeoService       // Optional: nil when no Gemini key is configured
	grok      *services.GrokVideoService // Optional: nil when XAI_VIDEO_ENABLED=false
	ffmpeg    *ffmpeg.Executor
	engine    *render.Engine
	loader    render.Loader
	tempDir   string
	uploadSem chan struct{} // Limits concurrent Supabase uploads to prevent congestion
}

func New(
	database *db.DB,
	q *queue.Queue,
	stor *storage.Storage,
	veoSvc *services.VeoService,
	grokSvc *services.GrokVideoService,
	ffmpegExec *ffmpeg.Executor,
	engine *render.Engine,
	loader render.Loader,
	tempDir string,
) *Worker {
	return &Worker{
		db:        database,
		queue:     q,
		storage:   stor,
		veo:       veoSvc,
		grok:      grokSvc,
		ffmpeg:    ffmpegExec,
		engine:    engine,
		loader:    loader,
		tempDir:   tempDir,
		uploadSem: make(chan struct{}, 4),
	}
}

// ClipResolver adapts the database to the render engine's merge-queue
// lookups, translating stored paths into fetchable URLs.
type ClipResolver struct {
	DB      *db.DB
	Storage *storage.Storage
}

func (r *ClipResolver) ResolveClip(ctx context.Context, id uuid.UUID) (*models.ClipReference, error) {
	clip, err := r.DB.GetClip(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if clip.SourceURL != "" {
		clip.SourceURL = r.Storage.GetPublicURL(clip.SourceURL)
	}
	return clip, nil
}

// uploadWithLimit wraps an upload call with a semaphore to prevent Supabase
// congestion.
func (w *Worker) uploadWithLimit(ctx context.Context, label string, fn func() error) error {
	select {
	case w.uploadSem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("upload cancelled while waiting for slot: %w", ctx.Err())
	}
	defer func() { <-w.uploadSem }()

	log.Printf("[Upload] %s uploading...", label)
	return fn()
}

// Start begins processing jobs from all queues
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("Worker started with concurrency: %d", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx, queue.QueueGenerateClip, w.handleGenerateClip)
	}
	// Render jobs are single-flight through the engine, so one consumer is
	// enough; extra consumers would only bounce off ErrRenderInFlight.
	go w.processQueue(ctx, queue.QueueRenderExport, w.handleRenderExport)

	<-ctx.Done()
	log.Println("Worker shutting down...")
}

func (w *Worker) processQueue(ctx context.Context, queueName string, handler func(context.Context, *queue.Job) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(ctx, queueName, 5*time.Second)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("Error dequeuing from %s: %v", queueName, err)
				continue
			}

			if job == nil {
				continue // No job available, retry
			}

			log.Printf("Processing job %s (type: %s)", job.ID, job.Type)

			if err := handler(ctx, job); err != nil {
				log.Printf("Job %s failed: %v", job.ID, err)
			} else {
				log.Printf("Job %s completed successfully", job.ID)
			}
		}
	}
}

// handleGenerateClip runs one clip through its generation provider:
// submit, poll to completion, download, probe, and store.
func (w *Worker) handleGenerateClip(ctx context.Context, job *queue.Job) error {
	if job.ClipID == nil {
		return fmt.Errorf("generate_clip job %s has no clip_id", job.ID)
	}
	clipID := *job.ClipID

	clip, err := w.db.GetClip(ctx, clipID)
	if err != nil {
		return fmt.Errorf("failed to get clip: %w", err)
	}

	if err := w.db.UpdateClipStatus(ctx, clipID, models.ClipStatusGenerating); err != nil {
		return fmt.Errorf("failed to update clip status: %w", err)
	}

	videoBytes, err := w.generateClip(ctx, clip)
	if err != nil {
		w.db.UpdateClipError(ctx, clipID, err.Error())
		return fmt.Errorf("generation failed for clip %s: %w", clipID, err)
	}

	duration, err := w.probeBytes(ctx, videoBytes)
	if err != nil {
		w.db.UpdateClipError(ctx, clipID, err.Error())
		return fmt.Errorf("failed to probe generated clip %s: %w", clipID, err)
	}

	clipPath := storage.ClipPath(clipID)
	if err := w.uploadWithLimit(ctx, clipPath, func() error {
		return w.storage.Upload(ctx, clipPath, videoBytes, "video/mp4")
	}); err != nil {
		w.db.UpdateClipError(ctx, clipID, err.Error())
		return fmt.Errorf("failed to upload clip %s: %w", clipID, err)
	}

	if err := w.db.UpdateClipReady(ctx, clipID, clipPath, duration); err != nil {
		return fmt.Errorf("failed to mark clip ready: %w", err)
	}

	log.Printf("Clip %s ready (%.1fs, %d bytes)", clipID, duration, len(videoBytes))
	return nil
}

// generateClip routes to the configured provider. Extensions are seeded with
// the final frame of the clip being extended so the footage continues from
// where the source left off.
func (w *Worker) generateClip(ctx context.Context, clip *models.ClipReference) ([]byte, error) {
	requestedSec := 0
	if clip.DurationSec != nil {
		requestedSec = int(*clip.DurationSec)
	}

	var frame []byte
	if clip.ExtendsClip != nil {
		var err error
		frame, err = w.extractSourceFrame(ctx, *clip.ExtendsClip)
		if err != nil {
			return nil, fmt.Errorf("failed to extract continuation frame: %w", err)
		}
	}

	switch clip.Provider {
	case "grok":
		if w.grok == nil {
			return nil, fmt.Errorf("grok provider is not configured")
		}
		imageURL := ""
		if frame != nil {
			// Grok takes the seed image by URL, so the frame goes through
			// storage first.
			framePath := storage.FramePath(clip.ID)
			if err := w.storage.Upload(ctx, framePath, frame, "image/png"); err != nil {
				return nil, fmt.Errorf("failed to upload continuation frame: %w", err)
			}
			imageURL = w.storage.GetPublicURL(framePath)
		}
		return w.grok.GenerateClip(ctx, clip.Prompt, clip.Aspect, imageURL, requestedSec)

	case "veo":
		if w.veo == nil {
			return nil, fmt.Errorf("veo provider is not configured")
		}
		if frame != nil {
			return w.veo.ExtendClip(ctx, clip.Prompt, clip.Aspect, frame)
		}
		return w.veo.GenerateClip(ctx, clip.Prompt, clip.Aspect)

	default:
		return nil, fmt.Errorf("unknown provider %q", clip.Provider)
	}
}

// extractSourceFrame downloads the clip being extended and pulls its last
// frame as PNG.
func (w *Worker) extractSourceFrame(ctx context.Context, sourceID uuid.UUID) ([]byte, error) {
	source, err := w.db.GetClip(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if source.Status != models.ClipStatusReady || source.SourceURL == "" {
		return nil, fmt.Errorf("source clip %s is not ready", sourceID)
	}

	data, err := w.storage.Download(ctx, source.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download source clip: %w", err)
	}

	localPath, cleanup, err := w.writeTemp(data, "extend-*.mp4")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return w.ffmpeg.ExtractLastFrame(ctx, localPath)
}

// handleRenderExport runs one export job through the render engine and
// stores the artifact.
func (w *Worker) handleRenderExport(ctx context.Context, job *queue.Job) error {
	if job.ExportID == nil {
		return fmt.Errorf("render_export job %s has no export_id", job.ID)
	}
	exportID := *job.ExportID

	export, err := w.db.GetExport(ctx, exportID)
	if err != nil {
		return fmt.Errorf("failed to get export: %w", err)
	}

	if err := w.db.UpdateExportStatus(ctx, exportID, models.ExportStatusRendering); err != nil {
		return fmt.Errorf("failed to update export status: %w", err)
	}

	clip, err := w.db.GetClip(ctx, export.Plan.ClipID)
	if err != nil || clip.Status != models.ClipStatusReady || clip.SourceURL == "" {
		msg := "main clip is not ready"
		if err != nil {
			msg = err.Error()
		}
		w.db.UpdateExportFailed(ctx, exportID, nil, string(render.KindInvalidPlan), msg)
		return fmt.Errorf("export %s: %s", exportID, msg)
	}

	mainHandle, err := w.loader.Load(ctx, w.storage.GetPublicURL(clip.SourceURL))
	if err != nil {
		w.db.UpdateExportFailed(ctx, exportID, nil, string(render.KindOf(err)), err.Error())
		return fmt.Errorf("export %s: failed to load main clip: %w", exportID, err)
	}
	defer mainHandle.Release()

	result, err := w.engine.Render(ctx, export.Plan, clip, mainHandle)
	if err != nil {
		return w.recordRenderFailure(ctx, exportID, err)
	}

	artifactPath := storage.ExportPath(clip.ID, exportID)
	if err := w.uploadWithLimit(ctx, artifactPath, func() error {
		return w.storage.Upload(ctx, artifactPath, result.Output, "video/mp4")
	}); err != nil {
		w.db.UpdateExportFailed(ctx, exportID, nil, "upload_failed", err.Error())
		return fmt.Errorf("export %s: failed to upload artifact: %w", exportID, err)
	}

	if err := w.db.UpdateExportCompleted(ctx, exportID, artifactPath, result.DurationSec); err != nil {
		return fmt.Errorf("failed to mark export completed: %w", err)
	}

	log.Printf("Export %s completed (%d segments, %.1fs, %d bytes)",
		exportID, result.Segments, result.DurationSec, len(result.Output))
	return nil
}

func (w *Worker) recordRenderFailure(ctx context.Context, exportID uuid.UUID, err error) error {
	// Shutdown mid-render: leave the export in rendering state for a restart
	// to pick up rather than marking it failed.
	if ctx.Err() != nil {
		return fmt.Errorf("export %s interrupted: %w", exportID, err)
	}

	if errors.Is(err, render.ErrRenderInFlight) {
		log.Printf("Export %s deferred: engine busy, re-enqueueing in %v", exportID, renderRetryDelay)
		time.Sleep(renderRetryDelay)
		if err := w.db.UpdateExportStatus(ctx, exportID, models.ExportStatusQueued); err != nil {
			return fmt.Errorf("failed to requeue export: %w", err)
		}
		return w.queue.EnqueueRenderExport(ctx, exportID)
	}

	var segErr *render.SegmentError
	if errors.As(err, &segErr) {
		// Only merge-queue entries get flagged, and only for failures that
		// belong to one segment. Finalize failures record the last segment in
		// flight but are not that entry's fault, so they carry no index.
		var failedSegment *int
		if segErr.Segment > 0 && segErr.Kind.SegmentScoped() {
			failedSegment = &segErr.Segment
		}
		w.db.UpdateExportFailed(ctx, exportID, failedSegment, string(segErr.Kind), segErr.Err.Error())
		return fmt.Errorf("export %s: %w", exportID, err)
	}

	w.db.UpdateExportFailed(ctx, exportID, nil, "internal", err.Error())
	return fmt.Errorf("export %s: %w", exportID, err)
}

// probeBytes measures the duration of an in-memory video.
func (w *Worker) probeBytes(ctx context.Context, data []byte) (float64, error) {
	localPath, cleanup, err := w.writeTemp(data, "probe-*.mp4")
	if err != nil {
		return 0, err
	}
	defer cleanup()

	info, err := w.ffmpeg.ProbeVideo(ctx, localPath)
	if err != nil {
		return 0, err
	}
	return info.Duration.Seconds(), nil
}

func (w *Worker) writeTemp(data []byte, pattern string) (string, func(), error) {
	if err := os.MkdirAll(w.tempDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	f, err := os.CreateTemp(w.tempDir, pattern)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	name := f.Name()
	return name, func() { os.Remove(name) }, nil
}
