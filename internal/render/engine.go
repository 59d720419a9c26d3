package render

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/clipforge/clipforge/internal/models"
)

// settleDelay gives the encoder a moment after the last frame so trailing
// audio is not clipped from the artifact.
const settleDelay = 500 * time.Millisecond

// State is the engine's job lifecycle. Transitions run strictly
// Idle -> Preparing -> RenderingSegment -> Finalizing -> Completed | Failed,
// then back to Idle when the next job starts.
type State string

const (
	StateIdle      State = "idle"
	StatePreparing State = "preparing"
	StateRendering State = "rendering_segment"
	StateFinalize  State = "finalizing"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// ClipResolver looks up a merge-queue entry at render time. It returns
// (nil, nil) when the id no longer exists; the clip's SourceURL must be
// directly fetchable by the Loader.
type ClipResolver interface {
	ResolveClip(ctx context.Context, id uuid.UUID) (*models.ClipReference, error)
}

// RenderResult is the outcome of a successful render job.
type RenderResult struct {
	Output      []byte
	DurationSec float64
	Segments    int
}

// Engine drives the full render sequence: validate the plan, resolve the
// merge queue, play the trimmed main clip and then each queued clip into one
// capture session, and finalize the artifact. One job runs at a time; a
// second Render call while one is in flight fails fast with
// ErrRenderInFlight.
type Engine struct {
	loader  Loader
	dec     Decoder
	comp    *Compositor
	newSink SinkFactory
	clips   ClipResolver
	fps     int
	settle  time.Duration
	sem     *semaphore.Weighted
	logger  zerolog.Logger

	mu      sync.Mutex
	state   State
	segment int
}

func NewEngine(loader Loader, dec Decoder, comp *Compositor, newSink SinkFactory, clips ClipResolver, fps int, logger zerolog.Logger) *Engine {
	return &Engine{
		loader:  loader,
		dec:     dec,
		comp:    comp,
		newSink: newSink,
		clips:   clips,
		fps:     fps,
		settle:  settleDelay,
		sem:     semaphore.NewWeighted(1),
		logger:  logger.With().Str("component", "engine").Logger(),
	}
}

// State reports the current lifecycle state and, while rendering, the index
// of the segment in flight.
func (e *Engine) State() (State, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.segment
}

func (e *Engine) setState(s State, segment int) {
	e.mu.Lock()
	e.state = s
	e.segment = segment
	e.mu.Unlock()
}

// Render runs one export job to completion. The caller owns mainHandle;
// handles the engine loads for merge-queue entries are always released
// before Render returns, on every path including cancellation.
//
// Render failures are returned as *SegmentError; cancellation returns the
// context error with no partial output.
func (e *Engine) Render(ctx context.Context, plan models.EditPlan, main *models.ClipReference, mainHandle *Handle) (*RenderResult, error) {
	if !e.sem.TryAcquire(1) {
		return nil, ErrRenderInFlight
	}
	defer e.sem.Release(1)

	e.setState(StatePreparing, -1)

	sourceDuration := 0.0
	if main.DurationSec != nil {
		sourceDuration = *main.DurationSec
	}
	if err := plan.Validate(sourceDuration); err != nil {
		return nil, e.fail(-1, fmt.Errorf("%w: %v", ErrInvalidPlan, err))
	}

	queue, err := e.resolveQueue(ctx, plan, main)
	if err != nil {
		e.setState(StateFailed, -1)
		return nil, err
	}

	width, height := main.Aspect.Dimensions()
	sink, err := e.newSink(ctx, width, height, e.fps)
	if err != nil {
		e.setState(StateFailed, -1)
		return nil, fmt.Errorf("opening capture sink: %w", err)
	}

	var loaded []*Handle
	release := func() {
		for _, h := range loaded {
			if err := h.Release(); err != nil {
				e.logger.Warn().Err(err).Msg("Failed to release segment handle")
			}
		}
	}
	defer release()

	player := NewPlayer(e.dec, e.comp, width, height, e.fps, e.logger)
	lastIndex := len(queue)

	e.logger.Info().
		Str("clip_id", main.ID.String()).
		Int("segments", lastIndex+1).
		Str("aspect", string(main.Aspect)).
		Msg("Render job started")

	// Segment 0 is the trimmed, captioned main clip.
	e.setState(StateRendering, 0)
	seg := Segment{
		Handle:  mainHandle,
		Start:   time.Duration(plan.TrimStart * float64(time.Second)),
		End:     time.Duration(plan.TrimEnd * float64(time.Second)),
		Overlay: plan.CaptionText,
	}
	if err := player.Play(ctx, seg, sink); err != nil {
		sink.Abort()
		return nil, e.failOrCanceled(ctx, 0, err)
	}

	// Queued clips play uncut and uncaptioned, in plan order.
	for i, clip := range queue {
		index := i + 1
		e.setState(StateRendering, index)

		handle, err := e.loader.Load(ctx, clip.SourceURL)
		if err != nil {
			sink.Abort()
			return nil, e.failOrCanceled(ctx, index, err)
		}
		loaded = append(loaded, handle)

		if err := player.Play(ctx, Segment{Handle: handle}, sink); err != nil {
			sink.Abort()
			return nil, e.failOrCanceled(ctx, index, err)
		}
	}

	e.setState(StateFinalize, lastIndex)
	select {
	case <-time.After(e.settle):
	case <-ctx.Done():
		sink.Abort()
		e.setState(StateFailed, lastIndex)
		return nil, ctx.Err()
	}

	frames := sink.Frames()
	output, err := sink.Finish(ctx)
	if err != nil {
		return nil, e.fail(lastIndex, err)
	}

	result := &RenderResult{
		Output:      output,
		DurationSec: float64(frames) / float64(e.fps),
		Segments:    lastIndex + 1,
	}
	e.setState(StateCompleted, lastIndex)
	e.logger.Info().
		Int("segments", result.Segments).
		Float64("duration_sec", result.DurationSec).
		Int("bytes", len(output)).
		Msg("Render job completed")
	return result, nil
}

// resolveQueue re-resolves every merge-queue id against current state.
// Entries that vanished, are not ready, or no longer match the main clip's
// aspect class are dropped with a warning rather than failing the job.
func (e *Engine) resolveQueue(ctx context.Context, plan models.EditPlan, main *models.ClipReference) ([]*models.ClipReference, error) {
	queue := make([]*models.ClipReference, 0, len(plan.MergeQueue))
	for _, id := range plan.MergeQueue {
		clip, err := e.clips.ResolveClip(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolving merge clip %s: %w", id, err)
		}
		switch {
		case clip == nil:
			e.logger.Warn().Str("clip_id", id.String()).Msg("Merge clip no longer exists, skipping")
		case clip.Status != models.ClipStatusReady || clip.SourceURL == "":
			e.logger.Warn().Str("clip_id", id.String()).Str("status", string(clip.Status)).Msg("Merge clip not ready, skipping")
		case clip.Aspect != main.Aspect:
			e.logger.Warn().Str("clip_id", id.String()).Str("aspect", string(clip.Aspect)).Msg("Merge clip aspect mismatch, skipping")
		default:
			queue = append(queue, clip)
		}
	}
	return queue, nil
}

func (e *Engine) fail(segment int, err error) *SegmentError {
	e.setState(StateFailed, segment)
	segErr := &SegmentError{Segment: segment, Kind: KindOf(err), Err: err}
	e.logger.Error().
		Int("segment", segment).
		Str("kind", string(segErr.Kind)).
		Err(err).
		Msg("Render job failed")
	return segErr
}

func (e *Engine) failOrCanceled(ctx context.Context, segment int, err error) error {
	if ctx.Err() != nil {
		e.setState(StateFailed, segment)
		e.logger.Info().Int("segment", segment).Msg("Render job canceled")
		return ctx.Err()
	}
	return e.fail(segment, err)
}
