package render

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clipforge/clipforge/internal/models"
)

type engineFixture struct {
	engine   *Engine
	loader   *fakeLoader
	decoder  *fakeDecoder
	resolver *fakeResolver
	sink     *fakeSink
	main     *models.ClipReference
	handle   *Handle
}

// newEngineFixture builds an engine over a 5s main clip and two ready merge
// candidates of 3s and 4s, all square, at 10fps.
func newEngineFixture(t *testing.T) (*engineFixture, uuid.UUID, uuid.UUID) {
	t.Helper()

	mainID := uuid.New()
	clipB := uuid.New()
	clipC := uuid.New()

	decoder := &fakeDecoder{sources: map[string]fakeSource{
		"main.mp4": {duration: 5 * time.Second, hasAudio: true},
		"b.mp4":    {duration: 3 * time.Second, hasAudio: true},
		"c.mp4":    {duration: 4 * time.Second, hasAudio: false},
	}}
	loader := &fakeLoader{
		files: map[string]string{
			"uri-b": "b.mp4",
			"uri-c": "c.mp4",
		},
		fail: map[string]error{},
	}
	dur := 5.0
	main := &models.ClipReference{
		ID:          mainID,
		Aspect:      models.AspectSquare,
		Status:      models.ClipStatusReady,
		SourceURL:   "uri-main",
		DurationSec: &dur,
	}
	resolver := &fakeResolver{clips: map[uuid.UUID]*models.ClipReference{
		clipB: {ID: clipB, Aspect: models.AspectSquare, Status: models.ClipStatusReady, SourceURL: "uri-b"},
		clipC: {ID: clipC, Aspect: models.AspectSquare, Status: models.ClipStatusReady, SourceURL: "uri-c"},
	}}

	sink := &fakeSink{}
	factory := func(ctx context.Context, width, height, fps int) (Sink, error) {
		return sink, nil
	}

	engine := NewEngine(loader, decoder, newTestCompositor(t), factory, resolver, 10, zerolog.Nop())
	engine.settle = time.Millisecond

	return &engineFixture{
		engine:   engine,
		loader:   loader,
		decoder:  decoder,
		resolver: resolver,
		sink:     sink,
		main:     main,
		handle:   &Handle{path: "main.mp4"},
	}, clipB, clipC
}

func TestEngineRenderSequence(t *testing.T) {
	f, clipB, clipC := newEngineFixture(t)

	plan := models.EditPlan{
		ClipID:      f.main.ID,
		TrimStart:   0.5,
		TrimEnd:     4.5,
		CaptionText: "day one",
		MergeQueue:  []uuid.UUID{clipB, clipC},
	}

	result, err := f.engine.Render(context.Background(), plan, f.main, f.handle)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	if result.Segments != 3 {
		t.Errorf("segments = %d, want 3", result.Segments)
	}
	// 4s trimmed main + 3s + 4s at 10fps.
	if got := f.sink.Frames(); got != 110 {
		t.Errorf("frames = %d, want 110", got)
	}
	if math.Abs(result.DurationSec-11.0) > 0.01 {
		t.Errorf("duration = %.2fs, want 11.00s", result.DurationSec)
	}
	if len(result.Output) == 0 {
		t.Error("completed render returned no output bytes")
	}

	if !f.loader.allReleased() {
		t.Error("engine leaked segment handles after completion")
	}

	state, _ := f.engine.State()
	if state != StateCompleted {
		t.Errorf("state = %s, want %s", state, StateCompleted)
	}
}

func TestEngineEmptyMergeQueue(t *testing.T) {
	f, _, _ := newEngineFixture(t)

	plan := models.EditPlan{ClipID: f.main.ID, TrimStart: 0, TrimEnd: 5}
	result, err := f.engine.Render(context.Background(), plan, f.main, f.handle)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}
	if result.Segments != 1 {
		t.Errorf("segments = %d, want 1", result.Segments)
	}
	if got := f.sink.Frames(); got != 50 {
		t.Errorf("frames = %d, want 50", got)
	}
}

func TestEngineFailsWithSegmentIndexOnFetchError(t *testing.T) {
	f, clipB, clipC := newEngineFixture(t)
	f.loader.fail["uri-c"] = fmt.Errorf("%w: origin said no", ErrFetchFailed)

	plan := models.EditPlan{
		ClipID:     f.main.ID,
		TrimStart:  0,
		TrimEnd:    5,
		MergeQueue: []uuid.UUID{clipB, clipC},
	}

	_, err := f.engine.Render(context.Background(), plan, f.main, f.handle)

	var segErr *SegmentError
	if !errors.As(err, &segErr) {
		t.Fatalf("Render() error = %v, want *SegmentError", err)
	}
	if segErr.Segment != 2 {
		t.Errorf("failed segment = %d, want 2", segErr.Segment)
	}
	if segErr.Kind != KindFetchFailed {
		t.Errorf("kind = %s, want %s", segErr.Kind, KindFetchFailed)
	}

	if !f.sink.aborted {
		t.Error("failed render did not abort the sink")
	}
	if f.sink.finished {
		t.Error("failed render must not produce output")
	}
	if !f.loader.allReleased() {
		t.Error("engine leaked segment handles after failure")
	}

	state, segment := f.engine.State()
	if state != StateFailed || segment != 2 {
		t.Errorf("state = %s/%d, want %s/2", state, segment, StateFailed)
	}
}

func TestEngineSkipsVanishedAndMismatchedClips(t *testing.T) {
	f, clipB, _ := newEngineFixture(t)

	vanished := uuid.New()
	wrongAspect := uuid.New()
	f.resolver.clips[wrongAspect] = &models.ClipReference{
		ID:        wrongAspect,
		Aspect:    models.AspectLandscape,
		Status:    models.ClipStatusReady,
		SourceURL: "uri-wide",
	}

	plan := models.EditPlan{
		ClipID:     f.main.ID,
		TrimStart:  0,
		TrimEnd:    5,
		MergeQueue: []uuid.UUID{vanished, clipB, wrongAspect},
	}

	result, err := f.engine.Render(context.Background(), plan, f.main, f.handle)
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}

	// Only the compatible ready clip survives: main + clipB.
	if result.Segments != 2 {
		t.Errorf("segments = %d, want 2", result.Segments)
	}
	if got := f.sink.Frames(); got != 80 {
		t.Errorf("frames = %d, want 80 (5s main + 3s merge)", got)
	}
}

func TestEngineRejectsInvalidPlan(t *testing.T) {
	f, _, _ := newEngineFixture(t)

	plan := models.EditPlan{
		ClipID:    f.main.ID,
		TrimStart: 4.5,
		TrimEnd:   0.5,
	}

	_, err := f.engine.Render(context.Background(), plan, f.main, f.handle)

	var segErr *SegmentError
	if !errors.As(err, &segErr) {
		t.Fatalf("Render() error = %v, want *SegmentError", err)
	}
	if segErr.Kind != KindInvalidPlan {
		t.Errorf("kind = %s, want %s", segErr.Kind, KindInvalidPlan)
	}
	if segErr.Segment != -1 {
		t.Errorf("segment = %d, want -1 (no segment rendered)", segErr.Segment)
	}
}

func TestEngineSingleFlight(t *testing.T) {
	f, _, _ := newEngineFixture(t)

	if !f.engine.sem.TryAcquire(1) {
		t.Fatal("fresh engine should be idle")
	}
	defer f.engine.sem.Release(1)

	plan := models.EditPlan{ClipID: f.main.ID, TrimStart: 0, TrimEnd: 5}
	_, err := f.engine.Render(context.Background(), plan, f.main, f.handle)
	if !errors.Is(err, ErrRenderInFlight) {
		t.Errorf("Render() error = %v, want ErrRenderInFlight", err)
	}
}

func TestEngineFinalizeFailurePropagatesKind(t *testing.T) {
	f, _, _ := newEngineFixture(t)
	f.sink.finishErr = fmt.Errorf("%w: 12 bytes", ErrOutputTooSmall)

	plan := models.EditPlan{ClipID: f.main.ID, TrimStart: 0, TrimEnd: 5}
	_, err := f.engine.Render(context.Background(), plan, f.main, f.handle)

	var segErr *SegmentError
	if !errors.As(err, &segErr) {
		t.Fatalf("Render() error = %v, want *SegmentError", err)
	}
	if segErr.Kind != KindOutputTooSmall {
		t.Errorf("kind = %s, want %s", segErr.Kind, KindOutputTooSmall)
	}
	if segErr.Segment != 0 {
		t.Errorf("segment = %d, want 0 (last rendered segment)", segErr.Segment)
	}
}

func TestEngineFinalizeFailureWithMergeQueueIsNotSegmentScoped(t *testing.T) {
	f, clipB, _ := newEngineFixture(t)
	f.sink.finishErr = fmt.Errorf("%w: 12 bytes", ErrOutputTooSmall)

	plan := models.EditPlan{
		ClipID:     f.main.ID,
		TrimStart:  0,
		TrimEnd:    5,
		MergeQueue: []uuid.UUID{clipB},
	}
	_, err := f.engine.Render(context.Background(), plan, f.main, f.handle)

	var segErr *SegmentError
	if !errors.As(err, &segErr) {
		t.Fatalf("Render() error = %v, want *SegmentError", err)
	}
	// The last merge entry happened to be in flight, but a finalize failure
	// is the encoder's, not that entry's: it must not be flagged downstream.
	if segErr.Segment != 1 {
		t.Errorf("segment = %d, want 1 (last in flight)", segErr.Segment)
	}
	if segErr.Kind != KindOutputTooSmall {
		t.Errorf("kind = %s, want %s", segErr.Kind, KindOutputTooSmall)
	}
	if segErr.Kind.SegmentScoped() {
		t.Errorf("%s must not be segment scoped", segErr.Kind)
	}
}

func TestEngineFailsWithSegmentIndexOnPlaybackError(t *testing.T) {
	f, clipB, _ := newEngineFixture(t)
	src := f.decoder.sources["b.mp4"]
	src.failFrame = 5
	f.decoder.sources["b.mp4"] = src

	plan := models.EditPlan{
		ClipID:     f.main.ID,
		TrimStart:  0,
		TrimEnd:    5,
		MergeQueue: []uuid.UUID{clipB},
	}
	_, err := f.engine.Render(context.Background(), plan, f.main, f.handle)

	var segErr *SegmentError
	if !errors.As(err, &segErr) {
		t.Fatalf("Render() error = %v, want *SegmentError", err)
	}
	if segErr.Segment != 1 {
		t.Errorf("failed segment = %d, want 1", segErr.Segment)
	}
	if segErr.Kind != KindPlayback {
		t.Errorf("kind = %s, want %s", segErr.Kind, KindPlayback)
	}
	if !segErr.Kind.SegmentScoped() {
		t.Errorf("%s should be segment scoped", segErr.Kind)
	}
	if !f.sink.aborted {
		t.Error("failed render did not abort the sink")
	}
	if !f.loader.allReleased() {
		t.Error("engine leaked segment handles after failure")
	}
}

func TestEngineCancellationAborts(t *testing.T) {
	f, clipB, clipC := newEngineFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan := models.EditPlan{
		ClipID:     f.main.ID,
		TrimStart:  0,
		TrimEnd:    5,
		MergeQueue: []uuid.UUID{clipB, clipC},
	}

	_, err := f.engine.Render(ctx, plan, f.main, f.handle)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Render() error = %v, want context.Canceled", err)
	}
	if !f.sink.aborted {
		t.Error("cancelled render did not abort the sink")
	}
	if f.sink.finished {
		t.Error("cancelled render must not produce output")
	}
	if !f.loader.allReleased() {
		t.Error("engine leaked segment handles after cancellation")
	}
}
