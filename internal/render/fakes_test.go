package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/ffmpeg"
	"github.com/clipforge/clipforge/internal/models"
)

// fakeSource describes one decodable file in a fakeDecoder.
type fakeSource struct {
	duration  time.Duration
	hasAudio  bool
	failFrame int // emit an error instead of this 1-based frame; 0 = never
}

type fakeDecoder struct {
	sources map[string]fakeSource
}

func (d *fakeDecoder) Probe(ctx context.Context, path string) (*ffmpeg.VideoInfo, error) {
	src, ok := d.sources[path]
	if !ok {
		return nil, fmt.Errorf("no such source %s", path)
	}
	return &ffmpeg.VideoInfo{
		FilePath: path,
		Duration: src.duration,
		Width:    64,
		Height:   64,
		FPS:      30,
		HasAudio: src.hasAudio,
	}, nil
}

func (d *fakeDecoder) OpenVideo(ctx context.Context, path string, start, end time.Duration, fps, width, height int) (FrameReader, error) {
	src, ok := d.sources[path]
	if !ok {
		return nil, fmt.Errorf("no such source %s", path)
	}
	total := int((end-start).Seconds()*float64(fps) + 0.5)
	return &fakeFrameReader{total: total, width: width, height: height, failAt: src.failFrame}, nil
}

func (d *fakeDecoder) OpenAudio(ctx context.Context, path string, start, end time.Duration) (io.ReadCloser, error) {
	if _, ok := d.sources[path]; !ok {
		return nil, fmt.Errorf("no such source %s", path)
	}
	n := int64((end - start).Seconds() * float64(ffmpeg.SampleRate))
	return io.NopCloser(bytes.NewReader(make([]byte, n*ffmpeg.BytesPerFrame))), nil
}

type fakeFrameReader struct {
	total  int
	next   int
	width  int
	height int
	failAt int
	closed bool
}

func (r *fakeFrameReader) ReadFrame() (*image.RGBA, error) {
	r.next++
	if r.failAt > 0 && r.next == r.failAt {
		return nil, fmt.Errorf("decoder blew up at frame %d", r.next)
	}
	if r.next > r.total {
		return nil, io.EOF
	}
	return image.NewRGBA(image.Rect(0, 0, r.width, r.height)), nil
}

func (r *fakeFrameReader) Close() error {
	r.closed = true
	return nil
}

// fakeSink counts frames and audio bytes instead of encoding.
type fakeSink struct {
	mu         sync.Mutex
	frames     int64
	audioBytes int64
	finished   bool
	aborted    bool
	finishData []byte
	finishErr  error
}

func (s *fakeSink) WriteFrame(frame *image.RGBA) error {
	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) AudioWriter() io.Writer {
	return sinkAudioWriter{s}
}

type sinkAudioWriter struct{ s *fakeSink }

func (w sinkAudioWriter) Write(p []byte) (int, error) {
	w.s.mu.Lock()
	w.s.audioBytes += int64(len(p))
	w.s.mu.Unlock()
	return len(p), nil
}

func (s *fakeSink) Frames() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *fakeSink) Finish(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
	if s.finishErr != nil {
		return nil, s.finishErr
	}
	if s.finishData == nil {
		return make([]byte, 2048), nil
	}
	return s.finishData, nil
}

func (s *fakeSink) Abort() {
	s.mu.Lock()
	s.aborted = true
	s.mu.Unlock()
}

// fakeLoader maps URIs to decoder paths and tracks every handle it creates
// so tests can assert they were all released.
type fakeLoader struct {
	files  map[string]string // uri -> local path registered with the decoder
	fail   map[string]error
	loaded []*Handle
}

func (l *fakeLoader) Load(ctx context.Context, uri string) (*Handle, error) {
	if err := l.fail[uri]; err != nil {
		return nil, err
	}
	path, ok := l.files[uri]
	if !ok {
		return nil, fmt.Errorf("%w: unknown uri %s", ErrFetchFailed, uri)
	}
	h := &Handle{path: path}
	l.loaded = append(l.loaded, h)
	return h, nil
}

func (l *fakeLoader) allReleased() bool {
	for _, h := range l.loaded {
		if !h.released {
			return false
		}
	}
	return true
}

type fakeResolver struct {
	clips map[uuid.UUID]*models.ClipReference
}

func (r *fakeResolver) ResolveClip(ctx context.Context, id uuid.UUID) (*models.ClipReference, error) {
	return r.clips[id], nil
}
