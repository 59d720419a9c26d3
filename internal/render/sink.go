package render

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clipforge/clipforge/internal/ffmpeg"
)

// minOutputBytes guards against encoder runs that emit only container
// headers. Anything under this is not a playable file.
const minOutputBytes = 512

// Sink receives composed frames and interleaved PCM audio and turns them
// into a single encoded artifact. Finish returns the artifact bytes after
// validating them; Abort discards everything.
type Sink interface {
	WriteFrame(frame *image.RGBA) error
	AudioWriter() io.Writer
	Frames() int64
	Finish(ctx context.Context) ([]byte, error)
	Abort()
}

// SinkFactory opens a fresh sink for one render job.
type SinkFactory func(ctx context.Context, width, height, fps int) (Sink, error)

type recordSink struct {
	session    *ffmpeg.EncodeSession
	outputPath string
	width      int
	height     int
	frames     atomic.Int64
	logger     zerolog.Logger
}

// NewRecordSinkFactory probes the available encoders once and returns a
// factory that encodes each job into a temp mp4 under tempDir.
func NewRecordSinkFactory(exec *ffmpeg.Executor, tempDir string, logger zerolog.Logger) (SinkFactory, error) {
	encoders, err := exec.ListEncoders(context.Background())
	if err != nil {
		return nil, fmt.Errorf("listing encoders: %w", err)
	}
	codec := ffmpeg.ChooseEncoder(encoders)
	sinkLogger := logger.With().Str("component", "sink").Logger()
	if codec == "" {
		sinkLogger.Warn().Msg("No preferred H.264 encoder found, using platform default")
	} else {
		sinkLogger.Debug().Str("codec", codec).Msg("Selected video encoder")
	}

	return func(ctx context.Context, width, height, fps int) (Sink, error) {
		if err := os.MkdirAll(tempDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating temp dir: %w", err)
		}
		outputPath := filepath.Join(tempDir, fmt.Sprintf("render-%s.mp4", uuid.New().String()))
		session, err := exec.StartEncode(ctx, ffmpeg.EncodeOptions{
			Output:     outputPath,
			Width:      width,
			Height:     height,
			FPS:        fps,
			VideoCodec: codec,
		})
		if err != nil {
			return nil, fmt.Errorf("starting encoder: %w", err)
		}
		return &recordSink{
			session:    session,
			outputPath: outputPath,
			width:      width,
			height:     height,
			logger:     sinkLogger,
		}, nil
	}, nil
}

func (s *recordSink) WriteFrame(frame *image.RGBA) error {
	want := s.width * s.height * 4
	if len(frame.Pix) != want {
		return fmt.Errorf("frame is %d bytes, want %d for %dx%d", len(frame.Pix), want, s.width, s.height)
	}
	if _, err := s.session.VideoWriter().Write(frame.Pix); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	s.frames.Add(1)
	return nil
}

func (s *recordSink) AudioWriter() io.Writer {
	return s.session.AudioWriter()
}

func (s *recordSink) Frames() int64 {
	return s.frames.Load()
}

func (s *recordSink) Finish(ctx context.Context) ([]byte, error) {
	defer os.Remove(s.outputPath)

	if err := s.session.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmptyOutput, err)
	}
	if s.frames.Load() == 0 {
		return nil, fmt.Errorf("%w: no frames were written", ErrEmptyOutput)
	}

	data, err := os.ReadFile(s.outputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading output: %v", ErrEmptyOutput, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: output file is empty", ErrEmptyOutput)
	}
	if len(data) < minOutputBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrOutputTooSmall, len(data))
	}

	s.logger.Debug().
		Int64("frames", s.frames.Load()).
		Int("bytes", len(data)).
		Msg("Capture finished")
	return data, nil
}

func (s *recordSink) Abort() {
	s.session.Kill()
	os.Remove(s.outputPath)
}
