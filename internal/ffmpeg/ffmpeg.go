package ffmpeg

import (
	"bytes"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"
)

const (
	// Tail of stderr kept per process for diagnostics.
	maxStderrBytes = 8 * 1024

	// Audio leg of every decode/encode pipe: interleaved stereo s16le.
	SampleRate    = 44100
	Channels      = 2
	BytesPerFrame = Channels * 2 // one sample across all channels
)

// Executor wraps the ffmpeg and ffprobe binaries. All decode and encode
// operations in the render engine go through it.
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
}

// New creates a new ffmpeg executor, resolving both binaries from PATH.
func New(logger zerolog.Logger) (*Executor, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	return &Executor{
		logger:      logger.With().Str("component", "ffmpeg").Logger(),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}, nil
}

// stderrTail is an io.Writer that keeps only the last maxStderrBytes bytes.
type stderrTail struct {
	buf bytes.Buffer
}

func (t *stderrTail) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if t.buf.Len() > maxStderrBytes {
		b := t.buf.Bytes()
		t.buf.Reset()
		t.buf.Write(b[len(b)-maxStderrBytes:])
	}
	return n, nil
}

func (t *stderrTail) String() string {
	return t.buf.String()
}
