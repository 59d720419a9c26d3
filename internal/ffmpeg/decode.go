package ffmpeg

import (
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"
	"time"
)

// seekEpsilon is the smallest offset worth an input seek. Seeking below it
// would just re-decode the same keyframe the stream opens on.
const seekEpsilon = 100 * time.Millisecond

// VideoDecodeOptions configures a raw frame decode over a bounded time range.
type VideoDecodeOptions struct {
	Input  string
	Start  time.Duration
	End    time.Duration // zero = decode to end of source
	FPS    int           // output frame cadence
	Width  int           // native frame size from probe
	Height int
}

// FrameStream reads decoded RGBA frames from a running ffmpeg process, one
// frame per Read. The stream ends with io.EOF when the range is exhausted.
type FrameStream struct {
	cmd       *exec.Cmd
	out       io.ReadCloser
	stderr    *stderrTail
	width     int
	height    int
	frameSize int
	waited    bool
}

// StartVideoDecode spawns a decoder over [Start, End) emitting raw RGBA
// frames at the requested cadence.
func (e *Executor) StartVideoDecode(ctx context.Context, opts VideoDecodeOptions) (*FrameStream, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("frame dimensions are required")
	}
	if opts.FPS <= 0 {
		return nil, fmt.Errorf("fps is required")
	}

	args := []string{"-hide_banner", "-loglevel", "error"}

	// Input seek only when the offset is meaningfully far from zero.
	if opts.Start >= seekEpsilon {
		args = append(args, "-ss", formatSeconds(opts.Start))
	}
	args = append(args, "-i", opts.Input)
	if opts.End > opts.Start {
		args = append(args, "-t", formatSeconds(opts.End-opts.Start))
	}
	args = append(args,
		"-vf", fmt.Sprintf("fps=%d", opts.FPS),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-an",
		"pipe:1",
	)

	e.logger.Debug().Str("input", opts.Input).Strs("args", args).Msg("starting video decode")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	tail := &stderrTail{}
	cmd.Stderr = tail

	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start decoder: %w", err)
	}

	return &FrameStream{
		cmd:       cmd,
		out:       out,
		stderr:    tail,
		width:     opts.Width,
		height:    opts.Height,
		frameSize: opts.Width * opts.Height * 4,
	}, nil
}

// ReadFrame returns the next decoded frame, or io.EOF when the range is
// exhausted. A truncated trailing frame is treated as end of stream.
func (s *FrameStream) ReadFrame() (*image.RGBA, error) {
	buf := make([]byte, s.frameSize)
	if _, err := io.ReadFull(s.out, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("frame read failed: %w", err)
	}
	return &image.RGBA{
		Pix:    buf,
		Stride: s.width * 4,
		Rect:   image.Rect(0, 0, s.width, s.height),
	}, nil
}

// Close drains the process and reports a non-zero exit as an error with the
// stderr tail attached. Safe to call after io.EOF.
func (s *FrameStream) Close() error {
	s.out.Close()
	if s.waited {
		return nil
	}
	s.waited = true
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("decoder exited: %w (stderr: %s)", err, s.stderr.String())
	}
	return nil
}

// AudioDecodeOptions configures a PCM extraction over a bounded time range.
type AudioDecodeOptions struct {
	Input string
	Start time.Duration
	End   time.Duration // zero = decode to end of source
}

// AudioStream reads interleaved s16le stereo samples from a running ffmpeg
// process.
type AudioStream struct {
	cmd    *exec.Cmd
	out    io.ReadCloser
	stderr *stderrTail
	waited bool
}

// StartAudioDecode spawns a PCM decoder over [Start, End) for the source's
// audio track. The caller must have verified the source has one.
func (e *Executor) StartAudioDecode(ctx context.Context, opts AudioDecodeOptions) (*AudioStream, error) {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if opts.Start >= seekEpsilon {
		args = append(args, "-ss", formatSeconds(opts.Start))
	}
	args = append(args, "-i", opts.Input)
	if opts.End > opts.Start {
		args = append(args, "-t", formatSeconds(opts.End-opts.Start))
	}
	args = append(args,
		"-vn",
		"-f", "s16le",
		"-ac", fmt.Sprintf("%d", Channels),
		"-ar", fmt.Sprintf("%d", SampleRate),
		"pipe:1",
	)

	e.logger.Debug().Str("input", opts.Input).Msg("starting audio decode")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	tail := &stderrTail{}
	cmd.Stderr = tail

	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start audio decoder: %w", err)
	}

	return &AudioStream{cmd: cmd, out: out, stderr: tail}, nil
}

func (s *AudioStream) Read(p []byte) (int, error) {
	return s.out.Read(p)
}

func (s *AudioStream) Close() error {
	s.out.Close()
	if s.waited {
		return nil
	}
	s.waited = true
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("audio decoder exited: %w (stderr: %s)", err, s.stderr.String())
	}
	return nil
}

// formatSeconds renders a duration as fractional seconds for ffmpeg args.
func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
