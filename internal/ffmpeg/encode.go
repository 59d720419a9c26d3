package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// EncodeOptions configures the record sink's encoder process. The process
// consumes raw RGBA frames on stdin and s16le stereo PCM on fd 3, and writes
// one container file to Output.
type EncodeOptions struct {
	Output     string
	Width      int
	Height     int
	FPS        int
	VideoCodec string // empty = container default
}

// EncodeSession is a running encoder. Frames and audio are fed through the
// two writers; Close flushes the container.
type EncodeSession struct {
	cmd     *exec.Cmd
	video   io.WriteCloser
	audio   *os.File
	stderr  *stderrTail
	waited  bool
	waitErr error
}

// StartEncode spawns the encoder. Both input pipes must be fed; a segment
// without an audio track gets silence written on the audio leg so the muxer
// keeps the streams aligned.
func (e *Executor) StartEncode(ctx context.Context, opts EncodeOptions) (*EncodeSession, error) {
	if opts.Output == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if opts.Width <= 0 || opts.Height <= 0 || opts.FPS <= 0 {
		return nil, fmt.Errorf("dimensions and fps are required")
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-r", fmt.Sprintf("%d", opts.FPS),
		"-i", "pipe:0",
		"-f", "s16le",
		"-ac", fmt.Sprintf("%d", Channels),
		"-ar", fmt.Sprintf("%d", SampleRate),
		"-i", "pipe:3",
	}
	if opts.VideoCodec != "" {
		args = append(args, "-c:v", opts.VideoCodec)
	}
	args = append(args,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		"-y",
		opts.Output,
	)

	e.logger.Debug().
		Str("output", opts.Output).
		Str("codec", opts.VideoCodec).
		Int("width", opts.Width).
		Int("height", opts.Height).
		Msg("starting encoder")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	tail := &stderrTail{}
	cmd.Stderr = tail

	video, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create video pipe: %w", err)
	}

	// The audio leg rides on fd 3 via ExtraFiles.
	audioRd, audioWr, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create audio pipe: %w", err)
	}
	cmd.ExtraFiles = []*os.File{audioRd}

	if err := cmd.Start(); err != nil {
		audioRd.Close()
		audioWr.Close()
		return nil, fmt.Errorf("failed to start encoder: %w", err)
	}

	// Child holds its own copy of the read end now.
	audioRd.Close()

	return &EncodeSession{
		cmd:    cmd,
		video:  video,
		audio:  audioWr,
		stderr: tail,
	}, nil
}

// VideoWriter is the raw RGBA frame input.
func (s *EncodeSession) VideoWriter() io.Writer {
	return s.video
}

// AudioWriter is the s16le PCM input.
func (s *EncodeSession) AudioWriter() io.Writer {
	return s.audio
}

// Close shuts both input pipes and waits for the encoder to flush the
// container. The error carries the stderr tail on a non-zero exit.
func (s *EncodeSession) Close() error {
	s.video.Close()
	s.audio.Close()
	if s.waited {
		return s.waitErr
	}
	s.waited = true
	if err := s.cmd.Wait(); err != nil {
		s.waitErr = fmt.Errorf("encoder exited: %w (stderr: %s)", err, s.stderr.String())
		return s.waitErr
	}
	return nil
}

// Kill aborts the encoder without waiting for a flush. Used on hard cancel.
func (s *EncodeSession) Kill() {
	s.video.Close()
	s.audio.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	if !s.waited {
		s.waited = true
		s.waitErr = s.cmd.Wait()
	}
}
