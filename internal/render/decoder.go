package render

import (
	"context"
	"image"
	"io"
	"time"

	"github.com/clipforge/clipforge/internal/ffmpeg"
)

// FrameReader yields decoded RGBA frames until the requested range is
// exhausted, then returns io.EOF.
type FrameReader interface {
	ReadFrame() (*image.RGBA, error)
	Close() error
}

// Decoder opens bounded video and audio streams over a local media file.
// A zero end means decode through the end of the file.
type Decoder interface {
	Probe(ctx context.Context, path string) (*ffmpeg.VideoInfo, error)
	OpenVideo(ctx context.Context, path string, start, end time.Duration, fps, width, height int) (FrameReader, error)
	OpenAudio(ctx context.Context, path string, start, end time.Duration) (io.ReadCloser, error)
}

// FFmpegDecoder backs the Decoder interface with ffmpeg subprocesses.
type FFmpegDecoder struct {
	exec *ffmpeg.Executor
}

func NewFFmpegDecoder(exec *ffmpeg.Executor) *FFmpegDecoder {
	return &FFmpegDecoder{exec: exec}
}

func (d *FFmpegDecoder) Probe(ctx context.Context, path string) (*ffmpeg.VideoInfo, error) {
	return d.exec.ProbeVideo(ctx, path)
}

func (d *FFmpegDecoder) OpenVideo(ctx context.Context, path string, start, end time.Duration, fps, width, height int) (FrameReader, error) {
	return d.exec.StartVideoDecode(ctx, ffmpeg.VideoDecodeOptions{
		Input:  path,
		Start:  start,
		End:    end,
		FPS:    fps,
		Width:  width,
		Height: height,
	})
}

func (d *FFmpegDecoder) OpenAudio(ctx context.Context, path string, start, end time.Duration) (io.ReadCloser, error) {
	return d.exec.StartAudioDecode(ctx, ffmpeg.AudioDecodeOptions{
		Input: path,
		Start: start,
		End:   end,
	})
}
