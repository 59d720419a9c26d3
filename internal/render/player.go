package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clipforge/clipforge/internal/ffmpeg"
)

// silenceChunkFrames is how many PCM sample frames each silence write
// covers, about 100ms at a time.
const silenceChunkFrames = ffmpeg.SampleRate / 10

// Segment is one playback unit of a render job: a local source plus an
// optional time range and caption. A zero End means play to the end of the
// source.
type Segment struct {
	Handle  *Handle
	Start   time.Duration
	End     time.Duration
	Overlay string
}

// Player decodes one segment, composes every frame, and feeds the result
// into the sink. Video and audio are pumped concurrently; sources without an
// audio track get silence of matching length so the encoder timeline never
// drifts.
type Player struct {
	dec    Decoder
	comp   *Compositor
	width  int
	height int
	fps    int
	logger zerolog.Logger
}

func NewPlayer(dec Decoder, comp *Compositor, width, height, fps int, logger zerolog.Logger) *Player {
	return &Player{
		dec:    dec,
		comp:   comp,
		width:  width,
		height: height,
		fps:    fps,
		logger: logger.With().Str("component", "player").Logger(),
	}
}

// Play renders the segment into the sink. Decoder and compose failures wrap
// ErrPlayback; an early end of the source stream is treated as normal
// completion, matching sources whose container duration overstates the
// decodable length.
func (p *Player) Play(ctx context.Context, seg Segment, sink Sink) error {
	info, err := p.dec.Probe(ctx, seg.Handle.Path())
	if err != nil {
		return fmt.Errorf("%w: probing source: %v", ErrPlayback, err)
	}

	end := seg.End
	if end <= 0 || end > info.Duration {
		end = info.Duration
	}
	span := end - seg.Start
	if span <= 0 {
		return fmt.Errorf("%w: segment range [%s, %s] is empty", ErrPlayback, seg.Start, end)
	}

	frames, err := p.dec.OpenVideo(ctx, seg.Handle.Path(), seg.Start, end, p.fps, p.width, p.height)
	if err != nil {
		return fmt.Errorf("%w: opening video stream: %v", ErrPlayback, err)
	}

	// The first frame is composed and written before the audio pump starts
	// so the capture never opens on an empty canvas.
	first, err := frames.ReadFrame()
	if err != nil {
		frames.Close()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: source produced no frames", ErrPlayback)
		}
		return fmt.Errorf("%w: decoding first frame: %v", ErrPlayback, err)
	}
	if err := sink.WriteFrame(p.comp.Compose(first, seg.Overlay, p.width, p.height)); err != nil {
		frames.Close()
		return fmt.Errorf("%w: %v", ErrPlayback, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer frames.Close()
		written := int64(1)
		for {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			frame, err := frames.ReadFrame()
			if errors.Is(err, io.EOF) {
				p.logger.Debug().Int64("frames", written).Msg("Video stream drained")
				return nil
			}
			if err != nil {
				return fmt.Errorf("%w: decoding frame %d: %v", ErrPlayback, written, err)
			}
			if err := sink.WriteFrame(p.comp.Compose(frame, seg.Overlay, p.width, p.height)); err != nil {
				return fmt.Errorf("%w: %v", ErrPlayback, err)
			}
			written++
		}
	})

	g.Go(func() error {
		if !info.HasAudio {
			return p.writeSilence(gctx, sink, span)
		}
		audio, err := p.dec.OpenAudio(gctx, seg.Handle.Path(), seg.Start, end)
		if err != nil {
			return fmt.Errorf("%w: opening audio stream: %v", ErrPlayback, err)
		}
		_, copyErr := io.Copy(sink.AudioWriter(), audio)
		closeErr := audio.Close()
		if copyErr != nil {
			return fmt.Errorf("%w: pumping audio: %v", ErrPlayback, copyErr)
		}
		if closeErr != nil {
			return fmt.Errorf("%w: draining audio stream: %v", ErrPlayback, closeErr)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// writeSilence substitutes a zeroed PCM stream for sources without an audio
// track, keeping the audio timeline aligned with the video.
func (p *Player) writeSilence(ctx context.Context, sink Sink, span time.Duration) error {
	total := int64(span.Seconds() * float64(ffmpeg.SampleRate))
	chunk := make([]byte, silenceChunkFrames*ffmpeg.BytesPerFrame)
	w := sink.AudioWriter()
	for total > 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n := int64(silenceChunkFrames)
		if n > total {
			n = total
		}
		if _, err := w.Write(chunk[:n*ffmpeg.BytesPerFrame]); err != nil {
			return fmt.Errorf("%w: writing silence: %v", ErrPlayback, err)
		}
		total -= n
	}
	return nil
}
