package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// ExtractLastFrame returns the final frame of the video as PNG bytes.
// Seeking from the end of file keeps this cheap on long inputs.
func (e *Executor) ExtractLastFrame(ctx context.Context, filePath string) ([]byte, error) {
	args := []string{
		"-hide_banner",
		"-sseof", "-0.5",
		"-i", filePath,
		"-frames:v", "1",
		"-f", "image2",
		"-c:v", "png",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	var stdout bytes.Buffer
	stderr := &stderrTail{}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	e.logger.Debug().Strs("args", args).Msg("Extracting last frame")

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("extracting last frame of %s: %w (stderr: %s)", filePath, err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("extracting last frame of %s: no image data produced", filePath)
	}
	return stdout.Bytes(), nil
}
