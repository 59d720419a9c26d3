package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// encoderPreference is the codec probe order for the record sink. The first
// encoder present in the capability set wins; an empty result means "let the
// platform pick". The order is fixed so the same environment always selects
// the same codec.
var encoderPreference = []string{
	"libx264",
	"h264_videotoolbox",
	"libopenh264",
	"mpeg4",
}

// ChooseEncoder picks the preferred video encoder from the available set.
// Returns "" when none of the preferred encoders are available, meaning the
// caller should omit -c:v and accept the container default.
func ChooseEncoder(available map[string]bool) string {
	for _, name := range encoderPreference {
		if available[name] {
			return name
		}
	}
	return ""
}

// ListEncoders returns the set of video encoders the local ffmpeg build
// supports, parsed from `ffmpeg -encoders`.
func (e *Executor) ListEncoders(ctx context.Context) (map[string]bool, error) {
	cmd := exec.CommandContext(ctx, e.ffmpegPath, "-hide_banner", "-encoders")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg -encoders failed: %w", err)
	}
	return parseEncoderList(output), nil
}

// parseEncoderList extracts video encoder names from `ffmpeg -encoders`
// output. Lines look like " V..... libx264    libx264 H.264 ..." after a
// separator line of dashes.
func parseEncoderList(output []byte) map[string]bool {
	encoders := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(output))
	inList := false
	for scanner.Scan() {
		line := scanner.Text()
		if !inList {
			if strings.Contains(line, "-----") {
				inList = true
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		// First field is the capability flags; video encoders start with V.
		if strings.HasPrefix(fields[0], "V") {
			encoders[fields[1]] = true
		}
	}
	return encoders
}
