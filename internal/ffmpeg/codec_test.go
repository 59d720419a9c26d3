package ffmpeg

import "testing"

const sampleEncoderOutput = `Encoders:
 V..... = Video
 A..... = Audio
 S..... = Subtitle
 .F.... = Frame-level multithreading
 ------
 V....D a64multi             Multicolor charset for Commodore 64 (codec a64_multi)
 V..... libopenh264          OpenH264 H.264 / AVC / MPEG-4 AVC / MPEG-4 part 10 (codec h264)
 V..... libx264              libx264 H.264 / AVC / MPEG-4 AVC / MPEG-4 part 10 (codec h264)
 V..... mpeg4                MPEG-4 part 2
 A....D aac                  AAC (Advanced Audio Coding)
 A....D ac3                  ATSC A/52A (AC-3)
 S..... ass                  ASS (Advanced SubStation Alpha) subtitle
`

func TestParseEncoderList(t *testing.T) {
	encoders := parseEncoderList([]byte(sampleEncoderOutput))

	for _, want := range []string{"libx264", "libopenh264", "mpeg4", "a64multi"} {
		if !encoders[want] {
			t.Errorf("expected video encoder %q in set", want)
		}
	}

	for _, audio := range []string{"aac", "ac3", "ass"} {
		if encoders[audio] {
			t.Errorf("non-video encoder %q should not be in set", audio)
		}
	}
}

func TestParseEncoderListIgnoresHeader(t *testing.T) {
	// The legend above the separator also starts lines with V.
	encoders := parseEncoderList([]byte(sampleEncoderOutput))
	if encoders["="] {
		t.Error("legend line leaked into encoder set")
	}
}

func TestChooseEncoder(t *testing.T) {
	tests := []struct {
		name      string
		available map[string]bool
		want      string
	}{
		{
			name:      "libx264 wins when present",
			available: map[string]bool{"libx264": true, "mpeg4": true, "libopenh264": true},
			want:      "libx264",
		},
		{
			name:      "videotoolbox over openh264",
			available: map[string]bool{"h264_videotoolbox": true, "libopenh264": true},
			want:      "h264_videotoolbox",
		},
		{
			name:      "falls through to mpeg4",
			available: map[string]bool{"mpeg4": true, "a64multi": true},
			want:      "mpeg4",
		},
		{
			name:      "empty means platform default",
			available: map[string]bool{"a64multi": true},
			want:      "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChooseEncoder(tt.available); got != tt.want {
				t.Errorf("ChooseEncoder() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChooseEncoderDeterministic(t *testing.T) {
	available := map[string]bool{"libx264": true, "h264_videotoolbox": true, "mpeg4": true}
	first := ChooseEncoder(available)
	for i := 0; i < 100; i++ {
		if got := ChooseEncoder(available); got != first {
			t.Fatalf("selection changed between calls: %q then %q", first, got)
		}
	}
}
