package ffmpeg

import (
	"math"
	"testing"
	"time"
)

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"30/1", 30},
		{"30000/1001", 29.97002997},
		{"25", 25},
		{"0/0", 0},
		{"garbage", 0},
	}

	for _, tt := range tests {
		got := parseFrameRate(tt.input)
		if math.Abs(got-tt.want) > 0.0001 {
			t.Errorf("parseFrameRate(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		input time.Duration
		want  string
	}{
		{0, "0.000"},
		{1500 * time.Millisecond, "1.500"},
		{time.Minute + 250*time.Millisecond, "60.250"},
	}

	for _, tt := range tests {
		if got := formatSeconds(tt.input); got != tt.want {
			t.Errorf("formatSeconds(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestStderrTailKeepsLastBytes(t *testing.T) {
	tail := &stderrTail{}

	chunk := make([]byte, 1024)
	for i := range chunk {
		chunk[i] = 'a'
	}
	for i := 0; i < 20; i++ {
		if _, err := tail.Write(chunk); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	tail.Write([]byte("the end"))

	s := tail.String()
	if len(s) > maxStderrBytes {
		t.Errorf("tail grew to %d bytes, cap is %d", len(s), maxStderrBytes)
	}
	if s[len(s)-7:] != "the end" {
		t.Errorf("tail lost the most recent write, got %q", s[len(s)-7:])
	}
}
