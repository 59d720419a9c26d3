package services

import "testing"

func TestClampGrokDuration(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, xaiDefaultDuration},
		{-3, xaiDefaultDuration},
		{1, 1},
		{8, 8},
		{15, 15},
		{40, xaiMaxDuration},
	}
	for _, tt := range tests {
		if got := clampGrokDuration(tt.in); got != tt.want {
			t.Errorf("clampGrokDuration(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
