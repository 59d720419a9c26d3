package models

import (
	"encoding/json"
	"testing"
)

func TestEditPlanValidate(t *testing.T) {
	tests := []struct {
		name           string
		plan           EditPlan
		sourceDuration float64
		wantErr        bool
	}{
		{
			name:           "valid trim window",
			plan:           EditPlan{TrimStart: 0.5, TrimEnd: 4.5},
			sourceDuration: 5.0,
			wantErr:        false,
		},
		{
			name:           "full clip",
			plan:           EditPlan{TrimStart: 0, TrimEnd: 5.0},
			sourceDuration: 5.0,
			wantErr:        false,
		},
		{
			name:           "negative start",
			plan:           EditPlan{TrimStart: -1, TrimEnd: 4},
			sourceDuration: 5.0,
			wantErr:        true,
		},
		{
			name:           "window below minimum",
			plan:           EditPlan{TrimStart: 2.0, TrimEnd: 2.05},
			sourceDuration: 5.0,
			wantErr:        true,
		},
		{
			name:           "inverted window",
			plan:           EditPlan{TrimStart: 4, TrimEnd: 2},
			sourceDuration: 5.0,
			wantErr:        true,
		},
		{
			name:           "end past source duration",
			plan:           EditPlan{TrimStart: 0, TrimEnd: 6.0},
			sourceDuration: 5.0,
			wantErr:        true,
		},
		{
			name:           "unknown duration skips absolute check",
			plan:           EditPlan{TrimStart: 0, TrimEnd: 100},
			sourceDuration: 0,
			wantErr:        false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate(tt.sourceDuration)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAspectDimensions(t *testing.T) {
	tests := []struct {
		aspect AspectClass
		width  int
		height int
	}{
		{AspectPortrait, 720, 1280},
		{AspectLandscape, 1280, 720},
		{AspectSquare, 720, 720},
	}

	for _, tt := range tests {
		w, h := tt.aspect.Dimensions()
		if w != tt.width || h != tt.height {
			t.Errorf("%s: got %dx%d, want %dx%d", tt.aspect, w, h, tt.width, tt.height)
		}
	}
}

func TestEditPlanRoundTrip(t *testing.T) {
	plan := EditPlan{
		TrimStart:   1.5,
		TrimEnd:     7.25,
		CaptionText: "golden hour",
	}

	data, err := json.Marshal(plan)
	if err != nil {
		t.Fatalf("failed to marshal plan: %v", err)
	}

	var decoded EditPlan
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal plan: %v", err)
	}

	if decoded.TrimStart != plan.TrimStart || decoded.TrimEnd != plan.TrimEnd {
		t.Errorf("trim window changed in round trip: got [%v, %v]", decoded.TrimStart, decoded.TrimEnd)
	}
	if decoded.CaptionText != plan.CaptionText {
		t.Errorf("caption changed in round trip: got %q", decoded.CaptionText)
	}
}

func TestJSONBScan(t *testing.T) {
	jsonData := []byte(`{"color": "blue", "size": 10}`)

	var j JSONB
	if err := j.Scan(jsonData); err != nil {
		t.Fatalf("failed to scan: %v", err)
	}

	if j["color"] != "blue" {
		t.Errorf("expected color=blue, got %v", j["color"])
	}

	if j["size"].(float64) != 10 {
		t.Errorf("expected size=10, got %v", j["size"])
	}
}

func TestClipStatus(t *testing.T) {
	statuses := []ClipStatus{
		ClipStatusQueued,
		ClipStatusGenerating,
		ClipStatusReady,
		ClipStatusFailed,
	}

	for _, status := range statuses {
		if status == "" {
			t.Errorf("empty status found")
		}
	}
}
