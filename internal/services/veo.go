package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/clipforge/clipforge/internal/models"
)

// ---------------------------------------------------------------------------
// Veo Video Generation Service
// Uses the Google Gen AI SDK to generate clips from text prompts, optionally
// seeded with a first-frame image when extending an existing clip.
// ---------------------------------------------------------------------------

const (
	defaultVeoModel    = "veo-3.1-generate-preview"
	veoPollInterval    = 10 * time.Second
	veoMaxPollDuration = 5 * time.Minute // Max time to wait for a single clip
)

// VeoService handles clip generation via Google's Veo models.
type VeoService struct {
	apiKey string
	model  string
}

// NewVeoService creates a new Veo generation service.
// model: the Veo model to use (empty string defaults to veo-3.1-generate-preview)
func NewVeoService(apiKey, model string) *VeoService {
	if model == "" {
		model = defaultVeoModel
	}
	return &VeoService{
		apiKey: apiKey,
		model:  model,
	}
}

// GenerateClip generates a clip from a text prompt.
//
// The async operation is polled internally with a hard timeout. This blocks
// the calling goroutine, which fits the worker architecture where each job
// runs in its own goroutine.
//
// Returns the raw video bytes (MP4) or an error.
func (s *VeoService) GenerateClip(ctx context.Context, prompt string, aspect models.AspectClass) ([]byte, error) {
	return s.generate(ctx, prompt, aspect, nil)
}

// ExtendClip generates a continuation clip seeded with the final frame of
// the source clip, so the new footage picks up where the source left off.
//
// frameData: raw bytes of the source clip's last frame (PNG)
func (s *VeoService) ExtendClip(ctx context.Context, prompt string, aspect models.AspectClass, frameData []byte) ([]byte, error) {
	firstFrame := &genai.Image{
		ImageBytes: frameData,
		MIMEType:   "image/png",
	}
	return s.generate(ctx, prompt, aspect, firstFrame)
}

func (s *VeoService) generate(ctx context.Context, prompt string, aspect models.AspectClass, firstFrame *genai.Image) ([]byte, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	config := &genai.GenerateVideosConfig{
		AspectRatio:      string(aspect),
		Resolution:       "720p",
		PersonGeneration: "allow_adult",
		NumberOfVideos:   1,
	}

	log.Printf("[Veo] Starting generation (model=%s, promptLen=%d, aspect=%s, hasFrame=%v)",
		s.model, len(prompt), aspect, firstFrame != nil)

	operation, err := client.Models.GenerateVideos(ctx, s.model, prompt, firstFrame, config)
	if err != nil {
		return nil, fmt.Errorf("failed to start video generation: %w", err)
	}

	log.Printf("[Veo] Operation started: %s", operation.Name)

	// Poll until done, cancelled, or timed out
	deadline := time.Now().Add(veoMaxPollDuration)
	pollCount := 0
	for !operation.Done {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("video generation timed out after %v (polled %d times)", veoMaxPollDuration, pollCount)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("video generation cancelled: %w", ctx.Err())
		case <-time.After(veoPollInterval):
		}

		pollCount++
		operation, err = client.Operations.GetVideosOperation(ctx, operation, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to poll operation (attempt %d): %w", pollCount, err)
		}

		log.Printf("[Veo] Poll %d: done=%v", pollCount, operation.Done)
	}

	if operation.Error != nil && len(operation.Error) > 0 {
		errJSON, _ := json.Marshal(operation.Error)
		return nil, fmt.Errorf("video generation operation failed: %s", string(errJSON))
	}

	if operation.Response == nil {
		if operation.Metadata != nil {
			metaJSON, _ := json.Marshal(operation.Metadata)
			log.Printf("[Veo] Operation metadata: %s", string(metaJSON))
		}
		return nil, fmt.Errorf("no response in completed operation after %d polls (operation: %s)", pollCount, operation.Name)
	}

	// Videos can be blocked by RAI (Responsible AI) safety filters
	if operation.Response.RAIMediaFilteredCount > 0 {
		reasons := "unknown"
		if len(operation.Response.RAIMediaFilteredReasons) > 0 {
			reasons = strings.Join(operation.Response.RAIMediaFilteredReasons, ", ")
		}
		return nil, fmt.Errorf("video blocked by safety filters: %d video(s) filtered, reasons: %s", operation.Response.RAIMediaFilteredCount, reasons)
	}

	if len(operation.Response.GeneratedVideos) == 0 {
		respJSON, _ := json.Marshal(operation.Response)
		return nil, fmt.Errorf("no videos in response (full response: %s)", string(respJSON))
	}

	video := operation.Response.GeneratedVideos[0]
	if video.Video == nil {
		return nil, fmt.Errorf("generated video object is nil")
	}

	log.Printf("[Veo] Video ready, downloading...")

	downloadURI := genai.NewDownloadURIFromVideo(video.Video)
	videoBytes, err := client.Files.Download(ctx, downloadURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download generated video: %w", err)
	}

	if len(videoBytes) == 0 {
		return nil, fmt.Errorf("downloaded video is empty (0 bytes)")
	}

	log.Printf("[Veo] Video generated successfully (%d bytes, %d polls)", len(videoBytes), pollCount)

	return videoBytes, nil
}
