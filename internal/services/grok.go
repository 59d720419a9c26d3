package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/clipforge/clipforge/internal/models"
)

const (
	xaiBaseURL           = "https://api.x.ai/v1"
	xaiVideoModel        = "grok-imagine-video"
	xaiInitialDelay      = 15 * time.Second // generations rarely finish sooner
	xaiPollMinInterval   = 5 * time.Second
	xaiPollMaxInterval   = 20 * time.Second
	xaiPollBackoffFactor = 1.5
	xaiMaxPollDuration   = 5 * time.Minute
	xaiMinDuration       = 1 // seconds, API limits
	xaiMaxDuration       = 15
	xaiDefaultDuration   = 8
	xaiDefaultResolution = "720p"
)

// GrokVideoService generates clips through xAI's Grok Imagine Video API.
// Generation is deferred: submit, poll by request id, download the result.
type GrokVideoService struct {
	apiKey     string
	httpClient *http.Client
}

func NewGrokVideoService(apiKey string) *GrokVideoService {
	return &GrokVideoService{
		apiKey: apiKey,
		// Per-call timeout; the poll cycle as a whole is bounded separately.
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// xaiGenerationRequest is the body for POST /v1/videos/generations.
type xaiGenerationRequest struct {
	Prompt      string         `json:"prompt"`
	Model       string         `json:"model"`
	Image       *xaiImageInput `json:"image,omitempty"`
	Duration    int            `json:"duration,omitempty"`
	AspectRatio string         `json:"aspect_ratio,omitempty"`
	Resolution  string         `json:"resolution,omitempty"`
}

type xaiImageInput struct {
	URL string `json:"url"`
}

type xaiGenerationResponse struct {
	RequestID string `json:"request_id"`
}

// xaiVideoResult is the response from GET /v1/videos/{request_id}. The shape
// varies: pending responses carry only a status, completed ones carry the
// video object and no status at all, failures carry status "failed" plus an
// error string.
type xaiVideoResult struct {
	Status string          `json:"status"`
	Video  *xaiVideoOutput `json:"video,omitempty"`
	Model  string          `json:"model,omitempty"`
	Error  string          `json:"error"`
}

type xaiVideoOutput struct {
	URL               string `json:"url"`
	Duration          int    `json:"duration"`
	RespectModeration bool   `json:"respect_moderation"`
}

// GenerateClip generates a clip from a text prompt and blocks until the
// video bytes are downloaded or the poll deadline passes. A non-empty
// imageURL makes it an image-to-video request; the worker passes a clip's
// last frame here when extending.
func (s *GrokVideoService) GenerateClip(ctx context.Context, prompt string, aspect models.AspectClass, imageURL string, durationSec int) ([]byte, error) {
	reqBody := xaiGenerationRequest{
		Prompt:      prompt,
		Model:       xaiVideoModel,
		Duration:    clampGrokDuration(durationSec),
		AspectRatio: string(aspect),
		Resolution:  xaiDefaultResolution,
	}
	durationSec = reqBody.Duration
	if imageURL != "" {
		reqBody.Image = &xaiImageInput{URL: imageURL}
	}

	log.Printf("[Grok] Starting generation (promptLen=%d, hasImage=%v, duration=%ds, aspect=%s)",
		len(prompt), imageURL != "", durationSec, aspect)

	requestID, err := s.submitGeneration(ctx, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to submit video generation: %w", err)
	}

	log.Printf("[Grok] Generation submitted, request_id=%s", requestID)

	result, err := s.pollForResult(ctx, requestID)
	if err != nil {
		return nil, err
	}

	log.Printf("[Grok] Video ready (duration=%ds), downloading from URL...", result.Video.Duration)

	videoBytes, err := s.downloadVideo(ctx, result.Video.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to download generated video: %w", err)
	}

	if len(videoBytes) == 0 {
		return nil, fmt.Errorf("downloaded video is empty (0 bytes)")
	}

	log.Printf("[Grok] Video downloaded successfully (%d bytes)", len(videoBytes))
	return videoBytes, nil
}

// clampGrokDuration maps a requested duration into xAI's allowed range,
// substituting the default for unspecified values.
func clampGrokDuration(sec int) int {
	if sec <= 0 {
		return xaiDefaultDuration
	}
	if sec < xaiMinDuration {
		return xaiMinDuration
	}
	if sec > xaiMaxDuration {
		return xaiMaxDuration
	}
	return sec
}

// submitGeneration posts the generation request and returns the request id
// to poll on.
func (s *GrokVideoService) submitGeneration(ctx context.Context, reqBody xaiGenerationRequest) (string, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", xaiBaseURL+"/videos/generations", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("xAI returned status %d: %s", resp.StatusCode, string(body))
	}

	var genResp xaiGenerationResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("failed to parse generation response: %w (body: %s)", err, string(body))
	}

	if genResp.RequestID == "" {
		return "", fmt.Errorf("no request_id in generation response: %s", string(body))
	}

	return genResp.RequestID, nil
}

// pollForResult polls GET /v1/videos/{request_id} with backoff until the
// video is ready, the generation fails, or the deadline passes. The initial
// delay skips the window where a poll can only come back pending.
func (s *GrokVideoService) pollForResult(ctx context.Context, requestID string) (*xaiVideoResult, error) {
	deadline := time.Now().Add(xaiMaxPollDuration)
	pollCount := 0
	currentInterval := xaiPollMinInterval

	log.Printf("[Grok] Waiting %v before first poll...", xaiInitialDelay)
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("video generation cancelled during initial wait: %w", ctx.Err())
	case <-time.After(xaiInitialDelay):
	}

	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("video generation timed out after %v (polled %d times, request_id=%s)", xaiMaxPollDuration, pollCount, requestID)
		}

		pollCount++

		result, err := s.getVideoResult(ctx, requestID)
		if err != nil {
			return nil, fmt.Errorf("failed to poll video result (attempt %d): %w", pollCount, err)
		}

		// Completion is signaled by the video object, not the status field.
		if result.Video != nil && result.Video.URL != "" {
			log.Printf("[Grok] Poll %d: completed (duration=%ds)", pollCount, result.Video.Duration)
			return result, nil
		}

		log.Printf("[Grok] Poll %d: status=%s (next poll in %v)", pollCount, result.Status, currentInterval)

		switch result.Status {
		case "failed":
			errMsg := result.Error
			if errMsg == "" {
				errMsg = "unknown error"
			}
			return nil, fmt.Errorf("video generation failed: %s (request_id=%s)", errMsg, requestID)

		default:
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("video generation cancelled: %w", ctx.Err())
			case <-time.After(currentInterval):
			}

			next := time.Duration(float64(currentInterval) * xaiPollBackoffFactor)
			if next > xaiPollMaxInterval {
				next = xaiPollMaxInterval
			}
			currentInterval = next
		}
	}
}

// getVideoResult fetches the current status of a video generation request.
func (s *GrokVideoService) getVideoResult(ctx context.Context, requestID string) (*xaiVideoResult, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/videos/%s", xaiBaseURL, requestID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	// xAI answers 202 with a pending body while the generation is running.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("xAI returned status %d: %s", resp.StatusCode, string(body))
	}

	var result xaiVideoResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse video result: %w (body: %s)", err, string(body))
	}

	return &result, nil
}

// downloadVideo fetches the finished video. A dedicated client gives the
// transfer more room than the API calls get.
func (s *GrokVideoService) downloadVideo(ctx context.Context, videoURL string) ([]byte, error) {
	downloadClient := &http.Client{Timeout: 120 * time.Second}

	req, err := http.NewRequestWithContext(ctx, "GET", videoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := downloadClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("video download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read video data: %w", err)
	}

	return data, nil
}
