package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// Upload timeout per attempt — generous for multi-minute rendered videos
	uploadTimeout = 180 * time.Second

	// Download timeout
	downloadTimeout = 120 * time.Second

	// Retry configuration
	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
)

// Storage talks to a Supabase Storage bucket over its REST API. One bucket
// holds everything: generated clips, extracted frames, and export artifacts.
type Storage struct {
	url        string
	serviceKey string
	Bucket     string
	client     *http.Client
}

func New(url, serviceKey, bucket string) *Storage {
	return &Storage{
		url:        url,
		serviceKey: serviceKey,
		Bucket:     bucket,
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Upload stores data at path with retries and exponential backoff.
// Uses PUT with x-upsert so re-running a job overwrites cleanly.
func (s *Storage) Upload(ctx context.Context, storagePath string, data []byte, contentType string) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, storagePath)

	_, err := s.withRetry(ctx, "Upload", storagePath, uploadTimeout, func(attemptCtx context.Context) ([]byte, int, error) {
		req, err := http.NewRequestWithContext(attemptCtx, "PUT", url, bytes.NewReader(data))
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Content-Length", fmt.Sprintf("%d", len(data)))
		req.Header.Set("x-upsert", "true")

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, 0, err
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return body, resp.StatusCode, nil
	})
	return err
}

// Download fetches a stored object with retries.
func (s *Storage) Download(ctx context.Context, storagePath string) ([]byte, error) {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, storagePath)

	return s.withRetry(ctx, "Download", storagePath, downloadTimeout, func(attemptCtx context.Context) ([]byte, int, error) {
		req, err := http.NewRequestWithContext(attemptCtx, "GET", url, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, 0, err
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil && resp.StatusCode == http.StatusOK {
			// A truncated body on a 200 is a network hiccup worth retrying.
			return nil, 0, readErr
		}
		return body, resp.StatusCode, nil
	})
}

// withRetry runs one storage request up to maxRetries+1 times, backing off
// exponentially with jitter between attempts. attempt returns the response
// body and status; a zero status marks a network-level failure.
func (s *Storage) withRetry(ctx context.Context, op, storagePath string, timeout time.Duration, attempt func(context.Context) ([]byte, int, error)) ([]byte, error) {
	var lastErr error
	for n := 0; n <= maxRetries; n++ {
		if n > 0 {
			delay := retryDelay(n)
			log.Printf("[Storage] %s retry %d/%d for %s (waiting %v)...", op, n, maxRetries, storagePath, delay)

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%s cancelled: %w", strings.ToLower(op), ctx.Err())
			case <-time.After(delay):
			}
		}

		// Each attempt gets its own timeout, independent of caller's ctx
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		body, status, err := attempt(attemptCtx)
		cancel()

		if err != nil {
			lastErr = fmt.Errorf("%s failed: %w", strings.ToLower(op), err)
			if isRetryableError(err) {
				log.Printf("[Storage] %s attempt %d failed (retryable): %v", op, n+1, err)
				continue
			}
			return nil, lastErr
		}

		if status == http.StatusOK || status == http.StatusCreated {
			if n > 0 {
				log.Printf("[Storage] %s succeeded on attempt %d for %s", op, n+1, storagePath)
			}
			return body, nil
		}

		lastErr = fmt.Errorf("%s failed with status %d: %s", strings.ToLower(op), status, truncate(string(body), 200))
		if isRetryableStatus(status) {
			log.Printf("[Storage] %s attempt %d returned status %d (retryable)", op, n+1, status)
			continue
		}

		// Non-retryable status (400, 401, 403, 404, 413, etc.)
		return nil, lastErr
	}

	return nil, fmt.Errorf("%s failed after %d attempts: %w", strings.ToLower(op), maxRetries+1, lastErr)
}

// GetPublicURL returns the public URL for a stored object.
func (s *Storage) GetPublicURL(storagePath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.url, s.Bucket, storagePath)
}

// GetSignedURL creates a signed URL for temporary access.
func (s *Storage) GetSignedURL(ctx context.Context, storagePath string, expiresIn int) (string, error) {
	url := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", s.url, s.Bucket, storagePath)

	body := fmt.Sprintf(`{"expiresIn": %d}`, expiresIn)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBufferString(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get signed URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to parse signed URL response: %w", err)
	}

	return s.url + result.SignedURL, nil
}

// ClipPath is where a generated clip's video lives.
func ClipPath(clipID uuid.UUID) string {
	return path.Join(clipID.String(), "clip.mp4")
}

// FramePath is where a clip's extracted last frame lives, used to seed
// extension generations.
func FramePath(clipID uuid.UUID) string {
	return path.Join(clipID.String(), "last_frame.png")
}

// ExportPath is where a finished export artifact lives, grouped under the
// main clip it was cut from.
func ExportPath(clipID, exportID uuid.UUID) string {
	return path.Join(clipID.String(), fmt.Sprintf("export_%s.mp4", exportID))
}

// retryDelay calculates exponential backoff with jitter: base * 2^attempt + random jitter
func retryDelay(attempt int) time.Duration {
	delay := float64(baseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	// Add 0–25% jitter to avoid thundering herd
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

// isRetryableError checks if a network-level error is worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

// isRetryableStatus checks if an HTTP status code is worth retrying
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || // 429
		status == http.StatusRequestTimeout || // 408
		status == http.StatusBadGateway || // 502
		status == http.StatusServiceUnavailable || // 503
		status == http.StatusGatewayTimeout // 504
}

// truncate limits a string to maxLen characters for log output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
