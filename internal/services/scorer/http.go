package scorer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"scenegen/internal/services"
)

// HTTPConfig configures the JSON scoring service client.
type HTTPConfig struct {
	URL            string
	APIKey         string
	TimeoutSeconds int
}

// HTTPScorer posts candidates to a JSON scoring service.
type HTTPScorer struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTP constructs an HTTPScorer.
func NewHTTP(cfg HTTPConfig) *HTTPScorer {
	timeout := 60 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &HTTPScorer{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

type httpRequest struct {
	VideoPath   string   `json:"video_path"`
	FramePath   string   `json:"frame_path"`
	FrameBase64 string   `json:"frame_base64,omitempty"`
	SceneID     int64    `json:"scene_id"`
	ShotNumber  int      `json:"shot_number"`
	Prompt      string   `json:"prompt"`
	Characters  []string `json:"characters,omitempty"`
	Mood        string   `json:"mood,omitempty"`
}

type httpResponse struct {
	Score       *float64       `json:"score"`
	Diagnostics map[string]any `json:"diagnostics"`
	Error       string         `json:"error"`
}

// Evaluate implements Scorer.
func (s *HTTPScorer) Evaluate(ctx context.Context, req Request) (Result, error) {
	payload := httpRequest{
		VideoPath:  req.VideoPath,
		FramePath:  req.FramePath,
		SceneID:    req.SceneID,
		ShotNumber: req.ShotNumber,
		Prompt:     req.Prompt,
		Characters: req.Characters,
		Mood:       req.Mood,
	}
	if req.FramePath != "" {
		if data, err := os.ReadFile(req.FramePath); err == nil {
			payload.FrameBase64 = base64.StdEncoding.EncodeToString(data)
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("scorer: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "scorer", "http", "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "scorer", "http", "request failed", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "scorer", "http", "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return Result{}, services.Wrap(services.ErrExternalTool, "scorer", "http",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(data))), nil)
	}
	var parsed httpResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "scorer", "http", "decode response", err)
	}
	if parsed.Error != "" {
		return Result{}, services.Wrap(services.ErrExternalTool, "scorer", "http", parsed.Error, nil)
	}
	if parsed.Score == nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "scorer", "http", "response has no score", nil)
	}
	return Result{Score: *parsed.Score, Diagnostics: parsed.Diagnostics}, nil
}
