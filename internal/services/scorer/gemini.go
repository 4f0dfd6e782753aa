package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/h2non/filetype"
	"golang.org/x/image/draw"
	"google.golang.org/genai"

	"scenegen/internal/services"
)

const geminiSystemPrompt = `You review single frames from generated video shots.
Rate how well the frame matches the shot description and how free it is of
visual artifacts (warped anatomy, smearing, flicker remnants, text garbage).
Respond with JSON only: {"score": <number between 0 and 1>, "issues": [<short strings>]}.`

// ContentGenerator is the subset of the genai models API the scorer uses.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig configures the Gemini vision scorer.
type GeminiConfig struct {
	APIKey       string
	Model        string
	MaxDimension int
}

// GeminiScorer asks a Gemini vision model to rate the last frame.
type GeminiScorer struct {
	models       ContentGenerator
	model        string
	maxDimension int
}

// NewGemini constructs a GeminiScorer backed by the Gemini API.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*GeminiScorer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "scorer", "gemini", "api key is required", nil)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "scorer", "gemini", "create client", err)
	}
	return NewGeminiWithGenerator(client.Models, cfg), nil
}

// NewGeminiWithGenerator builds a GeminiScorer over an existing generator.
func NewGeminiWithGenerator(models ContentGenerator, cfg GeminiConfig) *GeminiScorer {
	maxDim := cfg.MaxDimension
	if maxDim <= 0 {
		maxDim = 768
	}
	return &GeminiScorer{models: models, model: cfg.Model, maxDimension: maxDim}
}

type geminiVerdict struct {
	Score  *float64 `json:"score"`
	Issues []string `json:"issues"`
}

// Evaluate implements Scorer.
func (s *GeminiScorer) Evaluate(ctx context.Context, req Request) (Result, error) {
	frame, err := PrepareFrame(req.FramePath, s.maxDimension)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, "scorer", "gemini", "prepare frame", err)
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Shot description: %s\n", req.Prompt)
	if req.Mood != "" {
		fmt.Fprintf(&prompt, "Scene mood: %s\n", req.Mood)
	}
	if len(req.Characters) > 0 {
		fmt.Fprintf(&prompt, "Characters expected: %s\n", strings.Join(req.Characters, ", "))
	}

	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: frame}},
		{Text: prompt.String()},
	}
	resp, err := s.models.GenerateContent(ctx, s.model,
		[]*genai.Content{{Role: "user", Parts: parts}},
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: geminiSystemPrompt}}},
			ResponseMIMEType:  "application/json",
			Temperature:       genai.Ptr[float32](0),
		})
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "scorer", "gemini", "generate content", err)
	}
	text := strings.TrimSpace(resp.Text())
	text = strings.TrimPrefix(strings.TrimSuffix(strings.TrimPrefix(text, "```json"), "```"), "```")
	var verdict geminiVerdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &verdict); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "scorer", "gemini", "decode verdict", err)
	}
	if verdict.Score == nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "scorer", "gemini", "verdict has no score", nil)
	}
	diagnostics := map[string]any{"model": s.model}
	if len(verdict.Issues) > 0 {
		diagnostics["issues"] = verdict.Issues
	}
	return Result{Score: *verdict.Score, Diagnostics: diagnostics}, nil
}

// PrepareFrame decodes an image, downscales it so neither side exceeds
// maxDimension, and re-encodes it as JPEG.
func PrepareFrame(path string, maxDimension int) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !filetype.IsImage(data) {
		return nil, fmt.Errorf("%s is not an image", path)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	bounds := img.Bounds()
	w, h := ScaledDimensions(bounds.Dx(), bounds.Dy(), maxDimension)
	out := img
	if w != bounds.Dx() || h != bounds.Dy() {
		resized := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		out = resized
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// ScaledDimensions fits width x height inside maxDimension, keeping aspect.
func ScaledDimensions(width, height, maxDimension int) (int, int) {
	if maxDimension <= 0 || (width <= maxDimension && height <= maxDimension) {
		return width, height
	}
	if width >= height {
		return maxDimension, max(1, height*maxDimension/width)
	}
	return max(1, width*maxDimension/height), maxDimension
}
