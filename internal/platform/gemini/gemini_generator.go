package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/phrazzld/artcache/internal/config"
	"github.com/phrazzld/artcache/internal/generation"
	"github.com/phrazzld/artcache/internal/redact"
	"google.golang.org/genai"
)

// imageModels is the part of the genai client the generator uses.
// *genai.Models satisfies it.
type imageModels interface {
	GenerateImages(
		ctx context.Context,
		model string,
		prompt string,
		config *genai.GenerateImagesConfig,
	) (*genai.GenerateImagesResponse, error)
}

// GeminiGenerator implements the generation.Generator interface using
// Google's image generation models.
type GeminiGenerator struct {
	// logger is used for structured logging
	logger *slog.Logger

	// config contains LLM-specific configuration
	config config.LLMConfig

	// models issues the generation requests
	models imageModels

	// sleep waits between retries; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// Ensure GeminiGenerator implements generation.Generator interface
var _ generation.Generator = (*GeminiGenerator)(nil)

// NewGeminiGenerator creates a generator backed by the Gemini API.
func NewGeminiGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*GeminiGenerator, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %s",
			generation.ErrInvalidConfig, redact.Error(err))
	}

	return newGenerator(logger, cfg, client.Models), nil
}

func newGenerator(logger *slog.Logger, cfg config.LLMConfig, models imageModels) *GeminiGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiGenerator{
		logger: logger.With(slog.String("component", "gemini_generator")),
		config: cfg,
		models: models,
		sleep:  sleepContext,
	}
}

func validateConfig(cfg config.LLMConfig) error {
	if cfg.GeminiAPIKey == "" {
		return fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries cannot be negative", generation.ErrInvalidConfig)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GenerateImages implements generation.Generator.
func (g *GeminiGenerator) GenerateImages(ctx context.Context, prompt string) ([]generation.Image, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, generation.ErrEmptyPrompt
	}

	maxRetries := g.config.MaxRetries
	baseDelay := time.Duration(g.config.RetryDelaySeconds) * time.Second
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 0; ; attempt++ {
		g.logger.InfoContext(ctx, "requesting image generation",
			slog.String("model", g.config.ModelName),
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", maxRetries+1))

		resp, err := g.models.GenerateImages(ctx, g.config.ModelName, prompt, nil)
		if err == nil {
			return g.parseResponse(ctx, resp)
		}

		g.logger.ErrorContext(ctx, "image generation call failed",
			slog.Int("attempt", attempt+1),
			slog.String("error", redact.Error(err)))

		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", generation.ErrGenerationFailed, ctx.Err())
		}
		if attempt >= maxRetries {
			return nil, fmt.Errorf("%w: exceeded maximum retry attempts (%d): %s",
				generation.ErrTransientFailure, maxRetries, redact.Error(err))
		}

		// delay = base * 2^attempt * [0.5, 1.0)
		backoff := float64(baseDelay) * math.Pow(2, float64(attempt))
		delay := time.Duration(backoff * (0.5 + rng.Float64()*0.5))
		g.logger.InfoContext(ctx, "retrying image generation after delay",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay))

		if err := g.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: %w", generation.ErrTransientFailure, err)
		}
	}
}

// parseResponse extracts the image payloads from a response. A response
// without any image bytes is a permanent failure.
func (g *GeminiGenerator) parseResponse(ctx context.Context, resp *genai.GenerateImagesResponse) ([]generation.Image, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", generation.ErrNoImages)
	}

	images := make([]generation.Image, 0, len(resp.GeneratedImages))
	for _, gi := range resp.GeneratedImages {
		if gi == nil || gi.Image == nil || len(gi.Image.ImageBytes) == 0 {
			continue
		}
		mime := gi.Image.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		images = append(images, generation.Image{Data: gi.Image.ImageBytes, MIMEType: mime})
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: %d results without image bytes",
			generation.ErrNoImages, len(resp.GeneratedImages))
	}

	g.logger.InfoContext(ctx, "image generation succeeded", slog.Int("images", len(images)))
	return images, nil
}
