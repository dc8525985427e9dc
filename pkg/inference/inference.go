package inference

import (
	"context"
	"errors"
	"fmt"

	"github.com/minhdwien/Manhuamaker/pkg/config"
)

// ErrNoImage is returned when a backend answers without any image data.
var ErrNoImage = errors.New("no image in response")

// Image is raw encoded image bytes with their MIME type.
type Image struct {
	MIMEType string
	Data     []byte
}

// Request is a text prompt plus optional reference images that the model
// should keep the rendered characters consistent with.
type Request struct {
	Prompt     string
	References []Image
}

// Generator renders a single image for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (Image, error)
	Name() string
}

// New builds the backend named by cfg.Provider.
func New(ctx context.Context, cfg config.GeneratorConfig) (Generator, error) {
	switch cfg.Provider {
	case "", "gemini":
		g, err := NewGeminiGenerator(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		return g, nil
	case "openai":
		return NewOpenAIGenerator(cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
}
