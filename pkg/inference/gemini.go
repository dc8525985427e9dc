package inference

import (
	"cmp"
	"context"
	"fmt"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash-image"

type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a generator backed by the Gemini image model.
func NewGeminiGenerator(ctx context.Context, apiKey string, model string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GeminiGenerator{
		client: client,
		model:  cmp.Or(model, DefaultGeminiModel),
	}, nil
}

func (g *GeminiGenerator) Name() string { return "gemini:" + g.model }

// Generate sends the references as inline parts ahead of the prompt text and
// returns the first inline image of the first candidate.
func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (Image, error) {
	parts := make([]*genai.Part, 0, len(req.References)+1)
	for _, ref := range req.References {
		parts = append(parts, genai.NewPartFromBytes(ref.Data, cmp.Or(ref.MIMEType, "image/png")))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}

	result, err := g.client.Models.GenerateContent(
		ctx,
		g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		config,
	)
	if err != nil {
		return Image{}, fmt.Errorf("failed to generate content: %w", err)
	}

	for _, cand := range result.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			return Image{
				MIMEType: cmp.Or(part.InlineData.MIMEType, "image/png"),
				Data:     part.InlineData.Data,
			}, nil
		}
		break
	}
	return Image{}, ErrNoImage
}
