package inference

import (
	"cmp"
	"context"
	"encoding/base64"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIGenerator implements Generator with the OpenAI Images API. The Images
// API takes no reference images, so references only reach the model through
// the character descriptions already written into the prompt.
type OpenAIGenerator struct {
	client *openai.Client
	model  openai.ImageModel
}

func NewOpenAIGenerator(apiKey string, model string, opts ...option.RequestOption) *OpenAIGenerator {
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAIGenerator{
		client: &client,
		model:  cmp.Or(openai.ImageModel(model), openai.ImageModelGPTImage1),
	}
}

func (o *OpenAIGenerator) Name() string { return "openai:" + string(o.model) }

func (o *OpenAIGenerator) Generate(ctx context.Context, req Request) (Image, error) {
	resp, err := o.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:       req.Prompt,
		Model:        o.model,
		N:            openai.Int(1),
		OutputFormat: openai.ImageGenerateParamsOutputFormatPNG,
		Size:         openai.ImageGenerateParamsSize1024x1024,
	})
	if err != nil {
		return Image{}, fmt.Errorf("openai image error: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return Image{}, ErrNoImage
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return Image{}, fmt.Errorf("decode openai image: %w", err)
	}
	return Image{MIMEType: "image/png", Data: data}, nil
}
