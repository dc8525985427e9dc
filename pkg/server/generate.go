package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"github.com/minhdwien/Manhuamaker/pkg/inference"
	"github.com/minhdwien/Manhuamaker/pkg/metrics"
	"github.com/minhdwien/Manhuamaker/pkg/queue"
	"github.com/minhdwien/Manhuamaker/pkg/schema"
)

const defaultCharacterName = "Fellow Daoist"

type previewKey struct {
	kind   string
	prompt string
}

type generateCharacterReq struct {
	Name        string                      `json:"name"`
	Description string                      `json:"description"`
	Stats       *schema.CharacterStats      `json:"stats"`
	Appearance  *schema.CharacterAppearance `json:"appearance"`
}

type generateItemReq struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

type generatePanelReq struct {
	Prompt       string   `json:"prompt"`
	CharacterIDs []string `json:"characterIds"`
}

type previewResp struct {
	ImageURL string `json:"imageUrl"`
}

// POST /api/generate/character
func (s *Server) handlePostGenerateCharacter(c echo.Context) error {
	var req generateCharacterReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "request/invalid_json", "invalid json")
	}
	if req.Stats == nil || req.Appearance == nil {
		return fail(c, http.StatusBadRequest, "character/incomplete_attributes", "Stats and appearance are required to generate a character.")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = defaultCharacterName
	}
	prompt := inference.CharacterPrompt(name, req.Description, *req.Stats, *req.Appearance)
	return s.preview(c, previewKey{kind: "character", prompt: prompt})
}

// POST /api/generate/item
func (s *Server) handlePostGenerateItem(c echo.Context) error {
	var req generateItemReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "request/invalid_json", "invalid json")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if req.Name == "" || req.Description == "" {
		return fail(c, http.StatusBadRequest, "item/missing_fields", "Enter a name and a description.")
	}
	if req.Type == "" {
		req.Type = schema.ItemWeapon
	}
	if !schema.ValidItemType(req.Type) {
		return fail(c, http.StatusBadRequest, "item/invalid_type", "Unknown item type "+req.Type+".")
	}
	prompt := inference.ItemPrompt(req.Name, req.Type, req.Description)
	return s.preview(c, previewKey{kind: "item", prompt: prompt})
}

// POST /api/panels/generate
func (s *Server) handlePostGeneratePanel(c echo.Context) error {
	var req generatePanelReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "request/invalid_json", "invalid json")
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return fail(c, http.StatusBadRequest, "panel/missing_prompt", "Describe the scene to draw.")
	}
	if s.Generator == nil {
		return generatorMissing(c)
	}

	var chars []schema.Character
	for _, id := range req.CharacterIDs {
		if ch, ok := s.Store.Character(id); ok {
			chars = append(chars, ch)
		}
	}

	img, err := s.generate(c.Request().Context(), "panel", inference.Request{
		Prompt:     inference.PanelPrompt(req.Prompt, chars),
		References: inference.References(chars),
	})
	if err != nil {
		return generationFailed(c, err)
	}

	panel := schema.ComicPanel{
		ID:        schema.NewID(),
		Prompt:    req.Prompt,
		ImageURL:  img,
		Timestamp: schema.Millis(s.now()),
	}
	if err := s.Store.AddPanel(panel); err != nil {
		return s.storeFailed(c, err)
	}
	return c.JSON(http.StatusCreated, panel)
}

func (s *Server) preview(c echo.Context, key previewKey) error {
	if s.Generator == nil {
		return generatorMissing(c)
	}
	img, err := s.previews.Get(c.Request().Context(), key)
	if err != nil {
		return generationFailed(c, err)
	}
	return c.JSON(http.StatusOK, previewResp{ImageURL: img})
}

// renderPreview is the work function behind the preview cache.
func (s *Server) renderPreview(ctx context.Context, key previewKey) (string, error) {
	return s.generate(ctx, key.kind, inference.Request{Prompt: key.prompt})
}

// generate runs req and returns the image as a data URI.
func (s *Server) generate(ctx context.Context, kind string, req inference.Request) (string, error) {
	img, err := s.Generator.Generate(ctx, req)
	if err != nil {
		metrics.Generations.WithLabelValues(kind, "failed").Inc()
		log.Warn("generation failed", "kind", kind, "error", err)
		return "", err
	}
	if s.compact {
		if small, err := inference.Compact(img); err == nil {
			img = small
		} else {
			log.Warn("could not compact image, keeping original", "kind", kind, "error", err)
		}
	}
	metrics.Generations.WithLabelValues(kind, "ok").Inc()
	return inference.DataURI(img), nil
}

func generatorMissing(c echo.Context) error {
	return fail(c, http.StatusServiceUnavailable, "generate/not_configured", "Image generation is not configured. Set an API key.")
}

func generationFailed(c echo.Context, err error) error {
	switch {
	case errors.Is(err, queue.ErrFull):
		return fail(c, http.StatusServiceUnavailable, "generate/busy", "Too many images are being drawn right now. Try again shortly.")
	case errors.Is(err, inference.ErrNoImage):
		return fail(c, http.StatusBadGateway, "generate/no_image", "The model answered without an image. Try rephrasing.")
	case errors.Is(err, context.DeadlineExceeded):
		return fail(c, http.StatusGatewayTimeout, "generate/timeout", "Image generation timed out.")
	default:
		return fail(c, http.StatusBadGateway, "generate/failed", "Image generation failed: "+err.Error())
	}
}
