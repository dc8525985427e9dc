package server

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"github.com/minhdwien/Manhuamaker/pkg/schema"
)

const (
	modeGenerate = "generate"
	modeUpload   = "upload"

	uploadedCharacterDescription = "Image uploaded from device"
	uploadedItemDescription      = "Uploaded item"
)

type characterReq struct {
	Mode        string                      `json:"mode"`
	Name        string                      `json:"name"`
	Description string                      `json:"description"`
	ImageURL    string                      `json:"imageUrl"`
	Stats       *schema.CharacterStats      `json:"stats"`
	Appearance  *schema.CharacterAppearance `json:"appearance"`
}

type itemReq struct {
	Mode        string `json:"mode"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
}

// POST /api/characters
func (s *Server) handlePostCharacter(c echo.Context) error {
	var req characterReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "request/invalid_json", "invalid json")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.ImageURL == "" {
		return fail(c, http.StatusBadRequest, "character/missing_fields", "A name and an image are required.")
	}

	char := schema.Character{
		ID:          schema.NewID(),
		Name:        req.Name,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		Stats:       req.Stats,
		Appearance:  req.Appearance,
	}
	if req.Mode == modeUpload {
		char.Description = uploadedCharacterDescription
		char.Stats, char.Appearance = nil, nil
	} else if (char.Stats == nil) != (char.Appearance == nil) {
		return fail(c, http.StatusBadRequest, "character/incomplete_attributes", "Stats and appearance must be given together.")
	}

	if err := s.Store.AddCharacter(char); err != nil {
		return s.storeFailed(c, err)
	}
	return c.JSON(http.StatusCreated, char)
}

// DELETE /api/characters/:id
func (s *Server) handleDeleteCharacter(c echo.Context) error {
	if err := s.Store.DeleteCharacter(c.Param("id")); err != nil {
		return s.storeFailed(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// POST /api/characters/:id/items
func (s *Server) handlePostItem(c echo.Context) error {
	charID := c.Param("id")
	var req itemReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "request/invalid_json", "invalid json")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.ImageURL == "" {
		return fail(c, http.StatusBadRequest, "item/missing_fields", "A name and an image are required.")
	}
	if req.Type == "" {
		req.Type = schema.ItemWeapon
	}
	if !schema.ValidItemType(req.Type) {
		return fail(c, http.StatusBadRequest, "item/invalid_type", "Unknown item type "+req.Type+".")
	}
	item := schema.Item{
		ID:          schema.NewID(),
		Name:        req.Name,
		Type:        req.Type,
		Description: req.Description,
		ImageURL:    req.ImageURL,
	}
	if req.Mode == modeUpload {
		item.Description = uploadedItemDescription
	}

	found, err := s.Store.AddItemToCharacter(charID, item)
	if !found {
		return characterNotFound(c)
	}
	if err != nil {
		return s.storeFailed(c, err)
	}
	return c.JSON(http.StatusCreated, item)
}

// DELETE /api/characters/:id/items/:itemId
func (s *Server) handleDeleteItem(c echo.Context) error {
	if err := s.Store.DeleteItemFromCharacter(c.Param("id"), c.Param("itemId")); err != nil {
		return s.storeFailed(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DELETE /api/panels/:id
func (s *Server) handleDeletePanel(c echo.Context) error {
	if err := s.Store.DeletePanel(c.Param("id")); err != nil {
		return s.storeFailed(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func characterNotFound(c echo.Context) error {
	return fail(c, http.StatusNotFound, "character/not_found", "Character not found.")
}

func (s *Server) storeFailed(c echo.Context, err error) error {
	log.Error("store write failed", "path", c.Path(), "error", err)
	return fail(c, http.StatusInternalServerError, "storage/write_failed", "Your change was applied but could not be saved.")
}
