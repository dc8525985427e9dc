package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/minhdwien/Manhuamaker/pkg/backup"
)

func (s *Server) handleGetRoot(c echo.Context) error {
	chars, panels := s.Store.Counts()
	generator := ""
	if s.Generator != nil {
		generator = s.Generator.Name()
	}
	remoteName := ""
	if s.Remote != nil {
		remoteName = s.Remote.Name()
	}
	return c.JSON(http.StatusOK, map[string]any{
		"service":    "Manhuamaker API",
		"status":     "ok",
		"characters": chars,
		"panels":     panels,
		"generator":  generator,
		"remote":     remoteName,
	})
}

// GET /api/characters
func (s *Server) handleGetCharacters(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Store.Characters())
}

// GET /api/panels
func (s *Server) handleGetPanels(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Store.Panels())
}

// GET /api/backup/export
func (s *Server) handleGetExport(c echo.Context) error {
	now := s.now()
	chars, panels := s.Store.Snapshot()
	data, err := backup.Encode(chars, panels, now, true)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "backup/encode_failed", "Could not build the backup file.")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+backup.Filename(now)+`"`)
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, data)
}

// GET /api/backup/schema
func (s *Server) handleGetSchema(c echo.Context) error {
	return c.JSON(http.StatusOK, backup.Schema())
}
