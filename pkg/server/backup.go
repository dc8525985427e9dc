package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"github.com/minhdwien/Manhuamaker/pkg/backup"
	"github.com/minhdwien/Manhuamaker/pkg/metrics"
	"github.com/minhdwien/Manhuamaker/pkg/remote"
	"github.com/minhdwien/Manhuamaker/pkg/restore"
)

// POST /api/backup/import
//
// The body is the raw envelope. On success nothing is applied yet; the
// returned token must be confirmed.
func (s *Server) handlePostImport(c echo.Context) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fail(c, http.StatusBadRequest, "request/unreadable_body", "Could not read the uploaded file.")
	}
	return s.receive(c, data)
}

// POST /api/backup/remote
func (s *Server) handlePostRemoteBackup(c echo.Context) error {
	if s.Remote == nil {
		return remoteMissing(c)
	}
	chars, panels := s.Store.Snapshot()
	data, err := backup.Encode(chars, panels, s.now(), false)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "backup/encode_failed", "Could not build the backup.")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.remoteTimeout)
	defer cancel()
	if err := s.Remote.Upload(ctx, data); err != nil {
		metrics.RemoteBackups.WithLabelValues("upload", "failed").Inc()
		log.Error("remote backup failed", "remote", s.Remote.Name(), "error", err)
		return fail(c, http.StatusBadGateway, "remote/upload_failed", "Backup to the cloud failed.")
	}
	metrics.RemoteBackups.WithLabelValues("upload", "ok").Inc()
	log.Info("remote backup uploaded", "remote", s.Remote.Name(), "characters", len(chars), "panels", len(panels), "bytes", len(data))

	return c.JSON(http.StatusOK, map[string]any{
		"success":    true,
		"remote":     s.Remote.Name(),
		"characters": len(chars),
		"panels":     len(panels),
	})
}

// POST /api/backup/remote/restore
func (s *Server) handlePostRemoteRestore(c echo.Context) error {
	if s.Remote == nil {
		return remoteMissing(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), s.remoteTimeout)
	defer cancel()

	data, err := s.Remote.Download(ctx)
	if errors.Is(err, remote.ErrNoBackup) {
		metrics.RemoteBackups.WithLabelValues("download", "missing").Inc()
		return fail(c, http.StatusNotFound, "remote/no_backup", "No backup was found in the cloud.")
	}
	if err != nil {
		metrics.RemoteBackups.WithLabelValues("download", "failed").Inc()
		log.Error("remote download failed", "remote", s.Remote.Name(), "error", err)
		return fail(c, http.StatusBadGateway, "remote/download_failed", "Could not fetch the backup from the cloud.")
	}
	metrics.RemoteBackups.WithLabelValues("download", "ok").Inc()
	return s.receive(c, data)
}

// POST /api/restore/:token/confirm
func (s *Server) handlePostConfirm(c echo.Context) error {
	res, err := s.Restore.Confirm(c.Param("token"))
	if errors.Is(err, restore.ErrUnknownToken) {
		return fail(c, http.StatusNotFound, "restore/unknown_token", "This restore has expired or was already handled.")
	}
	if err != nil {
		log.Error("restore failed", "error", err)
		return fail(c, http.StatusInternalServerError, "restore/failed", "The restore could not be saved.")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":    true,
		"characters": res.Characters,
		"panels":     res.Panels,
	})
}

// POST /api/restore/:token/cancel
func (s *Server) handlePostCancel(c echo.Context) error {
	if err := s.Restore.Cancel(c.Param("token")); err != nil {
		return fail(c, http.StatusNotFound, "restore/unknown_token", "This restore has expired or was already handled.")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) receive(c echo.Context, data []byte) error {
	pending, err := s.Restore.Receive(data)
	switch {
	case errors.Is(err, backup.ErrParse):
		return fail(c, http.StatusBadRequest, "backup/parse_error", backup.Message(err))
	case errors.Is(err, backup.ErrSchema):
		return fail(c, http.StatusBadRequest, "backup/schema_error", backup.Message(err))
	case err != nil:
		return fail(c, http.StatusBadRequest, "backup/invalid", backup.Message(err))
	}
	return c.JSON(http.StatusAccepted, pending)
}

func remoteMissing(c echo.Context) error {
	return fail(c, http.StatusServiceUnavailable, "remote/not_configured", "Cloud backup is not configured.")
}
