package server

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/minhdwien/Manhuamaker/pkg/flight"
	"github.com/minhdwien/Manhuamaker/pkg/inference"
	"github.com/minhdwien/Manhuamaker/pkg/remote"
	"github.com/minhdwien/Manhuamaker/pkg/restore"
	"github.com/minhdwien/Manhuamaker/pkg/store"
	"github.com/minhdwien/Manhuamaker/pkg/utils"
)

// Options wires the server to its collaborators. Generator and Remote may be
// nil, in which case the routes that need them answer 503.
type Options struct {
	Store     *store.Store
	Restore   *restore.Reconciler
	Generator inference.Generator
	Remote    remote.Remote

	// Compact re-encodes generated images as WebP before they are stored.
	Compact bool
	// PreviewTTL is how long a finished preview is reused for identical
	// requests. Zero shares only concurrent requests, so generating again
	// draws a new image.
	PreviewTTL time.Duration
	// RateLimit is requests per second per client on generation routes; 0 disables it.
	RateLimit float64
	// RemoteTimeout bounds a single remote transfer.
	RemoteTimeout time.Duration
}

type Server struct {
	Echo      *echo.Echo
	Store     *store.Store
	Restore   *restore.Reconciler
	Generator inference.Generator
	Remote    remote.Remote
	Ctx       context.Context

	previews      *flight.Cache[previewKey, string]
	compact       bool
	remoteTimeout time.Duration
	now           func() time.Time
}

func NewServer(ctx context.Context, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	// envelopes and panels carry base64 images
	e.Use(middleware.BodyLimit("64M"))

	s := &Server{
		Echo:          e,
		Store:         opts.Store,
		Restore:       opts.Restore,
		Generator:     opts.Generator,
		Remote:        opts.Remote,
		Ctx:           ctx,
		compact:       opts.Compact,
		remoteTimeout: opts.RemoteTimeout,
		now:           time.Now,
	}
	if s.remoteTimeout <= 0 {
		s.remoteTimeout = 30 * time.Second
	}
	s.previews = flight.NewCache(s.renderPreview)
	s.previews.Expiry(opts.PreviewTTL)

	s.registerRoutes(opts.RateLimit)
	return s
}

func (s *Server) registerRoutes(limit float64) {
	s.Echo.GET("/", s.handleGetRoot)
	s.Echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.Echo.Group("/api")

	api.GET("/characters", s.handleGetCharacters)
	api.POST("/characters", s.handlePostCharacter)
	api.DELETE("/characters/:id", s.handleDeleteCharacter)
	api.POST("/characters/:id/items", s.handlePostItem)
	api.DELETE("/characters/:id/items/:itemId", s.handleDeleteItem)

	api.GET("/panels", s.handleGetPanels)
	api.DELETE("/panels/:id", s.handleDeletePanel)

	var limited []echo.MiddlewareFunc
	if limit > 0 {
		limited = append(limited, middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStore(rate.Limit(limit)),
			DenyHandler: func(c echo.Context, _ string, _ error) error {
				return c.JSON(http.StatusTooManyRequests, utils.ErrJSON("generate/rate_limited", "Too many generation requests, slow down."))
			},
		}))
	}
	api.POST("/generate/character", s.handlePostGenerateCharacter, limited...)
	api.POST("/generate/item", s.handlePostGenerateItem, limited...)
	api.POST("/panels/generate", s.handlePostGeneratePanel, limited...)

	api.GET("/backup/export", s.handleGetExport)
	api.GET("/backup/schema", s.handleGetSchema)
	api.POST("/backup/import", s.handlePostImport)
	api.POST("/backup/remote", s.handlePostRemoteBackup)
	api.POST("/backup/remote/restore", s.handlePostRemoteRestore)

	api.POST("/restore/:token/confirm", s.handlePostConfirm)
	api.POST("/restore/:token/cancel", s.handlePostCancel)
}

func (s *Server) Start(addr string) error {
	log.Info("server listening", "addr", addr)
	return s.Echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("shutting down server")
	return s.Echo.Shutdown(ctx)
}

// fail writes the standard error body.
func fail(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, utils.ErrJSON(code, msg))
}
