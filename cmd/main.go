package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	glog "github.com/labstack/gommon/log"

	"github.com/minhdwien/Manhuamaker/pkg/config"
	"github.com/minhdwien/Manhuamaker/pkg/inference"
	"github.com/minhdwien/Manhuamaker/pkg/queue"
	"github.com/minhdwien/Manhuamaker/pkg/remote"
	"github.com/minhdwien/Manhuamaker/pkg/restore"
	"github.com/minhdwien/Manhuamaker/pkg/server"
	"github.com/minhdwien/Manhuamaker/pkg/storage"
	"github.com/minhdwien/Manhuamaker/pkg/store"
)

func main() {
	ctx, done := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer done()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("configuration error", "error", err)
	}
	if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(level)
	}

	kv, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		log.Fatal("failed to open storage", "driver", cfg.Storage.Driver, "error", err)
	}
	defer kv.Close()

	st := store.New(storage.NewAdapter(kv, cfg.Storage.Timeout, log.Default()), log.Default())
	rec := restore.New(st, cfg.Restore.PendingTTL, log.Default())

	var gen inference.Generator
	if backend, err := inference.New(ctx, cfg.Generator); err != nil {
		log.Warn("image generation disabled", "provider", cfg.Generator.Provider, "error", err)
	} else {
		q := queue.New(backend, cfg.Generator.QueueSize, cfg.Generator.Timeout)
		q.Start()
		defer q.Stop()
		gen = q
	}

	rem, err := remote.New(ctx, cfg.Remote)
	switch {
	case errors.Is(err, remote.ErrNotConfigured):
		log.Info("cloud backup disabled")
	case err != nil:
		log.Warn("cloud backup unavailable", "provider", cfg.Remote.Provider, "error", err)
	}

	var rateLimit float64
	if cfg.RateLimit.Enabled {
		rateLimit = cfg.RateLimit.Requests
	}

	srv := server.NewServer(ctx, server.Options{
		Store:         st,
		Restore:       rec,
		Generator:     gen,
		Remote:        rem,
		Compact:       cfg.Generator.Compact,
		PreviewTTL:    cfg.Generator.PreviewTTL,
		RateLimit:     rateLimit,
		RemoteTimeout: cfg.Remote.Timeout,
	})
	if cfg.Server.Env == "production" {
		srv.Echo.Logger.SetLevel(glog.INFO)
	} else {
		srv.Echo.Logger.SetLevel(glog.DEBUG)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	finishedShutDown := make(chan struct{})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown failed", "error", err)
		}
		close(finishedShutDown)
	}()

	if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server stopped", "error", err)
		done()
		os.Exit(1)
	}
	<-finishedShutDown
}
