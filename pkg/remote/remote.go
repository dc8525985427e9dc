// Package remote keeps a single copy of the backup envelope in cloud storage.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/minhdwien/Manhuamaker/pkg/config"
)

// ObjectName is the fixed name of the remote backup, overwritten on every upload.
const ObjectName = "manhua_maker_backup.json"

const contentType = "application/json"

var (
	// ErrNoBackup means no remote backup has been uploaded yet.
	ErrNoBackup = errors.New("no remote backup found")
	// ErrNotConfigured is returned by New when no provider is selected.
	ErrNotConfigured = errors.New("remote backup is not configured")
)

type Remote interface {
	Upload(ctx context.Context, data []byte) error
	Download(ctx context.Context) ([]byte, error)
	Name() string
}

// New builds the remote selected by cfg.Provider.
func New(ctx context.Context, cfg config.RemoteConfig) (Remote, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, ErrNotConfigured
	case "s3":
		r, err := NewS3Remote(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "drive":
		r, err := NewDriveRemote(ctx, cfg.Drive)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown remote provider %q", cfg.Provider)
	}
}
