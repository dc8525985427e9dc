package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/minhdwien/Manhuamaker/pkg/config"
)

// DriveRemote stores the backup as a file in the user's Google Drive. The
// access token is obtained by the client and handed over through config.
type DriveRemote struct {
	svc  *drive.Service
	name string
}

func NewDriveRemote(ctx context.Context, cfg config.DriveConfig) (*DriveRemote, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken})
	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &DriveRemote{svc: svc, name: ObjectName}, nil
}

func (r *DriveRemote) Name() string { return "drive:" + r.name }

// Upload updates the existing backup file in place, or creates it.
func (r *DriveRemote) Upload(ctx context.Context, data []byte) error {
	id, err := r.find(ctx)
	if err != nil && !errors.Is(err, ErrNoBackup) {
		return err
	}

	if id != "" {
		_, err = r.svc.Files.Update(id, &drive.File{}).
			Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("update %s: %w", r.name, err)
		}
		return nil
	}

	_, err = r.svc.Files.Create(&drive.File{Name: r.name, MimeType: contentType}).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("create %s: %w", r.name, err)
	}
	return nil
}

func (r *DriveRemote) Download(ctx context.Context) ([]byte, error) {
	id, err := r.find(ctx)
	if err != nil {
		return nil, err
	}

	res, err := r.svc.Files.Get(id).Context(ctx).Download()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
			return nil, ErrNoBackup
		}
		return nil, fmt.Errorf("download %s: %w", r.name, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.name, err)
	}
	return data, nil
}

func (r *DriveRemote) find(ctx context.Context) (string, error) {
	list, err := r.svc.Files.List().
		Q(fmt.Sprintf("name = '%s' and trashed = false", r.name)).
		Spaces("drive").
		Fields("files(id, name)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("search %s: %w", r.name, err)
	}
	if len(list.Files) == 0 {
		return "", ErrNoBackup
	}
	return list.Files[0].Id, nil
}
