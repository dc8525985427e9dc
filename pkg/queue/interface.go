package queue

import (
	"context"

	"github.com/minhdwien/Manhuamaker/pkg/inference"
)

type Queue interface {
	Start()
	Stop()
	Add(ctx context.Context, req inference.Request) (chan inference.Image, chan error, error)
}
