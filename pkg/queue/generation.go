package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/minhdwien/Manhuamaker/pkg/inference"
	"github.com/minhdwien/Manhuamaker/pkg/utils"
)

var (
	ErrFull    = errors.New("queue is full")
	ErrStopped = errors.New("queue is stopped")
)

// Generation runs image requests one at a time against a Generator. It is
// itself a Generator, so callers can use it in place of the backend.
type Generation struct {
	gen     inference.Generator
	timeout time.Duration
	items   chan *Item
	stop    chan struct{}
	wg      sync.WaitGroup

	// mu orders Add against Stop so nothing is enqueued after the drain.
	mu      sync.Mutex
	stopped bool
}

type Item struct {
	Ctx      context.Context
	Request  inference.Request
	Response chan inference.Image
	Error    chan error
}

var _ Queue = (*Generation)(nil)
var _ inference.Generator = (*Generation)(nil)

// New creates a queue holding at most size waiting requests. A positive
// timeout bounds each generation.
func New(gen inference.Generator, size int, timeout time.Duration) *Generation {
	if size <= 0 {
		size = 1
	}
	return &Generation{
		gen:     gen,
		timeout: timeout,
		items:   make(chan *Item, size),
		stop:    make(chan struct{}),
	}
}

func (q *Generation) Name() string { return q.gen.Name() }

func (q *Generation) Start() {
	q.wg.Add(1)
	go q.processLoop()
}

// Stop ends the worker after the current item. Waiting items fail with ErrStopped.
func (q *Generation) Stop() {
	q.mu.Lock()
	if !q.stopped {
		q.stopped = true
		close(q.stop)
	}
	q.mu.Unlock()
	q.wg.Wait()
	for {
		select {
		case item := <-q.items:
			item.Error <- ErrStopped
			close(item.Response)
		default:
			return
		}
	}
}

func (q *Generation) Add(ctx context.Context, req inference.Request) (chan inference.Image, chan error, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return nil, nil, ErrStopped
	}

	respCh := make(chan inference.Image, 1)
	errCh := make(chan error, 1)

	select {
	case q.items <- &Item{
		Ctx:      ctx,
		Request:  req,
		Response: respCh,
		Error:    errCh,
	}:
		return respCh, errCh, nil
	default:
		return nil, nil, ErrFull
	}
}

// Generate enqueues req and waits for its result or for ctx to end.
func (q *Generation) Generate(ctx context.Context, req inference.Request) (inference.Image, error) {
	respCh, errCh, err := q.Add(ctx, req)
	if err != nil {
		return inference.Image{}, err
	}
	select {
	case <-ctx.Done():
		return inference.Image{}, ctx.Err()
	case err := <-errCh:
		if err != nil {
			return inference.Image{}, err
		}
		return <-respCh, nil
	case img, ok := <-respCh:
		if !ok {
			return inference.Image{}, <-errCh
		}
		return img, nil
	}
}

func (q *Generation) processLoop() {
	defer q.wg.Done()
	log.Info("generation queue started", "backend", q.gen.Name())
	for {
		select {
		case <-q.stop:
			log.Info("generation queue stopped")
			return
		case item := <-q.items:
			q.processItem(item)
		}
	}
}

func (q *Generation) processItem(item *Item) {
	ctx := item.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		item.Error <- err
		close(item.Response)
		return
	}
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	log.Debug("processing generation", "prompt", utils.LimitStr(item.Request.Prompt, 50), "references", len(item.Request.References))

	img, err := q.gen.Generate(ctx, item.Request)
	if err != nil {
		log.Warn("generation failed", "error", err)
		item.Error <- err
		close(item.Response)
		return
	}

	item.Response <- img
	close(item.Error)
}
