// Package restore applies a decoded backup to the store as a full overwrite,
// but only after the user has confirmed it.
package restore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/minhdwien/Manhuamaker/pkg/backup"
	"github.com/minhdwien/Manhuamaker/pkg/metrics"
	"github.com/minhdwien/Manhuamaker/pkg/schema"
)

// ErrUnknownToken is returned for tokens that were never issued, were
// already confirmed or cancelled, or have expired.
var ErrUnknownToken = errors.New("unknown or expired restore token")

type State string

const (
	Idle                State = "idle"
	DocumentReceived    State = "document_received"
	ConfirmationPending State = "confirmation_pending"
	Applied             State = "applied"
	Cancelled           State = "cancelled"
)

// Target is the store side of a restore.
type Target interface {
	ReplaceAll([]schema.Character, []schema.ComicPanel) error
	Counts() (characters, panels int)
}

// Pending describes a document awaiting confirmation.
type Pending struct {
	Token      string    `json:"token"`
	Characters int       `json:"characters"`
	Panels     int       `json:"panels"`
	Version    string    `json:"version,omitempty"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Result reports the store sizes after an applied restore.
type Result struct {
	Characters int `json:"characters"`
	Panels     int `json:"panels"`
}

type pending struct {
	doc     schema.BackupData
	expires time.Time
}

type Reconciler struct {
	mu      sync.Mutex
	target  Target
	ttl     time.Duration
	pending map[string]pending
	log     *log.Logger

	now func() time.Time
}

func New(target Target, ttl time.Duration, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Reconciler{
		target:  target,
		ttl:     ttl,
		pending: make(map[string]pending),
		log:     logger,
		now:     time.Now,
	}
}

// Receive decodes data and, on success, holds it for confirmation. Decode
// failures leave the store untouched and are returned as is.
func (r *Reconciler) Receive(data []byte) (Pending, error) {
	doc, err := backup.Decode(data)
	if err != nil {
		metrics.Restores.WithLabelValues("rejected").Inc()
		r.log.Warn("backup rejected", "state", Idle, "error", err)
		return Pending{}, err
	}
	r.log.Debug("backup decoded", "state", DocumentReceived, "characters", len(doc.Characters))
	return r.Request(doc), nil
}

// Request registers an already decoded document under a fresh token.
func (r *Reconciler) Request(doc schema.BackupData) Pending {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune()

	token := uuid.NewString()
	expires := r.now().Add(r.ttl)
	r.pending[token] = pending{doc: doc, expires: expires}

	r.log.Info("restore awaiting confirmation", "state", ConfirmationPending, "token", token,
		"characters", len(doc.Characters), "panels", len(doc.Panels))
	return Pending{
		Token:      token,
		Characters: len(doc.Characters),
		Panels:     len(doc.Panels),
		Version:    doc.Version,
		ExpiresAt:  expires,
	}
}

// Confirm overwrites the store with the held document and consumes the token.
// Absent panels restore as an empty collection.
func (r *Reconciler) Confirm(token string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.take(token)
	if err != nil {
		return Result{}, err
	}

	chars := p.doc.Characters
	if chars == nil {
		chars = []schema.Character{}
	}
	panels := p.doc.Panels
	if panels == nil {
		panels = []schema.ComicPanel{}
	}
	if err := r.target.ReplaceAll(chars, panels); err != nil {
		metrics.Restores.WithLabelValues("failed").Inc()
		return Result{}, fmt.Errorf("apply restore: %w", err)
	}

	metrics.Restores.WithLabelValues("applied").Inc()
	c, n := r.target.Counts()
	r.log.Info("restore applied", "state", Applied, "token", token, "characters", c, "panels", n)
	return Result{Characters: c, Panels: n}, nil
}

// Cancel discards the held document; the store is not touched.
func (r *Reconciler) Cancel(token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.take(token); err != nil {
		return err
	}
	metrics.Restores.WithLabelValues("cancelled").Inc()
	r.log.Info("restore cancelled", "state", Cancelled, "token", token)
	return nil
}

func (r *Reconciler) take(token string) (pending, error) {
	r.prune()
	p, ok := r.pending[token]
	if !ok {
		return pending{}, ErrUnknownToken
	}
	delete(r.pending, token)
	return p, nil
}

func (r *Reconciler) prune() {
	now := r.now()
	for token, p := range r.pending {
		if !now.Before(p.expires) {
			delete(r.pending, token)
			r.log.Debug("restore expired", "token", token)
		}
	}
}
