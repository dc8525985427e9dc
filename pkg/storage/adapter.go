package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/minhdwien/Manhuamaker/pkg/schema"
)

const (
	CharactersKey = "manhua_characters"
	PanelsKey     = "manhua_panels"
)

// Adapter persists each collection as a JSON array under its own fixed key.
// Writes are whole-collection overwrites.
type Adapter struct {
	kv      KV
	timeout time.Duration
	log     *log.Logger
}

func NewAdapter(kv KV, timeout time.Duration, logger *log.Logger) *Adapter {
	if logger == nil {
		logger = log.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Adapter{kv: kv, timeout: timeout, log: logger}
}

// Load reads both keys. A key that is absent or does not hold a JSON array
// of the right shape yields an empty collection.
func (a *Adapter) Load() ([]schema.Character, []schema.ComicPanel) {
	chars := loadCollection[schema.Character](a, CharactersKey)
	panels := loadCollection[schema.ComicPanel](a, PanelsKey)
	return chars, panels
}

func (a *Adapter) SaveCharacters(chars []schema.Character) error {
	if chars == nil {
		chars = []schema.Character{}
	}
	return a.save(CharactersKey, chars)
}

func (a *Adapter) SavePanels(panels []schema.ComicPanel) error {
	if panels == nil {
		panels = []schema.ComicPanel{}
	}
	return a.save(PanelsKey, panels)
}

func (a *Adapter) save(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.kv.Set(ctx, key, data); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func loadCollection[T any](a *Adapter, key string) []T {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	data, err := a.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			a.log.Warn("failed to read collection, starting empty", "key", key, "error", err)
		}
		return []T{}
	}

	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		a.log.Warn("unparsable collection, starting empty", "key", key, "error", err)
		return []T{}
	}
	if out == nil {
		out = []T{}
	}
	return out
}
