// Package store holds the authoritative character and panel collections.
//
// Every mutating operation persists the affected collection through the
// injected Persister before it returns. Lookups that miss are silent no-ops
// and do not touch the durable medium.
package store

import (
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/minhdwien/Manhuamaker/pkg/metrics"
	"github.com/minhdwien/Manhuamaker/pkg/schema"
)

// Persister is the durable side of the store.
type Persister interface {
	// Load never fails; absent or unreadable collections come back empty.
	Load() ([]schema.Character, []schema.ComicPanel)
	SaveCharacters([]schema.Character) error
	SavePanels([]schema.ComicPanel) error
}

type Store struct {
	mu         sync.Mutex
	characters []schema.Character
	panels     []schema.ComicPanel
	persist    Persister
	log        *log.Logger
}

// New rehydrates a store from p.
func New(p Persister, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	chars, panels := p.Load()
	if chars == nil {
		chars = []schema.Character{}
	}
	if panels == nil {
		panels = []schema.ComicPanel{}
	}
	logger.Info("store loaded", "characters", len(chars), "panels", len(panels))
	return &Store{
		characters: chars,
		panels:     panels,
		persist:    p,
		log:        logger,
	}
}

func (s *Store) Characters() []schema.Character {
	s.mu.Lock()
	defer s.mu.Unlock()
	return schema.CloneCharacters(s.characters)
}

func (s *Store) Panels() []schema.ComicPanel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return schema.ClonePanels(s.panels)
}

func (s *Store) Character(id string) (schema.Character, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.characterIndex(id); i >= 0 {
		return s.characters[i].Clone(), true
	}
	return schema.Character{}, false
}

// Snapshot copies both collections under one lock, for backups.
func (s *Store) Snapshot() ([]schema.Character, []schema.ComicPanel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return schema.CloneCharacters(s.characters), schema.ClonePanels(s.panels)
}

// Counts returns the sizes of both collections.
func (s *Store) Counts() (characters, panels int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.characters), len(s.panels)
}

func (s *Store) AddCharacter(c schema.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.characters = append(s.characters, c.Clone())
	return s.saveCharacters("add_character")
}

func (s *Store) DeleteCharacter(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.characterIndex(id)
	if i < 0 {
		s.miss("delete_character", "id", id)
		return nil
	}
	s.characters = slices.Delete(s.characters, i, i+1)
	return s.saveCharacters("delete_character")
}

// AddItemToCharacter appends item to the character's items. It reports
// whether the character exists; a missing character is a no-op.
func (s *Store) AddItemToCharacter(charID string, item schema.Item) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.characterIndex(charID)
	if i < 0 {
		s.miss("add_item", "character", charID)
		return false, nil
	}
	c := &s.characters[i]
	if c.Items == nil {
		c.Items = []schema.Item{}
	}
	c.Items = append(c.Items, item)
	return true, s.saveCharacters("add_item")
}

func (s *Store) DeleteItemFromCharacter(charID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.characterIndex(charID)
	if i < 0 {
		s.miss("delete_item", "character", charID)
		return nil
	}
	c := &s.characters[i]
	j := slices.IndexFunc(c.Items, func(it schema.Item) bool { return it.ID == itemID })
	if j < 0 {
		s.miss("delete_item", "character", charID, "item", itemID)
		return nil
	}
	c.Items = slices.Delete(c.Items, j, j+1)
	return s.saveCharacters("delete_item")
}

func (s *Store) AddPanel(p schema.ComicPanel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panels = append(s.panels, p)
	return s.savePanels("add_panel")
}

func (s *Store) DeletePanel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.panels, func(p schema.ComicPanel) bool { return p.ID == id })
	if i < 0 {
		s.miss("delete_panel", "id", id)
		return nil
	}
	s.panels = slices.Delete(s.panels, i, i+1)
	return s.savePanels("delete_panel")
}

// ReplaceAll discards both collections and installs the given ones. It never merges.
func (s *Store) ReplaceAll(characters []schema.Character, panels []schema.ComicPanel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.characters = schema.CloneCharacters(characters)
	s.panels = schema.ClonePanels(panels)
	if err := s.persist.SaveCharacters(s.characters); err != nil {
		s.log.Error("persist characters", "op", "replace_all", "error", err)
		return fmt.Errorf("persist characters: %w", err)
	}
	if err := s.persist.SavePanels(s.panels); err != nil {
		s.log.Error("persist panels", "op", "replace_all", "error", err)
		return fmt.Errorf("persist panels: %w", err)
	}
	metrics.StoreMutations.WithLabelValues("replace_all").Inc()
	return nil
}

func (s *Store) characterIndex(id string) int {
	return slices.IndexFunc(s.characters, func(c schema.Character) bool { return c.ID == id })
}

func (s *Store) saveCharacters(op string) error {
	if err := s.persist.SaveCharacters(s.characters); err != nil {
		s.log.Error("persist characters", "op", op, "error", err)
		return fmt.Errorf("persist characters: %w", err)
	}
	metrics.StoreMutations.WithLabelValues(op).Inc()
	return nil
}

func (s *Store) savePanels(op string) error {
	if err := s.persist.SavePanels(s.panels); err != nil {
		s.log.Error("persist panels", "op", op, "error", err)
		return fmt.Errorf("persist panels: %w", err)
	}
	metrics.StoreMutations.WithLabelValues(op).Inc()
	return nil
}

func (s *Store) miss(op string, keyvals ...any) {
	metrics.StoreLookupMisses.WithLabelValues(op).Inc()
	s.log.Debug("lookup miss", append([]any{"op", op}, keyvals...)...)
}
