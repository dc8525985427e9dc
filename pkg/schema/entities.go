package schema

import (
	"slices"
	"strings"
	"time"

	"github.com/segmentio/ksuid"
)

type CharacterStats struct {
	Gender   string `json:"gender" jsonschema_description:"Gender of the character (male or female)"`
	Height   string `json:"height" jsonschema_description:"Height with unit (e.g., 165cm)"`
	Bust     string `json:"bust" jsonschema_description:"Bust or chest measurement in cm"`
	Waist    string `json:"waist" jsonschema_description:"Waist measurement in cm"`
	Hip      string `json:"hip" jsonschema_description:"Hip measurement in cm"`
	Age      string `json:"age" jsonschema_description:"Apparent age"`
	SkinTone string `json:"skinTone" jsonschema_description:"Skin tone"`
	Build    string `json:"build" jsonschema_description:"Body build (e.g., slim, muscular)"`
}

type CharacterAppearance struct {
	HairStyle     string `json:"hairStyle" jsonschema_description:"Hair style"`
	HairColor     string `json:"hairColor" jsonschema_description:"Hair color"`
	EyeColor      string `json:"eyeColor" jsonschema_description:"Eye color"`
	ClothingStyle string `json:"clothingStyle" jsonschema_description:"Clothing style"`
	Accessories   string `json:"accessories" jsonschema_description:"Accessories worn or carried"`
}

type Item struct {
	ID          string `json:"id" jsonschema_description:"Opaque unique identifier"`
	Name        string `json:"name" jsonschema_description:"Display name"`
	Type        string `json:"type" jsonschema_description:"Item category"`
	Description string `json:"description" jsonschema_description:"Free text description"`
	ImageURL    string `json:"imageUrl" jsonschema_description:"Data URI or external URL of the item image"`
}

// Character is a persistent attribute sheet plus image. Stats and Appearance
// are either both set (generated characters) or both nil (uploaded ones).
type Character struct {
	ID          string               `json:"id" jsonschema_description:"Opaque unique identifier"`
	Name        string               `json:"name" jsonschema_description:"Display name"`
	Description string               `json:"description" jsonschema_description:"Free text description"`
	ImageURL    string               `json:"imageUrl" jsonschema_description:"Data URI or external URL of the character image"`
	Stats       *CharacterStats      `json:"stats,omitempty" jsonschema_description:"Body attributes, present only for generated characters"`
	Appearance  *CharacterAppearance `json:"appearance,omitempty" jsonschema_description:"Look attributes, present only for generated characters"`
	Items       []Item               `json:"items,omitempty" jsonschema_description:"Inventory owned by this character"`
}

type ComicPanel struct {
	ID        string `json:"id" jsonschema_description:"Opaque unique identifier"`
	Prompt    string `json:"prompt" jsonschema_description:"Text that produced the panel"`
	ImageURL  string `json:"imageUrl" jsonschema_description:"Data URI or external URL of the rendered panel"`
	Timestamp int64  `json:"timestamp" jsonschema_description:"Creation instant in epoch milliseconds"`
}

// BackupData is the interchange envelope used for export, import and remote backup.
type BackupData struct {
	Characters []Character  `json:"characters" jsonschema_description:"Full snapshot of the character collection"`
	Panels     []ComicPanel `json:"panels" jsonschema_description:"Full snapshot of the panel collection"`
	Timestamp  int64        `json:"timestamp" jsonschema_description:"Snapshot instant in epoch milliseconds"`
	Version    string       `json:"version" jsonschema_description:"Envelope schema version"`
}

const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// IsMale accepts both the English tag and the Vietnamese "Nam" used by older exports.
func (s *CharacterStats) IsMale() bool {
	if s == nil {
		return false
	}
	g := strings.ToLower(strings.TrimSpace(s.Gender))
	return g == GenderMale || g == "nam"
}

const (
	ItemWeapon   = "weapon"
	ItemArtifact = "artifact"
	ItemElixir   = "elixir"
	ItemManual   = "manual"
	ItemBeast    = "beast"
	ItemCostume  = "costume"
)

// ItemTypes is the fixed vocabulary offered when creating items.
var ItemTypes = []string{ItemWeapon, ItemArtifact, ItemElixir, ItemManual, ItemBeast, ItemCostume}

func ValidItemType(t string) bool {
	return slices.Contains(ItemTypes, t)
}

// NewID returns a time-ordered identifier.
func NewID() string {
	return ksuid.New().String()
}

// Millis converts t to the epoch-millisecond form stored in panels and envelopes.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// Clone returns a deep copy; the store never hands out values that alias its own.
func (c Character) Clone() Character {
	if c.Stats != nil {
		s := *c.Stats
		c.Stats = &s
	}
	if c.Appearance != nil {
		a := *c.Appearance
		c.Appearance = &a
	}
	if c.Items != nil {
		c.Items = slices.Clone(c.Items)
	}
	return c
}

func CloneCharacters(in []Character) []Character {
	out := make([]Character, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}

func ClonePanels(in []ComicPanel) []ComicPanel {
	if in == nil {
		return []ComicPanel{}
	}
	return slices.Clone(in)
}
