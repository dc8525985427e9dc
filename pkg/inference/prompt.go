package inference

import (
	"fmt"
	"strings"

	"github.com/minhdwien/Manhuamaker/pkg/schema"
)

const characterPrompt = `Draw a full body character sheet in the style of a modern ancient-cultivation manhua.

ART STYLE:
- Linework: high quality modern manhua (masterpiece), vivid colours, ethereal glow lighting, skin with a soft sheen.
- Presence: %s
- Setting: a fantasy ancient world veiled in drifting mist.

CHARACTER:
- Name: %s
- Gender: %s
- Age: %s (youthful, ageless look)
- Build: %s
- Skin tone: %s
- Hair style: %s (ancient fashion)
- Hair colour: %s
- Eye colour: %s
- Clothing: %s. Flowing silk robes with soft drape and fine gold-thread embroidery.
- Accessories: %s

ADDITIONAL DESCRIPTION:
%s

BODY REQUIREMENTS (follow the measurements exactly):
- Height: %s
- Measurements: %s %scm, slim waist %scm, hips %scm.
- Proportions: long legs, golden ratio, sensual but artistic, never explicit.
`

const (
	maleStyle   = "handsome cultivation protagonist, roguish charm, domineering aura, muscular but elegant."
	femaleStyle = "alluring cultivation fairy, hourglass figure, jade-white skin, form-fitting ancient robes."
)

const itemPrompt = `Draw a game asset illustration of a fantasy cultivation artifact.

ITEM:
- Name: %s
- Type: %s
- Details: %s

STYLE:
- High quality, intricate details.
- Mysterious magical glow and aura.
- Close-up, isolated centered composition on a plain background or spell effect.
- Rich, luxurious colours with a mythic ancient feel.
`

const panelPrompt = `Draw a single comic panel in the style of an ancient-cultivation manhua.

REFERENCE CHARACTERS (images attached above):
%s

SCENE (ancient cultivation setting):
%s

REQUIREMENTS:
- When the scene names a reference character, draw them exactly like their reference image (face, hair, build, ancient clothing).
- Art style: polished manhua linework, ethereal lighting, rich colours.
- Subtle sensuality only where the scene calls for it, never vulgar.
- Detailed ancient backdrop (pavilions, mountains, bamboo forests).
`

// CharacterPrompt builds the prompt for a generated character. Stats and
// appearance must both be present.
func CharacterPrompt(name, description string, stats schema.CharacterStats, appearance schema.CharacterAppearance) string {
	style, chest := femaleStyle, "full bust"
	if stats.IsMale() {
		style, chest = maleStyle, "broad chest"
	}
	return fmt.Sprintf(characterPrompt,
		style,
		name,
		stats.Gender,
		stats.Age,
		stats.Build,
		stats.SkinTone,
		appearance.HairStyle,
		appearance.HairColor,
		appearance.EyeColor,
		appearance.ClothingStyle,
		appearance.Accessories,
		description,
		stats.Height,
		chest, stats.Bust, stats.Waist, stats.Hip,
	)
}

func ItemPrompt(name, itemType, description string) string {
	return fmt.Sprintf(itemPrompt, name, itemType, description)
}

// PanelPrompt lists each reference character in the order their images are
// attached, with gender and carried items, followed by the scene text.
func PanelPrompt(prompt string, characters []schema.Character) string {
	var refs strings.Builder
	for i, c := range characters {
		gender := schema.GenderFemale
		if c.Stats != nil && c.Stats.Gender != "" {
			gender = c.Stats.Gender
		}
		fmt.Fprintf(&refs, "Reference character %d: %q (%s).", i+1, c.Name, gender)
		if len(c.Items) > 0 {
			names := make([]string, len(c.Items))
			for j, it := range c.Items {
				names[j] = it.Name
			}
			fmt.Fprintf(&refs, " Carrying: %s.", strings.Join(names, ", "))
		}
		refs.WriteByte('\n')
	}
	if refs.Len() == 0 {
		refs.WriteString("None.\n")
	}
	return fmt.Sprintf(panelPrompt, strings.TrimRight(refs.String(), "\n"), prompt)
}

// References collects the embedded images of characters in order. Characters
// whose image is an external URL contribute nothing.
func References(characters []schema.Character) []Image {
	var refs []Image
	for _, c := range characters {
		if img, ok := ParseDataURI(c.ImageURL); ok {
			refs = append(refs, img)
		}
	}
	return refs
}
