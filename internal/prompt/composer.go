// Package prompt builds provider prompts from user selections. Everything in
// here is pure: no I/O, deterministic for a given input and variation index
// (seeds excluded).
package prompt

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"unicode/utf8"

	"github.com/pawtrait/backend/internal/catalog"
	"github.com/pawtrait/backend/internal/models"
	"github.com/pawtrait/backend/internal/plan"
)

// ErrValidation marks selections rejected before any provider call.
var ErrValidation = errors.New("invalid selections")

const customTextLimit = 64

const baseNegative = "deformed, extra limbs, blurry, low quality, watermark, text, human face"

// Variation is one prompt derived for a single image in a batch. Ephemeral;
// persisted only inside the generation record's jobs.
type Variation struct {
	Prompt         string
	NegativePrompt string
	Seed           int64
}

// injectionPools are the per-tier candidates diversity injection draws from.
// The starter tier has none and never receives injection.
var injectionPools = map[models.TierID][]injection{
	models.TierPro: {
		{styleID: "watercolor", backgroundID: "flower-meadow"},
		{styleID: "pop-art", backgroundID: "city-night"},
		{styleID: "oil-painting", backgroundID: "royal-library"},
	},
	models.TierUltra: {
		{styleID: "renaissance", backgroundID: "royal-library", accessoryID: "crown"},
		{styleID: "cyberpunk", backgroundID: "city-night"},
		{styleID: "watercolor", backgroundID: "beach-sunset", accessoryID: "flower-wreath"},
		{styleID: "anime", backgroundID: "autumn-park"},
	},
	models.TierMax: {
		{styleID: "renaissance", backgroundID: "royal-library", accessoryID: "crown"},
		{styleID: "cyberpunk", backgroundID: "city-night", accessoryID: "glasses"},
		{styleID: "pop-art", backgroundID: "studio-dark"},
		{styleID: "oil-painting", backgroundID: "cozy-fireplace", accessoryID: "bow-tie"},
		{styleID: "anime", backgroundID: "beach-sunset", accessoryID: "sailor-hat"},
	},
}

type injection struct {
	styleID      string
	backgroundID string
	accessoryID  string
}

var qualityPhrases = []string{
	"masterpiece quality",
	"highly detailed",
	"award-winning composition",
	"ultra fine detail",
}

var moodPhrases = []string{
	"warm and heartfelt",
	"playful and lively",
	"calm and dignified",
	"whimsical and charming",
}

// Validate rejects selections that cannot produce a prompt. Unknown catalog
// ids are not errors; they fall back to defaults downstream.
func Validate(sel models.UserSelections) error {
	if strings.TrimSpace(sel.PetType) == "" {
		return fmt.Errorf("%w: pet_type is required", ErrValidation)
	}
	if strings.TrimSpace(sel.StyleID) == "" {
		return fmt.Errorf("%w: style_id is required", ErrValidation)
	}
	if strings.TrimSpace(sel.BackgroundID) == "" {
		return fmt.Errorf("%w: background_id is required", ErrValidation)
	}
	return nil
}

// BuildPrompt composes the primary prompt for the given selections under the
// tier profile. Custom free-text overrides apply only when the profile allows
// them; a custom style suppresses the predefined style modifiers.
func BuildPrompt(sel models.UserSelections, profile plan.Profile) string {
	var parts []string

	subject := strings.TrimSpace(sel.PetType)
	if breed := strings.TrimSpace(sel.Breed); breed != "" {
		subject = breed + " " + subject
	}

	styleText, modifiers := resolveStyle(sel, profile)
	parts = append(parts, fmt.Sprintf("%s of a %s", styleText, subject))

	if name := strings.TrimSpace(sel.PetName); name != "" {
		parts = append(parts, fmt.Sprintf("named %s", name))
	}

	parts = append(parts, resolveBackground(sel, profile))
	parts = append(parts, resolveAccessories(sel, profile)...)
	parts = append(parts, modifiers...)

	return strings.Join(parts, ", ")
}

// BuildNegativePrompt composes the negative prompt: a fixed base plus the
// resolved style's own negative terms.
func BuildNegativePrompt(sel models.UserSelections, profile plan.Profile) string {
	if usesCustomStyle(sel, profile) {
		return baseNegative
	}
	style := catalog.StyleByID(sel.StyleID)
	if style.Negative == "" {
		return baseNegative
	}
	return baseNegative + ", " + style.Negative
}

// GenerateVariations derives count prompt variations for a batch. Paid tiers
// above starter get deterministic diversity injection on every Nth index;
// every variation gets a quality phrase, a mood phrase and a fresh seed.
func GenerateVariations(sel models.UserSelections, count int, profile plan.Profile) ([]Variation, error) {
	if err := Validate(sel); err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, fmt.Errorf("%w: image count must be at least 1", ErrValidation)
	}

	pool := injectionPools[profile.Tier]
	variations := make([]Variation, 0, count)
	for i := 0; i < count; i++ {
		varSel := sel
		if profile.DiversityFrequency > 0 && len(pool) > 0 && (i+1)%profile.DiversityFrequency == 0 {
			inj := pool[i%len(pool)]
			varSel.StyleID = inj.styleID
			varSel.BackgroundID = inj.backgroundID
			if inj.accessoryID != "" {
				varSel.AccessoryIDs = []string{inj.accessoryID}
			}
			// Injected catalog entries replace any custom override.
			varSel.CustomStyle = ""
			varSel.CustomBackground = ""
			varSel.CustomAccessory = ""
		}

		p := BuildPrompt(varSel, profile)
		p += ", " + qualityPhrases[i%len(qualityPhrases)]
		p += ", " + moodPhrases[i%len(moodPhrases)]

		variations = append(variations, Variation{
			Prompt:         p,
			NegativePrompt: BuildNegativePrompt(varSel, profile),
			Seed:           rand.Int63n(1 << 31),
		})
	}
	return variations, nil
}

func usesCustomStyle(sel models.UserSelections, profile plan.Profile) bool {
	return sel.StyleID == catalog.CustomID && strings.TrimSpace(sel.CustomStyle) != "" && profile.AllowCustom
}

func resolveStyle(sel models.UserSelections, profile plan.Profile) (string, []string) {
	if usesCustomStyle(sel, profile) {
		return truncate(sel.CustomStyle), nil
	}
	style := catalog.StyleByID(sel.StyleID)
	return style.Prompt, style.Modifiers
}

func resolveBackground(sel models.UserSelections, profile plan.Profile) string {
	if sel.BackgroundID == catalog.CustomID && strings.TrimSpace(sel.CustomBackground) != "" && profile.AllowCustom {
		return truncate(sel.CustomBackground)
	}
	return catalog.BackgroundByID(sel.BackgroundID).Prompt
}

func resolveAccessories(sel models.UserSelections, profile plan.Profile) []string {
	var out []string
	for _, id := range sel.AccessoryIDs {
		if id == catalog.CustomID {
			if text := strings.TrimSpace(sel.CustomAccessory); text != "" && profile.AllowCustom {
				out = append(out, truncate(text))
			}
			continue
		}
		if acc, ok := catalog.AccessoryByID(id); ok {
			out = append(out, acc.Prompt)
		}
	}
	return out
}

// truncate caps custom free-text at customTextLimit characters. The cut is by
// rune, never by byte, so multi-byte text is not mangled at the boundary.
func truncate(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= customTextLimit {
		return s
	}
	return string([]rune(s)[:customTextLimit])
}
