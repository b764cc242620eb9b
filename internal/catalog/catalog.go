// Package catalog holds the fixed style/background/accessory definitions the
// prompt composer resolves user selections against.
package catalog

import "sort"

// CustomID is the reserved id signalling a free-text override supplied by the
// user instead of a catalog entry.
const CustomID = "custom"

// DefaultStyleID and DefaultBackgroundID are the fallbacks for unknown ids.
const (
	DefaultStyleID      = "professional-portrait"
	DefaultBackgroundID = "studio-white"
)

type Style struct {
	ID        string
	Prompt    string
	Modifiers []string
	Negative  string
}

type Background struct {
	ID     string
	Prompt string
}

type Accessory struct {
	ID     string
	Prompt string
}

var styles = map[string]Style{
	"professional-portrait": {
		ID:        "professional-portrait",
		Prompt:    "professional studio portrait photograph",
		Modifiers: []string{"sharp focus", "soft studio lighting", "85mm lens"},
		Negative:  "cartoon, illustration, painting",
	},
	"oil-painting": {
		ID:        "oil-painting",
		Prompt:    "classical oil painting in the style of the old masters",
		Modifiers: []string{"rich brushwork", "dramatic chiaroscuro", "canvas texture"},
		Negative:  "photograph, photorealistic, flat colors",
	},
	"watercolor": {
		ID:        "watercolor",
		Prompt:    "delicate watercolor painting",
		Modifiers: []string{"soft washes", "paper grain", "loose brushstrokes"},
		Negative:  "photograph, hard edges, digital art",
	},
	"pop-art": {
		ID:        "pop-art",
		Prompt:    "bold pop art portrait",
		Modifiers: []string{"halftone dots", "vivid saturated colors", "comic shading"},
		Negative:  "muted colors, realism, photograph",
	},
	"renaissance": {
		ID:        "renaissance",
		Prompt:    "renaissance noble portrait painting",
		Modifiers: []string{"ornate period costume", "sfumato", "gilded frame tones"},
		Negative:  "modern clothing, photograph, cartoon",
	},
	"cyberpunk": {
		ID:        "cyberpunk",
		Prompt:    "neon cyberpunk character portrait",
		Modifiers: []string{"neon rim lighting", "holographic accents", "futuristic detail"},
		Negative:  "daylight, pastoral, vintage",
	},
	"anime": {
		ID:        "anime",
		Prompt:    "anime character illustration",
		Modifiers: []string{"cel shading", "expressive eyes", "clean line art"},
		Negative:  "photograph, photorealistic, 3d render",
	},
}

var backgrounds = map[string]Background{
	"studio-white":   {ID: "studio-white", Prompt: "clean white studio backdrop"},
	"studio-dark":    {ID: "studio-dark", Prompt: "moody dark studio backdrop"},
	"autumn-park":    {ID: "autumn-park", Prompt: "golden autumn park with falling leaves"},
	"beach-sunset":   {ID: "beach-sunset", Prompt: "sandy beach at warm sunset"},
	"royal-library":  {ID: "royal-library", Prompt: "grand library with wooden shelves and candlelight"},
	"flower-meadow":  {ID: "flower-meadow", Prompt: "blooming wildflower meadow"},
	"city-night":     {ID: "city-night", Prompt: "city street at night with bokeh lights"},
	"cozy-fireplace": {ID: "cozy-fireplace", Prompt: "cozy living room by a lit fireplace"},
}

var accessories = map[string]Accessory{
	"bow-tie":       {ID: "bow-tie", Prompt: "wearing an elegant bow tie"},
	"crown":         {ID: "crown", Prompt: "wearing a small golden crown"},
	"flower-wreath": {ID: "flower-wreath", Prompt: "wearing a wreath of fresh flowers"},
	"scarf":         {ID: "scarf", Prompt: "wearing a knitted scarf"},
	"glasses":       {ID: "glasses", Prompt: "wearing round vintage glasses"},
	"sailor-hat":    {ID: "sailor-hat", Prompt: "wearing a sailor hat"},
	"pearl-collar":  {ID: "pearl-collar", Prompt: "wearing a pearl-studded collar"},
}

// StyleByID resolves a style, falling back to the default for unknown ids.
func StyleByID(id string) Style {
	if s, ok := styles[id]; ok {
		return s
	}
	return styles[DefaultStyleID]
}

// BackgroundByID resolves a background, falling back to the default for
// unknown ids.
func BackgroundByID(id string) Background {
	if b, ok := backgrounds[id]; ok {
		return b
	}
	return backgrounds[DefaultBackgroundID]
}

// AccessoryByID resolves an accessory. Unknown ids return ok=false and are
// simply skipped by the composer.
func AccessoryByID(id string) (Accessory, bool) {
	a, ok := accessories[id]
	return a, ok
}

// Styles lists all catalog styles sorted by id.
func Styles() []Style {
	out := make([]Style, 0, len(styles))
	for _, s := range styles {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Backgrounds lists all catalog backgrounds sorted by id.
func Backgrounds() []Background {
	out := make([]Background, 0, len(backgrounds))
	for _, b := range backgrounds {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Accessories lists all catalog accessories sorted by id.
func Accessories() []Accessory {
	out := make([]Accessory, 0, len(accessories))
	for _, a := range accessories {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
