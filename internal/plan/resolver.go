// Package plan maps subscription tiers to immutable generation resource
// profiles. Profiles are looked up, never mutated.
package plan

import "github.com/pawtrait/backend/internal/models"

// Profile is the full set of generation parameters a tier buys.
type Profile struct {
	Tier            models.TierID
	Model           string
	Width           int
	Height          int
	Steps           int
	Guidance        float64
	OutputFormat    string
	CharacterLock   bool
	MaxImagesPerJob int

	// DiversityFrequency is how often diversity injection fires within a
	// batch (every Nth variation); 0 disables it. AllowCustom permits the
	// free-text style/background/accessory overrides.
	DiversityFrequency int
	AllowCustom        bool
}

var profiles = map[models.TierID]Profile{
	models.TierStarter: {
		Tier:            models.TierStarter,
		Model:           "petcanvas-v1",
		Width:           768,
		Height:          768,
		Steps:           30,
		Guidance:        7.0,
		OutputFormat:    "jpeg",
		CharacterLock:   false,
		MaxImagesPerJob: 1,
	},
	models.TierPro: {
		Tier:               models.TierPro,
		Model:              "petcanvas-v1",
		Width:              1024,
		Height:             1024,
		Steps:              40,
		Guidance:           7.5,
		OutputFormat:       "png",
		CharacterLock:      true,
		MaxImagesPerJob:    2,
		DiversityFrequency: 3,
	},
	models.TierUltra: {
		Tier:               models.TierUltra,
		Model:              "petcanvas-v2",
		Width:              1024,
		Height:             1024,
		Steps:              50,
		Guidance:           8.0,
		OutputFormat:       "png",
		CharacterLock:      true,
		MaxImagesPerJob:    3,
		DiversityFrequency: 2,
	},
	models.TierMax: {
		Tier:               models.TierMax,
		Model:              "petcanvas-v2",
		Width:              1536,
		Height:             1536,
		Steps:              60,
		Guidance:           8.0,
		OutputFormat:       "png",
		CharacterLock:      true,
		MaxImagesPerJob:    4,
		DiversityFrequency: 2,
		AllowCustom:        true,
	},
}

// Resolve returns the profile for a tier. Unknown tiers resolve to the
// starter profile rather than failing.
func Resolve(tier models.TierID) Profile {
	if p, ok := profiles[tier]; ok {
		return p
	}
	return profiles[models.TierStarter]
}

// EstimateGenerationTime is a linear user-facing ETA in seconds. It is not
// used for any scheduling decision.
func EstimateGenerationTime(numImages, steps int) int {
	if numImages < 0 {
		numImages = 0
	}
	return numImages * 30 * steps / 50
}
