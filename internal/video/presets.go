package video

import (
	"fmt"
	"strings"
)

// term is one entry of a filter chain: the ffmpeg filter it needs and a
// renderer producing the concrete expression for a given intensity.
type term struct {
	filter string
	render func(k float64) string
}

// Preset is a parameterized filter-chain template. Intensity linearly
// scales the numeric parameters of each term.
type Preset struct {
	Name  string
	terms []term
}

// DefaultPreset is used when the requested preset is unknown.
const DefaultPreset = "cinematic"

var presetAliases = map[string]string{
	"b&w":         "bw",
	"mono":        "bw",
	"blackwhite":  "bw",
	"black_white": "bw",
}

var presets = map[string]Preset{
	"cinematic": {
		Name: "cinematic",
		terms: []term{
			{filter: "eq", render: func(k float64) string {
				return fmt.Sprintf("eq=contrast=%.3f:saturation=%.3f:gamma=%.3f",
					1.0+0.20*k, 1.0+0.15*k, 1.0-0.05*k)
			}},
			{filter: "vignette", render: func(k float64) string {
				return fmt.Sprintf("vignette=angle=%.4f", 0.2+0.4*k)
			}},
		},
	},
	"bw": {
		Name: "bw",
		terms: []term{
			{filter: "hue", render: func(k float64) string {
				return "hue=s=0"
			}},
			{filter: "eq", render: func(k float64) string {
				return fmt.Sprintf("eq=contrast=%.3f", 1.0+0.15*k)
			}},
		},
	},
	"vivid": {
		Name: "vivid",
		terms: []term{
			{filter: "eq", render: func(k float64) string {
				return fmt.Sprintf("eq=contrast=%.3f:saturation=%.3f",
					1.0+0.25*k, 1.0+0.45*k)
			}},
			{filter: "unsharp", render: func(k float64) string {
				return fmt.Sprintf("unsharp=5:5:%.3f", 0.3+0.7*k)
			}},
		},
	},
	"vintage": {
		Name: "vintage",
		terms: []term{
			{filter: "eq", render: func(k float64) string {
				return fmt.Sprintf("eq=contrast=%.3f:saturation=%.3f:gamma=%.3f",
					1.0-0.10*k, 1.0-0.30*k, 1.0+0.10*k)
			}},
			{filter: "gblur", render: func(k float64) string {
				return fmt.Sprintf("gblur=sigma=%.3f", 0.5+1.5*k)
			}},
			{filter: "noise", render: func(k float64) string {
				return fmt.Sprintf("noise=alls=%d:allf=t", int(4+16*k))
			}},
			{filter: "vignette", render: func(k float64) string {
				return fmt.Sprintf("vignette=angle=%.4f", 0.3+0.4*k)
			}},
		},
	},
}

// SubstitutionFlags records which degradations were applied while resolving
// a chain against the locally supported filter set.
type SubstitutionFlags struct {
	GblurFallback   bool `json:"gblur_fallback,omitempty"`
	VignetteRemoved bool `json:"vignette_removed,omitempty"`
}

// ResolvePreset normalizes the requested name through the alias table and
// falls back to the default for anything unknown.
func ResolvePreset(name string) Preset {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := presetAliases[key]; ok {
		key = canonical
	}
	p, ok := presets[key]
	if !ok {
		return presets[DefaultPreset]
	}
	return p
}

// BuildChain renders the preset at the given intensity, keeping only terms
// the supported set can run. gblur degrades to boxblur with a radius derived
// from the sigma; vignette has no equivalent and is dropped. Terms whose
// filter is missing and has no substitute are dropped silently.
func BuildChain(p Preset, intensity float64, supported func(string) bool) (string, SubstitutionFlags) {
	if intensity < 0 {
		intensity = 0
	}
	if intensity > 1 {
		intensity = 1
	}

	var flags SubstitutionFlags
	parts := make([]string, 0, len(p.terms))
	for _, t := range p.terms {
		if supported(t.filter) {
			parts = append(parts, t.render(intensity))
			continue
		}
		switch t.filter {
		case "gblur":
			if supported("boxblur") {
				// boxblur radius approximating a gaussian sigma.
				radius := int(2 * (0.5 + 1.5*intensity))
				if radius < 1 {
					radius = 1
				}
				parts = append(parts, fmt.Sprintf("boxblur=%d:1", radius))
				flags.GblurFallback = true
			}
		case "vignette":
			flags.VignetteRemoved = true
		}
	}
	return strings.Join(parts, ","), flags
}
