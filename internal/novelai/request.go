package novelai

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultEndpoint = "https://image.novelai.net/ai/generate-image"
	DefaultModel    = "nai-diffusion-4-full"
	DefaultSize     = "832x1216"

	defaultSteps         = 28
	defaultScale         = 7.5
	defaultCFGRescale    = 1.0
	defaultSampler       = "k_euler_ancestral"
	defaultNoiseSchedule = "karras"
)

// Request is the JSON body of a generate-image call
type Request struct {
	Input      string     `json:"input"`
	Model      string     `json:"model"`
	Action     string     `json:"action"`
	Parameters Parameters `json:"parameters"`
}

// Parameters holds the sampler settings and prompts. Prompts are sent both in
// the legacy fields and in the v4 caption structures.
type Parameters struct {
	ParamsVersion                 int      `json:"params_version"`
	Width                         int      `json:"width"`
	Height                        int      `json:"height"`
	Scale                         float64  `json:"scale"`
	Sampler                       string   `json:"sampler"`
	Steps                         int      `json:"steps"`
	NSamples                      int      `json:"n_samples"`
	Seed                          int64    `json:"seed"`
	UCPreset                      int      `json:"ucPreset"`
	QualityToggle                 bool     `json:"qualityToggle"`
	SM                            bool     `json:"sm"`
	SMDyn                         bool     `json:"sm_dyn"`
	DynamicThresholding           bool     `json:"dynamic_thresholding"`
	ControlnetStrength            float64  `json:"controlnet_strength"`
	Legacy                        bool     `json:"legacy"`
	AddOriginalImage              bool     `json:"add_original_image"`
	CFGRescale                    float64  `json:"cfg_rescale"`
	NoiseSchedule                 string   `json:"noise_schedule"`
	LegacyV3Extend                bool     `json:"legacy_v3_extend"`
	SkipCFGAboveSigma             *float64 `json:"skip_cfg_above_sigma"`
	UseCoords                     bool     `json:"use_coords"`
	NegativePrompt                string   `json:"negative_prompt"`
	V4Prompt                      V4Prompt `json:"v4_prompt"`
	V4NegativePrompt              V4Prompt `json:"v4_negative_prompt"`
	CharacterPrompts              []any    `json:"characterPrompts"`
	ReferenceImageMultiple        []any    `json:"reference_image_multiple"`
	ReferenceInformationExtracted []any    `json:"reference_information_extracted_multiple"`
	ReferenceStrengthMultiple     []any    `json:"reference_strength_multiple"`
	DeliberateEulerAncestralBug   bool     `json:"deliberate_euler_ancestral_bug"`
	PreferBrownian                bool     `json:"prefer_brownian"`
}

type V4Prompt struct {
	Caption   V4Caption `json:"caption"`
	UseCoords bool      `json:"use_coords"`
	UseOrder  bool      `json:"use_order"`
}

type V4Caption struct {
	BaseCaption  string `json:"base_caption"`
	CharCaptions []any  `json:"char_captions"`
}

// ParseSize parses "WIDTHxHEIGHT"
func ParseSize(size string) (width, height int, err error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(size)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q: want WIDTHxHEIGHT", size)
	}
	if width, err = strconv.Atoi(w); err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("invalid width in size %q", size)
	}
	if height, err = strconv.Atoi(h); err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("invalid height in size %q", size)
	}
	return width, height, nil
}

// NewRequestBody builds a fresh request for one generation. An empty model or
// an unparsable size falls back to the defaults.
func NewRequestBody(positive, negative, model, size string, seed int64) Request {
	if model == "" {
		model = DefaultModel
	}
	width, height, err := ParseSize(size)
	if err != nil {
		width, height, _ = ParseSize(DefaultSize)
	}

	return Request{
		Input:  positive,
		Model:  model,
		Action: "generate",
		Parameters: Parameters{
			ParamsVersion:                 3,
			Width:                         width,
			Height:                        height,
			Scale:                         defaultScale,
			Sampler:                       defaultSampler,
			Steps:                         defaultSteps,
			NSamples:                      1,
			Seed:                          seed,
			UCPreset:                      0,
			QualityToggle:                 true,
			ControlnetStrength:            1,
			CFGRescale:                    defaultCFGRescale,
			NoiseSchedule:                 defaultNoiseSchedule,
			NegativePrompt:                negative,
			V4Prompt:                      V4Prompt{Caption: V4Caption{BaseCaption: positive, CharCaptions: []any{}}, UseOrder: true},
			V4NegativePrompt:              V4Prompt{Caption: V4Caption{BaseCaption: negative, CharCaptions: []any{}}},
			CharacterPrompts:              []any{},
			ReferenceImageMultiple:        []any{},
			ReferenceInformationExtracted: []any{},
			ReferenceStrengthMultiple:     []any{},
		},
	}
}
