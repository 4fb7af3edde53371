package pipeline

import (
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"

	"diffusiond/internal/payload"
)

// Hints is a typed view of the common generation kwargs. It is used for logs
// and metrics only; the kwargs themselves are forwarded untouched.
type Hints struct {
	Prompt          string  `mapstructure:"prompt"`
	NegativePrompt  string  `mapstructure:"negative_prompt"`
	Width           int     `mapstructure:"width"`
	Height          int     `mapstructure:"height"`
	Steps           int     `mapstructure:"num_inference_steps"`
	GuidanceScale   float64 `mapstructure:"guidance_scale"`
	ImagesPerPrompt int     `mapstructure:"num_images_per_prompt"`
	Seed            int64   `mapstructure:"seed"`
}

// ParseHints decodes the known keys of params, ignoring the rest and any
// value that does not fit.
func ParseHints(params payload.Params) Hints {
	var h Hints
	for k, v := range params {
		var one Hints
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &one,
			WeaklyTypedInput: true,
		})
		if err != nil {
			continue
		}
		if err := dec.Decode(map[string]any{k: v}); err != nil {
			continue
		}
		h.merge(one)
	}
	return h
}

func (h *Hints) merge(o Hints) {
	if o.Prompt != "" {
		h.Prompt = o.Prompt
	}
	if o.NegativePrompt != "" {
		h.NegativePrompt = o.NegativePrompt
	}
	if o.Width != 0 {
		h.Width = o.Width
	}
	if o.Height != 0 {
		h.Height = o.Height
	}
	if o.Steps != 0 {
		h.Steps = o.Steps
	}
	if o.GuidanceScale != 0 {
		h.GuidanceScale = o.GuidanceScale
	}
	if o.ImagesPerPrompt != 0 {
		h.ImagesPerPrompt = o.ImagesPerPrompt
	}
	if o.Seed != 0 {
		h.Seed = o.Seed
	}
}

// MarshalZerologObject lets Hints be logged with zerolog's Object.
func (h Hints) MarshalZerologObject(e *zerolog.Event) {
	e.Int("prompt_chars", len(h.Prompt))
	if h.NegativePrompt != "" {
		e.Bool("negative_prompt", true)
	}
	if h.Width > 0 && h.Height > 0 {
		e.Int("width", h.Width).Int("height", h.Height)
	}
	if h.Steps > 0 {
		e.Int("steps", h.Steps)
	}
	if h.GuidanceScale != 0 {
		e.Float64("guidance_scale", h.GuidanceScale)
	}
	if h.Seed != 0 {
		e.Int64("seed", h.Seed)
	}
}
