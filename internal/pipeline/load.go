package pipeline

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"diffusiond/internal/common/fsutil"
	"diffusiond/internal/registry"
	"diffusiond/pkg/types"
)

// LoadOptions select the model, its device policy and optional LoRA weights.
type LoadOptions struct {
	ModelID string
	LoRADir string
	Device  string
	// GPUCheck warns when an accelerator policy is set but no GPU is visible.
	GPUCheck bool
}

// Loaded is the outcome of a successful Load.
type Loaded struct {
	Pipeline  Pipeline
	Ref       types.ModelRef
	Device    Device
	LoRAFiles []string
}

// Load runs the load sequence: validate the device policy, resolve the model,
// load it with half-precision weights, place it, then merge LoRA weights.
// Any failure is returned as *LoadError and nothing stays loaded.
// The logger is taken from ctx (zerolog.Ctx).
func Load(ctx context.Context, rt Runtime, opts LoadOptions) (*Loaded, error) {
	log := zerolog.Ctx(ctx)
	dev, err := ParseDevice(opts.Device)
	if err != nil {
		return nil, &LoadError{Stage: "device", Err: err}
	}
	if rt == nil {
		return nil, &LoadError{Stage: "pretrained", Err: errors.New("no runtime configured")}
	}
	ref, err := registry.Resolve(opts.ModelID)
	if err != nil {
		return nil, &LoadError{Stage: "resolve", Err: err}
	}
	var loras []string
	if opts.LoRADir != "" {
		// Hub ids are left to the runtime; local directories must hold weights.
		if p, _ := fsutil.ExpandHome(opts.LoRADir); fsutil.PathExists(p) {
			if loras, err = registry.LoRAWeights(p); err != nil {
				return nil, &LoadError{Stage: "lora", Err: err}
			}
		}
	}
	if opts.GPUCheck && dev.NeedsAccelerator() {
		if rep := CheckGPU(); !rep.Found {
			log.Warn().Str("device", string(dev)).Str("reason", rep.Error).Msg("no GPU visible to this process")
		}
	}

	source, kind := ref.ID, "worker_path"
	switch {
	case ref.Local:
		source, kind = ref.Path, "local"
	case registry.IsHubName(ref.ID):
		kind = "hub"
	}
	log.Info().Str("model_id", source).Str("source", kind).Str("pipeline_class", ref.PipelineClass).Msg("loading model using from_pretrained")
	p, err := rt.LoadPretrained(ctx, pretrainedOptions(source))
	if err != nil {
		return nil, &LoadError{Stage: "pretrained", Err: err}
	}

	log.Info().Str("device", string(dev)).Msg("placing pipeline")
	if err := p.Place(ctx, dev); err != nil {
		_ = p.Close()
		return nil, &LoadError{Stage: "place", Err: err}
	}

	if opts.LoRADir != "" {
		log.Info().Str("lora_dir", opts.LoRADir).Int("files", len(loras)).Msg("loading LoRA weights")
		if err := p.LoadLoRAWeights(ctx, opts.LoRADir); err != nil {
			_ = p.Close()
			return nil, &LoadError{Stage: "lora", Err: err}
		}
		log.Info().Str("lora_dir", opts.LoRADir).Msg("loaded LoRA weights")
	}
	return &Loaded{Pipeline: p, Ref: ref, Device: dev, LoRAFiles: loras}, nil
}
