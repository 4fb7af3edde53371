package pipeline

import (
	"context"
	"image"

	"diffusiond/internal/payload"
)

// Runtime loads pretrained pipelines. Implementations talk to a worker that
// owns the accelerator.
type Runtime interface {
	LoadPretrained(ctx context.Context, opts PretrainedOptions) (Pipeline, error)
}

// Pipeline is a loaded pipeline inside a runtime.
type Pipeline interface {
	// Place moves the pipeline to a device or enables an offload strategy.
	Place(ctx context.Context, d Device) error
	// LoadLoRAWeights merges LoRA weights found at path into the pipeline.
	LoadLoRAWeights(ctx context.Context, path string) error
	// Generate calls the pipeline with params as keyword arguments.
	// Errors raised by the pipeline are returned as-is.
	Generate(ctx context.Context, params payload.Params) ([]image.Image, error)
	// Close releases the pipeline in the runtime.
	Close() error
}

// PretrainedOptions are the from_pretrained arguments sent to the worker.
type PretrainedOptions struct {
	ModelID        string `json:"model_id"`
	TorchDType     string `json:"torch_dtype"`
	Variant        string `json:"variant"`
	UseSafetensors bool   `json:"use_safetensors"`
	// SafetyChecker false disables the safety checker.
	SafetyChecker bool `json:"safety_checker"`
}

// Half-precision weights, safetensors variant, no safety checker.
func pretrainedOptions(modelID string) PretrainedOptions {
	return PretrainedOptions{
		ModelID:        modelID,
		TorchDType:     "float16",
		Variant:        "fp16",
		UseSafetensors: true,
		SafetyChecker:  false,
	}
}
