package types

// ModelRef describes a resolved base model identifier.
type ModelRef struct {
	// Identifier as configured (path or hub name).
	// example: /mnt/models
	ID string `json:"id" example:"/mnt/models"`
	// Absolute directory when the model is available locally.
	// example: /mnt/models
	Path string `json:"path,omitempty" example:"/mnt/models"`
	// Whether the model was found on the local filesystem.
	Local bool `json:"local"`
	// Pipeline class from model_index.json.
	// example: StableDiffusionXLPipeline
	PipelineClass string `json:"pipeline_class,omitempty" example:"StableDiffusionXLPipeline"`
	// diffusers version that saved the pipeline.
	// example: 0.27.0
	DiffusersVersion string `json:"diffusers_version,omitempty" example:"0.27.0"`
}
