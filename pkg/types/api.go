package types

// PredictRequest is the KServe v1 request body accepted by POST /v1/models/{name}:predict.
// Only the first instance is used; its keys are forwarded to the diffusion pipeline.
type PredictRequest struct {
	// Pipeline keyword arguments. Element 0 must include "prompt".
	// example: [{"prompt":"a red fox","num_inference_steps":30}]
	Instances []map[string]any `json:"instances"`
}

// EncodedImage carries a generated image as a tagged base64 blob.
type EncodedImage struct {
	// Image container format. Always PNG.
	// example: PNG
	Format string `json:"format" example:"PNG"`
	// Standard base64 encoding of the image bytes.
	B64 string `json:"b64"`
}

// Prediction is a single generated result.
type Prediction struct {
	// Identifier or path of the base model that produced the image.
	// example: /mnt/models
	ModelName string `json:"model_name" example:"/mnt/models"`
	// Prompt echoed from the request.
	// example: a red fox
	Prompt string `json:"prompt" example:"a red fox"`
	// Generated image.
	Image EncodedImage `json:"image"`
}

// PredictResponse is returned by POST /v1/models/{name}:predict.
type PredictResponse struct {
	Predictions []Prediction `json:"predictions"`
}

// ModelReadyResponse is returned by GET /v1/models/{name}.
type ModelReadyResponse struct {
	// Served model name.
	// example: sdxl
	Name string `json:"name" example:"sdxl"`
	// Whether the pipeline finished loading.
	// example: true
	Ready bool `json:"ready" example:"true"`
}

// ModelsResponse is returned by GET /v1/models.
type ModelsResponse struct {
	// Served model names.
	// example: ["sdxl"]
	Models []string `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid payload
	Error string `json:"error" example:"invalid payload"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// ModelStatus summarizes the served model for GET /status.
type ModelStatus struct {
	// Served model name.
	// example: sdxl
	Name string `json:"name" example:"sdxl"`
	// Base model identifier or path.
	// example: /mnt/models
	ModelID string `json:"model_id" example:"/mnt/models"`
	// LoRA weights directory, if any.
	LoRADir string `json:"lora_dir,omitempty"`
	// Device placement policy.
	// example: cuda
	Device string `json:"device" example:"cuda"`
	// Lifecycle state: unloaded, loading, ready, failed or closed.
	// example: ready
	State string `json:"state" example:"ready"`
	// Load error when state is failed.
	LastError string `json:"last_error,omitempty"`
	// Pipeline class reported by model_index.json (local models only).
	// example: StableDiffusionXLPipeline
	PipelineClass string `json:"pipeline_class,omitempty" example:"StableDiffusionXLPipeline"`
	// Time spent loading the pipeline, in milliseconds.
	// example: 41250
	LoadMillis int64 `json:"load_ms" example:"41250"`
	// Number of completed predictions.
	// example: 12
	PredictionsTotal uint64 `json:"predictions_total" example:"12"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
}
