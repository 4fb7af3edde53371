package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Runtime transports.
const (
	RuntimeHTTP  = "http"
	RuntimeSpawn = "spawn"
	RuntimeGRPC  = "grpc"
)

// Defaults applied by Default.
const (
	DefaultModelName            = "model"
	DefaultModelID              = "/mnt/models"
	DefaultDevice               = "cuda"
	DefaultAddr                 = ":8080"
	DefaultRuntimeURL           = "http://127.0.0.1:7860"
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "auto"
	DefaultMaxBodyBytes   int64 = 1 << 20
	DefaultWorkerStartSec       = 600
)

// envPrefix is prepended to upper-cased field keys in FromEnv.
const envPrefix = "DIFFUSIOND_"

// Config holds the process-start configuration. It is built once in main and
// passed by value; nothing reads it through package state.
type Config struct {
	// ModelName is the name the model is served under (/v1/models/{name}).
	ModelName string `json:"model_name" yaml:"model_name" toml:"model_name" validate:"required"`
	// ModelID is a local pipeline directory or a hub identifier.
	ModelID string `json:"model_id" yaml:"model_id" toml:"model_id" validate:"required"`
	// LoRADir optionally points at LoRA weights merged after device placement.
	LoRADir string `json:"lora_dir" yaml:"lora_dir" toml:"lora_dir"`
	// Device selects the placement policy. Checked by the pipeline loader.
	Device string `json:"device" yaml:"device" toml:"device"`

	Addr     string `json:"addr" yaml:"addr" toml:"addr" validate:"required"`
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level" validate:"oneof=debug info warn error"`
	// LogFormat is console, json, or auto (console on a terminal).
	LogFormat    string `json:"log_format" yaml:"log_format" toml:"log_format" validate:"oneof=auto console json"`
	MaxBodyBytes int64  `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes" validate:"gte=0"`
	// FailOnLoad exits the process when the pipeline fails to load instead of
	// serving not-ready probes.
	FailOnLoad bool `json:"fail_on_load" yaml:"fail_on_load" toml:"fail_on_load"`
	// GPUCheck logs a warning when an accelerator policy is configured but no GPU is visible.
	GPUCheck bool `json:"gpu_check" yaml:"gpu_check" toml:"gpu_check"`

	// Runtime selects how the diffusion worker is reached.
	Runtime     string `json:"runtime" yaml:"runtime" toml:"runtime" validate:"oneof=http spawn grpc"`
	RuntimeURL  string `json:"runtime_url" yaml:"runtime_url" toml:"runtime_url" validate:"required_if=Runtime http"`
	RuntimeAddr string `json:"runtime_addr" yaml:"runtime_addr" toml:"runtime_addr" validate:"required_if=Runtime grpc"`
	RuntimeKey  string `json:"runtime_api_key" yaml:"runtime_api_key" toml:"runtime_api_key"`
	// WorkerBin and WorkerArgs describe the worker launched in spawn mode.
	WorkerBin      string   `json:"worker_bin" yaml:"worker_bin" toml:"worker_bin" validate:"required_if=Runtime spawn"`
	WorkerArgs     []string `json:"worker_args" yaml:"worker_args" toml:"worker_args"`
	WorkerStartSec int      `json:"worker_start_timeout_sec" yaml:"worker_start_timeout_sec" toml:"worker_start_timeout_sec" validate:"gte=0"`

	CORSEnabled bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Default returns a Config populated with package defaults.
func Default() Config {
	return Config{
		ModelName:      DefaultModelName,
		ModelID:        DefaultModelID,
		Device:         DefaultDevice,
		Addr:           DefaultAddr,
		LogLevel:       DefaultLogLevel,
		LogFormat:      DefaultLogFormat,
		MaxBodyBytes:   DefaultMaxBodyBytes,
		FailOnLoad:     true,
		GPUCheck:       true,
		Runtime:        RuntimeHTTP,
		RuntimeURL:     DefaultRuntimeURL,
		WorkerStartSec: DefaultWorkerStartSec,
	}
}

// Merge returns c with every non-zero field of o applied on top.
// Booleans can only be switched on this way; LoadOver and FromEnv set them
// explicitly.
func (c Config) Merge(o Config) Config {
	str := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	str(&c.ModelName, o.ModelName)
	str(&c.ModelID, o.ModelID)
	str(&c.LoRADir, o.LoRADir)
	str(&c.Device, o.Device)
	str(&c.Addr, o.Addr)
	str(&c.LogLevel, o.LogLevel)
	str(&c.LogFormat, o.LogFormat)
	str(&c.Runtime, o.Runtime)
	str(&c.RuntimeURL, o.RuntimeURL)
	str(&c.RuntimeAddr, o.RuntimeAddr)
	str(&c.RuntimeKey, o.RuntimeKey)
	str(&c.WorkerBin, o.WorkerBin)
	if o.MaxBodyBytes > 0 {
		c.MaxBodyBytes = o.MaxBodyBytes
	}
	if o.WorkerStartSec > 0 {
		c.WorkerStartSec = o.WorkerStartSec
	}
	if len(o.WorkerArgs) > 0 {
		c.WorkerArgs = append([]string(nil), o.WorkerArgs...)
	}
	if len(o.CORSOrigins) > 0 {
		c.CORSOrigins = append([]string(nil), o.CORSOrigins...)
	}
	c.FailOnLoad = c.FailOnLoad || o.FailOnLoad
	c.GPUCheck = c.GPUCheck || o.GPUCheck
	c.CORSEnabled = c.CORSEnabled || o.CORSEnabled
	return c
}

// FromEnv overlays DIFFUSIOND_* environment variables, e.g. DIFFUSIOND_MODEL_ID.
// lookup is os.LookupEnv in production.
func (c Config) FromEnv(lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(envPrefix + key)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}
	var o Config
	strs := map[string]*string{
		"MODEL_NAME":      &o.ModelName,
		"MODEL_ID":        &o.ModelID,
		"LORA_DIR":        &o.LoRADir,
		"DEVICE":          &o.Device,
		"ADDR":            &o.Addr,
		"LOG_LEVEL":       &o.LogLevel,
		"LOG_FORMAT":      &o.LogFormat,
		"RUNTIME":         &o.Runtime,
		"RUNTIME_URL":     &o.RuntimeURL,
		"RUNTIME_ADDR":    &o.RuntimeAddr,
		"RUNTIME_API_KEY": &o.RuntimeKey,
		"WORKER_BIN":      &o.WorkerBin,
	}
	for k, dst := range strs {
		if v, ok := get(k); ok {
			*dst = v
		}
	}
	if v, ok := get("MAX_BODY_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c, fmt.Errorf("%sMAX_BODY_BYTES: %w", envPrefix, err)
		}
		o.MaxBodyBytes = n
	}
	if v, ok := get("WORKER_ARGS"); ok {
		o.WorkerArgs = SplitCSV(v)
	}
	if v, ok := get("CORS_ORIGINS"); ok {
		o.CORSOrigins = SplitCSV(v)
		o.CORSEnabled = true
	}
	out := c.Merge(o)
	bools := map[string]*bool{
		"FAIL_ON_LOAD": &out.FailOnLoad,
		"GPU_CHECK":    &out.GPUCheck,
		"CORS_ENABLED": &out.CORSEnabled,
	}
	for k, dst := range bools {
		v, ok := get(k)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c, fmt.Errorf("%s%s: %w", envPrefix, k, err)
		}
		*dst = b
	}
	return out, nil
}

// ErrConfigValidation indicates a configuration validation error.
type ErrConfigValidation struct {
	Field   string
	Message string
}

func (e *ErrConfigValidation) Error() string {
	return fmt.Sprintf("config validation error: %s %s", e.Field, e.Message)
}

var validate = validator.New()

// Validate checks the snapshot. The device policy is deliberately not checked
// here: the pipeline loader rejects it at load time.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	msg := "failed " + fe.Tag()
	switch fe.Tag() {
	case "required", "required_if":
		msg = "is required"
	case "oneof":
		msg = fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "gte":
		msg = "must be >= " + fe.Param()
	}
	return &ErrConfigValidation{Field: fe.Field(), Message: msg}
}

// SplitCSV splits a comma-separated list, trimming spaces and dropping empties.
func SplitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
