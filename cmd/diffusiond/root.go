package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"diffusiond/internal/config"
)

// options mirrors the command-line flags. Only flags the user changed are
// applied over file and environment values.
type options struct {
	configPath string
	envFile    string

	modelName string
	modelID   string
	loraDir   string
	device    string

	addr         string
	logLevel     string
	logFormat    string
	maxBodyBytes int64
	failOnLoad   bool
	gpuCheck     bool

	runtime        string
	runtimeURL     string
	runtimeAddr    string
	runtimeKey     string
	workerBin      string
	workerArgs     string
	workerStartSec int

	cors        bool
	corsOrigins string
}

func newRootCmd() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

// newRootCommand returns the command together with the options its flags bind to.
func newRootCommand() (*cobra.Command, *options) {
	o := &options{}
	def := config.Default()
	cmd := &cobra.Command{
		Use:   "diffusiond",
		Short: "Serve a diffusion pipeline behind the KServe v1 predict protocol",
		Long: `diffusiond loads one diffusion pipeline into a runtime worker, places it on a
device, optionally merges LoRA weights, and answers KServe v1 predict requests
with base64 PNG images.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd, o, os.LookupEnv)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, newLogger(cfg, os.Stderr))
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "", "Config file (.yaml, .yml, .json, .toml)")
	f.StringVar(&o.envFile, "env-file", "", "Load environment variables from this file before reading DIFFUSIOND_*")

	f.StringVar(&o.modelName, "model_name", def.ModelName, "Name the model is served under")
	f.StringVar(&o.modelID, "model_id", def.ModelID, "Local pipeline directory or hub identifier")
	f.StringVar(&o.loraDir, "lora_dir", "", "LoRA weights to merge after placement")
	f.StringVar(&o.device, "device", def.Device, "cuda, cpu, enable_model_cpu_offload or enable_sequential_cpu_offload")

	f.StringVar(&o.addr, "addr", def.Addr, "HTTP listen address, e.g. :8080")
	f.StringVar(&o.logLevel, "log-level", def.LogLevel, "debug, info, warn or error")
	f.StringVar(&o.logFormat, "log-format", def.LogFormat, "auto, console or json")
	f.Int64Var(&o.maxBodyBytes, "max-body-bytes", def.MaxBodyBytes, "Maximum predict request body size")
	f.BoolVar(&o.failOnLoad, "fail-on-load", def.FailOnLoad, "Exit when the pipeline fails to load instead of serving not-ready")
	f.BoolVar(&o.gpuCheck, "gpu-check", def.GPUCheck, "Warn when an accelerator device is configured but no GPU is visible")

	f.StringVar(&o.runtime, "runtime", def.Runtime, "Worker transport: http, spawn or grpc")
	f.StringVar(&o.runtimeURL, "runtime-url", def.RuntimeURL, "Worker base URL (http runtime)")
	f.StringVar(&o.runtimeAddr, "runtime-addr", "", "Worker host:port (grpc runtime)")
	f.StringVar(&o.runtimeKey, "runtime-api-key", "", "Bearer token sent to the worker")
	f.StringVar(&o.workerBin, "worker-bin", "", "Worker executable (spawn runtime)")
	f.StringVar(&o.workerArgs, "worker-args", "", "Comma-separated extra worker arguments (spawn runtime)")
	f.IntVar(&o.workerStartSec, "worker-start-timeout", def.WorkerStartSec, "Seconds to wait for the worker to become healthy")

	f.BoolVar(&o.cors, "cors", false, "Enable CORS")
	f.StringVar(&o.corsOrigins, "cors-origins", "", "Comma-separated allowed origins (implies --cors)")
	return cmd, o
}

// buildConfig layers defaults, config file, environment and changed flags,
// then validates the result.
func buildConfig(cmd *cobra.Command, o *options, lookup func(string) (string, bool)) (config.Config, error) {
	if err := loadEnvFile(o.envFile); err != nil {
		return config.Config{}, err
	}
	cfg := config.Default()
	if o.configPath != "" {
		fileCfg, err := config.LoadOver(cfg, o.configPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("load config %s: %w", o.configPath, err)
		}
		cfg = fileCfg
	}
	cfg, err := cfg.FromEnv(lookup)
	if err != nil {
		return config.Config{}, err
	}

	changed := cmd.Flags().Changed
	set := func(name string, apply func()) {
		if changed(name) {
			apply()
		}
	}
	set("model_name", func() { cfg.ModelName = o.modelName })
	set("model_id", func() { cfg.ModelID = o.modelID })
	set("lora_dir", func() { cfg.LoRADir = o.loraDir })
	set("device", func() { cfg.Device = o.device })
	set("addr", func() { cfg.Addr = o.addr })
	set("log-level", func() { cfg.LogLevel = strings.ToLower(o.logLevel) })
	set("log-format", func() { cfg.LogFormat = strings.ToLower(o.logFormat) })
	set("max-body-bytes", func() { cfg.MaxBodyBytes = o.maxBodyBytes })
	set("fail-on-load", func() { cfg.FailOnLoad = o.failOnLoad })
	set("gpu-check", func() { cfg.GPUCheck = o.gpuCheck })
	set("runtime", func() { cfg.Runtime = o.runtime })
	set("runtime-url", func() { cfg.RuntimeURL = o.runtimeURL })
	set("runtime-addr", func() { cfg.RuntimeAddr = o.runtimeAddr })
	set("runtime-api-key", func() { cfg.RuntimeKey = o.runtimeKey })
	set("worker-bin", func() { cfg.WorkerBin = o.workerBin })
	set("worker-args", func() { cfg.WorkerArgs = config.SplitCSV(o.workerArgs) })
	set("worker-start-timeout", func() { cfg.WorkerStartSec = o.workerStartSec })
	set("cors", func() { cfg.CORSEnabled = o.cors })
	set("cors-origins", func() {
		cfg.CORSOrigins = config.SplitCSV(o.corsOrigins)
		cfg.CORSEnabled = true
	})

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// loadEnvFile loads path when given; otherwise a .env in the working
// directory is loaded if present.
func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("could not load %s: %w", path, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to check if .env file exists: %w", err)
	}
	return godotenv.Load(".env")
}

func workerStartTimeout(cfg config.Config) time.Duration {
	if cfg.WorkerStartSec <= 0 {
		return config.DefaultWorkerStartSec * time.Second
	}
	return time.Duration(cfg.WorkerStartSec) * time.Second
}
