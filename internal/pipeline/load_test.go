package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"diffusiond/internal/pipeline"
	"diffusiond/internal/pipeline/pipelinetest"
	"diffusiond/internal/registry"
)

func writePipelineDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	idx := `{"_class_name":"StableDiffusionPipeline","_diffusers_version":"0.27.2"}`
	if err := os.WriteFile(filepath.Join(dir, "model_index.json"), []byte(idx), 0o644); err != nil {
		t.Fatalf("write model_index: %v", err)
	}
	return dir
}

func writeLoRADir(t *testing.T, files ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("w"), 0o644); err != nil {
			t.Fatalf("write %s: %v", f, err)
		}
	}
	return dir
}

func TestLoad_OrderAndOptions(t *testing.T) {
	model := writePipelineDir(t)
	lora := writeLoRADir(t, "pytorch_lora_weights.safetensors")
	rt := pipelinetest.NewRuntime()
	l, err := pipeline.Load(context.Background(), rt, pipeline.LoadOptions{
		ModelID: model,
		LoRADir: lora,
		Device:  "enable_model_cpu_offload",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"load " + model, "place enable_model_cpu_offload", "lora " + lora}
	if got := rt.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	opts := rt.Options()[0]
	if opts.TorchDType != "float16" || opts.Variant != "fp16" || !opts.UseSafetensors || opts.SafetyChecker {
		t.Fatalf("unexpected pretrained options: %+v", opts)
	}
	if l.Device != pipeline.DeviceModelCPUOffload || l.Ref.PipelineClass != "StableDiffusionPipeline" {
		t.Fatalf("unexpected loaded: %+v", l)
	}
	if len(l.LoRAFiles) != 1 || filepath.Base(l.LoRAFiles[0]) != "pytorch_lora_weights.safetensors" {
		t.Fatalf("lora files: %v", l.LoRAFiles)
	}
}

func TestLoad_EmptyDeviceIsCUDA(t *testing.T) {
	rt := pipelinetest.NewRuntime()
	l, err := pipeline.Load(context.Background(), rt, pipeline.LoadOptions{ModelID: "runwayml/stable-diffusion-v1-5"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"load runwayml/stable-diffusion-v1-5", "place cuda"}
	if got := rt.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if l.Ref.Local {
		t.Fatalf("hub id should not be local: %+v", l.Ref)
	}
}

func TestLoad_InvalidDeviceBeforeAnyRuntimeCall(t *testing.T) {
	rt := pipelinetest.NewRuntime()
	_, err := pipeline.Load(context.Background(), rt, pipeline.LoadOptions{ModelID: "org/model", Device: "tpu"})
	var de *pipeline.InvalidDeviceError
	if !errors.As(err, &de) {
		t.Fatalf("expected InvalidDeviceError, got %v", err)
	}
	if de.Error() != "Invalid device: tpu" {
		t.Fatalf("message = %q", de.Error())
	}
	var le *pipeline.LoadError
	if !errors.As(err, &le) || le.Stage != "device" {
		t.Fatalf("expected device stage, got %v", err)
	}
	if calls := rt.Calls(); len(calls) != 0 {
		t.Fatalf("runtime touched: %v", calls)
	}
}

func TestLoad_EmptyModelID(t *testing.T) {
	rt := pipelinetest.NewRuntime()
	_, err := pipeline.Load(context.Background(), rt, pipeline.LoadOptions{ModelID: " "})
	if !errors.Is(err, registry.ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
	if calls := rt.Calls(); len(calls) != 0 {
		t.Fatalf("runtime touched: %v", calls)
	}
}

func TestLoad_WorkerOnlyPathPassedThrough(t *testing.T) {
	rt := pipelinetest.NewRuntime()
	id := filepath.Join(t.TempDir(), "mnt", "models")
	l, err := pipeline.Load(context.Background(), rt, pipeline.LoadOptions{ModelID: id})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l.Ref.Local || l.Ref.ID != id {
		t.Fatalf("unexpected ref: %+v", l.Ref)
	}
	if opts := rt.Options(); len(opts) != 1 || opts[0].ModelID != id {
		t.Fatalf("runtime got %+v", opts)
	}
}

func TestLoad_WorkerRejectsMissingModel(t *testing.T) {
	rt := pipelinetest.NewRuntime()
	rt.LoadErr = errors.New("no such directory: /mnt/models")
	_, err := pipeline.Load(context.Background(), rt, pipeline.LoadOptions{ModelID: "/mnt/models-missing-here"})
	var le *pipeline.LoadError
	if !errors.As(err, &le) || le.Stage != "pretrained" || !errors.Is(err, rt.LoadErr) {
		t.Fatalf("expected pretrained-stage error, got %v", err)
	}
}

func TestLoad_EmptyLoRADirRejectedBeforeLoad(t *testing.T) {
	rt := pipelinetest.NewRuntime()
	_, err := pipeline.Load(context.Background(), rt, pipeline.LoadOptions{ModelID: "org/model", LoRADir: writeLoRADir(t)})
	if !errors.Is(err, registry.ErrNoLoRAWeights) {
		t.Fatalf("expected ErrNoLoRAWeights, got %v", err)
	}
	if calls := rt.Calls(); len(calls) != 0 {
		t.Fatalf("runtime touched: %v", calls)
	}
}

func TestLoad_PretrainedFailure(t *testing.T) {
	rt := pipelinetest.NewRuntime()
	rt.LoadErr = errors.New("out of memory")
	_, err := pipeline.Load(context.Background(), rt, pipeline.LoadOptions{ModelID: "org/model"})
	var le *pipeline.LoadError
	if !errors.As(err, &le) || le.Stage != "pretrained" || !errors.Is(err, rt.LoadErr) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_PlaceFailureClosesPipeline(t *testing.T) {
	rt := pipelinetest.NewRuntime()
	rt.PlaceErr = errors.New("no cuda")
	_, err := pipeline.Load(context.Background(), rt, pipeline.LoadOptions{ModelID: "org/model", LoRADir: "org/lora"})
	var le *pipeline.LoadError
	if !errors.As(err, &le) || le.Stage != "place" {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"load org/model", "place cuda", "close"}
	if got := rt.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
}

func TestLoad_LoRAFailureClosesPipeline(t *testing.T) {
	rt := pipelinetest.NewRuntime()
	rt.LoRAErr = errors.New("shape mismatch")
	_, err := pipeline.Load(context.Background(), rt, pipeline.LoadOptions{ModelID: "org/model", LoRADir: "org/lora", Device: "cpu"})
	var le *pipeline.LoadError
	if !errors.As(err, &le) || le.Stage != "lora" || !errors.Is(err, rt.LoRAErr) {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"load org/model", "place cpu", "lora org/lora", "close"}
	if got := rt.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
}

func TestLoad_NilRuntime(t *testing.T) {
	if _, err := pipeline.Load(context.Background(), nil, pipeline.LoadOptions{ModelID: "org/model"}); err == nil {
		t.Fatalf("expected error for nil runtime")
	}
}
