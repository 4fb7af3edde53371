// Package pipelinetest provides an in-memory runtime and reference workers
// for tests that exercise the pipeline transports without a GPU.
package pipelinetest

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"

	"diffusiond/internal/payload"
	"diffusiond/internal/pipeline"
)

// Runtime is a pipeline.Runtime that records every call it receives.
type Runtime struct {
	LoadErr     error
	PlaceErr    error
	LoRAErr     error
	GenerateErr error
	// Images returned by Generate; nil means one 4x4 solid image.
	Images []image.Image
	// GenerateFunc, when set, replaces the default Generate behaviour.
	GenerateFunc func(ctx context.Context, params payload.Params) ([]image.Image, error)

	mu     sync.Mutex
	calls  []string
	opts   []pipeline.PretrainedOptions
	params []payload.Params
	seq    int
}

// NewRuntime returns a runtime that succeeds at every stage.
func NewRuntime() *Runtime { return &Runtime{} }

func (r *Runtime) record(call string) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
}

// Calls returns the recorded calls in order, e.g. "load m", "place cuda",
// "lora /w", "generate", "close".
func (r *Runtime) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Options returns the options passed to each LoadPretrained.
func (r *Runtime) Options() []pipeline.PretrainedOptions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pipeline.PretrainedOptions(nil), r.opts...)
}

// Params returns the kwargs passed to each Generate.
func (r *Runtime) Params() []payload.Params {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]payload.Params(nil), r.params...)
}

func (r *Runtime) LoadPretrained(ctx context.Context, opts pipeline.PretrainedOptions) (pipeline.Pipeline, error) {
	r.mu.Lock()
	r.calls = append(r.calls, "load "+opts.ModelID)
	r.opts = append(r.opts, opts)
	r.seq++
	id := fmt.Sprintf("p%d", r.seq)
	r.mu.Unlock()
	if r.LoadErr != nil {
		return nil, r.LoadErr
	}
	return &Pipeline{rt: r, ID: id}, nil
}

// Pipeline is the handle returned by Runtime.
type Pipeline struct {
	rt *Runtime
	ID string
}

func (p *Pipeline) Place(ctx context.Context, d pipeline.Device) error {
	p.rt.record("place " + string(d))
	return p.rt.PlaceErr
}

func (p *Pipeline) LoadLoRAWeights(ctx context.Context, path string) error {
	p.rt.record("lora " + path)
	return p.rt.LoRAErr
}

func (p *Pipeline) Generate(ctx context.Context, params payload.Params) ([]image.Image, error) {
	p.rt.mu.Lock()
	p.rt.calls = append(p.rt.calls, "generate")
	p.rt.params = append(p.rt.params, params)
	p.rt.mu.Unlock()
	if p.rt.GenerateFunc != nil {
		return p.rt.GenerateFunc(ctx, params)
	}
	if p.rt.GenerateErr != nil {
		return nil, p.rt.GenerateErr
	}
	if p.rt.Images != nil {
		return p.rt.Images, nil
	}
	return []image.Image{Solid(4, 4, color.RGBA{R: 255, A: 255})}, nil
}

func (p *Pipeline) Close() error {
	p.rt.record("close")
	return nil
}

// Solid returns a w x h image filled with c.
func Solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}
