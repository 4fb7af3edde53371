package pipelinetest

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"strconv"
	"sync"

	"diffusiond/internal/payload"
	"diffusiond/internal/pipeline"
)

// Wire messages as a worker sees them.

type loadReply struct {
	ID string `json:"id"`
}

type placeArgs struct {
	ID     string          `json:"id,omitempty"`
	Device pipeline.Device `json:"device"`
}

type loraArgs struct {
	ID   string `json:"id,omitempty"`
	Path string `json:"path"`
}

type generateArgs struct {
	ID     string         `json:"id,omitempty"`
	Kwargs map[string]any `json:"kwargs"`
}

type imageReply struct {
	Format string `json:"format"`
	B64    string `json:"b64"`
}

type generateReply struct {
	Images []imageReply `json:"images"`
}

type releaseArgs struct {
	ID string `json:"id"`
}

type emptyReply struct{}

var errUnknownPipeline = errors.New("unknown pipeline")

// Worker serves a Runtime through the worker protocol. Pipelines are kept by
// id between calls.
type Worker struct {
	rt pipeline.Runtime

	mu        sync.Mutex
	pipelines map[string]pipeline.Pipeline
	seq       int
}

// NewWorker wraps rt.
func NewWorker(rt pipeline.Runtime) *Worker {
	return &Worker{rt: rt, pipelines: make(map[string]pipeline.Pipeline)}
}

// Open returns the number of pipelines currently held.
func (w *Worker) Open() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pipelines)
}

func (w *Worker) get(id string) (pipeline.Pipeline, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pipelines[id]
	if !ok {
		return nil, errUnknownPipeline
	}
	return p, nil
}

func (w *Worker) load(ctx context.Context, opts pipeline.PretrainedOptions) (loadReply, error) {
	p, err := w.rt.LoadPretrained(ctx, opts)
	if err != nil {
		return loadReply{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq++
	id := "pipe-" + strconv.Itoa(w.seq)
	if pp, ok := p.(*Pipeline); ok {
		id = pp.ID
	}
	w.pipelines[id] = p
	return loadReply{ID: id}, nil
}

func (w *Worker) place(ctx context.Context, id string, d pipeline.Device) error {
	p, err := w.get(id)
	if err != nil {
		return err
	}
	return p.Place(ctx, d)
}

func (w *Worker) lora(ctx context.Context, id, path string) error {
	p, err := w.get(id)
	if err != nil {
		return err
	}
	return p.LoadLoRAWeights(ctx, path)
}

func (w *Worker) generate(ctx context.Context, id string, kwargs map[string]any) (generateReply, error) {
	p, err := w.get(id)
	if err != nil {
		return generateReply{}, err
	}
	imgs, err := p.Generate(ctx, payload.Params(kwargs))
	if err != nil {
		return generateReply{}, err
	}
	out := generateReply{Images: make([]imageReply, 0, len(imgs))}
	for _, img := range imgs {
		b64, err := EncodePNG(img)
		if err != nil {
			return generateReply{}, err
		}
		out.Images = append(out.Images, imageReply{Format: "PNG", B64: b64})
	}
	return out, nil
}

func (w *Worker) release(id string) error {
	w.mu.Lock()
	p, ok := w.pipelines[id]
	delete(w.pipelines, id)
	w.mu.Unlock()
	if !ok {
		return errUnknownPipeline
	}
	return p.Close()
}

// EncodePNG encodes img as base64 PNG.
func EncodePNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
