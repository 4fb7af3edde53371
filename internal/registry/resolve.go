package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"diffusiond/internal/common/fsutil"
	"diffusiond/pkg/types"
)

// modelIndexFile is written by diffusers' save_pretrained at the root of every pipeline.
const modelIndexFile = "model_index.json"

var (
	// ErrModelNotFound means the identifier is empty.
	ErrModelNotFound = errors.New("model not found")
	// ErrNotAPipeline means a local directory exists but holds no model_index.json.
	ErrNotAPipeline = errors.New("directory is not a diffusers pipeline")
	// ErrNoLoRAWeights means a LoRA directory contains no weight files.
	ErrNoLoRAWeights = errors.New("no LoRA weight files found")
)

// hubName matches "org/name" style identifiers (optionally with a @revision suffix).
var hubName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*/[A-Za-z0-9][A-Za-z0-9._-]*(@[A-Za-z0-9._/-]+)?$`)

// IsHubName reports whether id looks like an "org/name" hub identifier.
func IsHubName(id string) bool { return hubName.MatchString(id) }

// Resolve classifies a model identifier. A path that exists locally must be a
// diffusers pipeline directory and its model_index.json is read. Anything
// else (hub names, paths only the worker can see) is passed through with
// Local=false and the runtime decides whether it can load it.
func Resolve(id string) (types.ModelRef, error) {
	ref := types.ModelRef{ID: id}
	if strings.TrimSpace(id) == "" {
		return ref, fmt.Errorf("%w: empty model id", ErrModelNotFound)
	}
	p, err := fsutil.ExpandHome(id)
	if err != nil {
		return ref, err
	}
	if !fsutil.PathExists(p) {
		return ref, nil
	}
	abs, err := fsutil.AbsDir(p)
	if err != nil {
		return ref, fmt.Errorf("%w: %v", ErrNotAPipeline, err)
	}
	ref.Path = abs
	ref.Local = true
	b, err := os.ReadFile(filepath.Join(abs, modelIndexFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ref, fmt.Errorf("%w: %s has no %s", ErrNotAPipeline, abs, modelIndexFile)
		}
		return ref, err
	}
	var idx struct {
		ClassName        string `json:"_class_name"`
		DiffusersVersion string `json:"_diffusers_version"`
	}
	if err := json.Unmarshal(b, &idx); err != nil {
		return ref, fmt.Errorf("parse %s: %w", modelIndexFile, err)
	}
	ref.PipelineClass = idx.ClassName
	ref.DiffusersVersion = idx.DiffusersVersion
	return ref, nil
}

// LoRAWeights lists weight files (*.safetensors, *.bin) in dir, sorted by name.
func LoRAWeights(dir string) ([]string, error) {
	abs, err := fsutil.AbsDir(dir)
	if err != nil {
		return nil, fmt.Errorf("lora dir: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".safetensors", ".bin":
			out = append(out, filepath.Join(abs, e.Name()))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoLoRAWeights, abs)
	}
	sort.Strings(out)
	return out, nil
}
