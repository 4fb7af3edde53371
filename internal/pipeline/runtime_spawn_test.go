package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"diffusiond/internal/pipeline"
)

func TestSpawnRuntime_RequiresBinary(t *testing.T) {
	rt := pipeline.NewSpawnRuntime(pipeline.SpawnOptions{}, zerolog.Nop())
	if _, err := rt.LoadPretrained(context.Background(), pipeline.PretrainedOptions{ModelID: "m"}); err == nil {
		t.Fatalf("expected error without worker binary")
	}
	if rt.PID() != 0 || rt.BaseURL() != "" {
		t.Fatalf("nothing should be running")
	}
}

func TestSpawnRuntime_WorkerNeverHealthy(t *testing.T) {
	rt := pipeline.NewSpawnRuntime(pipeline.SpawnOptions{
		Bin:          "/bin/false",
		StartTimeout: 500 * time.Millisecond,
	}, zerolog.Nop())
	defer rt.Close()
	_, err := rt.LoadPretrained(context.Background(), pipeline.PretrainedOptions{ModelID: "m"})
	if !pipeline.IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
	if rt.PID() != 0 {
		t.Fatalf("failed worker should be stopped")
	}
}
