package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"diffusiond/internal/config"
	"diffusiond/internal/pipeline"
)

// newRuntime builds the worker transport selected by cfg. The returned close
// func releases connections or stops a spawned worker.
func newRuntime(cfg config.Config, log zerolog.Logger) (pipeline.Runtime, func() error, error) {
	switch cfg.Runtime {
	case config.RuntimeHTTP, "":
		rt := pipeline.NewHTTPRuntime(cfg.RuntimeURL, cfg.RuntimeKey, 5*time.Second)
		log.Info().Str("runtime", "http").Str("url", rt.BaseURL()).Msg("using runtime worker")
		return rt, func() error { return nil }, nil
	case config.RuntimeSpawn:
		rt := pipeline.NewSpawnRuntime(pipeline.SpawnOptions{
			Bin:          cfg.WorkerBin,
			Args:         cfg.WorkerArgs,
			APIKey:       cfg.RuntimeKey,
			StartTimeout: workerStartTimeout(cfg),
		}, log)
		log.Info().Str("runtime", "spawn").Str("bin", cfg.WorkerBin).Msg("using runtime worker")
		return rt, rt.Close, nil
	case config.RuntimeGRPC:
		rt, err := pipeline.NewGRPCRuntime(cfg.RuntimeAddr, cfg.RuntimeKey)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("runtime", "grpc").Str("addr", rt.Addr()).Msg("using runtime worker")
		return rt, rt.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown runtime %q", cfg.Runtime)
	}
}
