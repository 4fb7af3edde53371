package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"diffusiond/internal/config"
	"diffusiond/internal/httpapi"
	"diffusiond/internal/model"
)

const shutdownTimeout = 10 * time.Second

// logPublisher forwards model lifecycle events to the process logger.
type logPublisher struct{ log zerolog.Logger }

func (p logPublisher) Publish(e model.Event) {
	p.log.Debug().Str("event", e.Name).Str("model", e.Model).Fields(e.Fields).Msg("model event")
}

// run serves until ctx ends or a signal arrives. The model loads in the
// background so liveness probes answer while weights are loading.
func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	rt, closeRuntime, err := newRuntime(cfg, log)
	if err != nil {
		return err
	}
	m := model.New(cfg, rt, model.WithLogger(log), model.WithPublisher(logPublisher{log: log}))

	httpapi.SetLogger(log)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins, nil, nil)
	httpapi.SetRequestLogLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	httpapi.SetBaseContext(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(m),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("model", cfg.ModelName).Msg("diffusiond listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := m.Load(gctx); err != nil {
			if cfg.FailOnLoad {
				return fmt.Errorf("load model: %w", err)
			}
			log.Warn().Err(err).Msg("model failed to load; serving not-ready")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)
		if cerr := m.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("release pipeline")
		}
		if cerr := closeRuntime(); cerr != nil {
			log.Warn().Err(cerr).Msg("close runtime")
		}
		return err
	})
	return g.Wait()
}
