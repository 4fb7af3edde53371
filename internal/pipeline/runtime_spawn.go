package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hpcloud/tail"
	process "github.com/mudler/go-processmanager"
	"github.com/phayes/freeport"
	"github.com/rs/zerolog"
)

// SpawnOptions configures a worker started as a child process.
type SpawnOptions struct {
	Bin          string
	Args         []string
	Host         string
	APIKey       string
	StartTimeout time.Duration
	Env          []string
}

// SpawnRuntime starts a worker process on a free port and then speaks the
// HTTP worker protocol to it. The process is started lazily by the first
// LoadPretrained and stopped by Close.
type SpawnRuntime struct {
	opts SpawnOptions
	log  zerolog.Logger

	mu    sync.Mutex
	proc  *process.Process
	http  *HTTPRuntime
	tails []*tail.Tail
}

// NewSpawnRuntime prepares a runtime; nothing is started until first use.
func NewSpawnRuntime(opts SpawnOptions, log zerolog.Logger) *SpawnRuntime {
	if strings.TrimSpace(opts.Host) == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 10 * time.Minute
	}
	if opts.Env == nil {
		opts.Env = os.Environ()
	}
	return &SpawnRuntime{opts: opts, log: log.With().Str("runtime", "spawn").Logger()}
}

func (s *SpawnRuntime) LoadPretrained(ctx context.Context, opts PretrainedOptions) (Pipeline, error) {
	rt, err := s.ensureProcess(ctx)
	if err != nil {
		return nil, err
	}
	return rt.LoadPretrained(ctx, opts)
}

// PID returns the worker process id, or 0 when no worker is running.
func (s *SpawnRuntime) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return 0
	}
	pid, _ := strconv.Atoi(s.proc.PID)
	return pid
}

// BaseURL returns the spawned worker address, empty before start.
func (s *SpawnRuntime) BaseURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.http == nil {
		return ""
	}
	return s.http.BaseURL()
}

// ensureProcess starts the worker (or returns the running one) and waits
// until it answers /healthz.
func (s *SpawnRuntime) ensureProcess(ctx context.Context) (*HTTPRuntime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.http != nil && s.proc != nil && s.proc.IsAlive() {
		return s.http, nil
	}
	s.stopLocked()

	if strings.TrimSpace(s.opts.Bin) == "" {
		return nil, errors.New("spawn runtime: worker binary not configured")
	}
	port, err := freeport.GetFreePort()
	if err != nil {
		return nil, fmt.Errorf("spawn runtime: pick port: %w", err)
	}
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(port))
	args := append(append([]string{}, s.opts.Args...), "--addr", addr)

	p := process.New(
		process.WithTemporaryStateDir(),
		process.WithName(s.opts.Bin),
		process.WithArgs(args...),
		process.WithEnvironment(s.opts.Env...),
	)
	if err := p.Run(); err != nil {
		return nil, ErrDependencyUnavailable("start worker: " + err.Error())
	}
	s.proc = p
	s.log.Info().Str("bin", s.opts.Bin).Str("pid", p.PID).Str("addr", addr).Msg("worker started")
	s.follow(p.StdoutPath(), "stdout")
	s.follow(p.StderrPath(), "stderr")

	rt := NewHTTPRuntime("http://"+addr, s.opts.APIKey, 5*time.Second)
	if err := WaitHealthy(ctx, rt, s.opts.StartTimeout, p.IsAlive); err != nil {
		s.log.Warn().Err(err).Str("pid", p.PID).Msg("worker not ready")
		s.stopLocked()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrDependencyUnavailable("worker not ready: " + err.Error())
	}
	s.http = rt
	s.log.Info().Str("pid", p.PID).Str("url", rt.BaseURL()).Msg("worker ready")
	return rt, nil
}

// follow streams a worker log file into our logger until Close.
func (s *SpawnRuntime) follow(path, stream string) {
	t, err := tail.TailFile(path, tail.Config{Follow: true, ReOpen: true, MustExist: false, Logger: tail.DiscardingLogger})
	if err != nil {
		s.log.Debug().Err(err).Str("stream", stream).Msg("could not tail worker output")
		return
	}
	s.tails = append(s.tails, t)
	go func() {
		for line := range t.Lines {
			if line == nil {
				continue
			}
			s.log.Debug().Str("stream", stream).Msg(line.Text)
		}
	}()
}

// Close stops the worker process and its log followers.
func (s *SpawnRuntime) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *SpawnRuntime) stopLocked() error {
	for _, t := range s.tails {
		_ = t.Stop()
		t.Cleanup()
	}
	s.tails = nil
	s.http = nil
	if s.proc == nil {
		return nil
	}
	p := s.proc
	s.proc = nil
	if !p.IsAlive() {
		return nil
	}
	s.log.Info().Str("pid", p.PID).Msg("stopping worker")
	return p.Stop()
}
