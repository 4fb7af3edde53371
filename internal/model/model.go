package model

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"diffusiond/internal/config"
	"diffusiond/internal/pipeline"
	"diffusiond/pkg/types"
)

// State is the lifecycle state of the served model.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateFailed   State = "failed"
	// StateClosed follows ready once Close released the pipeline at shutdown.
	// It is terminal; the model never returns to unloaded.
	StateClosed State = "closed"
)

// Model serves one diffusion pipeline. The pipeline is loaded once and never
// replaced; Predict may be called concurrently once ready.
type Model struct {
	cfg     config.Config
	rt      pipeline.Runtime
	log     zerolog.Logger
	pub     EventPublisher
	started time.Time

	once    sync.Once
	loadErr error

	mu       sync.RWMutex
	state    State
	loaded   *pipeline.Loaded
	lastErr  string
	loadTime time.Duration

	predictions atomic.Uint64
}

// Option configures a Model.
type Option func(*Model)

// WithLogger sets the model logger. The default discards logs.
func WithLogger(l zerolog.Logger) Option { return func(m *Model) { m.log = l } }

// WithPublisher installs an EventPublisher for lifecycle events.
func WithPublisher(p EventPublisher) Option {
	return func(m *Model) {
		if p != nil {
			m.pub = p
		}
	}
}

// New builds an unloaded Model. cfg is copied.
func New(cfg config.Config, rt pipeline.Runtime, opts ...Option) *Model {
	m := &Model{
		cfg:     cfg,
		rt:      rt,
		log:     zerolog.Nop(),
		pub:     noopPublisher{},
		started: time.Now(),
		state:   StateUnloaded,
	}
	for _, o := range opts {
		o(m)
	}
	m.log = m.log.With().Str("model", cfg.ModelName).Logger()
	modelReady.WithLabelValues(cfg.ModelName).Set(0)
	return m
}

// Name returns the served model name.
func (m *Model) Name() string { return m.cfg.ModelName }

// Load loads the pipeline. Only the first call does work; later calls return
// its result.
func (m *Model) Load(ctx context.Context) error {
	m.once.Do(func() { m.loadErr = m.load(ctx) })
	return m.loadErr
}

func (m *Model) load(ctx context.Context) error {
	name := m.cfg.ModelName
	m.mu.Lock()
	m.state = StateLoading
	m.mu.Unlock()
	m.pub.Publish(Event{Name: "load_start", Model: name, Fields: map[string]any{
		"model_id": m.cfg.ModelID, "device": m.cfg.Device, "lora_dir": m.cfg.LoRADir,
	}})
	m.log.Info().Str("model_id", m.cfg.ModelID).Str("device", m.cfg.Device).Str("lora_dir", m.cfg.LoRADir).Msg("loading model")

	start := time.Now()
	l, err := m.loadPipeline(ctx)
	took := time.Since(start)
	if err != nil {
		loadDuration.WithLabelValues(name, "error").Observe(took.Seconds())
		m.mu.Lock()
		m.state = StateFailed
		m.lastErr = err.Error()
		m.mu.Unlock()
		stage := ""
		var le *pipeline.LoadError
		if errors.As(err, &le) {
			stage = le.Stage
		}
		m.log.Error().Err(err).Str("stage", stage).Dur("took", took).Msg("model load failed")
		m.pub.Publish(Event{Name: "load_failed", Model: name, Fields: map[string]any{"stage": stage, "error": err.Error()}})
		return err
	}
	loadDuration.WithLabelValues(name, "ok").Observe(took.Seconds())
	m.mu.Lock()
	m.loaded = l
	m.loadTime = took
	m.state = StateReady
	m.mu.Unlock()
	modelReady.WithLabelValues(name).Set(1)
	m.log.Info().Dur("took", took).Str("device", string(l.Device)).Str("pipeline_class", l.Ref.PipelineClass).Msg("model ready")
	m.pub.Publish(Event{Name: "load_ready", Model: name, Fields: map[string]any{"load_ms": took.Milliseconds()}})
	return nil
}

// loadPipeline waits for a probeable worker, then runs the load sequence.
func (m *Model) loadPipeline(ctx context.Context) (*pipeline.Loaded, error) {
	ctx = m.log.WithContext(ctx)
	if hc, ok := m.rt.(pipeline.HealthChecker); ok {
		// A bad device policy must fail before the worker is contacted.
		if _, err := pipeline.ParseDevice(m.cfg.Device); err != nil {
			return nil, &pipeline.LoadError{Stage: "device", Err: err}
		}
		timeout := time.Duration(m.cfg.WorkerStartSec) * time.Second
		if timeout <= 0 {
			timeout = config.DefaultWorkerStartSec * time.Second
		}
		m.log.Info().Dur("timeout", timeout).Msg("waiting for runtime worker")
		if err := pipeline.WaitHealthy(ctx, hc, timeout, nil); err != nil {
			return nil, &pipeline.LoadError{Stage: "runtime", Err: err}
		}
	}
	return pipeline.Load(ctx, m.rt, pipeline.LoadOptions{
		ModelID:  m.cfg.ModelID,
		LoRADir:  m.cfg.LoRADir,
		Device:   m.cfg.Device,
		GPUCheck: m.cfg.GPUCheck,
	})
}

// Ready reports whether Load completed successfully.
func (m *Model) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateReady
}

// State returns the lifecycle state.
func (m *Model) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Status builds the /status view.
func (m *Model) Status() types.ModelStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := types.ModelStatus{
		Name:             m.cfg.ModelName,
		ModelID:          m.cfg.ModelID,
		LoRADir:          m.cfg.LoRADir,
		Device:           m.cfg.Device,
		State:            string(m.state),
		LastError:        m.lastErr,
		LoadMillis:       m.loadTime.Milliseconds(),
		PredictionsTotal: m.predictions.Load(),
		UptimeSeconds:    int64(time.Since(m.started).Seconds()),
	}
	if m.loaded != nil {
		st.Device = string(m.loaded.Device)
		st.PipelineClass = m.loaded.Ref.PipelineClass
	}
	return st
}

// pipe returns the loaded pipeline or ErrNotReady.
func (m *Model) pipe() (pipeline.Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateReady || m.loaded == nil {
		return nil, ErrNotReady
	}
	return m.loaded.Pipeline, nil
}

// Close releases the pipeline handle. A ready model moves to StateClosed and
// reports not-ready from then on.
func (m *Model) Close() error {
	m.mu.Lock()
	l := m.loaded
	m.loaded = nil
	if m.state == StateReady {
		m.state = StateClosed
	}
	m.mu.Unlock()
	if l == nil {
		return nil
	}
	modelReady.WithLabelValues(m.cfg.ModelName).Set(0)
	m.pub.Publish(Event{Name: "closed", Model: m.cfg.ModelName})
	return l.Pipeline.Close()
}
