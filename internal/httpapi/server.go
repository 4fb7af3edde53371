package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"diffusiond/internal/payload"
	"diffusiond/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Name() string
	Ready() bool
	Status() types.ModelStatus
	Preprocess(p payload.Payload, headers http.Header) (payload.Params, error)
	Predict(ctx context.Context, params payload.Params, headers http.Header) (types.PredictResponse, error)
}

const predictSuffix = ":predict"

type server struct {
	svc Service
}

func NewMux(svc Service) http.Handler {
	s := &server{svc: svc}
	r := chi.NewRouter()
	if corsEnabled {
		origins, methods, headers := corsDefaults()
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: methods,
			AllowedHeaders: headers,
			ExposedHeaders: []string{payload.RequestTypeHeader, "X-Request-Id"},
			MaxAge:         300,
		}))
	}
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	// KServe v1. "{target}" is "<name>" for metadata and "<name>:predict" for inference.
	r.Get("/v1/models", s.listModels)
	r.Get("/v1/models/{target}", s.modelReady)
	r.Post("/v1/models/{target}", s.predict)

	// KServe v2: health only; inference is rejected.
	r.Get("/v2/health/live", s.live)
	r.Get("/v2/health/ready", s.ready)
	r.Get("/v2/models/{name}/ready", s.ready)
	r.Post("/v2/models/{name}/infer", s.inferV2)

	r.Get("/status", s.status)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// knownModel writes 404 and returns false when name is not the served model.
func (s *server) knownModel(w http.ResponseWriter, name string) bool {
	if name == s.svc.Name() {
		return true
	}
	writeJSONError(w, http.StatusNotFound, "model not found: "+name)
	return false
}

// listModels godoc
// @Summary      List served models
// @Tags         v1
// @Produce      json
// @Success      200  {object}  types.ModelsResponse
// @Router       /v1/models [get]
func (s *server) listModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.ModelsResponse{Models: []string{s.svc.Name()}})
}

// modelReady godoc
// @Summary      Model metadata and readiness
// @Tags         v1
// @Produce      json
// @Param        name  path      string  true  "Served model name"
// @Success      200   {object}  types.ModelReadyResponse
// @Failure      404   {object}  types.ErrorResponse
// @Router       /v1/models/{name} [get]
func (s *server) modelReady(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "target")
	if !s.knownModel(w, name) {
		return
	}
	writeJSON(w, http.StatusOK, types.ModelReadyResponse{Name: name, Ready: s.svc.Ready()})
}

// predict godoc
// @Summary      Generate an image
// @Description  Runs the diffusion pipeline with the first instance as keyword arguments and returns a base64 PNG.
// @Tags         v1
// @Accept       json
// @Produce      json
// @Param        name  path      string                true  "Served model name"
// @Param        body  body      types.PredictRequest  true  "Predict request"
// @Success      200   {object}  types.PredictResponse
// @Failure      400   {object}  types.ErrorResponse
// @Failure      404   {object}  types.ErrorResponse
// @Failure      415   {object}  types.ErrorResponse
// @Failure      500   {object}  types.ErrorResponse
// @Failure      503   {object}  types.ErrorResponse
// @Router       /v1/models/{name}:predict [post]
func (s *server) predict(w http.ResponseWriter, r *http.Request) {
	name, ok := strings.CutSuffix(chi.URLParam(r, "target"), predictSuffix)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "unknown route")
		return
	}
	if !s.knownModel(w, name) {
		return
	}
	body, ok := readJSONBody(w, r)
	if !ok {
		return
	}

	lvl := requestLogLevel(r)
	start := time.Now()
	headers := r.Header.Clone()
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		headers.Set("X-Request-Id", rid)
	}
	params, err := s.svc.Preprocess(payload.DecodeV1(body), headers)
	if err != nil {
		IncrementRejected("invalid_payload")
		status := statusFor(err)
		writeJSONError(w, status, err.Error())
		logPredictEnd(r, lvl, status, start, err)
		return
	}
	if v := headers.Get(payload.RequestTypeHeader); v != "" {
		w.Header().Set(payload.RequestTypeHeader, v)
	}
	logPredictStart(r, lvl, name)

	// Join server base context with request context so shutdown cancels work too.
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	resp, err := s.svc.Predict(ctx, params, headers)
	if err != nil {
		// If context was canceled (client disconnect or shutdown), just return.
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			return
		}
		status := statusFor(err)
		writeJSONError(w, status, err.Error())
		logPredictEnd(r, lvl, status, start, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	logPredictEnd(r, lvl, http.StatusOK, start, nil)
}

// readJSONBody enforces the content type and body size limit.
func readJSONBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		IncrementRejected("content_type")
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			IncrementRejected("body_too_large")
			writeJSONError(w, http.StatusBadRequest, "request body too large")
			return nil, false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	return body, true
}

// inferV2 godoc
// @Summary      KServe v2 inference (not implemented)
// @Tags         v2
// @Accept       json
// @Produce      json
// @Param        name  path      string  true  "Served model name"
// @Failure      400   {object}  types.ErrorResponse
// @Router       /v2/models/{name}/infer [post]
func (s *server) inferV2(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, _ := io.ReadAll(r.Body)
	_, err := s.svc.Preprocess(payload.DecodeV2(body), r.Header.Clone())
	if err == nil {
		err = payload.ErrUnsupportedProtocol
	}
	IncrementRejected("unsupported_protocol")
	writeJSONError(w, statusFor(err), err.Error())
}

// live godoc
// @Summary      Liveness
// @Tags         v2
// @Produce      json
// @Success      200  {object}  map[string]bool
// @Router       /v2/health/live [get]
func (s *server) live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"live": true})
}

// ready godoc
// @Summary      Readiness
// @Tags         v2
// @Produce      json
// @Success      200  {object}  map[string]bool
// @Failure      503  {object}  map[string]bool
// @Router       /v2/health/ready [get]
// @Router       /v2/models/{name}/ready [get]
func (s *server) ready(w http.ResponseWriter, r *http.Request) {
	if name := chi.URLParam(r, "name"); name != "" && !s.knownModel(w, name) {
		return
	}
	status := http.StatusOK
	ok := s.svc.Ready()
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]bool{"ready": ok})
}

// status godoc
// @Summary      Server and model status
// @Tags         ops
// @Produce      json
// @Success      200  {object}  types.ModelStatus
// @Router       /status [get]
func (s *server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Status())
}
