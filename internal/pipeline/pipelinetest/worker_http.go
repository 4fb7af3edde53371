package pipelinetest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"diffusiond/internal/pipeline"
)

// Handler exposes w over the HTTP worker protocol.
func (w *Worker) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	r.Post("/v1/pipeline/load", func(rw http.ResponseWriter, req *http.Request) {
		var opts pipeline.PretrainedOptions
		if !decode(rw, req, &opts) {
			return
		}
		out, err := w.load(req.Context(), opts)
		reply(rw, out, err)
	})
	r.Post("/v1/pipeline/{id}/device", func(rw http.ResponseWriter, req *http.Request) {
		var in placeArgs
		if !decode(rw, req, &in) {
			return
		}
		reply(rw, emptyReply{}, w.place(req.Context(), chi.URLParam(req, "id"), in.Device))
	})
	r.Post("/v1/pipeline/{id}/lora", func(rw http.ResponseWriter, req *http.Request) {
		var in loraArgs
		if !decode(rw, req, &in) {
			return
		}
		reply(rw, emptyReply{}, w.lora(req.Context(), chi.URLParam(req, "id"), in.Path))
	})
	r.Post("/v1/pipeline/{id}/generate", func(rw http.ResponseWriter, req *http.Request) {
		var in generateArgs
		if !decode(rw, req, &in) {
			return
		}
		out, err := w.generate(req.Context(), chi.URLParam(req, "id"), in.Kwargs)
		reply(rw, out, err)
	})
	r.Delete("/v1/pipeline/{id}", func(rw http.ResponseWriter, req *http.Request) {
		reply(rw, emptyReply{}, w.release(chi.URLParam(req, "id")))
	})
	return r
}

func decode(rw http.ResponseWriter, req *http.Request, v any) bool {
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func reply(rw http.ResponseWriter, v any, err error) {
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, errUnknownPipeline) {
			code = http.StatusNotFound
		}
		http.Error(rw, err.Error(), code)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}
