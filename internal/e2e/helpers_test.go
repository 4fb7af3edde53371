package e2e

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"diffusiond/internal/config"
	"diffusiond/internal/httpapi"
	"diffusiond/internal/model"
	"diffusiond/internal/pipeline"
	"diffusiond/internal/pipeline/pipelinetest"
	"diffusiond/pkg/types"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.ModelName = "sd"
	cfg.ModelID = "org/stable-diffusion"
	cfg.GPUCheck = false
	cfg.WorkerStartSec = 5
	return cfg
}

// newServer loads a model over rt and serves it through the HTTP API.
func newServer(t *testing.T, cfg config.Config, rt pipeline.Runtime) (*httptest.Server, *model.Model) {
	t.Helper()
	m := model.New(cfg, rt)
	t.Cleanup(func() { _ = m.Close() })
	srv := httptest.NewServer(httpapi.NewMux(m))
	t.Cleanup(srv.Close)
	return srv, m
}

// startHTTPWorker serves fake behind the HTTP worker protocol.
func startHTTPWorker(t *testing.T, fake *pipelinetest.Runtime) (*pipelinetest.Worker, *pipeline.HTTPRuntime) {
	t.Helper()
	w := pipelinetest.NewWorker(fake)
	ws := httptest.NewServer(w.Handler())
	t.Cleanup(ws.Close)
	return w, pipeline.NewHTTPRuntime(ws.URL, "", 0)
}

// startGRPCWorker serves fake behind the gRPC worker protocol.
func startGRPCWorker(t *testing.T, fake *pipelinetest.Runtime) (*pipelinetest.Worker, *pipeline.GRPCRuntime) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	w := pipelinetest.NewWorker(fake)
	s := pipelinetest.NewGRPCServer(w)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)
	rt, err := pipeline.NewGRPCRuntime(lis.Addr().String(), "")
	if err != nil {
		t.Fatalf("NewGRPCRuntime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return w, rt
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func postJSON(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

// decodePrediction checks the response shape and returns its single prediction.
func decodePrediction(t *testing.T, body []byte) types.Prediction {
	t.Helper()
	var out types.PredictResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v body=%s", err, body)
	}
	if len(out.Predictions) != 1 {
		t.Fatalf("expected one prediction, got %d", len(out.Predictions))
	}
	p := out.Predictions[0]
	if p.Image.Format != "PNG" || p.Image.B64 == "" {
		t.Fatalf("unexpected image: %+v", p.Image)
	}
	raw, err := base64.StdEncoding.DecodeString(p.Image.B64)
	if err != nil {
		t.Fatalf("b64: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(raw)); err != nil {
		t.Fatalf("png: %v", err)
	}
	return p
}
