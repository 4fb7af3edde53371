package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"diffusiond/internal/payload"
)

// HTTPRuntime implements Runtime by talking to a running worker over HTTP.
//
// Worker routes:
//
//	GET    /healthz
//	POST   /v1/pipeline/load            PretrainedOptions -> {"id"}
//	POST   /v1/pipeline/{id}/device     {"device"}
//	POST   /v1/pipeline/{id}/lora       {"path"}
//	POST   /v1/pipeline/{id}/generate   {"kwargs"} -> {"images":[{"format","b64"}]}
//	DELETE /v1/pipeline/{id}
type HTTPRuntime struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPRuntime constructs a server-backed runtime.
func NewHTTPRuntime(baseURL, apiKey string, connectTimeout time.Duration) *HTTPRuntime {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Timeout=0: inference runs to completion; callers bound requests through ctx.
	cli := &http.Client{Transport: tr, Timeout: 0}
	return &HTTPRuntime{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: cli,
	}
}

// BaseURL returns the worker address.
func (r *HTTPRuntime) BaseURL() string { return r.baseURL }

// Healthy checks GET /healthz.
func (r *HTTPRuntime) Healthy(ctx context.Context) error {
	return r.do(ctx, http.MethodGet, "/healthz", "health", nil, nil)
}

func (r *HTTPRuntime) LoadPretrained(ctx context.Context, opts PretrainedOptions) (Pipeline, error) {
	var out loadResponse
	if err := r.do(ctx, http.MethodPost, "/v1/pipeline/load", "load", opts, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, errors.New("runtime load: empty pipeline id")
	}
	return &httpPipeline{rt: r, id: out.ID}, nil
}

// do sends one JSON request. A nil in sends no body; a nil out discards the response.
func (r *HTTPRuntime) do(ctx context.Context, method, path, op string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID(ctx))
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		// Translate context timeouts/cancels
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrDependencyUnavailable("runtime unreachable: " + err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RuntimeError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// httpPipeline is a pipeline held by an HTTP worker.
type httpPipeline struct {
	rt *HTTPRuntime
	id string
}

func (p *httpPipeline) path(suffix string) string {
	return "/v1/pipeline/" + url.PathEscape(p.id) + suffix
}

func (p *httpPipeline) Place(ctx context.Context, d Device) error {
	return p.rt.do(ctx, http.MethodPost, p.path("/device"), "device", placeRequest{Device: d}, nil)
}

func (p *httpPipeline) LoadLoRAWeights(ctx context.Context, path string) error {
	return p.rt.do(ctx, http.MethodPost, p.path("/lora"), "lora", loraRequest{Path: path}, nil)
}

func (p *httpPipeline) Generate(ctx context.Context, params payload.Params) ([]image.Image, error) {
	var out generateResponse
	if err := p.rt.do(ctx, http.MethodPost, p.path("/generate"), "generate", generateRequest{Kwargs: params}, &out); err != nil {
		return nil, err
	}
	return decodeImages(out.Images)
}

func (p *httpPipeline) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return p.rt.do(ctx, http.MethodDelete, p.path(""), "release", nil, nil)
}
