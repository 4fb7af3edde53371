package model

import (
	"context"
	"net/http"
	"time"

	"diffusiond/internal/payload"
	"diffusiond/internal/pipeline"
	"diffusiond/pkg/types"
)

// Preprocess validates the payload and returns normalized parameters.
// On success headers carries Request-Type: v1.
func (m *Model) Preprocess(p payload.Payload, headers http.Header) (payload.Params, error) {
	params, err := payload.Preprocess(p, headers)
	if err != nil {
		return nil, err
	}
	if headers != nil {
		m.log.Info().Str("request_type", headers.Get(payload.RequestTypeHeader)).Msg("received request")
	}
	return params, nil
}

// Predict runs the pipeline on params and returns the encoded first image.
// params must come from Preprocess; they are not normalized again.
func (m *Model) Predict(ctx context.Context, params payload.Params, headers http.Header) (types.PredictResponse, error) {
	name := m.cfg.ModelName
	p, err := m.pipe()
	if err != nil {
		predictErrors.WithLabelValues(name, "not_ready").Inc()
		return types.PredictResponse{}, err
	}
	prompt, ok := params.Prompt()
	if !ok {
		predictErrors.WithLabelValues(name, "input").Inc()
		return types.PredictResponse{}, &MissingPromptError{}
	}
	if headers != nil {
		ctx = pipeline.WithRequestID(ctx, headers.Get("X-Request-Id"))
	}

	m.log.Debug().Object("hints", pipeline.ParseHints(params)).Msg("invoking pipeline")
	start := time.Now()
	img, err := pipeline.Invoke(ctx, p, params)
	if err != nil {
		predictErrors.WithLabelValues(name, "runtime").Inc()
		m.log.Error().Err(err).Msg("pipeline call failed")
		m.pub.Publish(Event{Name: "predict_error", Model: name, Fields: map[string]any{"error": err.Error()}})
		return types.PredictResponse{}, err
	}
	enc, err := EncodeImage(img)
	if err != nil {
		predictErrors.WithLabelValues(name, "encode").Inc()
		return types.PredictResponse{}, err
	}
	predictDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	m.predictions.Add(1)
	return types.PredictResponse{Predictions: []types.Prediction{{
		ModelName: m.cfg.ModelID,
		Prompt:    prompt,
		Image:     enc,
	}}}, nil
}
