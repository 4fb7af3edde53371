// Package model is the model adapter shell: it owns the single diffusion
// pipeline, tracks its lifecycle (unloaded, loading, ready, failed) and turns
// predict requests into encoded images.
//
//   - model.go: Model, options, Load/Ready/State/Status/Close.
//   - predict.go: Preprocess and Predict.
//   - encode.go: PNG + base64 response encoding.
//   - events.go, eventpub_memory.go: lifecycle events.
//   - metrics.go: Prometheus collectors for load and predict.
package model
