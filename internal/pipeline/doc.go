// Package pipeline loads a diffusion pipeline into a runtime worker and
// invokes it.
//
//   - iface.go: Runtime and Pipeline interfaces, load options sent to workers.
//   - device.go: device placement policies and their validation.
//   - load.go: Load, the ordered load sequence (device, pretrained, place, lora).
//   - invoke.go: Invoke, which returns the first generated image.
//   - hints.go: typed view over generation kwargs for logs and metrics.
//   - sanity.go: GPU preflight for accelerator policies.
//   - runtime_http.go: worker reached over HTTP/JSON.
//   - runtime_spawn.go: worker launched and supervised as a child process.
//   - runtime_grpc.go: worker reached over gRPC with a JSON codec.
//
// The numerical work happens in the worker; this package only drives it.
package pipeline
