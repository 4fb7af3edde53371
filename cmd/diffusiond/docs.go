package main

// General API documentation for swaggo. Generate with `swag init -g cmd/diffusiond/docs.go -o docs` before building with -tags=swagger.
//
// @title           diffusiond API
// @version         1.0
// @description     KServe v1 predict server for diffusion pipelines.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
