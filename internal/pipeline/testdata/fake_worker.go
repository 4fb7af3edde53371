package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"diffusiond/internal/pipeline/pipelinetest"
)

func main() {
	var addr string
	flag.StringVar(&addr, "addr", "127.0.0.1:0", "listen address")
	flag.Parse()

	w := pipelinetest.NewWorker(pipelinetest.NewRuntime())
	srv := &http.Server{Addr: addr, Handler: w.Handler()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()
	log.Printf("fake worker listening on %s", addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
