// Command registry-server serves an in-memory DID registry over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pilacorp/go-trackback-agent/config"
	"github.com/pilacorp/go-trackback-agent/logger"
	"github.com/pilacorp/go-trackback-agent/registry/httpbackend"
	"github.com/pilacorp/go-trackback-agent/registry/memory"
)

func main() {
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)
	log := logger.New("main")

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpbackend.NewHandler(memory.New()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("shutdown failed")
		}
	}()

	log.WithField("addr", cfg.ListenAddr).Info("registry listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server stopped")
	}
	log.Info("registry stopped")
}
