package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livestream-hub/internal/encoder"
	"livestream-hub/internal/livestream"
	"livestream-hub/internal/platform/config"
	"livestream-hub/internal/platform/logger"
	"livestream-hub/internal/platform/metrics"
	"livestream-hub/internal/platform/ratelimit"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	encCfg := encoder.Config{
		Command:      config.GetEnv("ENCODER_COMMAND", ""),
		Args:         config.GetEnvList("ENCODER_ARGS", nil),
		ChunkSize:    config.GetEnvInt("ENCODER_CHUNK_SIZE", encoder.DefaultChunkSize),
		IdleTimeout:  config.GetEnvDuration("ENCODER_IDLE_TIMEOUT", encoder.DefaultIdleTimeout),
		PollInterval: config.GetEnvDuration("ENCODER_POLL_INTERVAL", encoder.DefaultPollInterval),
	}
	connectRate := config.GetEnvFloat("CONNECT_RATE_LIMIT", 0)
	connectBurst := config.GetEnvInt("CONNECT_BURST", 10)

	log := logger.New(logLevel, logFormat)
	if encCfg.Command == "" {
		log.Warn("ENCODER_COMMAND is not set, every launch will fail")
	}

	met := metrics.New()
	runner := encoder.NewRunner(encCfg, log)
	registry := livestream.NewRegistry(runner, log, met)
	h := livestream.NewHandler(registry, log)
	connectLimit := ratelimit.Middleware(ratelimit.New(connectRate, connectBurst))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			met.SetActiveStreams(registry.ActiveStreamCount())
			met.SetActiveClients(registry.ActiveClientCount())
		}).ServeHTTP(w, r)
	})
	r.Get("/streams", h.ListStreams)
	r.Route("/streams/{channel}/{quality}", func(r chi.Router) {
		r.Get("/", h.GetStatus)
		r.Put("/status", h.SetStatus)
		r.With(connectLimit).Get("/live", h.ServeLive)
		r.With(connectLimit).Post("/clients", h.ConnectClient)
		r.Delete("/clients/{client_id}", h.DisconnectClient)
	})

	// Live responses block on their queues; cancelling baseCtx releases them.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	addr := ":" + port
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"encoder_command", encCfg.Command,
		"idle_timeout", encCfg.IdleTimeout.String(),
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping encoders and draining connections")

	registry.Close()
	runner.Wait()
	cancelBase()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
