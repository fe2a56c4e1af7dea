package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/breakwater-labs/clocktower/go/internal/authority"
	"github.com/breakwater-labs/clocktower/go/internal/config"
)

func main() {
	configPath := flag.String("config", "clocktower.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	state := authority.NewState(log.Logger)

	var relay *authority.Relay
	if cfg.Server.NATSURL != "" {
		relay, err = authority.NewRelay(cfg.Server.NATSURL, cfg.Server.RelaySubject, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect relay")
		}
		defer relay.Close()
	}

	hub := authority.NewHub(state, relay, authority.DefaultHubConfig(), log.Logger)

	mux := http.NewServeMux()
	hub.RegisterRoutes(mux)

	handler := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	}).Handler(mux)

	server := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     handler,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("authority listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	cancel()

	log.Info().Msg("authority stopped")
}
