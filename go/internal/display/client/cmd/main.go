package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/showcall/go/internal/display/client"
	"github.com/mcdev12/showcall/go/internal/display/timer"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	cfg, err := loadConfig(os.Getenv("DISPLAY_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	connConfig, err := connectionConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid connection config")
	}

	port := getEnv("DISPLAY_STATUS_PORT", "8090")

	clock := clockwork.NewRealClock()
	session := client.NewSession(clock, nil)
	session.SetDisplay(getEnv("DISPLAY_MODE", cfg.Display))

	log.Info().
		Str("session_id", session.ID()).
		Str("url", connConfig.URL).
		Bool("static", connConfig.URL == "").
		Str("port", port).
		Msg("starting display client")

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var notifier client.Notifier
	if pubConfig, ok := publisherConfig(cfg); ok {
		publisher, err := client.NewStatePublisher(ctx, pubConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create state publisher")
		}
		defer publisher.Close()
		go publisher.Run(ctx)
		notifier = publisher
	}

	cm := client.NewConnectionManager(connConfig, clock, session, notifier)

	// Local countdown, logged once per displayed second
	lastShown := ""
	sampler := timer.NewSampler(clock, timer.DefaultSampleInterval, session.Timer, func(remainingMs int64) {
		shown := timer.Format(remainingMs)
		if shown == lastShown {
			return
		}
		lastShown = shown
		log.Debug().Str("timer", shown).Bool("flashing", session.Flashing()).Msg("countdown")
	})

	server := client.NewStatusServer(fmt.Sprintf(":%s", port), client.NewStatusHandler(session, cm))

	go func() {
		if err := cm.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("connection manager failed")
		}
	}()

	go sampler.Run(ctx)

	// Start HTTP server
	go func() {
		log.Info().Str("addr", server.Addr).Msg("status server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("status server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("status server shutdown failed")
	}

	cancel()

	// Give the socket time to send its close frame
	time.Sleep(500 * time.Millisecond)

	log.Info().Msg("display client shutdown complete")
}
