package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if getEnv("LOG_LEVEL", "") == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := loadConfig(getEnv("CONFIG_PATH", ""))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	defer services.Close()

	log.Info().
		Str("store", cfg.Store.Backend).
		Str("port", cfg.Server.Port).
		Msg("starting camtag")

	go func() {
		if err := services.Scheduler.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	// Pick up where a previous process left off.
	if err := services.App.RestoreTimers(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to restore timers")
	}

	if services.OutboxListener != nil {
		go func() {
			if err := services.OutboxListener.Start(ctx); err != nil && err != context.Canceled {
				log.Error().Err(err).Msg("outbox listener stopped")
			}
		}()
	}
	if services.OutboxWorker != nil {
		go func() {
			if err := services.OutboxWorker.Start(ctx); err != nil && err != context.Canceled {
				log.Error().Err(err).Msg("outbox worker stopped")
			}
		}()
	}
	if services.Consumer != nil {
		go func() {
			if err := services.Consumer.Run(ctx); err != nil && err != context.Canceled {
				log.Error().Err(err).Msg("event consumer stopped")
			}
		}()
	}

	if err := services.Janitor.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start janitor")
	}

	server := setupServer(cfg, services)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
	if err := services.Janitor.Stop(); err != nil {
		log.Error().Err(err).Msg("janitor shutdown failed")
	}
	cancel()

	log.Info().Msg("goodbye")
}
