package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/WillDent/guess-that-tune/go/internal/config"
	"github.com/WillDent/guess-that-tune/go/internal/joincode"
	"github.com/WillDent/guess-that-tune/go/internal/realtime/natschannel"
	"github.com/WillDent/guess-that-tune/go/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	config.SetupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := setupDatabase()
	if err != nil {
		log.Fatal().Err(err).Msg("setup database")
	}
	defer database.Close()

	if err := store.Migrate(ctx, database); err != nil {
		log.Fatal().Err(err).Msg("apply schema")
	}

	nc, js, err := natschannel.Connect(cfg.NATS)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to NATS")
	}
	defer nc.Close()
	if err := natschannel.EnsureStream(ctx, js, cfg.NATS); err != nil {
		log.Fatal().Err(err).Msg("ensure change stream")
	}

	rdb, err := joincode.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to Redis")
	}
	defer rdb.Close()

	services := setupServices(cfg, database, natschannel.NewFactory(nc, js, cfg.NATS), rdb)
	server := setupServer(cfg, services)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server exited unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	// hijacked websocket connections are not tracked by Shutdown
	services.Connections.CloseAll()
	log.Info().Msg("graceful shutdown complete")
}
