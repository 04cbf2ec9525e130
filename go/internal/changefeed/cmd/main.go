package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/WillDent/guess-that-tune/go/internal/changefeed"
	"github.com/WillDent/guess-that-tune/go/internal/config"
	"github.com/WillDent/guess-that-tune/go/internal/dbconfig"
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

	dbCfg := dbconfig.NewConfigFromEnv()
	dsn := dbCfg.DSN()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("ping database")
	}
	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Msg("connected to database")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, js, err := natschannel.Connect(cfg.NATS)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to NATS")
	}
	defer nc.Close()

	publisher, err := changefeed.NewJetStreamPublisher(ctx, js, cfg.NATS)
	if err != nil {
		log.Fatal().Err(err).Msg("create JetStream publisher")
	}

	ltCfg := changefeed.DefaultListenerConfig()
	ltCfg.DatabaseURL = dsn
	ltCfg.MinReconnect = dbCfg.MinReconnect
	ltCfg.MaxReconnect = dbCfg.MaxReconnect

	listener, err := changefeed.NewListener(store.NewRepository(db), publisher, ltCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create change listener")
	}

	rdb, err := joincode.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to Redis")
	}
	defer rdb.Close()
	listener.ReleaseCodesWith(joincode.NewRedisRegistry(rdb, cfg.Redis.CodeTTL))

	health := &http.Server{
		Addr:    ":" + getEnv("HEALTH_PORT", "8081"),
		Handler: changefeed.NewHealthChecker(listener, db, nc),
	}
	go func() {
		if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server")
		}
	}()
	defer health.Close()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msg("starting change feed relay")
		errCh <- listener.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		if err := <-errCh; err != nil {
			log.Error().Err(err).Msg("listener stop")
		}
		log.Info().Msg("graceful shutdown complete")
	case err := <-errCh:
		log.Error().Err(err).Msg("listener exited unexpectedly")
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
