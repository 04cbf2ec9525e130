package main

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/WillDent/guess-that-tune/go/internal/auth"
	"github.com/WillDent/guess-that-tune/go/internal/config"
	"github.com/WillDent/guess-that-tune/go/internal/gateway"
	"github.com/WillDent/guess-that-tune/go/internal/joincode"
	"github.com/WillDent/guess-that-tune/go/internal/lobby"
	"github.com/WillDent/guess-that-tune/go/internal/realtime"
	"github.com/WillDent/guess-that-tune/go/internal/room"
	"github.com/WillDent/guess-that-tune/go/internal/store"
)

type Services struct {
	Tokens      *auth.Tokens
	Lobby       *lobby.Service
	Gateway     *gateway.Handler
	Connections *gateway.ConnectionManager
}

func setupServices(cfg *config.Config, database *sql.DB, channels realtime.ChannelFactory, rdb redis.Cmdable) *Services {
	// Database layer → Repository layer → App layer → Service layer
	repo := store.NewRepository(database)
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.GuestTokenTTL, nil)

	// Lobby
	codes := joincode.NewRedisRegistry(rdb, cfg.Redis.CodeTTL)
	lobbyApp := lobby.NewApp(repo, codes, tokens)
	lobbyService := lobby.NewService(lobbyApp)

	// Rooms
	connCfg := gateway.DefaultConnectionConfig()
	connCfg.CheckOrigin = gateway.AllowOrigins(cfg.Server.AllowedOrigins)
	connections := gateway.NewConnectionManager(connCfg)
	stores := func(viewerID uuid.UUID) room.Store { return repo.ForViewer(viewerID) }
	gatewayHandler := gateway.NewHandler(connections, tokens, stores, channels, room.WithConfig(cfg.Room))

	return &Services{
		Tokens:      tokens,
		Lobby:       lobbyService,
		Gateway:     gatewayHandler,
		Connections: connections,
	}
}
