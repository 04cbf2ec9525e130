package main

import (
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/WillDent/guess-that-tune/go/internal/auth"
	"github.com/WillDent/guess-that-tune/go/internal/config"
	"github.com/WillDent/guess-that-tune/go/internal/gateway"
	"github.com/WillDent/guess-that-tune/go/internal/lobby"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	registerServices(mux, services)
	setupHealthCheck(mux)

	handler := c.Handler(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	// Register lobby service; guests join without a session
	interceptor := auth.NewInterceptor(services.Tokens, lobby.JoinGameProcedure)
	lobbyPath, lobbyHandler := lobby.NewHandler(services.Lobby, connect.WithInterceptors(interceptor))
	mux.Handle(lobbyPath, lobbyHandler)

	// Register room websocket and state routes
	services.Gateway.RegisterRoutes(mux)
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", gateway.HandleHealth)
}
