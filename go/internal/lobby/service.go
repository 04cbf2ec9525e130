package lobby

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/WillDent/guess-that-tune/go/internal/auth"
	"github.com/WillDent/guess-that-tune/go/internal/joincode"
	"github.com/WillDent/guess-that-tune/go/internal/models"
	"github.com/WillDent/guess-that-tune/go/internal/store"
)

const (
	ServiceName = "guessthattune.lobby.v1.LobbyService"

	CreateGameProcedure = "/" + ServiceName + "/CreateGame"
	JoinGameProcedure   = "/" + ServiceName + "/JoinGame"
	LeaveGameProcedure  = "/" + ServiceName + "/LeaveGame"
	GetGameProcedure    = "/" + ServiceName + "/GetGame"
)

// LobbyApp defines what the service layer needs from the lobby application
type LobbyApp interface {
	CreateGame(ctx context.Context, host auth.Identity, req CreateGameRequest) (*models.Game, error)
	JoinGame(ctx context.Context, caller *auth.Identity, req JoinGameRequest) (*JoinGameResponse, error)
	LeaveGame(ctx context.Context, caller auth.Identity, gameID uuid.UUID) error
	GetGame(ctx context.Context, caller auth.Identity, gameID uuid.UUID) (*models.Game, []models.Participant, error)
}

// Service exposes the lobby over connect.
type Service struct {
	app LobbyApp
}

func NewService(app LobbyApp) *Service {
	return &Service{app: app}
}

// NewHandler builds the HTTP handler serving every lobby procedure.
func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)
	mux := http.NewServeMux()
	mux.Handle(CreateGameProcedure, connect.NewUnaryHandler(CreateGameProcedure, svc.CreateGame, opts...))
	mux.Handle(JoinGameProcedure, connect.NewUnaryHandler(JoinGameProcedure, svc.JoinGame, opts...))
	mux.Handle(LeaveGameProcedure, connect.NewUnaryHandler(LeaveGameProcedure, svc.LeaveGame, opts...))
	mux.Handle(GetGameProcedure, connect.NewUnaryHandler(GetGameProcedure, svc.GetGame, opts...))
	return "/" + ServiceName + "/", mux
}

func (s *Service) CreateGame(ctx context.Context, req *connect.Request[CreateGameRequest]) (*connect.Response[CreateGameResponse], error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	game, err := s.app.CreateGame(ctx, caller, *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&CreateGameResponse{Game: summarize(game)}), nil
}

// JoinGame is reachable without a session so guests can join.
func (s *Service) JoinGame(ctx context.Context, req *connect.Request[JoinGameRequest]) (*connect.Response[JoinGameResponse], error) {
	var caller *auth.Identity
	if id, ok := auth.FromContext(ctx); ok {
		caller = &id
	}
	resp, err := s.app.JoinGame(ctx, caller, *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(resp), nil
}

func (s *Service) LeaveGame(ctx context.Context, req *connect.Request[LeaveGameRequest]) (*connect.Response[LeaveGameResponse], error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	gameID, err := uuid.Parse(req.Msg.GameID)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err := s.app.LeaveGame(ctx, caller, gameID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&LeaveGameResponse{}), nil
}

func (s *Service) GetGame(ctx context.Context, req *connect.Request[GetGameRequest]) (*connect.Response[GetGameResponse], error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return nil, err
	}
	gameID, err := uuid.Parse(req.Msg.GameID)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	game, participants, err := s.app.GetGame(ctx, caller, gameID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetGameResponse{
		Game:         summarize(game),
		Participants: participants,
	}), nil
}

func requireCaller(ctx context.Context) (auth.Identity, error) {
	id, ok := auth.FromContext(ctx)
	if !ok {
		return auth.Identity{}, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
	}
	return id, nil
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, joincode.ErrUnknownCode):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, store.ErrAccessDenied), errors.Is(err, ErrNotParticipant):
		return connect.NewError(connect.CodePermissionDenied, err)
	case errors.Is(err, store.ErrAlreadyJoined):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.Is(err, store.ErrGameFull), errors.Is(err, store.ErrNotJoinable):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, ErrNoCode):
		return connect.NewError(connect.CodeUnavailable, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}

// Client is a typed connect client for the lobby, used by tools and tests.
type Client struct {
	CreateGame *connect.Client[CreateGameRequest, CreateGameResponse]
	JoinGame   *connect.Client[JoinGameRequest, JoinGameResponse]
	LeaveGame  *connect.Client[LeaveGameRequest, LeaveGameResponse]
	GetGame    *connect.Client[GetGameRequest, GetGameResponse]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
	return &Client{
		CreateGame: connect.NewClient[CreateGameRequest, CreateGameResponse](httpClient, baseURL+CreateGameProcedure, opts...),
		JoinGame:   connect.NewClient[JoinGameRequest, JoinGameResponse](httpClient, baseURL+JoinGameProcedure, opts...),
		LeaveGame:  connect.NewClient[LeaveGameRequest, LeaveGameResponse](httpClient, baseURL+LeaveGameProcedure, opts...),
		GetGame:    connect.NewClient[GetGameRequest, GetGameResponse](httpClient, baseURL+GetGameProcedure, opts...),
	}
}
