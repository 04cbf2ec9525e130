package lobby

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/WillDent/guess-that-tune/go/internal/auth"
	"github.com/WillDent/guess-that-tune/go/internal/joincode"
	"github.com/WillDent/guess-that-tune/go/internal/models"
	"github.com/WillDent/guess-that-tune/go/internal/store"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNoCode          = errors.New("could not allocate a join code")
	ErrNotParticipant  = errors.New("caller is not a participant")
)

const codeAttempts = 8

// Repository is what the lobby needs from the durable store.
type Repository interface {
	CreateGame(ctx context.Context, req store.CreateGameRequest) (*models.Game, error)
	GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	GetPendingGameByCode(ctx context.Context, code string) (*models.Game, error)
	JoinGame(ctx context.Context, req store.JoinRequest) (*models.Participant, error)
	ListParticipants(ctx context.Context, gameID uuid.UUID) ([]models.Participant, error)
	DeleteParticipant(ctx context.Context, id uuid.UUID) error
}

// CodeRegistry indexes join codes of pending games.
type CodeRegistry interface {
	Reserve(ctx context.Context, code string, gameID uuid.UUID) (bool, error)
	Resolve(ctx context.Context, code string) (uuid.UUID, error)
	Release(ctx context.Context, code string) error
}

// GuestIssuer signs session tokens for guests.
type GuestIssuer interface {
	Issue(id auth.Identity) (string, error)
}

// App handles game creation and membership before play starts.
type App struct {
	repo   Repository
	codes  CodeRegistry
	guests GuestIssuer
}

func NewApp(repo Repository, codes CodeRegistry, guests GuestIssuer) *App {
	return &App{repo: repo, codes: codes, guests: guests}
}

// CreateGame creates a pending game with a fresh join code.
func (a *App) CreateGame(ctx context.Context, host auth.Identity, req CreateGameRequest) (*models.Game, error) {
	if host.Guest {
		return nil, fmt.Errorf("%w: guests cannot host", store.ErrAccessDenied)
	}
	setID, err := uuid.Parse(req.QuestionSetID)
	if err != nil {
		return nil, fmt.Errorf("%w: question_set_id: %v", ErrInvalidArgument, err)
	}
	if req.TimeLimit == 0 {
		req.TimeLimit = DefaultTimeLimit
	}
	if req.TimeLimit < MinTimeLimit || req.TimeLimit > MaxTimeLimit {
		return nil, fmt.Errorf("%w: time_limit must be between %d and %d", ErrInvalidArgument, MinTimeLimit, MaxTimeLimit)
	}
	if req.MaxPlayers == 0 {
		req.MaxPlayers = DefaultMaxPlayers
	}
	if req.MaxPlayers < 1 || req.MaxPlayers > MaxMaxPlayers {
		return nil, fmt.Errorf("%w: max_players must be between 1 and %d", ErrInvalidArgument, MaxMaxPlayers)
	}

	gameID := uuid.New()
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := joincode.Generate()
		if err != nil {
			return nil, err
		}
		ok, err := a.codes.Reserve(ctx, code, gameID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		game, err := a.repo.CreateGame(ctx, store.CreateGameRequest{
			ID:            gameID,
			QuestionSetID: setID,
			HostUserID:    host.ID,
			TimeLimit:     req.TimeLimit,
			MaxPlayers:    req.MaxPlayers,
			Code:          code,
		})
		if err != nil {
			a.release(ctx, code)
			if errors.Is(err, store.ErrCodeTaken) {
				continue
			}
			return nil, fmt.Errorf("failed to create game: %w", err)
		}

		log.Info().
			Str("game_id", game.ID.String()).
			Str("host_user_id", host.ID.String()).
			Str("code", code).
			Msg("Created game")
		return game, nil
	}
	return nil, ErrNoCode
}

// JoinGame adds the caller to a pending game. A nil caller joins as a guest
// and receives a token bound to the new participant id. Joining twice
// returns the existing row.
func (a *App) JoinGame(ctx context.Context, caller *auth.Identity, req JoinGameRequest) (*JoinGameResponse, error) {
	game, err := a.locate(ctx, req)
	if err != nil {
		return nil, err
	}

	joinReq := store.JoinRequest{GameID: game.ID}
	if caller != nil && !caller.Guest {
		id := caller.ID
		joinReq.UserID = &id
	} else {
		name := strings.TrimSpace(req.DisplayName)
		if name == "" && caller != nil {
			name = caller.Name
		}
		if name == "" {
			return nil, fmt.Errorf("%w: display_name is required for guests", ErrInvalidArgument)
		}
		joinReq.DisplayName = name
	}

	p, err := a.repo.JoinGame(ctx, joinReq)
	switch {
	case errors.Is(err, store.ErrAlreadyJoined) && caller != nil:
		p, err = a.participantOf(ctx, game.ID, *caller)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, store.ErrNotJoinable):
		if game.Code != nil {
			a.release(ctx, *game.Code)
		}
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("failed to join game: %w", err)
	}

	resp := &JoinGameResponse{Game: summarize(game), Participant: *p}
	if joinReq.UserID == nil {
		token, err := a.guests.Issue(auth.Identity{ID: p.ID, Name: p.DisplayName, Guest: true})
		if err != nil {
			return nil, err
		}
		resp.GuestToken = token
	}

	log.Info().
		Str("game_id", game.ID.String()).
		Str("participant_id", p.ID.String()).
		Bool("guest", joinReq.UserID == nil).
		Msg("Player joined game")
	return resp, nil
}

func (a *App) locate(ctx context.Context, req JoinGameRequest) (*models.Game, error) {
	if req.GameID != "" {
		id, err := uuid.Parse(req.GameID)
		if err != nil {
			return nil, fmt.Errorf("%w: game_id: %v", ErrInvalidArgument, err)
		}
		return a.repo.GetGame(ctx, id)
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if !joincode.Valid(code) {
		return nil, fmt.Errorf("%w: malformed join code", ErrInvalidArgument)
	}
	id, err := a.codes.Resolve(ctx, code)
	if errors.Is(err, joincode.ErrUnknownCode) {
		// the registry entry may have expired while the game is still open
		game, err := a.repo.GetPendingGameByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		if _, err := a.codes.Reserve(ctx, code, game.ID); err != nil {
			log.Warn().Err(err).Str("code", code).Msg("Failed to re-register join code")
		}
		return a.repo.GetGame(ctx, game.ID)
	}
	if err != nil {
		return nil, err
	}

	game, err := a.repo.GetGame(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		a.release(ctx, code)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if game.Status != models.GameStatusPending {
		a.release(ctx, code)
		return nil, store.ErrNotJoinable
	}
	return game, nil
}

// LeaveGame removes the caller's participant row.
func (a *App) LeaveGame(ctx context.Context, caller auth.Identity, gameID uuid.UUID) error {
	p, err := a.participantOf(ctx, gameID, caller)
	if err != nil {
		return err
	}
	if err := a.repo.DeleteParticipant(ctx, p.ID); err != nil {
		return fmt.Errorf("failed to leave game: %w", err)
	}
	log.Info().
		Str("game_id", gameID.String()).
		Str("participant_id", p.ID.String()).
		Msg("Player left game")
	return nil
}

// GetGame returns a game and its participants. Pending games are visible to
// anyone; later only to the host and participants.
func (a *App) GetGame(ctx context.Context, caller auth.Identity, gameID uuid.UUID) (*models.Game, []models.Participant, error) {
	game, err := a.repo.GetGame(ctx, gameID)
	if err != nil {
		return nil, nil, err
	}
	participants, err := a.repo.ListParticipants(ctx, gameID)
	if err != nil {
		return nil, nil, err
	}
	if game.Status != models.GameStatusPending && !game.IsHost(caller.ID) && findParticipant(participants, caller) == nil {
		return nil, nil, fmt.Errorf("game %s: %w", gameID, store.ErrAccessDenied)
	}
	return game, participants, nil
}

func (a *App) participantOf(ctx context.Context, gameID uuid.UUID, caller auth.Identity) (*models.Participant, error) {
	participants, err := a.repo.ListParticipants(ctx, gameID)
	if err != nil {
		return nil, err
	}
	p := findParticipant(participants, caller)
	if p == nil {
		return nil, ErrNotParticipant
	}
	return p, nil
}

func findParticipant(participants []models.Participant, caller auth.Identity) *models.Participant {
	for i := range participants {
		p := &participants[i]
		if caller.Guest {
			if p.UserID == nil && p.ID == caller.ID {
				return p
			}
		} else if p.BelongsTo(caller.ID) {
			return p
		}
	}
	return nil
}

func (a *App) release(ctx context.Context, code string) {
	if err := a.codes.Release(ctx, code); err != nil {
		log.Warn().Err(err).Str("code", code).Msg("Failed to release join code")
	}
}
