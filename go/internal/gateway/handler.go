package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/WillDent/guess-that-tune/go/internal/auth"
	"github.com/WillDent/guess-that-tune/go/internal/realtime"
	"github.com/WillDent/guess-that-tune/go/internal/room"
	"github.com/WillDent/guess-that-tune/go/internal/store"
)

// StoreFunc returns the store scoped to one viewer.
type StoreFunc func(viewerID uuid.UUID) room.Store

// Handler serves the room websocket and the one-shot state endpoint.
type Handler struct {
	manager  *ConnectionManager
	tokens   *auth.Tokens
	stores   StoreFunc
	channels realtime.ChannelFactory
	roomOpts []room.Option
}

func NewHandler(manager *ConnectionManager, tokens *auth.Tokens, stores StoreFunc, channels realtime.ChannelFactory, roomOpts ...room.Option) *Handler {
	return &Handler{
		manager:  manager,
		tokens:   tokens,
		stores:   stores,
		channels: channels,
		roomOpts: roomOpts,
	}
}

// RegisterRoutes registers gateway routes with an HTTP mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/games/{id}", h.HandleRoom)
	mux.HandleFunc("GET /api/games/{id}/state", h.HandleGetState)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}

// HandleRoom handles GET /ws/games/{id}. The room is loaded before the
// upgrade so a missing game is a plain 404.
func (h *Handler) HandleRoom(w http.ResponseWriter, r *http.Request) {
	gameID, viewer, ok := h.authorize(w, r)
	if !ok {
		return
	}

	rc := room.NewCoordinator(h.stores(viewer.ID), h.channels, h.roomOpts...)
	if err := rc.Initialize(r.Context(), gameID, viewer.ID); err != nil {
		rc.Close()
		writeRoomError(w, gameID, err)
		return
	}

	if err := h.manager.UpgradeConnection(w, r, viewer, gameID, rc); err != nil {
		log.Error().
			Err(err).
			Str("game_id", gameID.String()).
			Str("viewer_id", viewer.ID.String()).
			Msg("failed to upgrade WebSocket connection")
		rc.Close()
	}
}

// HandleGetState handles GET /api/games/{id}/state with a snapshot built
// straight from the store, without joining the realtime channel.
func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	gameID, viewer, ok := h.authorize(w, r)
	if !ok {
		return
	}

	st := h.stores(viewer.ID)
	game, err := st.GetGame(r.Context(), gameID)
	if err != nil {
		writeRoomError(w, gameID, err)
		return
	}
	participants, err := st.ListParticipants(r.Context(), gameID)
	if err != nil {
		writeRoomError(w, gameID, err)
		return
	}

	state, _ := room.Reduce(room.NewRoomState(viewer.ID), room.Loaded{Game: *game, Participants: participants})
	writeJSON(w, http.StatusOK, NewStateView(state))
}

// HandleConnectionStats returns statistics about active connections
func (h *Handler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.GetConnectionStats())
}

// HandleHealth is the liveness probe.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (uuid.UUID, auth.Identity, bool) {
	gameID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid game id format", http.StatusBadRequest)
		return uuid.Nil, auth.Identity{}, false
	}
	viewer, err := h.tokens.FromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return uuid.Nil, auth.Identity{}, false
	}
	return gameID, viewer, true
}

func writeRoomError(w http.ResponseWriter, gameID uuid.UUID, err error) {
	switch {
	case errors.Is(err, room.ErrNotFound), errors.Is(err, store.ErrNotFound):
		http.Error(w, "game not found", http.StatusNotFound)
	case errors.Is(err, store.ErrAccessDenied):
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		log.Error().Err(err).Str("game_id", gameID.String()).Msg("failed to load room")
		http.Error(w, "failed to load game", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
