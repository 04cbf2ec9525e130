package changefeed

import (
	"context"

	"github.com/google/uuid"

	"github.com/WillDent/guess-that-tune/go/internal/models"
	"github.com/WillDent/guess-that-tune/go/internal/realtime"
)

// Notification is the payload of a room_changes NOTIFY.
type Notification struct {
	Table  string              `json:"table"`
	Type   realtime.ChangeType `json:"type"`
	ID     uuid.UUID           `json:"id"`
	GameID uuid.UUID           `json:"game_id"`
}

// RowFetcher loads the current version of a changed row.
type RowFetcher interface {
	GetGameRecord(ctx context.Context, id uuid.UUID) (*models.Game, error)
	GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error)
}

// Publisher is an interface that defines our publisher.
type Publisher interface {
	Publish(ctx context.Context, event realtime.ChangeEvent) error
}

// CodeReleaser frees the join code of a game that has left the lobby.
type CodeReleaser interface {
	ReleaseGame(ctx context.Context, gameID uuid.UUID) error
}
