package room

import (
	"context"

	"github.com/google/uuid"

	"github.com/WillDent/guess-that-tune/go/internal/models"
)

// Store is the durable state the coordinator reads and writes. Implementations
// enforce the viewer's access rules and return store.ErrNotFound or
// store.ErrAccessDenied.
type Store interface {
	GetGame(ctx context.Context, gameID uuid.UUID) (*models.Game, error)
	ListParticipants(ctx context.Context, gameID uuid.UUID) ([]models.Participant, error)
	UpdateGameStatus(ctx context.Context, gameID uuid.UUID, update models.GameStatusUpdate) (*models.Game, error)
	// UpdateParticipantProgress appends one answer and adds points atomically,
	// returning the updated row.
	UpdateParticipantProgress(ctx context.Context, participantID uuid.UUID, answer models.AnswerRecord, points int) (*models.Participant, error)
}
