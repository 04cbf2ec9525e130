package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/WillDent/guess-that-tune/go/internal/models"
)

// ViewerStore scopes repository access to one viewer. The viewer id is a user
// id, or a participant id for guests.
//
// Rules:
//   - games and their participants are readable while pending, and afterwards
//     only by the host and members
//   - status changes are host-only
//   - progress writes are owner-only
//   - a participant row may be deleted by its owner or the host
type ViewerStore struct {
	repo     *Repository
	viewerID uuid.UUID
}

// ViewerID returns the identity the store is scoped to.
func (v *ViewerStore) ViewerID() uuid.UUID {
	return v.viewerID
}

func (v *ViewerStore) canRead(ctx context.Context, g *models.Game) error {
	if g.Status == models.GameStatusPending || g.IsHost(v.viewerID) {
		return nil
	}
	ok, err := v.repo.IsMember(ctx, g.ID, v.viewerID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("game %s: %w", g.ID, ErrAccessDenied)
	}
	return nil
}

func (v *ViewerStore) GetGame(ctx context.Context, gameID uuid.UUID) (*models.Game, error) {
	g, err := v.repo.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if err := v.canRead(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (v *ViewerStore) ListParticipants(ctx context.Context, gameID uuid.UUID) ([]models.Participant, error) {
	g, err := v.repo.GetGameRecord(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if err := v.canRead(ctx, g); err != nil {
		return nil, err
	}
	return v.repo.ListParticipants(ctx, gameID)
}

func (v *ViewerStore) UpdateGameStatus(ctx context.Context, gameID uuid.UUID, update models.GameStatusUpdate) (*models.Game, error) {
	g, err := v.repo.GetGameRecord(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if !g.IsHost(v.viewerID) {
		return nil, fmt.Errorf("update status of game %s: %w", gameID, ErrAccessDenied)
	}
	return v.repo.UpdateGameStatus(ctx, gameID, update)
}

func (v *ViewerStore) UpdateParticipantProgress(ctx context.Context, participantID uuid.UUID, answer models.AnswerRecord, points int) (*models.Participant, error) {
	p, err := v.repo.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if !v.owns(p) {
		return nil, fmt.Errorf("update participant %s: %w", participantID, ErrAccessDenied)
	}
	return v.repo.UpdateParticipantProgress(ctx, participantID, answer, points)
}

// DeleteParticipant removes the viewer's own row, or any row of a game the
// viewer hosts.
func (v *ViewerStore) DeleteParticipant(ctx context.Context, participantID uuid.UUID) error {
	p, err := v.repo.GetParticipant(ctx, participantID)
	if err != nil {
		return err
	}
	if !v.owns(p) {
		g, err := v.repo.GetGameRecord(ctx, p.GameID)
		if err != nil {
			return err
		}
		if !g.IsHost(v.viewerID) {
			return fmt.Errorf("delete participant %s: %w", participantID, ErrAccessDenied)
		}
	}
	return v.repo.DeleteParticipant(ctx, participantID)
}

func (v *ViewerStore) owns(p *models.Participant) bool {
	return p.BelongsTo(v.viewerID) || (p.UserID == nil && p.ID == v.viewerID)
}
