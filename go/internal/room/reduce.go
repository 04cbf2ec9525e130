package room

import (
	"fmt"

	"github.com/WillDent/guess-that-tune/go/internal/models"
	"github.com/WillDent/guess-that-tune/go/internal/realtime"
)

// Reduce applies one event to a state and returns the next state together
// with the side effects the caller must perform. It never mutates s.
func Reduce(s RoomState, ev Event) (RoomState, Effects) {
	next := s.clone()
	var fx Effects

	switch e := ev.(type) {
	case Loaded:
		g := e.Game
		next.Game = &g
		next.Players = playersFrom(e.Participants)
		next.GameState = GameStateFor(g.Status)
		next.IsHost = g.IsHost(next.ViewerID)
		next.CurrentQuestion = 0
		next.TimeRemaining = g.TimeLimit
		next.decorate()
		if next.GameState == GameStatePlaying {
			next.CurrentQuestion = resumeIndex(e.Participants, len(g.Questions))
			fx.StartTimer = true
		}

	case ParticipantsReloaded:
		if !next.Loaded() {
			return s, fx
		}
		next.Players = playersFrom(e.Participants)
		next.decorate()

	case PresenceSynced:
		next.online = make(map[string]realtime.Presence, len(e.State))
		for k, v := range e.State {
			next.online[k] = v
		}
		next.decorate()

	case PresenceJoined:
		_, already := next.online[e.Key]
		next.online[e.Key] = e.Presence
		next.decorate()
		if next.Loaded() && !already && e.Key != next.ViewerKey() {
			fx.Notices = append(fx.Notices, Notice{
				Kind:    NoticeInfo,
				Message: fmt.Sprintf("%s joined the game", next.playerName(e.Key)),
			})
		}

	case PresenceLeft:
		if _, ok := next.online[e.Key]; !ok {
			return s, fx
		}
		name := next.playerName(e.Key)
		delete(next.online, e.Key)
		delete(next.ready, e.Key)
		next.decorate()
		if !next.Loaded() || e.Key == next.ViewerKey() {
			break
		}
		fx.Notices = append(fx.Notices, Notice{
			Kind:    NoticeInfo,
			Message: fmt.Sprintf("%s left the game", name),
		})
		if e.Key == next.HostKey() && next.GameState != GameStateFinished {
			fx.Notices = append(fx.Notices, Notice{
				Kind:    NoticeHostLeft,
				Message: "The host disconnected. Waiting for the host to return.",
			})
		}

	case ParticipantUpdated:
		if !next.Loaded() {
			return s, fx
		}
		idx := next.playerIndex(e.Participant)
		if idx < 0 {
			return s, fx
		}
		p := &next.Players[idx]
		if len(e.Participant.Answers) < len(p.Answers) {
			// Answers only grow; a shorter list is an older row.
			return s, fx
		}
		p.Score = e.Participant.Score
		p.Answers = append([]models.AnswerRecord(nil), e.Participant.Answers...)
		if e.Participant.DisplayName != "" {
			p.DisplayName = e.Participant.DisplayName
		}

	case ParticipantDeleted:
		if !next.Loaded() {
			return s, fx
		}
		players := next.Players[:0]
		for _, p := range next.Players {
			if p.ID != e.ID {
				players = append(players, p)
			}
		}
		next.Players = players

	case GameUpdated:
		if !next.Loaded() {
			return s, fx
		}
		prev := next.GameState
		g := e.Game
		if len(g.Questions) == 0 {
			g.Questions = next.Game.Questions
		}
		next.Game = &g
		next.GameState = GameStateFor(g.Status)
		next.IsHost = g.IsHost(next.ViewerID)
		next.decorate()
		switch {
		case next.GameState == GameStatePlaying && prev != GameStatePlaying:
			next.CurrentQuestion = 0
			next.TimeRemaining = g.TimeLimit
			fx.StartTimer = true
		case next.GameState == GameStateFinished && prev != GameStateFinished:
			fx.StopTimer = true
		}

	case PlayerReady:
		if e.Ready {
			next.ready[e.Key] = true
		} else {
			delete(next.ready, e.Key)
		}
		next.decorate()

	case QuestionChanged:
		if !next.Loaded() || e.Index < 0 || e.Index >= len(next.Game.Questions) {
			return s, fx
		}
		if next.GameState != GameStatePlaying {
			return s, fx
		}
		next.CurrentQuestion = e.Index
		next.TimeRemaining = next.Game.TimeLimit
		fx.StartTimer = true

	case TimeSynced:
		if !next.Loaded() {
			return s, fx
		}
		next.TimeRemaining = max(e.TimeRemaining, 0)

	case GameEnded:
		if !next.Loaded() {
			return s, fx
		}
		next.GameState = GameStateFinished
		fx.StopTimer = true

	case StateSynced:
		if !next.Loaded() || next.GameState != GameStatePlaying ||
			e.Index < next.CurrentQuestion || e.Index >= len(next.Game.Questions) {
			return s, fx
		}
		remaining := min(max(e.TimeRemaining, 0), next.Game.TimeLimit)
		if e.Index == next.CurrentQuestion {
			next.TimeRemaining = min(next.TimeRemaining, remaining)
			break
		}
		next.CurrentQuestion = e.Index
		next.TimeRemaining = remaining
		fx.StartTimer = true

	case TimerTicked:
		if next.GameState != GameStatePlaying || next.TimeRemaining <= 0 {
			return s, fx
		}
		next.TimeRemaining--

	default:
		return s, fx
	}

	return next, fx
}

// resumeIndex estimates the question a running game is on from the highest
// answered index. Peers correct it through state_sync.
func resumeIndex(participants []models.Participant, questions int) int {
	idx := 0
	for _, p := range participants {
		for _, a := range p.Answers {
			idx = max(idx, a.QuestionIndex)
		}
	}
	return min(idx, max(questions-1, 0))
}

func playersFrom(participants []models.Participant) []Player {
	players := make([]Player, 0, len(participants))
	for _, p := range participants {
		p.Answers = append([]models.AnswerRecord(nil), p.Answers...)
		players = append(players, Player{Participant: p})
	}
	return players
}

func (s RoomState) playerIndex(p models.Participant) int {
	for i := range s.Players {
		if s.Players[i].ID == p.ID {
			return i
		}
	}
	return -1
}
