package gateway

import (
	"sort"

	"github.com/google/uuid"

	"github.com/WillDent/guess-that-tune/go/internal/models"
	"github.com/WillDent/guess-that-tune/go/internal/room"
)

// ClientFrameType names a command sent by the browser.
type ClientFrameType string

const (
	FrameSetReady     ClientFrameType = "set_ready"
	FrameStartGame    ClientFrameType = "start_game"
	FrameSubmitAnswer ClientFrameType = "submit_answer"
	FrameNextQuestion ClientFrameType = "next_question"
	FrameEndGame      ClientFrameType = "end_game"
)

// ServerFrameType names a message pushed to the browser.
type ServerFrameType string

const (
	FrameState  ServerFrameType = "state"
	FrameNotice ServerFrameType = "notice"
	FrameError  ServerFrameType = "error"
)

type ClientFrame struct {
	Type     ClientFrameType `json:"type"`
	Ready    *bool           `json:"ready,omitempty"`
	OptionID string          `json:"option_id,omitempty"`
}

type ServerFrame struct {
	Type   ServerFrameType `json:"type"`
	State  *StateView      `json:"state,omitempty"`
	Notice *room.Notice    `json:"notice,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StateView is the room as a client may see it. Nothing in it ties an option
// to the correct answer while a question is open: options carry no preview
// clip, and other players' records for the open question are withheld.
type StateView struct {
	GameID          uuid.UUID         `json:"game_id"`
	Status          models.GameStatus `json:"status"`
	GameState       room.GameState    `json:"game_state"`
	IsHost          bool              `json:"is_host"`
	ViewerID        uuid.UUID         `json:"viewer_id"`
	TimeLimit       int               `json:"time_limit"`
	TimeRemaining   int               `json:"time_remaining"`
	CurrentQuestion int               `json:"current_question"`
	QuestionCount   int               `json:"question_count"`
	Question        *QuestionView     `json:"question,omitempty"`
	Players         []room.Player     `json:"players"`
	Leaderboard     []room.Player     `json:"leaderboard,omitempty"`
}

type QuestionView struct {
	Index      int          `json:"index"`
	PreviewURL string       `json:"preview_url,omitempty"`
	Options    []OptionView `json:"options"`
}

// OptionView is an answer choice without its preview clip.
type OptionView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Artist     string `json:"artist"`
	ArtworkURL string `json:"artwork_url,omitempty"`
}

func optionViews(q models.Question) []OptionView {
	opts := make([]OptionView, 0, len(q.Detractors)+1)
	for _, o := range q.Options() {
		opts = append(opts, OptionView{ID: o.ID, Name: o.Name, Artist: o.Artist, ArtworkURL: o.ArtworkURL})
	}
	sort.Slice(opts, func(i, j int) bool { return opts[i].ID < opts[j].ID })
	return opts
}

// withholdOpenAnswers drops other players' records for the open question.
func withholdOpenAnswers(players []room.Player, viewerID uuid.UUID, index int) []room.Player {
	out := make([]room.Player, len(players))
	for i, p := range players {
		out[i] = p
		if p.ID == viewerID {
			continue
		}
		answers := make([]models.AnswerRecord, 0, len(p.Answers))
		for _, a := range p.Answers {
			if a.QuestionIndex != index {
				answers = append(answers, a)
			}
		}
		out[i].Answers = answers
	}
	return out
}

// NewStateView projects a room state for the wire.
func NewStateView(s room.RoomState) *StateView {
	v := &StateView{
		GameState:       s.GameState,
		IsHost:          s.IsHost,
		ViewerID:        s.ViewerID,
		TimeRemaining:   s.TimeRemaining,
		CurrentQuestion: s.CurrentQuestion,
		Players:         s.Players,
	}
	if v.Players == nil {
		v.Players = []room.Player{}
	}
	if s.Game == nil {
		return v
	}
	v.GameID = s.Game.ID
	v.Status = s.Game.Status
	v.TimeLimit = s.Game.TimeLimit
	v.QuestionCount = len(s.Game.Questions)

	switch s.GameState {
	case room.GameStatePlaying:
		if q, ok := s.Question(); ok {
			v.Question = &QuestionView{
				Index:      s.CurrentQuestion,
				PreviewURL: q.CorrectSong.PreviewURL,
				Options:    optionViews(q),
			}
		}
		viewerID := uuid.Nil
		if me, ok := s.Viewer(); ok {
			viewerID = me.ID
		}
		v.Players = withholdOpenAnswers(v.Players, viewerID, s.CurrentQuestion)
	case room.GameStateFinished:
		v.Leaderboard = s.Leaderboard()
	}
	return v
}
