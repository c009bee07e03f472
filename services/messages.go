package services

import (
	"encoding/json"
	"time"
)

// Message is the envelope for every server -> client websocket message.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Server -> client message kinds.
const (
	MsgRoomState         = "room_state"
	MsgSyncRoundComplete = "sync_round_complete"
	MsgGameStarted       = "game_started"
	MsgQuestion          = "question"
	MsgAnswerResult      = "answer_result"
	MsgLeaderboard       = "leaderboard"
	MsgChatMessage       = "chat_message"
	MsgGameEnded         = "game_ended"
	MsgBracketUpdate     = "bracket_update"
)

// Client -> server message kinds. Anything else is silently dropped.
const (
	MsgAnswerSubmit   = "answer_submit"
	MsgChat           = "chat"
	MsgEndGameRequest = "end_game_request"
)

// ClientMessage is the envelope received from clients. The payload stays
// raw until the type switch picks the concrete shape to decode into.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type AnswerSubmitPayload struct {
	Answer string `json:"answer"`
}

type ChatSubmitPayload struct {
	Text string `json:"text"`
}

type RoomStatePayload struct {
	Code            string             `json:"code"`
	Status          string             `json:"status"`
	SyncRound       int                `json:"sync_round"`
	Mode            string             `json:"mode"`
	ConversionType  string             `json:"conversion_type"`
	GoalType        string             `json:"goal_type"`
	GoalValue       int                `json:"goal_value"`
	Lives           int                `json:"lives,omitempty"`
	MaxPlayers      int                `json:"max_players"`
	ShowLeaderboard bool               `json:"show_leaderboard"`
	Participants    []ParticipantState `json:"participants"`
}

type ParticipantState struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Score       int    `json:"score"`
	Lives       int    `json:"lives"`
	Streak      int    `json:"streak"`
	IsHost      bool   `json:"is_host"`
	IsGuest     bool   `json:"is_guest"`
}

type SyncRoundPayload struct {
	Round int  `json:"round"`
	Done  bool `json:"done"`
}

type QuestionPayload struct {
	Index int    `json:"index"`
	Value string `json:"value"`
}

type AnswerResultPayload struct {
	Correct bool `json:"correct"`
	Index   int  `json:"index"`
}

type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
	Lives       int    `json:"lives"`
	Streak      int    `json:"streak"`
	IsGuest     bool   `json:"is_guest"`
}

type ChatMessagePayload struct {
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	Text          string    `json:"text"`
	SentAt        time.Time `json:"sent_at"`
}

type GameEndedPayload struct {
	Reason      string             `json:"reason"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

type BracketUpdatePayload struct {
	BracketIndex int    `json:"bracket_index"`
	RoomCode     string `json:"room_code"`
	Status       string `json:"status"`
}

// buildRoomState snapshots a live room into a room_state payload.
// Caller must hold the room lock.
func buildRoomState(lr *LiveRoom) RoomStatePayload {
	room := lr.Room
	payload := RoomStatePayload{
		Code:            room.Code,
		Status:          room.Status,
		SyncRound:       room.SyncRound,
		Mode:            room.Mode,
		ConversionType:  room.ConversionType,
		GoalType:        room.GoalType,
		GoalValue:       room.GoalValue,
		Lives:           room.Lives,
		MaxPlayers:      room.MaxPlayers,
		ShowLeaderboard: room.ShowLeaderboard,
	}
	for _, p := range lr.ActiveParticipants() {
		payload.Participants = append(payload.Participants, ParticipantState{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Role:        p.Role,
			Score:       p.Score,
			Lives:       p.Lives,
			Streak:      p.Streak,
			IsHost:      p.ID == room.HostParticipantID,
			IsGuest:     p.IsGuest(),
		})
	}
	return payload
}
