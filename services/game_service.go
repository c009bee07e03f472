package services

import (
	"sort"
	"time"

	"bitrush/models"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// End reasons reported with game_ended.
const (
	EndReasonFirstTo   = "first_to"
	EndReasonTimed     = "timed"
	EndReasonSurvival  = "survival"
	EndReasonStreak    = "streak"
	EndReasonHostEnded = "host_ended"
	EndReasonInactive  = "inactive"
)

type GameService struct {
	db          *gorm.DB
	redis       *redis.Client
	store       *RoomStore
	tournaments *TournamentStore

	syncRounds      int
	syncRoundDelay  time.Duration
	syncSettleDelay time.Duration
	questionCount   int
}

func NewGameService(db *gorm.DB, redisClient *redis.Client, store *RoomStore, tournaments *TournamentStore) *GameService {
	return &GameService{
		db:              db,
		redis:           redisClient,
		store:           store,
		tournaments:     tournaments,
		syncRounds:      defaultSyncRounds,
		syncRoundDelay:  defaultRoundDelay,
		syncSettleDelay: defaultSettleDelay,
		questionCount:   defaultQuestionCount,
	}
}

// SubmitAnswer validates one answer for one participant. Everything that
// makes the submission stale under normal network races (room not
// playing, spectator sender, exhausted sequence) is a silent no-op.
func (s *GameService) SubmitAnswer(code, participantID, answer string, hub *Hub) {
	lr := s.store.Get(code)
	if lr == nil {
		return
	}

	lr.Mu.Lock()
	room := lr.Room
	if room.Status != models.StatusPlaying {
		lr.Mu.Unlock()
		return
	}
	p := lr.Participants[participantID]
	if p == nil || !p.Active() || p.Role != models.RolePlayer {
		lr.Mu.Unlock()
		return
	}
	if p.QuestionIndex >= len(lr.Questions) {
		lr.Mu.Unlock()
		return
	}

	question := lr.Questions[p.QuestionIndex]
	normalized := NormalizeAnswer(room.ConversionType, room.Mode, answer)
	correct := normalized == question.Answer

	result := AnswerResultPayload{Correct: correct, Index: p.QuestionIndex}
	var next *QuestionPayload

	if correct {
		p.Score++
		p.Streak++
		p.QuestionIndex++
		if p.QuestionIndex < len(lr.Questions) {
			next = &QuestionPayload{Index: p.QuestionIndex, Value: lr.Questions[p.QuestionIndex].Value}
		}
	} else {
		p.Streak = 0
		if room.Lives > 0 {
			// Lives go negative on purpose; death checks use <= 0.
			p.Lives--
		}
	}

	lr.Touch()
	storeRoomSnapshot(s.redis, lr)

	leaderboard := leaderboardLocked(lr)
	showBoard := room.ShowLeaderboard
	reason := s.evaluateEndLocked(lr, p)

	var ended *GameEndedPayload
	if reason != "" {
		ended = s.endLocked(lr, reason)
	}
	lr.Mu.Unlock()

	if hub != nil {
		hub.SendTo(code, participantID, Message{Type: MsgAnswerResult, Payload: result})
		if ended == nil && next != nil {
			hub.SendTo(code, participantID, Message{Type: MsgQuestion, Payload: *next})
		}
		if showBoard || ended != nil {
			hub.BroadcastToRoom(code, Message{Type: MsgLeaderboard, Payload: leaderboard}, "")
		}
	}
	if ended != nil {
		s.finishRoom(lr, *ended, hub)
	}
}

// evaluateEndLocked checks the room's win condition after an answer by p.
// Returns the end reason or "". Caller holds Mu.
func (s *GameService) evaluateEndLocked(lr *LiveRoom, p *models.Participant) string {
	room := lr.Room
	switch room.GoalType {
	case models.GoalFirstTo:
		if p.Score >= room.GoalValue {
			return EndReasonFirstTo
		}
	case models.GoalStreak:
		if p.Streak >= room.GoalValue {
			return EndReasonStreak
		}
	case models.GoalTimed:
		// Checked lazily on answer events; the reap sweep is the
		// fallback for rooms that go quiet past the limit.
		if room.StartedAt != nil && time.Since(*room.StartedAt) > time.Duration(room.GoalValue)*time.Second {
			return EndReasonTimed
		}
	case models.GoalSurvival:
		alive := 0
		dead := 0
		for _, player := range lr.ActivePlayers() {
			if player.Lives > 0 {
				alive++
			} else {
				dead++
			}
		}
		if dead > 0 && alive <= 1 {
			return EndReasonSurvival
		}
	}
	return ""
}

// endLocked transitions the room to ended and persists the result.
// Caller holds Mu and is responsible for finishRoom afterwards.
func (s *GameService) endLocked(lr *LiveRoom, reason string) *GameEndedPayload {
	room := lr.Room
	now := time.Now()
	room.Status = models.StatusEnded
	room.EndedAt = &now
	lr.Touch()

	if s.db != nil {
		if err := s.db.Model(&models.Room{}).Where("id = ?", room.ID).
			Updates(map[string]any{"status": models.StatusEnded, "ended_at": now}).Error; err != nil {
			log.Errorf("failed to persist end of room %s: %v", room.Code, err)
		}
		for _, p := range lr.Participants {
			if err := s.db.Model(&models.Participant{}).Where("id = ?", p.ID).
				Updates(map[string]any{
					"score":          p.Score,
					"question_index": p.QuestionIndex,
					"lives":          p.Lives,
					"streak":         p.Streak,
					"left_at":        p.LeftAt,
				}).Error; err != nil {
				log.Errorf("failed to persist participant %s: %v", p.ID, err)
			}
		}
	}

	return &GameEndedPayload{Reason: reason, Leaderboard: leaderboardLocked(lr)}
}

// finishRoom broadcasts the final result, evicts the room from the live
// store, and tells the tournament layer if this was a bracket.
func (s *GameService) finishRoom(lr *LiveRoom, ended GameEndedPayload, hub *Hub) {
	lr.Mu.Lock()
	code := lr.Room.Code
	tournamentCode := lr.Room.TournamentCode
	bracketIndex := lr.Room.BracketIndex
	lr.Mu.Unlock()

	log.Printf("room %s ended (%s)", code, ended.Reason)

	if hub != nil {
		hub.BroadcastToRoom(code, Message{Type: MsgGameEnded, Payload: ended}, "")
	}
	s.store.Delete(code)
	clearRoomSnapshot(s.redis, code)

	if tournamentCode != "" {
		notifyBracketUpdate(hub, tournamentCode, bracketIndex, code, models.StatusEnded)
		s.maybeFinishTournament(tournamentCode)
	}
}

// EndRoom force-ends a room regardless of its current phase. Used by the
// reaper and the host's end_game_request. Already-ended rooms are just
// evicted.
func (s *GameService) EndRoom(code, reason string, hub *Hub) {
	lr := s.store.Get(code)
	if lr == nil {
		return
	}

	lr.Mu.Lock()
	if lr.Room.Status == models.StatusEnded {
		lr.Mu.Unlock()
		s.store.Delete(code)
		return
	}
	ended := s.endLocked(lr, reason)
	lr.Mu.Unlock()

	s.finishRoom(lr, *ended, hub)
}

// RequestEndGame handles the host-only end_game_request channel message.
// Non-host senders are ignored.
func (s *GameService) RequestEndGame(code, participantID string, hub *Hub) {
	lr := s.store.Get(code)
	if lr == nil {
		return
	}

	lr.Mu.Lock()
	isHost := participantID == lr.Room.HostParticipantID
	lr.Mu.Unlock()
	if !isHost {
		return
	}

	s.EndRoom(code, EndReasonHostEnded, hub)
}

// Chat fans a chat message out to the whole room.
func (s *GameService) Chat(code, participantID, text string, hub *Hub) {
	lr := s.store.Get(code)
	if lr == nil {
		return
	}

	lr.Mu.Lock()
	p := lr.Participants[participantID]
	if p == nil || !p.Active() {
		lr.Mu.Unlock()
		return
	}
	name := p.DisplayName
	lr.Touch()
	lr.Mu.Unlock()

	if hub != nil {
		hub.BroadcastToRoom(code, Message{Type: MsgChatMessage, Payload: ChatMessagePayload{
			ParticipantID: participantID,
			DisplayName:   name,
			Text:          text,
			SentAt:        time.Now(),
		}}, "")
	}
}

// HandleDisconnect marks a participant as left when their connection
// drops. The historical row is kept for scoring and audit.
func (s *GameService) HandleDisconnect(code, participantID string, hub *Hub) {
	lr := s.store.Get(code)
	if lr == nil {
		return
	}

	lr.Mu.Lock()
	p := lr.Participants[participantID]
	if p == nil || !p.Active() {
		lr.Mu.Unlock()
		return
	}
	now := time.Now()
	p.LeftAt = &now
	lr.Touch()
	storeRoomSnapshot(s.redis, lr)
	state := buildRoomState(lr)
	lr.Mu.Unlock()

	if s.db != nil {
		if err := s.db.Model(&models.Participant{}).Where("id = ?", participantID).
			Update("left_at", now).Error; err != nil {
			log.Errorf("failed to persist leave of participant %s: %v", participantID, err)
		}
	}
	if hub != nil {
		hub.BroadcastToRoom(code, Message{Type: MsgRoomState, Payload: state}, "")
	}
}

// leaderboardLocked ranks players (never spectators) by score descending.
// Departed players keep their slot for the historical record. Caller
// holds Mu.
func leaderboardLocked(lr *LiveRoom) []LeaderboardEntry {
	players := make([]*models.Participant, 0, len(lr.order))
	for _, id := range lr.order {
		if p := lr.Participants[id]; p != nil && p.Role == models.RolePlayer {
			players = append(players, p)
		}
	}
	sort.SliceStable(players, func(i, j int) bool { return players[i].Score > players[j].Score })

	entries := make([]LeaderboardEntry, len(players))
	for i, p := range players {
		entries[i] = LeaderboardEntry{
			Rank:        i + 1,
			DisplayName: p.DisplayName,
			Score:       p.Score,
			Lives:       p.Lives,
			Streak:      p.Streak,
			IsGuest:     p.IsGuest(),
		}
	}
	return entries
}
