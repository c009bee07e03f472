package services

import (
	"errors"
	"time"

	"bitrush/models"

	log "github.com/sirupsen/logrus"
)

var ErrNotInLobby = errors.New("game can only be started from the lobby")

// Synchronized start: a fixed server-paced countdown so every client's
// UI renders the "get ready" sequence in lockstep regardless of network
// jitter. Not a client readiness vote.
const (
	defaultSyncRounds    = 3
	defaultRoundDelay    = 800 * time.Millisecond
	defaultSettleDelay   = 300 * time.Millisecond
	defaultQuestionCount = 100
)

// StartGame transitions lobby -> syncing and launches the countdown.
// Only the host may trigger it.
func (s *GameService) StartGame(code, participantID string, hub *Hub) error {
	lr := s.store.Get(code)
	if lr == nil {
		return ErrRoomNotFound
	}

	lr.Mu.Lock()
	if participantID != lr.Room.HostParticipantID {
		lr.Mu.Unlock()
		return ErrNotHost
	}
	if lr.Room.Status != models.StatusLobby {
		lr.Mu.Unlock()
		return ErrNotInLobby
	}

	lr.Room.Status = models.StatusSyncing
	lr.Room.SyncRound = 1
	lr.Touch()
	s.persistRoomStatus(lr.Room)
	storeRoomSnapshot(s.redis, lr)
	state := buildRoomState(lr)
	lr.Mu.Unlock()

	if hub != nil {
		hub.BroadcastToRoom(code, Message{Type: MsgRoomState, Payload: state}, "")
	}

	go s.runSyncCountdown(code, hub)
	return nil
}

// BeginSync is the tournament path: same transition without a host check,
// since the start authority there is the tournament creator.
func (s *GameService) BeginSync(code string, hub *Hub) {
	lr := s.store.Get(code)
	if lr == nil {
		return
	}

	lr.Mu.Lock()
	if lr.Room.Status != models.StatusLobby {
		lr.Mu.Unlock()
		return
	}
	lr.Room.Status = models.StatusSyncing
	lr.Room.SyncRound = 1
	lr.Touch()
	s.persistRoomStatus(lr.Room)
	storeRoomSnapshot(s.redis, lr)
	state := buildRoomState(lr)
	lr.Mu.Unlock()

	if hub != nil {
		hub.BroadcastToRoom(code, Message{Type: MsgRoomState, Payload: state}, "")
	}

	go s.runSyncCountdown(code, hub)
}

// runSyncCountdown paces the sync rounds, re-validating the room is still
// syncing at every wakeup. If something else moved the room on (reap,
// host end, everyone left) the countdown aborts without a trace.
func (s *GameService) runSyncCountdown(code string, hub *Hub) {
	for round := 1; round <= s.syncRounds; round++ {
		time.Sleep(s.syncRoundDelay)

		lr := s.store.Get(code)
		if lr == nil {
			return
		}
		lr.Mu.Lock()
		if lr.Room.Status != models.StatusSyncing {
			lr.Mu.Unlock()
			return
		}
		lr.Room.SyncRound = round
		lr.Touch()
		lr.Mu.Unlock()

		if hub != nil {
			hub.BroadcastToRoom(code, Message{
				Type:    MsgSyncRoundComplete,
				Payload: SyncRoundPayload{Round: round, Done: round == s.syncRounds},
			}, "")
		}
	}

	time.Sleep(s.syncSettleDelay)
	s.beginPlay(code, hub)
}

// beginPlay generates the shared question sequence, flips the room to
// playing, and pushes the first question to every connected player.
func (s *GameService) beginPlay(code string, hub *Hub) {
	lr := s.store.Get(code)
	if lr == nil {
		return
	}

	lr.Mu.Lock()
	if lr.Room.Status != models.StatusSyncing {
		// cancelled during the countdown
		lr.Mu.Unlock()
		return
	}

	room := lr.Room
	var questions []models.Question
	if room.QuestionSeed != 0 {
		questions = GenerateSeededSequence(room.ConversionType, room.Mode, s.questionCount, room.QuestionSeed)
	} else {
		questions = GenerateSequence(room.ConversionType, room.Mode, s.questionCount)
	}
	for i := range questions {
		questions[i].RoomID = room.ID
	}
	lr.Questions = questions

	now := time.Now()
	room.Status = models.StatusPlaying
	room.StartedAt = &now
	lr.Touch()

	if s.db != nil {
		if err := s.db.Model(&models.Room{}).Where("id = ?", room.ID).
			Updates(map[string]any{"status": room.Status, "started_at": now}).Error; err != nil {
			log.Errorf("failed to persist start of room %s: %v", code, err)
		}
		if len(questions) > 0 {
			if err := s.db.Create(&lr.Questions).Error; err != nil {
				log.Errorf("failed to persist questions for room %s: %v", code, err)
			}
		}
	}
	storeRoomSnapshot(s.redis, lr)

	players := lr.ActivePlayers()
	first := QuestionPayload{}
	hasQuestions := len(lr.Questions) > 0
	if hasQuestions {
		first = QuestionPayload{Index: 0, Value: lr.Questions[0].Value}
	}
	lr.Mu.Unlock()

	log.Printf("room %s started with %d questions, %d players", code, len(questions), len(players))

	if hub == nil {
		return
	}
	hub.BroadcastToRoom(code, Message{Type: MsgGameStarted}, "")
	if hasQuestions {
		for _, p := range players {
			if hub.IsConnected(code, p.ID) {
				hub.SendTo(code, p.ID, Message{Type: MsgQuestion, Payload: first})
			}
		}
	}
}

func (s *GameService) persistRoomStatus(room *models.Room) {
	if s.db == nil {
		return
	}
	if err := s.db.Model(&models.Room{}).Where("id = ?", room.ID).
		Updates(map[string]any{"status": room.Status, "sync_round": room.SyncRound}).Error; err != nil {
		log.Errorf("failed to persist status of room %s: %v", room.Code, err)
	}
}
