package services

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"bitrush/models"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrTournamentNotFound    = errors.New("tournament not found")
	ErrTournamentNotJoinable = errors.New("tournament is not joinable")
	ErrTournamentFull        = errors.New("tournament is full")
	ErrTournamentStarted     = errors.New("tournament already started")
)

// LiveTournament is the in-memory aggregate: the tournament row plus its
// lazily created brackets. Bracket rooms themselves live in the RoomStore.
type LiveTournament struct {
	Mu         sync.Mutex
	Tournament *models.Tournament
	Brackets   []*models.Bracket
}

type TournamentStore struct {
	mu          sync.RWMutex
	tournaments map[string]*LiveTournament
}

func NewTournamentStore() *TournamentStore {
	return &TournamentStore{tournaments: make(map[string]*LiveTournament)}
}

func (s *TournamentStore) Put(lt *LiveTournament) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tournaments[lt.Tournament.Code] = lt
}

func (s *TournamentStore) Get(code string) *LiveTournament {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tournaments[code]
}

func (s *TournamentStore) List() []*LiveTournament {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*LiveTournament, 0, len(s.tournaments))
	for _, lt := range s.tournaments {
		out = append(out, lt)
	}
	return out
}

type TournamentService struct {
	db          *gorm.DB
	redis       *redis.Client
	store       *RoomStore
	tournaments *TournamentStore
	rooms       *RoomService
	game        *GameService
}

func NewTournamentService(db *gorm.DB, redisClient *redis.Client, store *RoomStore,
	tournaments *TournamentStore, rooms *RoomService, game *GameService) *TournamentService {
	return &TournamentService{
		db:          db,
		redis:       redisClient,
		store:       store,
		tournaments: tournaments,
		rooms:       rooms,
		game:        game,
	}
}

type CreateTournamentRequest struct {
	Name            string `json:"name" binding:"required"`
	BracketSize     int    `json:"bracket_size"`
	MaxParticipants int    `json:"max_participants"`
	Mode            string `json:"mode"`
	ConversionType  string `json:"conversion_type" binding:"required"`
	GoalType        string `json:"goal_type" binding:"required"`
	GoalValue       int    `json:"goal_value"`
	Lives           int    `json:"lives"`

	CreatorUserID uint `json:"-"`
}

func (s *TournamentService) CreateTournament(req *CreateTournamentRequest) (*models.Tournament, error) {
	if req.BracketSize == 0 {
		req.BracketSize = 4
	}
	if req.MaxParticipants == 0 {
		req.MaxParticipants = 64
	}
	if req.BracketSize < 1 || req.MaxParticipants < req.BracketSize {
		return nil, fmt.Errorf("%w: bracket size must be positive and within capacity", ErrValidation)
	}

	// The game config rules are the same as for standalone rooms.
	cfg := &CreateRoomRequest{
		Mode:           req.Mode,
		ConversionType: req.ConversionType,
		GoalType:       req.GoalType,
		GoalValue:      req.GoalValue,
		Lives:          req.Lives,
		Visibility:     models.VisibilityPrivate,
		MaxPlayers:     req.BracketSize,
	}
	applyRoomDefaults(cfg)
	if err := validateRoomConfig(cfg); err != nil {
		return nil, err
	}
	req.Mode = cfg.Mode
	req.GoalValue = cfg.GoalValue
	req.Lives = cfg.Lives

	code, err := s.uniqueTournamentCode()
	if err != nil {
		return nil, err
	}

	tournament := &models.Tournament{
		Code:            code,
		Name:            req.Name,
		CreatorUserID:   req.CreatorUserID,
		BracketSize:     req.BracketSize,
		MaxParticipants: req.MaxParticipants,
		Mode:            req.Mode,
		ConversionType:  req.ConversionType,
		GoalType:        req.GoalType,
		GoalValue:       req.GoalValue,
		Lives:           req.Lives,
		Status:          models.TournamentLobby,
	}
	if s.db != nil {
		if err := s.db.Create(tournament).Error; err != nil {
			return nil, err
		}
	}
	s.tournaments.Put(&LiveTournament{Tournament: tournament})

	log.Printf("tournament %s created by user %d (bracket size %d)", code, req.CreatorUserID, req.BracketSize)
	return tournament, nil
}

func (s *TournamentService) uniqueTournamentCode() (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		code, err := GenerateRoomCode()
		if err != nil {
			return "", err
		}
		if s.tournaments.Get(code) != nil {
			continue
		}
		if s.db != nil {
			var count int64
			s.db.Model(&models.Tournament{}).Where("code = ?", code).Count(&count)
			if count > 0 {
				continue
			}
		}
		return code, nil
	}
	return "", errors.New("failed to generate unique tournament code after 10 attempts")
}

// BracketSeed derives a reproducible question seed from the tournament
// code and bracket index, so a restarted process regenerates identical
// bracket sequences without cross-bracket collisions.
func BracketSeed(tournamentCode string, bracketIndex int) int64 {
	h := fnv.New64a()
	h.Write([]byte(tournamentCode))
	seed := int64((h.Sum64() >> 1) ^ uint64(bracketIndex+1))
	if seed == 0 {
		seed = 1
	}
	return seed
}

type JoinTournamentRequest struct {
	DisplayName string `json:"display_name" binding:"required"`

	UserID  *uint  `json:"-"`
	GuestID string `json:"-"`
}

type JoinTournamentResponse struct {
	ParticipantID string `json:"participant_id"`
	BracketIndex  int    `json:"bracket_index"`
	RoomCode      string `json:"room_code"`
}

// JoinTournament buckets the entrant into bracket participantCount /
// bracketSize, lazily creating the bracket and its backing room.
func (s *TournamentService) JoinTournament(code string, req *JoinTournamentRequest, hub *Hub) (*JoinTournamentResponse, error) {
	lt := s.tournaments.Get(code)
	if lt == nil {
		return nil, ErrTournamentNotFound
	}

	lt.Mu.Lock()
	defer lt.Mu.Unlock()

	tournament := lt.Tournament
	if tournament.Status != models.TournamentLobby {
		return nil, ErrTournamentNotJoinable
	}
	if tournament.ParticipantCount >= tournament.MaxParticipants {
		return nil, ErrTournamentFull
	}

	index := tournament.ParticipantCount / tournament.BracketSize
	bracket, err := s.ensureBracket(lt, index, hub)
	if err != nil {
		return nil, err
	}

	joined, err := s.rooms.JoinRoom(bracket.RoomCode, &JoinRoomRequest{
		DisplayName: req.DisplayName,
		UserID:      req.UserID,
		GuestID:     req.GuestID,
	}, hub)
	if err != nil {
		return nil, err
	}

	tournament.ParticipantCount++
	if s.db != nil {
		if err := s.db.Model(&models.Tournament{}).Where("id = ?", tournament.ID).
			Update("participant_count", tournament.ParticipantCount).Error; err != nil {
			log.Errorf("failed to persist participant count for tournament %s: %v", code, err)
		}
	}

	return &JoinTournamentResponse{
		ParticipantID: joined.ParticipantID,
		BracketIndex:  index,
		RoomCode:      bracket.RoomCode,
	}, nil
}

// ensureBracket returns the bracket at index, creating the bracket row
// and its seeded private room on first use. Caller holds lt.Mu.
func (s *TournamentService) ensureBracket(lt *LiveTournament, index int, hub *Hub) (*models.Bracket, error) {
	for _, b := range lt.Brackets {
		if b.Index == index {
			return b, nil
		}
	}

	tournament := lt.Tournament
	roomCode, err := s.rooms.uniqueRoomCode()
	if err != nil {
		return nil, err
	}

	room := &models.Room{
		Code:            roomCode,
		Mode:            tournament.Mode,
		ConversionType:  tournament.ConversionType,
		GoalType:        tournament.GoalType,
		GoalValue:       tournament.GoalValue,
		Lives:           tournament.Lives,
		Visibility:      models.VisibilityPrivate,
		MaxPlayers:      tournament.BracketSize,
		ShowLeaderboard: true,
		Status:          models.StatusLobby,
		QuestionSeed:    BracketSeed(tournament.Code, index),
		TournamentCode:  tournament.Code,
		BracketIndex:    index,
		LastActivityAt:  time.Now(),
	}
	if s.db != nil {
		if err := s.db.Create(room).Error; err != nil {
			return nil, err
		}
	}
	s.store.Put(NewLiveRoom(room))

	bracket := &models.Bracket{
		TournamentID: tournament.ID,
		Index:        index,
		RoomID:       room.ID,
		RoomCode:     roomCode,
	}
	if s.db != nil {
		if err := s.db.Create(bracket).Error; err != nil {
			return nil, err
		}
	}
	lt.Brackets = append(lt.Brackets, bracket)

	notifyBracketUpdate(hub, tournament.Code, index, roomCode, models.StatusLobby)
	return bracket, nil
}

// StartTournament kicks off the synchronized start of every non-empty
// bracket. Creator only, and only from the lobby. Brackets run and end
// on independent timelines from here on.
func (s *TournamentService) StartTournament(code string, userID uint, hub *Hub) error {
	lt := s.tournaments.Get(code)
	if lt == nil {
		return ErrTournamentNotFound
	}

	lt.Mu.Lock()
	tournament := lt.Tournament
	if tournament.CreatorUserID != userID {
		lt.Mu.Unlock()
		return ErrForbidden
	}
	if tournament.Status != models.TournamentLobby {
		lt.Mu.Unlock()
		return ErrTournamentStarted
	}
	tournament.Status = models.TournamentStarted
	if s.db != nil {
		if err := s.db.Model(&models.Tournament{}).Where("id = ?", tournament.ID).
			Update("status", models.TournamentStarted).Error; err != nil {
			log.Errorf("failed to persist start of tournament %s: %v", code, err)
		}
	}
	brackets := make([]*models.Bracket, len(lt.Brackets))
	copy(brackets, lt.Brackets)
	lt.Mu.Unlock()

	for _, bracket := range brackets {
		lr := s.store.Get(bracket.RoomCode)
		if lr == nil {
			continue
		}
		lr.Mu.Lock()
		empty := len(lr.ActiveParticipants()) == 0
		lr.Mu.Unlock()
		if empty {
			continue
		}

		s.game.BeginSync(bracket.RoomCode, hub)
		notifyBracketUpdate(hub, code, bracket.Index, bracket.RoomCode, models.StatusSyncing)
	}

	log.Printf("tournament %s started with %d brackets", code, len(brackets))
	return nil
}

type TournamentInfo struct {
	Code             string `json:"code"`
	Name             string `json:"name"`
	Status           string `json:"status"`
	BracketSize      int    `json:"bracket_size"`
	MaxParticipants  int    `json:"max_participants"`
	ParticipantCount int    `json:"participant_count"`
	BracketCount     int    `json:"bracket_count"`
	Mode             string `json:"mode"`
	ConversionType   string `json:"conversion_type"`
	GoalType         string `json:"goal_type"`
	GoalValue        int    `json:"goal_value"`
}

func (s *TournamentService) GetTournament(code string) (*TournamentInfo, error) {
	lt := s.tournaments.Get(code)
	if lt == nil {
		return nil, ErrTournamentNotFound
	}

	lt.Mu.Lock()
	defer lt.Mu.Unlock()
	t := lt.Tournament
	return &TournamentInfo{
		Code:             t.Code,
		Name:             t.Name,
		Status:           t.Status,
		BracketSize:      t.BracketSize,
		MaxParticipants:  t.MaxParticipants,
		ParticipantCount: t.ParticipantCount,
		BracketCount:     len(lt.Brackets),
		Mode:             t.Mode,
		ConversionType:   t.ConversionType,
		GoalType:         t.GoalType,
		GoalValue:        t.GoalValue,
	}, nil
}

type BracketSummary struct {
	Index       int    `json:"index"`
	RoomCode    string `json:"room_code"`
	Status      string `json:"status"`
	PlayerCount int    `json:"player_count"`
}

func (s *TournamentService) ListBrackets(code string) ([]BracketSummary, error) {
	lt := s.tournaments.Get(code)
	if lt == nil {
		return nil, ErrTournamentNotFound
	}

	lt.Mu.Lock()
	brackets := make([]*models.Bracket, len(lt.Brackets))
	copy(brackets, lt.Brackets)
	lt.Mu.Unlock()

	out := make([]BracketSummary, 0, len(brackets))
	for _, bracket := range brackets {
		summary := BracketSummary{Index: bracket.Index, RoomCode: bracket.RoomCode, Status: models.StatusEnded}
		if lr := s.store.Get(bracket.RoomCode); lr != nil {
			lr.Mu.Lock()
			summary.Status = lr.Room.Status
			summary.PlayerCount = len(lr.ActivePlayers())
			lr.Mu.Unlock()
		}
		out = append(out, summary)
	}
	return out, nil
}

func (s *TournamentService) ListBracketParticipants(code string, index int) ([]ParticipantState, error) {
	lt := s.tournaments.Get(code)
	if lt == nil {
		return nil, ErrTournamentNotFound
	}

	lt.Mu.Lock()
	var roomCode string
	for _, b := range lt.Brackets {
		if b.Index == index {
			roomCode = b.RoomCode
			break
		}
	}
	lt.Mu.Unlock()
	if roomCode == "" {
		return nil, ErrRoomNotFound
	}

	lr := s.store.Get(roomCode)
	if lr == nil {
		return []ParticipantState{}, nil
	}
	lr.Mu.Lock()
	defer lr.Mu.Unlock()
	return buildRoomState(lr).Participants, nil
}

// IsCreator reports whether userID created the tournament. The control
// channel uses this to authenticate its bearer token.
func (s *TournamentService) IsCreator(code string, userID uint) bool {
	lt := s.tournaments.Get(code)
	if lt == nil {
		return false
	}
	lt.Mu.Lock()
	defer lt.Mu.Unlock()
	return lt.Tournament.CreatorUserID == userID
}

// RestoreActiveTournaments reloads non-ended tournaments after a restart.
// Bracket rooms are restored separately by RestoreActiveRooms.
func (s *TournamentService) RestoreActiveTournaments() error {
	if s.db == nil {
		return nil
	}

	var tournaments []models.Tournament
	err := s.db.Where("status <> ?", models.TournamentEnded).
		Preload("Brackets").
		Find(&tournaments).Error
	if err != nil {
		return fmt.Errorf("failed to load active tournaments: %w", err)
	}

	for i := range tournaments {
		t := &tournaments[i]
		lt := &LiveTournament{Tournament: t}
		for j := range t.Brackets {
			lt.Brackets = append(lt.Brackets, &t.Brackets[j])
		}
		s.tournaments.Put(lt)
	}

	if len(tournaments) > 0 {
		log.Printf("restored %d active tournaments", len(tournaments))
	}
	return nil
}

// notifyBracketUpdate pushes a bracket status change to the tournament's
// control channel.
func notifyBracketUpdate(hub *Hub, tournamentCode string, index int, roomCode, status string) {
	if hub == nil {
		return
	}
	hub.BroadcastToRoom(TournamentKey(tournamentCode), Message{
		Type: MsgBracketUpdate,
		Payload: BracketUpdatePayload{
			BracketIndex: index,
			RoomCode:     roomCode,
			Status:       status,
		},
	}, "")
}

// maybeFinishTournament marks the tournament ended once every bracket's
// room has left the live store (brackets are evicted when they end).
func (s *GameService) maybeFinishTournament(code string) {
	if s.tournaments == nil {
		return
	}
	lt := s.tournaments.Get(code)
	if lt == nil {
		return
	}

	lt.Mu.Lock()
	defer lt.Mu.Unlock()
	if lt.Tournament.Status != models.TournamentStarted {
		return
	}
	for _, bracket := range lt.Brackets {
		if s.store.Get(bracket.RoomCode) != nil {
			return
		}
	}

	lt.Tournament.Status = models.TournamentEnded
	if s.db != nil {
		if err := s.db.Model(&models.Tournament{}).Where("id = ?", lt.Tournament.ID).
			Update("status", models.TournamentEnded).Error; err != nil {
			log.Errorf("failed to persist end of tournament %s: %v", code, err)
		}
	}
	log.Printf("tournament %s ended", code)
}
