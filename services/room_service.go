package services

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"bitrush/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrValidation          = errors.New("invalid request")
	ErrRoomNotFound        = errors.New("room not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrRoomNotJoinable     = errors.New("room is not joinable")
	ErrRoomFull            = errors.New("room is full")
	ErrWrongPassword       = errors.New("wrong password")
	ErrNotHost             = errors.New("only the host can do that")
	ErrForbidden           = errors.New("forbidden")
)

// Room codes use an alphabet without ambiguous characters: 0, O, 1, I, L.
const (
	roomCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	roomCodeLength   = 6
)

const (
	snapshotTTL     = 2 * time.Hour
	defaultInterval = time.Minute
	defaultIdle     = 5 * time.Minute
)

// GenerateRoomCode returns a random human-enterable room code.
func GenerateRoomCode() (string, error) {
	code := make([]byte, roomCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(roomCodeAlphabet))))
		if err != nil {
			return "", err
		}
		code[i] = roomCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

type RoomService struct {
	db    *gorm.DB
	redis *redis.Client
	store *RoomStore
	game  *GameService

	reapInterval time.Duration
	idleTimeout  time.Duration
}

func NewRoomService(db *gorm.DB, redisClient *redis.Client, store *RoomStore, game *GameService) *RoomService {
	return &RoomService{
		db:           db,
		redis:        redisClient,
		store:        store,
		game:         game,
		reapInterval: defaultInterval,
		idleTimeout:  defaultIdle,
	}
}

type CreateRoomRequest struct {
	Mode            string `json:"mode"`
	ConversionType  string `json:"conversion_type" binding:"required"`
	GoalType        string `json:"goal_type" binding:"required"`
	GoalValue       int    `json:"goal_value"`
	Lives           int    `json:"lives"`
	Visibility      string `json:"visibility"`
	Password        string `json:"password"`
	MaxPlayers      int    `json:"max_players"`
	ShowLeaderboard *bool  `json:"show_leaderboard"`
	DisplayName     string `json:"display_name" binding:"required"`

	// Identity is set by the handler, never bound from the body.
	UserID  *uint  `json:"-"`
	GuestID string `json:"-"`
}

type CreateRoomResponse struct {
	Code              string           `json:"code"`
	HostParticipantID string           `json:"host_participant_id"`
	Room              RoomStatePayload `json:"room"`
}

func (s *RoomService) CreateRoom(req *CreateRoomRequest) (*CreateRoomResponse, error) {
	applyRoomDefaults(req)
	if err := validateRoomConfig(req); err != nil {
		return nil, err
	}

	var passwordHash string
	if req.Visibility == models.VisibilityPublicPassword {
		if req.Password == "" {
			return nil, fmt.Errorf("%w: password required for password-protected rooms", ErrValidation)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		passwordHash = string(hash)
	}

	code, err := s.uniqueRoomCode()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	room := &models.Room{
		Code:            code,
		OwnerUserID:     req.UserID,
		HostGuestID:     req.GuestID,
		Mode:            req.Mode,
		ConversionType:  req.ConversionType,
		GoalType:        req.GoalType,
		GoalValue:       req.GoalValue,
		Lives:           req.Lives,
		Visibility:      req.Visibility,
		PasswordHash:    passwordHash,
		MaxPlayers:      req.MaxPlayers,
		ShowLeaderboard: req.ShowLeaderboard == nil || *req.ShowLeaderboard,
		Status:          models.StatusLobby,
		LastActivityAt:  now,
	}
	if s.db != nil {
		if err := s.db.Create(room).Error; err != nil {
			return nil, err
		}
	}

	host := &models.Participant{
		ID:          uuid.NewString(),
		RoomID:      room.ID,
		UserID:      req.UserID,
		GuestID:     req.GuestID,
		DisplayName: req.DisplayName,
		Role:        models.RolePlayer,
		Lives:       room.Lives,
		JoinedAt:    now,
	}
	room.HostParticipantID = host.ID
	if s.db != nil {
		if err := s.db.Create(host).Error; err != nil {
			return nil, err
		}
		if err := s.db.Model(room).Update("host_participant_id", host.ID).Error; err != nil {
			return nil, err
		}
	}

	lr := NewLiveRoom(room)
	lr.Mu.Lock()
	lr.AddParticipant(host)
	state := buildRoomState(lr)
	storeRoomSnapshot(s.redis, lr)
	lr.Mu.Unlock()
	s.store.Put(lr)

	log.Printf("room %s created (%s/%s, goal %s=%d)", code, room.ConversionType, room.Mode, room.GoalType, room.GoalValue)

	return &CreateRoomResponse{
		Code:              code,
		HostParticipantID: host.ID,
		Room:              state,
	}, nil
}

func (s *RoomService) uniqueRoomCode() (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		code, err := GenerateRoomCode()
		if err != nil {
			return "", err
		}
		if s.store.Get(code) != nil {
			continue
		}
		if s.db != nil {
			var count int64
			s.db.Model(&models.Room{}).Where("code = ?", code).Count(&count)
			if count > 0 {
				continue
			}
		}
		return code, nil
	}
	return "", errors.New("failed to generate unique room code after 10 attempts")
}

func applyRoomDefaults(req *CreateRoomRequest) {
	if req.Mode == "" {
		req.Mode = models.ModeStandard
	}
	if req.Visibility == "" {
		req.Visibility = models.VisibilityPublic
	}
	if req.MaxPlayers == 0 {
		req.MaxPlayers = 8
	}
	if req.GoalValue == 0 {
		switch req.GoalType {
		case models.GoalFirstTo:
			req.GoalValue = 10
		case models.GoalTimed:
			req.GoalValue = 60
		case models.GoalStreak:
			req.GoalValue = 5
		}
	}
	if req.GoalType == models.GoalSurvival && req.Lives == 0 {
		req.Lives = 3
	}
}

func validateRoomConfig(req *CreateRoomRequest) error {
	switch req.Mode {
	case models.ModeStandard, models.ModeNibble:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrValidation, req.Mode)
	}
	switch req.ConversionType {
	case models.ConversionBinary, models.ConversionHex, models.ConversionIPv4, models.ConversionHextet:
	default:
		return fmt.Errorf("%w: unknown conversion type %q", ErrValidation, req.ConversionType)
	}
	switch req.GoalType {
	case models.GoalFirstTo, models.GoalTimed, models.GoalSurvival, models.GoalStreak:
	default:
		return fmt.Errorf("%w: unknown goal type %q", ErrValidation, req.GoalType)
	}
	switch req.Visibility {
	case models.VisibilityPublic, models.VisibilityPrivate, models.VisibilityPublicPassword:
	default:
		return fmt.Errorf("%w: unknown visibility %q", ErrValidation, req.Visibility)
	}
	if req.MaxPlayers < 1 || req.MaxPlayers > 32 {
		return fmt.Errorf("%w: max_players must be between 1 and 32", ErrValidation)
	}
	if req.GoalType != models.GoalSurvival && req.GoalValue < 1 {
		return fmt.Errorf("%w: goal_value must be positive", ErrValidation)
	}
	if req.Lives < 0 {
		return fmt.Errorf("%w: lives cannot be negative", ErrValidation)
	}
	return nil
}

type RoomInfo struct {
	Code             string `json:"code"`
	Status           string `json:"status"`
	Mode             string `json:"mode"`
	ConversionType   string `json:"conversion_type"`
	GoalType         string `json:"goal_type"`
	GoalValue        int    `json:"goal_value"`
	Visibility       string `json:"visibility"`
	RequiresPassword bool   `json:"requires_password"`
	PlayerCount      int    `json:"player_count"`
	MaxPlayers       int    `json:"max_players"`
}

// GetRoomInfo is the pre-join view: config and whether a password is
// required, never the password hash.
func (s *RoomService) GetRoomInfo(code string) (*RoomInfo, error) {
	lr := s.store.Get(code)
	if lr == nil {
		return nil, ErrRoomNotFound
	}

	lr.Mu.Lock()
	defer lr.Mu.Unlock()
	return &RoomInfo{
		Code:             lr.Room.Code,
		Status:           lr.Room.Status,
		Mode:             lr.Room.Mode,
		ConversionType:   lr.Room.ConversionType,
		GoalType:         lr.Room.GoalType,
		GoalValue:        lr.Room.GoalValue,
		Visibility:       lr.Room.Visibility,
		RequiresPassword: lr.Room.RequiresPassword(),
		PlayerCount:      len(lr.ActivePlayers()),
		MaxPlayers:       lr.Room.MaxPlayers,
	}, nil
}

type JoinRoomRequest struct {
	Password    string `json:"password"`
	DisplayName string `json:"display_name" binding:"required"`
	Spectator   bool   `json:"spectator"`

	UserID  *uint  `json:"-"`
	GuestID string `json:"-"`
}

type JoinRoomResponse struct {
	ParticipantID string           `json:"participant_id"`
	Room          RoomStatePayload `json:"room"`
}

func (s *RoomService) JoinRoom(code string, req *JoinRoomRequest, hub *Hub) (*JoinRoomResponse, error) {
	lr := s.store.Get(code)
	if lr == nil {
		return nil, ErrRoomNotFound
	}

	lr.Mu.Lock()
	if !lr.Room.Joinable() {
		lr.Mu.Unlock()
		return nil, ErrRoomNotJoinable
	}
	if lr.Room.RequiresPassword() {
		if bcrypt.CompareHashAndPassword([]byte(lr.Room.PasswordHash), []byte(req.Password)) != nil {
			lr.Mu.Unlock()
			return nil, ErrWrongPassword
		}
	}

	role := models.RolePlayer
	if req.Spectator {
		role = models.RoleSpectator
	}
	if role == models.RolePlayer && len(lr.ActivePlayers()) >= lr.Room.MaxPlayers {
		lr.Mu.Unlock()
		return nil, ErrRoomFull
	}

	participant := &models.Participant{
		ID:          uuid.NewString(),
		RoomID:      lr.Room.ID,
		UserID:      req.UserID,
		GuestID:     req.GuestID,
		DisplayName: req.DisplayName,
		Role:        role,
		Lives:       lr.Room.Lives,
		JoinedAt:    time.Now(),
	}
	lr.AddParticipant(participant)
	lr.Touch()
	state := buildRoomState(lr)
	storeRoomSnapshot(s.redis, lr)
	lr.Mu.Unlock()

	if s.db != nil {
		if err := s.db.Create(participant).Error; err != nil {
			log.Errorf("failed to persist participant %s: %v", participant.ID, err)
		}
	}
	if hub != nil {
		hub.BroadcastToRoom(code, Message{Type: MsgRoomState, Payload: state}, "")
	}

	return &JoinRoomResponse{ParticipantID: participant.ID, Room: state}, nil
}

// AttachParticipant validates a channel connection against the live
// room, marks a previously departed participant as present again, and
// returns what the client needs to catch up: the room state and, mid
// game, their current question.
func (s *RoomService) AttachParticipant(code, participantID string, hub *Hub) (*RoomStatePayload, *QuestionPayload, error) {
	lr := s.store.Get(code)
	if lr == nil {
		return nil, nil, ErrRoomNotFound
	}

	lr.Mu.Lock()
	participant := lr.Participants[participantID]
	if participant == nil {
		lr.Mu.Unlock()
		return nil, nil, ErrParticipantNotFound
	}
	rejoined := participant.LeftAt != nil
	participant.LeftAt = nil
	lr.Touch()
	state := buildRoomState(lr)
	var question *QuestionPayload
	if lr.Room.Status == models.StatusPlaying && participant.Role == models.RolePlayer &&
		participant.QuestionIndex < len(lr.Questions) {
		q := lr.Questions[participant.QuestionIndex]
		question = &QuestionPayload{Index: q.Index, Value: q.Value}
	}
	storeRoomSnapshot(s.redis, lr)
	lr.Mu.Unlock()

	if rejoined {
		if s.db != nil {
			if err := s.db.Model(&models.Participant{}).Where("id = ?", participantID).
				Update("left_at", nil).Error; err != nil {
				log.Errorf("failed to clear departure of participant %s: %v", participantID, err)
			}
		}
		if hub != nil {
			hub.BroadcastToRoom(code, Message{Type: MsgRoomState, Payload: state}, participantID)
		}
	}

	return &state, question, nil
}

type LobbySummary struct {
	Code             string `json:"code"`
	Mode             string `json:"mode"`
	ConversionType   string `json:"conversion_type"`
	GoalType         string `json:"goal_type"`
	GoalValue        int    `json:"goal_value"`
	PlayerCount      int    `json:"player_count"`
	MaxPlayers       int    `json:"max_players"`
	RequiresPassword bool   `json:"requires_password"`
}

// ListLobbies returns open public rooms with live player counts.
func (s *RoomService) ListLobbies() []LobbySummary {
	lobbies := []LobbySummary{}
	for _, lr := range s.store.List() {
		lr.Mu.Lock()
		room := lr.Room
		open := room.Status == models.StatusLobby &&
			(room.Visibility == models.VisibilityPublic || room.Visibility == models.VisibilityPublicPassword)
		if open {
			lobbies = append(lobbies, LobbySummary{
				Code:             room.Code,
				Mode:             room.Mode,
				ConversionType:   room.ConversionType,
				GoalType:         room.GoalType,
				GoalValue:        room.GoalValue,
				PlayerCount:      len(lr.ActivePlayers()),
				MaxPlayers:       room.MaxPlayers,
				RequiresPassword: room.RequiresPassword(),
			})
		}
		lr.Mu.Unlock()
	}
	sort.Slice(lobbies, func(i, j int) bool { return lobbies[i].Code < lobbies[j].Code })
	return lobbies
}

// StartReaper launches the periodic sweep for abandoned rooms.
func (s *RoomService) StartReaper(hub *Hub) {
	go func() {
		ticker := time.NewTicker(s.reapInterval)
		defer ticker.Stop()
		for range ticker.C {
			s.ReapOnce(time.Now(), hub)
		}
	}()
}

// ReapOnce force-ends rooms that have been idle past the threshold with
// no connected participants, and returns how many were reaped. A room
// with even one connected spectator is left alone.
func (s *RoomService) ReapOnce(now time.Time, hub *Hub) int {
	reaped := 0
	for _, lr := range s.store.List() {
		lr.Mu.Lock()
		code := lr.Room.Code
		idle := now.Sub(lr.Room.LastActivityAt) > s.idleTimeout
		ended := lr.Room.Status == models.StatusEnded
		lr.Mu.Unlock()

		if ended {
			s.store.Delete(code)
			continue
		}
		if !idle {
			continue
		}
		if hub != nil && hub.ConnectedCount(code) > 0 {
			continue
		}

		log.Printf("reaping abandoned room %s", code)
		s.game.EndRoom(code, "inactive", hub)
		reaped++
	}
	return reaped
}

// RestoreActiveRooms reloads non-terminal rooms from the database after a
// restart, overlaying the redis snapshot for volatile cursors and scores.
// Rooms caught mid-countdown are dropped back to lobby: the countdown
// goroutine died with the old process.
func (s *RoomService) RestoreActiveRooms() error {
	if s.db == nil {
		return nil
	}

	var rooms []models.Room
	err := s.db.
		Where("status IN ?", []string{models.StatusLobby, models.StatusSyncing, models.StatusPlaying}).
		Preload("Participants").
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("index") }).
		Find(&rooms).Error
	if err != nil {
		return fmt.Errorf("failed to load active rooms: %w", err)
	}

	for i := range rooms {
		room := &rooms[i]
		if room.Status == models.StatusSyncing {
			room.Status = models.StatusLobby
			room.SyncRound = 0
		}
		room.LastActivityAt = time.Now()

		lr := NewLiveRoom(room)
		lr.Mu.Lock()
		for j := range room.Participants {
			lr.AddParticipant(&room.Participants[j])
		}
		lr.Questions = room.Questions
		applyRoomSnapshot(s.redis, lr)
		lr.Mu.Unlock()
		s.store.Put(lr)
	}

	if len(rooms) > 0 {
		log.Printf("restored %d active rooms", len(rooms))
	}
	return nil
}

// roomSnapshot mirrors the volatile per-room state into redis so a quick
// restart does not lose scores and cursors that are not yet persisted.
type roomSnapshot struct {
	Code         string                `json:"code"`
	Status       string                `json:"status"`
	SyncRound    int                   `json:"sync_round"`
	Participants []participantSnapshot `json:"participants"`
}

type participantSnapshot struct {
	ID            string `json:"id"`
	Score         int    `json:"score"`
	QuestionIndex int    `json:"question_index"`
	Lives         int    `json:"lives"`
	Streak        int    `json:"streak"`
}

// storeRoomSnapshot writes the snapshot, best effort. Caller holds Mu.
func storeRoomSnapshot(rdb *redis.Client, lr *LiveRoom) {
	if rdb == nil {
		return
	}

	snap := roomSnapshot{
		Code:      lr.Room.Code,
		Status:    lr.Room.Status,
		SyncRound: lr.Room.SyncRound,
	}
	for _, p := range lr.Participants {
		snap.Participants = append(snap.Participants, participantSnapshot{
			ID:            p.ID,
			Score:         p.Score,
			QuestionIndex: p.QuestionIndex,
			Lives:         p.Lives,
			Streak:        p.Streak,
		})
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := rdb.Set(context.Background(), "room:"+lr.Room.Code, data, snapshotTTL).Err(); err != nil {
		log.Debugf("failed to store snapshot for room %s: %v", lr.Room.Code, err)
	}
}

// applyRoomSnapshot overlays a redis snapshot onto a restored room.
// Caller holds Mu.
func applyRoomSnapshot(rdb *redis.Client, lr *LiveRoom) {
	if rdb == nil {
		return
	}

	data, err := rdb.Get(context.Background(), "room:"+lr.Room.Code).Result()
	if err != nil {
		if err != redis.Nil {
			log.Debugf("redis error loading snapshot for room %s: %v", lr.Room.Code, err)
		}
		return
	}

	var snap roomSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return
	}
	for _, ps := range snap.Participants {
		if p := lr.Participants[ps.ID]; p != nil {
			p.Score = ps.Score
			p.QuestionIndex = ps.QuestionIndex
			p.Lives = ps.Lives
			p.Streak = ps.Streak
		}
	}
}

func clearRoomSnapshot(rdb *redis.Client, code string) {
	if rdb == nil {
		return
	}
	rdb.Del(context.Background(), "room:"+code)
}
