package services

import (
	"sync"
	"time"

	"bitrush/models"
)

// LiveRoom is the authoritative in-memory state for one room while it is
// active. The persistent row is only a mirror; all gameplay mutation
// happens here under Mu.
type LiveRoom struct {
	Mu           sync.Mutex
	Room         *models.Room
	Participants map[string]*models.Participant
	Questions    []models.Question

	// join order, so participant listings are stable
	order []string
}

func NewLiveRoom(room *models.Room) *LiveRoom {
	return &LiveRoom{
		Room:         room,
		Participants: make(map[string]*models.Participant),
	}
}

// AddParticipant registers a participant. Caller must hold Mu.
func (lr *LiveRoom) AddParticipant(p *models.Participant) {
	lr.Participants[p.ID] = p
	lr.order = append(lr.order, p.ID)
}

// ActiveParticipants returns non-departed participants in join order.
// Caller must hold Mu.
func (lr *LiveRoom) ActiveParticipants() []*models.Participant {
	out := make([]*models.Participant, 0, len(lr.order))
	for _, id := range lr.order {
		if p := lr.Participants[id]; p != nil && p.Active() {
			out = append(out, p)
		}
	}
	return out
}

// ActivePlayers returns non-departed participants with the player role,
// in join order. Caller must hold Mu.
func (lr *LiveRoom) ActivePlayers() []*models.Participant {
	out := make([]*models.Participant, 0, len(lr.order))
	for _, id := range lr.order {
		if p := lr.Participants[id]; p != nil && p.Active() && p.Role == models.RolePlayer {
			out = append(out, p)
		}
	}
	return out
}

// Touch records room activity for the reaper. Caller must hold Mu.
func (lr *LiveRoom) Touch() {
	lr.Room.LastActivityAt = time.Now()
}

// RoomStore holds every live room keyed by room code. It is created once
// and injected into the services that need room access, so tests can run
// isolated stores.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*LiveRoom
}

func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[string]*LiveRoom)}
}

func (s *RoomStore) Put(lr *LiveRoom) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[lr.Room.Code] = lr
}

func (s *RoomStore) Get(code string) *LiveRoom {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[code]
}

func (s *RoomStore) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
}

func (s *RoomStore) List() []*LiveRoom {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*LiveRoom, 0, len(s.rooms))
	for _, lr := range s.rooms {
		out = append(out, lr)
	}
	return out
}

func (s *RoomStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}
