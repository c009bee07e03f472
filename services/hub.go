package services

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	chatMaxLength = 280
	chatWindow    = 10 * time.Second
	chatBurst     = 5

	sendBufferSize = 64
)

// tournamentKeyPrefix scopes control-channel connections so they never
// collide with gameplay rooms.
const tournamentKeyPrefix = "tournament:"

func TournamentKey(code string) string {
	return tournamentKeyPrefix + code
}

// Hub is the per-room connection registry: room key -> participant id ->
// live client. It is pure transport fan-out; send failures are swallowed
// so one dead connection never breaks the room for everyone else.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Client

	gameService *GameService
}

// Client is a single websocket connection scoped to one room.
type Client struct {
	hub           *Hub
	roomKey       string
	participantID string
	socket        *websocket.Conn
	send          chan []byte

	chatTimes []time.Time
}

func NewHub(gameService *GameService) *Hub {
	return &Hub{
		rooms:       make(map[string]map[string]*Client),
		gameService: gameService,
	}
}

// RegisterClient adds the connection to the registry and starts its
// read/write pumps.
func (h *Hub) RegisterClient(conn *websocket.Conn, roomKey, participantID string) *Client {
	client := &Client{
		hub:           h,
		roomKey:       roomKey,
		participantID: participantID,
		socket:        conn,
		send:          make(chan []byte, sendBufferSize),
	}
	h.add(client)

	go client.writePump()
	go client.readPump()

	return client
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[c.roomKey]
	if room == nil {
		room = make(map[string]*Client)
		h.rooms[c.roomKey] = room
	}
	if prev := room[c.participantID]; prev != nil {
		close(prev.send)
	}
	room[c.participantID] = c
}

// Remove drops a client from the registry, garbage-collecting the room
// entry when it empties. No-op if the client was already replaced.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	room := h.rooms[c.roomKey]
	removed := false
	if room != nil && room[c.participantID] == c {
		delete(room, c.participantID)
		close(c.send)
		removed = true
		if len(room) == 0 {
			delete(h.rooms, c.roomKey)
		}
	}
	h.mu.Unlock()

	if removed && h.gameService != nil && !strings.HasPrefix(c.roomKey, tournamentKeyPrefix) {
		h.gameService.HandleDisconnect(c.roomKey, c.participantID, h)
	}
}

// BroadcastToRoom sends a message to every connection in the room,
// optionally excluding one participant. Best effort: slow clients are
// skipped rather than blocked on.
func (h *Hub) BroadcastToRoom(roomKey string, msg Message, excludeParticipantID string) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("error marshaling %s message: %v", msg.Type, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.rooms[roomKey] {
		if id == excludeParticipantID {
			continue
		}
		select {
		case c.send <- data:
		default:
			// send buffer full, drop the message for this client
		}
	}
}

// SendTo sends a message to a single participant. No-op when the
// participant has no live connection.
func (h *Hub) SendTo(roomKey, participantID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("error marshaling %s message: %v", msg.Type, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	c := h.rooms[roomKey][participantID]
	if c == nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) ConnectedCount(roomKey string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomKey])
}

func (h *Hub) IsConnected(roomKey, participantID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[roomKey][participantID] != nil
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Remove(c)
		c.socket.Close()
	}()

	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debugf("websocket read error for %s in %s: %v", c.participantID, c.roomKey, err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// malformed payloads never crash the channel
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	defer c.socket.Close()

	for msg := range c.send {
		if err := c.socket.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.socket.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) handleMessage(msg ClientMessage) {
	if c.hub.gameService == nil {
		return
	}

	switch msg.Type {
	case MsgAnswerSubmit:
		var payload AnswerSubmitPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		c.hub.gameService.SubmitAnswer(c.roomKey, c.participantID, payload.Answer, c.hub)

	case MsgChat:
		var payload ChatSubmitPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		if len(payload.Text) == 0 || len(payload.Text) > chatMaxLength {
			return
		}
		if !c.allowChat(time.Now()) {
			return
		}
		c.hub.gameService.Chat(c.roomKey, c.participantID, payload.Text, c.hub)

	case MsgEndGameRequest:
		c.hub.gameService.RequestEndGame(c.roomKey, c.participantID, c.hub)

	default:
		// unknown message kinds are ignored
	}
}

// allowChat enforces a sliding-window rate limit of chatBurst messages
// per chatWindow for this connection.
func (c *Client) allowChat(now time.Time) bool {
	cutoff := now.Add(-chatWindow)
	kept := c.chatTimes[:0]
	for _, t := range c.chatTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	c.chatTimes = kept

	if len(c.chatTimes) >= chatBurst {
		return false
	}
	c.chatTimes = append(c.chatTimes, now)
	return true
}
