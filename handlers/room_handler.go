package handlers

import (
	"errors"
	"net/http"
	"strings"

	"bitrush/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RoomHandler struct {
	roomService *services.RoomService
	gameService *services.GameService
	authService *services.AuthService
	hub         *services.Hub
}

func NewRoomHandler(roomService *services.RoomService, gameService *services.GameService,
	authService *services.AuthService, hub *services.Hub) *RoomHandler {
	return &RoomHandler{
		roomService: roomService,
		gameService: gameService,
		authService: authService,
		hub:         hub,
	}
}

// statusForError maps the service error taxonomy onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrRoomNotFound),
		errors.Is(err, services.ErrParticipantNotFound),
		errors.Is(err, services.ErrTournamentNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNotHost),
		errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrRoomFull),
		errors.Is(err, services.ErrWrongPassword),
		errors.Is(err, services.ErrRoomNotJoinable),
		errors.Is(err, services.ErrNotInLobby),
		errors.Is(err, services.ErrTournamentFull),
		errors.Is(err, services.ErrTournamentNotJoinable),
		errors.Is(err, services.ErrTournamentStarted):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// identity resolves the caller to either an account id (valid bearer
// token) or a fresh ephemeral guest id. Room endpoints never require
// authentication.
func (h *RoomHandler) identity(c *gin.Context) (*uint, string) {
	header := c.GetHeader("Authorization")
	if header != "" {
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if userID, err := h.authService.ValidateToken(tokenString); err == nil {
			return &userID, ""
		}
	}
	return nil, "guest_" + uuid.NewString()
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req services.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.UserID, req.GuestID = h.identity(c)

	resp, err := h.roomService.CreateRoom(&req)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))

	info, err := h.roomService.GetRoomInfo(code)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, info)
}

func (h *RoomHandler) JoinRoom(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))

	var req services.JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.UserID, req.GuestID = h.identity(c)

	resp, err := h.roomService.JoinRoom(code, &req, h.hub)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *RoomHandler) ListLobbies(c *gin.Context) {
	c.JSON(http.StatusOK, h.roomService.ListLobbies())
}

type StartGameRequest struct {
	ParticipantID string `json:"participant_id" binding:"required"`
}

func (h *RoomHandler) StartGame(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))

	var req StartGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.gameService.StartGame(code, req.ParticipantID, h.hub); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Synchronized start initiated"})
}
