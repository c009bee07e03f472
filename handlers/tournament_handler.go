package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"bitrush/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type TournamentHandler struct {
	tournamentService *services.TournamentService
	hub               *services.Hub
}

func NewTournamentHandler(tournamentService *services.TournamentService, hub *services.Hub) *TournamentHandler {
	return &TournamentHandler{tournamentService: tournamentService, hub: hub}
}

func (h *TournamentHandler) CreateTournament(c *gin.Context) {
	userID := c.GetUint("user_id")

	var req services.CreateTournamentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.CreatorUserID = userID

	tournament, err := h.tournamentService.CreateTournament(&req)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, tournament)
}

func (h *TournamentHandler) GetTournament(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))

	info, err := h.tournamentService.GetTournament(code)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, info)
}

func (h *TournamentHandler) JoinTournament(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))

	var req services.JoinTournamentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Tournament entrants always join as guests; bracket rooms never
	// require a password.
	req.GuestID = "guest_" + uuid.NewString()

	resp, err := h.tournamentService.JoinTournament(code, &req, h.hub)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *TournamentHandler) StartTournament(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))
	userID := c.GetUint("user_id")

	if err := h.tournamentService.StartTournament(code, userID, h.hub); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Tournament started"})
}

func (h *TournamentHandler) ListBrackets(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))

	brackets, err := h.tournamentService.ListBrackets(code)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, brackets)
}

func (h *TournamentHandler) ListBracketParticipants(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bracket index"})
		return
	}

	participants, err := h.tournamentService.ListBracketParticipants(code, index)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, participants)
}
