package routes

import (
	"net/http"
	"strings"

	"bitrush/handlers"
	"bitrush/middleware"
	"bitrush/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

func SetupRoutes(
	router *gin.Engine,
	roomHandler *handlers.RoomHandler,
	tournamentHandler *handlers.TournamentHandler,
	roomService *services.RoomService,
	tournamentService *services.TournamentService,
	authService *services.AuthService,
	hub *services.Hub,
) {
	api := router.Group("/api")
	{
		// Room routes are open to guests.
		rooms := api.Group("/rooms")
		{
			rooms.POST("", roomHandler.CreateRoom)
			rooms.GET("", roomHandler.ListLobbies)
			rooms.GET("/:code", roomHandler.GetRoom)
			rooms.POST("/:code/join", roomHandler.JoinRoom)
			rooms.POST("/:code/start", roomHandler.StartGame)
		}

		tournaments := api.Group("/tournaments")
		{
			tournaments.GET("/:code", tournamentHandler.GetTournament)
			tournaments.POST("/:code/join", tournamentHandler.JoinTournament)
			tournaments.GET("/:code/brackets", tournamentHandler.ListBrackets)
			tournaments.GET("/:code/brackets/:index/participants", tournamentHandler.ListBracketParticipants)
		}

		// Tournament administration requires an account token.
		admin := api.Group("/tournaments")
		admin.Use(middleware.AuthMiddleware(authService))
		{
			admin.POST("", tournamentHandler.CreateTournament)
			admin.POST("/:code/start", tournamentHandler.StartTournament)
		}
	}

	// Gameplay channel. Identity is validated against the live room before
	// the upgrade, so a bad code or participant id is rejected as HTTP.
	router.GET("/ws/rooms/:code/:participantID", func(c *gin.Context) {
		code := strings.ToUpper(c.Param("code"))
		participantID := c.Param("participantID")

		state, question, err := roomService.AttachParticipant(code, participantID, hub)
		if err != nil {
			status := http.StatusNotFound
			if err != services.ErrRoomNotFound {
				status = http.StatusForbidden
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Errorf("websocket upgrade failed for room %s: %v", code, err)
			return
		}

		hub.RegisterClient(conn, code, participantID)

		// Bring the connection up to date immediately.
		hub.SendTo(code, participantID, services.Message{Type: services.MsgRoomState, Payload: *state})
		if question != nil {
			hub.SendTo(code, participantID, services.Message{Type: services.MsgQuestion, Payload: *question})
		}
	})

	// Tournament control channel: bracket status pushes for the creator's
	// dashboard. Authenticated by token, creator only.
	router.GET("/ws/tournaments/:code", func(c *gin.Context) {
		code := strings.ToUpper(c.Param("code"))

		userID, err := authService.ValidateToken(c.Query("token"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		if !tournamentService.IsCreator(code, userID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Errorf("websocket upgrade failed for tournament %s: %v", code, err)
			return
		}

		hub.RegisterClient(conn, services.TournamentKey(code), "observer_"+uuid.NewString())
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
