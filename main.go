package main

import (
	"bitrush/config"
	"bitrush/handlers"
	"bitrush/middleware"
	"bitrush/models"
	"bitrush/routes"
	"bitrush/services"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database models
	err = db.AutoMigrate(
		&models.Room{},
		&models.Participant{},
		&models.Question{},
		&models.Tournament{},
		&models.Bracket{},
	)
	if err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize Redis
	redisClient := config.InitRedis(cfg)

	// Initialize stores and services
	store := services.NewRoomStore()
	tournamentStore := services.NewTournamentStore()
	gameService := services.NewGameService(db, redisClient, store, tournamentStore)
	hub := services.NewHub(gameService)
	roomService := services.NewRoomService(db, redisClient, store, gameService)
	tournamentService := services.NewTournamentService(db, redisClient, store, tournamentStore, roomService, gameService)
	authService := services.NewAuthService(cfg.JWTSecret)

	// Recover state from before the last restart
	if err := roomService.RestoreActiveRooms(); err != nil {
		log.Fatal("Failed to restore rooms:", err)
	}
	if err := tournamentService.RestoreActiveTournaments(); err != nil {
		log.Fatal("Failed to restore tournaments:", err)
	}

	// Sweep for abandoned rooms
	roomService.StartReaper(hub)

	// Initialize handlers
	roomHandler := handlers.NewRoomHandler(roomService, gameService, authService, hub)
	tournamentHandler := handlers.NewTournamentHandler(tournamentService, hub)

	// Setup Gin router
	router := gin.Default()

	// Add CORS middleware
	router.Use(middleware.CORS())

	// Setup routes
	routes.SetupRoutes(router, roomHandler, tournamentHandler, roomService, tournamentService, authService, hub)

	// Start server
	log.Printf("Server starting on %s:%s", cfg.BindAddress, cfg.Port)
	if err := router.Run(cfg.BindAddress + ":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
