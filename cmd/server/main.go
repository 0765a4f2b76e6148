package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"landiq/internal/config"
	"landiq/internal/handler"
	"landiq/internal/repository"
	"landiq/internal/service"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Print version info
	log.Printf("LandIQ Valuation Server")
	log.Printf("Version: %s", Version)
	log.Printf("Build Time: %s", BuildTime)
	log.Printf("Git Commit: %s", GitCommit)
	log.Println("")

	// Load configuration; a missing provider API key is fatal
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set Gin mode
	gin.SetMode(cfg.Server.GinMode)

	// Initialize database connection
	repo, err := repository.NewValuationRepository(
		cfg.GetPostgreSQLDSN(),
		cfg.PostgreSQL.MaxConnections,
		cfg.PostgreSQL.MaxIdleConnections,
	)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer repo.Close()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to ensure database schema: %v", err)
	}

	log.Println("✅ Connected to PostgreSQL database")

	// Initialize OpenAI client
	aiClient := service.NewOpenAIClient(&cfg.OpenAI)
	log.Printf("✅ OpenAI client initialized")
	log.Printf("   - API Base: %s", cfg.OpenAI.APIBase)
	log.Printf("   - Chat model: %s", cfg.OpenAI.ChatModel)
	log.Printf("   - Web search: %t", cfg.OpenAI.WebSearch)

	// Initialize services
	valuationService := service.NewValuationService(repo, aiClient, &cfg.OpenAI)
	sessionStore := service.NewMemorySessionStore(
		time.Duration(cfg.Agent.SessionTTLMinutes)*time.Minute,
		cfg.Agent.MaxSessions,
	)
	agentService := service.NewAgentService(aiClient, sessionStore, valuationService)

	log.Println("✅ Services initialized")

	// Initialize handlers
	valuationHandler := handler.NewValuationHandler(valuationService)
	agentHandler := handler.NewAgentHandler(agentService)

	// Setup Gin router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Server.AllowedOrigins}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	// API routes
	api := router.Group("/api")
	{
		api.POST("/valuations", valuationHandler.Create)
		api.GET("/valuations/recent", valuationHandler.Recent)
		api.GET("/valuations/location/:location", valuationHandler.ByLocation)
		api.GET("/valuations/:id", valuationHandler.Get)

		api.POST("/agent", agentHandler.Message)

		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":    "ok",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
		})
	}

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("🚀 Starting server on %s", addr)
	log.Printf("📝 API root: http://localhost:%d/api", cfg.Server.Port)

	go func() {
		if err := router.Run(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")
	log.Println("✅ Server stopped")
}
