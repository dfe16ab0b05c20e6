package main

import (
	"context"
	"log"

	"leadbot-gateway/internal/ai"
	"leadbot-gateway/internal/api"
	"leadbot-gateway/internal/bot"
	"leadbot-gateway/internal/config"
	"leadbot-gateway/internal/database"
	"leadbot-gateway/internal/store"
	"leadbot-gateway/internal/webhook"
	"leadbot-gateway/internal/ws"
	"leadbot-gateway/internal/zapi"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.LoadConfig()

	db, err := database.Init(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	database.SyncConfig(db, cfg)

	st := store.NewStore(db)
	gateway := zapi.NewClient(cfg)

	responder, err := ai.NewResponder(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize AI responder: %v", err)
	}

	hub := ws.NewHub()
	go hub.Run()

	pipeline := bot.NewPipeline(st, gateway, responder, hub)

	webhookHandler := webhook.NewHandler(pipeline)
	authHandler := api.NewAuthHandler(st, cfg.JWTSecret)
	contactHandler := api.NewContactHandler(st, gateway, hub)
	configHandler := api.NewConfigHandler(st)

	r := gin.Default()

	// CORS Middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Webhook Routes
	r.POST("/api/webhook", webhookHandler.HandleMessage)

	// Real-time event stream
	r.GET("/ws", func(c *gin.Context) {
		hub.ServeWs(c.Writer, c.Request)
	})

	// Auth Routes
	r.POST("/api/auth/register", authHandler.Register)
	r.POST("/api/auth/login", authHandler.Login)

	// CRM Routes (JWT protected)
	apiGroup := r.Group("/api", authHandler.RequireAuth())
	{
		apiGroup.GET("/contacts", contactHandler.GetContacts)
		apiGroup.GET("/contacts/:phone/messages", contactHandler.GetMessages)
		apiGroup.POST("/contacts/:phone/pause", contactHandler.TogglePause)
		apiGroup.POST("/contacts/:phone/send", contactHandler.SendMessage)

		apiGroup.GET("/configs", configHandler.GetAll)
		apiGroup.GET("/configs/:key", configHandler.GetByKey)
		apiGroup.PUT("/configs/:key", configHandler.Update)
	}

	log.Printf("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
