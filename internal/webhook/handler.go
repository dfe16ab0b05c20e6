package webhook

import (
	"context"
	"log"
	"net/http"

	"leadbot-gateway/internal/bot"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Pipeline *bot.Pipeline
}

func NewHandler(pipeline *bot.Pipeline) *Handler {
	return &Handler{Pipeline: pipeline}
}

// HandleMessage receives Z-API webhook deliveries. It always acknowledges
// with 200: a non-2xx answer makes the platform redeliver the same event,
// compounding duplication. Processing happens asynchronously and logs its
// own failures.
func (h *Handler) HandleMessage(c *gin.Context) {
	var payload bot.Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.Printf("Ignoring malformed webhook payload: %v", err)
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Webhook received"})
		return
	}

	go h.Pipeline.HandleEvent(context.Background(), &payload)

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Webhook received"})
}
