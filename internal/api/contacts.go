package api

import (
	"log"
	"net/http"

	"leadbot-gateway/internal/bot"
	"leadbot-gateway/internal/store"

	"github.com/gin-gonic/gin"
)

type ContactHandler struct {
	Store    *store.Store
	Gateway  bot.Gateway
	Notifier bot.Notifier
}

func NewContactHandler(st *store.Store, gw bot.Gateway, notifier bot.Notifier) *ContactHandler {
	return &ContactHandler{Store: st, Gateway: gw, Notifier: notifier}
}

func (h *ContactHandler) GetContacts(c *gin.Context) {
	contacts, err := h.Store.Contacts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, contacts)
}

func (h *ContactHandler) GetMessages(c *gin.Context) {
	phone := c.Param("phone")
	contact, err := h.Store.ContactByPhone(phone)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
		return
	}

	messages, err := h.Store.MessagesByContact(contact.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, messages)
}

type PauseRequest struct {
	Paused *bool `json:"paused" binding:"required"`
}

// TogglePause flips manual takeover for a contact: while paused, inbound
// messages are persisted and echoed to observers but the bot never replies.
func (h *ContactHandler) TogglePause(c *gin.Context) {
	phone := c.Param("phone")
	var req PauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contact, err := h.Store.ContactByPhone(phone)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
		return
	}

	if err := h.Store.SetPaused(contact.ID, *req.Paused); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update contact"})
		return
	}

	contact.IsBotPaused = *req.Paused
	c.JSON(http.StatusOK, contact)
}

type SendRequest struct {
	Message string `json:"message" binding:"required"`
}

// SendMessage lets an operator answer a contact manually. The message is
// sent first; only a delivered message is appended to the log.
func (h *ContactHandler) SendMessage(c *gin.Context) {
	phone := c.Param("phone")
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contact, err := h.Store.ContactByPhone(phone)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contact not found"})
		return
	}

	if err := h.Gateway.SendText(phone, req.Message); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message: " + err.Error()})
		return
	}

	message, err := h.Store.AppendMessage(contact.ID, req.Message, true)
	if err != nil {
		log.Printf("Error saving manual message for %s: %v", phone, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Message sent but not recorded"})
		return
	}
	h.Notifier.Emit("message_sent", bot.MessageEvent{Contact: contact, Message: message})

	c.JSON(http.StatusOK, message)
}
