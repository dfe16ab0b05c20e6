package api

import (
	"net/http"

	"leadbot-gateway/internal/store"

	"github.com/gin-gonic/gin"
)

type ConfigHandler struct {
	Store *store.Store
}

func NewConfigHandler(st *store.Store) *ConfigHandler {
	return &ConfigHandler{Store: st}
}

func (h *ConfigHandler) GetAll(c *gin.Context) {
	configs, err := h.Store.Configs()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch configurations"})
		return
	}
	c.JSON(http.StatusOK, configs)
}

func (h *ConfigHandler) GetByKey(c *gin.Context) {
	key := c.Param("key")
	cfg, err := h.Store.ConfigByKey(key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Config not found"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

type UpdateConfigRequest struct {
	Value string `json:"value" binding:"required"`
}

func (h *ConfigHandler) Update(c *gin.Context) {
	key := c.Param("key")
	var req UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := h.Store.UpsertConfig(key, req.Value)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update configuration"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}
