package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mediacastd/playout-server/internal/config"
	"github.com/mediacastd/playout-server/internal/domain/channel"
	"github.com/mediacastd/playout-server/internal/engine"
)

// SettingsHandler serves server-wide state: the status aggregate, the
// global streaming settings and the default transcode profile.
type SettingsHandler struct {
	log *zap.Logger
	mgr *engine.Manager
}

// NewSettingsHandler constructs a SettingsHandler instance.
func NewSettingsHandler(log *zap.Logger, mgr *engine.Manager) *SettingsHandler {
	return &SettingsHandler{
		log: log.Named("settings"),
		mgr: mgr,
	}
}

// Status returns the full server view in one response: every channel
// snapshot plus the global settings. The UI re-syncs from here after a
// reconnect.
func (h *SettingsHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"channels":  h.mgr.Snapshots(),
		"global":    h.mgr.GlobalSettings(),
		"transcode": h.mgr.GlobalTranscode(),
		"version":   config.Version,
	})
}

// GetGlobal returns the global streaming settings.
func (h *SettingsHandler) GetGlobal(c *gin.Context) {
	c.JSON(http.StatusOK, h.mgr.GlobalSettings())
}

// UpdateGlobal replaces the global streaming settings.
func (h *SettingsHandler) UpdateGlobal(c *gin.Context) {
	var req channel.GlobalSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	if err := h.mgr.UpdateGlobalSettings(req); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.mgr.GlobalSettings())
}

// GetTranscodeProfile returns the default transcode profile.
func (h *SettingsHandler) GetTranscodeProfile(c *gin.Context) {
	c.JSON(http.StatusOK, h.mgr.GlobalTranscode())
}

// UpdateTranscodeProfile patches the default transcode profile.
func (h *SettingsHandler) UpdateTranscodeProfile(c *gin.Context) {
	var patch settingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	if err := h.mgr.UpdateGlobalTranscode(patch.applyTo(h.mgr.GlobalTranscode())); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.mgr.GlobalTranscode())
}

// BitratePresets returns the selectable stream bitrate values.
func (h *SettingsHandler) BitratePresets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"bitrates": channel.BitratePresets})
}
