package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mediacastd/playout-server/internal/domain/channel"
	"github.com/mediacastd/playout-server/internal/engine"
	mw "github.com/mediacastd/playout-server/internal/http/middleware"
	"github.com/mediacastd/playout-server/internal/upload"
)

// ChannelsHandler serves the per-channel control endpoints.
type ChannelsHandler struct {
	log     *zap.Logger
	mgr     *engine.Manager
	uploads *upload.Service
}

// NewChannelsHandler constructs a ChannelsHandler instance.
func NewChannelsHandler(log *zap.Logger, mgr *engine.Manager, uploads *upload.Service) *ChannelsHandler {
	return &ChannelsHandler{
		log:     log.Named("channels"),
		mgr:     mgr,
		uploads: uploads,
	}
}

// settingsPatch is a partial settings update; absent fields keep their
// current values.
type settingsPatch struct {
	Codec        *string `json:"codec"`
	Preset       *string `json:"preset"`
	Resolution   *string `json:"resolution"`
	FPS          *string `json:"fps"`
	VideoBitrate *string `json:"vbitrate"`
	AudioBitrate *string `json:"abitrate"`
	Encap        *string `json:"encap"`
	Loop         *bool   `json:"loop"`
	NIC          *string `json:"nic"`
}

func (p *settingsPatch) applyTo(s channel.Settings) channel.Settings {
	if p.Codec != nil {
		s.Codec = *p.Codec
	}
	if p.Preset != nil {
		s.Preset = *p.Preset
	}
	if p.Resolution != nil {
		s.Resolution = *p.Resolution
	}
	if p.FPS != nil {
		s.FPS = *p.FPS
	}
	if p.VideoBitrate != nil {
		s.VideoBitrate = *p.VideoBitrate
	}
	if p.AudioBitrate != nil {
		s.AudioBitrate = *p.AudioBitrate
	}
	if p.Encap != nil {
		s.Encap = channel.Encap(*p.Encap)
	}
	if p.Loop != nil {
		s.Loop = *p.Loop
	}
	if p.NIC != nil {
		s.NIC = *p.NIC
	}
	return s
}

// GetChannel returns one channel's snapshot.
func (h *ChannelsHandler) GetChannel(c *gin.Context) {
	snap, err := h.mgr.Snapshot(mw.ChannelID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Upload receives source media and kicks off the thumbnail and
// transcode pipeline. The response returns as soon as the file is on
// disk; progress arrives over the event stream.
func (h *ChannelsHandler) Upload(c *gin.Context) {
	id := mw.ChannelID(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing file field"})
		return
	}
	defer file.Close()

	path, reused, err := h.uploads.SaveOriginal(id, header.Filename, file)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.mgr.AddChannel(id, path, header.Filename); err != nil {
		respondError(c, err)
		return
	}

	profile := h.mgr.GlobalTranscode()
	go func() {
		h.uploads.GenerateThumbnail(context.Background(), path, id)
		if profile.Codec != "copy" {
			if err := h.mgr.StartTranscode(context.Background(), id, profile); err != nil {
				h.log.Warn("auto transcode not started", zap.Int("channel", id), zap.Error(err))
			}
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"filename": header.Filename,
		"path":     path,
		"reused":   reused,
	})
}

// StartStream launches the channel's multicast output.
func (h *ChannelsHandler) StartStream(c *gin.Context) {
	var req struct {
		UseTranscoded *bool `json:"use_transcoded"`
	}
	_ = c.ShouldBindJSON(&req) // empty body means defaults

	useTranscoded := true
	if req.UseTranscoded != nil {
		useTranscoded = *req.UseTranscoded
	}

	id := mw.ChannelID(c)
	if err := h.mgr.StartStream(id, useTranscoded); err != nil {
		respondError(c, err)
		return
	}

	snap, _ := h.mgr.Snapshot(id)
	c.JSON(http.StatusOK, snap)
}

// StopStream tears the channel's stream down.
func (h *ChannelsHandler) StopStream(c *gin.Context) {
	id := mw.ChannelID(c)
	if err := h.mgr.StopStream(id); err != nil {
		respondError(c, err)
		return
	}

	snap, _ := h.mgr.Snapshot(id)
	c.JSON(http.StatusOK, snap)
}

// StartAll starts every eligible channel, reporting per-channel results.
func (h *ChannelsHandler) StartAll(c *gin.Context) {
	c.JSON(http.StatusOK, bulkResponse(h.mgr.StartAll(true)))
}

// StopAll stops every streaming channel.
func (h *ChannelsHandler) StopAll(c *gin.Context) {
	c.JSON(http.StatusOK, bulkResponse(h.mgr.StopAll()))
}

// Transcode starts a transcode with the global profile plus any
// overrides from the request body.
func (h *ChannelsHandler) Transcode(c *gin.Context) {
	var patch settingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil && !errors.Is(err, io.EOF) {
		c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	id := mw.ChannelID(c)
	settings := patch.applyTo(h.mgr.GlobalTranscode())
	if err := h.mgr.StartTranscode(c.Request.Context(), id, settings); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"channel": id})
}

// CancelTranscode aborts the in-flight transcode.
func (h *ChannelsHandler) CancelTranscode(c *gin.Context) {
	id := mw.ChannelID(c)
	if err := h.mgr.CancelTranscode(id); err != nil {
		respondError(c, err)
		return
	}

	snap, _ := h.mgr.Snapshot(id)
	c.JSON(http.StatusOK, snap)
}

// Remove deletes the channel's media and resets the slot.
func (h *ChannelsHandler) Remove(c *gin.Context) {
	id := mw.ChannelID(c)
	if err := h.mgr.RemoveChannel(id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": id})
}

// UpdateSettings patches the channel's settings. A running stream keeps
// its launch-time parameters until restarted.
func (h *ChannelsHandler) UpdateSettings(c *gin.Context) {
	var patch settingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	id := mw.ChannelID(c)
	snap, err := h.mgr.Snapshot(id)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.mgr.UpdateSettings(id, patch.applyTo(snap.Settings)); err != nil {
		respondError(c, err)
		return
	}

	snap, _ = h.mgr.Snapshot(id)
	c.JSON(http.StatusOK, snap)
}

// Thumbnail serves the channel's thumbnail JPEG.
func (h *ChannelsHandler) Thumbnail(c *gin.Context) {
	path := h.uploads.ThumbnailPath(mw.ChannelID(c))
	if _, err := os.Stat(path); err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	c.File(path)
}

// Logs returns the channel's recent subprocess output, newest first.
func (h *ChannelsHandler) Logs(c *gin.Context) {
	n := 100
	if raw := c.Query("n"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			n = v
		}
	}

	lines, err := h.mgr.ChannelLogs(mw.ChannelID(c), n)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lines": lines})
}

// bulkResponse summarizes a bulk operation's per-channel outcomes.
func bulkResponse(results []engine.ChannelResult) gin.H {
	started := 0
	failures := map[string]string{}
	for _, r := range results {
		if r.Err == nil {
			started++
		} else {
			failures[strconv.Itoa(r.ID)] = r.Err.Error()
		}
	}
	return gin.H{"ok": started, "failed": failures}
}
