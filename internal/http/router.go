// Package http assembles the Gin router for the playout control API.
package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mediacastd/playout-server/internal/engine"
	"github.com/mediacastd/playout-server/internal/events"
	"github.com/mediacastd/playout-server/internal/http/handlers"
	mw "github.com/mediacastd/playout-server/internal/http/middleware"
	"github.com/mediacastd/playout-server/internal/metrics"
	"github.com/mediacastd/playout-server/internal/upload"
)

// RouterParams carries the router's collaborators.
type RouterParams struct {
	Log     *zap.Logger
	Dev     bool
	Manager *engine.Manager
	Uploads *upload.Service
	Hub     *events.Hub
	Sampler *metrics.Sampler
	MaxBody int64 // upload size cap in bytes
}

// NewRouter builds the Gin engine with the full middleware chain and
// every API route registered.
func NewRouter(p RouterParams) *gin.Engine {
	log := p.Log.Named("http")

	if !p.Dev {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = zap.NewStdLog(log.Named("gin")).Writer()
	r := gin.New()

	maxBody := p.MaxBody
	if maxBody <= 0 {
		maxBody = 8 << 30 // media uploads are large
	}

	{
		r.Use(gin.Recovery())
		r.Use(mw.RequestID()) // early so every downstream log line can carry it

		if p.Dev { // CORS for the local Vite dev server
			r.Use(cors.New(cors.Config{
				AllowOrigins:     []string{"http://localhost:5173", "http://localhost:4173", "http://localhost:3000", "http://127.0.0.1:3000"},
				AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowHeaders:     []string{"X-Request-ID", "Content-Type"},
				ExposeHeaders:    []string{"X-Request-ID", "X-Total-Count"},
				AllowCredentials: true,
				MaxAge:           12 * time.Hour,
			}))
		}

		r.Use(accessLog(log))

		r.Use(func(c *gin.Context) {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
			c.Next()
		})
	}

	{
		r.GET("/api/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })

		channelshndlr := handlers.NewChannelsHandler(log, p.Manager, p.Uploads)
		settingshndlr := handlers.NewSettingsHandler(log, p.Manager)
		systemhndlr := handlers.NewSystemHandler(log, p.Sampler)

		requireValidID := mw.RequireValidChannelID(p.Manager.MaxChannels())

		// --- Channel resource ---
		r.GET("/api/channels/:id", requireValidID, channelshndlr.GetChannel)
		r.POST("/api/channels/:id/upload", requireValidID, channelshndlr.Upload)
		r.POST("/api/channels/:id/start", requireValidID, channelshndlr.StartStream)
		r.POST("/api/channels/:id/stop", requireValidID, channelshndlr.StopStream)
		r.POST("/api/channels/:id/transcode", requireValidID, channelshndlr.Transcode)
		r.POST("/api/channels/:id/transcode/cancel", requireValidID, channelshndlr.CancelTranscode)
		r.PATCH("/api/channels/:id/settings", requireValidID, channelshndlr.UpdateSettings)
		r.DELETE("/api/channels/:id", requireValidID, channelshndlr.Remove)
		r.GET("/api/channels/:id/logs", requireValidID, channelshndlr.Logs)
		r.GET("/api/thumbnail/:id", requireValidID, channelshndlr.Thumbnail)

		// --- Bulk operations ---
		r.POST("/api/start_all", channelshndlr.StartAll)
		r.POST("/api/stop_all", channelshndlr.StopAll)

		// --- Server views & settings ---
		r.GET("/api/status", settingshndlr.Status)
		r.GET("/api/settings/global", settingshndlr.GetGlobal)
		r.PUT("/api/settings/global", settingshndlr.UpdateGlobal)
		r.GET("/api/settings/transcode", settingshndlr.GetTranscodeProfile)
		r.PUT("/api/settings/transcode", settingshndlr.UpdateTranscodeProfile)
		r.GET("/api/settings/bitrates", settingshndlr.BitratePresets)

		// --- System ---
		r.GET("/api/system/net/localaddrs", systemhndlr.GetNICs)
		r.GET("/api/system/metrics", systemhndlr.GetMetrics)

		// --- Events ---
		r.GET("/api/ws", p.Hub.HandleWebSocket)
	}

	return r
}

// accessLog records HTTP request/response details with Zap after handling.
func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", latency),
			zap.String("request_id", mw.GetRequestID(c)),
		}
		if len(c.Errors) > 0 {
			errs := make([]error, 0, len(c.Errors))
			for _, ge := range c.Errors {
				errs = append(errs, ge.Err)
			}
			fields = append(fields, zap.Error(errors.Join(errs...)))
		}

		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
