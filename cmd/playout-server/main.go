package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mediacastd/playout-server/internal/config"
	"github.com/mediacastd/playout-server/internal/domain/channel"
	"github.com/mediacastd/playout-server/internal/engine"
	"github.com/mediacastd/playout-server/internal/events"
	httpapi "github.com/mediacastd/playout-server/internal/http"
	"github.com/mediacastd/playout-server/internal/metrics"
	"github.com/mediacastd/playout-server/internal/redis"
	"github.com/mediacastd/playout-server/internal/upload"
)

func init() {
	// Handle version display
	handleVersion()
}

func main() {
	// Read env
	isDev := os.Getenv("ENV") == "dev"

	// Load config
	cfg, err := config.Load(configPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Create Zap logger
	log := buildLogger()
	defer log.Sync()
	log = log.Named("main")

	if err := cfg.EnsureDirs(); err != nil {
		log.Fatal("media directories unavailable", zap.Error(err))
	}

	// Redis-backed persistence
	rdb := redis.NewClient(cfg.Redis.Addr, cfg.Redis.DB, log)
	store := redis.NewStateRepository(log, rdb)

	// Event fan-out
	hub := events.NewHub(log)

	// Multicast address plan
	alloc, err := engine.NewAllocator(cfg.Streaming.MulticastBase, cfg.Streaming.MulticastPort, cfg.Streaming.MaxChannels)
	if err != nil {
		log.Fatal("invalid streaming config", zap.Error(err))
	}

	defaults, err := channel.Validate(channel.Settings{
		Codec:        cfg.Transcode.Codec,
		Preset:       cfg.Transcode.Preset,
		Resolution:   cfg.Transcode.Resolution,
		FPS:          cfg.Transcode.FPS,
		VideoBitrate: cfg.Transcode.VideoBitrate,
		AudioBitrate: cfg.Transcode.AudioBitrate,
		Encap:        channel.Encap(cfg.Streaming.DefaultEncap),
		Loop:         cfg.Streaming.DefaultLoop,
	})
	if err != nil {
		log.Fatal("invalid transcode config", zap.Error(err))
	}

	mgr := engine.NewManager(engine.Params{
		Log:       log,
		Notifier:  hub,
		Allocator: alloc,
		Tools: engine.Toolchain{
			FFmpeg:  cfg.Streaming.FFmpegPath,
			FFprobe: cfg.Streaming.FFprobePath,
		},
		Store:         store,
		TranscodedDir: cfg.TranscodedDir(),
		ThumbnailsDir: cfg.ThumbnailsDir(),
		Defaults:      defaults,
		Global: channel.GlobalSettings{
			Bitrate:   cfg.Streaming.DefaultBitrate,
			NIC:       cfg.Streaming.SelectedNIC,
			MediaPath: cfg.Streaming.MediaPath,
			AutoStart: cfg.Streaming.AutoStart,
		},
		GlobalTranscode: defaults,
	})

	// Rehydrate the pool from the last run
	if err := mgr.Restore(context.Background()); err != nil {
		log.Warn("state restore failed, starting with an empty pool", zap.Error(err))
	}

	// Host metrics, pushed over the event stream
	sampler := metrics.NewSampler(log, 2*time.Second, func(s metrics.Sample) {
		hub.PublishMetrics(s)
	})
	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	go sampler.Run(metricsCtx)

	uploads := upload.NewService(log, cfg.OriginalsDir(), cfg.ThumbnailsDir(),
		cfg.Streaming.FFmpegPath, cfg.Streaming.FFprobePath)

	r := httpapi.NewRouter(httpapi.RouterParams{
		Log:     log,
		Dev:     isDev,
		Manager: mgr,
		Uploads: uploads,
		Hub:     hub,
		Sampler: sampler,
		MaxBody: cfg.Server.MaxUploadGB << 30,
	})

	httpsrv := &http.Server{
		Addr:              cfg.Server.Addr + ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 2 * time.Second, // kills header-drip Slowloris
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB cap
	}

	go func() {
		log.Info("running HTTP server", zap.String("addr", httpsrv.Addr))
		if err := httpsrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	if cfg.Streaming.AutoStart {
		go func() {
			results := mgr.StartAll(true)
			started := 0
			for _, r := range results {
				if r.Err == nil {
					started++
				}
			}
			log.Info("auto-start finished", zap.Int("started", started))
		}()
	}

	// Block until asked to stop, then drain: streams and jobs first so
	// no encoder outlives the server, HTTP last.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", zap.String("signal", sig.String()))

	stopMetrics()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	mgr.Shutdown(shutdownCtx)

	if err := httpsrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", zap.Error(err))
	}
	hub.Close()
	if err := rdb.Close(); err != nil {
		log.Warn("redis close failed", zap.Error(err))
	}
	log.Info("server closed")
}

// handleVersion prints build metadata and exits when -v/--version is provided.
func handleVersion() {
	v := flag.Bool("v", false, "print version and exit")
	flag.BoolVar(v, "version", false, "print version and exit")
	flag.Parse()

	if *v {
		fmt.Printf("playout-server %s (commit %s, built %s)\n", config.Version, config.GitCommit, config.BuildDate)
		os.Exit(0)
	}
}

func configPath() string {
	if p := os.Getenv("PLAYOUT_CONFIG"); p != "" {
		return p
	}
	return "playout-server.yaml"
}

// helpers

func buildLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	logConfig.Level.SetLevel(zap.DebugLevel)
	return zap.Must(logConfig.Build())
}
