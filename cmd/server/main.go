package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/campushub/meetcore/internal/adapters/auth"
	"github.com/campushub/meetcore/internal/adapters/bus"
	router "github.com/campushub/meetcore/internal/adapters/http"
	"github.com/campushub/meetcore/internal/adapters/presence"
	signalws "github.com/campushub/meetcore/internal/adapters/signal"
	"github.com/campushub/meetcore/internal/app"
	"github.com/campushub/meetcore/internal/app/media"
	"github.com/campushub/meetcore/internal/app/messaging"
	"github.com/campushub/meetcore/internal/app/rooms"
	"github.com/campushub/meetcore/internal/app/sfu"
	"github.com/campushub/meetcore/internal/config"
	"github.com/campushub/meetcore/internal/core"
	"github.com/campushub/meetcore/internal/repository"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.AuthSecret == "" {
		log.Fatal().Msg("auth_secret is required")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	log.Info().Str("instance", instanceID).Msg("meetcore starting")

	// Shared state lives in Redis when configured; the in-process fallbacks
	// are only correct for a single instance.
	var (
		presenceStore core.PresenceStore
		eventBus      core.EventBus
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Str("addr", cfg.Redis.Addr).Err(err).Msg("redis unreachable")
		}
		presenceStore = presence.NewRedisStore(rdb)
		eventBus = bus.NewRedisBus(rdb, instanceID)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")
	} else {
		log.Warn().Msg("no redis configured, presence and fan-out are process-local")
		presenceStore = presence.NewMemoryStore()
		eventBus = bus.NewNopBus()
	}

	var store *repository.Store
	if cfg.Database.DSN != "" {
		db, err := repository.OpenPostgres(cfg.Database.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres unreachable")
		}
		store = repository.NewPostgresStore(db)
		log.Info().Msg("postgres connected")
	} else {
		log.Warn().Msg("no database configured, records are process-local")
		store = repository.NewMemoryStore()
	}

	// A failed engine never blocks startup: rooms and chat keep working in
	// degraded mode, media calls are rejected.
	var engine core.MediaEngine
	if cfg.SFU.Enabled {
		eng, err := sfu.NewEngine(cfg.SFU.Workers, cfg.SFU.STUNServers)
		if err != nil {
			log.Error().Err(err).Msg("sfu engine init failed, media disabled")
		} else {
			engine = eng
			log.Info().Int("workers", eng.Workers()).Msg("sfu engine up")
		}
	}

	reg := app.NewRegistry()
	bc := app.NewBroadcaster(reg, eventBus)
	orchestrator := media.NewOrchestrator(engine)
	manager := rooms.NewManager(store, presenceStore, orchestrator, bc, reg)
	queue := messaging.NewOfflineQueue(cfg.Limits.QueueCap)
	delivery := messaging.NewDelivery(reg, bc, presenceStore, queue, store, manager)
	limiter := messaging.NewLimiter(map[string]messaging.Limit{
		core.EvSendMessage:   {Max: cfg.Limits.ChatMax, Window: cfg.Limits.ChatWindow},
		core.EvTyping:        {Max: cfg.Limits.TelemetryMax, Window: cfg.Limits.TelemetryWindow},
		core.EvQualityReport: {Max: cfg.Limits.TelemetryMax, Window: cfg.Limits.TelemetryWindow},
	})
	verifier := auth.NewHMACVerifier(cfg.AuthSecret)

	if err := eventBus.Subscribe(ctx, bc.HandleEnvelope); err != nil {
		log.Error().Err(err).Msg("bus subscribe failed, cross-instance fan-out disabled")
	}

	ctl := signalws.NewController(ctx, verifier, reg, manager, orchestrator, delivery, limiter, presenceStore, instanceID)
	h := router.NewHandler(store, manager, orchestrator, delivery)
	r := router.SetupRouter(cfg, verifier, h, ctl)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("meetcore server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	orchestrator.Close()
	if err := eventBus.Close(); err != nil {
		log.Warn().Err(err).Msg("bus close failed")
	}
	log.Info().Msg("Server exited gracefully")
}
