package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apirest "github.com/kasuganosora/stalker/api/rest"
	"github.com/kasuganosora/stalker/api/sse"
	"github.com/kasuganosora/stalker/audit"
	"github.com/kasuganosora/stalker/cache"
	"github.com/kasuganosora/stalker/config"
	dbadapter "github.com/kasuganosora/stalker/db"
	"github.com/kasuganosora/stalker/game/brain"
	"github.com/kasuganosora/stalker/game/save"
	"github.com/kasuganosora/stalker/game/spatial"
	"github.com/kasuganosora/stalker/game/world"
	mw "github.com/kasuganosora/stalker/middleware"
	"github.com/kasuganosora/stalker/model"
	"github.com/kasuganosora/stalker/resource"
	"github.com/kasuganosora/stalker/scheduler"
	"github.com/kasuganosora/stalker/telemetry"
)

func autosaveSlot(agentID string) string { return "autosave-" + agentID }

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	c, err := cache.NewCache(cfg.Cache)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cfg.Cache)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	store := save.NewStore(db, c, cfg.Engine.SnapshotTTL, logger)

	var level *resource.Level
	if cfg.Engine.Level != "" {
		if level, err = resource.LoadLevel(cfg.Engine.Level); err != nil {
			log.Fatalf("level: %v", err)
		}
		logger.Info("Level loaded",
			zap.String("name", level.Name),
			zap.Int("cols", level.Cols),
			zap.Int("rows", level.Rows))
	} else {
		logger.Warn("engine.level is not set; agents run in an open field")
	}

	var recorder *telemetry.Recorder
	if cfg.Telemetry.Enabled {
		if recorder, err = telemetry.NewRecorder(cfg.Telemetry.Dir, cfg.Telemetry.SampleEvery); err != nil {
			log.Fatalf("telemetry: %v", err)
		}
		defer recorder.Close()
		if err := recorder.WriteConfig(cfg); err != nil {
			logger.Warn("telemetry config dump failed", zap.Error(err))
		}
	}

	publisher := world.NewPubSubSink(pubsub, logger)
	var spawned atomic.Int64
	build := func(id string) (world.Options, error) {
		i := int(spawned.Add(1) - 1)
		opts := world.Options{
			World:     cfg.Engine.World,
			Agent:     cfg.Agent,
			Director:  cfg.Director,
			Seed:      cfg.Engine.Seed + int64(i),
			Publisher: publisher,
			Logger:    logger,
		}
		if level != nil {
			g := level.Grid()
			opts.Space = g
			opts.Occluders = g.Occluders()
			opts.Spawn = level.AgentSpawn(i)
			opts.Target = level.TargetSpawn(i)
		} else {
			opts.Occluders = spatial.NewOccluders()
		}
		if recorder != nil {
			opts.Observers = append(opts.Observers, recorder)
		}
		loadCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		opts.State, _ = store.LoadOr(loadCtx, autosaveSlot(id), func() *brain.State { return nil })
		return opts, nil
	}

	wm := world.NewWorldManager(build, logger)
	defer wm.StopAll()
	for _, id := range cfg.Engine.Agents {
		if _, err := wm.Spawn(id); err != nil {
			log.Fatalf("spawn %s: %v", id, err)
		}
	}

	sched := scheduler.New(logger)
	defer sched.Stop()

	if cfg.Engine.AutosaveInterval > 0 {
		hold := cfg.Engine.AutosaveInterval / 2
		sched.AddTicker("autosave", cfg.Engine.AutosaveInterval, func(ctx context.Context) error {
			var errs []error
			for _, snap := range wm.Snapshots() {
				if _, err := store.Autosave(ctx, autosaveSlot(snap.AgentID), snap.AgentID, snap.State, hold); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		})
	}
	if recorder != nil && cfg.Telemetry.FlushInterval > 0 {
		sched.AddTicker("telemetry_flush", cfg.Telemetry.FlushInterval, func(context.Context) error {
			return recorder.Flush()
		})
	}

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))

	r.GET("/health", apirest.Health(wm))

	agentH := apirest.NewAgentHandler(wm, store, auditSvc, logger)
	adminH := apirest.NewAdminHandler(db, wm, sched, logger)

	api := r.Group("/api")
	api.Use(mw.RateLimit(ctx, rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))
	agentH.Register(api)
	adminH.Register(api.Group("/admin", mw.AdminKey(cfg.Server.AdminKey)))

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, wm, logger)
	r.GET("/sse/agents/:id", mw.AllowOrigins(cfg.Security.AllowedOrigins), sseH.ServeAgent)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
	}()

	logger.Info("Server listening", zap.String("addr", addr), zap.Int("agents", wm.Count()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server: %v", err)
	}

	// Final save so the next boot resumes here.
	snaps := wm.Snapshots()
	wm.StopAll()
	for _, snap := range snaps {
		if err := store.Save(context.Background(), autosaveSlot(snap.AgentID), snap.AgentID, snap.State); err != nil {
			logger.Error("final save failed", zap.String("agent_id", snap.AgentID), zap.Error(err))
		}
	}
}
