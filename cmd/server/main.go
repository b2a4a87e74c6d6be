package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mindhaven/immerse/internal/authority"
	"github.com/mindhaven/immerse/internal/broadcast"
	"github.com/mindhaven/immerse/internal/config"
	"github.com/mindhaven/immerse/internal/domain"
	"github.com/mindhaven/immerse/internal/logging"
	"github.com/mindhaven/immerse/internal/presentation"
	"github.com/mindhaven/immerse/internal/redis"
	"github.com/mindhaven/immerse/internal/scene"
	"github.com/mindhaven/immerse/internal/server"
)

// stateSource adapts the presentation manager and scene model into the
// broadcaster's snapshot interface.
type stateSource struct {
	presentations *presentation.Manager
	scenes        *scene.Model
}

func (s *stateSource) Snapshot(presentationID uuid.UUID) (broadcast.StateUpdate, error) {
	record, err := s.presentations.Get(presentationID)
	if err != nil {
		return broadcast.StateUpdate{}, err
	}

	update := broadcast.StateUpdate{
		Status:         "running",
		Mode:           record.Mode,
		CameraDegraded: record.CameraDegraded,
	}
	if !s.presentations.IsRunning(presentationID) {
		update.Status = "ended"
	}
	if pose := s.presentations.GetPose(presentationID); pose != nil {
		update.Pose = pose
	}
	if camera, ok := s.presentations.Camera(presentationID); ok {
		update.Camera = &camera
	}
	if stats, ok := s.scenes.StatsForPresentation(presentationID); ok {
		update.Scene = &stats
	}
	return update, nil
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupStores(cfg *config.Config, srvChecks *[]func(*server.Server)) (domain.SessionStore, domain.DeviceStore, func()) {
	if cfg.RedisURL == "" {
		slog.Info("Using in-memory session store (single-instance mode)")
		return authority.NewMemorySessionStore(), authority.NewMemoryDeviceStore(), func() {}
	}

	client, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		slog.Error("Redis ping failed", "error", err)
		os.Exit(1)
	}

	// Safety TTL: comfortably above worst-case record lifetime.
	ttl := cfg.SessionTimeout + cfg.TerminationGrace + 5*time.Minute
	*srvChecks = append(*srvChecks, func(srv *server.Server) {
		srv.AddReadinessCheck("redis", client.Ping)
	})

	slog.Info("Using Redis session store", "ttl", ttl.String())
	cleanup := func() { _ = client.Close() }
	return redis.NewSessionStore(client, ttl), redis.NewDeviceStore(client), cleanup
}

func runGracefulShutdown(srv *server.Server, broadcaster *broadcast.Broadcaster, manager *presentation.Manager, auth *authority.Authority) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		broadcaster.Stop()
		manager.Stop()
		auth.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	var srvChecks []func(*server.Server)
	sessions, devices, closeStores := setupStores(cfg, &srvChecks)
	defer closeStores()

	auth := authority.New(sessions, devices, clock, authority.Config{
		SessionTimeout:        cfg.SessionTimeout,
		MaxConcurrentSessions: cfg.MaxConcurrentSessions,
		TerminationGrace:      cfg.TerminationGrace,
		SweepInterval:         cfg.SweepInterval,
	})

	platform := presentation.NewSimulator(clock)
	manager := presentation.NewManager(platform, auth, clock, presentation.Config{
		FallbackTickInterval: cfg.FallbackTickInterval,
	})

	model := scene.NewModel(auth, clock)

	// Session termination tears down everything the session owns.
	auth.OnTerminate(func(sessionID uuid.UUID) {
		manager.EndForSession(sessionID)
		model.TerminateForSession(sessionID)
	})

	// Hardware tracking samples flow into the scene model.
	manager.SetTrackingSink(model.IngestForPresentation)

	model.RegisterAction("start-breathing-exercise", func(object domain.SpatialObject, event domain.InteractionEvent) {
		slog.Info("Breathing exercise started",
			"object_id", object.ID, "event_id", event.ID)
	})

	source := &stateSource{presentations: manager, scenes: model}
	broadcaster := broadcast.NewBroadcaster(source, clock, cfg.MaxClientsPerSession, cfg.BroadcastTickInterval)

	srv := server.NewServer(cfg, auth, manager, model, broadcaster)
	for _, register := range srvChecks {
		register(srv)
	}

	done := runGracefulShutdown(srv, broadcaster, manager, auth)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
