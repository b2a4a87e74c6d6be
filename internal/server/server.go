package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mindhaven/immerse/internal/broadcast"
	"github.com/mindhaven/immerse/internal/config"
	"github.com/mindhaven/immerse/internal/domain"
	"github.com/mindhaven/immerse/internal/errors"
	"github.com/mindhaven/immerse/internal/presentation"
	"github.com/mindhaven/immerse/internal/scene"
)

// Authority is the slice of the session authority the HTTP facade uses.
type Authority interface {
	Authenticate(ctx context.Context, userID, deviceID string) (*domain.Session, error)
	Validate(ctx context.Context, sessionID uuid.UUID) bool
	HasPermission(ctx context.Context, sessionID uuid.UUID, permission domain.PermissionType) bool
	GrantPermission(ctx context.Context, sessionID uuid.UUID, permission domain.PermissionType, ttl time.Duration) bool
	Terminate(ctx context.Context, sessionID uuid.UUID) error
	Lookup(ctx context.Context, sessionID uuid.UUID) (*domain.Session, domain.SessionStatus)
}

type Server struct {
	echo          *echo.Echo
	config        *config.Config
	authority     Authority
	presentations *presentation.Manager
	scenes        *scene.Model
	broadcaster   *broadcast.Broadcaster
	readiness     []readinessCheck
	startTime     time.Time
}

func NewServer(cfg *config.Config, authority Authority, presentations *presentation.Manager, scenes *scene.Model, broadcaster *broadcast.Broadcaster) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(errors.Middleware())

	srv := &Server{
		echo:          e,
		config:        cfg,
		authority:     authority,
		presentations: presentations,
		scenes:        scenes,
		broadcaster:   broadcaster,
		startTime:     time.Now(),
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
