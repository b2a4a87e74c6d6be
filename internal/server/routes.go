package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Session authority
	s.echo.POST("/api/sessions", s.handleAuthenticate)
	s.echo.GET("/api/sessions/:id", s.handleGetSession)
	s.echo.POST("/api/sessions/:id/validate", s.handleValidateSession)
	s.echo.POST("/api/sessions/:id/permissions", s.handleGrantPermission)
	s.echo.GET("/api/sessions/:id/permissions/:permission", s.handleCheckPermission)
	s.echo.DELETE("/api/sessions/:id", s.handleTerminateSession)

	// Presentation loop
	s.echo.GET("/api/capability", s.handleProbeCapability)
	s.echo.POST("/api/presentations", s.handleStartPresentation)
	s.echo.GET("/api/presentations/:id", s.handleGetPresentation)
	s.echo.DELETE("/api/presentations/:id", s.handleEndPresentation)
	s.echo.GET("/api/presentations/:id/pose", s.handleGetPose)
	s.echo.POST("/api/presentations/:id/camera/drag", s.handleCameraDrag)
	s.echo.POST("/api/presentations/:id/camera/key", s.handleCameraKey)
	s.echo.POST("/api/presentations/:id/camera/scroll", s.handleCameraScroll)

	// Spatial scene model
	s.echo.POST("/api/scenes", s.handleInitializeScene)
	s.echo.GET("/api/scenes/:id", s.handleGetScene)
	s.echo.GET("/api/scenes/:id/stats", s.handleSceneStats)
	s.echo.DELETE("/api/scenes/:id", s.handleTerminateScene)
	s.echo.POST("/api/scenes/:id/layers", s.handleAddLayer)
	s.echo.PUT("/api/scenes/:id/layers/:layerID", s.handleUpdateLayer)
	s.echo.POST("/api/scenes/:id/objects", s.handleAddObject)
	s.echo.PATCH("/api/scenes/:id/objects/:objectID", s.handleUpdateObject)
	s.echo.DELETE("/api/scenes/:id/objects/:objectID", s.handleRemoveObject)
	s.echo.GET("/api/scenes/:id/view", s.handleObjectsInView)
	s.echo.POST("/api/scenes/:id/tracking", s.handleIngestTracking)
	s.echo.GET("/api/scenes/:id/tracking", s.handleGetTracking)
	s.echo.POST("/api/scenes/:id/interactions", s.handleDispatchInteraction)
	s.echo.GET("/api/scenes/:id/interactions", s.handleInteractionHistory)

	// Live state stream
	s.echo.GET("/ws/presentations/:id", s.handlePresentationSocket)
}
