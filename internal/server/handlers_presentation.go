package server

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/mindhaven/immerse/internal/domain"
	apperrors "github.com/mindhaven/immerse/internal/errors"
	"github.com/mindhaven/immerse/internal/presentation"
)

func (s *Server) handleProbeCapability(c echo.Context) error {
	caps := s.presentations.ProbeCapability(c.Request().Context())
	if err := c.JSON(200, caps); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type startPresentationRequest struct {
	SessionID     string                  `json:"session_id"`
	EnvironmentID string                  `json:"environment_id"`
	Kind          domain.PresentationKind `json:"kind"`
}

func (s *Server) handleStartPresentation(c echo.Context) error {
	var req startPresentationRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.EnvironmentID == "" {
		return apperrors.ValidationError("environment_id is required")
	}

	sessionID, err := parseUUIDField(req.SessionID, "session_id")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	if !s.authority.Validate(ctx, sessionID) {
		return apperrors.NotFoundError("no active session").WithContext("session_id", sessionID.String())
	}

	record, err := s.presentations.StartSession(ctx, sessionID, req.EnvironmentID, req.Kind)
	if err != nil {
		return err
	}

	if err := c.JSON(201, record); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetPresentation(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	record, err := s.presentations.Get(id)
	if err != nil {
		return err
	}
	if err := c.JSON(200, record); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleEndPresentation(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	if err := s.presentations.EndSession(c.Request().Context(), id); err != nil {
		return err
	}
	if err := c.JSON(200, map[string]string{"status": "ended"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetPose(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	// Pose is hardware mode only; fallback sessions answer with the orbit
	// camera instead.
	pose := s.presentations.GetPose(id)
	camera, hasCamera := s.presentations.Camera(id)

	if pose == nil && !hasCamera {
		if _, err := s.presentations.Get(id); err != nil {
			return err
		}
	}

	response := map[string]any{}
	if pose != nil {
		response["pose"] = pose
	}
	if hasCamera {
		response["camera"] = camera
	}
	if err := c.JSON(200, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type cameraDragRequest struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

func (s *Server) handleCameraDrag(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req cameraDragRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	if err := s.presentations.PointerDrag(id, req.DX, req.DY); err != nil {
		return err
	}
	return s.respondCamera(c, id)
}

type cameraKeyRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleCameraKey(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req cameraKeyRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	key, ok := cameraKeys[req.Key]
	if !ok {
		return apperrors.ValidationError("unknown camera key").WithContext("key", req.Key)
	}

	if err := s.presentations.KeyNudge(id, key); err != nil {
		return err
	}
	return s.respondCamera(c, id)
}

type cameraScrollRequest struct {
	Delta float64 `json:"delta"`
}

func (s *Server) handleCameraScroll(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req cameraScrollRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	if err := s.presentations.Scroll(id, req.Delta); err != nil {
		return err
	}
	return s.respondCamera(c, id)
}

var cameraKeys = map[string]presentation.CameraKey{
	"left":     presentation.KeyLeft,
	"right":    presentation.KeyRight,
	"up":       presentation.KeyUp,
	"down":     presentation.KeyDown,
	"zoom-in":  presentation.KeyZoomIn,
	"zoom-out": presentation.KeyZoomOut,
}

func (s *Server) respondCamera(c echo.Context, id uuid.UUID) error {
	camera, ok := s.presentations.Camera(id)
	if !ok {
		return apperrors.NotFoundError("no fallback camera").WithContext("presentation_id", id.String())
	}
	if err := c.JSON(200, camera); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func parseUUIDField(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.ValidationError("invalid UUID format").WithContext(field, raw)
	}
	return id, nil
}
