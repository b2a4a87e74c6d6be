package server

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/mindhaven/immerse/internal/domain"
	apperrors "github.com/mindhaven/immerse/internal/errors"
)

func parseID(c echo.Context, param string) (uuid.UUID, error) {
	raw := c.Param(param)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.ValidationError("invalid UUID format").WithContext(param, raw)
	}
	return id, nil
}

type authenticateRequest struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
}

func (s *Server) handleAuthenticate(c echo.Context) error {
	var req authenticateRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.UserID == "" {
		return apperrors.ValidationError("user_id is required")
	}
	if req.DeviceID == "" {
		return apperrors.ValidationError("device_id is required")
	}

	session, err := s.authority.Authenticate(c.Request().Context(), req.UserID, req.DeviceID)
	if err != nil {
		return err
	}

	if err := c.JSON(201, session); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetSession(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	session, status := s.authority.Lookup(c.Request().Context(), id)
	if status == domain.SessionMissing {
		return apperrors.NotFoundError("session not found").WithContext("session_id", id.String())
	}

	if err := c.JSON(200, map[string]any{
		"status":  status,
		"session": session,
	}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleValidateSession(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	valid := s.authority.Validate(c.Request().Context(), id)
	if err := c.JSON(200, map[string]bool{"valid": valid}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type grantPermissionRequest struct {
	Permission domain.PermissionType `json:"permission"`
	TTL        string                `json:"ttl,omitempty"`
}

func (s *Server) handleGrantPermission(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req grantPermissionRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if !knownPermission(req.Permission) {
		return apperrors.ValidationError("unknown permission type").WithContext("permission", string(req.Permission))
	}

	var ttl time.Duration
	if req.TTL != "" {
		ttl, err = time.ParseDuration(req.TTL)
		if err != nil || ttl < 0 {
			return apperrors.ValidationError("ttl must be a non-negative duration like 5m").WithContext("ttl", req.TTL)
		}
	}

	if !s.authority.GrantPermission(c.Request().Context(), id, req.Permission, ttl) {
		return apperrors.NotFoundError("no active session").WithContext("session_id", id.String())
	}

	if err := c.JSON(200, map[string]string{"status": "granted"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleCheckPermission(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	permission := domain.PermissionType(c.Param("permission"))
	if !knownPermission(permission) {
		return apperrors.ValidationError("unknown permission type").WithContext("permission", string(permission))
	}

	granted := s.authority.HasPermission(c.Request().Context(), id, permission)
	if err := c.JSON(200, map[string]bool{"granted": granted}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleTerminateSession(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	if err := s.authority.Terminate(c.Request().Context(), id); err != nil {
		return err
	}
	if err := c.JSON(200, map[string]string{"status": "terminated"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func knownPermission(p domain.PermissionType) bool {
	for _, known := range domain.PermissionTypes {
		if p == known {
			return true
		}
	}
	return false
}
