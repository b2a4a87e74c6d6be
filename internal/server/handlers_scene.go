package server

import (
	"encoding/json"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/mindhaven/immerse/internal/domain"
	apperrors "github.com/mindhaven/immerse/internal/errors"
)

type initializeSceneRequest struct {
	SessionID      string `json:"session_id"`
	PresentationID string `json:"presentation_id"`
}

func (s *Server) handleInitializeScene(c echo.Context) error {
	var req initializeSceneRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	sessionID, err := parseUUIDField(req.SessionID, "session_id")
	if err != nil {
		return err
	}
	presentationID, err := parseUUIDField(req.PresentationID, "presentation_id")
	if err != nil {
		return err
	}

	record, err := s.scenes.InitializeSceneSession(c.Request().Context(), presentationID, sessionID)
	if err != nil {
		return err
	}
	if err := c.JSON(201, record); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetScene(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	record, err := s.scenes.Get(id)
	if err != nil {
		return err
	}
	if err := c.JSON(200, record); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleSceneStats(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	stats, err := s.scenes.Stats(id)
	if err != nil {
		return err
	}
	if err := c.JSON(200, stats); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleTerminateScene(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	if err := s.scenes.Terminate(id); err != nil {
		return err
	}
	if err := c.JSON(200, map[string]string{"status": "terminated"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type addLayerRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleAddLayer(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req addLayerRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.Name == "" {
		return apperrors.ValidationError("name is required")
	}

	layer, err := s.scenes.AddLayer(id, req.Name)
	if err != nil {
		return err
	}
	if err := c.JSON(201, layer); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type updateLayerRequest struct {
	Active     *bool `json:"active,omitempty"`
	MakeActive bool  `json:"make_active,omitempty"`
}

func (s *Server) handleUpdateLayer(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	layerID := c.Param("layerID")

	var req updateLayerRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	if req.Active != nil {
		if err := s.scenes.SetLayerActive(id, layerID, *req.Active); err != nil {
			return err
		}
	}
	if req.MakeActive {
		if err := s.scenes.SetActiveLayer(id, layerID); err != nil {
			return err
		}
	}
	if err := c.JSON(200, map[string]string{"status": "updated"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type addObjectRequest struct {
	LayerID      string                 `json:"layer_id"`
	Kind         domain.ObjectKind      `json:"kind"`
	Transform    domain.Transform       `json:"transform"`
	Content      json.RawMessage        `json:"content"`
	Category     string                 `json:"category"`
	Interaction  domain.InteractionType `json:"interaction"`
	Visible      bool                   `json:"visible"`
	Interactable bool                   `json:"interactable"`
}

func (s *Server) handleAddObject(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req addObjectRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.LayerID == "" {
		return apperrors.ValidationError("layer_id is required")
	}

	content, err := decodeContent(req.Kind, req.Content)
	if err != nil {
		return err
	}

	objectID, err := s.scenes.AddObject(id, req.LayerID, domain.ObjectSpec{
		Kind:         req.Kind,
		Transform:    req.Transform,
		Content:      content,
		Category:     req.Category,
		Interaction:  req.Interaction,
		Visible:      req.Visible,
		Interactable: req.Interactable,
	})
	if err != nil {
		return err
	}

	if err := c.JSON(201, map[string]string{"object_id": objectID}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type updateObjectRequest struct {
	Transform    *domain.Transform `json:"transform,omitempty"`
	Kind         domain.ObjectKind `json:"kind,omitempty"`
	Content      json.RawMessage   `json:"content,omitempty"`
	Visible      *bool             `json:"visible,omitempty"`
	Interactable *bool             `json:"interactable,omitempty"`
	Category     *string           `json:"category,omitempty"`
}

func (s *Server) handleUpdateObject(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	objectID := c.Param("objectID")

	var req updateObjectRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	update := domain.ObjectUpdate{
		Transform:    req.Transform,
		Visible:      req.Visible,
		Interactable: req.Interactable,
		Category:     req.Category,
	}
	if len(req.Content) > 0 {
		if req.Kind == "" {
			return apperrors.ValidationError("kind is required when content is set")
		}
		content, err := decodeContent(req.Kind, req.Content)
		if err != nil {
			return err
		}
		update.Content = content
	}

	if err := s.scenes.UpdateObject(id, objectID, update); err != nil {
		return err
	}
	if err := c.JSON(200, map[string]string{"status": "updated"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleRemoveObject(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	if err := s.scenes.RemoveObject(id, c.Param("objectID")); err != nil {
		return err
	}
	if err := c.JSON(200, map[string]string{"status": "removed"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleObjectsInView(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	objects, err := s.scenes.GetObjectsInView(id)
	if err != nil {
		return err
	}
	if err := c.JSON(200, objects); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleIngestTracking(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var update domain.TrackingData
	if err := c.Bind(&update); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	if err := s.scenes.IngestTracking(id, update); err != nil {
		return err
	}
	if err := c.JSON(200, map[string]string{"status": "accepted"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetTracking(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	tracking, err := s.scenes.Tracking(id)
	if err != nil {
		return err
	}
	if err := c.JSON(200, tracking); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

type dispatchRequest struct {
	ObjectID string                 `json:"object_id"`
	Type     domain.InteractionType `json:"type"`
	Payload  map[string]string      `json:"payload,omitempty"`
}

func (s *Server) handleDispatchInteraction(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req dispatchRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.ObjectID == "" {
		return apperrors.ValidationError("object_id is required")
	}

	event := domain.InteractionEvent{
		ObjectID: req.ObjectID,
		Type:     req.Type,
		Payload:  req.Payload,
	}
	if err := s.scenes.Dispatch(id, event); err != nil {
		return err
	}
	// Accepted covers silent drops too; interaction streams are speculative.
	if err := c.JSON(202, map[string]string{"status": "accepted"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleInteractionHistory(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	history, err := s.scenes.History(id)
	if err != nil {
		return err
	}
	if err := c.JSON(200, history); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func decodeContent(kind domain.ObjectKind, raw json.RawMessage) (domain.ObjectContent, error) {
	if len(raw) == 0 {
		return nil, apperrors.ValidationError("content is required")
	}

	var (
		content domain.ObjectContent
		err     error
	)
	switch kind {
	case domain.ObjectText:
		var c domain.TextContent
		err = json.Unmarshal(raw, &c)
		content = c
	case domain.ObjectImage:
		var c domain.ImageContent
		err = json.Unmarshal(raw, &c)
		content = c
	case domain.ObjectModel:
		var c domain.ModelContent
		err = json.Unmarshal(raw, &c)
		content = c
	case domain.ObjectVideo:
		var c domain.VideoContent
		err = json.Unmarshal(raw, &c)
		content = c
	case domain.ObjectInteractive:
		var c domain.InteractiveContent
		err = json.Unmarshal(raw, &c)
		content = c
	default:
		return nil, apperrors.ValidationError("unknown object kind").WithContext("kind", string(kind))
	}
	if err != nil {
		return nil, apperrors.ValidationError("invalid content payload").WithContext("kind", string(kind))
	}
	return content, nil
}
