package scene

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mindhaven/immerse/internal/domain"
	"github.com/mindhaven/immerse/internal/metrics"
	"github.com/oklog/ulid/v2"
)

const (
	defaultLayerName  = "default"
	defaultMaxHistory = 1000
)

// PermissionChecker is the slice of the session authority the scene model
// needs. Injected so permission gating is testable in isolation.
type PermissionChecker interface {
	HasPermission(ctx context.Context, sessionID uuid.UUID, permission domain.PermissionType) bool
}

// ActionHandler runs the behavior bound to an interactive object's action
// name. It receives snapshots; mutating them has no effect on the scene.
type ActionHandler func(object domain.SpatialObject, event domain.InteractionEvent)

type sceneState struct {
	mu      sync.Mutex
	record  domain.SceneSession
	history []domain.InteractionEvent
}

// Model owns every scene session. All mutation goes through its methods;
// returned layers and objects are copies.
type Model struct {
	authority PermissionChecker
	clock     clockwork.Clock

	mu       sync.Mutex
	sessions map[uuid.UUID]*sceneState

	actionsMu sync.RWMutex
	actions   map[string]ActionHandler
}

func NewModel(authority PermissionChecker, clock clockwork.Clock) *Model {
	return &Model{
		authority: authority,
		clock:     clock,
		sessions:  make(map[uuid.UUID]*sceneState),
		actions:   make(map[string]ActionHandler),
	}
}

// RegisterAction binds product behavior to an interactive action name.
func (m *Model) RegisterAction(name string, handler ActionHandler) {
	m.actionsMu.Lock()
	m.actions[name] = handler
	m.actionsMu.Unlock()
}

// InitializeSceneSession creates the AR layer state for a presentation,
// refused when the owning session lacks the scene-objects permission. The new
// session starts with one default, active layer.
func (m *Model) InitializeSceneSession(ctx context.Context, presentationID, authSessionID uuid.UUID) (*domain.SceneSession, error) {
	if !m.authority.HasPermission(ctx, authSessionID, domain.PermissionSceneObjects) {
		return nil, fmt.Errorf("%w: session %s lacks %s", domain.ErrPermissionDenied, authSessionID, domain.PermissionSceneObjects)
	}

	now := m.clock.Now()
	layer := &domain.Layer{
		ID:        ulid.Make().String(),
		Name:      defaultLayerName,
		Active:    true,
		BlendMode: domain.BlendNormal,
		Opacity:   1.0,
	}
	state := &sceneState{
		record: domain.SceneSession{
			ID:             uuid.New(),
			SessionID:      authSessionID,
			PresentationID: presentationID,
			Layers:         []*domain.Layer{layer},
			ActiveLayerID:  layer.ID,
			Settings:       domain.SceneSettings{MaxHistory: defaultMaxHistory},
			CreatedAt:      now,
		},
	}

	m.mu.Lock()
	m.sessions[state.record.ID] = state
	m.mu.Unlock()

	slog.Info("Scene session initialized",
		"scene_id", state.record.ID.String(),
		"session_id", authSessionID.String(),
		"presentation_id", presentationID.String())

	snapshot := cloneScene(&state.record)
	return &snapshot, nil
}

// AddLayer appends a new, active layer.
func (m *Model) AddLayer(sceneID uuid.UUID, name string) (*domain.Layer, error) {
	state, err := m.state(sceneID)
	if err != nil {
		return nil, err
	}

	layer := &domain.Layer{
		ID:        ulid.Make().String(),
		Name:      name,
		Active:    true,
		BlendMode: domain.BlendNormal,
		Opacity:   1.0,
	}

	state.mu.Lock()
	state.record.Layers = append(state.record.Layers, layer)
	state.mu.Unlock()

	snapshot := cloneLayer(layer)
	return &snapshot, nil
}

// SetActiveLayer switches which layer GetObjectsInView reads from. The layer
// must belong to this scene session.
func (m *Model) SetActiveLayer(sceneID uuid.UUID, layerID string) error {
	state, err := m.state(sceneID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if findLayer(state.record.Layers, layerID) == nil {
		return domain.ErrLayerNotFound
	}
	state.record.ActiveLayerID = layerID
	return nil
}

// SetLayerActive toggles a layer without changing which one is active for
// viewing.
func (m *Model) SetLayerActive(sceneID uuid.UUID, layerID string, active bool) error {
	state, err := m.state(sceneID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	layer := findLayer(state.record.Layers, layerID)
	if layer == nil {
		return domain.ErrLayerNotFound
	}
	layer.Active = active
	return nil
}

// AddObject appends an object to the given layer and returns its id. Ids are
// ULIDs: collision-resistant within a session lifetime by construction.
func (m *Model) AddObject(sceneID uuid.UUID, layerID string, spec domain.ObjectSpec) (string, error) {
	state, err := m.state(sceneID)
	if err != nil {
		return "", err
	}

	object := &domain.SpatialObject{
		ID:           ulid.Make().String(),
		Kind:         spec.Kind,
		Transform:    spec.Transform,
		Content:      spec.Content,
		Category:     spec.Category,
		Interaction:  spec.Interaction,
		Visible:      spec.Visible,
		Interactable: spec.Interactable,
		CreatedAt:    m.clock.Now(),
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	layer := findLayer(state.record.Layers, layerID)
	if layer == nil {
		return "", domain.ErrLayerNotFound
	}
	layer.Objects = append(layer.Objects, object)
	metrics.SceneObjectsCurrent.Inc()
	return object.ID, nil
}

// UpdateObject applies a partial update. Set fields overwrite wholesale;
// concurrent updates are last-write-wins. Lookup is a linear scan across
// layers, fine at expected scene sizes.
func (m *Model) UpdateObject(sceneID uuid.UUID, objectID string, update domain.ObjectUpdate) error {
	state, err := m.state(sceneID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	object := findObject(state.record.Layers, objectID)
	if object == nil {
		return domain.ErrObjectNotFound
	}

	if update.Transform != nil {
		object.Transform = *update.Transform
	}
	if update.Content != nil {
		object.Content = update.Content
	}
	if update.Visible != nil {
		object.Visible = *update.Visible
	}
	if update.Interactable != nil {
		object.Interactable = *update.Interactable
	}
	if update.Category != nil {
		object.Category = *update.Category
	}
	return nil
}

// RemoveObject deletes an object wherever it lives.
func (m *Model) RemoveObject(sceneID uuid.UUID, objectID string) error {
	state, err := m.state(sceneID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	for _, layer := range state.record.Layers {
		for i, object := range layer.Objects {
			if object.ID == objectID {
				layer.Objects = append(layer.Objects[:i], layer.Objects[i+1:]...)
				metrics.SceneObjectsCurrent.Dec()
				return nil
			}
		}
	}
	return domain.ErrObjectNotFound
}

// GetObjectsInView returns visible objects from the currently active layer.
// No active layer, or an inactive one, yields an empty slice.
func (m *Model) GetObjectsInView(sceneID uuid.UUID) ([]domain.SpatialObject, error) {
	state, err := m.state(sceneID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	out := []domain.SpatialObject{}
	if state.record.ActiveLayerID == "" {
		return out, nil
	}
	layer := findLayer(state.record.Layers, state.record.ActiveLayerID)
	if layer == nil || !layer.Active {
		return out, nil
	}
	for _, object := range layer.Objects {
		if object.Visible {
			out = append(out, cloneObject(object))
		}
	}
	return out, nil
}

// IngestTracking shallow-merges a tracking update: nil fields leave the
// stored sample untouched, set fields overwrite (last write wins per field).
func (m *Model) IngestTracking(sceneID uuid.UUID, update domain.TrackingData) error {
	state, err := m.state(sceneID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	tracking := &state.record.Tracking
	if update.Head != nil {
		head := *update.Head
		tracking.Head = &head
	}
	if update.Gaze != nil {
		gaze := *update.Gaze
		tracking.Gaze = &gaze
	}
	if update.LeftHand != nil {
		hand := *update.LeftHand
		tracking.LeftHand = &hand
	}
	if update.RightHand != nil {
		hand := *update.RightHand
		tracking.RightHand = &hand
	}
	tracking.UpdatedAt = m.clock.Now()
	return nil
}

// Tracking returns the current merged tracking sample.
func (m *Model) Tracking(sceneID uuid.UUID) (domain.TrackingData, error) {
	state, err := m.state(sceneID)
	if err != nil {
		return domain.TrackingData{}, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return cloneTracking(state.record.Tracking), nil
}

// Dispatch routes an interaction event against its target object. Unknown or
// non-interactable targets are dropped without error: gaze and hover streams
// are naturally noisy. Every accepted event appends exactly one history
// record before any handler runs.
func (m *Model) Dispatch(sceneID uuid.UUID, event domain.InteractionEvent) error {
	state, err := m.state(sceneID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	object := findObject(state.record.Layers, event.ObjectID)
	if object == nil {
		state.mu.Unlock()
		metrics.InteractionsDroppedTotal.WithLabelValues("unknown-object").Inc()
		return nil
	}
	if !object.Interactable {
		state.mu.Unlock()
		metrics.InteractionsDroppedTotal.WithLabelValues("not-interactable").Inc()
		return nil
	}

	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = m.clock.Now()
	}
	state.history = append(state.history, event)
	if max := state.record.Settings.MaxHistory; max > 0 && len(state.history) > max {
		state.history = state.history[len(state.history)-max:]
	}
	snapshot := cloneObject(object)
	state.mu.Unlock()

	metrics.InteractionsDispatchedTotal.WithLabelValues(string(event.Type)).Inc()

	// Only interactive objects carry bound behavior; everything else just
	// records the event.
	if content, ok := snapshot.Content.(domain.InteractiveContent); ok {
		m.actionsMu.RLock()
		handler, bound := m.actions[content.Action]
		m.actionsMu.RUnlock()
		if bound {
			handler(snapshot, event)
		}
	}
	return nil
}

// History returns a copy of the interaction history, oldest first.
func (m *Model) History(sceneID uuid.UUID) ([]domain.InteractionEvent, error) {
	state, err := m.state(sceneID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	out := make([]domain.InteractionEvent, len(state.history))
	copy(out, state.history)
	return out, nil
}

// Get returns a deep snapshot of the scene session.
func (m *Model) Get(sceneID uuid.UUID) (*domain.SceneSession, error) {
	state, err := m.state(sceneID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	snapshot := cloneScene(&state.record)
	return &snapshot, nil
}

// Stats summarizes the scene session.
func (m *Model) Stats(sceneID uuid.UUID) (domain.SceneStats, error) {
	state, err := m.state(sceneID)
	if err != nil {
		return domain.SceneStats{}, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	stats := domain.SceneStats{InteractionCount: len(state.history)}
	for _, layer := range state.record.Layers {
		stats.ObjectCount += len(layer.Objects)
		if layer.Active {
			stats.ActiveLayerCount++
		}
	}
	return stats, nil
}

// Terminate cleans up all layers and objects, then removes the session.
func (m *Model) Terminate(sceneID uuid.UUID) error {
	m.mu.Lock()
	state, ok := m.sessions[sceneID]
	if ok {
		delete(m.sessions, sceneID)
	}
	m.mu.Unlock()
	if !ok {
		return domain.ErrSceneSessionNotFound
	}

	state.mu.Lock()
	objects := 0
	for _, layer := range state.record.Layers {
		objects += len(layer.Objects)
		layer.Objects = nil
	}
	state.record.Layers = nil
	state.mu.Unlock()

	metrics.SceneObjectsCurrent.Sub(float64(objects))
	slog.Info("Scene session terminated", "scene_id", sceneID.String(), "objects_released", objects)
	return nil
}

// TerminateForSession tears down every scene owned by the given auth
// session. Wired as a session-termination hook.
func (m *Model) TerminateForSession(sessionID uuid.UUID) {
	m.mu.Lock()
	var victims []uuid.UUID
	for id, state := range m.sessions {
		if state.record.SessionID == sessionID {
			victims = append(victims, id)
		}
	}
	m.mu.Unlock()

	for _, id := range victims {
		if err := m.Terminate(id); err != nil {
			slog.Error("Failed to terminate scene for session",
				"scene_id", id.String(), "session_id", sessionID.String(), "error", err)
		}
	}
}

// StatsForPresentation summarizes the scene bound to a presentation, if one
// exists. Used by the live state broadcaster.
func (m *Model) StatsForPresentation(presentationID uuid.UUID) (domain.SceneStats, bool) {
	m.mu.Lock()
	var sceneID uuid.UUID
	found := false
	for id, state := range m.sessions {
		if state.record.PresentationID == presentationID {
			sceneID = id
			found = true
			break
		}
	}
	m.mu.Unlock()
	if !found {
		return domain.SceneStats{}, false
	}
	stats, err := m.Stats(sceneID)
	if err != nil {
		return domain.SceneStats{}, false
	}
	return stats, true
}

// IngestForPresentation routes a tracking sample by presentation id. Wired as
// the presentation manager's tracking sink.
func (m *Model) IngestForPresentation(presentationID uuid.UUID, update domain.TrackingData) {
	m.mu.Lock()
	var sceneID uuid.UUID
	found := false
	for id, state := range m.sessions {
		if state.record.PresentationID == presentationID {
			sceneID = id
			found = true
			break
		}
	}
	m.mu.Unlock()
	if !found {
		return
	}
	if err := m.IngestTracking(sceneID, update); err != nil {
		slog.Debug("Dropped tracking sample", "presentation_id", presentationID.String(), "error", err)
	}
}

func (m *Model) state(sceneID uuid.UUID) (*sceneState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.sessions[sceneID]
	if !ok {
		return nil, domain.ErrSceneSessionNotFound
	}
	return state, nil
}

func findLayer(layers []*domain.Layer, id string) *domain.Layer {
	for _, layer := range layers {
		if layer.ID == id {
			return layer
		}
	}
	return nil
}

func findObject(layers []*domain.Layer, id string) *domain.SpatialObject {
	for _, layer := range layers {
		for _, object := range layer.Objects {
			if object.ID == id {
				return object
			}
		}
	}
	return nil
}

func cloneObject(object *domain.SpatialObject) domain.SpatialObject {
	c := *object
	if content, ok := c.Content.(domain.InteractiveContent); ok && content.Params != nil {
		params := make(map[string]string, len(content.Params))
		for k, v := range content.Params {
			params[k] = v
		}
		content.Params = params
		c.Content = content
	}
	return c
}

func cloneLayer(layer *domain.Layer) domain.Layer {
	c := *layer
	c.Objects = make([]*domain.SpatialObject, len(layer.Objects))
	for i, object := range layer.Objects {
		clone := cloneObject(object)
		c.Objects[i] = &clone
	}
	return c
}

func cloneScene(record *domain.SceneSession) domain.SceneSession {
	c := *record
	c.Layers = make([]*domain.Layer, len(record.Layers))
	for i, layer := range record.Layers {
		clone := cloneLayer(layer)
		c.Layers[i] = &clone
	}
	c.Tracking = cloneTracking(record.Tracking)
	return c
}

func cloneTracking(tracking domain.TrackingData) domain.TrackingData {
	c := tracking
	if tracking.Head != nil {
		head := *tracking.Head
		c.Head = &head
	}
	if tracking.Gaze != nil {
		gaze := *tracking.Gaze
		c.Gaze = &gaze
	}
	if tracking.LeftHand != nil {
		hand := *tracking.LeftHand
		c.LeftHand = &hand
	}
	if tracking.RightHand != nil {
		hand := *tracking.RightHand
		c.RightHand = &hand
	}
	return c
}
