package presentation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mindhaven/immerse/internal/domain"
	"github.com/mindhaven/immerse/internal/metrics"
)

const touchInterval = time.Second

// Toucher records session activity with the session authority. The manager
// only does bookkeeping against the owning session; it never re-validates
// permissions.
type Toucher interface {
	Touch(ctx context.Context, sessionID uuid.UUID)
}

// Config tunes the presentation manager.
type Config struct {
	// FallbackTickInterval is the fixed render cadence in fallback mode.
	FallbackTickInterval time.Duration
}

// TrackingSink receives per-frame tracking samples (hardware mode).
type TrackingSink func(presentationID uuid.UUID, update domain.TrackingData)

// InteractionHandler receives routed interaction events.
type InteractionHandler func(event domain.InteractionEvent)

type renderLoop interface {
	// stop flips the running flag; the next frame callback observes it and
	// refuses to reschedule.
	stop()
}

type runningPresentation struct {
	mu        sync.Mutex
	record    domain.PresentationSession
	surface   Surface
	loop      renderLoop
	camera    *OrbitCamera // fallback mode only
	pose      *domain.Pose // hardware mode only, latest device pose
	lastTouch time.Time
	ended     bool
}

// Manager starts and stops render loops and exposes camera/pose state.
type Manager struct {
	platform Platform
	touch    Toucher
	clock    clockwork.Clock
	cfg      Config

	mu      sync.Mutex
	running map[uuid.UUID]*runningPresentation
	ended   map[uuid.UUID]domain.PresentationSession

	handlersMu sync.RWMutex
	handlers   map[domain.InteractionType]InteractionHandler

	sinkMu sync.RWMutex
	sink   TrackingSink
}

// NewManager creates a presentation manager. touch may be nil when no
// authority bookkeeping is wanted (tests).
func NewManager(platform Platform, touch Toucher, clock clockwork.Clock, cfg Config) *Manager {
	if cfg.FallbackTickInterval <= 0 {
		cfg.FallbackTickInterval = 50 * time.Millisecond
	}
	return &Manager{
		platform: platform,
		touch:    touch,
		clock:    clock,
		cfg:      cfg,
		running:  make(map[uuid.UUID]*runningPresentation),
		ended:    make(map[uuid.UUID]domain.PresentationSession),
		handlers: make(map[domain.InteractionType]InteractionHandler),
	}
}

// ProbeCapability performs best-effort feature probing. Absence of a
// capability is a normal outcome, never an error.
func (m *Manager) ProbeCapability(ctx context.Context) domain.Capability {
	var caps domain.Capability

	if display, err := m.platform.HardwareDisplay(ctx); err == nil && display != nil {
		caps.HardwareDisplay = true
	}
	if err := m.platform.AcquireCamera(ctx); err == nil {
		caps.Camera = true
	}
	if surface, err := m.platform.CreateSurface(ctx); err == nil && surface != nil {
		caps.RenderSurface = true
		surface.Release()
	}

	return caps
}

// StartSession chooses a mode and starts the render loop. Hardware
// presentation is preferred; absence of an immersive display degrades to the
// windowed fallback. Only when no drawable surface is obtainable at all does
// starting fail, with DeviceUnsupported.
func (m *Manager) StartSession(ctx context.Context, sessionID uuid.UUID, environmentID string, kind domain.PresentationKind) (*domain.PresentationSession, error) {
	surface, err := m.platform.CreateSurface(ctx)
	if err != nil || surface == nil {
		return nil, fmt.Errorf("%w: no drawable surface: %v", domain.ErrDeviceUnsupported, err)
	}

	cameraDegraded := false
	if err := m.platform.AcquireCamera(ctx); err != nil {
		if errors.Is(err, domain.ErrCameraAccessDenied) {
			// Recoverable: the session continues with degraded visuals.
			cameraDegraded = true
			slog.Warn("Camera access denied, continuing degraded",
				"session_id", sessionID.String())
		}
	}

	record := domain.PresentationSession{
		ID:             uuid.New(),
		SessionID:      sessionID,
		EnvironmentID:  environmentID,
		Kind:           kind,
		StartTime:      m.clock.Now(),
		CameraDegraded: cameraDegraded,
	}

	p := &runningPresentation{
		record:    record,
		surface:   surface,
		lastTouch: record.StartTime,
	}

	display, err := m.platform.HardwareDisplay(ctx)
	if err == nil && display != nil {
		p.record.Mode = domain.ModeHardware
		loop := newHardwareLoop(m, p, display, surface)
		if err := loop.start(); err != nil {
			// The display refused its first frame request; degrade rather
			// than block.
			slog.Warn("Hardware display refused frame request, falling back",
				"session_id", sessionID.String(), "error", err)
		} else {
			p.loop = loop
		}
	}

	if p.loop == nil {
		p.record.Mode = domain.ModeFallback
		p.record.Camera = domain.CameraState{Zoom: 1.0}
		p.camera = NewOrbitCamera()
		loop := newFallbackLoop(m, p, surface, m.cfg.FallbackTickInterval)
		loop.start()
		p.loop = loop
	}

	m.mu.Lock()
	m.running[p.record.ID] = p
	m.mu.Unlock()

	metrics.PresentationsActive.WithLabelValues(string(p.record.Mode)).Inc()
	slog.Info("Presentation started",
		"presentation_id", p.record.ID.String(),
		"session_id", sessionID.String(),
		"mode", string(p.record.Mode),
		"environment_id", environmentID)

	snapshot := m.snapshot(p)
	return &snapshot, nil
}

// EndSession stops the render loop, releases the drawable surface and
// finalizes the session duration.
func (m *Manager) EndSession(_ context.Context, presentationID uuid.UUID) error {
	m.mu.Lock()
	p, ok := m.running[presentationID]
	m.mu.Unlock()
	if !ok {
		return domain.ErrPresentationNotFound
	}

	p.loop.stop()
	m.finish(p, nil)
	return nil
}

// EndForSession ends every presentation owned by the given session. Wired as
// a session-termination hook.
func (m *Manager) EndForSession(sessionID uuid.UUID) {
	m.mu.Lock()
	var victims []*runningPresentation
	for _, p := range m.running {
		if p.record.SessionID == sessionID {
			victims = append(victims, p)
		}
	}
	for id, record := range m.ended {
		if record.SessionID == sessionID {
			delete(m.ended, id)
		}
	}
	m.mu.Unlock()

	for _, p := range victims {
		p.loop.stop()
		m.finish(p, nil)
	}
}

// Get returns a snapshot of a presentation session. Duration is recomputed
// continuously while the loop runs.
func (m *Manager) Get(presentationID uuid.UUID) (*domain.PresentationSession, error) {
	m.mu.Lock()
	if p, ok := m.running[presentationID]; ok {
		m.mu.Unlock()
		snapshot := m.snapshot(p)
		return &snapshot, nil
	}
	record, ok := m.ended[presentationID]
	m.mu.Unlock()
	if !ok {
		return nil, domain.ErrPresentationNotFound
	}
	return &record, nil
}

// IsRunning reports whether the presentation's render loop is still active.
func (m *Manager) IsRunning(presentationID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[presentationID]
	return ok
}

// GetPose returns the current device pose in hardware mode, nil in fallback
// mode (camera state is exposed separately).
func (m *Manager) GetPose(presentationID uuid.UUID) *domain.Pose {
	m.mu.Lock()
	p, ok := m.running[presentationID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pose == nil {
		return nil
	}
	pose := *p.pose
	return &pose
}

// Camera returns the orbit camera state. The second return is false outside
// fallback mode or for unknown presentations.
func (m *Manager) Camera(presentationID uuid.UUID) (domain.CameraState, bool) {
	m.mu.Lock()
	p, ok := m.running[presentationID]
	m.mu.Unlock()
	if !ok || p.camera == nil {
		return domain.CameraState{}, false
	}
	return p.camera.State(), true
}

// PointerDrag feeds pointer deltas into the fallback orbit camera.
func (m *Manager) PointerDrag(presentationID uuid.UUID, dx, dy float64) error {
	camera, err := m.fallbackCamera(presentationID)
	if err != nil {
		return err
	}
	camera.ApplyDrag(dx, dy)
	return nil
}

// KeyNudge feeds a discrete key nudge into the fallback orbit camera.
func (m *Manager) KeyNudge(presentationID uuid.UUID, key CameraKey) error {
	camera, err := m.fallbackCamera(presentationID)
	if err != nil {
		return err
	}
	camera.ApplyKey(key)
	return nil
}

// Scroll feeds a wheel delta into the fallback orbit camera.
func (m *Manager) Scroll(presentationID uuid.UUID, delta float64) error {
	camera, err := m.fallbackCamera(presentationID)
	if err != nil {
		return err
	}
	camera.ApplyScroll(delta)
	return nil
}

// RegisterInteractionHandler binds a handler to an interaction type. The
// manager is a dispatch table only; business logic lives with the subscriber.
func (m *Manager) RegisterInteractionHandler(t domain.InteractionType, fn InteractionHandler) {
	m.handlersMu.Lock()
	m.handlers[t] = fn
	m.handlersMu.Unlock()
}

// OnInteraction routes a typed interaction event to its handler. Events with
// no registered handler are dropped; interaction streams are speculative.
func (m *Manager) OnInteraction(event domain.InteractionEvent) {
	m.handlersMu.RLock()
	fn, ok := m.handlers[event.Type]
	m.handlersMu.RUnlock()
	if !ok {
		slog.Debug("No handler for interaction type", "type", string(event.Type))
		return
	}
	fn(event)
}

// SetTrackingSink registers the consumer of per-frame tracking samples.
func (m *Manager) SetTrackingSink(sink TrackingSink) {
	m.sinkMu.Lock()
	m.sink = sink
	m.sinkMu.Unlock()
}

// Stop ends every running presentation.
func (m *Manager) Stop() {
	m.mu.Lock()
	victims := make([]*runningPresentation, 0, len(m.running))
	for _, p := range m.running {
		victims = append(victims, p)
	}
	m.mu.Unlock()

	for _, p := range victims {
		p.loop.stop()
		m.finish(p, nil)
	}
}

func (m *Manager) fallbackCamera(presentationID uuid.UUID) (*OrbitCamera, error) {
	m.mu.Lock()
	p, ok := m.running[presentationID]
	m.mu.Unlock()
	if !ok {
		return nil, domain.ErrPresentationNotFound
	}
	if p.camera == nil {
		return nil, fmt.Errorf("%w: camera input only applies to fallback mode", domain.ErrDeviceUnsupported)
	}
	return p.camera, nil
}

func (m *Manager) snapshot(p *runningPresentation) domain.PresentationSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	record := p.record
	if !p.ended {
		record.Duration = m.clock.Since(record.StartTime)
	}
	if p.camera != nil {
		record.Camera = p.camera.State()
	}
	return record
}

// finish finalizes a presentation exactly once: duration, surface release,
// metrics, bookkeeping. cause is non-nil for loop-internal failures.
func (m *Manager) finish(p *runningPresentation, cause error) {
	p.mu.Lock()
	if p.ended {
		p.mu.Unlock()
		return
	}
	p.ended = true
	p.record.Duration = m.clock.Since(p.record.StartTime)
	if p.camera != nil {
		p.record.Camera = p.camera.State()
	}
	record := p.record
	surface := p.surface
	p.mu.Unlock()

	surface.Release()

	m.mu.Lock()
	delete(m.running, record.ID)
	m.ended[record.ID] = record
	m.mu.Unlock()

	metrics.PresentationsActive.WithLabelValues(string(record.Mode)).Dec()
	if cause != nil {
		slog.Error("Presentation ended on render failure",
			"presentation_id", record.ID.String(),
			"session_id", record.SessionID.String(),
			"error", cause)
	} else {
		slog.Info("Presentation ended",
			"presentation_id", record.ID.String(),
			"session_id", record.SessionID.String(),
			"duration", record.Duration.String())
	}
}

// frameRendered updates metrics and throttled session bookkeeping.
func (m *Manager) frameRendered(p *runningPresentation) {
	metrics.FramesRenderedTotal.WithLabelValues(string(p.record.Mode)).Inc()

	if m.touch == nil {
		return
	}
	now := m.clock.Now()
	p.mu.Lock()
	due := now.Sub(p.lastTouch) >= touchInterval
	if due {
		p.lastTouch = now
	}
	sessionID := p.record.SessionID
	p.mu.Unlock()
	if due {
		m.touch.Touch(context.Background(), sessionID)
	}
}

func (m *Manager) recordPose(p *runningPresentation, pose domain.Pose) {
	p.mu.Lock()
	p.pose = &pose
	presentationID := p.record.ID
	p.mu.Unlock()

	m.sinkMu.RLock()
	sink := m.sink
	m.sinkMu.RUnlock()
	if sink != nil {
		sink(presentationID, domain.TrackingData{Head: &pose, UpdatedAt: m.clock.Now()})
	}
}
