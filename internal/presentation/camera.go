package presentation

import (
	"sync"

	"github.com/mindhaven/immerse/internal/domain"
)

const (
	pitchLimit = 90.0 // degrees, prevents gimbal flip
	zoomMin    = 0.5
	zoomMax    = 3.0

	dragSensitivity = 0.25 // degrees per pixel
	keyNudgeDegrees = 5.0
	scrollZoomStep  = 0.1
)

// CameraKey is a discrete camera nudge input.
type CameraKey string

const (
	KeyLeft    CameraKey = "left"
	KeyRight   CameraKey = "right"
	KeyUp      CameraKey = "up"
	KeyDown    CameraKey = "down"
	KeyZoomIn  CameraKey = "zoom-in"
	KeyZoomOut CameraKey = "zoom-out"
)

// OrbitCamera is the fallback-mode yaw/pitch/zoom state, fed by pointer
// drags, key nudges and scroll deltas.
type OrbitCamera struct {
	mu    sync.Mutex
	state domain.CameraState
}

func NewOrbitCamera() *OrbitCamera {
	return &OrbitCamera{state: domain.CameraState{Zoom: 1.0}}
}

// ApplyDrag converts pointer deltas (pixels) into yaw/pitch.
func (c *OrbitCamera) ApplyDrag(dx, dy float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Yaw = wrapYaw(c.state.Yaw + dx*dragSensitivity)
	c.state.Pitch = clamp(c.state.Pitch+dy*dragSensitivity, -pitchLimit, pitchLimit)
}

// ApplyKey applies one discrete nudge.
func (c *OrbitCamera) ApplyKey(key CameraKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch key {
	case KeyLeft:
		c.state.Yaw = wrapYaw(c.state.Yaw - keyNudgeDegrees)
	case KeyRight:
		c.state.Yaw = wrapYaw(c.state.Yaw + keyNudgeDegrees)
	case KeyUp:
		c.state.Pitch = clamp(c.state.Pitch+keyNudgeDegrees, -pitchLimit, pitchLimit)
	case KeyDown:
		c.state.Pitch = clamp(c.state.Pitch-keyNudgeDegrees, -pitchLimit, pitchLimit)
	case KeyZoomIn:
		c.state.Zoom = clamp(c.state.Zoom+scrollZoomStep, zoomMin, zoomMax)
	case KeyZoomOut:
		c.state.Zoom = clamp(c.state.Zoom-scrollZoomStep, zoomMin, zoomMax)
	}
}

// ApplyScroll converts a wheel delta into zoom. Positive deltas zoom in.
func (c *OrbitCamera) ApplyScroll(delta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Zoom = clamp(c.state.Zoom+delta*scrollZoomStep, zoomMin, zoomMax)
}

// State returns the current camera state.
func (c *OrbitCamera) State() domain.CameraState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func wrapYaw(yaw float64) float64 {
	for yaw > 180 {
		yaw -= 360
	}
	for yaw < -180 {
		yaw += 360
	}
	return yaw
}
