package domain

import (
	"time"

	"github.com/google/uuid"
)

// PresentationMode distinguishes the two render loop implementations.
type PresentationMode string

const (
	// ModeHardware drives a dedicated stereoscopic display through its own
	// frame callbacks.
	ModeHardware PresentationMode = "hardware"
	// ModeFallback renders a single windowed viewport with orbit-camera
	// controls.
	ModeFallback PresentationMode = "fallback"
)

// PresentationKind tags what the session is presenting.
type PresentationKind string

const (
	PresentationGuided   PresentationKind = "guided-exercise"
	PresentationFreeRoam PresentationKind = "free-roam"
	PresentationShared   PresentationKind = "shared-space"
)

// Capability is the result of best-effort device probing. Absence of a
// capability is a normal outcome, not an error.
type Capability struct {
	HardwareDisplay bool `json:"hardware_display"`
	Camera          bool `json:"camera"`
	RenderSurface   bool `json:"render_surface"`
}

// CameraState is the fallback-mode orbit camera. Angles are degrees.
type CameraState struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Zoom  float64 `json:"zoom"`
}

// Pose is a device-provided head pose in hardware mode.
type Pose struct {
	Position    [3]float64 `json:"position"`
	Orientation [4]float64 `json:"orientation"` // quaternion, x/y/z/w
}

// PresentationSession is the render-loop instance bound to one Session.
type PresentationSession struct {
	ID            uuid.UUID        `json:"id"`
	SessionID     uuid.UUID        `json:"session_id"`
	Mode          PresentationMode `json:"mode"`
	EnvironmentID string           `json:"environment_id"`
	Kind          PresentationKind `json:"kind"`
	StartTime     time.Time        `json:"start_time"`
	Duration      time.Duration    `json:"duration"`
	Camera        CameraState      `json:"camera"`
	// CameraDegraded is set when camera access was denied at start; the
	// session continues with degraded visuals.
	CameraDegraded bool `json:"camera_degraded,omitempty"`
}
