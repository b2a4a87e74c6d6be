package presentation

import (
	"context"

	"github.com/mindhaven/immerse/internal/domain"
)

// Platform is the device/platform capability layer the engine consumes. The
// three probes are independent: any of them may fail without affecting the
// others.
type Platform interface {
	// HardwareDisplay acquires the immersive display. Returns
	// domain.ErrDeviceUnsupported when no such display is present.
	HardwareDisplay(ctx context.Context) (Display, error)
	// AcquireCamera requests a camera stream. Returns
	// domain.ErrCameraAccessDenied when the user or platform refuses.
	AcquireCamera(ctx context.Context) error
	// CreateSurface obtains a drawable rendering surface. Returns
	// domain.ErrRenderContextUnavailable when none can be created.
	CreateSurface(ctx context.Context) (Surface, error)
}

// Display drives hardware presentation through its own frame callbacks.
type Display interface {
	// RequestFrame schedules fn for the display's next frame. One request
	// produces at most one callback; loops re-request from inside fn.
	RequestFrame(fn func(Frame)) (FrameRequest, error)
	// Submit hands the composed frame back to the display.
	Submit(frame Frame) error
}

// FrameRequest is the cancel half of the display's request/cancel pair.
type FrameRequest interface {
	Cancel()
}

// Viewport is a pixel rectangle on the drawable surface.
type Viewport struct {
	X, Y, Width, Height int
}

// View is one eye's half of a stereo frame, with device-provided matrices.
type View struct {
	Viewport   Viewport
	View       [16]float64
	Projection [16]float64
}

// Frame is the per-frame data a hardware display delivers.
type Frame struct {
	Pose  domain.Pose
	Views [2]View
}

// Surface is a drawable rendering target. Operations return
// domain.ErrRenderContextUnavailable once the underlying drawable is lost
// (e.g. its container was removed).
type Surface interface {
	Clear() error
	// RenderView draws one stereo half-viewport (hardware mode).
	RenderView(view View) error
	// RenderOrbit draws the windowed single-viewport scene from the orbit
	// camera (fallback mode).
	RenderOrbit(camera domain.CameraState, environmentID string) error
	Present() error
	Release()
}
