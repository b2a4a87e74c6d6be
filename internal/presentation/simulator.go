package presentation

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mindhaven/immerse/internal/domain"
)

const (
	simSurfaceWidth  = 1280
	simSurfaceHeight = 720
)

// Simulator is a Platform implementation with configurable probe outcomes.
// cmd/server runs on it when no real device layer is wired, and tests use it
// to exercise every capability path.
type Simulator struct {
	clock clockwork.Clock

	mu            sync.Mutex
	hardware      bool
	cameraErr     error
	surfaceOK     bool
	frameInterval time.Duration
	display       *SimDisplay
}

// SimulatorOption configures a Simulator.
type SimulatorOption func(*Simulator)

// WithHardwareDisplay makes the hardware display probe succeed.
func WithHardwareDisplay() SimulatorOption {
	return func(s *Simulator) { s.hardware = true }
}

// WithCameraError makes camera acquisition fail with err.
func WithCameraError(err error) SimulatorOption {
	return func(s *Simulator) { s.cameraErr = err }
}

// WithoutSurface makes surface creation fail.
func WithoutSurface() SimulatorOption {
	return func(s *Simulator) { s.surfaceOK = false }
}

// WithFrameInterval sets the simulated display's frame pacing.
func WithFrameInterval(d time.Duration) SimulatorOption {
	return func(s *Simulator) { s.frameInterval = d }
}

func NewSimulator(clock clockwork.Clock, opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		clock:         clock,
		surfaceOK:     true,
		frameInterval: 16 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hardware {
		s.display = NewSimDisplay(clock, s.frameInterval)
	}
	return s
}

func (s *Simulator) HardwareDisplay(_ context.Context) (Display, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hardware {
		return nil, domain.ErrDeviceUnsupported
	}
	return s.display, nil
}

func (s *Simulator) AcquireCamera(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cameraErr
}

func (s *Simulator) CreateSurface(_ context.Context) (Surface, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.surfaceOK {
		return nil, domain.ErrRenderContextUnavailable
	}
	return NewSimSurface(), nil
}

// SimDisplay paces frame callbacks off the injected clock and synthesizes a
// slowly drifting head pose.
type SimDisplay struct {
	clock    clockwork.Clock
	interval time.Duration

	mu          sync.Mutex
	frameCount  uint64
	failNext    int
	failWith    error
	requestErr  error
}

func NewSimDisplay(clock clockwork.Clock, interval time.Duration) *SimDisplay {
	return &SimDisplay{clock: clock, interval: interval}
}

// FailSubmits makes the next n Submit calls return err.
func (d *SimDisplay) FailSubmits(n int, err error) {
	d.mu.Lock()
	d.failNext = n
	d.failWith = err
	d.mu.Unlock()
}

// FailRequests makes RequestFrame return err.
func (d *SimDisplay) FailRequests(err error) {
	d.mu.Lock()
	d.requestErr = err
	d.mu.Unlock()
}

func (d *SimDisplay) RequestFrame(fn func(Frame)) (FrameRequest, error) {
	d.mu.Lock()
	if d.requestErr != nil {
		err := d.requestErr
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()

	timer := d.clock.AfterFunc(d.interval, func() {
		fn(d.nextFrame())
	})
	return &simFrameRequest{timer: timer}, nil
}

func (d *SimDisplay) Submit(_ Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failNext > 0 {
		d.failNext--
		return d.failWith
	}
	return nil
}

// Frames reports how many frames the display has delivered.
func (d *SimDisplay) Frames() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frameCount
}

func (d *SimDisplay) nextFrame() Frame {
	d.mu.Lock()
	d.frameCount++
	n := d.frameCount
	d.mu.Unlock()

	drift := math.Sin(float64(n) / 60.0)
	half := simSurfaceWidth / 2
	return Frame{
		Pose: domain.Pose{
			Position:    [3]float64{drift * 0.05, 1.6, 0},
			Orientation: [4]float64{0, math.Sin(drift / 2), 0, math.Cos(drift / 2)},
		},
		Views: [2]View{
			{Viewport: Viewport{X: 0, Y: 0, Width: half, Height: simSurfaceHeight}},
			{Viewport: Viewport{X: half, Y: 0, Width: half, Height: simSurfaceHeight}},
		},
	}
}

type simFrameRequest struct {
	timer clockwork.Timer
}

func (r *simFrameRequest) Cancel() {
	r.timer.Stop()
}

// SimSurface is an in-memory drawable that counts operations. Lose simulates
// the container being removed.
type SimSurface struct {
	mu       sync.Mutex
	lost     bool
	released bool
	clears   int
	views    int
	presents int
}

func NewSimSurface() *SimSurface {
	return &SimSurface{}
}

// Lose invalidates the drawable: every subsequent operation fails with
// RenderContextUnavailable.
func (s *SimSurface) Lose() {
	s.mu.Lock()
	s.lost = true
	s.mu.Unlock()
}

func (s *SimSurface) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lost {
		return domain.ErrRenderContextUnavailable
	}
	s.clears++
	return nil
}

func (s *SimSurface) RenderView(_ View) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lost {
		return domain.ErrRenderContextUnavailable
	}
	s.views++
	return nil
}

func (s *SimSurface) RenderOrbit(_ domain.CameraState, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lost {
		return domain.ErrRenderContextUnavailable
	}
	return nil
}

func (s *SimSurface) Present() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lost {
		return domain.ErrRenderContextUnavailable
	}
	s.presents++
	return nil
}

func (s *SimSurface) Release() {
	s.mu.Lock()
	s.released = true
	s.mu.Unlock()
}

// Released reports whether Release was called.
func (s *SimSurface) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Presents reports how many frames were presented.
func (s *SimSurface) Presents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presents
}
