package presentation

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mindhaven/immerse/internal/domain"
	"github.com/mindhaven/immerse/internal/metrics"
	"github.com/sony/gobreaker"
)

const submitTripThreshold = 3

// hardwareLoop renders stereo frames driven by the display's own frame
// callbacks. There is no internal timer: the display paces the loop.
type hardwareLoop struct {
	m       *Manager
	p       *runningPresentation
	display Display
	surface Surface
	breaker *gobreaker.CircuitBreaker

	running atomic.Bool

	reqMu sync.Mutex
	req   FrameRequest
}

func newHardwareLoop(m *Manager, p *runningPresentation, display Display, surface Surface) *hardwareLoop {
	l := &hardwareLoop{
		m:       m,
		p:       p,
		display: display,
		surface: surface,
	}
	l.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "frame-submit",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= submitTripThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Frame submit breaker state changed",
				"presentation_id", p.record.ID.String(),
				"from", from.String(),
				"to", to.String())
		},
	})
	return l
}

func (l *hardwareLoop) start() error {
	l.running.Store(true)
	return l.requestNext()
}

// stop flips the running flag. The in-flight frame callback observes it and
// refuses to reschedule; any pending request is cancelled.
func (l *hardwareLoop) stop() {
	l.running.Store(false)
	l.reqMu.Lock()
	if l.req != nil {
		l.req.Cancel()
		l.req = nil
	}
	l.reqMu.Unlock()
}

func (l *hardwareLoop) requestNext() error {
	req, err := l.display.RequestFrame(l.onFrame)
	if err != nil {
		return err
	}
	l.reqMu.Lock()
	l.req = req
	l.reqMu.Unlock()
	return nil
}

func (l *hardwareLoop) onFrame(frame Frame) {
	if !l.running.Load() {
		return
	}

	l.m.recordPose(l.p, frame.Pose)

	if err := l.surface.Clear(); err != nil {
		l.fail(err)
		return
	}
	for _, view := range frame.Views {
		if err := l.surface.RenderView(view); err != nil {
			l.fail(err)
			return
		}
	}

	_, err := l.breaker.Execute(func() (any, error) {
		return nil, l.display.Submit(frame)
	})
	if err != nil {
		metrics.FrameSubmitFailuresTotal.Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, domain.ErrRenderContextUnavailable) {
			l.fail(domain.ErrRenderContextUnavailable)
			return
		}
		// Transient submit failure below the trip threshold: keep going.
		slog.Warn("Frame submit failed",
			"presentation_id", l.p.record.ID.String(),
			"error", err)
	}

	l.m.frameRendered(l.p)

	if !l.running.Load() {
		return
	}
	if err := l.requestNext(); err != nil {
		l.fail(err)
	}
}

// fail force-ends the session; losing the render context is not recoverable.
func (l *hardwareLoop) fail(err error) {
	l.running.Store(false)
	l.m.finish(l.p, err)
}
