package presentation

import (
	"sync"
	"time"
)

// fallbackLoop renders a windowed orbit-camera view on a fixed cadence.
type fallbackLoop struct {
	m        *Manager
	p        *runningPresentation
	surface  Surface
	interval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
}

func newFallbackLoop(m *Manager, p *runningPresentation, surface Surface, interval time.Duration) *fallbackLoop {
	return &fallbackLoop{
		m:        m,
		p:        p,
		surface:  surface,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (l *fallbackLoop) start() {
	go l.run()
}

func (l *fallbackLoop) stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
}

func (l *fallbackLoop) run() {
	ticker := l.m.clock.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.Chan():
			if !l.renderTick() {
				return
			}
		}
	}
}

// renderTick draws one frame. Returns false when the loop must end (surface
// lost).
func (l *fallbackLoop) renderTick() bool {
	if err := l.surface.Clear(); err != nil {
		l.m.finish(l.p, err)
		return false
	}
	if err := l.surface.RenderOrbit(l.p.camera.State(), l.p.record.EnvironmentID); err != nil {
		l.m.finish(l.p, err)
		return false
	}
	if err := l.surface.Present(); err != nil {
		l.m.finish(l.p, err)
		return false
	}
	l.m.frameRendered(l.p)
	return true
}
