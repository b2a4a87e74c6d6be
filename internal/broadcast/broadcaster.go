package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mindhaven/immerse/internal/domain"
	"github.com/mindhaven/immerse/internal/metrics"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
)

// StateUpdate is the JSON payload pushed to clients on every tick.
type StateUpdate struct {
	Status         string                  `json:"status"`
	Mode           domain.PresentationMode `json:"mode,omitempty"`
	CameraDegraded bool                    `json:"camera_degraded,omitempty"`
	Camera         *domain.CameraState     `json:"camera,omitempty"`
	Pose           *domain.Pose            `json:"pose,omitempty"`
	Scene          *domain.SceneStats      `json:"scene,omitempty"`
}

// StateSource produces the current state snapshot for a presentation.
// An error wrapping domain.ErrPresentationNotFound means the presentation
// ended; the broadcaster notifies and disconnects its clients.
type StateSource interface {
	Snapshot(presentationID uuid.UUID) (StateUpdate, error)
}

type presentationClients map[*websocket.Conn]*clientWriter

type broadcasterCmd interface{ isBroadcasterCmd() }

type baseBroadcasterCmd struct{}

func (baseBroadcasterCmd) isBroadcasterCmd() {}

type registerCmd struct {
	baseBroadcasterCmd
	presentationID uuid.UUID
	connection     *websocket.Conn
	errorChannel   chan error
}

type unregisterCmd struct {
	baseBroadcasterCmd
	presentationID uuid.UUID
	connection     *websocket.Conn
}

type clientCountCmd struct {
	baseBroadcasterCmd
	presentationID uuid.UUID
	replyChannel   chan int
}

type stopCmd struct {
	baseBroadcasterCmd
}

// Broadcaster fans presentation state out to WebSocket clients on a tick
// loop. All connection state is owned by the run goroutine.
type Broadcaster struct {
	cmdCh        chan broadcasterCmd
	clock        clockwork.Clock
	source       StateSource
	clients      map[uuid.UUID]presentationClients
	done         chan struct{}
	maxClients   int
	tickInterval time.Duration
}

// NewBroadcaster creates and starts a broadcaster.
// maxClients limits connections per presentation; tickInterval controls push
// frequency.
func NewBroadcaster(source StateSource, clock clockwork.Clock, maxClients int, tickInterval time.Duration) *Broadcaster {
	b := &Broadcaster{
		cmdCh:        make(chan broadcasterCmd, 256),
		clock:        clock,
		source:       source,
		clients:      make(map[uuid.UUID]presentationClients),
		done:         make(chan struct{}),
		maxClients:   maxClients,
		tickInterval: tickInterval,
	}
	go b.run()
	return b
}

// Register adds a client watching a presentation. Returns an error when the
// per-presentation client cap is reached.
func (b *Broadcaster) Register(presentationID uuid.UUID, conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	b.cmdCh <- registerCmd{presentationID: presentationID, connection: conn, errorChannel: errCh}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes a client.
func (b *Broadcaster) Unregister(presentationID uuid.UUID, conn *websocket.Conn) {
	b.cmdCh <- unregisterCmd{presentationID: presentationID, connection: conn}
}

// ClientCount returns the number of clients watching a presentation, or -1
// if the command times out.
func (b *Broadcaster) ClientCount(presentationID uuid.UUID) int {
	replyCh := make(chan int, 1)
	b.cmdCh <- clientCountCmd{presentationID: presentationID, replyChannel: replyCh}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts the broadcaster down, closing all client connections. Blocks
// until the run goroutine exits or the stop timeout fires.
func (b *Broadcaster) Stop() {
	b.cmdCh <- stopCmd{}

	timer := b.clock.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-b.done:
		slog.Info("Broadcaster stopped gracefully")
	case <-timer.Chan():
		slog.Warn("Broadcaster stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (b *Broadcaster) run() {
	ticker := b.clock.NewTicker(b.tickInterval)
	defer ticker.Stop()
	defer close(b.done)

	for {
		select {
		case cmd := <-b.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				b.handleRegister(c)
			case unregisterCmd:
				b.handleUnregister(c)
			case clientCountCmd:
				c.replyChannel <- len(b.clients[c.presentationID])
			case stopCmd:
				b.closeAll("server shutting down")
				return
			default:
				slog.Warn("Broadcaster received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		case <-ticker.Chan():
			b.handleTick()
		}
	}
}

func (b *Broadcaster) handleRegister(c registerCmd) {
	clients, exists := b.clients[c.presentationID]
	if !exists {
		clients = make(presentationClients)
		b.clients[c.presentationID] = clients
	}

	if len(clients) >= b.maxClients {
		slog.Warn("Rejecting client: max clients reached",
			"presentation_id", c.presentationID.String(), "max_clients", b.maxClients)
		c.connection.Close()
		c.errorChannel <- fmt.Errorf("max clients per presentation (%d) reached", b.maxClients)
		return
	}

	clients[c.connection] = newClientWriter(c.connection, b.clock)
	metrics.BroadcastConnectedClients.Inc()

	slog.Debug("Client registered",
		"presentation_id", c.presentationID.String(), "total_clients", len(clients))
	c.errorChannel <- nil
}

func (b *Broadcaster) handleUnregister(c unregisterCmd) {
	clients, exists := b.clients[c.presentationID]
	if !exists {
		return
	}
	cw, exists := clients[c.connection]
	if !exists {
		return
	}

	cw.stop()
	delete(clients, c.connection)
	metrics.BroadcastConnectedClients.Dec()

	if len(clients) == 0 {
		delete(b.clients, c.presentationID)
	}
}

func (b *Broadcaster) handleTick() {
	for presentationID, clients := range b.clients {
		update, err := b.source.Snapshot(presentationID)
		if errors.Is(err, domain.ErrPresentationNotFound) {
			// Presentation ended; tell the clients and drop them.
			b.closePresentation(presentationID, "presentation ended")
			continue
		}
		if err != nil {
			slog.Error("Snapshot failed", "presentation_id", presentationID.String(), "error", err)
			continue
		}

		data, err := json.Marshal(update)
		if err != nil {
			slog.Error("Failed to marshal broadcast message", "error", err)
			continue
		}

		var slow []*websocket.Conn
		for conn, writer := range clients {
			select {
			case writer.sendChannel <- data:
				metrics.BroadcastMessagesSentTotal.Inc()
			default:
				slow = append(slow, conn)
			}
		}

		for _, conn := range slow {
			slog.Warn("Disconnecting slow client", "presentation_id", presentationID.String())
			b.handleUnregister(unregisterCmd{presentationID: presentationID, connection: conn})
		}
	}
}

func (b *Broadcaster) closePresentation(presentationID uuid.UUID, reason string) {
	clients := b.clients[presentationID]
	for _, cw := range clients {
		cw.stopGraceful(reason)
	}
	metrics.BroadcastConnectedClients.Sub(float64(len(clients)))
	delete(b.clients, presentationID)
}

func (b *Broadcaster) closeAll(reason string) {
	total := 0
	for presentationID, clients := range b.clients {
		total += len(clients)
		b.closePresentation(presentationID, reason)
	}
	slog.Info("Broadcaster shutdown complete", "disconnected_clients", total)
}
