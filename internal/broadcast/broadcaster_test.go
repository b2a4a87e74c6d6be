package broadcast

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mindhaven/immerse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSource serves a fixed update for every presentation unless a
// presentation has been marked ended.
type mockSource struct {
	mu     sync.Mutex
	update StateUpdate
	ended  map[uuid.UUID]bool
}

func (m *mockSource) Snapshot(presentationID uuid.UUID) (StateUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended[presentationID] {
		return StateUpdate{}, fmt.Errorf("presentation %s: %w", presentationID, domain.ErrPresentationNotFound)
	}
	return m.update, nil
}

func (m *mockSource) setUpdate(update StateUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.update = update
}

func (m *mockSource) end(presentationID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended == nil {
		m.ended = map[uuid.UUID]bool{}
	}
	m.ended[presentationID] = true
}

// testBroadcaster sets up a Broadcaster with a test HTTP server.
func testBroadcaster(t *testing.T, source *mockSource, maxClients int) (*Broadcaster, func(presentationID uuid.UUID) *ws.Conn) {
	t.Helper()

	if source == nil {
		source = &mockSource{}
	}

	broadcaster := NewBroadcaster(source, clockwork.NewRealClock(), maxClients, 20*time.Millisecond)
	t.Cleanup(func() { broadcaster.Stop() })

	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		presentationID := uuid.MustParse(r.URL.Query().Get("presentation"))
		_ = broadcaster.Register(presentationID, conn)

		go func() {
			defer broadcaster.Unregister(presentationID, conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					break
				}
			}
		}()
	}))
	t.Cleanup(func() { server.Close() })

	dial := func(presentationID uuid.UUID) *ws.Conn {
		t.Helper()
		url := "ws" + strings.TrimPrefix(server.URL, "http") + "?presentation=" + presentationID.String()
		conn, _, err := ws.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}

	return broadcaster, dial
}

func waitForClientCount(b *Broadcaster, presentationID uuid.UUID, expected int) bool {
	for i := 0; i < 100; i++ {
		if b.ClientCount(presentationID) == expected {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func TestBroadcaster_RegisterAndReceiveTick(t *testing.T) {
	source := &mockSource{}
	source.setUpdate(StateUpdate{
		Status: "running",
		Mode:   domain.ModeFallback,
		Camera: &domain.CameraState{Yaw: 45, Pitch: -10, Zoom: 1.5},
	})
	broadcaster, dial := testBroadcaster(t, source, 10)
	presentationID := uuid.New()

	conn := dial(presentationID)
	require.True(t, waitForClientCount(broadcaster, presentationID, 1))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var update StateUpdate
	require.NoError(t, json.Unmarshal(msg, &update))
	assert.Equal(t, "running", update.Status)
	assert.Equal(t, domain.ModeFallback, update.Mode)
	require.NotNil(t, update.Camera)
	assert.Equal(t, 45.0, update.Camera.Yaw)
}

func TestBroadcaster_MaxClientsPerPresentation(t *testing.T) {
	broadcaster, dial := testBroadcaster(t, nil, 2)
	presentationID := uuid.New()

	dial(presentationID)
	dial(presentationID)
	require.True(t, waitForClientCount(broadcaster, presentationID, 2))

	// The third connection is refused and closed by the server side.
	conn := dial(presentationID)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.Equal(t, 2, broadcaster.ClientCount(presentationID))
}

func TestBroadcaster_EndedPresentationDisconnectsClients(t *testing.T) {
	source := &mockSource{}
	source.setUpdate(StateUpdate{Status: "running"})
	broadcaster, dial := testBroadcaster(t, source, 10)
	presentationID := uuid.New()

	conn := dial(presentationID)
	require.True(t, waitForClientCount(broadcaster, presentationID, 1))

	source.end(presentationID)

	// The client receives a close frame and the read loop ends.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var closeErr error
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			closeErr = err
			break
		}
	}
	require.Error(t, closeErr)
	assert.True(t, ws.IsCloseError(closeErr, ws.CloseNormalClosure) || !ws.IsUnexpectedCloseError(closeErr))
	assert.True(t, waitForClientCount(broadcaster, presentationID, 0))
}

func TestBroadcaster_UnregisterOnClientDisconnect(t *testing.T) {
	broadcaster, dial := testBroadcaster(t, nil, 10)
	presentationID := uuid.New()

	conn := dial(presentationID)
	require.True(t, waitForClientCount(broadcaster, presentationID, 1))

	conn.Close()
	assert.True(t, waitForClientCount(broadcaster, presentationID, 0))
}

func TestBroadcaster_StopClosesClients(t *testing.T) {
	source := &mockSource{}
	source.setUpdate(StateUpdate{Status: "running"})
	broadcaster, dial := testBroadcaster(t, source, 10)
	presentationID := uuid.New()

	conn := dial(presentationID)
	require.True(t, waitForClientCount(broadcaster, presentationID, 1))

	broadcaster.Stop()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
