package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/mindhaven/immerse/internal/authority"
	"github.com/mindhaven/immerse/internal/config"
	"github.com/mindhaven/immerse/internal/domain"
	"github.com/mindhaven/immerse/internal/presentation"
	"github.com/mindhaven/immerse/internal/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server    *Server
	authority *authority.Authority
	scenes    *scene.Model
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	clock := clockwork.NewRealClock()
	auth := authority.New(
		authority.NewMemorySessionStore(),
		authority.NewMemoryDeviceStore(),
		clock,
		authority.Config{
			SessionTimeout:        30 * time.Minute,
			MaxConcurrentSessions: 2,
			TerminationGrace:      30 * time.Second,
			SweepInterval:         time.Minute,
		},
	)
	t.Cleanup(auth.Stop)

	platform := presentation.NewSimulator(clock)
	manager := presentation.NewManager(platform, auth, clock, presentation.Config{FallbackTickInterval: 10 * time.Millisecond})
	t.Cleanup(manager.Stop)

	scenes := scene.NewModel(auth, clock)

	cfg := &config.Config{Port: "0"}
	srv := NewServer(cfg, auth, manager, scenes, nil)
	return &testEnv{server: srv, authority: auth, scenes: scenes}
}

func (env *testEnv) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	env.server.echo.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) authenticate(t *testing.T) *domain.Session {
	t.Helper()
	session, err := env.authority.Authenticate(context.Background(), "user-1", "hmd-alpha")
	require.NoError(t, err)
	return session
}

func TestHandleAuthenticate(t *testing.T) {
	env := newTestServer(t)

	rec := env.request(t, http.MethodPost, "/api/sessions",
		`{"user_id":"user-1","device_id":"hmd-alpha"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var session domain.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, "user-1", session.UserID)
	assert.True(t, session.Active)
	assert.True(t, session.Permissions[domain.PermissionSceneObjects].Granted)
}

func TestHandleAuthenticate_Validation(t *testing.T) {
	env := newTestServer(t)

	rec := env.request(t, http.MethodPost, "/api/sessions", `{"device_id":"hmd-alpha"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/sessions", `{"user_id":"user-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetSession(t *testing.T) {
	env := newTestServer(t)
	session := env.authenticate(t)

	rec := env.request(t, http.MethodGet, "/api/sessions/"+session.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Status  domain.SessionStatus `json:"status"`
		Session *domain.Session      `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, domain.SessionActive, response.Status)
	assert.Equal(t, session.ID, response.Session.ID)
}

func TestHandleGetSession_NotFound(t *testing.T) {
	env := newTestServer(t)

	rec := env.request(t, http.MethodGet, "/api/sessions/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/sessions/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePermissions(t *testing.T) {
	env := newTestServer(t)
	session := env.authenticate(t)
	base := "/api/sessions/" + session.ID.String()

	// Recording starts denied.
	rec := env.request(t, http.MethodGet, base+"/permissions/recording", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"granted":false}`, rec.Body.String())

	rec = env.request(t, http.MethodPost, base+"/permissions", `{"permission":"recording","ttl":"5m"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodGet, base+"/permissions/recording", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"granted":true}`, rec.Body.String())

	// Unknown permission names are rejected.
	rec = env.request(t, http.MethodGet, base+"/permissions/time-travel", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTerminateSession(t *testing.T) {
	env := newTestServer(t)
	session := env.authenticate(t)

	rec := env.request(t, http.MethodDelete, "/api/sessions/"+session.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Still visible inside the grace window, but no longer active.
	rec = env.request(t, http.MethodGet, "/api/sessions/"+session.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var response struct {
		Status domain.SessionStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, domain.SessionRecentlyTerminated, response.Status)

	rec = env.request(t, http.MethodPost, "/api/sessions/"+session.ID.String()+"/validate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":false}`, rec.Body.String())
}

func TestHandleProbeCapability(t *testing.T) {
	env := newTestServer(t)

	rec := env.request(t, http.MethodGet, "/api/capability", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var caps domain.Capability
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &caps))
	assert.True(t, caps.RenderSurface)
	assert.False(t, caps.HardwareDisplay)
}

func startPresentation(t *testing.T, env *testEnv) *domain.PresentationSession {
	t.Helper()
	session := env.authenticate(t)
	rec := env.request(t, http.MethodPost, "/api/presentations",
		`{"session_id":"`+session.ID.String()+`","environment_id":"forest-clearing","kind":"guided-exercise"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var record domain.PresentationSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	return &record
}

func TestHandleStartPresentation(t *testing.T) {
	env := newTestServer(t)
	record := startPresentation(t, env)

	// No hardware display in the default simulator; fallback mode runs.
	assert.Equal(t, domain.ModeFallback, record.Mode)
	assert.Equal(t, "forest-clearing", record.EnvironmentID)
}

func TestHandleStartPresentation_RequiresActiveSession(t *testing.T) {
	env := newTestServer(t)

	rec := env.request(t, http.MethodPost, "/api/presentations",
		`{"session_id":"`+uuid.NewString()+`","environment_id":"forest-clearing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCameraInput(t *testing.T) {
	env := newTestServer(t)
	record := startPresentation(t, env)
	base := "/api/presentations/" + record.ID.String()

	rec := env.request(t, http.MethodPost, base+"/camera/drag", `{"dx":40,"dy":-20}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var camera domain.CameraState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &camera))
	assert.InDelta(t, 10.0, camera.Yaw, 0.001)
	assert.InDelta(t, -5.0, camera.Pitch, 0.001)

	rec = env.request(t, http.MethodPost, base+"/camera/key", `{"key":"zoom-in"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodPost, base+"/camera/key", `{"key":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.request(t, http.MethodPost, base+"/camera/scroll", `{"delta":-1}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleEndPresentation(t *testing.T) {
	env := newTestServer(t)
	record := startPresentation(t, env)

	rec := env.request(t, http.MethodDelete, "/api/presentations/"+record.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodDelete, "/api/presentations/"+record.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The record survives with its final duration.
	rec = env.request(t, http.MethodGet, "/api/presentations/"+record.ID.String(), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func initializeScene(t *testing.T, env *testEnv) *domain.SceneSession {
	t.Helper()
	session := env.authenticate(t)
	rec := env.request(t, http.MethodPost, "/api/scenes",
		`{"session_id":"`+session.ID.String()+`","presentation_id":"`+uuid.NewString()+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var record domain.SceneSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	return &record
}

func TestHandleSceneObjects(t *testing.T) {
	env := newTestServer(t)
	record := initializeScene(t, env)
	base := "/api/scenes/" + record.ID.String()
	layerID := record.Layers[0].ID

	rec := env.request(t, http.MethodPost, base+"/objects",
		`{"layer_id":"`+layerID+`","kind":"text","content":{"body":"breathe","font_size":14},"visible":true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ObjectID string `json:"object_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ObjectID)

	rec = env.request(t, http.MethodGet, base+"/view", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view []domain.SpatialObject
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view, 1)

	rec = env.request(t, http.MethodPatch, base+"/objects/"+created.ObjectID, `{"visible":false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodGet, base+"/view", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = env.request(t, http.MethodDelete, base+"/objects/"+created.ObjectID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodDelete, base+"/objects/"+created.ObjectID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSceneObjects_UnknownKind(t *testing.T) {
	env := newTestServer(t)
	record := initializeScene(t, env)

	rec := env.request(t, http.MethodPost, "/api/scenes/"+record.ID.String()+"/objects",
		`{"layer_id":"`+record.Layers[0].ID+`","kind":"hologram","content":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSceneLayers(t *testing.T) {
	env := newTestServer(t)
	record := initializeScene(t, env)
	base := "/api/scenes/" + record.ID.String()

	rec := env.request(t, http.MethodPost, base+"/layers", `{"name":"ambient"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var layer domain.Layer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &layer))

	rec = env.request(t, http.MethodPut, base+"/layers/"+layer.ID, `{"make_active":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodPut, base+"/layers/no-such-layer", `{"active":false}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleInteractions(t *testing.T) {
	env := newTestServer(t)
	record := initializeScene(t, env)
	base := "/api/scenes/" + record.ID.String()

	rec := env.request(t, http.MethodPost, base+"/objects",
		`{"layer_id":"`+record.Layers[0].ID+`","kind":"interactive","content":{"action":"start-breathing-exercise"},"visible":true,"interactable":true}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ObjectID string `json:"object_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = env.request(t, http.MethodPost, base+"/interactions",
		`{"object_id":"`+created.ObjectID+`","type":"select"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// Unknown targets are accepted and silently dropped.
	rec = env.request(t, http.MethodPost, base+"/interactions",
		`{"object_id":"ghost","type":"hover"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = env.request(t, http.MethodGet, base+"/interactions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []domain.InteractionEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Len(t, history, 1)

	rec = env.request(t, http.MethodGet, base+"/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats domain.SceneStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.ObjectCount)
	assert.Equal(t, 1, stats.InteractionCount)
}

func TestHandleTracking(t *testing.T) {
	env := newTestServer(t)
	record := initializeScene(t, env)
	base := "/api/scenes/" + record.ID.String()

	rec := env.request(t, http.MethodPost, base+"/tracking",
		`{"head":{"position":[0,1.6,0],"orientation":[0,0,0,1]}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodGet, base+"/tracking", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tracking domain.TrackingData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tracking))
	require.NotNil(t, tracking.Head)
	assert.Equal(t, 1.6, tracking.Head.Position[1])
}

func TestHandleHealth(t *testing.T) {
	env := newTestServer(t)

	rec := env.request(t, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(t, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	env.server.AddReadinessCheck("always-down", func(context.Context) error {
		return assert.AnError
	})
	rec = env.request(t, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleMetricsRoute(t *testing.T) {
	env := newTestServer(t)

	rec := env.request(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "authority_sessions_active")
}
