package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session authority metrics
var (
	// AuthoritySessionsActive tracks currently active sessions
	AuthoritySessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authority_sessions_active",
			Help: "Number of currently active sessions",
		},
	)

	// AuthorityEvictionsTotal tracks sessions evicted to admit a new one
	AuthorityEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authority_evictions_total",
			Help: "Sessions evicted at the per-user concurrency cap",
		},
	)

	// AuthorityExpirationsTotal tracks sessions terminated on idle timeout
	AuthorityExpirationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authority_expirations_total",
			Help: "Sessions terminated after exceeding the idle timeout",
		},
	)

	// PermissionDenialsTotal tracks failed permission checks by permission type
	PermissionDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authority_permission_denials_total",
			Help: "Failed permission checks by permission type",
		},
		[]string{"permission"},
	)
)

// Presentation metrics
var (
	// PresentationsActive tracks running render loops by mode
	PresentationsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "presentations_active",
			Help: "Running presentation sessions by mode (hardware/fallback)",
		},
		[]string{"mode"},
	)

	// FramesRenderedTotal tracks rendered frames by mode
	FramesRenderedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presentation_frames_rendered_total",
			Help: "Frames rendered by mode",
		},
		[]string{"mode"},
	)

	// FrameSubmitFailuresTotal tracks failed hardware frame submissions
	FrameSubmitFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "presentation_frame_submit_failures_total",
			Help: "Failed hardware frame submissions",
		},
	)
)

// Scene metrics
var (
	// SceneObjectsCurrent tracks spatial objects across all scene sessions
	SceneObjectsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scene_objects_current",
			Help: "Spatial objects currently placed across all scene sessions",
		},
	)

	// InteractionsDispatchedTotal tracks dispatched interactions by type
	InteractionsDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scene_interactions_dispatched_total",
			Help: "Interaction events dispatched to objects, by type",
		},
		[]string{"type"},
	)

	// InteractionsDroppedTotal tracks interactions dropped as noise
	InteractionsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scene_interactions_dropped_total",
			Help: "Interaction events dropped (unknown or non-interactable target)",
		},
		[]string{"reason"},
	)
)

// Broadcast metrics
var (
	// BroadcastConnectedClients tracks connected dashboard websocket clients
	BroadcastConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_connected_clients",
			Help: "Connected dashboard WebSocket clients across all sessions",
		},
	)

	// BroadcastMessagesSentTotal tracks state snapshots pushed to clients
	BroadcastMessagesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_messages_sent_total",
			Help: "State snapshots pushed to dashboard clients",
		},
	)

	// BroadcastPingFailures tracks failed keepalive pings
	BroadcastPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_ping_failures_total",
			Help: "Failed WebSocket keepalive pings",
		},
	)
)
