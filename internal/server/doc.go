// Package server implements the HTTP facade using Echo framework.
//
// Routes: sessions (authenticate/validate/permissions/terminate), presentations
// (start/end/camera input/pose), scenes (layers/objects/tracking/interactions),
// live state (WebSocket), health and metrics.
// Handlers split by domain: handlers_session.go, handlers_presentation.go,
// handlers_scene.go, handlers_ws.go, handlers_health.go.
package server
