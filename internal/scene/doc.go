// Package scene maintains the AR-style layered object model.
//
// A scene session is gated by the scene-objects permission of its owning
// session and lives at most as long as that session. Layers group spatial
// objects for independent composition; interaction events are dispatched
// against interactable objects and appended to an immutable history.
package scene
