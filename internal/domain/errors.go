package domain

import "errors"

var (
	ErrNotAuthenticated         = errors.New("not authenticated")
	ErrSessionNotFound          = errors.New("session not found")
	ErrSessionExpired           = errors.New("session expired")
	ErrSessionTerminated        = errors.New("session recently terminated")
	ErrPermissionDenied         = errors.New("permission denied")
	ErrDeviceUnsupported        = errors.New("device unsupported")
	ErrCameraAccessDenied       = errors.New("camera access denied")
	ErrRenderContextUnavailable = errors.New("render context unavailable")
	ErrPresentationNotFound     = errors.New("presentation session not found")
	ErrSceneSessionNotFound     = errors.New("scene session not found")
	ErrLayerNotFound            = errors.New("layer not found")
	ErrObjectNotFound           = errors.New("object not found")
)
