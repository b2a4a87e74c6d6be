package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/mindhaven/immerse/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		errType ErrorType
		status  int
	}{
		{TypeValidation, http.StatusBadRequest},
		{TypeUnauthorized, http.StatusUnauthorized},
		{TypeForbidden, http.StatusForbidden},
		{TypeNotFound, http.StatusNotFound},
		{TypeGone, http.StatusGone},
		{TypeUnsupported, http.StatusUnprocessableEntity},
		{TypeInternal, http.StatusInternalServerError},
		{TypeExternal, http.StatusBadGateway},
		{ErrorType("mystery"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		err := &Error{Type: tt.errType, Message: "x"}
		assert.Equal(t, tt.status, err.HTTPStatus(), "type %s", tt.errType)
	}
}

func TestAsStructuredError_DomainSentinels(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		errType ErrorType
	}{
		{"not authenticated", domain.ErrNotAuthenticated, TypeUnauthorized},
		{"permission denied", domain.ErrPermissionDenied, TypeForbidden},
		{"session not found", domain.ErrSessionNotFound, TypeNotFound},
		{"presentation not found", domain.ErrPresentationNotFound, TypeNotFound},
		{"scene not found", domain.ErrSceneSessionNotFound, TypeNotFound},
		{"layer not found", domain.ErrLayerNotFound, TypeNotFound},
		{"object not found", domain.ErrObjectNotFound, TypeNotFound},
		{"terminated", domain.ErrSessionTerminated, TypeGone},
		{"expired", domain.ErrSessionExpired, TypeGone},
		{"unsupported device", domain.ErrDeviceUnsupported, TypeUnsupported},
		{"render context lost", domain.ErrRenderContextUnavailable, TypeExternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			structured := AsStructuredError(tt.err)
			assert.Equal(t, tt.errType, structured.Type)
			assert.ErrorIs(t, structured, tt.err)
		})
	}
}

func TestAsStructuredError_WrappedSentinel(t *testing.T) {
	wrapped := fmt.Errorf("starting presentation: %w", domain.ErrDeviceUnsupported)
	structured := AsStructuredError(wrapped)
	assert.Equal(t, TypeUnsupported, structured.Type)
}

func TestAsStructuredError_PassesThroughStructured(t *testing.T) {
	original := ValidationError("device_id is required")
	assert.Same(t, original, AsStructuredError(original))
}

func TestAsStructuredError_UnknownBecomesInternal(t *testing.T) {
	cause := stderrors.New("boom")
	structured := AsStructuredError(cause)
	assert.Equal(t, TypeInternal, structured.Type)
	assert.Equal(t, "internal server error", structured.Message)
	assert.ErrorIs(t, structured, cause)
}

func TestAsStructuredError_Nil(t *testing.T) {
	assert.Nil(t, AsStructuredError(nil))
}

func TestErrorString(t *testing.T) {
	plain := &Error{Type: TypeValidation, Message: "bad input"}
	assert.Equal(t, "validation: bad input", plain.Error())

	caused := InternalError("store write failed", stderrors.New("connection reset"))
	assert.Equal(t, "internal: store write failed: connection reset", caused.Error())
}

func TestWithContext(t *testing.T) {
	err := NotFoundError("no such layer").WithContext("layer_id", "abc")
	assert.Equal(t, "abc", err.Context["layer_id"])

	response := err.ToResponse()
	assert.Equal(t, "no such layer", response.Error)
	assert.Equal(t, TypeNotFound, response.Type)
	assert.Equal(t, "abc", response.Context["layer_id"])
}
