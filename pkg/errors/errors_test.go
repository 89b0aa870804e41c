package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAppErrorStatusAndMatching(t *testing.T) {
	err := fmt.Errorf("loading: %w", NewForbiddenError("not yours"))

	assert.True(t, IsForbidden(err))
	assert.False(t, IsNotFound(err))
	assert.True(t, stderrors.Is(err, &AppError{Type: ErrorTypeForbidden}))
	assert.Equal(t, http.StatusForbidden, GetAppError(err).HTTPStatus)
	assert.Equal(t, http.StatusNotFound, NewNotFoundError("Mind map").HTTPStatus)
	assert.Equal(t, "Mind map not found", NewNotFoundError("Mind map").Message)
}

func TestWrapKeepsCategory(t *testing.T) {
	base := NewNotFoundError("Mind map")
	wrapped := Wrap(base, "get")

	assert.True(t, IsNotFound(wrapped))
	assert.Equal(t, "get: Mind map not found", GetAppError(wrapped).Message)
	assert.Equal(t, "Mind map not found", base.Message)

	plain := Wrap(stderrors.New("boom"), "save")
	assert.True(t, IsType(plain, ErrorTypeInternal))
	assert.Nil(t, Wrap(nil, "noop"))
}

func TestErrorHandlerWritesEnvelope(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false)

	tests := []struct {
		name     string
		err      error
		status   int
		errType  string
		contains string
	}{
		{"forbidden", NewForbiddenError("Not authorized to view this mind map"), http.StatusForbidden, "FORBIDDEN", "view"},
		{"validation", NewValidationError("bad"), http.StatusBadRequest, "VALIDATION", "bad"},
		{"plain error hidden", stderrors.New("secret"), http.StatusInternalServerError, "INTERNAL", "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/mindmaps/x", nil)
			h.Handle(rec, req, tt.err)

			require.Equal(t, tt.status, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.True(t, body.Error)
			assert.Equal(t, tt.errType, body.Type)
			assert.Contains(t, body.Message, tt.contains)
		})
	}
}
