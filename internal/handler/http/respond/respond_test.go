package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"survey-offers/internal/domain/entity"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body["error"]
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusCreated, struct{ ID int }{ID: 123})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, `{"ID":123}`, strings.TrimSpace(w.Body.String()))

	w = httptest.NewRecorder()
	JSON(w, http.StatusNoContent, nil)
	assert.Empty(t, w.Body.String())
}

func TestJSON_EncodingError(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, make(chan int))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusTeapot, errors.New("short and stout"))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "short and stout", decodeError(t, w))
}

func TestSafeError(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		err     error
		wantMsg string
	}{
		{"validation message passes", http.StatusBadRequest, errors.New("user_id is required"), "user_id is required"},
		{"unauthorized passes", http.StatusUnauthorized, errors.New("unauthorized: token expired"), "unauthorized: token expired"},
		{"unknown client error hidden", http.StatusBadRequest, errors.New("pq: relation missing"), "Bad Request"},
		{"5xx always hidden", http.StatusInternalServerError, errors.New("invalid memory address"), "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			SafeError(w, tt.code, tt.err)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.wantMsg, decodeError(t, w))
		})
	}

	w := httptest.NewRecorder()
	SafeError(w, http.StatusBadRequest, nil)
	assert.Empty(t, w.Body.String())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &entity.ValidationError{Field: "limit", Message: "must be positive"}, http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("decode: %w", entity.ErrInvalidInput), http.StatusBadRequest},
		{"unknown provider", fmt.Errorf("%w: acme", entity.ErrUnknownProvider), http.StatusNotFound},
		{"not found", entity.ErrNotFound, http.StatusNotFound},
		{"invalid config", fmt.Errorf("%w: reset_timeout", entity.ErrInvalidConfig), http.StatusBadRequest},
		{"body too large", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestFromError(t *testing.T) {
	w := httptest.NewRecorder()
	FromError(w, fmt.Errorf("%w: acme", entity.ErrUnknownProvider))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decodeError(t, w), "unknown provider")

	w = httptest.NewRecorder()
	FromError(w, &http.MaxBytesError{Limit: 10})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "request body too large", decodeError(t, w))
}
