package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("decodes a single object", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", jsonBody(`{"name": "Chase"}`))
		var dst payload
		err := DecodeJSON(httptest.NewRecorder(), req, &dst)
		require.NoError(t, err)
		assert.Equal(t, "Chase", dst.Name)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", jsonBody(`{"name": "Chase", "extra": 1}`))
		var dst payload
		err := DecodeJSON(httptest.NewRecorder(), req, &dst)
		assert.Error(t, err)
	})

	t.Run("rejects trailing objects", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", jsonBody(`{"name": "a"}{"name": "b"}`))
		var dst payload
		err := DecodeJSON(httptest.NewRecorder(), req, &dst)
		assert.Error(t, err)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", jsonBody(`{"name":`))
		var dst payload
		err := DecodeJSON(httptest.NewRecorder(), req, &dst)
		assert.Error(t, err)
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("plain error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		SendErrorResponse(rec, "Something failed", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Something failed", resp.Error)
		assert.Empty(t, resp.Details)
	})

	t.Run("validation errors include per-field details", func(t *testing.T) {
		type form struct {
			Email string `validate:"required,email"`
		}
		err := validator.New().Struct(&form{Email: "nope"})
		require.Error(t, err)

		rec := httptest.NewRecorder()
		SendErrorResponse(rec, "Validation failed", http.StatusBadRequest, err)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Details, "Email")
	})
}
