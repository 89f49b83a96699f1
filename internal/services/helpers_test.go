package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embakulas/expense-tracker/internal/middleware"
)

// authedRequest builds a request carrying an authenticated owner id, the way
// the auth middleware would after validating a token.
func authedRequest(t *testing.T, method, target string, userID int, body io.Reader) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, userID))
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, rec.Code, "response body: %s", rec.Body.String())
}
