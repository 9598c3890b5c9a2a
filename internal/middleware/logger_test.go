package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(NewStructuredLogger(logger))
	r.Get("/-/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/live", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	out := buf.String()
	require.Contains(t, out, "request complete")
	require.Contains(t, out, "method=GET")
	require.Contains(t, out, "path=/-/live")
	require.Contains(t, out, "status=418")
}
