package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertarktes/cinema-booking/internal/observability"
)

func TestRequestLoggerCarriesRequestScope(t *testing.T) {
	base := observability.NewLogger()

	var got observability.Logger
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestLogger(r.Context(), base)
		w.WriteHeader(http.StatusOK)
	})

	wrapped := RequestIDMiddleware(LoggerMiddleware(base)(handler))
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, got)
	// The request-id-tagged child, not the base logger.
	assert.NotEqual(t, base, got)

	// Outside a request scope the fallback is returned.
	assert.Equal(t, base, requestLogger(context.Background(), base))
}
