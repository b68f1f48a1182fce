package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS_AllowsConfiguredOrigin(t *testing.T) {
	var called bool
	h := CORS([]string{"https://dash.example.com"})(okHandler(&called))

	r := httptest.NewRequest("GET", "/api/status", nil)
	r.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.True(t, called)
	assert.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORS_UnlistedOriginGetsNoHeaders(t *testing.T) {
	var called bool
	h := CORS([]string{"https://dash.example.com"})(okHandler(&called))

	r := httptest.NewRequest("GET", "/api/status", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.True(t, called, "request still serves, the browser enforces the block")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_EmptyListAllowsAll(t *testing.T) {
	var called bool
	h := CORS(nil)(okHandler(&called))

	r := httptest.NewRequest("GET", "/api/status", nil)
	r.Header.Set("Origin", "https://anywhere.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.Equal(t, "https://anywhere.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_WildcardEntry(t *testing.T) {
	var called bool
	h := CORS([]string{"*"})(okHandler(&called))

	r := httptest.NewRequest("GET", "/api/status", nil)
	r.Header.Set("Origin", "https://anywhere.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.Equal(t, "https://anywhere.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	var called bool
	h := CORS(nil)(okHandler(&called))

	r := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	r.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, called, "preflight never reaches the handler")
}
