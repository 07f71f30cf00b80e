package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newAuthRouter(key string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/guarded", APIKeyAuth(key), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestAPIKeyAuth(t *testing.T) {
	cases := []struct {
		name     string
		key      string
		header   string
		bearer   string
		wantCode int
	}{
		{"disabled when unset", "", "", "", http.StatusOK},
		{"missing header", "secret", "", "", http.StatusUnauthorized},
		{"wrong key", "secret", "guess", "", http.StatusForbidden},
		{"valid key", "secret", "secret", "", http.StatusOK},
		{"trims whitespace", "secret", "  secret  ", "", http.StatusOK},
		{"valid bearer token", "secret", "", "secret", http.StatusOK},
		{"wrong bearer token", "secret", "", "guess", http.StatusForbidden},
		{"header beats bearer", "secret", "secret", "guess", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newAuthRouter(tc.key)
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/guarded", nil)
			if tc.header != "" {
				req.Header.Set("X-API-Key", tc.header)
			}
			if tc.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tc.bearer)
			}
			r.ServeHTTP(w, req)
			if w.Code != tc.wantCode {
				t.Fatalf("got status %d, want %d", w.Code, tc.wantCode)
			}
		})
	}
}
