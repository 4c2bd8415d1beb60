package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/flowguard/flowguard/internal/logger"
)

func panicRouter(verbose bool) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), Recovery(verbose), Tenant())
	router.POST("/api/v1/traffic/analyze", func(c *gin.Context) {
		panic("classifier exploded")
	})
	return router
}

func TestRecovery(t *testing.T) {
	tests := []struct {
		name      string
		verbose   bool
		wantStack bool
	}{
		{"verbose includes stack", true, true},
		{"brief omits stack", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger.Init(false, buf)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/traffic/analyze", nil)
			req.Header.Set(TenantHeader, "12")
			w := httptest.NewRecorder()
			panicRouter(tt.verbose).ServeHTTP(w, req)

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			out := buf.String()
			assert.Contains(t, out, "recovered from panic: classifier exploded")
			assert.Contains(t, out, `"request_id"`)
			assert.Contains(t, out, `"tenant_id":12`)
			if tt.wantStack {
				assert.Contains(t, out, `"stack"`)
			} else {
				assert.NotContains(t, out, `"stack"`)
			}
		})
	}
}

func TestRecoveryRedactsCredentials(t *testing.T) {
	buf := &bytes.Buffer{}
	logger.Init(true, buf)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/traffic/analyze", nil)
	req.Header.Set(TenantHeader, "1")
	req.Header.Set("Authorization", "Bearer secret-token")
	w := httptest.NewRecorder()
	panicRouter(true).ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, buf.String(), "secret-token")
	assert.Contains(t, buf.String(), "<redacted>")
}
