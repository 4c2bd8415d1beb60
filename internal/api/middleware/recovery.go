package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Recovery converts a panic in the pipeline handlers into a 500 so one bad
// flow cannot take down the API. verbose adds the stack and sanitized request.
func Recovery(verbose bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			fields := logrus.Fields{
				"method": c.Request.Method,
				"path":   SanitizePath(c.Request.URL.Path),
			}
			if tenantID, ok := TenantID(c); ok {
				fields["tenant_id"] = tenantID
			}
			if verbose {
				fields["headers"] = SanitizeHeaders(c.Request.Header)
				fields["stack"] = string(debug.Stack())
			}
			GetRequestLogger(c).WithFields(fields).Errorf("recovered from panic: %v", r)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}()
		c.Next()
	}
}
