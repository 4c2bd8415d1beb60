package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	TenantHeader = "X-Tenant-ID"
	tenantKey    = "tenantID"
)

// Tenant requires a positive numeric X-Tenant-ID header and stores it on the
// context. Identity is asserted by the fronting gateway.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(TenantHeader)
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing or invalid " + TenantHeader + " header"})
			return
		}
		c.Set(tenantKey, uint(id))
		c.Set(loggerKey, GetRequestLogger(c).WithField("tenant_id", uint(id)))
		c.Next()
	}
}

// TenantID returns the tenant set by Tenant.
func TenantID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(tenantKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}
