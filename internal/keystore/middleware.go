package keystore

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ContextKeyTenantID is the gin context key AuthGate sets on success.
const ContextKeyTenantID = "authTenantID"

// AuthGate is component C7: it resolves the bearer token on every request of
// the routes it guards to a tenant id and attaches it to the request context. It never
// distinguishes why a token was rejected in its response body.
func AuthGate(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		bearer := c.GetHeader("Authorization")
		if bearer == "" {
			bearer = c.GetHeader("X-API-Key")
		}

		tenantID, err := m.Verify(c.Request.Context(), bearer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"message": "a valid API key is required",
			})
			return
		}

		c.Set(ContextKeyTenantID, tenantID)
		c.Next()
	}
}

// TenantID returns the tenant id AuthGate attached to the request context.
func TenantID(c *gin.Context) string {
	v, _ := c.Get(ContextKeyTenantID)
	s, _ := v.(string)
	return s
}

// ContextKeyAdminID is the gin context key AdminGate sets on success.
const ContextKeyAdminID = "authAdminID"

// AdminGate restricts access to administrative endpoints to a bearer token
// that resolves against the disjoint admin key namespace (spec.md §4.1):
// same hash-then-lookup verification as AuthGate, against admin_api_keys
// instead of api_keys.
func AdminGate(m *AdminManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		bearer := c.GetHeader("Authorization")
		if bearer == "" {
			bearer = c.GetHeader("X-Admin-Key")
		}

		adminID, err := m.Verify(c.Request.Context(), bearer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "invalid admin credentials",
			})
			return
		}

		c.Set(ContextKeyAdminID, adminID)
		c.Next()
	}
}

// AdminID returns the admin id AdminGate attached to the request context.
func AdminID(c *gin.Context) string {
	v, _ := c.Get(ContextKeyAdminID)
	s, _ := v.(string)
	return s
}
