package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/nif-edu/fees-api/internal/middleware"
	"github.com/nif-edu/fees-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// scopeFromContext returns the tenant scope resolved by the middleware chain.
// Handlers behind TenantScope() can rely on ok being true.
func scopeFromContext(c *gin.Context) (models.TenantScope, bool) {
	return middleware.ScopeFromContext(c)
}
