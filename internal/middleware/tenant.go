package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nif-edu/fees-api/internal/models"
	appErrors "github.com/nif-edu/fees-api/pkg/errors"
	"github.com/nif-edu/fees-api/pkg/response"
)

// ContextScopeKey is the gin context key storing the resolved tenant scope.
const ContextScopeKey = "tenantScope"

const (
	schoolHeader = "X-School-ID"
	campusHeader = "X-Campus-ID"
)

// TenantScope resolves the effective (schoolID, campusID) for the request and
// stores it in the context. Runs after JWT.
//
// A school claim in the token is authoritative; caller-supplied values are
// ignored for scoped tokens. Super-admin tokens carry no school claim and may
// target any tenant via header, query, or JSON body, in that precedence.
func TenantScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		scope := models.TenantScope{}

		if claims.Role == models.RoleSuperAdmin || claims.SchoolID == "" {
			if claims.Role != models.RoleSuperAdmin {
				response.Error(c, appErrors.Clone(appErrors.ErrValidation, "schoolId is required"))
				c.Abort()
				return
			}
			scope.SuperAdmin = true
			scope.SchoolID = callerSupplied(c, schoolHeader, "schoolId")
			scope.CampusID = callerSupplied(c, campusHeader, "campusId")
		} else {
			scope.SchoolID = claims.SchoolID
			scope.CampusID = claims.CampusID
			if scope.CampusID == "" {
				scope.CampusID = callerSupplied(c, campusHeader, "campusId")
			}
			if scope.CampusID == "" {
				response.Error(c, appErrors.Clone(appErrors.ErrValidation, "campusId is required"))
				c.Abort()
				return
			}
		}

		c.Set(ContextScopeKey, scope)
		c.Next()
	}
}

// ScopeFromContext retrieves the resolved scope; ok is false when the tenant
// middleware did not run.
func ScopeFromContext(c *gin.Context) (models.TenantScope, bool) {
	value, exists := c.Get(ContextScopeKey)
	if !exists {
		return models.TenantScope{}, false
	}
	scope, ok := value.(models.TenantScope)
	return scope, ok
}

// callerSupplied reads a tenant field with header > query > body precedence.
func callerSupplied(c *gin.Context, header, field string) string {
	if v := strings.TrimSpace(c.GetHeader(header)); v != "" {
		return v
	}
	if v := strings.TrimSpace(c.Query(field)); v != "" {
		return v
	}
	return bodyField(c, field)
}

// bodyField peeks a string field out of a JSON body without consuming it.
func bodyField(c *gin.Context, field string) string {
	if c.Request.Body == nil || !strings.Contains(c.ContentType(), "application/json") {
		return ""
	}
	raw, err := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	if v, ok := payload[field].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
