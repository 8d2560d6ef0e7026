package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/ucmas-ksa/portal-api/internal/models"
)

func newRBACRouter(claims *models.JWTClaims, allowed ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/users/:id", func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
		c.Next()
	}, RBAC(allowed...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRBACRejectsMissingClaims(t *testing.T) {
	r := newRBACRouter(nil, string(models.RoleAdmin))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/u-1", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRBACAllowsListedRole(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u-1", Role: models.RoleAdmin}
	r := newRBACRouter(claims, string(models.RoleAdmin))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/u-9", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRBACForbidsUnlistedRole(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u-1", Role: models.RoleOrgStaff}
	r := newRBACRouter(claims, string(models.RoleAdmin), string(models.RoleOrgManager))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/u-9", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRBACSelfMatchesRouteParam(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u-1", Role: models.RoleOrgStaff}
	r := newRBACRouter(claims, string(models.RoleAdmin), "SELF")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/u-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/u-2", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireRoles(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u-1", Role: models.RoleOrgManager}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/invoices", func(c *gin.Context) {
		c.Set(ContextUserKey, claims)
		c.Next()
	}, RequireRoles(models.RoleAdmin, models.RoleOrgManager), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
