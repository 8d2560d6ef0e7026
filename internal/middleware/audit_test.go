package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucmas-ksa/portal-api/internal/models"
)

type mockAuditRecorder struct {
	logs []*models.AuditLog
	err  error
}

func (m *mockAuditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, log)
	return m.err
}

func newAuditRouter(recorder *mockAuditRecorder, claims *models.JWTClaims, status int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	group := r.Group("/students", func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
		c.Next()
	}, Audit(recorder, "students"))
	group.GET("", func(c *gin.Context) { c.Status(status) })
	group.POST("", func(c *gin.Context) { c.Status(status) })
	group.PUT("/:id", func(c *gin.Context) { c.Status(status) })
	return r
}

func TestAuditRecordsSuccessfulMutation(t *testing.T) {
	recorder := &mockAuditRecorder{}
	claims := &models.JWTClaims{UserID: "u-1", Role: models.RoleOrgStaff}
	r := newAuditRouter(recorder, claims, http.StatusCreated)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/students", nil)
	req.Header.Set("User-Agent", "portal-test")
	r.ServeHTTP(rec, req)

	require.Len(t, recorder.logs, 1)
	entry := recorder.logs[0]
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "u-1", *entry.UserID)
	assert.Equal(t, http.MethodPost, entry.Action)
	assert.Equal(t, "students", entry.Resource)
	assert.Nil(t, entry.ResourceID)
	assert.Contains(t, string(entry.NewValues), `"path":"/students"`)
	assert.Equal(t, "portal-test", entry.UserAgent)
}

func TestAuditCapturesResourceID(t *testing.T) {
	recorder := &mockAuditRecorder{}
	claims := &models.JWTClaims{UserID: "u-1", Role: models.RoleOrgManager}
	r := newAuditRouter(recorder, claims, http.StatusOK)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/students/s-7", nil))

	require.Len(t, recorder.logs, 1)
	require.NotNil(t, recorder.logs[0].ResourceID)
	assert.Equal(t, "s-7", *recorder.logs[0].ResourceID)
}

func TestAuditSkipsReads(t *testing.T) {
	recorder := &mockAuditRecorder{}
	claims := &models.JWTClaims{UserID: "u-1", Role: models.RoleOrgStaff}
	r := newAuditRouter(recorder, claims, http.StatusOK)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/students", nil))

	assert.Empty(t, recorder.logs)
}

func TestAuditSkipsFailedRequests(t *testing.T) {
	recorder := &mockAuditRecorder{}
	claims := &models.JWTClaims{UserID: "u-1", Role: models.RoleOrgStaff}
	r := newAuditRouter(recorder, claims, http.StatusUnprocessableEntity)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/students", nil))

	assert.Empty(t, recorder.logs)
}
