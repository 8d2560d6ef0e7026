package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucmas-ksa/portal-api/internal/middleware"
	"github.com/ucmas-ksa/portal-api/internal/models"
	"github.com/ucmas-ksa/portal-api/internal/service"
)

type fakeOrgCounter struct{}

func (fakeOrgCounter) CountByStatus(context.Context) (map[models.OrganizationStatus]int, error) {
	return map[models.OrganizationStatus]int{models.OrgStatusApproved: 3}, nil
}

type fakeStudentCounter struct{}

func (fakeStudentCounter) Count(_ context.Context, organizationID string) (int, error) {
	if organizationID == "" {
		return 75, nil
	}
	return 12, nil
}

type fakeRegistrationCounter struct{}

func (fakeRegistrationCounter) CountByStatus(_ context.Context, _ string) (map[models.RegistrationStatus]int, error) {
	return map[models.RegistrationStatus]int{models.StatusDraft: 5}, nil
}

type fakeInvoiceCounter struct{}

func (fakeInvoiceCounter) CountByStatus(_ context.Context, _ string) (map[models.InvoiceStatus]int, error) {
	return map[models.InvoiceStatus]int{models.InvoiceStatusIssued: 2}, nil
}

func (fakeInvoiceCounter) SumPaidTotals(_ context.Context, _ string) (decimal.Decimal, error) {
	return decimal.RequireFromString("1725.00"), nil
}

func newDashboardHandler() *DashboardHandler {
	svc := service.NewDashboardService(fakeOrgCounter{}, fakeStudentCounter{}, fakeRegistrationCounter{}, fakeRegistrationCounter{}, fakeInvoiceCounter{}, nil, nil, nil)
	return NewDashboardHandler(svc)
}

type dashboardEnvelope struct {
	Data map[string]interface{} `json:"data"`
	Meta map[string]interface{} `json:"meta"`
}

func TestDashboardHandlerRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newDashboardHandler()

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard", nil)

	handler.Summary(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDashboardHandlerAdminSummary(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newDashboardHandler()

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-1", Role: models.RoleAdmin})

	handler.Summary(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope dashboardEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, float64(75), envelope.Data["student_count"])
	orgCounts, ok := envelope.Data["organizations_by_status"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(3), orgCounts[string(models.OrgStatusApproved)])
	assert.Equal(t, "1725.00", envelope.Data["revenue"])
	assert.Contains(t, envelope.Meta, "processing_time_ms")
	assert.Equal(t, false, envelope.Meta["cache_hit"])
}

func TestDashboardHandlerOrgScopedSummary(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newDashboardHandler()

	orgID := "org-1"
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-2", Role: models.RoleOrgManager, OrganizationID: &orgID})

	handler.Summary(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope dashboardEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, float64(12), envelope.Data["student_count"])
	_, hasOrgCounts := envelope.Data["organizations_by_status"]
	assert.False(t, hasOrgCounts)
}
