package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucmas-ksa/portal-api/internal/models"
	appErrors "github.com/ucmas-ksa/portal-api/pkg/errors"
)

type mockDashboardOrgs struct {
	counts map[models.OrganizationStatus]int
	calls  int
}

func (m *mockDashboardOrgs) CountByStatus(_ context.Context) (map[models.OrganizationStatus]int, error) {
	m.calls++
	return m.counts, nil
}

type mockDashboardStudents struct {
	counts map[string]int
	scopes []string
}

func (m *mockDashboardStudents) Count(_ context.Context, organizationID string) (int, error) {
	m.scopes = append(m.scopes, organizationID)
	return m.counts[organizationID], nil
}

type mockDashboardEnrollments struct {
	counts map[string]map[models.RegistrationStatus]int
}

func (m *mockDashboardEnrollments) CountByStatus(_ context.Context, organizationID string) (map[models.RegistrationStatus]int, error) {
	return m.counts[organizationID], nil
}

type mockDashboardRegistrations struct {
	counts map[string]map[models.RegistrationStatus]int
}

func (m *mockDashboardRegistrations) CountByStatus(_ context.Context, organizationID string) (map[models.RegistrationStatus]int, error) {
	return m.counts[organizationID], nil
}

type mockDashboardInvoices struct {
	counts  map[string]map[models.InvoiceStatus]int
	revenue map[string]decimal.Decimal
}

func (m *mockDashboardInvoices) CountByStatus(_ context.Context, organizationID string) (map[models.InvoiceStatus]int, error) {
	return m.counts[organizationID], nil
}

func (m *mockDashboardInvoices) SumPaidTotals(_ context.Context, organizationID string) (decimal.Decimal, error) {
	return m.revenue[organizationID], nil
}

func newDashboardFixture() (*DashboardService, *mockDashboardOrgs, *mockDashboardStudents) {
	orgs := &mockDashboardOrgs{counts: map[models.OrganizationStatus]int{
		models.OrgStatusApproved: 5,
		models.OrgStatusPending:  2,
	}}
	students := &mockDashboardStudents{counts: map[string]int{
		"":      120,
		"org-1": 30,
	}}
	enrollments := &mockDashboardEnrollments{counts: map[string]map[models.RegistrationStatus]int{
		"":      {models.StatusDraft: 40, models.StatusPaid: 25},
		"org-1": {models.StatusDraft: 10, models.StatusPaid: 6},
	}}
	registrations := &mockDashboardRegistrations{counts: map[string]map[models.RegistrationStatus]int{
		"":      {models.StatusSubmitted: 12},
		"org-1": {models.StatusSubmitted: 3},
	}}
	invoices := &mockDashboardInvoices{
		counts: map[string]map[models.InvoiceStatus]int{
			"":      {models.InvoiceStatusPaid: 9},
			"org-1": {models.InvoiceStatusPaid: 2},
		},
		revenue: map[string]decimal.Decimal{
			"":      decimal.RequireFromString("10350.00"),
			"org-1": decimal.RequireFromString("690.00"),
		},
	}
	svc := NewDashboardService(orgs, students, enrollments, registrations, invoices, nil, nil, nil)
	return svc, orgs, students
}

func TestDashboardServiceSummaryAdmin(t *testing.T) {
	svc, orgs, students := newDashboardFixture()

	summary, cacheHit, err := svc.Summary(context.Background(), adminActor())
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, 1, orgs.calls)
	assert.Equal(t, []string{""}, students.scopes)
	assert.Equal(t, 5, summary.OrganizationsByStatus[models.OrgStatusApproved])
	assert.Equal(t, 120, summary.StudentCount)
	assert.Equal(t, 40, summary.EnrollmentsByStatus[models.StatusDraft])
	assert.Equal(t, 12, summary.RegistrationsByStatus[models.StatusSubmitted])
	assert.Equal(t, 9, summary.InvoicesByStatus[models.InvoiceStatusPaid])
	assert.True(t, summary.Revenue.Equal(decimal.RequireFromString("10350.00")))
}

func TestDashboardServiceSummaryScopedToOrganization(t *testing.T) {
	svc, orgs, students := newDashboardFixture()

	summary, _, err := svc.Summary(context.Background(), orgActor(models.RoleOrgManager, "org-1"))
	require.NoError(t, err)
	assert.Equal(t, 0, orgs.calls)
	assert.Nil(t, summary.OrganizationsByStatus)
	assert.Equal(t, []string{"org-1"}, students.scopes)
	assert.Equal(t, 30, summary.StudentCount)
	assert.Equal(t, 10, summary.EnrollmentsByStatus[models.StatusDraft])
	assert.Equal(t, 3, summary.RegistrationsByStatus[models.StatusSubmitted])
	assert.Equal(t, 2, summary.InvoicesByStatus[models.InvoiceStatusPaid])
	assert.True(t, summary.Revenue.Equal(decimal.RequireFromString("690.00")))
}

func TestDashboardServiceSummaryStaffAllowed(t *testing.T) {
	svc, _, _ := newDashboardFixture()

	summary, _, err := svc.Summary(context.Background(), orgActor(models.RoleOrgStaff, "org-1"))
	require.NoError(t, err)
	assert.Equal(t, 30, summary.StudentCount)
}

func TestDashboardServiceSummaryRejectsAnonymous(t *testing.T) {
	svc, _, _ := newDashboardFixture()

	_, _, err := svc.Summary(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

type mockSummaryCache struct {
	entries map[string][]byte
	sets    int
}

func (m *mockSummaryCache) Get(_ context.Context, scope string) ([]byte, error) {
	raw, ok := m.entries[scope]
	if !ok {
		return nil, appErrors.ErrCacheMiss
	}
	return raw, nil
}

func (m *mockSummaryCache) Set(_ context.Context, scope string, payload []byte) error {
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	m.entries[scope] = payload
	m.sets++
	return nil
}

func TestDashboardServiceSummaryServedFromCache(t *testing.T) {
	students := &mockDashboardStudents{counts: map[string]int{"org-1": 30}}
	enrollments := &mockDashboardEnrollments{counts: map[string]map[models.RegistrationStatus]int{
		"org-1": {models.StatusDraft: 10},
	}}
	registrations := &mockDashboardRegistrations{counts: map[string]map[models.RegistrationStatus]int{
		"org-1": {models.StatusSubmitted: 3},
	}}
	invoices := &mockDashboardInvoices{
		counts:  map[string]map[models.InvoiceStatus]int{"org-1": {models.InvoiceStatusPaid: 2}},
		revenue: map[string]decimal.Decimal{"org-1": decimal.RequireFromString("690.00")},
	}
	cache := &mockSummaryCache{}
	metrics := NewMetricsService()
	svc := NewDashboardService(&mockDashboardOrgs{}, students, enrollments, registrations, invoices, cache, metrics, nil)
	actor := orgActor(models.RoleOrgManager, "org-1")

	first, hit, err := svc.Summary(context.Background(), actor)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, cache.sets)

	second, hit, err := svc.Summary(context.Background(), actor)
	require.NoError(t, err)
	assert.True(t, hit)
	// The second call never touched the counters.
	assert.Equal(t, []string{"org-1"}, students.scopes)
	assert.Equal(t, first.StudentCount, second.StudentCount)
	assert.True(t, second.Revenue.Equal(first.Revenue))

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.CacheHits)
	assert.Equal(t, uint64(1), snap.CacheMisses)
}
