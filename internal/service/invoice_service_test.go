package service

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucmas-ksa/portal-api/internal/models"
	"github.com/ucmas-ksa/portal-api/internal/repository"
	appErrors "github.com/ucmas-ksa/portal-api/pkg/errors"
)

type issuedBucket struct {
	organizationID string
	targetID       string
	vatRate        decimal.Decimal
}

type mockInvoiceRepo struct {
	invoices      map[string]*models.InvoiceDetail
	courseBuckets []repository.InvoiceBucket
	eventBuckets  []repository.InvoiceBucket
	issueErrs     map[string]error
	issued        []issuedBucket
	markPaidOK    bool
	cancelOK      bool
}

func (m *mockInvoiceRepo) List(ctx context.Context, filter models.InvoiceFilter) ([]models.InvoiceDetail, int, error) {
	var out []models.InvoiceDetail
	for _, inv := range m.invoices {
		if filter.OrganizationID != "" && inv.OrganizationID != filter.OrganizationID {
			continue
		}
		out = append(out, *inv)
	}
	return out, len(out), nil
}

func (m *mockInvoiceRepo) FindByID(ctx context.Context, id string) (*models.InvoiceDetail, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *inv
	return &copied, nil
}

func (m *mockInvoiceRepo) ListCourseBuckets(ctx context.Context, organizationID, courseID string, ids []string) ([]repository.InvoiceBucket, error) {
	return m.courseBuckets, nil
}

func (m *mockInvoiceRepo) ListEventBuckets(ctx context.Context, organizationID, eventID string, ids []string) ([]repository.InvoiceBucket, error) {
	return m.eventBuckets, nil
}

func (m *mockInvoiceRepo) issueBucket(organizationID, targetID string, invoiceType models.InvoiceType, vatRate decimal.Decimal) (*models.Invoice, error) {
	if err, ok := m.issueErrs[organizationID+"/"+targetID]; ok {
		return nil, err
	}
	m.issued = append(m.issued, issuedBucket{organizationID: organizationID, targetID: targetID, vatRate: vatRate})
	return &models.Invoice{
		ID:             uuid.NewString(),
		InvoiceNo:      "X-1",
		InvoiceType:    invoiceType,
		Status:         models.InvoiceStatusIssued,
		OrganizationID: organizationID,
	}, nil
}

func (m *mockInvoiceRepo) IssueCourseInvoice(ctx context.Context, organizationID, courseID string, ids []string, issuedBy string, vatRate decimal.Decimal) (*models.Invoice, error) {
	return m.issueBucket(organizationID, courseID, models.InvoiceTypeCourse, vatRate)
}

func (m *mockInvoiceRepo) IssueEventInvoice(ctx context.Context, organizationID, eventID string, ids []string, issuedBy string, vatRate decimal.Decimal) (*models.Invoice, error) {
	return m.issueBucket(organizationID, eventID, models.InvoiceTypeEvent, vatRate)
}

func (m *mockInvoiceRepo) MarkPaid(ctx context.Context, id, paymentRef string) (bool, error) {
	if !m.markPaidOK {
		return false, nil
	}
	if inv, ok := m.invoices[id]; ok {
		inv.Status = models.InvoiceStatusPaid
		inv.PaymentRef = paymentRef
	}
	return true, nil
}

func (m *mockInvoiceRepo) Cancel(ctx context.Context, id string) (bool, error) {
	if !m.cancelOK {
		return false, nil
	}
	if inv, ok := m.invoices[id]; ok {
		inv.Status = models.InvoiceStatusCancelled
	}
	return true, nil
}

func TestInvoiceServiceIssuePerBucket(t *testing.T) {
	repo := &mockInvoiceRepo{courseBuckets: []repository.InvoiceBucket{
		{OrganizationID: "org-1", TargetID: "c-1"},
		{OrganizationID: "org-2", TargetID: "c-1"},
	}}
	vatRate := decimal.RequireFromString("0.15")
	svc := NewInvoiceService(repo, vatRate, nil, nil, nil)

	result, err := svc.Issue(context.Background(), adminActor(), IssueInvoicesRequest{Kind: "COURSE"})
	require.NoError(t, err)
	assert.Len(t, result.Invoices, 2)
	assert.Empty(t, result.Errors)
	require.Len(t, repo.issued, 2)
	assert.True(t, repo.issued[0].vatRate.Equal(vatRate))
}

func TestInvoiceServiceIssuePartialFailure(t *testing.T) {
	repo := &mockInvoiceRepo{
		courseBuckets: []repository.InvoiceBucket{
			{OrganizationID: "org-1", TargetID: "c-1"},
			{OrganizationID: "org-2", TargetID: "c-1"},
		},
		issueErrs: map[string]error{"org-2/c-1": repository.ErrNothingToInvoice},
	}
	svc := NewInvoiceService(repo, decimal.RequireFromString("0.15"), nil, nil, nil)

	result, err := svc.Issue(context.Background(), adminActor(), IssueInvoicesRequest{Kind: "COURSE"})
	require.NoError(t, err)
	assert.Len(t, result.Invoices, 1)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "org-2", result.Errors[0].OrganizationID)
	assert.Equal(t, appErrors.ErrNothingToInvoice.Code, result.Errors[0].Code)
}

func TestInvoiceServiceIssueNothingEligible(t *testing.T) {
	repo := &mockInvoiceRepo{}
	svc := NewInvoiceService(repo, decimal.RequireFromString("0.15"), nil, nil, nil)

	_, err := svc.Issue(context.Background(), adminActor(), IssueInvoicesRequest{Kind: "EVENT"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNothingToInvoice.Code, appErrors.FromError(err).Code)
}

func TestInvoiceServiceIssueNoActiveSeller(t *testing.T) {
	repo := &mockInvoiceRepo{
		eventBuckets: []repository.InvoiceBucket{{OrganizationID: "org-1", TargetID: "e-1"}},
		issueErrs:    map[string]error{"org-1/e-1": repository.ErrNoActiveSeller},
	}
	svc := NewInvoiceService(repo, decimal.RequireFromString("0.15"), nil, nil, nil)

	_, err := svc.Issue(context.Background(), adminActor(), IssueInvoicesRequest{Kind: "EVENT"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoActiveSeller.Code, appErrors.FromError(err).Code)
}

func TestInvoiceServiceIssuePinsOrgUsersToOwnOrganization(t *testing.T) {
	repo := &mockInvoiceRepo{courseBuckets: []repository.InvoiceBucket{{OrganizationID: "org-1", TargetID: "c-1"}}}
	svc := NewInvoiceService(repo, decimal.RequireFromString("0.15"), nil, nil, nil)

	otherOrg := uuid.NewString()
	result, err := svc.Issue(context.Background(), orgActor(models.RoleOrgManager, "org-1"), IssueInvoicesRequest{
		Kind:           "COURSE",
		OrganizationID: otherOrg,
	})
	require.NoError(t, err)
	assert.Len(t, result.Invoices, 1)
	assert.Equal(t, "org-1", repo.issued[0].organizationID)
}

func TestInvoiceServiceIssueForbiddenForStaff(t *testing.T) {
	repo := &mockInvoiceRepo{}
	svc := NewInvoiceService(repo, decimal.RequireFromString("0.15"), nil, nil, nil)

	_, err := svc.Issue(context.Background(), orgActor(models.RoleOrgStaff, "org-1"), IssueInvoicesRequest{Kind: "COURSE"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestInvoiceServiceGetHidesOtherOrganizations(t *testing.T) {
	id := uuid.NewString()
	repo := &mockInvoiceRepo{invoices: map[string]*models.InvoiceDetail{
		id: {Invoice: models.Invoice{ID: id, OrganizationID: "org-2", Status: models.InvoiceStatusIssued}},
	}}
	svc := NewInvoiceService(repo, decimal.RequireFromString("0.15"), nil, nil, nil)

	_, err := svc.Get(context.Background(), orgActor(models.RoleOrgManager, "org-1"), id)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestInvoiceServiceMarkPaidForbiddenForOrgManager(t *testing.T) {
	id := uuid.NewString()
	repo := &mockInvoiceRepo{markPaidOK: true, invoices: map[string]*models.InvoiceDetail{
		id: {Invoice: models.Invoice{ID: id, OrganizationID: "org-1", Status: models.InvoiceStatusIssued}},
	}}
	svc := NewInvoiceService(repo, decimal.RequireFromString("0.15"), nil, nil, nil)

	_, err := svc.MarkPaid(context.Background(), orgActor(models.RoleOrgManager, "org-1"), id, MarkInvoicePaidRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestInvoiceServiceMarkPaid(t *testing.T) {
	id := uuid.NewString()
	repo := &mockInvoiceRepo{markPaidOK: true, invoices: map[string]*models.InvoiceDetail{
		id: {Invoice: models.Invoice{ID: id, OrganizationID: "org-1", Status: models.InvoiceStatusIssued}},
	}}
	svc := NewInvoiceService(repo, decimal.RequireFromString("0.15"), nil, nil, nil)

	detail, err := svc.MarkPaid(context.Background(), adminActor(), id, MarkInvoicePaidRequest{PaymentRef: "BANK-7"})
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, detail.Status)
	assert.Equal(t, "BANK-7", detail.PaymentRef)
}

func TestInvoiceServiceCancelOnlyIssued(t *testing.T) {
	id := uuid.NewString()
	repo := &mockInvoiceRepo{cancelOK: false, invoices: map[string]*models.InvoiceDetail{
		id: {Invoice: models.Invoice{ID: id, OrganizationID: "org-1", Status: models.InvoiceStatusPaid}},
	}}
	svc := NewInvoiceService(repo, decimal.RequireFromString("0.15"), nil, nil, nil)

	_, err := svc.Cancel(context.Background(), adminActor(), id)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestInvoiceServiceRenderPDF(t *testing.T) {
	id := uuid.NewString()
	repo := &mockInvoiceRepo{invoices: map[string]*models.InvoiceDetail{
		id: {Invoice: models.Invoice{
			ID:             id,
			InvoiceNo:      "COURSE-2026-000004",
			InvoiceType:    models.InvoiceTypeCourse,
			Status:         models.InvoiceStatusIssued,
			OrganizationID: "org-1",
			SellerName:     "UCMAS KSA Co.",
			BuyerName:      "Al Noor School",
			VATRate:        decimal.RequireFromString("0.15"),
		}},
	}}
	svc := NewInvoiceService(repo, decimal.RequireFromString("0.15"), nil, nil, nil)

	payload, filename, err := svc.RenderPDF(context.Background(), adminActor(), id)
	require.NoError(t, err)
	assert.Equal(t, "COURSE-2026-000004.pdf", filename)
	assert.NotEmpty(t, payload)
}

func TestInvoiceServiceIssueAndSettleFeedCounters(t *testing.T) {
	id := uuid.NewString()
	repo := &mockInvoiceRepo{
		markPaidOK: true,
		courseBuckets: []repository.InvoiceBucket{
			{OrganizationID: "org-1", TargetID: "c-1"},
			{OrganizationID: "org-2", TargetID: "c-1"},
		},
		invoices: map[string]*models.InvoiceDetail{
			id: {Invoice: models.Invoice{ID: id, OrganizationID: "org-1", Status: models.InvoiceStatusIssued}},
		},
	}
	metrics := NewMetricsService()
	svc := NewInvoiceService(repo, decimal.RequireFromString("0.15"), nil, nil, metrics)

	_, err := svc.Issue(context.Background(), adminActor(), IssueInvoicesRequest{Kind: "COURSE"})
	require.NoError(t, err)
	_, err = svc.MarkPaid(context.Background(), adminActor(), id, MarkInvoicePaidRequest{})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, "invoices_issued_total 2")
	assert.Contains(t, body, "invoices_paid_total 1")
}
