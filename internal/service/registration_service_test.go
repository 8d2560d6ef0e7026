package service

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucmas-ksa/portal-api/internal/models"
	appErrors "github.com/ucmas-ksa/portal-api/pkg/errors"
)

type mockRegistrationRepo struct {
	registrations map[string]*models.EventRegistrationDetail
	byPair        map[string]*models.EventRegistration
	created       *models.EventRegistration
	resetOK       bool
	lastPayRef    string
}

func (m *mockRegistrationRepo) List(ctx context.Context, filter models.EventRegistrationFilter) ([]models.EventRegistrationDetail, int, error) {
	var out []models.EventRegistrationDetail
	for _, r := range m.registrations {
		if filter.OrganizationID != "" && r.OrganizationID != filter.OrganizationID {
			continue
		}
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (m *mockRegistrationRepo) FindByID(ctx context.Context, id string) (*models.EventRegistrationDetail, error) {
	r, ok := m.registrations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *r
	return &copied, nil
}

func (m *mockRegistrationRepo) FindByEventAndStudent(ctx context.Context, eventID, studentID string) (*models.EventRegistration, error) {
	r, ok := m.byPair[pairKey(eventID, studentID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return r, nil
}

func (m *mockRegistrationRepo) Create(ctx context.Context, registration *models.EventRegistration) error {
	registration.ID = uuid.NewString()
	m.created = registration
	if m.registrations == nil {
		m.registrations = make(map[string]*models.EventRegistrationDetail)
	}
	m.registrations[registration.ID] = &models.EventRegistrationDetail{EventRegistration: *registration}
	return nil
}

func (m *mockRegistrationRepo) SubmitDrafts(ctx context.Context, ids []string, organizationID, submittedBy string) ([]string, error) {
	var done []string
	for _, id := range ids {
		r, ok := m.registrations[id]
		if !ok || r.OrganizationID != organizationID || r.Status != models.StatusDraft {
			continue
		}
		r.Status = models.StatusSubmitted
		done = append(done, id)
	}
	return done, nil
}

func (m *mockRegistrationRepo) Approve(ctx context.Context, id, approvedBy string) (bool, error) {
	r, ok := m.registrations[id]
	if !ok || r.Status != models.StatusSubmitted {
		return false, nil
	}
	r.Status = models.StatusPendingPayment
	return true, nil
}

func (m *mockRegistrationRepo) Reject(ctx context.Context, id, reason string, from models.RegistrationStatus) (bool, error) {
	r, ok := m.registrations[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = models.StatusRejected
	r.RejectionReason = reason
	return true, nil
}

func (m *mockRegistrationRepo) MarkPaid(ctx context.Context, id, paymentRef string) (bool, error) {
	r, ok := m.registrations[id]
	if !ok || r.Status != models.StatusPendingPayment || r.InvoiceID == nil {
		return false, nil
	}
	r.Status = models.StatusPaid
	r.PaymentRef = paymentRef
	m.lastPayRef = paymentRef
	return true, nil
}

func (m *mockRegistrationRepo) ResetToDraft(ctx context.Context, id string) (bool, error) {
	if !m.resetOK {
		return false, nil
	}
	if r, ok := m.registrations[id]; ok {
		r.Status = models.StatusDraft
		r.FeeAmount = decimal.NullDecimal{}
	}
	return true, nil
}

type mockEventReader struct {
	events map[string]*models.Event
}

func (m *mockEventReader) FindByID(ctx context.Context, id string) (*models.Event, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return e, nil
}

func TestRegistrationServiceCreateDraft(t *testing.T) {
	studentID := uuid.NewString()
	eventID := uuid.NewString()
	repo := &mockRegistrationRepo{byPair: map[string]*models.EventRegistration{}}
	students := &mockStudentReader{students: map[string]*models.StudentDetail{
		studentID: {Student: models.Student{ID: studentID, OrganizationID: "org-1"}},
	}}
	events := &mockEventReader{events: map[string]*models.Event{
		eventID: {ID: eventID, Code: "NC26", Status: models.EventStatusOpen},
	}}
	svc := NewRegistrationService(repo, students, events, nil, nil, nil)

	detail, err := svc.Create(context.Background(), orgActor(models.RoleOrgStaff, "org-1"), CreateRegistrationRequest{StudentID: studentID, EventID: eventID})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, detail.Status)
	assert.Equal(t, "org-1", repo.created.OrganizationID)
}

func TestRegistrationServiceCreateClosedEvent(t *testing.T) {
	studentID := uuid.NewString()
	eventID := uuid.NewString()
	repo := &mockRegistrationRepo{}
	students := &mockStudentReader{students: map[string]*models.StudentDetail{
		studentID: {Student: models.Student{ID: studentID, OrganizationID: "org-1"}},
	}}
	events := &mockEventReader{events: map[string]*models.Event{
		eventID: {ID: eventID, Status: models.EventStatusClosed},
	}}
	svc := NewRegistrationService(repo, students, events, nil, nil, nil)

	_, err := svc.Create(context.Background(), orgActor(models.RoleOrgManager, "org-1"), CreateRegistrationRequest{StudentID: studentID, EventID: eventID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRegistrationServiceCreatePastDeadline(t *testing.T) {
	studentID := uuid.NewString()
	eventID := uuid.NewString()
	deadline := time.Now().UTC().AddDate(0, 0, -1)
	repo := &mockRegistrationRepo{}
	students := &mockStudentReader{students: map[string]*models.StudentDetail{
		studentID: {Student: models.Student{ID: studentID, OrganizationID: "org-1"}},
	}}
	events := &mockEventReader{events: map[string]*models.Event{
		eventID: {ID: eventID, Status: models.EventStatusOpen, Deadline: &deadline},
	}}
	svc := NewRegistrationService(repo, students, events, nil, nil, nil)

	_, err := svc.Create(context.Background(), orgActor(models.RoleOrgManager, "org-1"), CreateRegistrationRequest{StudentID: studentID, EventID: eventID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRegistrationServiceCreateDuplicateConflict(t *testing.T) {
	studentID := uuid.NewString()
	eventID := uuid.NewString()
	repo := &mockRegistrationRepo{byPair: map[string]*models.EventRegistration{
		pairKey(eventID, studentID): {ID: "er-1", OrganizationID: "org-1", Status: models.StatusPendingPayment},
	}}
	students := &mockStudentReader{students: map[string]*models.StudentDetail{
		studentID: {Student: models.Student{ID: studentID, OrganizationID: "org-1"}},
	}}
	events := &mockEventReader{events: map[string]*models.Event{
		eventID: {ID: eventID, Status: models.EventStatusOpen},
	}}
	svc := NewRegistrationService(repo, students, events, nil, nil, nil)

	_, err := svc.Create(context.Background(), orgActor(models.RoleOrgManager, "org-1"), CreateRegistrationRequest{StudentID: studentID, EventID: eventID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRegistrationServiceSubmitScopesToOwnOrganization(t *testing.T) {
	ownID := uuid.NewString()
	foreignID := uuid.NewString()
	repo := &mockRegistrationRepo{registrations: map[string]*models.EventRegistrationDetail{
		ownID:     {EventRegistration: models.EventRegistration{ID: ownID, OrganizationID: "org-1", Status: models.StatusDraft}},
		foreignID: {EventRegistration: models.EventRegistration{ID: foreignID, OrganizationID: "org-2", Status: models.StatusDraft}},
	}}
	svc := NewRegistrationService(repo, &mockStudentReader{}, &mockEventReader{}, nil, nil, nil)

	result, err := svc.Submit(context.Background(), orgActor(models.RoleOrgManager, "org-1"), SubmitEnrollmentsRequest{IDs: []string{ownID, foreignID}})
	require.NoError(t, err)
	assert.Equal(t, []string{ownID}, result.Submitted)
	assert.Equal(t, []string{foreignID}, result.Skipped)
}

func TestRegistrationServiceMarkPaidRecordsReference(t *testing.T) {
	id := uuid.NewString()
	invoiceID := uuid.NewString()
	repo := &mockRegistrationRepo{registrations: map[string]*models.EventRegistrationDetail{
		id: {EventRegistration: models.EventRegistration{ID: id, OrganizationID: "org-1", Status: models.StatusPendingPayment, InvoiceID: &invoiceID}},
	}}
	svc := NewRegistrationService(repo, &mockStudentReader{}, &mockEventReader{}, nil, nil, nil)

	detail, err := svc.MarkPaid(context.Background(), adminActor(), id, MarkRegistrationPaidRequest{PaymentRef: " BANK-99 "})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, detail.Status)
	assert.Equal(t, "BANK-99", repo.lastPayRef)
}

func TestRegistrationServiceMarkPaidWithoutInvoice(t *testing.T) {
	id := uuid.NewString()
	repo := &mockRegistrationRepo{registrations: map[string]*models.EventRegistrationDetail{
		id: {EventRegistration: models.EventRegistration{ID: id, OrganizationID: "org-1", Status: models.StatusPendingPayment}},
	}}
	svc := NewRegistrationService(repo, &mockStudentReader{}, &mockEventReader{}, nil, nil, nil)

	_, err := svc.MarkPaid(context.Background(), adminActor(), id, MarkRegistrationPaidRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRegistrationServiceResetRefusesInvoicedRow(t *testing.T) {
	id := uuid.NewString()
	invoiceID := uuid.NewString()
	repo := &mockRegistrationRepo{resetOK: true, registrations: map[string]*models.EventRegistrationDetail{
		id: {EventRegistration: models.EventRegistration{ID: id, OrganizationID: "org-1", Status: models.StatusRejected, InvoiceID: &invoiceID}},
	}}
	svc := NewRegistrationService(repo, &mockStudentReader{}, &mockEventReader{}, nil, nil, nil)

	_, err := svc.Reset(context.Background(), adminActor(), id)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRegistrationServiceRejectRecordsReason(t *testing.T) {
	id := uuid.NewString()
	repo := &mockRegistrationRepo{registrations: map[string]*models.EventRegistrationDetail{
		id: {EventRegistration: models.EventRegistration{ID: id, OrganizationID: "org-1", Status: models.StatusSubmitted}},
	}}
	svc := NewRegistrationService(repo, &mockStudentReader{}, &mockEventReader{}, nil, nil, nil)

	detail, err := svc.Reject(context.Background(), adminActor(), id, RejectRequest{Reason: "incomplete guardian details"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, detail.Status)
	assert.Equal(t, "incomplete guardian details", detail.RejectionReason)
}

func TestRegistrationServiceSubmitFeedsCounter(t *testing.T) {
	draftID := uuid.NewString()
	repo := &mockRegistrationRepo{registrations: map[string]*models.EventRegistrationDetail{
		draftID: {EventRegistration: models.EventRegistration{ID: draftID, OrganizationID: "org-1", Status: models.StatusDraft}},
	}}
	metrics := NewMetricsService()
	svc := NewRegistrationService(repo, &mockStudentReader{}, &mockEventReader{}, nil, nil, metrics)

	_, err := svc.Submit(context.Background(), orgActor(models.RoleOrgManager, "org-1"), SubmitEnrollmentsRequest{IDs: []string{draftID}})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `registrations_submitted_total{kind="event"} 1`)
}
