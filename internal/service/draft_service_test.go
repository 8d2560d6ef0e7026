package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucmas-ksa/portal-api/internal/models"
	appErrors "github.com/ucmas-ksa/portal-api/pkg/errors"
)

type mockDraftStore struct {
	drafts  map[string]*models.RegistrationDraft
	deleted []string
}

func draftKey(ownerID, draftID string) string { return ownerID + "/" + draftID }

func (m *mockDraftStore) Save(ctx context.Context, draft *models.RegistrationDraft) error {
	if m.drafts == nil {
		m.drafts = make(map[string]*models.RegistrationDraft)
	}
	m.drafts[draftKey(draft.OwnerID, draft.ID)] = draft
	return nil
}

func (m *mockDraftStore) Get(ctx context.Context, ownerID, draftID string) (*models.RegistrationDraft, error) {
	draft, ok := m.drafts[draftKey(ownerID, draftID)]
	if !ok {
		return nil, appErrors.ErrCacheMiss
	}
	return draft, nil
}

func (m *mockDraftStore) Delete(ctx context.Context, ownerID, draftID string) error {
	m.deleted = append(m.deleted, draftID)
	delete(m.drafts, draftKey(ownerID, draftID))
	return nil
}

func (m *mockDraftStore) ListByOwner(ctx context.Context, ownerID string) ([]models.RegistrationDraft, error) {
	var out []models.RegistrationDraft
	for _, d := range m.drafts {
		if d.OwnerID == ownerID {
			out = append(out, *d)
		}
	}
	return out, nil
}

type mockDraftStudents struct {
	created *CreateStudentRequest
	student *models.Student
}

func (m *mockDraftStudents) Create(ctx context.Context, actor *models.JWTClaims, req CreateStudentRequest) (*models.Student, error) {
	m.created = &req
	if m.student == nil {
		m.student = &models.Student{ID: uuid.NewString(), RegistrationNo: "UCMAS-KSA-2026-000050"}
	}
	return m.student, nil
}

type mockDraftEnrollments struct {
	created *CreateEnrollmentRequest
}

func (m *mockDraftEnrollments) Create(ctx context.Context, actor *models.JWTClaims, req CreateEnrollmentRequest) (*models.CourseEnrollmentDetail, error) {
	m.created = &req
	return &models.CourseEnrollmentDetail{CourseEnrollment: models.CourseEnrollment{ID: uuid.NewString(), Status: models.StatusDraft}}, nil
}

type mockDraftRegistrations struct {
	created *CreateRegistrationRequest
}

func (m *mockDraftRegistrations) Create(ctx context.Context, actor *models.JWTClaims, req CreateRegistrationRequest) (*models.EventRegistrationDetail, error) {
	m.created = &req
	return &models.EventRegistrationDetail{EventRegistration: models.EventRegistration{ID: uuid.NewString(), Status: models.StatusDraft}}, nil
}

func validStudentStep() models.DraftStudentStep {
	return models.DraftStudentStep{
		FirstNameEN:  "Sara",
		LastNameEN:   "Ahmed",
		DateOfBirth:  "2016-04-12",
		Gender:       "F",
		CurrentLevel: 1,
	}
}

func validGuardianStep() models.DraftGuardianStep {
	return models.DraftGuardianStep{
		GuardianName:  "Ahmed Al-Qahtani",
		GuardianPhone: "+966512345678",
	}
}

func newDraftService(store *mockDraftStore) (*DraftService, *mockDraftStudents, *mockDraftEnrollments, *mockDraftRegistrations) {
	students := &mockDraftStudents{}
	enrollments := &mockDraftEnrollments{}
	registrations := &mockDraftRegistrations{}
	return NewDraftService(store, students, enrollments, registrations, nil, nil), students, enrollments, registrations
}

func TestDraftServiceCreate(t *testing.T) {
	store := &mockDraftStore{}
	svc, _, _, _ := newDraftService(store)

	actor := orgActor(models.RoleOrgStaff, "org-1")
	draft, err := svc.Create(context.Background(), actor, CreateDraftRequest{Kind: "COURSE", TargetID: uuid.NewString()})
	require.NoError(t, err)
	assert.Equal(t, actor.UserID, draft.OwnerID)
	assert.Equal(t, "org-1", draft.OrganizationID)
	assert.Equal(t, models.KindCourse, draft.Kind)
	assert.False(t, draft.ReadyToCommit())
}

func TestDraftServiceStepValidation(t *testing.T) {
	store := &mockDraftStore{}
	svc, _, _, _ := newDraftService(store)
	actor := orgActor(models.RoleOrgStaff, "org-1")

	draft, err := svc.Create(context.Background(), actor, CreateDraftRequest{Kind: "COURSE", TargetID: uuid.NewString()})
	require.NoError(t, err)

	step := validStudentStep()
	step.Gender = "X"
	_, err = svc.SaveStudentStep(context.Background(), actor, draft.ID, step)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	saved, err := svc.SaveStudentStep(context.Background(), actor, draft.ID, validStudentStep())
	require.NoError(t, err)
	assert.True(t, saved.StudentValid)
	assert.False(t, saved.GuardianValid)
}

func TestDraftServiceCommitRequiresBothSteps(t *testing.T) {
	store := &mockDraftStore{}
	svc, _, _, _ := newDraftService(store)
	actor := orgActor(models.RoleOrgManager, "org-1")

	draft, err := svc.Create(context.Background(), actor, CreateDraftRequest{Kind: "COURSE", TargetID: uuid.NewString()})
	require.NoError(t, err)

	_, err = svc.SaveStudentStep(context.Background(), actor, draft.ID, validStudentStep())
	require.NoError(t, err)

	_, err = svc.Commit(context.Background(), actor, draft.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDraftServiceCommitCourseDraft(t *testing.T) {
	store := &mockDraftStore{}
	svc, students, enrollments, _ := newDraftService(store)
	actor := orgActor(models.RoleOrgManager, "org-1")
	courseID := uuid.NewString()

	draft, err := svc.Create(context.Background(), actor, CreateDraftRequest{Kind: "COURSE", TargetID: courseID})
	require.NoError(t, err)
	_, err = svc.SaveStudentStep(context.Background(), actor, draft.ID, validStudentStep())
	require.NoError(t, err)
	_, err = svc.SaveGuardianStep(context.Background(), actor, draft.ID, validGuardianStep())
	require.NoError(t, err)

	result, err := svc.Commit(context.Background(), actor, draft.ID)
	require.NoError(t, err)
	assert.NotNil(t, result.Student)
	assert.NotEmpty(t, result.EnrollmentID)
	assert.Empty(t, result.RegistrationID)
	assert.Equal(t, "Sara", students.created.FirstNameEN)
	assert.Equal(t, "+966512345678", students.created.GuardianPhone)
	assert.Equal(t, courseID, enrollments.created.CourseID)
	assert.Equal(t, []string{draft.ID}, store.deleted)

	// Committed drafts disappear.
	_, err = svc.Get(context.Background(), actor, draft.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestDraftServiceCommitEventDraft(t *testing.T) {
	store := &mockDraftStore{}
	svc, _, _, registrations := newDraftService(store)
	actor := orgActor(models.RoleOrgManager, "org-1")
	eventID := uuid.NewString()

	draft, err := svc.Create(context.Background(), actor, CreateDraftRequest{Kind: "EVENT", TargetID: eventID})
	require.NoError(t, err)
	_, err = svc.SaveStudentStep(context.Background(), actor, draft.ID, validStudentStep())
	require.NoError(t, err)
	_, err = svc.SaveGuardianStep(context.Background(), actor, draft.ID, validGuardianStep())
	require.NoError(t, err)

	result, err := svc.Commit(context.Background(), actor, draft.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, result.RegistrationID)
	assert.Empty(t, result.EnrollmentID)
	assert.Equal(t, eventID, registrations.created.EventID)
}

func TestDraftServiceOwnerScoping(t *testing.T) {
	store := &mockDraftStore{}
	svc, _, _, _ := newDraftService(store)
	owner := orgActor(models.RoleOrgStaff, "org-1")
	other := orgActor(models.RoleOrgStaff, "org-1")

	draft, err := svc.Create(context.Background(), owner, CreateDraftRequest{Kind: "COURSE", TargetID: uuid.NewString()})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), other, draft.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	drafts, err := svc.List(context.Background(), other)
	require.NoError(t, err)
	assert.Empty(t, drafts)

	drafts, err = svc.List(context.Background(), owner)
	require.NoError(t, err)
	assert.Len(t, drafts, 1)
}
