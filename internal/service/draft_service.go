package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ucmas-ksa/portal-api/internal/models"
	"github.com/ucmas-ksa/portal-api/internal/policy"
	appErrors "github.com/ucmas-ksa/portal-api/pkg/errors"
)

type draftStore interface {
	Save(ctx context.Context, draft *models.RegistrationDraft) error
	Get(ctx context.Context, ownerID, draftID string) (*models.RegistrationDraft, error)
	Delete(ctx context.Context, ownerID, draftID string) error
	ListByOwner(ctx context.Context, ownerID string) ([]models.RegistrationDraft, error)
}

type draftStudentCreator interface {
	Create(ctx context.Context, actor *models.JWTClaims, req CreateStudentRequest) (*models.Student, error)
}

type draftEnrollmentCreator interface {
	Create(ctx context.Context, actor *models.JWTClaims, req CreateEnrollmentRequest) (*models.CourseEnrollmentDetail, error)
}

type draftRegistrationCreator interface {
	Create(ctx context.Context, actor *models.JWTClaims, req CreateRegistrationRequest) (*models.EventRegistrationDetail, error)
}

// CreateDraftRequest starts a wizard session for one course or event target.
type CreateDraftRequest struct {
	Kind     string `json:"kind" validate:"required,oneof=COURSE EVENT"`
	TargetID string `json:"target_id" validate:"required,uuid4"`
}

// CommitDraftResult is the outcome of committing a completed wizard.
type CommitDraftResult struct {
	Student        *models.Student `json:"student"`
	EnrollmentID   string          `json:"enrollment_id,omitempty"`
	RegistrationID string          `json:"registration_id,omitempty"`
}

// DraftService runs the step-by-step registration wizard. Steps validate
// independently so the client can save partial progress; commit replays the
// collected data through the regular student and registration services.
type DraftService struct {
	store         draftStore
	students      draftStudentCreator
	enrollments   draftEnrollmentCreator
	registrations draftRegistrationCreator
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewDraftService constructs the draft service.
func NewDraftService(store draftStore, students draftStudentCreator, enrollments draftEnrollmentCreator, registrations draftRegistrationCreator, validate *validator.Validate, logger *zap.Logger) *DraftService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DraftService{
		store:         store,
		students:      students,
		enrollments:   enrollments,
		registrations: registrations,
		validator:     validate,
		logger:        logger,
	}
}

// Create starts a new wizard session owned by the actor.
func (s *DraftService) Create(ctx context.Context, actor *models.JWTClaims, req CreateDraftRequest) (*models.RegistrationDraft, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid draft payload")
	}
	organizationID := policy.ScopeOrganization(actor)
	if !policy.Can(actor, policy.ActionDraftCreate, policy.Resource{OrganizationID: organizationID}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to start registrations")
	}
	now := time.Now().UTC()
	draft := &models.RegistrationDraft{
		ID:             uuid.NewString(),
		OwnerID:        actor.UserID,
		OrganizationID: organizationID,
		Kind:           models.RegistrationKind(req.Kind),
		TargetID:       req.TargetID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Save(ctx, draft); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save draft")
	}
	return draft, nil
}

// Get returns one of the actor's drafts.
func (s *DraftService) Get(ctx context.Context, actor *models.JWTClaims, draftID string) (*models.RegistrationDraft, error) {
	draft, err := s.store.Get(ctx, actor.UserID, draftID)
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "draft not found or expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load draft")
	}
	return draft, nil
}

// List returns all of the actor's live drafts.
func (s *DraftService) List(ctx context.Context, actor *models.JWTClaims) ([]models.RegistrationDraft, error) {
	drafts, err := s.store.ListByOwner(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list drafts")
	}
	if drafts == nil {
		drafts = []models.RegistrationDraft{}
	}
	return drafts, nil
}

// SaveStudentStep validates and stores the student step. Validation failure
// still returns the draft so the client can show field errors without losing
// state elsewhere.
func (s *DraftService) SaveStudentStep(ctx context.Context, actor *models.JWTClaims, draftID string, step models.DraftStudentStep) (*models.RegistrationDraft, error) {
	draft, err := s.Get(ctx, actor, draftID)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(step); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student step")
	}
	draft.Student = &step
	draft.StudentValid = true
	draft.UpdatedAt = time.Now().UTC()
	if err := s.store.Save(ctx, draft); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save draft")
	}
	return draft, nil
}

// SaveGuardianStep validates and stores the guardian step.
func (s *DraftService) SaveGuardianStep(ctx context.Context, actor *models.JWTClaims, draftID string, step models.DraftGuardianStep) (*models.RegistrationDraft, error) {
	draft, err := s.Get(ctx, actor, draftID)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(step); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid guardian step")
	}
	draft.Guardian = &step
	draft.GuardianValid = true
	draft.UpdatedAt = time.Now().UTC()
	if err := s.store.Save(ctx, draft); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save draft")
	}
	return draft, nil
}

// Commit turns a completed wizard into a Student plus a Draft
// enrollment/registration, then discards the draft. The student and the row
// go through the regular services so every rule applies exactly once.
func (s *DraftService) Commit(ctx context.Context, actor *models.JWTClaims, draftID string) (*CommitDraftResult, error) {
	draft, err := s.Get(ctx, actor, draftID)
	if err != nil {
		return nil, err
	}
	if !draft.ReadyToCommit() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "draft has incomplete steps")
	}

	student, err := s.students.Create(ctx, actor, CreateStudentRequest{
		OrganizationID: draft.OrganizationID,
		FirstNameEN:    draft.Student.FirstNameEN,
		LastNameEN:     draft.Student.LastNameEN,
		FirstNameAR:    draft.Student.FirstNameAR,
		LastNameAR:     draft.Student.LastNameAR,
		DateOfBirth:    draft.Student.DateOfBirth,
		Gender:         draft.Student.Gender,
		GuardianName:   draft.Guardian.GuardianName,
		GuardianPhone:  draft.Guardian.GuardianPhone,
		GuardianEmail:  draft.Guardian.GuardianEmail,
		CurrentLevel:   draft.Student.CurrentLevel,
		Notes:          draft.Student.Notes,
	})
	if err != nil {
		return nil, err
	}

	result := &CommitDraftResult{Student: student}
	switch draft.Kind {
	case models.KindCourse:
		enrollment, err := s.enrollments.Create(ctx, actor, CreateEnrollmentRequest{StudentID: student.ID, CourseID: draft.TargetID})
		if err != nil {
			return nil, err
		}
		result.EnrollmentID = enrollment.ID
	case models.KindEvent:
		registration, err := s.registrations.Create(ctx, actor, CreateRegistrationRequest{StudentID: student.ID, EventID: draft.TargetID})
		if err != nil {
			return nil, err
		}
		result.RegistrationID = registration.ID
	}

	if err := s.store.Delete(ctx, actor.UserID, draftID); err != nil {
		s.logger.Warn("failed to discard committed draft", zap.String("draft_id", draftID), zap.Error(err))
	}
	return result, nil
}

// Delete discards a wizard session.
func (s *DraftService) Delete(ctx context.Context, actor *models.JWTClaims, draftID string) error {
	if _, err := s.Get(ctx, actor, draftID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, actor.UserID, draftID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete draft")
	}
	return nil
}
