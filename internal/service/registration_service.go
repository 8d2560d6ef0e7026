package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ucmas-ksa/portal-api/internal/models"
	"github.com/ucmas-ksa/portal-api/internal/policy"
	appErrors "github.com/ucmas-ksa/portal-api/pkg/errors"
)

type registrationRepository interface {
	List(ctx context.Context, filter models.EventRegistrationFilter) ([]models.EventRegistrationDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.EventRegistrationDetail, error)
	FindByEventAndStudent(ctx context.Context, eventID, studentID string) (*models.EventRegistration, error)
	Create(ctx context.Context, registration *models.EventRegistration) error
	SubmitDrafts(ctx context.Context, ids []string, organizationID, submittedBy string) ([]string, error)
	Approve(ctx context.Context, id, approvedBy string) (bool, error)
	Reject(ctx context.Context, id, reason string, from models.RegistrationStatus) (bool, error)
	MarkPaid(ctx context.Context, id, paymentRef string) (bool, error)
	ResetToDraft(ctx context.Context, id string) (bool, error)
}

type eventReader interface {
	FindByID(ctx context.Context, id string) (*models.Event, error)
}

// CreateRegistrationRequest opens a Draft registration for a student on an
// event.
type CreateRegistrationRequest struct {
	StudentID string `json:"student_id" validate:"required,uuid4"`
	EventID   string `json:"event_id" validate:"required,uuid4"`
}

// MarkRegistrationPaidRequest carries the optional payment reference.
type MarkRegistrationPaidRequest struct {
	PaymentRef string `json:"payment_ref" validate:"omitempty,max=255"`
}

// RegistrationService drives the competition registration lifecycle.
type RegistrationService struct {
	repo      registrationRepository
	students  studentReader
	events    eventReader
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
}

// NewRegistrationService constructs the registration service. metrics may be
// nil.
func NewRegistrationService(repo registrationRepository, students studentReader, events eventReader, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *RegistrationService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{repo: repo, students: students, events: events, validator: validate, logger: logger, metrics: metrics}
}

// List returns registrations visible to the actor plus pagination metadata.
func (s *RegistrationService) List(ctx context.Context, actor *models.JWTClaims, filter models.EventRegistrationFilter) ([]models.EventRegistrationDetail, *models.Pagination, error) {
	if scope := policy.ScopeOrganization(actor); scope != "" {
		filter.OrganizationID = scope
	}
	registrations, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return registrations, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a registration visible to the actor.
func (s *RegistrationService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.EventRegistrationDetail, error) {
	registration, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	if scope := policy.ScopeOrganization(actor); scope != "" && registration.OrganizationID != scope {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
	}
	return registration, nil
}

// Create opens a Draft registration. A Rejected row for the pair is reset in
// place; the (event, student) key admits one row, forever.
func (s *RegistrationService) Create(ctx context.Context, actor *models.JWTClaims, req CreateRegistrationRequest) (*models.EventRegistrationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !policy.Can(actor, policy.ActionDraftCreate, policy.Resource{OrganizationID: student.OrganizationID}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to register this student")
	}
	event, err := s.events.FindByID(ctx, req.EventID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	if !event.AcceptsRegistrations(time.Now().UTC()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "event is closed for registration")
	}

	existing, err := s.repo.FindByEventAndStudent(ctx, req.EventID, req.StudentID)
	switch {
	case err == nil:
		if existing.Status != models.StatusRejected {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student is already registered for this event")
		}
		applied, resetErr := s.repo.ResetToDraft(ctx, existing.ID)
		if resetErr != nil {
			return nil, appErrors.Wrap(resetErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset registration")
		}
		if !applied {
			return nil, appErrors.Clone(appErrors.ErrConflict, "registration is linked to an invoice and cannot restart")
		}
		return s.Get(ctx, actor, existing.ID)
	case err != sql.ErrNoRows:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing registration")
	}

	registration := &models.EventRegistration{
		OrganizationID: student.OrganizationID,
		EventID:        req.EventID,
		StudentID:      req.StudentID,
		Status:         models.StatusDraft,
		CreatedBy:      &actor.UserID,
	}
	if err := s.repo.Create(ctx, registration); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create registration")
	}
	return s.Get(ctx, actor, registration.ID)
}

// Submit moves the selected Draft rows to Submitted, snapshotting each
// event's current fee into the row. Non-Draft or out-of-scope rows are
// skipped rather than failing the batch.
func (s *RegistrationService) Submit(ctx context.Context, actor *models.JWTClaims, req SubmitEnrollmentsRequest) (*SubmitResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submit payload")
	}
	organizationID := policy.ScopeOrganization(actor)
	if !policy.Can(actor, policy.ActionSubmit, policy.Resource{OrganizationID: organizationID}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to submit registrations")
	}
	if organizationID == "" && len(req.IDs) > 0 {
		first, err := s.repo.FindByID(ctx, req.IDs[0])
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
		}
		organizationID = first.OrganizationID
	}

	submitted, err := s.repo.SubmitDrafts(ctx, req.IDs, organizationID, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit registrations")
	}
	s.metrics.RecordRegistrationSubmitted("event", len(submitted))
	return buildSubmitResult(req.IDs, submitted), nil
}

// Approve moves a Submitted row to PendingPayment.
func (s *RegistrationService) Approve(ctx context.Context, actor *models.JWTClaims, id string) (*models.EventRegistrationDetail, error) {
	registration, err := s.requireAction(ctx, actor, id, policy.ActionApprove)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(models.KindEvent, registration.Status, models.StatusPendingPayment) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "registration is not awaiting approval")
	}
	applied, err := s.repo.Approve(ctx, id, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve registration")
	}
	if !applied {
		return nil, appErrors.Clone(appErrors.ErrConflict, "registration changed state concurrently")
	}
	return s.Get(ctx, actor, id)
}

// Reject refuses a row with a mandatory reason.
func (s *RegistrationService) Reject(ctx context.Context, actor *models.JWTClaims, id string, req RejectRequest) (*models.EventRegistrationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "rejection reason is required")
	}
	registration, err := s.requireAction(ctx, actor, id, policy.ActionReject)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(models.KindEvent, registration.Status, models.StatusRejected) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "registration cannot be rejected in its current state")
	}
	applied, err := s.repo.Reject(ctx, id, strings.TrimSpace(req.Reason), registration.Status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject registration")
	}
	if !applied {
		return nil, appErrors.Clone(appErrors.ErrConflict, "registration changed state concurrently")
	}
	return s.Get(ctx, actor, id)
}

// MarkPaid settles a single invoiced row, recording the payment reference.
func (s *RegistrationService) MarkPaid(ctx context.Context, actor *models.JWTClaims, id string, req MarkRegistrationPaidRequest) (*models.EventRegistrationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	registration, err := s.requireAction(ctx, actor, id, policy.ActionMarkPaid)
	if err != nil {
		return nil, err
	}
	if registration.InvoiceID == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "registration has no invoice to settle")
	}
	if !models.CanTransition(models.KindEvent, registration.Status, models.StatusPaid) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "registration is not awaiting payment")
	}
	applied, err := s.repo.MarkPaid(ctx, id, strings.TrimSpace(req.PaymentRef))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark registration paid")
	}
	if !applied {
		return nil, appErrors.Clone(appErrors.ErrConflict, "registration changed state concurrently")
	}
	return s.Get(ctx, actor, id)
}

// Reset restarts a Rejected row from Draft, clearing its audit trail and the
// fee snapshot. Rows already billed refuse the reset.
func (s *RegistrationService) Reset(ctx context.Context, actor *models.JWTClaims, id string) (*models.EventRegistrationDetail, error) {
	registration, err := s.requireAction(ctx, actor, id, policy.ActionReset)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(models.KindEvent, registration.Status, models.StatusDraft) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "registration cannot restart from its current state")
	}
	if registration.InvoiceID != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "registration is linked to an invoice and cannot restart")
	}
	applied, err := s.repo.ResetToDraft(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset registration")
	}
	if !applied {
		return nil, appErrors.Clone(appErrors.ErrConflict, "registration changed state concurrently")
	}
	return s.Get(ctx, actor, id)
}

func (s *RegistrationService) requireAction(ctx context.Context, actor *models.JWTClaims, id string, action policy.Action) (*models.EventRegistrationDetail, error) {
	registration, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !policy.Can(actor, action, policy.Resource{OrganizationID: registration.OrganizationID}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to perform this action")
	}
	return registration, nil
}
