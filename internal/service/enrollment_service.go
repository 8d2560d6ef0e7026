package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ucmas-ksa/portal-api/internal/models"
	"github.com/ucmas-ksa/portal-api/internal/policy"
	appErrors "github.com/ucmas-ksa/portal-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.CourseEnrollmentFilter) ([]models.CourseEnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.CourseEnrollmentDetail, error)
	FindByStudentAndCourse(ctx context.Context, studentID, courseID string) (*models.CourseEnrollment, error)
	Create(ctx context.Context, enrollment *models.CourseEnrollment) error
	SubmitDrafts(ctx context.Context, ids []string, organizationID, submittedBy string) ([]string, error)
	Approve(ctx context.Context, id, approvedBy string) (bool, error)
	Reject(ctx context.Context, id, reason string, from models.RegistrationStatus) (bool, error)
	MarkPaid(ctx context.Context, id string) (bool, error)
	Advance(ctx context.Context, id string, from, to models.RegistrationStatus) (bool, error)
	ResetToDraft(ctx context.Context, id string) (bool, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// CreateEnrollmentRequest opens a Draft enrollment for a student on a course.
type CreateEnrollmentRequest struct {
	StudentID string `json:"student_id" validate:"required,uuid4"`
	CourseID  string `json:"course_id" validate:"required,uuid4"`
}

// SubmitEnrollmentsRequest selects Draft rows for bulk submission.
type SubmitEnrollmentsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,uuid4"`
}

// SubmitResult reports which rows moved and which were left untouched.
type SubmitResult struct {
	Submitted []string `json:"submitted"`
	Skipped   []string `json:"skipped"`
}

// RejectRequest carries the mandatory rejection reason.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// EnrollmentService drives the course enrollment lifecycle.
type EnrollmentService struct {
	repo      enrollmentRepository
	students  studentReader
	courses   courseReader
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
}

// NewEnrollmentService constructs the enrollment service. metrics may be nil.
func NewEnrollmentService(repo enrollmentRepository, students studentReader, courses courseReader, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *EnrollmentService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, students: students, courses: courses, validator: validate, logger: logger, metrics: metrics}
}

// List returns enrollments visible to the actor plus pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, actor *models.JWTClaims, filter models.CourseEnrollmentFilter) ([]models.CourseEnrollmentDetail, *models.Pagination, error) {
	if scope := policy.ScopeOrganization(actor); scope != "" {
		filter.OrganizationID = scope
	}
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns an enrollment visible to the actor.
func (s *EnrollmentService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.CourseEnrollmentDetail, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if scope := policy.ScopeOrganization(actor); scope != "" && enrollment.OrganizationID != scope {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	return enrollment, nil
}

// Create opens a Draft enrollment. When a Rejected or Dropped row already
// exists for the pair it is reset in place: the (student, course) key admits
// one row, forever.
func (s *EnrollmentService) Create(ctx context.Context, actor *models.JWTClaims, req CreateEnrollmentRequest) (*models.CourseEnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
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
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course is not open for enrollment")
	}

	existing, err := s.repo.FindByStudentAndCourse(ctx, req.StudentID, req.CourseID)
	switch {
	case err == nil:
		if existing.Status != models.StatusRejected && existing.Status != models.StatusDropped {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already has an enrollment for this course")
		}
		applied, resetErr := s.repo.ResetToDraft(ctx, existing.ID)
		if resetErr != nil {
			return nil, appErrors.Wrap(resetErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset enrollment")
		}
		if !applied {
			return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment is linked to an invoice and cannot restart")
		}
		return s.Get(ctx, actor, existing.ID)
	case err != sql.ErrNoRows:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}

	enrollment := &models.CourseEnrollment{
		OrganizationID: student.OrganizationID,
		StudentID:      req.StudentID,
		CourseID:       req.CourseID,
		Status:         models.StatusDraft,
		CreatedBy:      &actor.UserID,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	return s.Get(ctx, actor, enrollment.ID)
}

// Submit moves the selected Draft rows to Submitted. Rows that are not Draft,
// not visible to the actor, or simply unknown are reported as skipped rather
// than failing the batch.
func (s *EnrollmentService) Submit(ctx context.Context, actor *models.JWTClaims, req SubmitEnrollmentsRequest) (*SubmitResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submit payload")
	}
	organizationID := policy.ScopeOrganization(actor)
	if !policy.Can(actor, policy.ActionSubmit, policy.Resource{OrganizationID: organizationID}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to submit enrollments")
	}
	if organizationID == "" && len(req.IDs) > 0 {
		// Admins submit on behalf of the rows' own organization.
		first, err := s.repo.FindByID(ctx, req.IDs[0])
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
		}
		organizationID = first.OrganizationID
	}

	submitted, err := s.repo.SubmitDrafts(ctx, req.IDs, organizationID, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit enrollments")
	}
	s.metrics.RecordRegistrationSubmitted("course", len(submitted))
	return buildSubmitResult(req.IDs, submitted), nil
}

// Approve moves a Submitted row to PendingPayment.
func (s *EnrollmentService) Approve(ctx context.Context, actor *models.JWTClaims, id string) (*models.CourseEnrollmentDetail, error) {
	enrollment, err := s.requireAction(ctx, actor, id, policy.ActionApprove)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(models.KindCourse, enrollment.Status, models.StatusPendingPayment) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment is not awaiting approval")
	}
	applied, err := s.repo.Approve(ctx, id, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve enrollment")
	}
	if !applied {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment changed state concurrently")
	}
	return s.Get(ctx, actor, id)
}

// Reject refuses a row with a mandatory reason.
func (s *EnrollmentService) Reject(ctx context.Context, actor *models.JWTClaims, id string, req RejectRequest) (*models.CourseEnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "rejection reason is required")
	}
	enrollment, err := s.requireAction(ctx, actor, id, policy.ActionReject)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(models.KindCourse, enrollment.Status, models.StatusRejected) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment cannot be rejected in its current state")
	}
	applied, err := s.repo.Reject(ctx, id, strings.TrimSpace(req.Reason), enrollment.Status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject enrollment")
	}
	if !applied {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment changed state concurrently")
	}
	return s.Get(ctx, actor, id)
}

// MarkPaid settles a single invoiced row without going through the invoice.
func (s *EnrollmentService) MarkPaid(ctx context.Context, actor *models.JWTClaims, id string) (*models.CourseEnrollmentDetail, error) {
	enrollment, err := s.requireAction(ctx, actor, id, policy.ActionMarkPaid)
	if err != nil {
		return nil, err
	}
	if enrollment.InvoiceID == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment has no invoice to settle")
	}
	if !models.CanTransition(models.KindCourse, enrollment.Status, models.StatusPaid) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment is not awaiting payment")
	}
	applied, err := s.repo.MarkPaid(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark enrollment paid")
	}
	if !applied {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment changed state concurrently")
	}
	return s.Get(ctx, actor, id)
}

// Reset restarts a Rejected or Dropped row from Draft, clearing its audit
// trail. Rows already billed keep their history and refuse the reset.
func (s *EnrollmentService) Reset(ctx context.Context, actor *models.JWTClaims, id string) (*models.CourseEnrollmentDetail, error) {
	enrollment, err := s.requireAction(ctx, actor, id, policy.ActionReset)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(models.KindCourse, enrollment.Status, models.StatusDraft) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment cannot restart from its current state")
	}
	if enrollment.InvoiceID != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment is linked to an invoice and cannot restart")
	}
	applied, err := s.repo.ResetToDraft(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset enrollment")
	}
	if !applied {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment changed state concurrently")
	}
	return s.Get(ctx, actor, id)
}

// Enroll activates an Accepted or Paid row.
func (s *EnrollmentService) Enroll(ctx context.Context, actor *models.JWTClaims, id string) (*models.CourseEnrollmentDetail, error) {
	return s.advance(ctx, actor, id, policy.ActionEnroll, models.StatusEnrolled)
}

// Complete closes out an Enrolled row.
func (s *EnrollmentService) Complete(ctx context.Context, actor *models.JWTClaims, id string) (*models.CourseEnrollmentDetail, error) {
	return s.advance(ctx, actor, id, policy.ActionComplete, models.StatusCompleted)
}

// Drop withdraws an active row.
func (s *EnrollmentService) Drop(ctx context.Context, actor *models.JWTClaims, id string) (*models.CourseEnrollmentDetail, error) {
	return s.advance(ctx, actor, id, policy.ActionDrop, models.StatusDropped)
}

func (s *EnrollmentService) advance(ctx context.Context, actor *models.JWTClaims, id string, action policy.Action, to models.RegistrationStatus) (*models.CourseEnrollmentDetail, error) {
	enrollment, err := s.requireAction(ctx, actor, id, action)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(models.KindCourse, enrollment.Status, to) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment cannot move to "+string(to)+" from its current state")
	}
	applied, err := s.repo.Advance(ctx, id, enrollment.Status, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
	}
	if !applied {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment changed state concurrently")
	}
	return s.Get(ctx, actor, id)
}

func (s *EnrollmentService) requireAction(ctx context.Context, actor *models.JWTClaims, id string, action policy.Action) (*models.CourseEnrollmentDetail, error) {
	enrollment, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !policy.Can(actor, action, policy.Resource{OrganizationID: enrollment.OrganizationID}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to perform this action")
	}
	return enrollment, nil
}

func buildSubmitResult(requested, submitted []string) *SubmitResult {
	done := make(map[string]bool, len(submitted))
	for _, id := range submitted {
		done[id] = true
	}
	result := &SubmitResult{Submitted: submitted, Skipped: []string{}}
	if result.Submitted == nil {
		result.Submitted = []string{}
	}
	for _, id := range requested {
		if !done[id] {
			result.Skipped = append(result.Skipped, id)
		}
	}
	return result
}
