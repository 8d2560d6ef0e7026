package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ucmas-ksa/portal-api/internal/models"
	"github.com/ucmas-ksa/portal-api/internal/policy"
	appErrors "github.com/ucmas-ksa/portal-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	HasNonDraftReferences(ctx context.Context, studentID string) (bool, error)
}

type studentOrgResolver interface {
	FindByID(ctx context.Context, id string) (*models.Organization, error)
	FindByName(ctx context.Context, name string) (*models.Organization, error)
}

// CreateStudentRequest holds payload for registering a student. Organization
// is taken from the payload only for admins; org users always write into
// their own organization.
type CreateStudentRequest struct {
	OrganizationID string `json:"organization_id" validate:"omitempty,uuid4"`
	FirstNameEN    string `json:"first_name_en" validate:"required,max=100"`
	LastNameEN     string `json:"last_name_en" validate:"required,max=100"`
	FirstNameAR    string `json:"first_name_ar" validate:"omitempty,max=100"`
	LastNameAR     string `json:"last_name_ar" validate:"omitempty,max=100"`
	DateOfBirth    string `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
	Gender         string `json:"gender" validate:"required,oneof=M F"`
	GuardianName   string `json:"guardian_name" validate:"required,max=255"`
	GuardianPhone  string `json:"guardian_phone" validate:"required,saudi_phone"`
	GuardianEmail  string `json:"guardian_email" validate:"omitempty,email"`
	CurrentLevel   int    `json:"current_level" validate:"min=0,max=10"`
	Notes          string `json:"notes" validate:"omitempty,max=1000"`
}

// UpdateStudentRequest holds payload for editing a student.
type UpdateStudentRequest struct {
	FirstNameEN   string `json:"first_name_en" validate:"required,max=100"`
	LastNameEN    string `json:"last_name_en" validate:"required,max=100"`
	FirstNameAR   string `json:"first_name_ar" validate:"omitempty,max=100"`
	LastNameAR    string `json:"last_name_ar" validate:"omitempty,max=100"`
	DateOfBirth   string `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
	Gender        string `json:"gender" validate:"required,oneof=M F"`
	GuardianName  string `json:"guardian_name" validate:"required,max=255"`
	GuardianPhone string `json:"guardian_phone" validate:"required,saudi_phone"`
	GuardianEmail string `json:"guardian_email" validate:"omitempty,email"`
	CurrentLevel  int    `json:"current_level" validate:"min=0,max=10"`
	Notes         string `json:"notes" validate:"omitempty,max=1000"`
}

// ImportStudentRow is one parsed row of a bulk import. Organization arrives by
// name (the upstream sheet carries names, not IDs) and is resolved here.
type ImportStudentRow struct {
	Organization  string `json:"organization"`
	FirstNameEN   string `json:"first_name_en"`
	LastNameEN    string `json:"last_name_en"`
	FirstNameAR   string `json:"first_name_ar"`
	LastNameAR    string `json:"last_name_ar"`
	DateOfBirth   string `json:"date_of_birth"`
	Gender        string `json:"gender"`
	GuardianName  string `json:"guardian_name"`
	GuardianPhone string `json:"guardian_phone"`
	GuardianEmail string `json:"guardian_email"`
	CurrentLevel  int    `json:"current_level"`
	Notes         string `json:"notes"`
}

// ImportRowResult reports the outcome of one import row.
type ImportRowResult struct {
	Row            int    `json:"row"`
	StudentID      string `json:"student_id,omitempty"`
	RegistrationNo string `json:"registration_no,omitempty"`
	Error          string `json:"error,omitempty"`
}

// StudentService handles the permanent student roster.
type StudentService struct {
	repo      studentRepository
	orgs      studentOrgResolver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, orgs studentOrgResolver, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, orgs: orgs, validator: validate, logger: logger}
}

// List returns students visible to the actor plus pagination metadata. Org
// users only ever see their own roster.
func (s *StudentService) List(ctx context.Context, actor *models.JWTClaims, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	if scope := policy.ScopeOrganization(actor); scope != "" {
		filter.OrganizationID = scope
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a student visible to the actor.
func (s *StudentService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.StudentDetail, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if scope := policy.ScopeOrganization(actor); scope != "" && student.OrganizationID != scope {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return student, nil
}

// Create registers a new student and allocates its registration number.
func (s *StudentService) Create(ctx context.Context, actor *models.JWTClaims, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	organizationID := req.OrganizationID
	if scope := policy.ScopeOrganization(actor); scope != "" {
		organizationID = scope
	}
	if organizationID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "organization_id is required")
	}
	if !policy.Can(actor, policy.ActionStudentCreate, policy.Resource{OrganizationID: organizationID}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to create students for this organization")
	}
	dob, err := time.Parse("2006-01-02", req.DateOfBirth)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date_of_birth must be YYYY-MM-DD")
	}

	student := &models.Student{
		OrganizationID: organizationID,
		FirstNameEN:    strings.TrimSpace(req.FirstNameEN),
		LastNameEN:     strings.TrimSpace(req.LastNameEN),
		FirstNameAR:    strings.TrimSpace(req.FirstNameAR),
		LastNameAR:     strings.TrimSpace(req.LastNameAR),
		DateOfBirth:    dob,
		Gender:         req.Gender,
		GuardianName:   strings.TrimSpace(req.GuardianName),
		GuardianPhone:  strings.TrimSpace(req.GuardianPhone),
		GuardianEmail:  strings.TrimSpace(req.GuardianEmail),
		CurrentLevel:   req.CurrentLevel,
		Notes:          strings.TrimSpace(req.Notes),
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

// Update edits a student. Students referenced by any non-Draft enrollment or
// registration are frozen: their data already appears on submitted paperwork.
func (s *StudentService) Update(ctx context.Context, actor *models.JWTClaims, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	detail, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !policy.Can(actor, policy.ActionStudentUpdate, policy.Resource{OrganizationID: detail.OrganizationID}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to update this student")
	}
	referenced, err := s.repo.HasNonDraftReferences(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student references")
	}
	if referenced {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is referenced by submitted registrations and cannot be edited")
	}
	dob, err := time.Parse("2006-01-02", req.DateOfBirth)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date_of_birth must be YYYY-MM-DD")
	}

	student := detail.Student
	student.FirstNameEN = strings.TrimSpace(req.FirstNameEN)
	student.LastNameEN = strings.TrimSpace(req.LastNameEN)
	student.FirstNameAR = strings.TrimSpace(req.FirstNameAR)
	student.LastNameAR = strings.TrimSpace(req.LastNameAR)
	student.DateOfBirth = dob
	student.Gender = req.Gender
	student.GuardianName = strings.TrimSpace(req.GuardianName)
	student.GuardianPhone = strings.TrimSpace(req.GuardianPhone)
	student.GuardianEmail = strings.TrimSpace(req.GuardianEmail)
	student.CurrentLevel = req.CurrentLevel
	student.Notes = strings.TrimSpace(req.Notes)

	if err := s.repo.Update(ctx, &student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return &student, nil
}

// Import creates students from parsed rows, one outcome per row. Non-admin
// rows always land in the caller's organization regardless of the sheet's
// organization column; imported levels follow the stricter 1-10 range used by
// the upstream sheets.
func (s *StudentService) Import(ctx context.Context, actor *models.JWTClaims, rows []ImportStudentRow) ([]ImportRowResult, error) {
	if !policy.Can(actor, policy.ActionStudentImport, policy.Resource{}) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to import students")
	}
	if len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no rows to import")
	}

	results := make([]ImportRowResult, 0, len(rows))
	for i, row := range rows {
		result := ImportRowResult{Row: i + 1}

		if row.CurrentLevel < 1 || row.CurrentLevel > 10 {
			result.Error = "current_level must be between 1 and 10"
			results = append(results, result)
			continue
		}

		req := CreateStudentRequest{
			FirstNameEN:   row.FirstNameEN,
			LastNameEN:    row.LastNameEN,
			FirstNameAR:   row.FirstNameAR,
			LastNameAR:    row.LastNameAR,
			DateOfBirth:   row.DateOfBirth,
			Gender:        strings.ToUpper(strings.TrimSpace(row.Gender)),
			GuardianName:  row.GuardianName,
			GuardianPhone: row.GuardianPhone,
			GuardianEmail: row.GuardianEmail,
			CurrentLevel:  row.CurrentLevel,
			Notes:         row.Notes,
		}
		if actor.Role == models.RoleAdmin {
			org, err := s.resolveOrganization(ctx, row.Organization)
			if err != nil {
				result.Error = err.Error()
				results = append(results, result)
				continue
			}
			req.OrganizationID = org.ID
		}

		student, err := s.Create(ctx, actor, req)
		if err != nil {
			result.Error = appErrors.FromError(err).Message
			results = append(results, result)
			continue
		}
		result.StudentID = student.ID
		result.RegistrationNo = student.RegistrationNo
		results = append(results, result)
	}
	return results, nil
}

func (s *StudentService) resolveOrganization(ctx context.Context, name string) (*models.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("organization is required")
	}
	org, err := s.orgs.FindByName(ctx, name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("organization %q not found", name)
		}
		return nil, fmt.Errorf("resolve organization: %v", err)
	}
	return org, nil
}
